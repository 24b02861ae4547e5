package work

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrOrchestratorClosed is returned for works submitted after Close.
var ErrOrchestratorClosed = errors.New("orchestrator closed")

// BulkObserver receives bulk timings; nil is allowed.
type BulkObserver interface {
	ObserveBulk(index string, size int, failed int, d time.Duration)
}

// OrchestratorConfig configures an Orchestrator.
type OrchestratorConfig struct {
	Name        string
	Parallelism int
	MaxBulkSize int
	Logger      *zap.Logger
	Observer    BulkObserver
}

// Orchestrator submits bulks to an executor with bounded concurrency.
type Orchestrator struct {
	cfg    OrchestratorConfig
	exec   BulkExecutor
	mu     sync.RWMutex
	closed bool
	group  errgroup.Group
}

// NewOrchestrator returns an orchestrator over exec.
func NewOrchestrator(exec BulkExecutor, cfg OrchestratorConfig) *Orchestrator {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	if cfg.MaxBulkSize <= 0 {
		cfg.MaxBulkSize = 500
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	o := &Orchestrator{cfg: cfg, exec: exec}
	o.group.SetLimit(cfg.Parallelism)
	return o
}

// Submit splits works into bulks and executes them asynchronously. It returns
// one future per work, in order. Submit blocks while the concurrency limit is reached.
func (o *Orchestrator) Submit(ctx context.Context, works []DocumentWork) []*Future[ItemResult] {
	out := make([]*Future[ItemResult], 0, len(works))

	o.mu.RLock()
	defer o.mu.RUnlock()

	for start := 0; start < len(works); start += o.cfg.MaxBulkSize {
		end := min(start+o.cfg.MaxBulkSize, len(works))
		chunk := works[start:end]

		resp := NewFuture[*BulkResponse]()
		out = append(out, NewExtractor(resp, len(chunk)).Items()...)

		if o.closed {
			resp.Fail(ErrOrchestratorClosed)
			continue
		}
		o.group.Go(func() error {
			began := time.Now()
			complete(ctx, o.exec, chunk, resp)
			o.observe(chunk, resp, time.Since(began))
			return nil
		})
	}
	return out
}

func (o *Orchestrator) observe(chunk []DocumentWork, resp *Future[*BulkResponse], d time.Duration) {
	r, _, err := resp.Peek()
	failed := len(chunk)
	if err == nil {
		failed = 0
		for _, item := range r.Items {
			if item.Err != nil {
				failed++
				o.cfg.Logger.Warn("bulk item failed",
					zap.String("orchestrator", o.cfg.Name),
					zap.String("document_id", item.DocumentID),
					zap.Error(item.Err))
			}
		}
	} else {
		o.cfg.Logger.Warn("bulk failed",
			zap.String("orchestrator", o.cfg.Name),
			zap.Int("size", len(chunk)),
			zap.Error(err))
	}
	if o.cfg.Observer != nil && len(chunk) > 0 {
		o.cfg.Observer.ObserveBulk(chunk[0].Index, len(chunk), failed, d)
	}
}

// Close rejects new submissions and waits for in-flight bulks. It is idempotent.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	return o.group.Wait()
}
