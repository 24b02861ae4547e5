package embedded

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"go.uber.org/zap"

	"github.com/kailas-cloud/searchmap/internal/backend"
	"github.com/kailas-cloud/searchmap/internal/closer"
	"github.com/kailas-cloud/searchmap/internal/predicate"
	"github.com/kailas-cloud/searchmap/internal/projection"
	"github.com/kailas-cloud/searchmap/internal/schema"
	"github.com/kailas-cloud/searchmap/internal/work"
)

const defaultLimit = 10

// IndexManager serves one bleve index.
type IndexManager struct {
	name       string
	model      *schema.Model
	mapping    *mapping.IndexMappingImpl
	path       string
	limit      int
	tenancy    backend.Tenancy
	predicates *predicateFactory
	logger     *zap.Logger
	observer   backend.Observer
	bulkCfg    work.OrchestratorConfig

	mu           sync.RWMutex
	index        bleve.Index
	orchestrator *work.Orchestrator
	stopped      bool
	once         closer.Once
}

func newIndexManager(
	name string, model *schema.Model, props backend.PropertySource, ctx *backend.BuildContext,
) (*IndexManager, error) {
	im, err := indexMapping(model)
	if err != nil {
		return nil, err
	}
	limit, err := props.Int(KeyDefaultLimit, defaultLimit)
	if err != nil {
		return nil, err
	}
	size, err := props.Int(KeyBulkSize, 0)
	if err != nil {
		return nil, err
	}
	parallelism, err := props.Int(KeyBulkParallelism, 0)
	if err != nil {
		return nil, err
	}
	logger := ctx.Logger.With(zap.String("index", name))
	return &IndexManager{
		name:       name,
		model:      model,
		mapping:    im,
		path:       props.String(KeyPath, ""),
		limit:      limit,
		tenancy:    backend.Tenancy{Enabled: model.MultiTenancy},
		predicates: &predicateFactory{model: model},
		logger:     logger,
		observer:   ctx.Observer,
		bulkCfg: work.OrchestratorConfig{
			Name:        name,
			Parallelism: parallelism,
			MaxBulkSize: size,
			Logger:      logger,
			Observer:    ctx.Observer,
		},
	}, nil
}

// Name returns the index name.
func (m *IndexManager) Name() string { return m.name }

// Schema returns the index schema.
func (m *IndexManager) Schema() *schema.Model { return m.model }

// Predicates returns the predicate factory of the index.
func (m *IndexManager) Predicates() predicate.Factory { return m.predicates }

// Start opens the index, creating it when it does not exist. Without a
// configured path the index lives in memory.
func (m *IndexManager) Start(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return backend.ErrClosed
	}
	if m.index != nil {
		return nil
	}
	idx, err := m.open()
	if err != nil {
		return fmt.Errorf("start index %s: %w", m.name, err)
	}
	m.index = idx
	m.orchestrator = work.NewOrchestrator(&executor{m: m}, m.bulkCfg)
	m.logger.Info("index started", zap.String("path", m.path), zap.Int("fields", len(m.model.Fields())))
	return nil
}

func (m *IndexManager) open() (bleve.Index, error) {
	if m.path == "" {
		return bleve.NewMemOnly(m.mapping)
	}
	dir := filepath.Join(m.path, m.name)
	if err := os.MkdirAll(m.path, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", m.path, err)
	}
	idx, err := bleve.Open(dir)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		return bleve.New(dir, m.mapping)
	}
	return idx, err
}

// Unwrap stores the bleve index, or the manager itself, into target.
func (m *IndexManager) Unwrap(target any) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.index == nil {
		return backend.UnwrapTo(target, m)
	}
	return backend.UnwrapTo(target, m.index, m)
}

// Stop drains pending bulks and closes the index. It is idempotent.
func (m *IndexManager) Stop() error {
	return m.once.Do(func() error {
		m.mu.RLock()
		orch := m.orchestrator
		m.mu.RUnlock()

		var c closer.Closer
		if orch != nil {
			c.Push(orch.Close)
		}

		m.mu.Lock()
		m.stopped = true
		idx := m.index
		m.mu.Unlock()
		if idx != nil {
			c.Push(idx.Close)
		}
		m.logger.Info("index stopped")
		return c.Err()
	})
}

func (m *IndexManager) started() (bleve.Index, *work.Orchestrator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.stopped {
		return nil, nil, backend.ErrClosed
	}
	if m.index == nil {
		return nil, nil, backend.ErrIndexNotStarted
	}
	return m.index, m.orchestrator, nil
}

// Bulk submits works through the index orchestrator. Each work gets its own future.
func (m *IndexManager) Bulk(ctx context.Context, works []work.DocumentWork) []*work.Future[work.ItemResult] {
	_, orch, err := m.started()
	if err != nil {
		out := make([]*work.Future[work.ItemResult], len(works))
		for i := range out {
			out[i] = work.Failed[work.ItemResult](err)
		}
		return out
	}
	return orch.Submit(ctx, works)
}

// executor writes one bulk as a single bleve batch.
type executor struct {
	m *IndexManager
}

func (e *executor) ExecuteBulk(ctx context.Context, works []work.DocumentWork) (*work.BulkResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	idx, _, err := e.m.started()
	if err != nil {
		return nil, err
	}
	resp := &work.BulkResponse{Items: make([]work.ItemResult, len(works))}
	batch := idx.NewBatch()
	for i, w := range works {
		resp.Items[i] = work.ItemResult{Index: i, DocumentID: w.DocumentID}
		tenantID, err := e.m.tenancy.Check(w.TenantID)
		if err != nil {
			resp.Items[i].Err = err
			continue
		}
		id := e.m.tenancy.DocumentID(tenantID, w.DocumentID)
		switch w.Op {
		case work.OpDelete:
			batch.Delete(id)
		default:
			if w.Document == nil {
				resp.Items[i].Err = errors.New("index work without a document")
				continue
			}
			if err := batch.Index(id, source(w.Document, tenantID, e.m.tenancy.Enabled)); err != nil {
				resp.Items[i].Err = err
			}
		}
	}
	if err := idx.Batch(batch); err != nil {
		return nil, fmt.Errorf("apply batch: %w", err)
	}
	return resp, nil
}

func (m *IndexManager) scope(p predicate.Predicate, tenantID string) (query.Query, error) {
	if p == nil {
		p = m.predicates.MatchAll()
	}
	bp, ok := p.(*Predicate)
	if !ok {
		return nil, fmt.Errorf("%w: %T", backend.ErrForeignPredicate, p)
	}
	q := bp.Query(m.tenancy, tenantID)
	if m.tenancy.Enabled {
		tq := query.NewTermQuery(tenantID)
		tq.SetField(backend.TenantField)
		q = query.NewConjunctionQuery([]query.Query{q, tq})
	}
	return q, nil
}

// Search runs req against the index.
func (m *IndexManager) Search(ctx context.Context, req *backend.SearchRequest) (*backend.SearchResult, error) {
	began := time.Now()
	res, err := m.search(ctx, req)
	hits := 0
	if res != nil {
		hits = len(res.Hits)
	}
	m.observer.ObserveSearch(m.name, hits, time.Since(began), err)
	return res, err
}

func (m *IndexManager) search(ctx context.Context, req *backend.SearchRequest) (*backend.SearchResult, error) {
	idx, _, err := m.started()
	if err != nil {
		return nil, err
	}
	tenantID, err := m.tenancy.Check(req.TenantID)
	if err != nil {
		return nil, err
	}
	q, err := m.scope(req.Predicate, tenantID)
	if err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 {
		limit = m.limit
	}
	sr := bleve.NewSearchRequestOptions(q, limit, req.Offset, false)
	sr.Fields = m.storedFields(req.Fields)
	if len(req.Sort) > 0 {
		order, err := m.sortOrder(req.Sort)
		if err != nil {
			return nil, err
		}
		sr.SortBy(order)
	}

	res, err := idx.SearchInContext(ctx, sr)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", m.name, err)
	}
	out := &backend.SearchResult{Total: int(res.Total), Took: res.Took, Hits: make([]projection.Hit, 0, len(res.Hits))}
	for _, h := range res.Hits {
		fields, err := hitFields(m.model, h.Fields)
		if err != nil {
			return nil, fmt.Errorf("hit %s: %w", h.ID, err)
		}
		out.Hits = append(out.Hits, projection.Hit{
			Index:      m.name,
			DocumentID: m.tenancy.StripDocumentID(tenantID, h.ID),
			Score:      h.Score,
			Fields:     fields,
		})
	}
	return out, nil
}

func (m *IndexManager) storedFields(requested []string) []string {
	if requested != nil {
		out := make([]string, 0, len(requested))
		for _, p := range requested {
			if f, ok := m.model.Field(p); ok && f.Options.Projectable {
				out = append(out, p)
			}
		}
		return out
	}
	var out []string
	for _, f := range m.model.Fields() {
		if f.Options.Projectable {
			out = append(out, f.Path)
		}
	}
	return out
}

func (m *IndexManager) sortOrder(sorts []backend.Sort) ([]string, error) {
	order := make([]string, 0, len(sorts)+1)
	for _, s := range sorts {
		f, ok := m.model.Field(s.Field)
		if !ok {
			return nil, fmt.Errorf("sort: %w %q", predicate.ErrUnknownField, s.Field)
		}
		if !f.Options.Sortable {
			return nil, fmt.Errorf("sort: field %q is not sortable", s.Field)
		}
		if s.Descending {
			order = append(order, "-"+s.Field)
		} else {
			order = append(order, s.Field)
		}
	}
	return append(order, "-_score"), nil
}

// Count returns the number of documents of a tenant, or of the whole index
// when it is single-tenant.
func (m *IndexManager) Count(ctx context.Context, tenantID string) (int, error) {
	idx, _, err := m.started()
	if err != nil {
		return 0, err
	}
	if !m.tenancy.Enabled {
		n, err := idx.DocCount()
		return int(n), err
	}
	if _, err := m.tenancy.Check(tenantID); err != nil {
		return 0, err
	}
	q, err := m.scope(nil, tenantID)
	if err != nil {
		return 0, err
	}
	res, err := idx.SearchInContext(ctx, bleve.NewSearchRequestOptions(q, 0, 0, false))
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", m.name, err)
	}
	return int(res.Total), nil
}
