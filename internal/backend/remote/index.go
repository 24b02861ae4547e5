package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/searchmap/internal/backend"
	"github.com/kailas-cloud/searchmap/internal/closer"
	"github.com/kailas-cloud/searchmap/internal/db"
	"github.com/kailas-cloud/searchmap/internal/predicate"
	"github.com/kailas-cloud/searchmap/internal/projection"
	"github.com/kailas-cloud/searchmap/internal/schema"
	"github.com/kailas-cloud/searchmap/internal/work"
)

const defaultLimit = 10

var (
	errNoDocument   = errors.New("index work without a document")
	errMultipleSort = errors.New("redis search sorts by a single field")
)

// IndexManager serves one RediSearch index.
type IndexManager struct {
	name       string
	model      *schema.Model
	layout     *layout
	limit      int
	store      db.Store
	breaker    *breaker
	predicates *predicateFactory
	logger     *zap.Logger
	observer   backend.Observer
	bulkCfg    work.OrchestratorConfig

	mu           sync.RWMutex
	orchestrator *work.Orchestrator
	stopped      bool
	once         closer.Once
}

func newIndexManager(
	b *Backend, name string, model *schema.Model, props backend.PropertySource, ctx *backend.BuildContext,
) (*IndexManager, error) {
	storage, err := parseStorage(props.String(KeyStorage, ""))
	if err != nil {
		return nil, err
	}
	l, err := newLayout(model, storage)
	if err != nil {
		return nil, err
	}
	// Fail at build time rather than on Start.
	if _, err := l.definition(); err != nil {
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
		layout:     l,
		limit:      limit,
		store:      b.store,
		breaker:    b.breaker,
		predicates: &predicateFactory{layout: l},
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

// Start creates the RediSearch index unless it already exists. An existing
// index is used as is, even when its definition differs.
func (m *IndexManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return backend.ErrClosed
	}
	if m.orchestrator != nil {
		return nil
	}
	exists, err := call(m.breaker, func() (bool, error) {
		return m.store.IndexExists(ctx, m.name)
	})
	if err != nil {
		return fmt.Errorf("start index %s: %w", m.name, err)
	}
	if !exists {
		def, err := m.layout.definition()
		if err != nil {
			return fmt.Errorf("start index %s: %w", m.name, err)
		}
		err = m.breaker.do(func() error { return m.store.CreateIndex(ctx, def) })
		if err != nil && !errors.Is(err, db.ErrIndexExists) {
			return fmt.Errorf("start index %s: %w", m.name, err)
		}
	}
	m.orchestrator = work.NewOrchestrator(&executor{m: m}, m.bulkCfg)
	m.logger.Info("index started",
		zap.Bool("created", !exists),
		zap.String("storage", string(m.layout.storage)),
		zap.Int("fields", len(m.model.Fields())))
	return nil
}

// Unwrap stores the db.Store, or the manager itself, into target.
func (m *IndexManager) Unwrap(target any) error {
	return backend.UnwrapTo(target, m.store, m)
}

// Stop drains pending bulks. The index and its documents stay in Redis.
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
		m.mu.Unlock()
		m.logger.Info("index stopped")
		return c.Err()
	})
}

func (m *IndexManager) started() (*work.Orchestrator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.stopped {
		return nil, backend.ErrClosed
	}
	if m.orchestrator == nil {
		return nil, backend.ErrIndexNotStarted
	}
	return m.orchestrator, nil
}

// Bulk submits works through the index orchestrator. Each work gets its own future.
func (m *IndexManager) Bulk(ctx context.Context, works []work.DocumentWork) []*work.Future[work.ItemResult] {
	orch, err := m.started()
	if err != nil {
		out := make([]*work.Future[work.ItemResult], len(works))
		for i := range out {
			out[i] = work.Failed[work.ItemResult](err)
		}
		return out
	}
	return orch.Submit(ctx, works)
}

// executor writes one bulk as pipelined commands. Consecutive works with the
// same operation share a round trip, so the bulk order is kept.
type executor struct {
	m *IndexManager
}

type pending struct {
	slot int
	key  string
	json []byte
	hash map[string]string
}

func (e *executor) ExecuteBulk(ctx context.Context, works []work.DocumentWork) (*work.BulkResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := e.m.started(); err != nil {
		return nil, err
	}
	l := e.m.layout
	resp := &work.BulkResponse{Items: make([]work.ItemResult, len(works))}

	var run []pending
	runOp := work.OpIndex
	flush := func() error {
		if len(run) == 0 {
			return nil
		}
		errs, err := e.send(ctx, runOp, run)
		if err != nil {
			return err
		}
		for i, p := range run {
			if i < len(errs) && errs[i] != nil {
				resp.Items[p.slot].Err = errs[i]
			}
		}
		run = run[:0]
		return nil
	}

	for i, w := range works {
		resp.Items[i] = work.ItemResult{Index: i, DocumentID: w.DocumentID}
		tenantID, err := l.tenancy.Check(w.TenantID)
		if err != nil {
			resp.Items[i].Err = err
			continue
		}
		p := pending{slot: i, key: l.key(tenantID, w.DocumentID)}
		if w.Op == work.OpIndex {
			if w.Document == nil {
				resp.Items[i].Err = errNoDocument
				continue
			}
			if l.storage == db.StorageJSON {
				p.json, err = l.encodeJSON(w.Document, w.DocumentID, tenantID)
			} else {
				p.hash, err = l.encodeHash(w.Document, w.DocumentID, tenantID)
			}
			if err != nil {
				resp.Items[i].Err = err
				continue
			}
		}
		if w.Op != runOp {
			if err := flush(); err != nil {
				return nil, err
			}
			runOp = w.Op
		}
		run = append(run, p)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	for _, item := range resp.Items {
		if item.Err != nil {
			e.m.logger.Warn("bulk item failed", zap.String("document_id", item.DocumentID), zap.Error(item.Err))
		}
	}
	return resp, nil
}

func (e *executor) send(ctx context.Context, op work.Op, run []pending) ([]error, error) {
	return call(e.m.breaker, func() ([]error, error) {
		switch {
		case op == work.OpDelete:
			keys := make([]string, len(run))
			for i, p := range run {
				keys[i] = p.key
			}
			return e.m.store.DelMulti(ctx, keys)
		case e.m.layout.storage == db.StorageJSON:
			items := make([]db.JSONSetItem, len(run))
			for i, p := range run {
				items[i] = db.JSONSetItem{Key: p.key, Data: p.json}
			}
			return e.m.store.JSONSetMulti(ctx, items)
		default:
			items := make([]db.HashSetItem, len(run))
			for i, p := range run {
				items[i] = db.HashSetItem{Key: p.key, Fields: p.hash}
			}
			return e.m.store.HSetMulti(ctx, items)
		}
	})
}

// scope renders p restricted to the documents of tenantID.
func (m *IndexManager) scope(p predicate.Predicate, tenantID string) (string, map[string]string, error) {
	if p == nil {
		p = m.predicates.MatchAll()
	}
	rp, ok := p.(*Predicate)
	if !ok {
		return "", nil, fmt.Errorf("%w: %T", backend.ErrForeignPredicate, p)
	}
	q, params := rp.Query()
	if m.layout.tenancy.Enabled {
		q = intersect(tagClause(backend.TenantField, tenantID), q)
	}
	return q, params, nil
}

// Search runs req against the index.
func (m *IndexManager) Search(ctx context.Context, req *backend.SearchRequest) (*backend.SearchResult, error) {
	began := time.Now()
	res, err := m.search(ctx, req)
	hits := 0
	if res != nil {
		hits = len(res.Hits)
		res.Took = time.Since(began)
	}
	m.observer.ObserveSearch(m.name, hits, time.Since(began), err)
	return res, err
}

func (m *IndexManager) search(ctx context.Context, req *backend.SearchRequest) (*backend.SearchResult, error) {
	if _, err := m.started(); err != nil {
		return nil, err
	}
	tenantID, err := m.layout.tenancy.Check(req.TenantID)
	if err != nil {
		return nil, err
	}
	q, params, err := m.scope(req.Predicate, tenantID)
	if err != nil {
		return nil, err
	}
	if req.Offset < 0 {
		return nil, fmt.Errorf("search %s: negative offset %d", m.name, req.Offset)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = m.limit
	}
	attrs := m.projected(req.Fields)
	query := &db.Query{
		Index:      m.name,
		Query:      q,
		Params:     params,
		Offset:     req.Offset,
		Limit:      limit,
		WithScores: true,
		Return:     m.returned(attrs),
	}
	if err := m.sortBy(query, req.Sort); err != nil {
		return nil, err
	}

	res, err := call(m.breaker, func() (*db.SearchResult, error) {
		return m.store.Search(ctx, query)
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", m.name, err)
	}
	out := &backend.SearchResult{Total: res.Total, Hits: make([]projection.Hit, 0, len(res.Entries))}
	for _, e := range res.Entries {
		fields, err := m.decode(e.Fields, attrs)
		if err != nil {
			return nil, fmt.Errorf("hit %s: %w", e.Key, err)
		}
		out.Hits = append(out.Hits, projection.Hit{
			Index:      m.name,
			DocumentID: m.layout.documentID(tenantID, e.Key),
			Score:      e.Score,
			Fields:     fields,
		})
	}
	return out, nil
}

// projected returns the attributes of the requested projectable fields,
// every projectable field when requested is nil.
func (m *IndexManager) projected(requested []string) []*attribute {
	var out []*attribute
	if requested == nil {
		for _, a := range m.layout.attrs {
			if a.field.Options.Projectable {
				out = append(out, a)
			}
		}
		return out
	}
	for _, p := range requested {
		if a, ok := m.layout.attribute(p); ok && a.field.Options.Projectable {
			out = append(out, a)
		}
	}
	return out
}

func (m *IndexManager) returned(attrs []*attribute) []string {
	if m.layout.storage == db.StorageJSON {
		return []string{"$"}
	}
	// RETURN 0 would drop the field arrays from the reply.
	out := []string{IDAttribute}
	for _, a := range attrs {
		out = append(out, a.name)
	}
	return out
}

func (m *IndexManager) decode(fields map[string]string, attrs []*attribute) (map[string][]any, error) {
	if m.layout.storage == db.StorageHash {
		return m.layout.decodeHash(fields, attrs)
	}
	raw, ok := fields["$"]
	if !ok {
		return map[string][]any{}, nil
	}
	return m.layout.decodeJSON(raw, attrs)
}

func (m *IndexManager) sortBy(q *db.Query, sorts []backend.Sort) error {
	switch len(sorts) {
	case 0:
		return nil
	case 1:
	default:
		return fmt.Errorf("sort: %w, got %d", errMultipleSort, len(sorts))
	}
	s := sorts[0]
	a, ok := m.layout.attribute(s.Field)
	if !ok {
		return fmt.Errorf("sort: %w %q", predicate.ErrUnknownField, s.Field)
	}
	if !a.field.Options.Sortable || a.field.Kind == schema.KindGeoPoint {
		return fmt.Errorf("sort: field %q is not sortable", s.Field)
	}
	q.SortBy, q.SortDesc = a.name, s.Descending
	return nil
}

// Count returns the number of documents of a tenant, or of the whole index
// when it is single-tenant.
func (m *IndexManager) Count(ctx context.Context, tenantID string) (int, error) {
	if _, err := m.started(); err != nil {
		return 0, err
	}
	tenantID, err := m.layout.tenancy.Check(tenantID)
	if err != nil {
		return 0, err
	}
	q, params, err := m.scope(nil, tenantID)
	if err != nil {
		return 0, err
	}
	n, err := call(m.breaker, func() (int, error) {
		return m.store.Count(ctx, &db.Query{Index: m.name, Query: q, Params: params})
	})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", m.name, err)
	}
	return n, nil
}
