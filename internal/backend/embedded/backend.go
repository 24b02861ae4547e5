// Package embedded is an in-process backend storing indexes with bleve.
package embedded

import (
	"sync"

	"go.uber.org/zap"

	"github.com/kailas-cloud/searchmap/internal/backend"
	"github.com/kailas-cloud/searchmap/internal/closer"
	"github.com/kailas-cloud/searchmap/internal/failure"
	"github.com/kailas-cloud/searchmap/internal/schema"
)

// TypeName selects this backend in configuration.
const TypeName = "embedded"

// Index properties.
const (
	// KeyPath is the directory holding index files; empty keeps indexes in memory.
	KeyPath            = "path"
	KeyBulkSize        = "bulk.size"
	KeyBulkParallelism = "bulk.parallelism"
	KeyDefaultLimit    = "search.default_limit"
)

// Backend owns the bleve indexes of one configured backend.
type Backend struct {
	name    string
	tenancy backend.MultiTenancy
	logger  *zap.Logger

	mu       sync.Mutex
	closed   bool
	managers map[string]*IndexManager
	once     closer.Once
}

// New creates an embedded backend. It matches backend.Factory.
func New(name string, props backend.PropertySource, ctx *backend.BuildContext) (backend.Backend, error) {
	tenancy, err := props.Tenancy()
	if err != nil {
		return nil, err
	}
	ctx = ctx.WithDefaults()
	b := &Backend{
		name:     name,
		tenancy:  tenancy,
		logger:   ctx.Logger.With(zap.String("backend", name)),
		managers: map[string]*IndexManager{},
	}
	b.logger.Info("embedded backend created", zap.String("multi_tenancy", string(tenancy)))
	return b, nil
}

// Register adds the embedded backend type to r.
func Register(r *backend.Registry) {
	r.Register(TypeName, New)
}

// Name returns the configured backend name.
func (b *Backend) Name() string { return b.name }

// CreateIndexManagerBuilder starts the schema of an index.
func (b *Backend) CreateIndexManagerBuilder(
	indexName string, multiTenancy bool, ctx *backend.BuildContext, props backend.PropertySource,
) (backend.IndexManagerBuilder, error) {
	if err := backend.CheckTenancy(b.tenancy, multiTenancy, indexName); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, backend.ErrClosed
	}
	if _, ok := b.managers[indexName]; ok {
		return nil, failure.WithContext(errDuplicateIndex, failure.Index(indexName))
	}
	root := schema.NewRootBuilder(indexName)
	if multiTenancy {
		root.EnableMultiTenancy()
	}
	return &indexManagerBuilder{
		backend: b,
		name:    indexName,
		root:    root,
		ctx:     ctx.WithDefaults(),
		props:   props,
	}, nil
}

// Unwrap stores the backend, or one of its interfaces, into target.
func (b *Backend) Unwrap(target any) error {
	return backend.UnwrapTo(target, b)
}

// Index returns a built index manager by name.
func (b *Backend) Index(name string) (*IndexManager, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.managers[name]
	return m, ok
}

func (b *Backend) register(m *IndexManager) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return backend.ErrClosed
	}
	if _, ok := b.managers[m.name]; ok {
		return failure.WithContext(errDuplicateIndex, failure.Index(m.name))
	}
	b.managers[m.name] = m
	return nil
}

// Close stops every index still open. It is idempotent.
func (b *Backend) Close() error {
	return b.once.Do(func() error {
		b.mu.Lock()
		b.closed = true
		managers := make([]*IndexManager, 0, len(b.managers))
		for _, m := range b.managers {
			managers = append(managers, m)
		}
		b.mu.Unlock()

		var c closer.Closer
		for _, m := range managers {
			c.Push(m.Stop)
		}
		b.logger.Info("embedded backend closed", zap.Int("indexes", len(managers)))
		return c.Err()
	})
}

type indexManagerBuilder struct {
	backend *Backend
	name    string
	root    *schema.RootBuilder
	ctx     *backend.BuildContext
	props   backend.PropertySource
}

func (ib *indexManagerBuilder) Schema() *schema.RootBuilder { return ib.root }

func (ib *indexManagerBuilder) Build() (backend.IndexManager, error) {
	m, err := newIndexManager(ib.name, ib.root.Build(), ib.props, ib.ctx)
	if err != nil {
		return nil, failure.WithContext(err, failure.Index(ib.name))
	}
	if err := ib.backend.register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// CloseOnFailure is a no-op: nothing is opened before Build.
func (ib *indexManagerBuilder) CloseOnFailure() {}
