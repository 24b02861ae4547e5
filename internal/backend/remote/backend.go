// Package remote is a backend storing indexes in Redis with the Redis Query
// Engine (FT.* commands) through rueidis.
package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/searchmap/internal/backend"
	"github.com/kailas-cloud/searchmap/internal/closer"
	"github.com/kailas-cloud/searchmap/internal/db"
	"github.com/kailas-cloud/searchmap/internal/db/redis"
	"github.com/kailas-cloud/searchmap/internal/failure"
	"github.com/kailas-cloud/searchmap/internal/schema"
)

// TypeName selects this backend in configuration.
const TypeName = "redis"

// Backend properties.
const (
	KeyAddrs        = "addrs"
	KeyUsername     = "username"
	KeyPassword     = "password"
	KeyDB           = "db"
	KeyReadyTimeout = "ready_timeout"

	KeyBreakerMaxRequests  = "breaker.max_requests"
	KeyBreakerInterval     = "breaker.interval"
	KeyBreakerTimeout      = "breaker.timeout"
	KeyBreakerMinRequests  = "breaker.min_requests"
	KeyBreakerFailureRatio = "breaker.failure_ratio"
)

// Index properties.
const (
	// KeyStorage is "json" (default) or "hash".
	KeyStorage         = "storage"
	KeyBulkSize        = "bulk.size"
	KeyBulkParallelism = "bulk.parallelism"
	KeyDefaultLimit    = "search.default_limit"
)

var errDuplicateIndex = errors.New("index already exists in this backend")

// Backend owns the Redis connection shared by its indexes.
type Backend struct {
	name    string
	tenancy backend.MultiTenancy
	store   db.Store
	breaker *breaker
	logger  *zap.Logger

	mu       sync.Mutex
	closed   bool
	managers map[string]*IndexManager
	once     closer.Once
}

// New connects to Redis and creates a backend. It matches backend.Factory.
func New(name string, props backend.PropertySource, ctx *backend.BuildContext) (backend.Backend, error) {
	dbIndex, err := props.Int(KeyDB, 0)
	if err != nil {
		return nil, err
	}
	timeout, err := props.Duration(KeyReadyTimeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	store, err := redis.NewStore(redis.Config{
		Addrs:    props.Strings(KeyAddrs),
		Username: props.String(KeyUsername, ""),
		Password: props.String(KeyPassword, ""),
		DB:       dbIndex,
	})
	if err != nil {
		return nil, fmt.Errorf("redis backend %s: %w", name, err)
	}
	if err := store.WaitForReady(context.Background(), timeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("redis backend %s: %w", name, err)
	}
	b, err := NewWithStore(name, store, props, ctx)
	if err != nil {
		store.Close()
		return nil, err
	}
	return b, nil
}

// NewWithStore creates a backend over an existing store. The backend owns
// the store and closes it.
func NewWithStore(name string, store db.Store, props backend.PropertySource, ctx *backend.BuildContext) (*Backend, error) {
	tenancy, err := props.Tenancy()
	if err != nil {
		return nil, err
	}
	cfg, err := breakerConfig(props)
	if err != nil {
		return nil, err
	}
	ctx = ctx.WithDefaults()
	logger := ctx.Logger.With(zap.String("backend", name))
	b := &Backend{
		name:     name,
		tenancy:  tenancy,
		store:    store,
		breaker:  newBreaker(name, cfg, logger, ctx.Observer),
		logger:   logger,
		managers: map[string]*IndexManager{},
	}
	b.logger.Info("redis backend created", zap.String("multi_tenancy", string(tenancy)))
	return b, nil
}

func breakerConfig(props backend.PropertySource) (BreakerConfig, error) {
	var cfg BreakerConfig
	maxRequests, err := props.Int(KeyBreakerMaxRequests, 0)
	if err != nil {
		return cfg, err
	}
	minRequests, err := props.Int(KeyBreakerMinRequests, 0)
	if err != nil {
		return cfg, err
	}
	if maxRequests < 0 || minRequests < 0 {
		return cfg, errors.New("breaker request counts must not be negative")
	}
	cfg.MaxRequests, cfg.MinRequests = uint32(maxRequests), uint32(minRequests)
	if cfg.Interval, err = props.Duration(KeyBreakerInterval, 0); err != nil {
		return cfg, err
	}
	if cfg.Timeout, err = props.Duration(KeyBreakerTimeout, 0); err != nil {
		return cfg, err
	}
	if cfg.FailureRatio, err = props.Float(KeyBreakerFailureRatio, 0); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Register adds the redis backend type to r.
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

// Unwrap stores the db.Store, or the backend itself, into target.
func (b *Backend) Unwrap(target any) error {
	return backend.UnwrapTo(target, b.store, b)
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

// Close stops every index, then closes the connection. It is idempotent.
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
		c.Push(func() error {
			b.store.Close()
			return nil
		})
		b.logger.Info("redis backend closed", zap.Int("indexes", len(managers)))
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
	m, err := newIndexManager(ib.backend, ib.name, ib.root.Build(), ib.props, ib.ctx)
	if err != nil {
		return nil, failure.WithContext(err, failure.Index(ib.name))
	}
	if err := ib.backend.register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// CloseOnFailure is a no-op: nothing is created in Redis before Start.
func (ib *indexManagerBuilder) CloseOnFailure() {}

func parseStorage(s string) (db.StorageType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return db.StorageJSON, nil
	case "hash":
		return db.StorageHash, nil
	default:
		return "", fmt.Errorf("unknown storage %q: use json or hash", s)
	}
}
