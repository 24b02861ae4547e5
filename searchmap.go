package searchmap

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/searchmap/internal/backend"
	"github.com/kailas-cloud/searchmap/internal/backend/embedded"
	"github.com/kailas-cloud/searchmap/internal/backend/remote"
	"github.com/kailas-cloud/searchmap/internal/closer"
	"github.com/kailas-cloud/searchmap/internal/failure"
	"github.com/kailas-cloud/searchmap/internal/mapper"
	"github.com/kailas-cloud/searchmap/internal/schema"
)

// DefaultBackendName names the in-memory embedded backend created when no
// backend is configured.
const DefaultBackendName = "default"

// Mapping is the entry point: mapped types bound to started indexes.
type Mapping struct {
	mapping  *mapper.Mapping
	backends map[string]backend.Backend
	indexes  map[string]*target
	loaders  map[reflect.Type]entityLoader
	logger   *zap.Logger

	mu     sync.RWMutex
	closed bool
	once   closer.Once
}

// target is one mapped type and the index serving it.
type target struct {
	tm      *mapper.TypeMapping
	manager backend.IndexManager
}

// New builds backends, then the mapping of every registered type, then the
// index managers, and starts the indexes. Any failure releases everything
// built so far.
func New(opts ...Option) (*Mapping, error) {
	o := newOptions()
	for _, opt := range opts {
		opt.apply(o)
	}
	began := time.Now()
	m, err := build(o)
	if mo, ok := o.observer.(MappingObserver); ok {
		n := 0
		if m != nil {
			n = len(m.indexes)
		}
		mo.ObserveMapping(n, time.Since(began), err)
	}
	if err != nil {
		o.logger.Error("mapping build failed", zap.Error(err))
		return nil, err
	}
	o.logger.Info("mapping started",
		zap.Int("types", len(m.indexes)),
		zap.Int("backends", len(m.backends)),
		zap.Duration("took", time.Since(began)))
	return m, nil
}

func build(o *options) (*Mapping, error) {
	registry := backend.NewRegistry()
	embedded.Register(registry)
	remote.Register(registry)
	for typeName, f := range o.factories {
		registry.Register(typeName, f)
	}

	if len(o.backends) == 0 {
		o.backends[DefaultBackendName] = backend.PropertySource{backend.KeyType: embedded.TypeName}
	}
	defaultBackend := o.defaultBackend
	if defaultBackend == "" && len(o.backends) == 1 {
		for name := range o.backends {
			defaultBackend = name
		}
	}

	bctx := &backend.BuildContext{Logger: o.logger, Observer: o.observer}
	backends, err := createBackends(registry, o.backends, bctx)
	if err != nil {
		return nil, err
	}
	var release closer.Closer
	closeBackends := func() {
		for _, b := range backends {
			release.Push(b.Close)
		}
		if err := release.Err(); err != nil {
			o.logger.Warn("release backends after failure", zap.Error(err))
		}
	}

	factory, err := mapper.NewFactory(mapper.Options{
		Bridges:    o.bridges,
		Definition: o.definition,
		Logger:     o.logger,
	})
	if err != nil {
		closeBackends()
		return nil, err
	}

	b := &binder{
		backends:       backends,
		props:          o.backends,
		defaultBackend: defaultBackend,
		ctx:            bctx,
		builders:       map[string]backend.IndexManagerBuilder{},
	}
	mapping, err := factory.CreateMapping(o.types, b)
	if err != nil {
		b.closeOnFailure()
		closeBackends()
		return nil, err
	}

	m := &Mapping{
		mapping:  mapping,
		backends: backends,
		indexes:  map[string]*target{},
		loaders:  o.loaders,
		logger:   o.logger,
	}
	for _, tm := range mapping.Types() {
		ib := b.builders[tm.Index()]
		delete(b.builders, tm.Index())
		manager, err := ib.Build()
		if err != nil {
			b.closeOnFailure()
			_ = m.Close()
			return nil, failure.WithContext(err, failure.Type(tm.Name()))
		}
		m.indexes[tm.Index()] = &target{tm: tm, manager: manager}
	}
	b.closeOnFailure()

	ctx, cancel := context.WithTimeout(context.Background(), o.startTimeout)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range m.indexes {
		g.Go(func() error {
			if err := t.manager.Start(gctx); err != nil {
				return failure.WithContext(err, failure.Index(t.tm.Index()))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("start indexes: %w", err)
	}
	return m, nil
}

func createBackends(
	registry *backend.Registry, props map[string]backend.PropertySource, ctx *backend.BuildContext,
) (map[string]backend.Backend, error) {
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make(map[string]backend.Backend, len(names))
	for _, name := range names {
		b, err := registry.CreateBackend(name, props[name], ctx)
		if err != nil {
			var c closer.Closer
			for _, created := range out {
				c.Push(created.Close)
			}
			if cerr := c.Err(); cerr != nil {
				ctx.Logger.Warn("release backends after failure", zap.Error(cerr))
			}
			return nil, err
		}
		out[name] = b
	}
	return out, nil
}

// binder creates one index manager builder per mapped index.
type binder struct {
	backends       map[string]backend.Backend
	props          map[string]backend.PropertySource
	defaultBackend string
	ctx            *backend.BuildContext

	builders map[string]backend.IndexManagerBuilder
	owners   map[string]string
}

func (b *binder) BindIndex(typeName, indexName, backendName string) (*schema.RootBuilder, error) {
	if backendName == "" {
		if b.defaultBackend == "" {
			return nil, ErrNoDefaultBackend
		}
		backendName = b.defaultBackend
	}
	be, ok := b.backends[backendName]
	if !ok {
		return nil, failure.WithContext(fmt.Errorf("%w %q", ErrUnknownBackend, backendName), failure.Backend(backendName))
	}
	if owner, ok := b.owners[indexName]; ok {
		return nil, fmt.Errorf("%w: %s already maps %s", ErrDuplicateIndex, owner, indexName)
	}

	props := b.props[backendName]
	tenancy, err := props.Tenancy()
	if err != nil {
		return nil, failure.WithContext(err, failure.Backend(backendName))
	}
	ib, err := be.CreateIndexManagerBuilder(
		indexName, tenancy == backend.TenancyDiscriminator, b.ctx, props.IndexProperties(indexName))
	if err != nil {
		return nil, err
	}
	if b.owners == nil {
		b.owners = map[string]string{}
	}
	b.owners[indexName] = typeName
	b.builders[indexName] = ib
	return ib.Schema(), nil
}

// closeOnFailure releases the builders that were never built.
func (b *binder) closeOnFailure() {
	for name, ib := range b.builders {
		ib.CloseOnFailure()
		delete(b.builders, name)
	}
}

// Types returns the mapped struct types in registration order.
func (m *Mapping) Types() []reflect.Type {
	types := m.mapping.Types()
	out := make([]reflect.Type, len(types))
	for i, tm := range types {
		out[i] = tm.Type()
	}
	return out
}

// Backend returns a configured backend, whose native client is reachable
// through Unwrap.
func (m *Mapping) Backend(name string) (Backend, error) {
	b, ok := m.backends[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownBackend, name)
	}
	return b, nil
}

func (m *Mapping) target(typ reflect.Type) (*target, error) {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	tm, err := m.mapping.ByType(typ)
	if err != nil {
		return nil, err
	}
	return m.indexes[tm.Index()], nil
}

// Close stops every index, then releases bridges and backends. Every failure
// is reported; a failing resource never keeps the next one open. It is idempotent.
func (m *Mapping) Close() error {
	return m.once.Do(func() error {
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()

		var c closer.Closer
		for _, t := range m.indexes {
			c.Push(t.manager.Stop)
		}
		c.Push(m.mapping.Close)
		names := make([]string, 0, len(m.backends))
		for name := range m.backends {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			c.Push(m.backends[name].Close)
		}
		if err := c.Err(); err != nil {
			m.logger.Warn("mapping closed with failures", zap.Error(err))
			return err
		}
		m.logger.Info("mapping closed")
		return nil
	})
}
