package searchmap

import (
	"context"
	"maps"
	"reflect"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/searchmap/internal/backend"
	"github.com/kailas-cloud/searchmap/internal/bridge"
	"github.com/kailas-cloud/searchmap/internal/mapper"
)

const defaultStartTimeout = 30 * time.Second

// Option configures a Mapping.
type Option interface {
	apply(*options)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*options)

func (f optionFunc) apply(o *options) { f(o) }

type options struct {
	defaultBackend string
	backends       map[string]backend.PropertySource
	factories      map[string]BackendFactory

	logger       *zap.Logger
	observer     Observer
	startTimeout time.Duration

	types      []reflect.Type
	definition *mapper.Definition
	bridges    *mapper.Bridges
	loaders    map[reflect.Type]entityLoader
}

func newOptions() *options {
	return &options{
		backends:     map[string]backend.PropertySource{},
		factories:    map[string]BackendFactory{},
		logger:       zap.NewNop(),
		observer:     backend.NopObserver,
		startTimeout: defaultStartTimeout,
		definition:   mapper.NewDefinition(),
		bridges:      mapper.NewBridges(),
		loaders:      map[reflect.Type]entityLoader{},
	}
}

// Config declares backends as decoded from a configuration file.
// Each backend entry must set "type"; "index_defaults" and "indexes.<name>"
// hold index-level properties.
type Config struct {
	DefaultBackend string
	Backends       map[string]map[string]any
}

// WithConfig adds every backend of cfg. A non-empty DefaultBackend wins over
// earlier options.
func WithConfig(cfg Config) Option {
	return optionFunc(func(o *options) {
		if cfg.DefaultBackend != "" {
			o.defaultBackend = cfg.DefaultBackend
		}
		for name, props := range cfg.Backends {
			o.backends[name] = maps.Clone(backend.PropertySource(props))
		}
	})
}

// WithBackend declares one backend.
func WithBackend(name string, props map[string]any) Option {
	return optionFunc(func(o *options) {
		o.backends[name] = maps.Clone(backend.PropertySource(props))
	})
}

// WithDefaultBackend names the backend used by types that do not pick one.
func WithDefaultBackend(name string) Option {
	return optionFunc(func(o *options) {
		o.defaultBackend = name
	})
}

// WithBackendFactory registers a backend implementation under a type name.
// It replaces a built-in type of the same name.
func WithBackendFactory(typeName string, f BackendFactory) Option {
	return optionFunc(func(o *options) {
		o.factories[typeName] = f
	})
}

// WithLogger sets the logger of the mapping and its backends.
// Pass nil to disable logging (default).
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(o *options) {
		if l == nil {
			l = zap.NewNop()
		}
		o.logger = l
	})
}

// WithObserver receives bulk, search and breaker observations. When it also
// implements MappingObserver it is told about the mapping build.
func WithObserver(obs Observer) Option {
	return optionFunc(func(o *options) {
		if obs == nil {
			obs = backend.NopObserver
		}
		o.observer = obs
	})
}

// WithStartTimeout bounds the time spent creating indexes. Default: 30s.
func WithStartTimeout(d time.Duration) Option {
	return optionFunc(func(o *options) {
		o.startTimeout = d
	})
}

// Register maps T. Its tags are read; declare adds programmatic declarations
// on top of them.
func Register[T any](declare ...func(*TypeStep)) Option {
	return optionFunc(func(o *options) {
		typ := reflect.TypeFor[T]()
		o.types = append(o.types, typ)
		if len(declare) == 0 {
			return
		}
		step := o.definition.Type(typ)
		for _, d := range declare {
			d(step)
		}
	})
}

// WithDefinition merges every declaration of d. Indexed types of d are mapped
// without an explicit Register.
func WithDefinition(d *Definition) Option {
	return optionFunc(func(o *options) {
		o.definition.Merge(d)
	})
}

// WithValueBridge registers a value bridge under name, for `bridge=name` tags.
func WithValueBridge[V, F any](name string, b ValueBridge[V, F]) Option {
	return optionFunc(func(o *options) {
		o.bridges.Value(name, bridge.Instance(bridge.WrapValue(b)))
	})
}

// WithIdentifierBridge registers an identifier bridge under name.
func WithIdentifierBridge[I any](name string, b IdentifierBridge[I]) Option {
	return optionFunc(func(o *options) {
		o.bridges.Identifier(name, bridge.Instance(bridge.WrapIdentifier(b)))
	})
}

// WithTypeBridge registers a type bridge under name.
func WithTypeBridge(name string, b TypeBridge) Option {
	return optionFunc(func(o *options) {
		o.bridges.Type(name, bridge.Instance(b))
	})
}

// WithRoutingKeyBridge registers a routing key bridge under name.
func WithRoutingKeyBridge(name string, b RoutingKeyBridge) Option {
	return optionFunc(func(o *options) {
		o.bridges.RoutingKey(name, bridge.Instance(b))
	})
}

// WithLoader sets how entities of T are loaded for search hits. The returned
// slice must be aligned with ids; a nil element marks an entity that no longer
// exists. Without a loader, entities are rebuilt from their projectable fields.
func WithLoader[T any](load func(ctx context.Context, ids []any) ([]*T, error)) Option {
	return optionFunc(func(o *options) {
		o.loaders[reflect.TypeFor[T]()] = loaderOf(load)
	})
}
