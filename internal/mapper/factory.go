package mapper

import (
	"reflect"

	"go.uber.org/zap"

	"github.com/kailas-cloud/searchmap/internal/bridge"
	"github.com/kailas-cloud/searchmap/internal/failure"
	"github.com/kailas-cloud/searchmap/internal/schema"
	"github.com/kailas-cloud/searchmap/internal/typemodel"
)

// IndexBinder hands out the schema builder of the index a type maps to.
// An empty backend name selects the default backend.
type IndexBinder interface {
	BindIndex(typeName, indexName, backendName string) (*schema.RootBuilder, error)
}

// IndexBinderFunc adapts a function to IndexBinder.
type IndexBinderFunc func(typeName, indexName, backendName string) (*schema.RootBuilder, error)

// BindIndex implements IndexBinder.
func (f IndexBinderFunc) BindIndex(typeName, indexName, backendName string) (*schema.RootBuilder, error) {
	return f(typeName, indexName, backendName)
}

// Options configure a Factory. Zero values get defaults.
type Options struct {
	Introspector *typemodel.Introspector
	Resolver     *bridge.Resolver
	Bridges      *Bridges
	Definition   *Definition
	Logger       *zap.Logger
}

// Factory builds mappings.
type Factory struct {
	opts Options
}

// NewFactory returns a factory.
func NewFactory(opts Options) (*Factory, error) {
	if opts.Introspector == nil {
		i, err := typemodel.NewIntrospector(0)
		if err != nil {
			return nil, err
		}
		opts.Introspector = i
	}
	if opts.Resolver == nil {
		opts.Resolver = bridge.NewResolver()
	}
	if opts.Bridges == nil {
		opts.Bridges = NewBridges()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Factory{opts: opts}, nil
}

type rootBuild struct {
	node     *typeNodeBuilder
	schema   *schema.RootBuilder
	identity *identity
	td       *TypeDescriptor
}

// CreateMapping builds the mapping of every given type plus every indexed type
// of the definition. All binding failures are collected; on failure every
// bridge acquired so far is released and a *failure.MappingError is returned.
func (f *Factory) CreateMapping(types []reflect.Type, binder IndexBinder) (*Mapping, error) {
	ctx := &buildContext{
		introspector: f.opts.Introspector,
		resolver:     f.opts.Resolver,
		bridges:      f.opts.Bridges,
		definition:   f.opts.Definition,
		bridgeCtx:    &bridge.BuildContext{Introspector: f.opts.Introspector, Logger: f.opts.Logger},
		resources:    &resources{},
		logger:       f.opts.Logger,
	}
	failures := failure.NewCollector()

	var roots []*rootBuild
	for _, typ := range f.rootTypes(types) {
		if r := f.buildRoot(ctx, typ, failures, binder); r != nil {
			roots = append(roots, r)
		}
	}

	if failures.HasFailures() {
		for _, r := range roots {
			r.node.closeOnFailure()
		}
		if err := ctx.resources.closeAll(); err != nil {
			f.opts.Logger.Warn("close bridges after mapping failure", zap.Error(err))
		}
		return nil, failures.Err()
	}

	m := &Mapping{
		byType:    map[reflect.Type]*TypeMapping{},
		byIndex:   map[string]*TypeMapping{},
		resources: ctx.resources,
	}
	for _, r := range roots {
		if r.identity.routing != nil {
			r.schema.ExplicitRouting()
		}
		tm := &TypeMapping{
			name:      r.node.model.Name(),
			typ:       r.node.model.Type(),
			index:     r.td.Index,
			backend:   r.td.Backend,
			idPath:    r.identity.path,
			idProp:    r.identity.property,
			idBridge:  r.identity.bridge,
			routing:   r.identity.routing,
			processor: r.node.build(),
			schema:    r.schema.Build(),
			fields:    map[string]*fieldBinding{},
		}
		r.node.fields(tm.fields)
		m.types = append(m.types, tm)
		m.byType[tm.typ] = tm
		m.byIndex[tm.index] = tm
	}
	f.opts.Logger.Debug("mapping built", zap.Int("types", len(m.types)))
	return m, nil
}

func (f *Factory) rootTypes(types []reflect.Type) []reflect.Type {
	var out []reflect.Type
	seen := map[reflect.Type]bool{}
	add := func(t reflect.Type) {
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, t := range types {
		add(t)
	}
	if f.opts.Definition != nil {
		for _, td := range f.opts.Definition.types {
			if td.Indexed() {
				add(td.Type)
			}
		}
	}
	return out
}

func (f *Factory) buildRoot(ctx *buildContext, typ reflect.Type, failures *failure.Collector, binder IndexBinder) *rootBuild {
	model := ctx.introspector.TypeModel(typ)
	typeFailures := failures.WithContext(failure.Type(model.Name()))
	if !model.Raw().IsStruct() {
		typeFailures.Addf("only struct types can be indexed, got %s", typ)
		return nil
	}

	td := ctx.descriptor(model, typeFailures, "")
	if !td.Indexed() {
		typeFailures.Add(ErrNotIndexed)
		return nil
	}
	root, err := binder.BindIndex(model.Name(), td.Index, td.Backend)
	if err != nil {
		typeFailures.WithContext(failure.Index(td.Index)).Add(err)
		return nil
	}

	id := &identity{failures: typeFailures}
	node := newRootNode(ctx, model, typeFailures, root.Root(), id)
	contribute(node, td, ctx.bridges)

	if id.bridge == nil && !declaresIdentifier(td) {
		if pn := node.property("ID"); pn != nil {
			pn.IdentifierBridge(nil)
		} else {
			typeFailures.Add(ErrNoIdentifier)
		}
	}
	return &rootBuild{node: node, schema: root, identity: id, td: td}
}

func declaresIdentifier(td *TypeDescriptor) bool {
	for _, p := range td.Properties {
		for _, d := range p.Bindings {
			if d.Kind == DescriptorDocumentID {
				return true
			}
		}
	}
	return false
}
