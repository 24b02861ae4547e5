package mapper

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/searchmap/internal/bridge"
	"github.com/kailas-cloud/searchmap/internal/failure"
	"github.com/kailas-cloud/searchmap/internal/schema"
	"github.com/kailas-cloud/searchmap/internal/typemodel"
)

// buildContext is shared by every node of one mapping build.
type buildContext struct {
	introspector *typemodel.Introspector
	resolver     *bridge.Resolver
	bridges      *Bridges
	definition   *Definition
	bridgeCtx    *bridge.BuildContext
	resources    *resources
	logger       *zap.Logger
}

func (c *buildContext) descriptor(model typemodel.GenericTypeModel, failures *failure.Collector, pathPrefix string) *TypeDescriptor {
	td := descriptorsFromTags(model, failures, pathPrefix)
	if extra, ok := c.definition.lookup(model.Type()); ok {
		td.merge(extra)
	}
	return td
}

// hop is one property step from the root entity to a value.
type hop struct {
	prop      *typemodel.PropertyModel
	container bool
}

// unbounded marks an embedding budget without a depth limit.
const unbounded = -1

// typeNodeBuilder collects the bindings of a type at one place of the tree.
type typeNodeBuilder struct {
	ctx          *buildContext
	model        typemodel.GenericTypeModel
	rootFailures *failure.Collector
	failures     *failure.Collector
	element      *schema.ElementBuilder
	identity     IdentityCollector
	path         string
	chain        []hop
	stack        []reflect.Type
	budget       int

	typeBridges []bridge.TypeBridge
	acquired    []any
	properties  []*propertyNodeBuilder
}

func newRootNode(ctx *buildContext, model typemodel.GenericTypeModel, failures *failure.Collector,
	element *schema.ElementBuilder, id IdentityCollector) *typeNodeBuilder {
	return &typeNodeBuilder{
		ctx:          ctx,
		model:        model,
		rootFailures: failures,
		failures:     failures,
		element:      element,
		identity:     id,
		stack:        []reflect.Type{model.Type()},
		budget:       unbounded,
	}
}

func (n *typeNodeBuilder) FailureCollector() *failure.Collector { return n.failures }

func (n *typeNodeBuilder) Bridge(builder bridge.Builder[bridge.TypeBridge]) {
	holder, err := builder.Build(n.ctx.bridgeCtx)
	if err != nil {
		n.failures.Add(fmt.Errorf("build type bridge: %w", err))
		return
	}
	b := holder.Get()
	n.acquire(b, holder)
	bctx := &bridge.TypeBindingContext{
		BridgedElement: n.model,
		Schema:         n.element,
		Introspector:   n.ctx.introspector,
	}
	if err := n.ctx.resources.bind(b, func() error { return b.Bind(bctx) }); err != nil {
		n.failures.Add(fmt.Errorf("bind type bridge %T: %w", b, err))
		return
	}
	n.typeBridges = append(n.typeBridges, b)
}

func (n *typeNodeBuilder) RoutingKeyBridge(builder bridge.Builder[bridge.RoutingKeyBridge]) {
	if n.identity == nil {
		n.ctx.logger.Debug("routing key bridge ignored on embedded type",
			zap.String("type", n.model.Name()), zap.String("path", n.path))
		return
	}
	holder, err := builder.Build(n.ctx.bridgeCtx)
	if err != nil {
		n.failures.Add(fmt.Errorf("build routing key bridge: %w", err))
		return
	}
	b := holder.Get()
	n.acquire(b, holder)
	bctx := &bridge.RoutingKeyBindingContext{BridgedElement: n.model}
	if err := n.ctx.resources.bind(b, func() error { return bridge.Bind(b, bctx) }); err != nil {
		n.failures.Add(fmt.Errorf("bind routing key bridge %T: %w", b, err))
		return
	}
	n.identity.RoutingKeyBridge(b)
}

func (n *typeNodeBuilder) Property(name string) PropertyNode {
	if pn := n.property(name); pn != nil {
		return pn
	}
	n.failures.Add(fmt.Errorf("%w: %s has no property %q", typemodel.ErrNoSuchProperty, n.model.Name(), name))
	return nil
}

func (n *typeNodeBuilder) property(name string) *propertyNodeBuilder {
	for _, p := range n.properties {
		if p.prop.Name == name {
			return p
		}
	}
	prop, ok := n.model.Property(name)
	if !ok {
		return nil
	}
	path := n.path + "." + prop.Name
	p := &propertyNodeBuilder{
		parent:   n,
		prop:     prop,
		model:    n.model.PropertyType(prop),
		path:     path,
		failures: n.rootFailures.WithContext(failure.Path(path)),
	}
	n.properties = append(n.properties, p)
	return p
}

func (n *typeNodeBuilder) acquire(instance any, holder interface{ Close() error }) {
	n.ctx.resources.own(instance, holder)
	n.acquired = append(n.acquired, instance)
}

// contribute walks the descriptors of the node's type.
func (n *typeNodeBuilder) contribute() {
	td := n.ctx.descriptor(n.model, n.failures, n.path)
	contribute(n, td, n.ctx.bridges)
}

// closeOnFailure releases every bridge acquired by this node and its children.
func (n *typeNodeBuilder) closeOnFailure() {
	for _, p := range n.properties {
		p.closeOnFailure()
	}
	for _, instance := range n.acquired {
		if err := n.ctx.resources.release(instance); err != nil {
			n.ctx.logger.Warn("close bridge after mapping failure", zap.Error(err))
		}
	}
}

func (n *typeNodeBuilder) build() *typeProcessor {
	tp := &typeProcessor{typeBridges: n.typeBridges}
	for _, p := range n.properties {
		if pp := p.build(); pp != nil {
			tp.properties = append(tp.properties, pp)
		}
	}
	return tp
}

// fields lists the value bindings of the subtree, for inverse conversions.
func (n *typeNodeBuilder) fields(out map[string]*fieldBinding) {
	for _, p := range n.properties {
		for _, v := range p.values {
			out[v.ref.Path()] = &fieldBinding{
				ref:    v.ref,
				bridge: v.bridge,
				hops:   append(slices.Clone(n.chain), hop{prop: p.prop, container: v.container}),
			}
		}
		for _, e := range p.embedded {
			e.node.fields(out)
		}
	}
}

type valueNode struct {
	bridge    bridge.AnyValueBridge
	ref       *schema.FieldReference
	container bool
}

type embeddedNode struct {
	node      *typeNodeBuilder
	object    *schema.ObjectReference
	container bool
}

// propertyNodeBuilder collects the bindings of one property.
type propertyNodeBuilder struct {
	parent   *typeNodeBuilder
	prop     *typemodel.PropertyModel
	model    typemodel.GenericTypeModel
	path     string
	failures *failure.Collector

	acquired []any
	values   []*valueNode
	embedded []*embeddedNode
}

func (p *propertyNodeBuilder) FailureCollector() *failure.Collector { return p.failures }

func (p *propertyNodeBuilder) IdentifierBridge(builder bridge.Builder[bridge.AnyIdentifierBridge]) {
	if p.parent.identity == nil {
		return
	}
	elem, container := typemodel.Element(p.model)
	if container {
		p.failures.Addf("document identifier cannot be a container of type %s", p.model)
		return
	}

	var b bridge.AnyIdentifierBridge
	if builder == nil {
		var err error
		if b, err = p.parent.ctx.resolver.Identifier(elem.Type()); err != nil {
			p.failures.Add(err)
			return
		}
	} else {
		holder, err := builder.Build(p.parent.ctx.bridgeCtx)
		if err != nil {
			p.failures.Add(fmt.Errorf("build identifier bridge: %w", err))
			return
		}
		b = holder.Get()
		p.acquire(b.Bridge(), holder)
	}

	if !elem.Type().AssignableTo(b.IdentifierType()) {
		p.failures.Addf("identifier bridge expects %s, property type is %s", b.IdentifierType(), elem.Type())
		return
	}
	bctx := &bridge.IdentifierBindingContext{BridgedElement: elem, PropertyPath: p.path}
	if err := p.parent.ctx.resources.bind(b.Bridge(), func() error { return bridge.Bind(b.Bridge(), bctx) }); err != nil {
		p.failures.Add(fmt.Errorf("bind identifier bridge: %w", err))
		return
	}
	p.parent.identity.IdentifierBridge(p.path, p.prop, b)
}

func (p *propertyNodeBuilder) ValueBridge(builder bridge.Builder[bridge.AnyValueBridge], fieldName string,
	kind *schema.Kind, opts schema.FieldOptions) {
	elem, container := typemodel.Element(p.model)
	if fieldName == "" {
		fieldName = defaultFieldName(p.prop.Name)
	}

	var b bridge.AnyValueBridge
	if builder == nil {
		var err error
		if b, err = p.parent.ctx.resolver.Value(elem.Type()); err != nil {
			p.failures.Add(err)
			return
		}
	} else {
		holder, err := builder.Build(p.parent.ctx.bridgeCtx)
		if err != nil {
			p.failures.Add(fmt.Errorf("build value bridge: %w", err))
			return
		}
		b = holder.Get()
		p.acquire(b.Bridge(), holder)
	}

	if !valueAssignable(elem.Type(), b.ValueType()) {
		p.failures.Addf("value bridge %T expects %s, property type is %s", b.Bridge(), b.ValueType(), elem.Type())
		return
	}

	var k schema.Kind
	if kind != nil {
		k = *kind
	} else {
		var ok bool
		if k, ok = schema.DefaultKind(b.IndexedType()); !ok {
			p.failures.Addf("no field kind accepts indexed type %s", b.IndexedType())
			return
		}
	}

	bctx := &bridge.ValueBindingContext{
		BridgedElement: elem,
		FieldName:      fieldName,
		Kind:           k,
		Options:        opts,
		IndexedType:    b.IndexedType(),
	}
	if err := p.parent.ctx.resources.bind(b.Bridge(), func() error { return bridge.Bind(b.Bridge(), bctx) }); err != nil {
		p.failures.Add(fmt.Errorf("bind value bridge %T: %w", b.Bridge(), err))
		return
	}
	if !bctx.Kind.Accepts(b.IndexedType()) {
		p.failures.Addf("field %q: kind %s does not accept indexed type %s", bctx.FieldName, bctx.Kind, b.IndexedType())
		return
	}
	if container {
		bctx.Options.MultiValued = true
	}

	ref, err := p.parent.element.Field(bctx.FieldName, bctx.Kind, bctx.Options)
	if err != nil {
		p.failures.Add(err)
		return
	}
	p.values = append(p.values, &valueNode{bridge: b, ref: ref, container: container})
}

func (p *propertyNodeBuilder) IndexedEmbedded(prefix string, depth int) {
	n := p.parent
	elem, container := typemodel.Element(p.model)
	if !elem.Raw().IsStruct() {
		p.failures.Addf("indexed-embedded requires a struct type, got %s", p.model)
		return
	}
	if prefix == "" {
		prefix = defaultFieldName(p.prop.Name) + "."
	}

	if n.budget == 0 {
		return
	}
	allowed := n.budget
	if depth > 0 && (allowed == unbounded || depth < allowed) {
		allowed = depth
	}
	if allowed == unbounded && slices.Contains(n.stack, elem.Type()) {
		p.failures.Add(fmt.Errorf("%w: %s", ErrCyclicEmbedding, elem.Type()))
		return
	}
	childBudget := unbounded
	if allowed != unbounded {
		childBudget = allowed - 1
	}

	var (
		element *schema.ElementBuilder
		object  *schema.ObjectReference
	)
	if name, ok := strings.CutSuffix(prefix, "."); ok {
		var err error
		if element, object, err = n.element.Object(name, container); err != nil {
			p.failures.Add(err)
			return
		}
	} else {
		element = n.element.Flattened(prefix, container)
	}

	child := &typeNodeBuilder{
		ctx:          n.ctx,
		model:        elem,
		rootFailures: n.rootFailures,
		failures:     p.failures,
		element:      element,
		path:         p.path,
		chain:        append(slices.Clone(n.chain), hop{prop: p.prop, container: container}),
		stack:        append(slices.Clone(n.stack), elem.Type()),
		budget:       childBudget,
	}
	child.contribute()
	p.embedded = append(p.embedded, &embeddedNode{node: child, object: object, container: container})
}

func (p *propertyNodeBuilder) acquire(instance any, holder interface{ Close() error }) {
	p.parent.ctx.resources.own(instance, holder)
	p.acquired = append(p.acquired, instance)
}

func (p *propertyNodeBuilder) closeOnFailure() {
	for _, e := range p.embedded {
		e.node.closeOnFailure()
	}
	for _, instance := range p.acquired {
		if err := p.parent.ctx.resources.release(instance); err != nil {
			p.parent.ctx.logger.Warn("close bridge after mapping failure",
				zap.String("path", p.path), zap.Error(err))
		}
	}
}

func (p *propertyNodeBuilder) build() *propertyProcessor {
	if len(p.values) == 0 && len(p.embedded) == 0 {
		return nil
	}
	pp := &propertyProcessor{prop: p.prop, path: p.path}
	for _, v := range p.values {
		pp.values = append(pp.values, valueProcessor{bridge: v.bridge, ref: v.ref, container: v.container})
	}
	for _, e := range p.embedded {
		pp.embedded = append(pp.embedded, embeddedProcessor{
			object:    e.object,
			container: e.container,
			processor: e.node.build(),
		})
	}
	return pp
}

// valueAssignable accepts named types over the same kind as the bridge value type.
func valueAssignable(from, to reflect.Type) bool {
	return from.AssignableTo(to) || (from.Kind() == to.Kind() && from.ConvertibleTo(to))
}
