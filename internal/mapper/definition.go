package mapper

import (
	"reflect"

	"github.com/kailas-cloud/searchmap/internal/schema"
)

// Definition declares mappings programmatically, as an alternative or a
// complement to struct tags. Declarations for a type are appended to the ones
// read from its tags.
type Definition struct {
	types []*TypeDescriptor
}

// NewDefinition returns an empty definition.
func NewDefinition() *Definition { return &Definition{} }

// Type starts (or resumes) the declaration of typ.
func (d *Definition) Type(typ reflect.Type) *TypeStep {
	for _, td := range d.types {
		if td.Type == typ {
			return &TypeStep{td: td}
		}
	}
	td := &TypeDescriptor{Type: typ}
	d.types = append(d.types, td)
	return &TypeStep{td: td}
}

func (d *Definition) lookup(typ reflect.Type) (*TypeDescriptor, bool) {
	if d == nil {
		return nil, false
	}
	for _, td := range d.types {
		if td.Type == typ {
			return td, true
		}
	}
	return nil, false
}

// Merge appends every declaration of other to d.
func (d *Definition) Merge(other *Definition) {
	if other == nil {
		return
	}
	for _, td := range other.types {
		if existing, ok := d.lookup(td.Type); ok {
			existing.merge(td)
			continue
		}
		d.types = append(d.types, td)
	}
}

// Types returns the declared types in declaration order.
func (d *Definition) Types() []reflect.Type {
	out := make([]reflect.Type, len(d.types))
	for i, td := range d.types {
		out[i] = td.Type
	}
	return out
}

// TypeStep declares type-level mapping.
type TypeStep struct {
	td *TypeDescriptor
}

// Indexed maps the type to its own index.
func (s *TypeStep) Indexed(index string) *TypeStep {
	s.td.Index = index
	return s
}

// Backend selects the backend of the type's index.
func (s *TypeStep) Backend(name string) *TypeStep {
	s.td.Backend = name
	return s
}

// Bridge attaches a named type bridge.
func (s *TypeStep) Bridge(name string) *TypeStep {
	s.td.Bindings = append(s.td.Bindings, Descriptor{Kind: DescriptorTypeBridge, Bridge: name})
	return s
}

// RoutingKey attaches a named routing key bridge.
func (s *TypeStep) RoutingKey(name string) *TypeStep {
	s.td.Bindings = append(s.td.Bindings, Descriptor{Kind: DescriptorRoutingKey, Bridge: name})
	return s
}

// Property starts declaring bindings on a property.
func (s *TypeStep) Property(name string) *PropertyStep {
	return &PropertyStep{TypeStep: s, name: name}
}

// FieldOption customizes a field declaration.
type FieldOption func(*Descriptor)

// Sortable makes the field sortable.
func Sortable() FieldOption { return func(d *Descriptor) { d.Options.Sortable = true } }

// NotProjectable keeps the field out of stored values.
func NotProjectable() FieldOption { return func(d *Descriptor) { d.Options.Projectable = false } }

// NotSearchable keeps the field out of the inverted index.
func NotSearchable() FieldOption { return func(d *Descriptor) { d.Options.Searchable = false } }

// Analyzer sets the analyzer of a text field.
func Analyzer(name string) FieldOption { return func(d *Descriptor) { d.Options.Analyzer = name } }

// WithBridge converts the property through a named value bridge.
func WithBridge(name string) FieldOption {
	return func(d *Descriptor) {
		d.Bridge = name
		if d.Kind == DescriptorField {
			d.Kind = DescriptorValueBridge
		}
	}
}

// PropertyStep declares property-level bindings. It embeds the type step so
// declarations can continue with another Property call.
type PropertyStep struct {
	*TypeStep
	name string
}

func (s *PropertyStep) add(d Descriptor, opts []FieldOption) *PropertyStep {
	for _, o := range opts {
		o(&d)
	}
	p := s.td.property(s.name)
	p.Bindings = append(p.Bindings, d)
	return s
}

func fieldDescriptor(kind DescriptorKind, name string) Descriptor {
	return Descriptor{Kind: kind, FieldName: name, Options: schema.DefaultOptions()}
}

// DocumentID uses the property as document identifier.
func (s *PropertyStep) DocumentID() *PropertyStep {
	return s.add(Descriptor{Kind: DescriptorDocumentID}, nil)
}

// DocumentIDWithBridge uses the property as identifier through a named identifier bridge.
func (s *PropertyStep) DocumentIDWithBridge(bridgeName string) *PropertyStep {
	return s.add(Descriptor{Kind: DescriptorDocumentID, Bridge: bridgeName}, nil)
}

// GenericField indexes the property with the default kind of its bridge.
func (s *PropertyStep) GenericField(name string, opts ...FieldOption) *PropertyStep {
	return s.add(fieldDescriptor(DescriptorField, name), opts)
}

// KeywordField indexes the property as a non-analyzed string.
func (s *PropertyStep) KeywordField(name string, opts ...FieldOption) *PropertyStep {
	d := fieldDescriptor(DescriptorField, name)
	d.FieldKind, d.HasKind = schema.KindKeyword, true
	return s.add(d, opts)
}

// FullTextField indexes the property as analyzed text.
func (s *PropertyStep) FullTextField(name string, opts ...FieldOption) *PropertyStep {
	d := fieldDescriptor(DescriptorField, name)
	d.FieldKind, d.HasKind = schema.KindText, true
	return s.add(d, opts)
}

// GeoPointField indexes the property as a geo point.
func (s *PropertyStep) GeoPointField(name string, opts ...FieldOption) *PropertyStep {
	d := fieldDescriptor(DescriptorGeoPoint, name)
	d.FieldKind, d.HasKind = schema.KindGeoPoint, true
	return s.add(d, opts)
}

// IndexedEmbedded embeds the property's own mapping. A prefix ending with
// "." creates an object field; depth 0 means unbounded but cycle-checked.
func (s *PropertyStep) IndexedEmbedded(prefix string, depth int) *PropertyStep {
	return s.add(Descriptor{Kind: DescriptorIndexedEmbedded, Prefix: prefix, Depth: depth}, nil)
}
