package typemodel

import (
	"reflect"
)

// GenericTypeModel is a type as seen from a mapping root: raw structure plus
// decomposition of container types.
type GenericTypeModel interface {
	Raw() *RawTypeModel
	Type() reflect.Type
	Name() string
	SuperType(candidate reflect.Type) bool
	Annotation(key string) (string, bool)
	Property(name string) (*PropertyModel, bool)
	DeclaredProperties() []*PropertyModel
	Properties() []*PropertyModel
	// PropertyType returns the model of a property's declared type.
	PropertyType(p *PropertyModel) GenericTypeModel
	Cast(v any) (any, error)
	// TypeArgument decomposes a container: Slice/Array 0 is the element,
	// Map 0 the key and 1 the value, Pointer 0 the element.
	TypeArgument(container reflect.Kind, index int) (reflect.Type, bool)
	// ArrayElementType returns the element type of arrays and slices.
	ArrayElementType() (reflect.Type, bool)
	String() string
}

// ExactTypeModel resolves everything against the concrete type.
type ExactTypeModel struct {
	introspector *Introspector
	raw          *RawTypeModel
}

func (m *ExactTypeModel) Raw() *RawTypeModel { return m.raw }
func (m *ExactTypeModel) Type() reflect.Type { return m.raw.Type() }
func (m *ExactTypeModel) Name() string { return m.raw.Name() }
func (m *ExactTypeModel) SuperType(c reflect.Type) bool { return m.raw.SuperType(c) }
func (m *ExactTypeModel) Annotation(key string) (string, bool) { return m.raw.Annotation(key) }
func (m *ExactTypeModel) Property(name string) (*PropertyModel, bool) { return m.raw.Property(name) }
func (m *ExactTypeModel) DeclaredProperties() []*PropertyModel { return m.raw.DeclaredProperties() }
func (m *ExactTypeModel) Properties() []*PropertyModel { return m.raw.Properties() }
func (m *ExactTypeModel) Cast(v any) (any, error) { return m.raw.Cast(v) }
func (m *ExactTypeModel) String() string { return m.raw.String() }

func (m *ExactTypeModel) PropertyType(p *PropertyModel) GenericTypeModel {
	return m.introspector.TypeModel(p.Type)
}

func (m *ExactTypeModel) TypeArgument(container reflect.Kind, index int) (reflect.Type, bool) {
	return typeArgument(m.raw.Type(), container, index)
}

func (m *ExactTypeModel) ArrayElementType() (reflect.Type, bool) {
	return arrayElementType(m.raw.Type())
}

// ErasingTypeModel takes its properties from a raw model that may be a super
// type of the modeled type. Property types are modeled from the raw type's
// declarations, so anything the concrete type narrows is not seen. Container
// decomposition is still done against the concrete type.
type ErasingTypeModel struct {
	introspector *Introspector
	raw          *RawTypeModel
	typ          reflect.Type
}

func (m *ErasingTypeModel) Raw() *RawTypeModel { return m.raw }
func (m *ErasingTypeModel) Type() reflect.Type { return m.typ }
func (m *ErasingTypeModel) Name() string { return m.raw.Name() }
func (m *ErasingTypeModel) SuperType(c reflect.Type) bool { return m.raw.SuperType(c) }
func (m *ErasingTypeModel) Annotation(key string) (string, bool) { return m.raw.Annotation(key) }
func (m *ErasingTypeModel) Property(name string) (*PropertyModel, bool) { return m.raw.Property(name) }
func (m *ErasingTypeModel) DeclaredProperties() []*PropertyModel { return m.raw.DeclaredProperties() }
func (m *ErasingTypeModel) Properties() []*PropertyModel { return m.raw.Properties() }

func (m *ErasingTypeModel) Cast(v any) (any, error) {
	return CastTo(m.typ, v)
}

func (m *ErasingTypeModel) PropertyType(p *PropertyModel) GenericTypeModel {
	raw := m.introspector.RawTypeModel(p.Type)
	return m.introspector.ErasingTypeModel(raw, p.Type)
}

func (m *ErasingTypeModel) TypeArgument(container reflect.Kind, index int) (reflect.Type, bool) {
	return typeArgument(m.typ, container, index)
}

func (m *ErasingTypeModel) ArrayElementType() (reflect.Type, bool) {
	return arrayElementType(m.typ)
}

func (m *ErasingTypeModel) String() string {
	if m.raw.Type() == m.typ {
		return m.typ.String()
	}
	return m.raw.String() + " (erasing " + m.typ.String() + ")"
}

func typeArgument(t reflect.Type, container reflect.Kind, index int) (reflect.Type, bool) {
	if t.Kind() != container {
		return nil, false
	}
	switch container {
	case reflect.Slice, reflect.Array, reflect.Pointer, reflect.Chan:
		if index == 0 {
			return t.Elem(), true
		}
	case reflect.Map:
		switch index {
		case 0:
			return t.Key(), true
		case 1:
			return t.Elem(), true
		}
	}
	return nil, false
}

func arrayElementType(t reflect.Type) (reflect.Type, bool) {
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		return t.Elem(), true
	default:
		return nil, false
	}
}
