package typemodel

import (
	"reflect"
	"strings"
)

// TagKey is the struct tag key read for mapping metadata.
const TagKey = "search"

// PropertyModel describes one exported struct field, declared or promoted.
type PropertyModel struct {
	Name      string
	Declaring reflect.Type
	Index     []int
	Type      reflect.Type
	Tag       reflect.StructTag
	Promoted  bool
}

// Value reads the property from a struct value (or pointer to one).
// The second result is false when an embedded pointer on the way is nil.
func (p *PropertyModel) Value(v reflect.Value) (reflect.Value, bool) {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, false
	}
	f, err := v.FieldByIndexErr(p.Index)
	if err != nil {
		return reflect.Value{}, false
	}
	return f, true
}

// Settable returns the addressable field for writing, allocating nil embedded pointers.
func (p *PropertyModel) Settable(v reflect.Value) (reflect.Value, bool) {
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct || !v.CanAddr() {
		return reflect.Value{}, false
	}
	for i, x := range p.Index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				if !v.CanSet() {
					return reflect.Value{}, false
				}
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v, v.CanSet()
}

// TagValue returns the mapping tag of the property.
func (p *PropertyModel) TagValue() (string, bool) {
	return p.Tag.Lookup(TagKey)
}

func (p *PropertyModel) String() string {
	return p.Declaring.Name() + "." + p.Name
}

// RawTypeModel is the reflective model of one concrete Go type.
// It is immutable once built and shared through the Introspector cache.
type RawTypeModel struct {
	typ         reflect.Type
	structType  reflect.Type
	declared    []*PropertyModel
	all         []*PropertyModel
	byName      map[string]*PropertyModel
	annotations []reflect.StructTag
	embedded    []reflect.Type
}

func newRawTypeModel(typ reflect.Type) *RawTypeModel {
	m := &RawTypeModel{typ: typ, byName: map[string]*PropertyModel{}}
	st := typ
	for st.Kind() == reflect.Pointer {
		st = st.Elem()
	}
	if st.Kind() != reflect.Struct {
		return m
	}
	m.structType = st

	for i := range st.NumField() {
		f := st.Field(i)
		switch {
		case f.Name == "_":
			m.annotations = append(m.annotations, f.Tag)
		case f.Anonymous:
			ft := f.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				m.embedded = append(m.embedded, ft)
			}
		case f.IsExported():
			m.declared = append(m.declared, &PropertyModel{
				Name:      f.Name,
				Declaring: st,
				Index:     f.Index,
				Type:      f.Type,
				Tag:       f.Tag,
			})
		}
	}

	for _, f := range reflect.VisibleFields(st) {
		if f.Anonymous || !f.IsExported() || f.Name == "_" {
			continue
		}
		p := &PropertyModel{
			Name:      f.Name,
			Declaring: declaringType(st, f.Index),
			Index:     f.Index,
			Type:      f.Type,
			Tag:       f.Tag,
			Promoted:  len(f.Index) > 1,
		}
		m.all = append(m.all, p)
		m.byName[f.Name] = p
	}
	return m
}

func declaringType(root reflect.Type, index []int) reflect.Type {
	t := root
	for _, i := range index[:len(index)-1] {
		t = t.Field(i).Type
		if t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
	}
	return t
}

// Type returns the modeled reflect.Type.
func (m *RawTypeModel) Type() reflect.Type { return m.typ }

// Name returns the short type name, falling back to the full string for unnamed types.
func (m *RawTypeModel) Name() string {
	if m.structType != nil && m.structType.Name() != "" {
		return m.structType.Name()
	}
	if m.typ.Name() != "" {
		return m.typ.Name()
	}
	return m.typ.String()
}

// IsStruct reports whether the type (after pointer indirection) is a struct.
func (m *RawTypeModel) IsStruct() bool { return m.structType != nil }

// DeclaredProperties returns the exported non-embedded fields in declaration order.
func (m *RawTypeModel) DeclaredProperties() []*PropertyModel { return m.declared }

// Properties returns declared and promoted properties, as visible to a selector.
func (m *RawTypeModel) Properties() []*PropertyModel { return m.all }

// Property looks a property up by Go field name, following promotion rules.
func (m *RawTypeModel) Property(name string) (*PropertyModel, bool) {
	p, ok := m.byName[name]
	if ok {
		return p, true
	}
	for _, cand := range m.all {
		if strings.EqualFold(cand.Name, name) {
			return cand, true
		}
	}
	return nil, false
}

// Embedded returns the directly embedded struct types.
func (m *RawTypeModel) Embedded() []reflect.Type { return m.embedded }

// Annotation returns the first type-level tag value for key, read from blank fields.
func (m *RawTypeModel) Annotation(key string) (string, bool) {
	for _, tag := range m.annotations {
		if v, ok := tag.Lookup(key); ok {
			return v, true
		}
	}
	return "", false
}

// Annotations returns every type-level tag value for key.
func (m *RawTypeModel) Annotations(key string) []string {
	var out []string
	for _, tag := range m.annotations {
		if v, ok := tag.Lookup(key); ok {
			out = append(out, v)
		}
	}
	return out
}

// SuperType reports whether candidate is this type, a transitively embedded
// struct, or an interface implemented by the type or a pointer to it.
func (m *RawTypeModel) SuperType(candidate reflect.Type) bool {
	if candidate == m.typ || (m.structType != nil && candidate == m.structType) {
		return true
	}
	if candidate.Kind() == reflect.Interface {
		return m.typ.Implements(candidate) || reflect.PointerTo(m.typ).Implements(candidate)
	}
	if m.structType == nil {
		return false
	}
	return embeds(m.structType, candidate, map[reflect.Type]bool{})
}

func embeds(st, candidate reflect.Type, seen map[reflect.Type]bool) bool {
	if seen[st] {
		return false
	}
	seen[st] = true
	for i := range st.NumField() {
		f := st.Field(i)
		if !f.Anonymous {
			continue
		}
		ft := f.Type
		if ft == candidate {
			return true
		}
		if ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		if ft == candidate {
			return true
		}
		if ft.Kind() == reflect.Struct && embeds(ft, candidate, seen) {
			return true
		}
	}
	return false
}

// Cast narrows v to the modeled type.
func (m *RawTypeModel) Cast(v any) (any, error) {
	return CastTo(m.typ, v)
}

func (m *RawTypeModel) String() string { return m.typ.String() }
