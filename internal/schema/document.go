package schema

import (
	"fmt"
	"reflect"
)

// DocumentElement is the write side of a document being built.
type DocumentElement interface {
	Add(ref *FieldReference, value any) error
	AddObject(ref *ObjectReference) DocumentElement
}

// Document is a backend-neutral document: values keyed by absolute field path.
type Document struct {
	values map[string][]any
	order  []string
	fields map[string]*Field
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{values: map[string][]any{}, fields: map[string]*Field{}}
}

// Add appends value to the referenced field. Nil values are skipped.
func (d *Document) Add(ref *FieldReference, value any) error {
	if value == nil {
		return nil
	}
	f := ref.field
	if vt := reflect.TypeOf(value); !f.Kind.Accepts(vt) {
		return fmt.Errorf("field %q (%s): unexpected value type %s", f.Path, f.Kind, vt)
	}
	existing, ok := d.values[f.Path]
	if ok && !f.Options.MultiValued {
		return fmt.Errorf("field %q: multiple values for a single-valued field", f.Path)
	}
	if !ok {
		d.order = append(d.order, f.Path)
		d.fields[f.Path] = f
	}
	d.values[f.Path] = append(existing, value)
	return nil
}

// AddObject returns the element to write the object's fields into. Paths are
// absolute, so the document itself serves every object.
func (d *Document) AddObject(_ *ObjectReference) DocumentElement {
	return d
}

// Paths returns the paths of fields holding values, in first-write order.
func (d *Document) Paths() []string { return d.order }

// Values returns every value of a field.
func (d *Document) Values(path string) []any { return d.values[path] }

// Value returns the first value of a field.
func (d *Document) Value(path string) (any, bool) {
	v := d.values[path]
	if len(v) == 0 {
		return nil, false
	}
	return v[0], true
}

// FieldOf returns the schema field a path was written through.
func (d *Document) FieldOf(path string) (*Field, bool) {
	f, ok := d.fields[path]
	return f, ok
}

// Len returns the number of fields holding values.
func (d *Document) Len() int { return len(d.order) }
