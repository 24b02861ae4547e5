package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDuplicateField signals two fields or objects declared at the same absolute path.
var ErrDuplicateField = errors.New("duplicate field path")

// FieldOptions are the storage and search options of one index field.
type FieldOptions struct {
	Analyzer    string
	Projectable bool
	Sortable    bool
	Searchable  bool
	MultiValued bool
}

// DefaultOptions returns searchable, projectable, single-valued options.
func DefaultOptions() FieldOptions {
	return FieldOptions{Projectable: true, Searchable: true}
}

// Field is one leaf field of an index schema.
type Field struct {
	Path    string
	Kind    Kind
	Options FieldOptions
}

// FieldReference is the handle bridges and processors use to write a field.
type FieldReference struct {
	field *Field
}

// Path returns the absolute field path.
func (r *FieldReference) Path() string { return r.field.Path }

// Kind returns the field kind.
func (r *FieldReference) Kind() Kind { return r.field.Kind }

// Options returns the field options.
func (r *FieldReference) Options() FieldOptions { return r.field.Options }

// ObjectReference is the handle of an object element.
type ObjectReference struct {
	Path        string
	MultiValued bool
}

// RootBuilder collects the schema of one index.
type RootBuilder struct {
	indexName    string
	fields       []*Field
	objects      []*ObjectReference
	paths        map[string]bool
	multiTenancy bool
	routing      bool
	root         *ElementBuilder
}

// NewRootBuilder starts a schema for the named index.
func NewRootBuilder(indexName string) *RootBuilder {
	r := &RootBuilder{indexName: indexName, paths: map[string]bool{}}
	r.root = &ElementBuilder{root: r}
	return r
}

// Root returns the root element.
func (r *RootBuilder) Root() *ElementBuilder { return r.root }

// IndexName returns the name of the index being described.
func (r *RootBuilder) IndexName() string { return r.indexName }

// EnableMultiTenancy marks documents as carrying a tenant identifier.
func (r *RootBuilder) EnableMultiTenancy() { r.multiTenancy = true }

// ExplicitRouting marks documents as carrying a routing key.
func (r *RootBuilder) ExplicitRouting() { r.routing = true }

// Build freezes the schema.
func (r *RootBuilder) Build() *Model {
	m := &Model{
		IndexName:    r.indexName,
		MultiTenancy: r.multiTenancy,
		Routing:      r.routing,
		fields:       make([]*Field, len(r.fields)),
		byPath:       make(map[string]*Field, len(r.fields)),
		objects:      append([]*ObjectReference(nil), r.objects...),
	}
	for i, f := range r.fields {
		cp := *f
		m.fields[i] = &cp
		m.byPath[f.Path] = &cp
	}
	return m
}

// ElementBuilder declares fields at one level of the document.
type ElementBuilder struct {
	root   *RootBuilder
	prefix string
	multi  bool
}

// Prefix returns the absolute path prefix of this element ("" at the root).
func (e *ElementBuilder) Prefix() string { return e.prefix }

// Field declares a leaf field and returns its reference.
func (e *ElementBuilder) Field(name string, kind Kind, opts FieldOptions) (*FieldReference, error) {
	path, err := e.claim(name)
	if err != nil {
		return nil, err
	}
	if e.multi {
		opts.MultiValued = true
	}
	if kind != KindText && opts.Analyzer != "" {
		return nil, fmt.Errorf("field %q: analyzer is only allowed on text fields", path)
	}
	f := &Field{Path: path, Kind: kind, Options: opts}
	e.root.fields = append(e.root.fields, f)
	return &FieldReference{field: f}, nil
}

// Object declares a nested object element.
func (e *ElementBuilder) Object(name string, multiValued bool) (*ElementBuilder, *ObjectReference, error) {
	path, err := e.claim(name)
	if err != nil {
		return nil, nil, err
	}
	ref := &ObjectReference{Path: path, MultiValued: multiValued || e.multi}
	e.root.objects = append(e.root.objects, ref)
	return &ElementBuilder{root: e.root, prefix: path + ".", multi: ref.MultiValued}, ref, nil
}

// Flattened returns an element writing into the same object with a name prefix.
func (e *ElementBuilder) Flattened(prefix string, multiValued bool) *ElementBuilder {
	return &ElementBuilder{root: e.root, prefix: e.prefix + prefix, multi: e.multi || multiValued}
}

func (e *ElementBuilder) claim(name string) (string, error) {
	if name == "" || strings.Contains(name, ".") {
		return "", fmt.Errorf("invalid field name %q", name)
	}
	path := e.prefix + name
	if e.root.paths[path] {
		return "", fmt.Errorf("%w: %s", ErrDuplicateField, path)
	}
	e.root.paths[path] = true
	return path, nil
}

// Model is an immutable index schema.
type Model struct {
	IndexName    string
	MultiTenancy bool
	Routing      bool
	fields       []*Field
	byPath       map[string]*Field
	objects      []*ObjectReference
}

// Fields returns the leaf fields in declaration order.
func (m *Model) Fields() []*Field { return m.fields }

// Objects returns the object elements in declaration order.
func (m *Model) Objects() []*ObjectReference { return m.objects }

// Field looks up a leaf field by absolute path.
func (m *Model) Field(path string) (*Field, bool) {
	f, ok := m.byPath[path]
	return f, ok
}
