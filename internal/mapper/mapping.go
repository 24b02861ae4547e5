package mapper

import (
	"fmt"
	"reflect"

	"github.com/kailas-cloud/searchmap/internal/bridge"
	"github.com/kailas-cloud/searchmap/internal/closer"
	"github.com/kailas-cloud/searchmap/internal/failure"
	"github.com/kailas-cloud/searchmap/internal/schema"
	"github.com/kailas-cloud/searchmap/internal/typemodel"
	"github.com/kailas-cloud/searchmap/internal/work"
)

// IndexedDocument is an entity converted for indexing.
type IndexedDocument struct {
	ID       string
	Routing  string
	TenantID string
	Document *schema.Document
}

type fieldBinding struct {
	ref    *schema.FieldReference
	bridge bridge.AnyValueBridge
	hops   []hop
}

// TypeMapping is the runtime mapping of one indexed type.
type TypeMapping struct {
	name      string
	typ       reflect.Type
	index     string
	backend   string
	idPath    string
	idProp    *typemodel.PropertyModel
	idBridge  bridge.AnyIdentifierBridge
	routing   bridge.RoutingKeyBridge
	processor *typeProcessor
	schema    *schema.Model
	fields    map[string]*fieldBinding
}

// Name returns the short name of the mapped type.
func (m *TypeMapping) Name() string { return m.name }

// Type returns the mapped struct type.
func (m *TypeMapping) Type() reflect.Type { return m.typ }

// Index returns the index name.
func (m *TypeMapping) Index() string { return m.index }

// Backend returns the backend name, empty for the default backend.
func (m *TypeMapping) Backend() string { return m.backend }

// Schema returns the index schema built for the type.
func (m *TypeMapping) Schema() *schema.Model { return m.schema }

// IdentifierBridge returns the bridge of the document identifier.
func (m *TypeMapping) IdentifierBridge() bridge.AnyIdentifierBridge { return m.idBridge }

// IdentifierPath returns the model path of the identifier property.
func (m *TypeMapping) IdentifierPath() string { return m.idPath }

// FieldBridge returns the value bridge and schema field behind an index field path.
func (m *TypeMapping) FieldBridge(path string) (bridge.AnyValueBridge, *schema.Field, bool) {
	fb, ok := m.fields[path]
	if !ok {
		return nil, nil, false
	}
	f, _ := m.schema.Field(path)
	return fb.bridge, f, true
}

func (m *TypeMapping) value(entity any) (reflect.Value, error) {
	v := reflect.ValueOf(entity)
	if v.Kind() == reflect.Pointer && v.Type().Elem() == m.typ {
		if v.IsNil() {
			return reflect.Value{}, fmt.Errorf("%s: nil entity", m.name)
		}
		v = v.Elem()
	}
	if !v.IsValid() || v.Type() != m.typ {
		return reflect.Value{}, &typemodel.CastError{Expected: m.typ, Actual: reflect.TypeOf(entity)}
	}
	return v, nil
}

func (m *TypeMapping) identifier(v reflect.Value, tenantID string) (any, string, error) {
	idv, ok := m.idProp.Value(v)
	if !ok {
		return nil, "", fmt.Errorf("%s: identifier %s is not reachable", m.name, m.idPath)
	}
	id := idv.Interface()
	docID, err := m.idBridge.ToDocumentIdentifier(id, &bridge.IdentifierContext{TenantID: tenantID})
	if err != nil {
		return nil, "", failure.WithContext(err, failure.Type(m.name), failure.Path(m.idPath))
	}
	return id, docID, nil
}

// DocumentID returns the document identifier of an entity.
func (m *TypeMapping) DocumentID(entity any) (string, error) {
	v, err := m.value(entity)
	if err != nil {
		return "", err
	}
	_, docID, err := m.identifier(v, "")
	return docID, err
}

// ToDocument converts an entity, given as a value or a pointer, into a document.
func (m *TypeMapping) ToDocument(entity any, tenantID string) (*IndexedDocument, error) {
	v, err := m.value(entity)
	if err != nil {
		return nil, err
	}
	id, docID, err := m.identifier(v, tenantID)
	if err != nil {
		return nil, err
	}
	doc := schema.NewDocument()
	if err := m.processor.process(doc, v, newProcessContext(tenantID)); err != nil {
		return nil, failure.WithContext(err, failure.Type(m.name))
	}
	out := &IndexedDocument{ID: docID, TenantID: tenantID, Document: doc}
	if m.routing != nil {
		if out.Routing, err = m.routing.ToRoutingKey(tenantID, id, v.Interface()); err != nil {
			return nil, failure.WithContext(fmt.Errorf("routing key: %w", err), failure.Type(m.name))
		}
	}
	return out, nil
}

// IndexWork converts an entity into a bulk index work.
func (m *TypeMapping) IndexWork(entity any, tenantID string) (work.DocumentWork, error) {
	doc, err := m.ToDocument(entity, tenantID)
	if err != nil {
		return work.DocumentWork{}, err
	}
	return work.DocumentWork{
		Op:         work.OpIndex,
		Index:      m.index,
		DocumentID: doc.ID,
		TenantID:   tenantID,
		Routing:    doc.Routing,
		Document:   doc.Document,
	}, nil
}

// DeleteWork builds a bulk delete work from an entity identifier.
func (m *TypeMapping) DeleteWork(id any, tenantID string) (work.DocumentWork, error) {
	idCtx := &bridge.IdentifierContext{TenantID: tenantID}
	docID, err := m.idBridge.ToDocumentIdentifier(id, idCtx)
	if err != nil {
		return work.DocumentWork{}, failure.WithContext(err, failure.Type(m.name), failure.Path(m.idPath))
	}
	w := work.DocumentWork{Op: work.OpDelete, Index: m.index, DocumentID: docID, TenantID: tenantID}
	if m.routing != nil {
		if w.Routing, err = m.routing.ToRoutingKey(tenantID, id, nil); err != nil {
			return work.DocumentWork{}, fmt.Errorf("routing key: %w", err)
		}
	}
	return w, nil
}

// IdentifierFromDocument converts a document identifier back to the entity identifier.
func (m *TypeMapping) IdentifierFromDocument(documentID, tenantID string) (any, error) {
	id, err := m.idBridge.FromDocumentIdentifier(documentID, &bridge.IdentifierContext{TenantID: tenantID})
	if err != nil {
		return nil, failure.WithContext(err, failure.Type(m.name), failure.Path(m.idPath))
	}
	return id, nil
}

// FieldValue converts an index-level value of a field back to the property value.
func (m *TypeMapping) FieldValue(path string, raw any, tenantID string) (any, error) {
	fb, ok := m.fields[path]
	if !ok {
		return nil, fmt.Errorf("%s: unknown field %q", m.name, path)
	}
	return fb.bridge.FromIndexedValue(raw, &bridge.ValueContext{TenantID: tenantID})
}

// FromDocument rebuilds an entity from its identifier and stored field values.
// Only projectable fields reachable without crossing a container of objects are
// restored; the result is a pointer to a new value of the mapped type.
func (m *TypeMapping) FromDocument(documentID string, fields map[string][]any, tenantID string) (any, error) {
	root := reflect.New(m.typ)
	id, err := m.IdentifierFromDocument(documentID, tenantID)
	if err != nil {
		return nil, err
	}
	if f, ok := m.idProp.Settable(root); ok {
		if err := assign(f, reflect.ValueOf(id)); err != nil {
			return nil, failure.WithContext(err, failure.Type(m.name), failure.Path(m.idPath))
		}
	}

	vctx := &bridge.ValueContext{TenantID: tenantID}
	for path, raws := range fields {
		fb, ok := m.fields[path]
		if !ok || len(raws) == 0 || !fb.ref.Options().Projectable {
			continue
		}
		target, ok := settable(root, fb.hops)
		if !ok {
			continue
		}
		last := fb.hops[len(fb.hops)-1]
		for _, raw := range raws {
			v, err := fb.bridge.FromIndexedValue(raw, vctx)
			if err != nil {
				return nil, failure.WithContext(err, failure.Type(m.name), failure.Field(path))
			}
			if last.container {
				err = appendElement(target, reflect.ValueOf(v))
			} else {
				err = assign(target, reflect.ValueOf(v))
			}
			if err != nil {
				return nil, failure.WithContext(err, failure.Type(m.name), failure.Field(path))
			}
			if !last.container {
				break
			}
		}
	}
	return root.Interface(), nil
}

// settable walks hops from the root pointer, allocating nil pointers, and
// returns the final property. Intermediate containers are not walked.
func settable(root reflect.Value, hops []hop) (reflect.Value, bool) {
	cur := root
	for i, h := range hops {
		if i < len(hops)-1 && h.container {
			return reflect.Value{}, false
		}
		f, ok := h.prop.Settable(cur)
		if !ok {
			return reflect.Value{}, false
		}
		if i == len(hops)-1 {
			return f, true
		}
		if f.Kind() == reflect.Pointer {
			if f.IsNil() {
				f.Set(reflect.New(f.Type().Elem()))
			}
			f = f.Elem()
		}
		cur = f.Addr()
	}
	return reflect.Value{}, false
}

func assign(target, v reflect.Value) error {
	if !v.IsValid() {
		return nil
	}
	t := target.Type()
	if t.Kind() == reflect.Pointer && !v.Type().AssignableTo(t) {
		p := reflect.New(t.Elem())
		if err := assign(p.Elem(), v); err != nil {
			return err
		}
		target.Set(p)
		return nil
	}
	switch {
	case v.Type().AssignableTo(t):
		target.Set(v)
	case v.Type().ConvertibleTo(t) && v.Kind() == t.Kind():
		target.Set(v.Convert(t))
	default:
		return &typemodel.CastError{Expected: t, Actual: v.Type()}
	}
	return nil
}

func appendElement(target, v reflect.Value) error {
	switch target.Kind() {
	case reflect.Slice:
		e := reflect.New(target.Type().Elem()).Elem()
		if err := assign(e, v); err != nil {
			return err
		}
		target.Set(reflect.Append(target, e))
		return nil
	case reflect.Pointer:
		if target.IsNil() {
			target.Set(reflect.New(target.Type().Elem()))
		}
		return appendElement(target.Elem(), v)
	default:
		// Arrays and maps cannot be rebuilt positionally.
		return nil
	}
}

// Mapping is the set of type mappings built together.
type Mapping struct {
	types     []*TypeMapping
	byType    map[reflect.Type]*TypeMapping
	byIndex   map[string]*TypeMapping
	resources *resources
	once      closer.Once
}

// Types returns the type mappings in registration order.
func (m *Mapping) Types() []*TypeMapping { return m.types }

// ByType returns the mapping of a struct type, or of the struct a pointer type points to.
func (m *Mapping) ByType(typ reflect.Type) (*TypeMapping, error) {
	if typ != nil && typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	tm, ok := m.byType[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownType, typ)
	}
	return tm, nil
}

// ByIndex returns the mapping of an index.
func (m *Mapping) ByIndex(index string) (*TypeMapping, bool) {
	tm, ok := m.byIndex[index]
	return tm, ok
}

// Close releases every bridge the mapping acquired. It is idempotent.
func (m *Mapping) Close() error {
	return m.once.Do(m.resources.closeAll)
}
