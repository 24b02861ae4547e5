package remote

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/searchmap/internal/backend"
	"github.com/kailas-cloud/searchmap/internal/db"
	"github.com/kailas-cloud/searchmap/internal/failure"
	"github.com/kailas-cloud/searchmap/internal/geo"
	"github.com/kailas-cloud/searchmap/internal/schema"
)

// IDAttribute is the TAG attribute holding the document identifier, used by
// identifier predicates.
const IDAttribute = "searchmap_id"

const (
	shapeSuffix  = "__shape"
	tagSeparator = "|"
)

var errMultiValuedHash = errors.New("multi-valued fields need json storage")

// attribute is the RediSearch side of one schema field.
type attribute struct {
	field *schema.Field
	// name is the attribute queries refer to; also the hash field name.
	name string
	// shape is the GEOSHAPE sibling of a geo-point attribute.
	shape string
	path  []string
}

func (a *attribute) jsonPath(name string) string {
	segments := append(append([]string(nil), a.path[:len(a.path)-1]...), name)
	p := "$." + strings.Join(segments, ".")
	if a.field.Options.MultiValued {
		p += "[*]"
	}
	return p
}

func (a *attribute) leaf() string { return a.path[len(a.path)-1] }

// layout maps a schema onto keys, attributes and stored documents.
type layout struct {
	index   string
	storage db.StorageType
	tenancy backend.Tenancy
	attrs   []*attribute
	byPath  map[string]*attribute
}

func newLayout(model *schema.Model, storage db.StorageType) (*layout, error) {
	l := &layout{
		index:   model.IndexName,
		storage: storage,
		tenancy: backend.Tenancy{Enabled: model.MultiTenancy},
		byPath:  make(map[string]*attribute, len(model.Fields())),
	}
	taken := map[string]bool{IDAttribute: true, backend.TenantField: true}
	for _, f := range model.Fields() {
		if storage == db.StorageHash && f.Options.MultiValued {
			return nil, failure.WithContext(errMultiValuedHash, failure.Field(f.Path))
		}
		a := &attribute{field: f, name: unique(sanitize(f.Path), taken), path: strings.Split(f.Path, ".")}
		if f.Kind == schema.KindGeoPoint && f.Options.Searchable {
			a.shape = unique(a.name+shapeSuffix, taken)
		}
		l.attrs = append(l.attrs, a)
		l.byPath[f.Path] = a
	}
	return l, nil
}

// sanitize turns a dotted path into an attribute name.
func sanitize(path string) string {
	var b strings.Builder
	for _, r := range path {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func unique(name string, taken map[string]bool) string {
	candidate := name
	for i := 2; taken[candidate]; i++ {
		candidate = name + "_" + strconv.Itoa(i)
	}
	taken[candidate] = true
	return candidate
}

// prefix is the key prefix of every document of the index.
func (l *layout) prefix() string { return l.index + ":" }

func (l *layout) key(tenantID, id string) string {
	return l.prefix() + l.tenancy.DocumentID(tenantID, id)
}

func (l *layout) documentID(tenantID, key string) string {
	return l.tenancy.StripDocumentID(tenantID, strings.TrimPrefix(key, l.prefix()))
}

func (l *layout) attribute(path string) (*attribute, bool) {
	a, ok := l.byPath[path]
	return a, ok
}

// definition renders the FT.CREATE definition. Fields that are neither
// searchable nor sortable are stored but not declared.
func (l *layout) definition() (*db.IndexDefinition, error) {
	b := db.NewIndex(l.index).Prefix(l.prefix())
	if l.storage == db.StorageJSON {
		b.OnJSON()
	}
	b.Field(l.declare(db.IndexField{Type: db.IndexFieldTag, TagCaseSensitive: true}, IDAttribute, "$."+IDAttribute))
	if l.tenancy.Enabled {
		b.Field(l.declare(db.IndexField{Type: db.IndexFieldTag, TagCaseSensitive: true}, backend.TenantField,
			"$."+backend.TenantField))
	}
	for _, a := range l.attrs {
		opts := a.field.Options
		if !opts.Searchable && !opts.Sortable {
			continue
		}
		f := db.IndexField{Type: fieldType(a.field.Kind)}
		switch a.field.Kind {
		case schema.KindKeyword:
			f.TagSeparator = tagSeparator
			f.TagCaseSensitive = true
		case schema.KindBoolean:
			f.TagSeparator = tagSeparator
		}
		if a.field.Kind != schema.KindGeoPoint {
			f.Sortable = opts.Sortable
			f.NoIndex = !opts.Searchable
		}
		b.Field(l.declare(f, a.name, a.jsonPath(a.leaf())))
		if a.shape != "" {
			shape := db.IndexField{Type: db.IndexFieldGeoShape}
			b.Field(l.declare(shape, a.shape, a.jsonPath(a.leaf()+shapeSuffix)))
		}
	}
	def, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("index definition: %w", err)
	}
	return def, nil
}

func (l *layout) declare(f db.IndexField, name, jsonPath string) db.IndexField {
	if l.storage == db.StorageJSON {
		f.Name, f.Alias = jsonPath, name
	} else {
		f.Name = name
	}
	return f
}

func fieldType(k schema.Kind) db.IndexFieldType {
	switch k {
	case schema.KindText:
		return db.IndexFieldText
	case schema.KindLong, schema.KindDouble, schema.KindDate:
		return db.IndexFieldNumeric
	case schema.KindGeoPoint:
		return db.IndexFieldGeo
	default:
		return db.IndexFieldTag
	}
}

// --- encoding ---

// encodeJSON renders a document as the JSON value stored at its key.
func (l *layout) encodeJSON(doc *schema.Document, id, tenantID string) ([]byte, error) {
	out := map[string]any{IDAttribute: id}
	if l.tenancy.Enabled {
		out[backend.TenantField] = tenantID
	}
	for _, path := range doc.Paths() {
		a, ok := l.byPath[path]
		if !ok {
			return nil, fmt.Errorf("field %q is not part of index %s", path, l.index)
		}
		values := doc.Values(path)
		encoded := make([]any, len(values))
		shapes := make([]any, len(values))
		for i, v := range values {
			encoded[i] = jsonValue(v)
			if p, ok := v.(geo.Point); ok {
				shapes[i] = p.WKT()
			}
		}
		setPath(out, a.path, single(a, encoded))
		if a.shape != "" {
			shapePath := append(append([]string(nil), a.path[:len(a.path)-1]...), a.leaf()+shapeSuffix)
			setPath(out, shapePath, single(a, shapes))
		}
	}
	return json.Marshal(out)
}

func single(a *attribute, values []any) any {
	if !a.field.Options.MultiValued && len(values) == 1 {
		return values[0]
	}
	return values
}

func jsonValue(v any) any {
	switch x := v.(type) {
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.UnixMilli()
	case geo.Point:
		return lonLat(x)
	default:
		return v
	}
}

// encodeHash renders a document as hash fields.
func (l *layout) encodeHash(doc *schema.Document, id, tenantID string) (map[string]string, error) {
	out := map[string]string{IDAttribute: id}
	if l.tenancy.Enabled {
		out[backend.TenantField] = tenantID
	}
	for _, path := range doc.Paths() {
		a, ok := l.byPath[path]
		if !ok {
			return nil, fmt.Errorf("field %q is not part of index %s", path, l.index)
		}
		v, _ := doc.Value(path)
		out[a.name] = hashValue(v)
		if p, ok := v.(geo.Point); ok && a.shape != "" {
			out[a.shape] = p.WKT()
		}
	}
	return out, nil
}

func hashValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case geo.Point:
		return lonLat(x)
	default:
		return schema.FormatValue(v)
	}
}

// lonLat renders a point the way GEO attributes expect it.
func lonLat(p geo.Point) string {
	return strconv.FormatFloat(p.Lon, 'f', -1, 64) + "," + strconv.FormatFloat(p.Lat, 'f', -1, 64)
}

func parseLonLat(s string) (geo.Point, error) {
	lonStr, latStr, ok := strings.Cut(s, ",")
	if !ok {
		return geo.Point{}, fmt.Errorf("point %q: expected \"lon,lat\"", s)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("point %q: longitude: %w", s, err)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("point %q: latitude: %w", s, err)
	}
	return geo.NewPoint(lat, lon)
}

func setPath(m map[string]any, path []string, v any) {
	for _, seg := range path[:len(path)-1] {
		child, ok := m[seg].(map[string]any)
		if !ok {
			child = map[string]any{}
			m[seg] = child
		}
		m = child
	}
	m[path[len(path)-1]] = v
}

// --- decoding ---

// decodeJSON reads the projectable fields of a stored JSON document. With
// DIALECT 3 the document comes wrapped in a one-element array.
func (l *layout) decodeJSON(raw string, attrs []*attribute) (map[string][]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if arr, ok := v.([]any); ok {
		if len(arr) == 0 {
			return map[string][]any{}, nil
		}
		v = arr[0]
	}
	doc, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decode document: unexpected %T", v)
	}

	out := make(map[string][]any, len(attrs))
	for _, a := range attrs {
		raw, ok := lookup(doc, a.path)
		if !ok || raw == nil {
			continue
		}
		values, isList := raw.([]any)
		if !isList {
			values = []any{raw}
		}
		normalized := make([]any, 0, len(values))
		for _, e := range values {
			n, err := normalize(a.field.Kind, e)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", a.field.Path, err)
			}
			if n != nil {
				normalized = append(normalized, n)
			}
		}
		out[a.field.Path] = normalized
	}
	return out, nil
}

// decodeHash reads the projectable fields of a hash.
func (l *layout) decodeHash(fields map[string]string, attrs []*attribute) (map[string][]any, error) {
	out := make(map[string][]any, len(attrs))
	for _, a := range attrs {
		raw, ok := fields[a.name]
		if !ok {
			continue
		}
		n, err := normalize(a.field.Kind, raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", a.field.Path, err)
		}
		if n != nil {
			out[a.field.Path] = []any{n}
		}
	}
	return out, nil
}

func normalize(k schema.Kind, raw any) (any, error) {
	switch x := raw.(type) {
	case json.Number:
		if k == schema.KindLong || k == schema.KindDate {
			if n, err := x.Int64(); err == nil {
				return schema.Normalize(k, n)
			}
		}
		f, err := x.Float64()
		if err != nil {
			return nil, err
		}
		return schema.Normalize(k, f)
	case string:
		if k == schema.KindGeoPoint {
			return parseLonLat(x)
		}
	}
	return schema.Normalize(k, raw)
}

func lookup(m map[string]any, path []string) (any, bool) {
	var cur any = m
	for _, seg := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = obj[seg]; !ok {
			return nil, false
		}
	}
	return cur, true
}
