package embedded

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/kailas-cloud/searchmap/internal/backend"
	"github.com/kailas-cloud/searchmap/internal/geo"
	"github.com/kailas-cloud/searchmap/internal/schema"
)

var errDuplicateIndex = errors.New("index already exists in this backend")

const defaultTextAnalyzer = "standard"

// indexMapping translates a schema into a static bleve mapping: dotted paths
// become nested document mappings and unmapped properties are ignored.
func indexMapping(model *schema.Model) (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	im.IndexDynamic = false
	im.StoreDynamic = false
	im.DocValuesDynamic = false

	root := mapping.NewDocumentStaticMapping()
	for _, f := range model.Fields() {
		parent, name := documentAt(root, f.Path)
		parent.AddFieldMappingsAt(name, fieldMapping(f))
	}
	if model.MultiTenancy {
		tenant := mapping.NewKeywordFieldMapping()
		tenant.Store = false
		tenant.IncludeInAll = false
		root.AddFieldMappingsAt(backend.TenantField, tenant)
	}
	im.DefaultMapping = root

	if err := im.Validate(); err != nil {
		return nil, fmt.Errorf("invalid index mapping: %w", err)
	}
	return im, nil
}

// documentAt returns the document mapping owning the last segment of path,
// creating intermediate sub-documents.
func documentAt(root *mapping.DocumentMapping, path string) (*mapping.DocumentMapping, string) {
	segments := strings.Split(path, ".")
	dm := root
	for _, seg := range segments[:len(segments)-1] {
		sub, ok := dm.Properties[seg]
		if !ok {
			sub = mapping.NewDocumentStaticMapping()
			dm.AddSubDocumentMapping(seg, sub)
		}
		dm = sub
	}
	return dm, segments[len(segments)-1]
}

func fieldMapping(f *schema.Field) *mapping.FieldMapping {
	var fm *mapping.FieldMapping
	switch f.Kind {
	case schema.KindText:
		fm = mapping.NewTextFieldMapping()
		fm.Analyzer = f.Options.Analyzer
		if fm.Analyzer == "" {
			fm.Analyzer = defaultTextAnalyzer
		}
	case schema.KindLong, schema.KindDouble:
		fm = mapping.NewNumericFieldMapping()
	case schema.KindBoolean:
		fm = mapping.NewBooleanFieldMapping()
	case schema.KindDate:
		fm = mapping.NewDateTimeFieldMapping()
	case schema.KindGeoPoint:
		fm = mapping.NewGeoPointFieldMapping()
	default:
		fm = mapping.NewKeywordFieldMapping()
	}
	fm.Store = f.Options.Projectable
	fm.Index = f.Options.Searchable
	fm.DocValues = f.Options.Sortable
	fm.IncludeInAll = f.Kind == schema.KindText
	return fm
}

// source converts a document into the nested map bleve indexes.
func source(doc *schema.Document, tenantID string, multiTenancy bool) map[string]any {
	out := make(map[string]any, doc.Len()+1)
	for _, path := range doc.Paths() {
		values := doc.Values(path)
		converted := make([]any, len(values))
		for i, v := range values {
			converted[i] = sourceValue(v)
		}
		var v any = converted
		if f, ok := doc.FieldOf(path); ok && !f.Options.MultiValued && len(converted) == 1 {
			v = converted[0]
		}
		setPath(out, path, v)
	}
	if multiTenancy {
		out[backend.TenantField] = tenantID
	}
	return out
}

func sourceValue(v any) any {
	switch x := v.(type) {
	case geo.Point:
		return map[string]any{"lat": x.Lat, "lon": x.Lon}
	case time.Time:
		return x.UTC()
	default:
		return v
	}
}

func setPath(m map[string]any, path string, v any) {
	head, rest, nested := strings.Cut(path, ".")
	if !nested {
		m[path] = v
		return
	}
	child, ok := m[head].(map[string]any)
	if !ok {
		child = map[string]any{}
		m[head] = child
	}
	setPath(child, rest, v)
}

// hitFields normalizes stored values returned by bleve into index-level values.
// Multi-valued fields come back as []any; geo points as [lon, lat].
func hitFields(model *schema.Model, raw map[string]any) (map[string][]any, error) {
	out := make(map[string][]any, len(raw))
	for path, v := range raw {
		f, ok := model.Field(path)
		if !ok {
			continue
		}
		var values []any
		switch x := v.(type) {
		case []any:
			if f.Kind == schema.KindGeoPoint && isCoordinatePair(x) {
				values = []any{x}
			} else {
				values = x
			}
		default:
			values = []any{v}
		}
		normalized := make([]any, 0, len(values))
		for _, e := range values {
			n, err := schema.Normalize(f.Kind, e)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", path, err)
			}
			if n != nil {
				normalized = append(normalized, n)
			}
		}
		out[path] = normalized
	}
	return out, nil
}

func isCoordinatePair(values []any) bool {
	if len(values) != 2 {
		return false
	}
	_, ok1 := values[0].(float64)
	_, ok2 := values[1].(float64)
	return ok1 && ok2
}
