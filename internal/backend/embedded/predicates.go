package embedded

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	bgeo "github.com/blevesearch/bleve/v2/geo"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/kailas-cloud/searchmap/internal/backend"
	"github.com/kailas-cloud/searchmap/internal/failure"
	"github.com/kailas-cloud/searchmap/internal/geo"
	"github.com/kailas-cloud/searchmap/internal/predicate"
	"github.com/kailas-cloud/searchmap/internal/schema"
)

// Predicate is a bleve query, resolved against the tenant at search time.
type Predicate struct {
	desc  string
	query func(t backend.Tenancy, tenantID string) query.Query
}

func (p *Predicate) String() string { return p.desc }

// Query returns the bleve query for a tenant.
func (p *Predicate) Query(t backend.Tenancy, tenantID string) query.Query {
	return p.query(t, tenantID)
}

func static(desc string, q query.Query) *Predicate {
	return &Predicate{desc: desc, query: func(backend.Tenancy, string) query.Query { return q }}
}

// predicateFactory builds predicates against one index.
type predicateFactory struct {
	model *schema.Model
}

func (f *predicateFactory) Field(path string) (predicate.FieldFactory, error) {
	fd, ok := f.model.Field(path)
	if !ok {
		return nil, failure.WithContext(predicate.ErrUnknownField, failure.Index(f.model.IndexName), failure.Field(path))
	}
	if !fd.Options.Searchable {
		return notSearchable{predicate.Unsupported{TypeName: fd.Kind.String() + " (not searchable)"}}, nil
	}
	return factoryFor(fd.Kind), nil
}

func (f *predicateFactory) Bool(must, should, mustNot []predicate.Predicate) (predicate.Predicate, error) {
	m, err := own(must)
	if err != nil {
		return nil, err
	}
	s, err := own(should)
	if err != nil {
		return nil, err
	}
	n, err := own(mustNot)
	if err != nil {
		return nil, err
	}
	desc := fmt.Sprintf("bool(must=%s should=%s must_not=%s)", describe(m), describe(s), describe(n))
	return &Predicate{desc: desc, query: func(t backend.Tenancy, tenantID string) query.Query {
		mq, sq, nq := resolve(m, t, tenantID), resolve(s, t, tenantID), resolve(n, t, tenantID)
		if len(mq) == 0 && len(sq) == 0 {
			mq = []query.Query{query.NewMatchAllQuery()}
		}
		return query.NewBooleanQuery(mq, sq, nq)
	}}, nil
}

func (f *predicateFactory) MatchAll() predicate.Predicate {
	return static("*", query.NewMatchAllQuery())
}

func (f *predicateFactory) ID(ids ...string) predicate.Predicate {
	ids = append([]string(nil), ids...)
	return &Predicate{desc: "id:" + strings.Join(ids, ","), query: func(t backend.Tenancy, tenantID string) query.Query {
		return query.NewDocIDQuery(t.DocumentIDs(tenantID, ids))
	}}
}

func own(preds []predicate.Predicate) ([]*Predicate, error) {
	out := make([]*Predicate, 0, len(preds))
	for _, p := range preds {
		bp, ok := p.(*Predicate)
		if !ok {
			return nil, fmt.Errorf("%w: %T", backend.ErrForeignPredicate, p)
		}
		out = append(out, bp)
	}
	return out, nil
}

func resolve(preds []*Predicate, t backend.Tenancy, tenantID string) []query.Query {
	out := make([]query.Query, len(preds))
	for i, p := range preds {
		out[i] = p.Query(t, tenantID)
	}
	return out
}

func describe(preds []*Predicate) string {
	parts := make([]string, len(preds))
	for i, p := range preds {
		parts[i] = p.desc
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Field factories are stateless; one instance serves every field of a kind.
var (
	keywordFactory  = &termFactory{Unsupported: predicate.Unsupported{TypeName: "keyword"}}
	textFactory     = &textFieldFactory{Unsupported: predicate.Unsupported{TypeName: "text"}}
	longFactory     = &numericFactory{Unsupported: predicate.Unsupported{TypeName: "long"}, kind: schema.KindLong}
	doubleFactory   = &numericFactory{Unsupported: predicate.Unsupported{TypeName: "double"}, kind: schema.KindDouble}
	dateFactory     = &dateFieldFactory{Unsupported: predicate.Unsupported{TypeName: "date"}}
	booleanFactory  = &boolFieldFactory{Unsupported: predicate.Unsupported{TypeName: "boolean"}}
	geoPointFactory = &geoFactory{Unsupported: predicate.Unsupported{TypeName: "geo_point"}}
)

func factoryFor(k schema.Kind) predicate.FieldFactory {
	switch k {
	case schema.KindText:
		return textFactory
	case schema.KindLong:
		return longFactory
	case schema.KindDouble:
		return doubleFactory
	case schema.KindDate:
		return dateFactory
	case schema.KindBoolean:
		return booleanFactory
	case schema.KindGeoPoint:
		return geoPointFactory
	default:
		return keywordFactory
	}
}

type notSearchable struct{ predicate.Unsupported }

func (f notSearchable) IsDslCompatibleWith(other predicate.FieldFactory) bool {
	return predicate.SameType(f, other)
}

// match is the shared MatchBuilder: it validates the value against the kind
// and defers query construction to build.
type match struct {
	path  string
	kind  schema.Kind
	value any
	build func(path string, value any) (query.Query, error)
}

func (b *match) Path() string { return b.path }

func (b *match) Value(v any) error {
	if v == nil || !b.kind.Accepts(reflect.TypeOf(v)) {
		return fmt.Errorf("%w: %s field %q cannot match %T", predicate.ErrInvalidValue, b.kind, b.path, v)
	}
	b.value = v
	return nil
}

func (b *match) Build() (predicate.Predicate, error) {
	if b.value == nil {
		return nil, fmt.Errorf("%w: match on %q has no value", predicate.ErrInvalidValue, b.path)
	}
	q, err := b.build(b.path, b.value)
	if err != nil {
		return nil, err
	}
	return static(fmt.Sprintf("%s:%v", b.path, b.value), q), nil
}

// span is the shared RangeBuilder.
type span struct {
	path         string
	kind         schema.Kind
	lower, upper any
	opts         predicate.RangeOptions
	set          bool
	build        func(s *span) (query.Query, error)
}

func (b *span) Path() string { return b.path }

func (b *span) Range(lower, upper any, opts predicate.RangeOptions) error {
	if lower == nil && upper == nil {
		return fmt.Errorf("%w: range on %q needs at least one bound", predicate.ErrInvalidValue, b.path)
	}
	for _, v := range []any{lower, upper} {
		if v != nil && !b.kind.Accepts(reflect.TypeOf(v)) {
			return fmt.Errorf("%w: %s field %q cannot use bound %T", predicate.ErrInvalidValue, b.kind, b.path, v)
		}
	}
	b.lower, b.upper, b.opts, b.set = lower, upper, opts, true
	return nil
}

func (b *span) Build() (predicate.Predicate, error) {
	if !b.set {
		return nil, fmt.Errorf("%w: range on %q has no bounds", predicate.ErrInvalidValue, b.path)
	}
	q, err := b.build(b)
	if err != nil {
		return nil, err
	}
	return static(fmt.Sprintf("%s:[%v TO %v]", b.path, b.lower, b.upper), q), nil
}

type termFactory struct{ predicate.Unsupported }

func (f *termFactory) IsDslCompatibleWith(other predicate.FieldFactory) bool {
	return predicate.SameType(f, other)
}

func (f *termFactory) CreateMatch(path string) (predicate.MatchBuilder, error) {
	return &match{path: path, kind: schema.KindKeyword, build: func(path string, v any) (query.Query, error) {
		q := query.NewTermQuery(v.(string))
		q.SetField(path)
		return q, nil
	}}, nil
}

type textFieldFactory struct{ predicate.Unsupported }

func (f *textFieldFactory) IsDslCompatibleWith(other predicate.FieldFactory) bool {
	return predicate.SameType(f, other)
}

func (f *textFieldFactory) CreateMatch(path string) (predicate.MatchBuilder, error) {
	return &match{path: path, kind: schema.KindText, build: func(path string, v any) (query.Query, error) {
		q := query.NewMatchQuery(v.(string))
		q.SetField(path)
		return q, nil
	}}, nil
}

type numericFactory struct {
	predicate.Unsupported
	kind schema.Kind
}

// IsDslCompatibleWith also requires the same kind: long and double fields share
// this factory type but accept different values.
func (f *numericFactory) IsDslCompatibleWith(other predicate.FieldFactory) bool {
	o, ok := other.(*numericFactory)
	return ok && o.kind == f.kind
}

func (f *numericFactory) CreateMatch(path string) (predicate.MatchBuilder, error) {
	return &match{path: path, kind: f.kind, build: func(path string, v any) (query.Query, error) {
		n, err := predicate.NumericBound(v)
		if err != nil {
			return nil, err
		}
		return numericRange(path, &n, &n, true, true), nil
	}}, nil
}

func (f *numericFactory) CreateRange(path string) (predicate.RangeBuilder, error) {
	return &span{path: path, kind: f.kind, build: func(s *span) (query.Query, error) {
		var lo, hi *float64
		if s.lower != nil {
			n, err := predicate.NumericBound(s.lower)
			if err != nil {
				return nil, err
			}
			lo = &n
		}
		if s.upper != nil {
			n, err := predicate.NumericBound(s.upper)
			if err != nil {
				return nil, err
			}
			hi = &n
		}
		return numericRange(s.path, lo, hi, !s.opts.ExcludeLower, !s.opts.ExcludeUpper), nil
	}}, nil
}

func numericRange(path string, lo, hi *float64, loIncl, hiIncl bool) query.Query {
	q := query.NewNumericRangeInclusiveQuery(lo, hi, &loIncl, &hiIncl)
	q.SetField(path)
	return q
}

type dateFieldFactory struct{ predicate.Unsupported }

func (f *dateFieldFactory) IsDslCompatibleWith(other predicate.FieldFactory) bool {
	return predicate.SameType(f, other)
}

func (f *dateFieldFactory) CreateMatch(path string) (predicate.MatchBuilder, error) {
	return &match{path: path, kind: schema.KindDate, build: func(path string, v any) (query.Query, error) {
		t := v.(time.Time)
		return dateRange(path, t, t, true, true), nil
	}}, nil
}

func (f *dateFieldFactory) CreateRange(path string) (predicate.RangeBuilder, error) {
	return &span{path: path, kind: schema.KindDate, build: func(s *span) (query.Query, error) {
		var lo, hi time.Time
		if s.lower != nil {
			lo = s.lower.(time.Time)
		}
		if s.upper != nil {
			hi = s.upper.(time.Time)
		}
		return dateRange(s.path, lo, hi, !s.opts.ExcludeLower, !s.opts.ExcludeUpper), nil
	}}, nil
}

// dateRange treats a zero time as an open bound.
func dateRange(path string, lo, hi time.Time, loIncl, hiIncl bool) query.Query {
	q := query.NewDateRangeInclusiveQuery(lo, hi, &loIncl, &hiIncl)
	q.SetField(path)
	return q
}

type boolFieldFactory struct{ predicate.Unsupported }

func (f *boolFieldFactory) IsDslCompatibleWith(other predicate.FieldFactory) bool {
	return predicate.SameType(f, other)
}

func (f *boolFieldFactory) CreateMatch(path string) (predicate.MatchBuilder, error) {
	return &match{path: path, kind: schema.KindBoolean, build: func(path string, v any) (query.Query, error) {
		q := query.NewBoolFieldQuery(v.(bool))
		q.SetField(path)
		return q, nil
	}}, nil
}

// geoFactory serves geo-point fields: only the spatial predicates apply.
type geoFactory struct{ predicate.Unsupported }

func (f *geoFactory) IsDslCompatibleWith(other predicate.FieldFactory) bool {
	return predicate.SameType(f, other)
}

func (f *geoFactory) CreateSpatialWithinCircle(path string) (predicate.CircleBuilder, error) {
	return &circle{path: path}, nil
}

func (f *geoFactory) CreateSpatialWithinPolygon(path string) (predicate.PolygonBuilder, error) {
	return &polygon{path: path}, nil
}

func (f *geoFactory) CreateSpatialWithinBoundingBox(path string) (predicate.BoundingBoxBuilder, error) {
	return &boundingBox{path: path}, nil
}

type circle struct {
	path   string
	center geo.Point
	radius float64
}

func (b *circle) Path() string { return b.path }

func (b *circle) Circle(center geo.Point, radiusMeters float64) error {
	if err := predicate.CheckRadius(radiusMeters); err != nil {
		return err
	}
	if !geo.ValidateCoordinates(center.Lat, center.Lon) {
		return fmt.Errorf("%w: center %s", predicate.ErrInvalidValue, center)
	}
	b.center, b.radius = center, radiusMeters
	return nil
}

func (b *circle) Build() (predicate.Predicate, error) {
	if b.radius <= 0 {
		return nil, fmt.Errorf("%w: circle on %q is not set", predicate.ErrInvalidValue, b.path)
	}
	distance := strconv.FormatFloat(b.radius, 'f', -1, 64) + "m"
	q := query.NewGeoDistanceQuery(b.center.Lon, b.center.Lat, distance)
	q.SetField(b.path)
	return static(fmt.Sprintf("%s:within(%s, %s)", b.path, b.center, distance), q), nil
}

type polygon struct {
	path   string
	points []geo.Point
}

func (b *polygon) Path() string { return b.path }

func (b *polygon) Polygon(p geo.Polygon) error {
	if len(p.Points) < 4 {
		return fmt.Errorf("%w: polygon needs at least 3 distinct points", predicate.ErrInvalidValue)
	}
	b.points = p.Points
	return nil
}

func (b *polygon) Build() (predicate.Predicate, error) {
	if len(b.points) == 0 {
		return nil, fmt.Errorf("%w: polygon on %q is not set", predicate.ErrInvalidValue, b.path)
	}
	points := make([]bgeo.Point, len(b.points))
	for i, p := range b.points {
		points[i] = bgeo.Point{Lon: p.Lon, Lat: p.Lat}
	}
	q := query.NewGeoBoundingPolygonQuery(points)
	q.SetField(b.path)
	return static(fmt.Sprintf("%s:within(%s)", b.path, geo.Polygon{Points: b.points}.WKT()), q), nil
}

type boundingBox struct {
	path string
	box  *geo.BoundingBox
}

func (b *boundingBox) Path() string { return b.path }

func (b *boundingBox) BoundingBox(box geo.BoundingBox) error {
	if _, err := geo.NewBoundingBox(box.TopLeft, box.BottomRight); err != nil {
		return fmt.Errorf("%w: %v", predicate.ErrInvalidValue, err)
	}
	b.box = &box
	return nil
}

func (b *boundingBox) Build() (predicate.Predicate, error) {
	if b.box == nil {
		return nil, fmt.Errorf("%w: bounding box on %q is not set", predicate.ErrInvalidValue, b.path)
	}
	tl, br := b.box.TopLeft, b.box.BottomRight
	q := query.NewGeoBoundingBoxQuery(tl.Lon, tl.Lat, br.Lon, br.Lat)
	q.SetField(b.path)
	return static(fmt.Sprintf("%s:within(%s..%s)", b.path, tl, br), q), nil
}
