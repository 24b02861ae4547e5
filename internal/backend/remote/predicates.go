package remote

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/searchmap/internal/backend"
	"github.com/kailas-cloud/searchmap/internal/failure"
	"github.com/kailas-cloud/searchmap/internal/geo"
	"github.com/kailas-cloud/searchmap/internal/predicate"
	"github.com/kailas-cloud/searchmap/internal/schema"
)

// noDocument is an identifier no document is given; it makes an empty
// identifier predicate match nothing.
const noDocument = "searchmap:none"

// Predicate is a fragment of a RediSearch query. Parameters are allocated
// when the fragment is rendered into a query.
type Predicate struct {
	desc   string
	render func(r *render) string
}

func (p *Predicate) String() string { return p.desc }

// Query renders the predicate and returns the query string with its PARAMS.
func (p *Predicate) Query() (string, map[string]string) {
	r := newRender()
	q := p.render(r)
	if len(r.params) == 0 {
		return q, nil
	}
	return q, r.params
}

func clause(desc, q string) *Predicate {
	return &Predicate{desc: desc, render: func(*render) string { return q }}
}

// predicateFactory builds predicates against one index.
type predicateFactory struct {
	layout *layout
}

func (f *predicateFactory) Field(path string) (predicate.FieldFactory, error) {
	a, ok := f.layout.attribute(path)
	if !ok {
		return nil, failure.WithContext(predicate.ErrUnknownField, failure.Index(f.layout.index), failure.Field(path))
	}
	if !a.field.Options.Searchable {
		return notSearchable{predicate.Unsupported{TypeName: a.field.Kind.String() + " (not searchable)"}}, nil
	}
	return factoryFor(a), nil
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
	return &Predicate{desc: desc, render: func(r *render) string {
		clauses := renderAll(m, r)
		if sq := renderAll(s, r); len(sq) > 0 && !contains(sq, matchAll) {
			disjunction := "(" + strings.Join(groupAll(sq), " | ") + ")"
			if len(m) > 0 {
				// Should clauses only score when a must clause is present.
				disjunction = "~" + disjunction
			}
			clauses = append(clauses, disjunction)
		}
		for _, nq := range renderAll(n, r) {
			clauses = append(clauses, "-"+group(nq))
		}
		return intersect(clauses...)
	}}, nil
}

func (f *predicateFactory) MatchAll() predicate.Predicate {
	return clause(matchAll, matchAll)
}

func (f *predicateFactory) ID(ids ...string) predicate.Predicate {
	ids = append([]string(nil), ids...)
	if len(ids) == 0 {
		return clause("id:", tagClause(IDAttribute, noDocument))
	}
	return clause("id:"+strings.Join(ids, ","), tagClause(IDAttribute, ids...))
}

func own(preds []predicate.Predicate) ([]*Predicate, error) {
	out := make([]*Predicate, 0, len(preds))
	for _, p := range preds {
		rp, ok := p.(*Predicate)
		if !ok {
			return nil, fmt.Errorf("%w: %T", backend.ErrForeignPredicate, p)
		}
		out = append(out, rp)
	}
	return out, nil
}

func renderAll(preds []*Predicate, r *render) []string {
	out := make([]string, len(preds))
	for i, p := range preds {
		out[i] = p.render(r)
	}
	return out
}

func groupAll(clauses []string) []string {
	out := make([]string, len(clauses))
	for i, c := range clauses {
		out[i] = group(c)
	}
	return out
}

func contains(clauses []string, c string) bool {
	for _, x := range clauses {
		if x == c {
			return true
		}
	}
	return false
}

func describe(preds []*Predicate) string {
	parts := make([]string, len(preds))
	for i, p := range preds {
		parts[i] = p.desc
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func factoryFor(a *attribute) predicate.FieldFactory {
	switch a.field.Kind {
	case schema.KindText:
		return &textFieldFactory{Unsupported: predicate.Unsupported{TypeName: "text"}, attr: a.name}
	case schema.KindLong, schema.KindDouble, schema.KindDate:
		return &numericFactory{Unsupported: predicate.Unsupported{TypeName: a.field.Kind.String()}, kind: a.field.Kind, attr: a.name}
	case schema.KindBoolean:
		return &tagFactory{Unsupported: predicate.Unsupported{TypeName: "boolean"}, kind: schema.KindBoolean, attr: a.name}
	case schema.KindGeoPoint:
		return &geoFactory{Unsupported: predicate.Unsupported{TypeName: "geo_point"}, attr: a.name, shape: a.shape}
	default:
		return &tagFactory{Unsupported: predicate.Unsupported{TypeName: "keyword"}, kind: schema.KindKeyword, attr: a.name}
	}
}

type notSearchable struct{ predicate.Unsupported }

func (f notSearchable) IsDslCompatibleWith(other predicate.FieldFactory) bool {
	return predicate.SameType(f, other)
}

// match is the shared MatchBuilder.
type match struct {
	path   string
	kind   schema.Kind
	value  any
	render func(v any) (string, error)
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
	q, err := b.render(b.value)
	if err != nil {
		return nil, err
	}
	return clause(fmt.Sprintf("%s:%v", b.path, b.value), q), nil
}

type tagFactory struct {
	predicate.Unsupported
	kind schema.Kind
	attr string
}

// IsDslCompatibleWith accepts tag fields of the same kind, whatever the attribute.
func (f *tagFactory) IsDslCompatibleWith(other predicate.FieldFactory) bool {
	o, ok := other.(*tagFactory)
	return ok && o.kind == f.kind
}

func (f *tagFactory) CreateMatch(path string) (predicate.MatchBuilder, error) {
	return &match{path: path, kind: f.kind, render: func(v any) (string, error) {
		return tagClause(f.attr, schema.FormatValue(v)), nil
	}}, nil
}

type textFieldFactory struct {
	predicate.Unsupported
	attr string
}

func (f *textFieldFactory) IsDslCompatibleWith(other predicate.FieldFactory) bool {
	return predicate.SameType(f, other)
}

func (f *textFieldFactory) CreateMatch(path string) (predicate.MatchBuilder, error) {
	return &match{path: path, kind: schema.KindText, render: func(v any) (string, error) {
		text := strings.TrimSpace(v.(string))
		if text == "" {
			return "", fmt.Errorf("%w: empty text match on %q", predicate.ErrInvalidValue, path)
		}
		return textClause(f.attr, text), nil
	}}, nil
}

type numericFactory struct {
	predicate.Unsupported
	kind schema.Kind
	attr string
}

func (f *numericFactory) IsDslCompatibleWith(other predicate.FieldFactory) bool {
	o, ok := other.(*numericFactory)
	return ok && o.kind == f.kind
}

func (f *numericFactory) CreateMatch(path string) (predicate.MatchBuilder, error) {
	return &match{path: path, kind: f.kind, render: func(v any) (string, error) {
		n, err := predicate.NumericBound(v)
		if err != nil {
			return "", err
		}
		return numericClause(f.attr, &n, &n, true, true), nil
	}}, nil
}

func (f *numericFactory) CreateRange(path string) (predicate.RangeBuilder, error) {
	return &span{path: path, kind: f.kind, attr: f.attr}, nil
}

// span is the RangeBuilder of numeric and date fields.
type span struct {
	path, attr   string
	kind         schema.Kind
	lower, upper any
	opts         predicate.RangeOptions
	set          bool
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
	lo, err := optionalBound(b.lower)
	if err != nil {
		return nil, err
	}
	hi, err := optionalBound(b.upper)
	if err != nil {
		return nil, err
	}
	q := numericClause(b.attr, lo, hi, !b.opts.ExcludeLower, !b.opts.ExcludeUpper)
	return clause(fmt.Sprintf("%s:[%v TO %v]", b.path, display(b.lower), display(b.upper)), q), nil
}

func optionalBound(v any) (*float64, error) {
	if v == nil {
		return nil, nil
	}
	n, err := predicate.NumericBound(v)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func display(v any) any {
	switch x := v.(type) {
	case nil:
		return "*"
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}

// geoFactory serves geo-point fields: only the spatial predicates apply.
type geoFactory struct {
	predicate.Unsupported
	attr, shape string
}

func (f *geoFactory) IsDslCompatibleWith(other predicate.FieldFactory) bool {
	return predicate.SameType(f, other)
}

func (f *geoFactory) CreateSpatialWithinCircle(path string) (predicate.CircleBuilder, error) {
	return &circle{path: path, attr: f.attr}, nil
}

func (f *geoFactory) CreateSpatialWithinPolygon(path string) (predicate.PolygonBuilder, error) {
	return &polygon{path: path, attr: f.shape}, nil
}

func (f *geoFactory) CreateSpatialWithinBoundingBox(path string) (predicate.BoundingBoxBuilder, error) {
	return &boundingBox{polygon: polygon{path: path, attr: f.shape}}, nil
}

type circle struct {
	path, attr string
	center     geo.Point
	radius     float64
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
	radius := strconv.FormatFloat(b.radius, 'f', -1, 64)
	q := fmt.Sprintf("@%s:[%s %s %s m]", b.attr,
		strconv.FormatFloat(b.center.Lon, 'f', -1, 64), strconv.FormatFloat(b.center.Lat, 'f', -1, 64), radius)
	return clause(fmt.Sprintf("%s:within(%s, %sm)", b.path, b.center, radius), q), nil
}

type polygon struct {
	path, attr string
	shape      *geo.Polygon
}

func (b *polygon) Path() string { return b.path }

func (b *polygon) Polygon(p geo.Polygon) error {
	if len(p.Points) < 4 {
		return fmt.Errorf("%w: polygon needs at least 3 distinct points", predicate.ErrInvalidValue)
	}
	b.shape = &p
	return nil
}

func (b *polygon) Build() (predicate.Predicate, error) {
	if b.shape == nil {
		return nil, fmt.Errorf("%w: polygon on %q is not set", predicate.ErrInvalidValue, b.path)
	}
	wkt := b.shape.WKT()
	attr := b.attr
	return &Predicate{desc: fmt.Sprintf("%s:within(%s)", b.path, wkt), render: func(r *render) string {
		return "@" + attr + ":[WITHIN " + r.param(wkt) + "]"
	}}, nil
}

// boundingBox is rendered as the polygon of its corners.
type boundingBox struct {
	polygon
}

func (b *boundingBox) BoundingBox(box geo.BoundingBox) error {
	if _, err := geo.NewBoundingBox(box.TopLeft, box.BottomRight); err != nil {
		return fmt.Errorf("%w: %v", predicate.ErrInvalidValue, err)
	}
	p := box.Polygon()
	b.shape = &p
	return nil
}

func (b *boundingBox) Build() (predicate.Predicate, error) {
	if b.shape == nil {
		return nil, fmt.Errorf("%w: bounding box on %q is not set", predicate.ErrInvalidValue, b.path)
	}
	return b.polygon.Build()
}
