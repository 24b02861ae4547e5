package predicate

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/kailas-cloud/searchmap/internal/failure"
	"github.com/kailas-cloud/searchmap/internal/geo"
)

// Kind names a predicate type.
type Kind string

// Predicate kinds.
const (
	KindMatch             Kind = "match"
	KindRange             Kind = "range"
	KindWithinCircle      Kind = "spatial.within.circle"
	KindWithinPolygon     Kind = "spatial.within.polygon"
	KindWithinBoundingBox Kind = "spatial.within.bounding_box"
)

// Sentinel errors.
var (
	ErrNotSupported = errors.New("predicate not supported for this field type")
	ErrUnknownField = errors.New("unknown field")
	ErrInvalidValue = errors.New("invalid predicate value")
)

// UnsupportedError is returned when a predicate kind is requested on a field
// type that cannot serve it.
type UnsupportedError struct {
	Kind      Kind
	FieldType string
	Path      string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s: cannot use '%s' predicate on a '%s' field: %v",
		failure.Field(e.Path), e.Kind, e.FieldType, ErrNotSupported)
}

func (e *UnsupportedError) Unwrap() error { return ErrNotSupported }

// Context returns the event contexts the error is attached to.
func (e *UnsupportedError) Context() []failure.EventContext {
	return []failure.EventContext{failure.Field(e.Path)}
}

// Predicate is a built, backend-specific predicate.
type Predicate interface {
	String() string
}

// RangeOptions controls bound inclusion. Bounds are inclusive by default.
type RangeOptions struct {
	ExcludeLower bool
	ExcludeUpper bool
}

// MatchBuilder builds an exact or analyzed match.
type MatchBuilder interface {
	Path() string
	Value(v any) error
	Build() (Predicate, error)
}

// RangeBuilder builds a range. A nil bound is open.
type RangeBuilder interface {
	Path() string
	Range(lower, upper any, opts RangeOptions) error
	Build() (Predicate, error)
}

// CircleBuilder builds a within-circle spatial predicate.
type CircleBuilder interface {
	Path() string
	Circle(center geo.Point, radiusMeters float64) error
	Build() (Predicate, error)
}

// PolygonBuilder builds a within-polygon spatial predicate.
type PolygonBuilder interface {
	Path() string
	Polygon(p geo.Polygon) error
	Build() (Predicate, error)
}

// BoundingBoxBuilder builds a within-bounding-box spatial predicate.
type BoundingBoxBuilder interface {
	Path() string
	BoundingBox(b geo.BoundingBox) error
	Build() (Predicate, error)
}

// FieldFactory creates predicate builders for one field type.
type FieldFactory interface {
	FieldTypeName() string
	// IsDslCompatibleWith reports whether fields served by the two factories
	// may be queried together in a multi-index search.
	IsDslCompatibleWith(other FieldFactory) bool
	CreateMatch(path string) (MatchBuilder, error)
	CreateRange(path string) (RangeBuilder, error)
	CreateSpatialWithinCircle(path string) (CircleBuilder, error)
	CreateSpatialWithinPolygon(path string) (PolygonBuilder, error)
	CreateSpatialWithinBoundingBox(path string) (BoundingBoxBuilder, error)
}

// Factory creates predicates against one index.
type Factory interface {
	Field(path string) (FieldFactory, error)
	Bool(must, should, mustNot []Predicate) (Predicate, error)
	MatchAll() Predicate
	ID(ids ...string) Predicate
}

// SameType is the default DSL compatibility policy: two factories are
// compatible only when they have exactly the same concrete type.
func SameType(a, b FieldFactory) bool {
	if a == nil || b == nil {
		return false
	}
	return reflect.TypeOf(a) == reflect.TypeOf(b)
}

// Unsupported rejects every predicate kind. Field factories embed it and
// override the kinds they serve.
type Unsupported struct {
	TypeName string
}

func (u Unsupported) unsupported(kind Kind, path string) error {
	return &UnsupportedError{Kind: kind, FieldType: u.TypeName, Path: path}
}

// FieldTypeName returns the name of the field type.
func (u Unsupported) FieldTypeName() string { return u.TypeName }

func (u Unsupported) CreateMatch(path string) (MatchBuilder, error) {
	return nil, u.unsupported(KindMatch, path)
}

func (u Unsupported) CreateRange(path string) (RangeBuilder, error) {
	return nil, u.unsupported(KindRange, path)
}

func (u Unsupported) CreateSpatialWithinCircle(path string) (CircleBuilder, error) {
	return nil, u.unsupported(KindWithinCircle, path)
}

func (u Unsupported) CreateSpatialWithinPolygon(path string) (PolygonBuilder, error) {
	return nil, u.unsupported(KindWithinPolygon, path)
}

func (u Unsupported) CreateSpatialWithinBoundingBox(path string) (BoundingBoxBuilder, error) {
	return nil, u.unsupported(KindWithinBoundingBox, path)
}
