package searchmap

import (
	"time"

	"github.com/kailas-cloud/searchmap/internal/backend"
	"github.com/kailas-cloud/searchmap/internal/bridge"
	"github.com/kailas-cloud/searchmap/internal/geo"
	"github.com/kailas-cloud/searchmap/internal/mapper"
	"github.com/kailas-cloud/searchmap/internal/predicate"
	"github.com/kailas-cloud/searchmap/internal/projection"
)

// Backends.
type (
	Backend        = backend.Backend
	BackendFactory = backend.Factory
	PropertySource = backend.PropertySource
	BuildContext   = backend.BuildContext
	Observer       = backend.Observer
)

// MappingObserver is told how long building a mapping took.
type MappingObserver interface {
	ObserveMapping(types int, d time.Duration, err error)
}

// Programmatic mapping.
type (
	Definition   = mapper.Definition
	TypeStep     = mapper.TypeStep
	PropertyStep = mapper.PropertyStep
	FieldOption  = mapper.FieldOption
)

// NewDefinition returns an empty programmatic mapping.
func NewDefinition() *Definition { return mapper.NewDefinition() }

// Field options of programmatic declarations.
var (
	Sortable       = mapper.Sortable
	NotProjectable = mapper.NotProjectable
	NotSearchable  = mapper.NotSearchable
	Analyzer       = mapper.Analyzer
	WithBridge     = mapper.WithBridge
)

// Bridges.
type (
	IdentifierBridge[I any]  = bridge.IdentifierBridge[I]
	ValueBridge[V, F any]    = bridge.ValueBridge[V, F]
	TypeBridge               = bridge.TypeBridge
	RoutingKeyBridge         = bridge.RoutingKeyBridge
	IdentifierContext        = bridge.IdentifierContext
	ValueContext             = bridge.ValueContext
	TypeContext              = bridge.TypeContext
	EnumBridge[E comparable] = bridge.EnumBridge[E]
)

// NewEnumBridge indexes enum values under their names.
func NewEnumBridge[E comparable](names map[E]string) (*EnumBridge[E], error) {
	return bridge.NewEnumBridge(names)
}

// Geography.
type (
	Point       = geo.Point
	Polygon     = geo.Polygon
	BoundingBox = geo.BoundingBox
)

// Predicates and projections.
type (
	Predicate         = predicate.Predicate
	RangeOptions      = predicate.RangeOptions
	Projection[T any] = projection.Projection[T]
	EntityReference   = projection.EntityReference
)

// BatchResult is the outcome of one item in a batch operation.
type BatchResult struct {
	ID  string
	OK  bool
	Err error
}
