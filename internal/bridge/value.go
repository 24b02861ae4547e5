package bridge

import (
	"fmt"
	"time"

	"github.com/kailas-cloud/searchmap/internal/geo"
)

// PassThroughBridge indexes values of an index-level type unchanged.
type PassThroughBridge[F any] struct{}

func (PassThroughBridge[F]) ToIndexedValue(value F, _ *ValueContext) (F, error)   { return value, nil }
func (PassThroughBridge[F]) FromIndexedValue(value F, _ *ValueContext) (F, error) { return value, nil }

// TimeBridge normalizes times to UTC.
type TimeBridge struct{}

func (TimeBridge) ToIndexedValue(value time.Time, _ *ValueContext) (time.Time, error) {
	return value.UTC(), nil
}

func (TimeBridge) FromIndexedValue(value time.Time, _ *ValueContext) (time.Time, error) {
	return value.UTC(), nil
}

// DurationBridge indexes durations as nanoseconds.
type DurationBridge struct{}

func (DurationBridge) ToIndexedValue(value time.Duration, _ *ValueContext) (int64, error) {
	return int64(value), nil
}

func (DurationBridge) FromIndexedValue(value int64, _ *ValueContext) (time.Duration, error) {
	return time.Duration(value), nil
}

// PointBridge validates coordinates before indexing them.
type PointBridge struct{}

func (PointBridge) ToIndexedValue(value geo.Point, _ *ValueContext) (geo.Point, error) {
	if !geo.ValidateCoordinates(value.Lat, value.Lon) {
		return geo.Point{}, fmt.Errorf("point %s: %w", value, geo.ErrInvalidCoordinates)
	}
	return value, nil
}

func (PointBridge) FromIndexedValue(value geo.Point, _ *ValueContext) (geo.Point, error) {
	return value, nil
}

// EnumBridge maps a closed set of values to their names.
type EnumBridge[E comparable] struct {
	names  map[E]string
	values map[string]E
}

// NewEnumBridge builds an enum bridge; names must be unique and non-empty.
func NewEnumBridge[E comparable](names map[E]string) (*EnumBridge[E], error) {
	b := &EnumBridge[E]{names: make(map[E]string, len(names)), values: make(map[string]E, len(names))}
	for v, name := range names {
		if name == "" {
			return nil, fmt.Errorf("enum value %v has an empty name", v)
		}
		if prev, dup := b.values[name]; dup {
			return nil, fmt.Errorf("enum name %q used by both %v and %v", name, prev, v)
		}
		b.names[v] = name
		b.values[name] = v
	}
	return b, nil
}

func (b *EnumBridge[E]) ToIndexedValue(value E, _ *ValueContext) (string, error) {
	name, ok := b.names[value]
	if !ok {
		return "", conversionError("unknown enum value %v", value)
	}
	return name, nil
}

func (b *EnumBridge[E]) FromIndexedValue(value string, _ *ValueContext) (E, error) {
	v, ok := b.values[value]
	if !ok {
		var zero E
		return zero, conversionError("unknown enum name %q", value)
	}
	return v, nil
}
