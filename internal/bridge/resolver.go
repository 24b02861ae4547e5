package bridge

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kailas-cloud/searchmap/internal/geo"
)

// ErrNoDefaultBridge is returned when no default bridge serves a type.
var ErrNoDefaultBridge = errors.New("no default bridge")

var (
	timeType     = reflect.TypeFor[time.Time]()
	durationType = reflect.TypeFor[time.Duration]()
	pointType    = reflect.TypeFor[geo.Point]()
	uuidType     = reflect.TypeFor[uuid.UUID]()
	stringType   = reflect.TypeFor[string]()
	int64Type    = reflect.TypeFor[int64]()
	float64Type  = reflect.TypeFor[float64]()
	boolType     = reflect.TypeFor[bool]()
)

// Resolver picks default bridges by Go type. Returned bridges are shared
// singletons, so identical property types get identical bridges.
type Resolver struct {
	mu          sync.Mutex
	identifiers map[reflect.Type]AnyIdentifierBridge
	values      map[reflect.Type]AnyValueBridge
}

// NewResolver returns a resolver preloaded with the built-in bridges.
func NewResolver() *Resolver {
	r := &Resolver{
		identifiers: map[reflect.Type]AnyIdentifierBridge{
			stringType:                 WrapIdentifier[string](StringIdentifierBridge[string]{}),
			reflect.TypeFor[int]():     WrapIdentifier[int](IntIdentifierBridge[int]{}),
			reflect.TypeFor[int32]():   WrapIdentifier[int32](IntIdentifierBridge[int32]{}),
			int64Type:                  WrapIdentifier[int64](IntIdentifierBridge[int64]{}),
			reflect.TypeFor[uint]():    WrapIdentifier[uint](UintIdentifierBridge[uint]{}),
			reflect.TypeFor[uint32](): WrapIdentifier[uint32](UintIdentifierBridge[uint32]{}),
			reflect.TypeFor[uint64](): WrapIdentifier[uint64](UintIdentifierBridge[uint64]{}),
			uuidType:                   WrapIdentifier[uuid.UUID](UUIDIdentifierBridge{}),
		},
		values: map[reflect.Type]AnyValueBridge{
			stringType:   WrapValue[string, string](PassThroughBridge[string]{}),
			int64Type:    WrapValue[int64, int64](PassThroughBridge[int64]{}),
			float64Type:  WrapValue[float64, float64](PassThroughBridge[float64]{}),
			boolType:     WrapValue[bool, bool](PassThroughBridge[bool]{}),
			timeType:     WrapValue[time.Time, time.Time](TimeBridge{}),
			durationType: WrapValue[time.Duration, int64](DurationBridge{}),
			pointType:    WrapValue[geo.Point, geo.Point](PointBridge{}),
		},
	}
	return r
}

// RegisterIdentifier overrides the default identifier bridge of a type.
func (r *Resolver) RegisterIdentifier(typ reflect.Type, b AnyIdentifierBridge) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.identifiers[typ] = b
}

// RegisterValue overrides the default value bridge of a type.
func (r *Resolver) RegisterValue(typ reflect.Type, b AnyValueBridge) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[typ] = b
}

// Identifier returns the default identifier bridge for typ.
func (r *Resolver) Identifier(typ reflect.Type) (AnyIdentifierBridge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.identifiers[typ]; ok {
		return b, nil
	}
	switch typ.Kind() {
	case reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		b := &kindIdentifier{typ: typ}
		r.identifiers[typ] = b
		return b, nil
	}
	return nil, fmt.Errorf("%w for identifier type %s", ErrNoDefaultBridge, typ)
}

// Value returns the default value bridge for typ.
func (r *Resolver) Value(typ reflect.Type) (AnyValueBridge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.values[typ]; ok {
		return b, nil
	}
	var indexed reflect.Type
	switch typ.Kind() {
	case reflect.String:
		indexed = stringType
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		indexed = int64Type
	case reflect.Float32, reflect.Float64:
		indexed = float64Type
	case reflect.Bool:
		indexed = boolType
	case reflect.Struct:
		if typ.ConvertibleTo(timeType) {
			indexed = timeType
		} else if typ.ConvertibleTo(pointType) {
			indexed = pointType
		}
	}
	if indexed == nil {
		return nil, fmt.Errorf("%w for value type %s", ErrNoDefaultBridge, typ)
	}
	b := &kindValue{typ: typ, indexed: indexed}
	r.values[typ] = b
	return b, nil
}
