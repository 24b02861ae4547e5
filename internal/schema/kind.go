package schema

import (
	"fmt"
	"reflect"
	"time"

	"github.com/kailas-cloud/searchmap/internal/geo"
)

// Kind is the index-level type of a field.
type Kind int

// Field kinds.
const (
	KindKeyword Kind = iota
	KindText
	KindLong
	KindDouble
	KindBoolean
	KindDate
	KindGeoPoint
)

var kindNames = [...]string{
	KindKeyword:  "keyword",
	KindText:     "text",
	KindLong:     "long",
	KindDouble:   "double",
	KindBoolean:  "boolean",
	KindDate:     "date",
	KindGeoPoint: "geo_point",
}

func (k Kind) String() string {
	if int(k) >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind parses a kind name as used in tags and configuration.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "keyword":
		return KindKeyword, nil
	case "text":
		return KindText, nil
	case "long":
		return KindLong, nil
	case "double":
		return KindDouble, nil
	case "boolean", "bool":
		return KindBoolean, nil
	case "date":
		return KindDate, nil
	case "geo", "geo_point":
		return KindGeoPoint, nil
	default:
		return 0, fmt.Errorf("unknown field kind %q", s)
	}
}

var (
	stringType = reflect.TypeFor[string]()
	int64Type  = reflect.TypeFor[int64]()
	float64Typ = reflect.TypeFor[float64]()
	boolType   = reflect.TypeFor[bool]()
	timeType   = reflect.TypeFor[time.Time]()
	pointType  = reflect.TypeFor[geo.Point]()
)

// ValueType returns the Go type index values of this kind must have.
func (k Kind) ValueType() reflect.Type {
	switch k {
	case KindKeyword, KindText:
		return stringType
	case KindLong:
		return int64Type
	case KindDouble:
		return float64Typ
	case KindBoolean:
		return boolType
	case KindDate:
		return timeType
	case KindGeoPoint:
		return pointType
	default:
		return nil
	}
}

// DefaultKind returns the natural kind for an index-level Go type.
// Strings default to keyword.
func DefaultKind(t reflect.Type) (Kind, bool) {
	switch t {
	case stringType:
		return KindKeyword, true
	case int64Type:
		return KindLong, true
	case float64Typ:
		return KindDouble, true
	case boolType:
		return KindBoolean, true
	case timeType:
		return KindDate, true
	case pointType:
		return KindGeoPoint, true
	default:
		return 0, false
	}
}

// Accepts reports whether an index value of type t can be stored in a field of kind k.
func (k Kind) Accepts(t reflect.Type) bool {
	return k.ValueType() == t
}
