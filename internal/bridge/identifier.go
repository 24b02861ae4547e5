package bridge

import (
	"reflect"
	"strconv"

	"github.com/google/uuid"

	"github.com/kailas-cloud/searchmap/internal/typemodel"
)

// Signed is the set of signed integer types.
type Signed interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64
}

// Unsigned is the set of unsigned integer types.
type Unsigned interface {
	~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// StringIdentifierBridge uses string identifiers as-is.
type StringIdentifierBridge[S ~string] struct{}

func (StringIdentifierBridge[S]) ToDocumentIdentifier(value S, _ *IdentifierContext) (string, error) {
	return string(value), nil
}

func (StringIdentifierBridge[S]) FromDocumentIdentifier(id string, _ *IdentifierContext) (S, error) {
	return S(id), nil
}

func (StringIdentifierBridge[S]) Cast(v any) (S, error) { return typemodel.Cast[S](v) }

// IntIdentifierBridge renders signed integers in base 10.
type IntIdentifierBridge[I Signed] struct{}

func (IntIdentifierBridge[I]) ToDocumentIdentifier(value I, _ *IdentifierContext) (string, error) {
	return strconv.FormatInt(int64(value), 10), nil
}

func (IntIdentifierBridge[I]) FromDocumentIdentifier(id string, _ *IdentifierContext) (I, error) {
	n, err := strconv.ParseInt(id, 10, bitSize[I]())
	if err != nil {
		return 0, conversionError("identifier %q: %v", id, err)
	}
	return I(n), nil
}

func (IntIdentifierBridge[I]) Cast(v any) (I, error) { return typemodel.Cast[I](v) }

// UintIdentifierBridge renders unsigned integers in base 10.
type UintIdentifierBridge[U Unsigned] struct{}

func (UintIdentifierBridge[U]) ToDocumentIdentifier(value U, _ *IdentifierContext) (string, error) {
	return strconv.FormatUint(uint64(value), 10), nil
}

func (UintIdentifierBridge[U]) FromDocumentIdentifier(id string, _ *IdentifierContext) (U, error) {
	n, err := strconv.ParseUint(id, 10, bitSize[U]())
	if err != nil {
		return 0, conversionError("identifier %q: %v", id, err)
	}
	return U(n), nil
}

func (UintIdentifierBridge[U]) Cast(v any) (U, error) { return typemodel.Cast[U](v) }

// UUIDIdentifierBridge renders UUIDs in their canonical lowercase form.
type UUIDIdentifierBridge struct{}

func (UUIDIdentifierBridge) ToDocumentIdentifier(value uuid.UUID, _ *IdentifierContext) (string, error) {
	return value.String(), nil
}

func (UUIDIdentifierBridge) FromDocumentIdentifier(id string, _ *IdentifierContext) (uuid.UUID, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, conversionError("identifier %q: %v", id, err)
	}
	// uuid.Parse accepts several encodings; only the canonical one round-trips.
	if u.String() != id {
		return uuid.Nil, conversionError("identifier %q is not in canonical form", id)
	}
	return u, nil
}

func (UUIDIdentifierBridge) Cast(v any) (uuid.UUID, error) { return typemodel.Cast[uuid.UUID](v) }

func bitSize[T any]() int {
	return reflect.TypeFor[T]().Bits()
}
