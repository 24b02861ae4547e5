package bridge

import (
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/kailas-cloud/searchmap/internal/schema"
)

// ErrConversion is wrapped by bridge conversion failures.
var ErrConversion = errors.New("bridge conversion failed")

// IdentifierContext is passed to identifier conversions at runtime.
type IdentifierContext struct {
	TenantID string
}

// ValueContext is passed to value conversions at runtime.
type ValueContext struct {
	TenantID string
}

// TypeContext is passed to type bridges when writing a document.
type TypeContext struct {
	TenantID string
}

// IdentifierBridge converts an entity identifier to and from a document
// identifier. ToDocumentIdentifier must be injective and FromDocumentIdentifier
// its exact left inverse. Cast must fail fast on incompatible values.
type IdentifierBridge[I any] interface {
	ToDocumentIdentifier(value I, ctx *IdentifierContext) (string, error)
	FromDocumentIdentifier(id string, ctx *IdentifierContext) (I, error)
	Cast(v any) (I, error)
}

// ValueBridge converts a property value V to an index-level value F and back.
// F must be one of string, int64, float64, bool, time.Time or geo.Point.
type ValueBridge[V, F any] interface {
	ToIndexedValue(value V, ctx *ValueContext) (F, error)
	FromIndexedValue(value F, ctx *ValueContext) (V, error)
}

// TypeBridge contributes arbitrary fields computed from a whole entity.
type TypeBridge interface {
	Bind(ctx *TypeBindingContext) error
	Write(target schema.DocumentElement, entity any, ctx *TypeContext) error
}

// RoutingKeyBridge computes the routing key of an entity.
type RoutingKeyBridge interface {
	ToRoutingKey(tenantID string, entityID any, entity any) (string, error)
}

// Binder is the optional one-time bind hook.
type Binder[C any] interface {
	Bind(ctx C) error
}

// Compatible overrides the default identity compatibility of a bridge.
type Compatible interface {
	IsCompatibleWith(other any) bool
}

// IsCompatible reports whether two bridges give the same search DSL semantics.
// Without a Compatible hook only the same instance is compatible with itself.
func IsCompatible(a, b any) bool {
	if c, ok := a.(Compatible); ok {
		return c.IsCompatibleWith(b)
	}
	return Identical(a, b)
}

// Identical reports whether a and b are the same bridge instance.
func Identical(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	switch ta.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.UnsafePointer, reflect.Slice:
		return reflect.ValueOf(a).UnsafePointer() == reflect.ValueOf(b).UnsafePointer()
	}
	if !ta.Comparable() {
		return false
	}
	return a == b
}

// Bind calls the bridge's bind hook if it has one.
func Bind[C any](b any, ctx C) error {
	if binder, ok := b.(Binder[C]); ok {
		return binder.Bind(ctx)
	}
	return nil
}

// Close calls the bridge's close hook if it has one.
func Close(b any) error {
	if c, ok := b.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func conversionError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConversion, fmt.Sprintf(format, args...))
}
