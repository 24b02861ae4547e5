package bridge

import (
	"fmt"
	"reflect"

	"github.com/kailas-cloud/searchmap/internal/typemodel"
)

// AnyIdentifierBridge is the untyped view of an identifier bridge used by the mapper.
type AnyIdentifierBridge interface {
	ToDocumentIdentifier(value any, ctx *IdentifierContext) (string, error)
	FromDocumentIdentifier(id string, ctx *IdentifierContext) (any, error)
	Cast(v any) (any, error)
	IdentifierType() reflect.Type
	// Bridge returns the wrapped bridge, for hooks and compatibility checks.
	Bridge() any
}

// AnyValueBridge is the untyped view of a value bridge used by the mapper.
type AnyValueBridge interface {
	ToIndexedValue(value any, ctx *ValueContext) (any, error)
	FromIndexedValue(value any, ctx *ValueContext) (any, error)
	ValueType() reflect.Type
	IndexedType() reflect.Type
	Bridge() any
}

type typedIdentifier[I any] struct {
	bridge IdentifierBridge[I]
}

// WrapIdentifier exposes a typed identifier bridge to the mapper.
func WrapIdentifier[I any](b IdentifierBridge[I]) AnyIdentifierBridge {
	return &typedIdentifier[I]{bridge: b}
}

func (t *typedIdentifier[I]) ToDocumentIdentifier(value any, ctx *IdentifierContext) (string, error) {
	v, err := t.bridge.Cast(value)
	if err != nil {
		return "", err
	}
	return t.bridge.ToDocumentIdentifier(v, ctx)
}

func (t *typedIdentifier[I]) FromDocumentIdentifier(id string, ctx *IdentifierContext) (any, error) {
	return t.bridge.FromDocumentIdentifier(id, ctx)
}

func (t *typedIdentifier[I]) Cast(v any) (any, error) { return t.bridge.Cast(v) }
func (t *typedIdentifier[I]) IdentifierType() reflect.Type { return reflect.TypeFor[I]() }
func (t *typedIdentifier[I]) Bridge() any { return t.bridge }

// Close forwards to the wrapped bridge's close hook.
func (t *typedIdentifier[I]) Close() error { return Close(t.bridge) }

type typedValue[V, F any] struct {
	bridge ValueBridge[V, F]
}

// WrapValue exposes a typed value bridge to the mapper.
func WrapValue[V, F any](b ValueBridge[V, F]) AnyValueBridge {
	return &typedValue[V, F]{bridge: b}
}

func (t *typedValue[V, F]) ToIndexedValue(value any, ctx *ValueContext) (any, error) {
	v, err := typemodel.Cast[V](value)
	if err != nil {
		return nil, err
	}
	return t.bridge.ToIndexedValue(v, ctx)
}

func (t *typedValue[V, F]) FromIndexedValue(value any, ctx *ValueContext) (any, error) {
	f, err := typemodel.Cast[F](value)
	if err != nil {
		return nil, err
	}
	return t.bridge.FromIndexedValue(f, ctx)
}

func (t *typedValue[V, F]) ValueType() reflect.Type   { return reflect.TypeFor[V]() }
func (t *typedValue[V, F]) IndexedType() reflect.Type { return reflect.TypeFor[F]() }
func (t *typedValue[V, F]) Bridge() any               { return t.bridge }

// Close forwards to the wrapped bridge's close hook.
func (t *typedValue[V, F]) Close() error { return Close(t.bridge) }

// kindIdentifier serves named string and integer identifier types.
type kindIdentifier struct {
	typ reflect.Type
}

func (k *kindIdentifier) ToDocumentIdentifier(value any, _ *IdentifierContext) (string, error) {
	v, err := typemodel.CastTo(k.typ, value)
	if err != nil {
		return "", err
	}
	rv := reflect.ValueOf(v)
	switch k.typ.Kind() {
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return fmt.Sprint(rv.Int()), nil
	default:
		return fmt.Sprint(rv.Uint()), nil
	}
}

func (k *kindIdentifier) FromDocumentIdentifier(id string, _ *IdentifierContext) (any, error) {
	out := reflect.New(k.typ).Elem()
	switch k.typ.Kind() {
	case reflect.String:
		out.SetString(id)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		var n int64
		if _, err := fmt.Sscan(id, &n); err != nil || out.OverflowInt(n) || fmt.Sprint(n) != id {
			return nil, conversionError("identifier %q is not a valid %s", id, k.typ)
		}
		out.SetInt(n)
	default:
		var n uint64
		if _, err := fmt.Sscan(id, &n); err != nil || out.OverflowUint(n) || fmt.Sprint(n) != id {
			return nil, conversionError("identifier %q is not a valid %s", id, k.typ)
		}
		out.SetUint(n)
	}
	return out.Interface(), nil
}

func (k *kindIdentifier) Cast(v any) (any, error)      { return typemodel.CastTo(k.typ, v) }
func (k *kindIdentifier) IdentifierType() reflect.Type { return k.typ }
func (k *kindIdentifier) Bridge() any                  { return k }

// kindValue serves named types whose underlying kind maps to an index-level type.
type kindValue struct {
	typ     reflect.Type
	indexed reflect.Type
}

func (k *kindValue) ToIndexedValue(value any, _ *ValueContext) (any, error) {
	v, err := typemodel.CastTo(k.typ, value)
	if err != nil {
		return nil, err
	}
	rv := reflect.ValueOf(v)
	if k.typ.Kind() == reflect.Uint64 || k.typ.Kind() == reflect.Uint {
		if rv.Uint() > 1<<63-1 {
			return nil, conversionError("%d overflows int64", rv.Uint())
		}
	}
	return rv.Convert(k.indexed).Interface(), nil
}

func (k *kindValue) FromIndexedValue(value any, _ *ValueContext) (any, error) {
	v, err := typemodel.CastTo(k.indexed, value)
	if err != nil {
		return nil, err
	}
	rv := reflect.ValueOf(v)
	out := reflect.New(k.typ).Elem()
	switch {
	case out.CanInt():
		if out.OverflowInt(rv.Int()) {
			return nil, conversionError("%d overflows %s", rv.Int(), k.typ)
		}
	case out.CanUint():
		if rv.Int() < 0 || out.OverflowUint(uint64(rv.Int())) {
			return nil, conversionError("%d overflows %s", rv.Int(), k.typ)
		}
	case out.CanFloat():
		if out.OverflowFloat(rv.Float()) {
			return nil, conversionError("%g overflows %s", rv.Float(), k.typ)
		}
	}
	out.Set(rv.Convert(k.typ))
	return out.Interface(), nil
}

func (k *kindValue) ValueType() reflect.Type   { return k.typ }
func (k *kindValue) IndexedType() reflect.Type { return k.indexed }
func (k *kindValue) Bridge() any               { return k }
