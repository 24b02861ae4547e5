package typemodel

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrTypeMismatch is the sentinel wrapped by every *CastError.
var ErrTypeMismatch = errors.New("type mismatch")

// CastError reports a value whose dynamic type is incompatible with the expected type.
type CastError struct {
	Expected reflect.Type
	Actual   reflect.Type // nil for an untyped nil value
}

func (e *CastError) Error() string {
	actual := "nil"
	if e.Actual != nil {
		actual = e.Actual.String()
	}
	return fmt.Sprintf("cannot cast %s to %s: %v", actual, e.Expected, ErrTypeMismatch)
}

func (e *CastError) Unwrap() error { return ErrTypeMismatch }

// CastTo performs a checked narrowing of v to typ. The value is returned
// unchanged when assignable, or dereferenced once when v is a non-nil pointer
// to an assignable type. No conversion is ever applied.
func CastTo(typ reflect.Type, v any) (any, error) {
	if v == nil {
		switch typ.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
			return reflect.Zero(typ).Interface(), nil
		default:
			return nil, &CastError{Expected: typ}
		}
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(typ) {
		return v, nil
	}
	if rv.Kind() == reflect.Pointer && !rv.IsNil() && rv.Type().Elem().AssignableTo(typ) {
		return rv.Elem().Interface(), nil
	}
	return nil, &CastError{Expected: typ, Actual: rv.Type()}
}

// Cast is the typed form of CastTo.
func Cast[T any](v any) (T, error) {
	var zero T
	typ := reflect.TypeFor[T]()
	out, err := CastTo(typ, v)
	if err != nil {
		return zero, err
	}
	if out == nil {
		return zero, nil
	}
	return out.(T), nil
}

// PathError reports a property path that does not resolve against a type.
type PathError struct {
	Path string
	Type reflect.Type
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("path %q on %s: %v", e.Path, e.Type, e.Err)
}

func (e *PathError) Unwrap() error { return e.Err }

// ErrNoSuchProperty is wrapped by a *PathError naming an unknown property.
var ErrNoSuchProperty = errors.New("no such property")
