package typemodel

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// PathSegment is one property step, optionally followed by container unwrapping.
type PathSegment struct {
	Name       string
	Containers int
}

// ParsePath parses "author.name" or "tags[]" style property paths.
func ParsePath(path string) ([]PathSegment, error) {
	if path == "" {
		return nil, errors.New("empty path")
	}
	var segments []PathSegment
	for part := range strings.SplitSeq(path, ".") {
		seg := PathSegment{Name: part}
		for strings.HasSuffix(seg.Name, "[]") {
			seg.Name = strings.TrimSuffix(seg.Name, "[]")
			seg.Containers++
		}
		if seg.Name == "" {
			return nil, fmt.Errorf("invalid path %q: empty segment", path)
		}
		segments = append(segments, seg)
	}
	return segments, nil
}

// ResolvePath walks a dotted property path from root, unwrapping pointers and,
// where the path says so, container elements.
func ResolvePath(root GenericTypeModel, path string) (GenericTypeModel, error) {
	segments, err := ParsePath(path)
	if err != nil {
		return nil, &PathError{Path: path, Type: root.Type(), Err: err}
	}
	current := root
	for _, seg := range segments {
		current = derefModel(current)
		p, ok := current.Property(seg.Name)
		if !ok {
			return nil, &PathError{
				Path: path,
				Type: root.Type(),
				Err:  fmt.Errorf("%w %q on %s", ErrNoSuchProperty, seg.Name, current.Name()),
			}
		}
		current = current.PropertyType(p)
		for range seg.Containers {
			current = derefModel(current)
			elem, ok := containerElement(current.Type())
			if !ok {
				return nil, &PathError{
					Path: path,
					Type: root.Type(),
					Err:  fmt.Errorf("property %q is not a container", seg.Name),
				}
			}
			current = current.PropertyType(&PropertyModel{Name: seg.Name, Declaring: current.Type(), Type: elem})
		}
	}
	return current, nil
}

func derefModel(m GenericTypeModel) GenericTypeModel {
	for {
		elem, ok := m.TypeArgument(reflect.Pointer, 0)
		if !ok {
			return m
		}
		m = m.PropertyType(&PropertyModel{Name: "*", Declaring: m.Type(), Type: elem})
	}
}

// containerElement returns the element type of a slice, array or map value.
func containerElement(t reflect.Type) (reflect.Type, bool) {
	switch t.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return t.Elem(), true
	default:
		return nil, false
	}
}

// Element unwraps pointers and at most one container level (slice, array or
// map value) of m, then any pointers under it. container reports whether a
// container level was unwrapped. Byte slices are not treated as containers.
func Element(m GenericTypeModel) (elem GenericTypeModel, container bool) {
	m = derefModel(m)
	t := m.Type()
	if t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8 {
		return m, false
	}
	et, ok := containerElement(t)
	if !ok {
		return m, false
	}
	m = m.PropertyType(&PropertyModel{Name: "[]", Declaring: t, Type: et})
	return derefModel(m), true
}
