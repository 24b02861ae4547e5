package mapper

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/kailas-cloud/searchmap/internal/bridge"
	"github.com/kailas-cloud/searchmap/internal/failure"
	"github.com/kailas-cloud/searchmap/internal/schema"
)

type processContext struct {
	tenantID string
	value    *bridge.ValueContext
	typ      *bridge.TypeContext
}

func newProcessContext(tenantID string) *processContext {
	return &processContext{
		tenantID: tenantID,
		value:    &bridge.ValueContext{TenantID: tenantID},
		typ:      &bridge.TypeContext{TenantID: tenantID},
	}
}

// typeProcessor writes one struct value into a document element.
type typeProcessor struct {
	typeBridges []bridge.TypeBridge
	properties  []*propertyProcessor
}

func (tp *typeProcessor) process(target schema.DocumentElement, v reflect.Value, pc *processContext) error {
	if !v.IsValid() || (v.Kind() == reflect.Pointer && v.IsNil()) {
		return nil
	}
	for _, tb := range tp.typeBridges {
		if err := tb.Write(target, v.Interface(), pc.typ); err != nil {
			return fmt.Errorf("type bridge %T: %w", tb, err)
		}
	}
	for _, pp := range tp.properties {
		if err := pp.process(target, v, pc); err != nil {
			return err
		}
	}
	return nil
}

type valueProcessor struct {
	bridge    bridge.AnyValueBridge
	ref       *schema.FieldReference
	container bool
}

type embeddedProcessor struct {
	object    *schema.ObjectReference
	container bool
	processor *typeProcessor
}

type propertyProcessor struct {
	prop     propertyReader
	path     string
	values   []valueProcessor
	embedded []embeddedProcessor
}

type propertyReader interface {
	Value(v reflect.Value) (reflect.Value, bool)
}

func (pp *propertyProcessor) process(target schema.DocumentElement, v reflect.Value, pc *processContext) error {
	fv, ok := pp.prop.Value(v)
	if !ok {
		return nil
	}
	for _, vp := range pp.values {
		for _, e := range elements(fv, vp.container) {
			if err := vp.write(target, e, pc); err != nil {
				return failure.WithContext(err, failure.Path(pp.path))
			}
		}
	}
	for _, ep := range pp.embedded {
		for _, e := range elements(fv, ep.container) {
			el := target
			if ep.object != nil {
				el = target.AddObject(ep.object)
			}
			if err := ep.processor.process(el, e, pc); err != nil {
				return err
			}
		}
	}
	return nil
}

func (vp valueProcessor) write(target schema.DocumentElement, e reflect.Value, pc *processContext) error {
	vt := vp.bridge.ValueType()
	if !e.Type().AssignableTo(vt) && valueAssignable(e.Type(), vt) {
		e = e.Convert(vt)
	}
	indexed, err := vp.bridge.ToIndexedValue(e.Interface(), pc.value)
	if err != nil {
		return err
	}
	return target.Add(vp.ref, indexed)
}

// elements returns the non-nil values held by v: the value itself, or each
// element when v is a container. Pointers are dereferenced and nil pointers
// contribute nothing. Map values are visited in key order.
func elements(v reflect.Value, container bool) []reflect.Value {
	v, ok := deref(v)
	if !ok {
		return nil
	}
	if !container {
		return []reflect.Value{v}
	}
	var out []reflect.Value
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		for i := range v.Len() {
			if e, ok := deref(v.Index(i)); ok {
				out = append(out, e)
			}
		}
	case reflect.Map:
		keys := v.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
		})
		for _, k := range keys {
			if e, ok := deref(v.MapIndex(k)); ok {
				out = append(out, e)
			}
		}
	}
	return out
}

func deref(v reflect.Value) (reflect.Value, bool) {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}
	return v, v.IsValid()
}
