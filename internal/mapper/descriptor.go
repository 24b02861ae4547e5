package mapper

import (
	"fmt"
	"reflect"

	"github.com/kailas-cloud/searchmap/internal/schema"
)

// DescriptorKind tags the variant held by a Descriptor.
type DescriptorKind int

// Descriptor kinds.
const (
	DescriptorDocumentID DescriptorKind = iota
	DescriptorField
	DescriptorGeoPoint
	DescriptorIndexedEmbedded
	DescriptorValueBridge
	DescriptorTypeBridge
	DescriptorRoutingKey
)

func (k DescriptorKind) String() string {
	switch k {
	case DescriptorDocumentID:
		return "document_id"
	case DescriptorField:
		return "field"
	case DescriptorGeoPoint:
		return "geo_point"
	case DescriptorIndexedEmbedded:
		return "indexed_embedded"
	case DescriptorValueBridge:
		return "value_bridge"
	case DescriptorTypeBridge:
		return "type_bridge"
	case DescriptorRoutingKey:
		return "routing_key"
	default:
		return fmt.Sprintf("descriptor(%d)", int(k))
	}
}

// Descriptor is one binding rule. Which fields are meaningful depends on Kind:
//
//	DocumentID       Bridge (optional identifier bridge name)
//	Field            FieldName, FieldKind if HasKind, Options
//	GeoPoint         FieldName, Options
//	ValueBridge      Bridge, FieldName, FieldKind if HasKind, Options
//	IndexedEmbedded  Prefix, Depth
//	TypeBridge       Bridge
//	RoutingKey       Bridge
type Descriptor struct {
	Kind      DescriptorKind
	FieldName string
	FieldKind schema.Kind
	HasKind   bool
	Options   schema.FieldOptions
	Bridge    string
	Prefix    string
	Depth     int
}

// PropertyDescriptor groups the bindings of one property.
type PropertyDescriptor struct {
	Property string
	Bindings []Descriptor
}

// TypeDescriptor is the complete mapping declaration of one type.
type TypeDescriptor struct {
	Type       reflect.Type
	Index      string
	Backend    string
	Bindings   []Descriptor
	Properties []PropertyDescriptor
}

// Indexed reports whether the type is mapped to its own index.
func (d *TypeDescriptor) Indexed() bool { return d.Index != "" }

func (d *TypeDescriptor) property(name string) *PropertyDescriptor {
	for i := range d.Properties {
		if d.Properties[i].Property == name {
			return &d.Properties[i]
		}
	}
	d.Properties = append(d.Properties, PropertyDescriptor{Property: name})
	return &d.Properties[len(d.Properties)-1]
}

// merge appends other's declarations; other's index and backend win when set.
func (d *TypeDescriptor) merge(other *TypeDescriptor) {
	if other.Index != "" {
		d.Index = other.Index
	}
	if other.Backend != "" {
		d.Backend = other.Backend
	}
	d.Bindings = append(d.Bindings, other.Bindings...)
	for _, p := range other.Properties {
		target := d.property(p.Property)
		target.Bindings = append(target.Bindings, p.Bindings...)
	}
}
