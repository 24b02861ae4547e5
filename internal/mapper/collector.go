package mapper

import (
	"github.com/kailas-cloud/searchmap/internal/bridge"
	"github.com/kailas-cloud/searchmap/internal/failure"
	"github.com/kailas-cloud/searchmap/internal/schema"
	"github.com/kailas-cloud/searchmap/internal/typemodel"
)

// TypeNode receives the type-level bindings of one mapped type, at the root or
// under an indexed-embedded property.
type TypeNode interface {
	FailureCollector() *failure.Collector
	Bridge(builder bridge.Builder[bridge.TypeBridge])
	RoutingKeyBridge(builder bridge.Builder[bridge.RoutingKeyBridge])
	Property(name string) PropertyNode
}

// PropertyNode receives the bindings of one property. A nil builder selects
// the default bridge of the property type.
type PropertyNode interface {
	FailureCollector() *failure.Collector
	IdentifierBridge(builder bridge.Builder[bridge.AnyIdentifierBridge])
	// ValueBridge declares an index field. A nil kind selects the natural kind
	// of the bridge's indexed type.
	ValueBridge(builder bridge.Builder[bridge.AnyValueBridge], fieldName string, kind *schema.Kind, opts schema.FieldOptions)
	IndexedEmbedded(prefix string, depth int)
}

// IdentityCollector receives the identifier and routing bridges of an indexed
// type. Only the root node of an indexed type has one.
type IdentityCollector interface {
	IdentifierBridge(path string, prop *typemodel.PropertyModel, b bridge.AnyIdentifierBridge)
	RoutingKeyBridge(b bridge.RoutingKeyBridge)
}

type identity struct {
	failures *failure.Collector
	path     string
	property *typemodel.PropertyModel
	bridge   bridge.AnyIdentifierBridge
	routing  bridge.RoutingKeyBridge
}

func (i *identity) IdentifierBridge(path string, prop *typemodel.PropertyModel, b bridge.AnyIdentifierBridge) {
	if i.bridge != nil {
		i.failures.Addf("multiple document identifiers: %s and %s", i.path, path)
		return
	}
	i.path, i.property, i.bridge = path, prop, b
}

func (i *identity) RoutingKeyBridge(b bridge.RoutingKeyBridge) {
	if i.routing != nil {
		i.failures.Addf("multiple routing key bridges")
		return
	}
	i.routing = b
}

// contribute applies a type descriptor to a node. Named bridges are resolved
// here; unknown names are reported on the node that refers to them.
func contribute(node TypeNode, td *TypeDescriptor, bridges *Bridges) {
	for _, d := range td.Bindings {
		switch d.Kind {
		case DescriptorTypeBridge:
			b, err := lookup(bridges.types, "type", d.Bridge)
			if err != nil {
				node.FailureCollector().Add(err)
				continue
			}
			node.Bridge(b)
		case DescriptorRoutingKey:
			b, err := lookup(bridges.routing, "routing key", d.Bridge)
			if err != nil {
				node.FailureCollector().Add(err)
				continue
			}
			node.RoutingKeyBridge(b)
		default:
			node.FailureCollector().Addf("%s binding is not allowed on a type", d.Kind)
		}
	}

	for _, p := range td.Properties {
		pn := node.Property(p.Property)
		if pn == nil {
			continue
		}
		for _, d := range p.Bindings {
			contributeProperty(pn, d, bridges)
		}
	}
}

func contributeProperty(pn PropertyNode, d Descriptor, bridges *Bridges) {
	var kind *schema.Kind
	if d.HasKind {
		k := d.FieldKind
		kind = &k
	}
	switch d.Kind {
	case DescriptorDocumentID:
		if d.Bridge == "" {
			pn.IdentifierBridge(nil)
			return
		}
		b, err := lookup(bridges.identifiers, "identifier", d.Bridge)
		if err != nil {
			pn.FailureCollector().Add(err)
			return
		}
		pn.IdentifierBridge(b)
	case DescriptorField, DescriptorGeoPoint:
		pn.ValueBridge(nil, d.FieldName, kind, d.Options)
	case DescriptorValueBridge:
		b, err := lookup(bridges.values, "value", d.Bridge)
		if err != nil {
			pn.FailureCollector().Add(err)
			return
		}
		pn.ValueBridge(b, d.FieldName, kind, d.Options)
	case DescriptorIndexedEmbedded:
		pn.IndexedEmbedded(d.Prefix, d.Depth)
	default:
		pn.FailureCollector().Addf("%s binding is not allowed on a property", d.Kind)
	}
}
