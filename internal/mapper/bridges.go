package mapper

import (
	"github.com/kailas-cloud/searchmap/internal/bridge"
)

// Bridges holds the named bridge builders that tags and definitions refer to.
type Bridges struct {
	identifiers map[string]bridge.Builder[bridge.AnyIdentifierBridge]
	values      map[string]bridge.Builder[bridge.AnyValueBridge]
	types       map[string]bridge.Builder[bridge.TypeBridge]
	routing     map[string]bridge.Builder[bridge.RoutingKeyBridge]
}

// NewBridges returns an empty registry.
func NewBridges() *Bridges {
	return &Bridges{
		identifiers: map[string]bridge.Builder[bridge.AnyIdentifierBridge]{},
		values:      map[string]bridge.Builder[bridge.AnyValueBridge]{},
		types:       map[string]bridge.Builder[bridge.TypeBridge]{},
		routing:     map[string]bridge.Builder[bridge.RoutingKeyBridge]{},
	}
}

// Identifier registers a named identifier bridge.
func (b *Bridges) Identifier(name string, builder bridge.Builder[bridge.AnyIdentifierBridge]) *Bridges {
	b.identifiers[name] = builder
	return b
}

// Value registers a named value bridge.
func (b *Bridges) Value(name string, builder bridge.Builder[bridge.AnyValueBridge]) *Bridges {
	b.values[name] = builder
	return b
}

// Type registers a named type bridge.
func (b *Bridges) Type(name string, builder bridge.Builder[bridge.TypeBridge]) *Bridges {
	b.types[name] = builder
	return b
}

// RoutingKey registers a named routing key bridge.
func (b *Bridges) RoutingKey(name string, builder bridge.Builder[bridge.RoutingKeyBridge]) *Bridges {
	b.routing[name] = builder
	return b
}

func lookup[B any](m map[string]bridge.Builder[B], kind, name string) (bridge.Builder[B], error) {
	builder, ok := m[name]
	if !ok {
		return nil, &UnknownBridgeError{Kind: kind, Name: name}
	}
	return builder, nil
}
