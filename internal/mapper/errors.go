package mapper

import (
	"errors"
	"fmt"
)

var (
	// ErrNoIdentifier is reported for an indexed type without a document identifier.
	ErrNoIdentifier = errors.New("no document identifier: tag a property with \"id\" or declare an ID field")
	// ErrNotIndexed is reported for a root type that is not mapped to an index.
	ErrNotIndexed = errors.New("type is not mapped to an index")
	// ErrCyclicEmbedding is reported for unbounded embedding of a type already on the path.
	ErrCyclicEmbedding = errors.New("cyclic indexed-embedded: set a depth")
	// ErrUnknownType is returned when an entity's type has no mapping.
	ErrUnknownType = errors.New("type is not mapped")
)

// UnknownBridgeError names a bridge reference that no registration serves.
type UnknownBridgeError struct {
	Kind string
	Name string
}

func (e *UnknownBridgeError) Error() string {
	return fmt.Sprintf("unknown %s bridge %q", e.Kind, e.Name)
}
