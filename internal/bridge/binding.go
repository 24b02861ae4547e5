package bridge

import (
	"reflect"

	"github.com/kailas-cloud/searchmap/internal/schema"
	"github.com/kailas-cloud/searchmap/internal/typemodel"
)

// IdentifierBindingContext is handed to identifier bridges at bind time.
type IdentifierBindingContext struct {
	// BridgedElement is the declared static type of the identifier property.
	BridgedElement typemodel.GenericTypeModel
	PropertyPath   string
}

// ValueBindingContext is handed to value bridges at bind time. A bridge may
// adjust Kind and Options before the index field is declared.
type ValueBindingContext struct {
	BridgedElement typemodel.GenericTypeModel
	FieldName      string
	Kind           schema.Kind
	Options        schema.FieldOptions
	IndexedType    reflect.Type
}

// TypeBindingContext is handed to type bridges at bind time. Fields declared
// on Schema are the only ones the bridge may later write.
type TypeBindingContext struct {
	BridgedElement typemodel.GenericTypeModel
	Schema         *schema.ElementBuilder
	Introspector   *typemodel.Introspector
}

// RoutingKeyBindingContext is handed to routing key bridges at bind time.
type RoutingKeyBindingContext struct {
	BridgedElement typemodel.GenericTypeModel
}
