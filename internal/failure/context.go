package failure

import (
	"fmt"
	"strings"
)

// Kind names the element an EventContext points at.
type Kind string

// Context kinds.
const (
	KindType    Kind = "type"
	KindPath    Kind = "path"
	KindIndex   Kind = "index"
	KindField   Kind = "field"
	KindBackend Kind = "backend"
)

// EventContext locates a failure inside the mapping: a type, a property path, an index...
type EventContext struct {
	Kind Kind
	Name string
}

// Type returns a type context.
func Type(name string) EventContext { return EventContext{Kind: KindType, Name: name} }

// Path returns a property path context.
func Path(path string) EventContext { return EventContext{Kind: KindPath, Name: path} }

// Index returns an index context.
func Index(name string) EventContext { return EventContext{Kind: KindIndex, Name: name} }

// Field returns an index field path context.
func Field(path string) EventContext { return EventContext{Kind: KindField, Name: path} }

// Backend returns a backend context.
func Backend(name string) EventContext { return EventContext{Kind: KindBackend, Name: name} }

func (c EventContext) String() string {
	return fmt.Sprintf("%s '%s'", c.Kind, c.Name)
}

// Render joins contexts as "type 'Book', path '.title'".
func Render(contexts []EventContext) string {
	parts := make([]string, len(contexts))
	for i, c := range contexts {
		parts[i] = c.String()
	}
	return strings.Join(parts, ", ")
}

// ContextError is a single error tagged with the contexts it occurred in.
type ContextError struct {
	Contexts []EventContext
	Err      error
}

// WithContext tags err with contexts. A nil err yields nil.
func WithContext(err error, contexts ...EventContext) error {
	if err == nil {
		return nil
	}
	return &ContextError{Contexts: contexts, Err: err}
}

func (e *ContextError) Error() string {
	if len(e.Contexts) == 0 {
		return e.Err.Error()
	}
	return Render(e.Contexts) + ": " + e.Err.Error()
}

func (e *ContextError) Unwrap() error { return e.Err }

// Has reports whether the error carries a context of the given kind and name.
func (e *ContextError) Has(kind Kind, name string) bool {
	for _, c := range e.Contexts {
		if c.Kind == kind && c.Name == name {
			return true
		}
	}
	return false
}
