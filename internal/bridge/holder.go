package bridge

import (
	"sync"

	"go.uber.org/zap"

	"github.com/kailas-cloud/searchmap/internal/typemodel"
)

// BuildContext is passed to bridge builders.
type BuildContext struct {
	Introspector *typemodel.Introspector
	Logger       *zap.Logger
}

// Holder owns a bridge instance and releases it once.
type Holder[B any] struct {
	instance B
	once     sync.Once
	err      error
}

// NewHolder wraps an instance; closing the holder closes the instance if it is an io.Closer.
func NewHolder[B any](instance B) *Holder[B] {
	return &Holder[B]{instance: instance}
}

// Get returns the held instance.
func (h *Holder[B]) Get() B { return h.instance }

// Close releases the instance. Subsequent calls return the first result.
func (h *Holder[B]) Close() error {
	h.once.Do(func() {
		h.err = Close(any(h.instance))
	})
	return h.err
}

// Builder creates a bridge at mapping time.
type Builder[B any] interface {
	Build(ctx *BuildContext) (*Holder[B], error)
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc[B any] func(ctx *BuildContext) (B, error)

// Build implements Builder.
func (f BuilderFunc[B]) Build(ctx *BuildContext) (*Holder[B], error) {
	b, err := f(ctx)
	if err != nil {
		return nil, err
	}
	return NewHolder(b), nil
}

// Instance returns a builder that always yields the same bridge instance.
func Instance[B any](b B) Builder[B] {
	return BuilderFunc[B](func(*BuildContext) (B, error) { return b, nil })
}
