package searchmap

import (
	"github.com/kailas-cloud/searchmap/internal/projection"
)

// ProjectID projects the entity identifier.
func ProjectID[I any]() Projection[I] { return projection.ID[I]() }

// ProjectScore projects the relevance score.
func ProjectScore() Projection[float64] { return projection.Score() }

// ProjectField projects the first value of a projectable field, converted back
// to the property type.
func ProjectField[V any](path string) Projection[V] { return projection.Field[V](path) }

// ProjectFields projects every value of a multi-valued field.
func ProjectFields[V any](path string) Projection[[]V] { return projection.Fields[V](path) }

// ProjectReference projects a reference to the entity without loading it.
func ProjectReference() Projection[EntityReference] { return projection.Reference() }

// ProjectEntity projects the loaded entity. E is a pointer to the mapped type,
// or any in a multi-index search.
func ProjectEntity[E any]() Projection[E] { return projection.Entity[E]() }

// ProjectDistance projects the distance in meters from center to a geo point field.
func ProjectDistance(path string, center Point) Projection[float64] {
	return projection.Distance(path, center)
}

// Composite2 combines two projections.
func Composite2[A, B, R any](p1 Projection[A], p2 Projection[B], fn func(A, B) (R, error)) Projection[R] {
	return projection.Composite2(p1, p2, fn)
}

// Composite3 combines three projections.
func Composite3[A, B, C, R any](
	p1 Projection[A], p2 Projection[B], p3 Projection[C], fn func(A, B, C) (R, error),
) Projection[R] {
	return projection.Composite3(p1, p2, p3, fn)
}

// CompositeN combines any number of projections; fn receives their values in order.
func CompositeN[R any](fn func([]any) (R, error), children ...Projection[any]) Projection[R] {
	return projection.CompositeN(fn, children...)
}

// Erase hides the type of p, for use in CompositeN.
func Erase[T any](p Projection[T]) Projection[any] { return projection.Erase(p) }
