package projection

import (
	"fmt"

	"github.com/kailas-cloud/searchmap/internal/geo"
	"github.com/kailas-cloud/searchmap/internal/typemodel"
)

func castOrZero[T any](v any) (T, error) {
	var zero T
	if v == nil {
		return zero, nil
	}
	return typemodel.Cast[T](v)
}

type hitRef struct {
	index string
	id    string
}

type idProjection[I any] struct{}

// ID projects the entity identifier, converted through the identifier bridge.
func ID[I any]() Projection[I] { return idProjection[I]{} }

func (idProjection[I]) Collect(hit *Hit) any {
	return hitRef{index: hit.Index, id: hit.DocumentID}
}

func (idProjection[I]) Extract(_ HitMapper, raw any, ctx *ConvertContext) (any, error) {
	ref, ok := raw.(hitRef)
	if !ok {
		return nil, fmt.Errorf("id projection: %w", ErrMalformedExtract)
	}
	return ctx.Converter.Identifier(ref.index, ref.id)
}

func (idProjection[I]) Transform(_ LoadingResult, extracted any) (I, error) {
	return castOrZero[I](extracted)
}

type scoreProjection struct{}

// Score projects the relevance score.
func Score() Projection[float64] { return scoreProjection{} }

func (scoreProjection) Collect(hit *Hit) any { return hit.Score }

func (scoreProjection) Extract(_ HitMapper, raw any, _ *ConvertContext) (any, error) {
	return raw, nil
}

func (scoreProjection) Transform(_ LoadingResult, extracted any) (float64, error) {
	return castOrZero[float64](extracted)
}

type fieldValues struct {
	index  string
	values []any
}

type fieldProjection[V any] struct {
	path string
}

// Field projects the first stored value of a field, converted through its value bridge.
func Field[V any](path string) Projection[V] { return fieldProjection[V]{path: path} }

func (p fieldProjection[V]) Collect(hit *Hit) any {
	return fieldValues{index: hit.Index, values: hit.Fields[p.path]}
}

func (p fieldProjection[V]) Extract(_ HitMapper, raw any, ctx *ConvertContext) (any, error) {
	fv, ok := raw.(fieldValues)
	if !ok {
		return nil, fmt.Errorf("field projection %q: %w", p.path, ErrMalformedExtract)
	}
	if len(fv.values) == 0 {
		return nil, nil
	}
	return ctx.Converter.FieldValue(fv.index, p.path, fv.values[0])
}

func (p fieldProjection[V]) Transform(_ LoadingResult, extracted any) (V, error) {
	return castOrZero[V](extracted)
}

type multiFieldProjection[V any] struct {
	path string
}

// Fields projects every stored value of a multi-valued field.
func Fields[V any](path string) Projection[[]V] { return multiFieldProjection[V]{path: path} }

func (p multiFieldProjection[V]) Collect(hit *Hit) any {
	return fieldValues{index: hit.Index, values: hit.Fields[p.path]}
}

func (p multiFieldProjection[V]) Extract(_ HitMapper, raw any, ctx *ConvertContext) (any, error) {
	fv, ok := raw.(fieldValues)
	if !ok {
		return nil, fmt.Errorf("field projection %q: %w", p.path, ErrMalformedExtract)
	}
	out := make([]any, len(fv.values))
	for i, v := range fv.values {
		converted, err := ctx.Converter.FieldValue(fv.index, p.path, v)
		if err != nil {
			return nil, err
		}
		out[i] = converted
	}
	return out, nil
}

func (p multiFieldProjection[V]) Transform(_ LoadingResult, extracted any) ([]V, error) {
	values, _ := extracted.([]any)
	out := make([]V, len(values))
	for i, v := range values {
		typed, err := castOrZero[V](v)
		if err != nil {
			return nil, fmt.Errorf("field projection %q: %w", p.path, err)
		}
		out[i] = typed
	}
	return out, nil
}

type referenceProjection struct{}

// Reference projects a reference to the entity, without loading it.
func Reference() Projection[EntityReference] { return referenceProjection{} }

func (referenceProjection) Collect(hit *Hit) any {
	return hitRef{index: hit.Index, id: hit.DocumentID}
}

func (referenceProjection) Extract(_ HitMapper, raw any, ctx *ConvertContext) (any, error) {
	ref, ok := raw.(hitRef)
	if !ok {
		return nil, fmt.Errorf("reference projection: %w", ErrMalformedExtract)
	}
	return ctx.Converter.Reference(ref.index, ref.id)
}

func (referenceProjection) Transform(_ LoadingResult, extracted any) (EntityReference, error) {
	ref, _ := extracted.(EntityReference)
	return ref, nil
}

type entityProjection[E any] struct{}

// Entity projects the loaded entity. Loads are planned during Extract and
// resolved in bulk before Transform. An entity that no longer exists yields the zero value.
func Entity[E any]() Projection[E] { return entityProjection[E]{} }

func (entityProjection[E]) Collect(hit *Hit) any {
	return hitRef{index: hit.Index, id: hit.DocumentID}
}

func (entityProjection[E]) Extract(mapper HitMapper, raw any, ctx *ConvertContext) (any, error) {
	ref, ok := raw.(hitRef)
	if !ok {
		return nil, fmt.Errorf("entity projection: %w", ErrMalformedExtract)
	}
	er, err := ctx.Converter.Reference(ref.index, ref.id)
	if err != nil {
		return nil, err
	}
	return mapper.PlanLoading(er), nil
}

func (entityProjection[E]) Transform(result LoadingResult, extracted any) (E, error) {
	var zero E
	key, ok := extracted.(LoadingKey)
	if !ok {
		return zero, fmt.Errorf("entity projection: %w", ErrMalformedExtract)
	}
	entity, found := result.Get(key)
	if !found {
		return zero, nil
	}
	return castOrZero[E](entity)
}

type distanceProjection struct {
	path   string
	center geo.Point
}

// Distance projects the distance in meters between a geo-point field and center.
// Hits without a value project -1.
func Distance(path string, center geo.Point) Projection[float64] {
	return distanceProjection{path: path, center: center}
}

func (p distanceProjection) Collect(hit *Hit) any {
	return hit.Fields[p.path]
}

func (p distanceProjection) Extract(_ HitMapper, raw any, _ *ConvertContext) (any, error) {
	values, _ := raw.([]any)
	if len(values) == 0 {
		return -1.0, nil
	}
	pt, ok := values[0].(geo.Point)
	if !ok {
		return nil, fmt.Errorf("distance projection %q: %T is not a geo point", p.path, values[0])
	}
	return geo.Distance(p.center, pt), nil
}

func (p distanceProjection) Transform(_ LoadingResult, extracted any) (float64, error) {
	return castOrZero[float64](extracted)
}
