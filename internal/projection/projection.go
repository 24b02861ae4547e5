package projection

import (
	"context"
	"errors"
	"fmt"
)

// ErrMalformedExtract is returned when a composite receives data of the wrong shape.
var ErrMalformedExtract = errors.New("malformed projection data")

// Hit is one raw search hit. Field values are index-level values keyed by absolute path.
type Hit struct {
	Index      string
	DocumentID string
	Score      float64
	Fields     map[string][]any
}

// EntityReference identifies a mapped entity behind a hit.
type EntityReference struct {
	Index      string
	TypeName   string
	DocumentID string
	ID         any
}

func (r EntityReference) String() string {
	return fmt.Sprintf("%s#%s", r.TypeName, r.DocumentID)
}

// Converter turns raw index data back into mapped values.
type Converter interface {
	Identifier(index, documentID string) (any, error)
	Reference(index, documentID string) (EntityReference, error)
	FieldValue(index, path string, raw any) (any, error)
}

// ConvertContext is passed to every Extract call.
type ConvertContext struct {
	Context   context.Context
	TenantID  string
	Converter Converter
}

// LoadingKey is the handle returned when an entity load is planned.
type LoadingKey int

// HitMapper collects the entity loads planned while extracting hits.
type HitMapper interface {
	PlanLoading(ref EntityReference) LoadingKey
}

// LoadingResult exposes the loaded entities after the bulk load.
type LoadingResult interface {
	Get(key LoadingKey) (any, bool)
}

// Projection produces a value of type T from each hit in two phases:
// Extract runs per hit while iterating results and may plan entity loads;
// Transform runs after every planned load has been resolved in bulk.
type Projection[T any] interface {
	Collect(hit *Hit) any
	Extract(mapper HitMapper, raw any, ctx *ConvertContext) (any, error)
	Transform(result LoadingResult, extracted any) (T, error)
}
