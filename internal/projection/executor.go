package projection

import (
	"context"
	"fmt"
)

// Loader loads entities in bulk. The returned slice is aligned with refs;
// a nil element means the entity no longer exists.
type Loader interface {
	Load(ctx context.Context, refs []EntityReference) ([]any, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, refs []EntityReference) ([]any, error)

// Load implements Loader.
func (f LoaderFunc) Load(ctx context.Context, refs []EntityReference) ([]any, error) {
	return f(ctx, refs)
}

type loadingPlan struct {
	refs    []EntityReference
	keys    map[EntityReference]LoadingKey
	results []any
	loaded  []bool
}

func newLoadingPlan() *loadingPlan {
	return &loadingPlan{keys: map[EntityReference]LoadingKey{}}
}

// PlanLoading registers ref once and returns its key.
func (p *loadingPlan) PlanLoading(ref EntityReference) LoadingKey {
	k := EntityReference{Index: ref.Index, TypeName: ref.TypeName, DocumentID: ref.DocumentID}
	if key, ok := p.keys[k]; ok {
		return key
	}
	key := LoadingKey(len(p.refs))
	p.keys[k] = key
	p.refs = append(p.refs, ref)
	return key
}

func (p *loadingPlan) load(ctx context.Context, loader Loader) error {
	if len(p.refs) == 0 {
		return nil
	}
	if loader == nil {
		return fmt.Errorf("%d entities to load but no loader configured", len(p.refs))
	}
	results, err := loader.Load(ctx, p.refs)
	if err != nil {
		return fmt.Errorf("load %d entities: %w", len(p.refs), err)
	}
	if len(results) != len(p.refs) {
		return fmt.Errorf("loader returned %d entities for %d references", len(results), len(p.refs))
	}
	p.results = results
	p.loaded = make([]bool, len(results))
	for i, r := range results {
		p.loaded[i] = r != nil
	}
	return nil
}

// Get implements LoadingResult.
func (p *loadingPlan) Get(key LoadingKey) (any, bool) {
	i := int(key)
	if i < 0 || i >= len(p.results) || !p.loaded[i] {
		return nil, false
	}
	return p.results[i], true
}

// Execute runs a projection over a page of hits: every hit is extracted,
// planned entity loads are resolved with one Load call, then every hit is transformed.
func Execute[T any](
	ctx context.Context, p Projection[T], hits []Hit, loader Loader, cc *ConvertContext,
) ([]T, error) {
	plan := newLoadingPlan()
	extracted := make([]any, len(hits))
	for i := range hits {
		raw := p.Collect(&hits[i])
		e, err := p.Extract(plan, raw, cc)
		if err != nil {
			return nil, fmt.Errorf("extract hit %s: %w", hits[i].DocumentID, err)
		}
		extracted[i] = e
	}

	if err := plan.load(ctx, loader); err != nil {
		return nil, err
	}

	out := make([]T, len(hits))
	for i := range hits {
		v, err := p.Transform(plan, extracted[i])
		if err != nil {
			return nil, fmt.Errorf("transform hit %s: %w", hits[i].DocumentID, err)
		}
		out[i] = v
	}
	return out, nil
}
