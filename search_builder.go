package searchmap

import (
	"context"
	"errors"

	"github.com/kailas-cloud/searchmap/internal/backend"
	"github.com/kailas-cloud/searchmap/internal/projection"
)

// Hit is a typed search result. Item is nil when the entity no longer exists.
type Hit[T any] struct {
	ID    any
	Item  *T
	Score float64
}

// SearchBuilder is a fluent builder for typed search queries.
type SearchBuilder[T any] struct {
	idx    *TypedIndex[T]
	where  func(*PredicateFactory) (Predicate, error)
	offset int
	limit  int
	sort   []backend.Sort
}

// Where sets the predicate. Without one every document matches.
func (b *SearchBuilder[T]) Where(fn func(f *PredicateFactory) (Predicate, error)) *SearchBuilder[T] {
	b.where = fn
	return b
}

// Offset skips the first n hits.
func (b *SearchBuilder[T]) Offset(n int) *SearchBuilder[T] {
	b.offset = n
	return b
}

// Limit sets the maximum number of hits. Zero uses the index default.
func (b *SearchBuilder[T]) Limit(n int) *SearchBuilder[T] {
	b.limit = n
	return b
}

// Sort orders hits by a sortable field instead of by score.
func (b *SearchBuilder[T]) Sort(path string, descending bool) *SearchBuilder[T] {
	b.sort = append(b.sort, backend.Sort{Field: path, Descending: descending})
	return b
}

// Fetch runs the search and loads the entity of every hit.
func (b *SearchBuilder[T]) Fetch(ctx context.Context) ([]Hit[T], error) {
	return Project(ctx, b, projection.Composite3(
		projection.ID[any](), projection.Entity[*T](), projection.Score(),
		func(id any, item *T, score float64) (Hit[T], error) {
			return Hit[T]{ID: id, Item: item, Score: score}, nil
		}))
}

// Project runs the search and applies p to every hit.
func Project[T, P any](ctx context.Context, b *SearchBuilder[T], p Projection[P]) ([]P, error) {
	t, tenant := b.idx.target, b.idx.tenant
	if b.offset < 0 || b.limit < 0 {
		return nil, errors.New("offset and limit must not be negative")
	}
	pred, err := buildPredicate(b.where, &PredicateFactory{target: t, peers: []*target{t}, tenant: tenant})
	if err != nil {
		return nil, err
	}
	res, err := t.manager.Search(ctx, &backend.SearchRequest{
		TenantID:  tenant,
		Predicate: pred,
		Offset:    b.offset,
		Limit:     b.limit,
		Sort:      b.sort,
	})
	if err != nil {
		return nil, err
	}
	return project(ctx, b.idx.m, tenant, p, res.Hits)
}

func buildPredicate(where func(*PredicateFactory) (Predicate, error), f *PredicateFactory) (Predicate, error) {
	if where == nil {
		return f.MatchAll(), nil
	}
	return where(f)
}

func project[P any](ctx context.Context, m *Mapping, tenant string, p Projection[P], hits []projection.Hit) ([]P, error) {
	cc := &projection.ConvertContext{Context: ctx, TenantID: tenant, Converter: converter{m: m, tenant: tenant}}
	return projection.Execute(ctx, p, hits, newHitLoader(m, tenant, hits), cc)
}
