package searchmap

import (
	"context"
	"fmt"
	"reflect"

	"github.com/kailas-cloud/searchmap/internal/work"
)

// TypedIndex provides typed operations on the index of T.
type TypedIndex[T any] struct {
	m      *Mapping
	target *target
	tenant string
}

// IndexOf returns the index T is mapped to.
func IndexOf[T any](m *Mapping) (*TypedIndex[T], error) {
	t, err := m.target(reflect.TypeFor[T]())
	if err != nil {
		return nil, err
	}
	return &TypedIndex[T]{m: m, target: t}, nil
}

// Name returns the index name.
func (idx *TypedIndex[T]) Name() string { return idx.target.tm.Index() }

// Tenant returns a copy of the index scoped to one tenant. Multi-tenant
// indexes reject operations without a tenant.
func (idx *TypedIndex[T]) Tenant(id string) *TypedIndex[T] {
	c := *idx
	c.tenant = id
	return &c
}

// Index adds or replaces items. Results are aligned with items; the error is
// set only when waiting for the results was cancelled.
func (idx *TypedIndex[T]) Index(ctx context.Context, items ...T) ([]BatchResult, error) {
	results := make([]BatchResult, len(items))
	works := make([]work.DocumentWork, 0, len(items))
	slots := make([]int, 0, len(items))
	for i, item := range items {
		w, err := idx.target.tm.IndexWork(item, idx.tenant)
		if err != nil {
			id, _ := idx.target.tm.DocumentID(item)
			results[i] = BatchResult{ID: id, Err: err}
			continue
		}
		works = append(works, w)
		slots = append(slots, i)
	}
	return results, idx.submit(ctx, works, slots, results)
}

// Delete removes documents by entity identifier.
func (idx *TypedIndex[T]) Delete(ctx context.Context, ids ...any) ([]BatchResult, error) {
	results := make([]BatchResult, len(ids))
	works := make([]work.DocumentWork, 0, len(ids))
	slots := make([]int, 0, len(ids))
	for i, id := range ids {
		w, err := idx.target.tm.DeleteWork(id, idx.tenant)
		if err != nil {
			results[i] = BatchResult{ID: fmt.Sprint(id), Err: err}
			continue
		}
		works = append(works, w)
		slots = append(slots, i)
	}
	return results, idx.submit(ctx, works, slots, results)
}

func (idx *TypedIndex[T]) submit(ctx context.Context, works []work.DocumentWork, slots []int, results []BatchResult) error {
	if len(works) == 0 {
		return nil
	}
	futures := idx.target.manager.Bulk(ctx, works)
	for j, f := range futures {
		i := slots[j]
		item, err := f.Get(ctx)
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		results[i] = BatchResult{ID: works[j].DocumentID, OK: err == nil, Err: err}
		if err == nil && item.Err != nil {
			results[i].OK, results[i].Err = false, item.Err
		}
	}
	return nil
}

// Count returns the number of documents in the index, of the tenant when set.
func (idx *TypedIndex[T]) Count(ctx context.Context) (int, error) {
	return idx.target.manager.Count(ctx, idx.tenant)
}

// Search starts a search on the index.
func (idx *TypedIndex[T]) Search() *SearchBuilder[T] {
	return &SearchBuilder[T]{idx: idx}
}
