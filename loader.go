package searchmap

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/searchmap/internal/projection"
)

// entityLoader loads entities of one type; results are aligned with ids.
type entityLoader func(ctx context.Context, ids []any) ([]any, error)

func loaderOf[T any](load func(ctx context.Context, ids []any) ([]*T, error)) entityLoader {
	return func(ctx context.Context, ids []any) ([]any, error) {
		entities, err := load(ctx, ids)
		if err != nil {
			return nil, err
		}
		out := make([]any, len(entities))
		for i, e := range entities {
			if e != nil {
				out[i] = e
			}
		}
		return out, nil
	}
}

type hitKey struct {
	index string
	id    string
}

// hitLoader resolves the entities planned by one search. Types with a
// registered loader are loaded through it, one call per type; the others are
// rebuilt from the stored fields of their hit.
type hitLoader struct {
	m      *Mapping
	tenant string
	hits   map[hitKey]*projection.Hit
}

func newHitLoader(m *Mapping, tenant string, hits []projection.Hit) *hitLoader {
	l := &hitLoader{m: m, tenant: tenant, hits: make(map[hitKey]*projection.Hit, len(hits))}
	for i := range hits {
		l.hits[hitKey{index: hits[i].Index, id: hits[i].DocumentID}] = &hits[i]
	}
	return l
}

func (l *hitLoader) Load(ctx context.Context, refs []projection.EntityReference) ([]any, error) {
	out := make([]any, len(refs))
	byIndex := map[string][]int{}
	var order []string
	for i, ref := range refs {
		if _, ok := byIndex[ref.Index]; !ok {
			order = append(order, ref.Index)
		}
		byIndex[ref.Index] = append(byIndex[ref.Index], i)
	}

	for _, index := range order {
		positions := byIndex[index]
		t, ok := l.m.indexes[index]
		if !ok {
			return nil, fmt.Errorf("no mapping for index %s", index)
		}
		load, ok := l.m.loaders[t.tm.Type()]
		if !ok {
			for _, i := range positions {
				e, err := l.rebuild(t, refs[i])
				if err != nil {
					return nil, err
				}
				out[i] = e
			}
			continue
		}

		ids := make([]any, len(positions))
		for j, i := range positions {
			ids[j] = refs[i].ID
		}
		entities, err := load(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", t.tm.Name(), err)
		}
		if len(entities) != len(ids) {
			return nil, fmt.Errorf("load %s: loader returned %d entities for %d identifiers",
				t.tm.Name(), len(entities), len(ids))
		}
		for j, i := range positions {
			out[i] = entities[j]
		}
	}
	return out, nil
}

func (l *hitLoader) rebuild(t *target, ref projection.EntityReference) (any, error) {
	hit, ok := l.hits[hitKey{index: ref.Index, id: ref.DocumentID}]
	if !ok {
		return nil, nil
	}
	return t.tm.FromDocument(ref.DocumentID, hit.Fields, l.tenant)
}

// converter turns raw hit data back into mapped values.
type converter struct {
	m      *Mapping
	tenant string
}

func (c converter) target(index string) (*target, error) {
	t, ok := c.m.indexes[index]
	if !ok {
		return nil, fmt.Errorf("no mapping for index %s", index)
	}
	return t, nil
}

func (c converter) Identifier(index, documentID string) (any, error) {
	t, err := c.target(index)
	if err != nil {
		return nil, err
	}
	return t.tm.IdentifierFromDocument(documentID, c.tenant)
}

func (c converter) Reference(index, documentID string) (projection.EntityReference, error) {
	t, err := c.target(index)
	if err != nil {
		return projection.EntityReference{}, err
	}
	id, err := t.tm.IdentifierFromDocument(documentID, c.tenant)
	if err != nil {
		return projection.EntityReference{}, err
	}
	return projection.EntityReference{Index: index, TypeName: t.tm.Name(), DocumentID: documentID, ID: id}, nil
}

func (c converter) FieldValue(index, path string, raw any) (any, error) {
	t, err := c.target(index)
	if err != nil {
		return nil, err
	}
	return t.tm.FieldValue(path, raw, c.tenant)
}
