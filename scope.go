package searchmap

import (
	"context"
	"errors"
	"reflect"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/searchmap/internal/backend"
	"github.com/kailas-cloud/searchmap/internal/projection"
)

const defaultScopeLimit = 10

// ScopeHit is a result of a multi-index search.
type ScopeHit struct {
	Reference EntityReference
	Entity    any
	Score     float64
}

// ScopeSearch searches several indexes at once and merges hits by score.
type ScopeSearch struct {
	m       *Mapping
	targets []*target
	tenant  string
	where   func(*PredicateFactory) (Predicate, error)
	offset  int
	limit   int
}

// Scope targets the indexes of the given types, or every index when none is given.
func Scope(m *Mapping, types ...reflect.Type) (*ScopeSearch, error) {
	if len(types) == 0 {
		types = m.Types()
	}
	s := &ScopeSearch{m: m}
	seen := map[*target]bool{}
	for _, typ := range types {
		t, err := m.target(typ)
		if err != nil {
			return nil, err
		}
		if !seen[t] {
			seen[t] = true
			s.targets = append(s.targets, t)
		}
	}
	if len(s.targets) == 0 {
		return nil, ErrEmptyScope
	}
	return s, nil
}

// Tenant scopes the search to one tenant.
func (s *ScopeSearch) Tenant(id string) *ScopeSearch {
	s.tenant = id
	return s
}

// Where sets the predicate. It is built once per targeted index.
func (s *ScopeSearch) Where(fn func(f *PredicateFactory) (Predicate, error)) *ScopeSearch {
	s.where = fn
	return s
}

// Offset skips the first n merged hits.
func (s *ScopeSearch) Offset(n int) *ScopeSearch {
	s.offset = n
	return s
}

// Limit sets the maximum number of merged hits. Default: 10.
func (s *ScopeSearch) Limit(n int) *ScopeSearch {
	s.limit = n
	return s
}

// Fetch searches every targeted index concurrently, merges hits by
// descending score and loads their entities.
func (s *ScopeSearch) Fetch(ctx context.Context) ([]ScopeHit, error) {
	if s.offset < 0 || s.limit < 0 {
		return nil, errors.New("offset and limit must not be negative")
	}
	preds := make([]Predicate, len(s.targets))
	for i, t := range s.targets {
		p, err := buildPredicate(s.where, &PredicateFactory{target: t, peers: s.targets, tenant: s.tenant})
		if err != nil {
			return nil, err
		}
		preds[i] = p
	}

	limit := s.limit
	if limit == 0 {
		limit = defaultScopeLimit
	}
	results := make([][]projection.Hit, len(s.targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range s.targets {
		g.Go(func() error {
			res, err := t.manager.Search(gctx, &backend.SearchRequest{
				TenantID:  s.tenant,
				Predicate: preds[i],
				Limit:     s.offset + limit,
			})
			if err != nil {
				return err
			}
			results[i] = res.Hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var hits []projection.Hit
	for _, r := range results {
		hits = append(hits, r...)
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if s.offset >= len(hits) {
		return nil, nil
	}
	hits = hits[s.offset:]
	if len(hits) > limit {
		hits = hits[:limit]
	}

	return project(ctx, s.m, s.tenant, projection.Composite3(
		projection.Reference(), projection.Entity[any](), projection.Score(),
		func(ref EntityReference, entity any, score float64) (ScopeHit, error) {
			return ScopeHit{Reference: ref, Entity: entity, Score: score}, nil
		}), hits)
}
