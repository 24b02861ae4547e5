package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/searchmap/internal/db"
)

// Search runs FT.SEARCH with the given query.
func (s *Store) Search(ctx context.Context, q *db.Query) (*db.SearchResult, error) {
	args, err := buildSearchArgs(q, false)
	if err != nil {
		return nil, err
	}

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	return parseSearchResult(raw, q.WithScores)
}

// Count returns the number of documents matching q via FT.SEARCH with LIMIT 0 0.
func (s *Store) Count(ctx context.Context, q *db.Query) (int, error) {
	counting := db.Query{Index: q.Index, Query: q.Query, Params: q.Params, Dialect: q.Dialect}
	args, err := buildSearchArgs(&counting, true)
	if err != nil {
		return 0, err
	}

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return 0, &db.Error{Op: db.OpSearch, Err: err}
	}
	if len(raw) == 0 {
		return 0, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return 0, fmt.Errorf("parse count: %w", err)
	}
	return int(total), nil
}

// buildSearchArgs renders q. LIMIT is emitted only for a positive Limit, or
// as LIMIT 0 0 when only the total is wanted.
func buildSearchArgs(q *db.Query, countOnly bool) ([]string, error) {
	if q.Index == "" {
		return nil, fmt.Errorf("index name is required")
	}
	query := q.Query
	if query == "" {
		query = "*"
	}

	args := []string{q.Index, query}

	if q.WithScores {
		args = append(args, "WITHSCORES")
	}

	if len(q.Return) > 0 {
		args = append(args, "RETURN", strconv.Itoa(len(q.Return)))
		args = append(args, q.Return...)
	}

	if q.SortBy != "" {
		dir := "ASC"
		if q.SortDesc {
			dir = "DESC"
		}
		args = append(args, "SORTBY", q.SortBy, dir)
	}

	switch {
	case countOnly:
		args = append(args, "LIMIT", "0", "0")
	case q.Limit > 0:
		if q.Offset < 0 {
			return nil, fmt.Errorf("offset must not be negative")
		}
		args = append(args, "LIMIT", strconv.Itoa(q.Offset), strconv.Itoa(q.Limit))
	}

	if len(q.Params) > 0 {
		names := make([]string, 0, len(q.Params))
		for name := range q.Params {
			names = append(names, name)
		}
		sort.Strings(names)
		args = append(args, "PARAMS", strconv.Itoa(2*len(names)))
		for _, name := range names {
			args = append(args, name, q.Params[name])
		}
	}

	dialect := q.Dialect
	if dialect == 0 {
		dialect = db.DefaultDialect
	}
	args = append(args, "DIALECT", strconv.Itoa(dialect))

	return args, nil
}

// --- Result parsing ---

// parseSearchResult reads [total, key1, (score1,) fields1, ...].
func parseSearchResult(raw []rueidis.RedisMessage, withScores bool) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return &db.SearchResult{}, nil
	}

	stride := 2
	if withScores {
		stride = 3
	}

	entries := make([]db.SearchEntry, 0, (len(raw)-1)/stride)
	for i := 1; i+stride-1 < len(raw); i += stride {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		entry := db.SearchEntry{Key: key}

		if withScores {
			scoreStr, err := raw[i+1].ToString()
			if err != nil {
				continue
			}
			if entry.Score, err = strconv.ParseFloat(scoreStr, 64); err != nil {
				continue
			}
		}

		fields, err := raw[i+stride-1].ToArray()
		if err != nil {
			continue
		}
		entry.Fields = parseFieldPairs(fields)

		entries = append(entries, entry)
	}

	return &db.SearchResult{Total: int(total), Entries: entries}, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}
