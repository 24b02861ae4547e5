package redis

import (
	"context"
	"sort"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/searchmap/internal/db"
)

// HSetMulti replaces multiple hashes in a single DoMulti round-trip. Each hash
// is deleted right before it is written so fields absent from the new value
// do not survive.
func (s *Store) HSetMulti(ctx context.Context, items []db.HashSetItem) ([]error, error) {
	if len(items) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, 2*len(items))
	cmds := make([]rueidis.Completed, 0, 2*len(items))
	for _, item := range items {
		keys = append(keys, item.Key, item.Key)
		cmds = append(cmds, s.b().Del().Key(item.Key).Build(), s.hsetCmd(item))
	}
	pairs, batchErr := s.doMulti(ctx, db.OpHSet, keys, cmds)

	errs := make([]error, len(items))
	for i := range items {
		if err := pairs[2*i]; err != nil {
			errs[i] = err
		} else {
			errs[i] = pairs[2*i+1]
		}
	}
	return errs, batchErr
}

func (s *Store) hsetCmd(item db.HashSetItem) rueidis.Completed {
	names := make([]string, 0, len(item.Fields))
	for k := range item.Fields {
		names = append(names, k)
	}
	sort.Strings(names)

	cmd := s.b().Hset().Key(item.Key).FieldValue()
	for _, k := range names {
		cmd = cmd.FieldValue(k, item.Fields[k])
	}
	return cmd.Build()
}

// DelMulti deletes multiple keys in a single DoMulti round-trip. Deleting a
// missing key is not an error.
func (s *Store) DelMulti(ctx context.Context, keys []string) ([]error, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	cmds := make([]rueidis.Completed, len(keys))
	for i, key := range keys {
		cmds[i] = s.b().Del().Key(key).Build()
	}
	return s.doMulti(ctx, db.OpDel, keys, cmds)
}

// Exists checks if a key exists.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	cmd := s.b().Exists().Key(key).Build()
	count, err := s.do(ctx, cmd).AsInt64()
	if err != nil {
		return false, &db.Error{Op: db.OpExists, Err: err}
	}
	return count > 0, nil
}
