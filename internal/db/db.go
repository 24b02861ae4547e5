package db

import (
	"context"
	"time"
)

// Store is the database facade used by the remote search backend.
type Store interface {
	Pinger
	DocumentStore
	IndexManager
	Searcher
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HashSetItem holds a single key+fields pair for pipelined HSET.
type HashSetItem struct {
	Key    string
	Fields map[string]string
}

// JSONSetItem holds a single key+path+data triple for pipelined JSON.SET.
type JSONSetItem struct {
	Key  string
	Path string
	Data []byte
}

// DocumentStore writes and reads indexed documents.
//
// The *Multi methods send every item in one round trip. The returned slice has
// one entry per item, nil when that item succeeded. The second return value is
// set only when the round trip itself failed; every item is failed then too.
type DocumentStore interface {
	HSetMulti(ctx context.Context, items []HashSetItem) ([]error, error)
	JSONSetMulti(ctx context.Context, items []JSONSetItem) ([]error, error)
	JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error)
	DelMulti(ctx context.Context, keys []string) ([]error, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// IndexManager provides FT index lifecycle operations.
type IndexManager interface {
	CreateIndex(ctx context.Context, def *IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// Searcher provides search operations over FT indexes.
type Searcher interface {
	Search(ctx context.Context, q *Query) (*SearchResult, error)
	Count(ctx context.Context, q *Query) (int, error)
}
