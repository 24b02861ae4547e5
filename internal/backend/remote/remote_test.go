package remote

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/kailas-cloud/searchmap/internal/backend"
	"github.com/kailas-cloud/searchmap/internal/db"
	"github.com/kailas-cloud/searchmap/internal/db/redis"
	"github.com/kailas-cloud/searchmap/internal/schema"
	"github.com/kailas-cloud/searchmap/internal/work"
)

type fixture struct {
	client  *mock.Client
	backend *Backend
	index   *IndexManager
	refs    map[string]*schema.FieldReference
}

func newFixture(t *testing.T, props backend.PropertySource, multiTenant bool) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	c.EXPECT().Close().AnyTimes()

	b, err := NewWithStore("cache", redis.NewStoreForTest(c), props, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	ib, err := b.CreateIndexManagerBuilder("Books", multiTenant, nil, props.IndexProperties("Books"))
	require.NoError(t, err)
	refs := declareBooks(t, ib.Schema(), false)
	im, err := ib.Build()
	require.NoError(t, err)
	return &fixture{client: c, backend: b, index: im.(*IndexManager), refs: refs}
}

// start starts the index against an existing RediSearch index.
func (f *fixture) start(t *testing.T) {
	t.Helper()
	f.client.EXPECT().
		Do(gomock.Any(), mock.Match("FT.INFO", "Books")).
		Return(mock.Result(mock.RedisArray()))
	require.NoError(t, f.index.Start(context.Background()))
}

func TestIndexManager_StartCreatesMissingIndex(t *testing.T) {
	f := newFixture(t, nil, false)
	f.client.EXPECT().
		Do(gomock.Any(), mock.Match("FT.INFO", "Books")).
		Return(mock.Result(mock.RedisError("Unknown index name")))
	f.client.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.CREATE" && cmd[1] == "Books" &&
				strings.Contains(strings.Join(cmd, " "), "ON JSON PREFIX 1 Books: SCHEMA $.searchmap_id AS searchmap_id TAG")
		}, "FT.CREATE Books")).
		Return(mock.Result(mock.RedisString("OK")))

	require.NoError(t, f.index.Start(context.Background()))
	// A second start is a no-op.
	require.NoError(t, f.index.Start(context.Background()))
}

func TestIndexManager_StartToleratesConcurrentCreate(t *testing.T) {
	f := newFixture(t, nil, false)
	f.client.EXPECT().
		Do(gomock.Any(), mock.Match("FT.INFO", "Books")).
		Return(mock.Result(mock.RedisError("Unknown index name")))
	f.client.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool { return cmd[0] == "FT.CREATE" }, "FT.CREATE")).
		Return(mock.Result(mock.RedisError("Index already exists")))

	require.NoError(t, f.index.Start(context.Background()))
}

func TestIndexManager_NotStarted(t *testing.T) {
	f := newFixture(t, nil, false)

	_, err := f.index.Search(context.Background(), &backend.SearchRequest{})
	assert.True(t, errors.Is(err, backend.ErrIndexNotStarted))

	_, err = f.index.Count(context.Background(), "")
	assert.True(t, errors.Is(err, backend.ErrIndexNotStarted))

	futures := f.index.Bulk(context.Background(), []work.DocumentWork{{Op: work.OpDelete, DocumentID: "1"}})
	_, err = futures[0].Get(context.Background())
	assert.True(t, errors.Is(err, backend.ErrIndexNotStarted))
}

type sent struct {
	name, key string
}

func TestIndexManager_BulkKeepsOrderAndIsolatesItems(t *testing.T) {
	f := newFixture(t, nil, false)
	f.start(t)

	var (
		mu    sync.Mutex
		calls [][]sent
	)
	f.client.EXPECT().
		DoMulti(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, cmds ...rueidis.Completed) []rueidis.RedisResult {
			mu.Lock()
			defer mu.Unlock()
			batch := make([]sent, len(cmds))
			out := make([]rueidis.RedisResult, len(cmds))
			for i, cmd := range cmds {
				args := cmd.Commands()
				batch[i] = sent{name: args[0], key: args[1]}
				switch {
				case args[0] == "DEL":
					out[i] = mock.Result(mock.RedisInt64(1))
				case args[1] == "Books:2":
					out[i] = mock.Result(mock.RedisError("ERR new objects must be created at the root"))
				default:
					out[i] = mock.Result(mock.RedisString("OK"))
				}
			}
			calls = append(calls, batch)
			return out
		}).
		Times(3)

	doc := dune(t, f.refs)
	works := []work.DocumentWork{
		{Op: work.OpIndex, DocumentID: "1", Document: doc},
		{Op: work.OpIndex, DocumentID: "2", Document: doc},
		{Op: work.OpDelete, DocumentID: "3"},
		{Op: work.OpIndex, DocumentID: "4"},
		{Op: work.OpIndex, DocumentID: "5", Document: doc},
	}
	futures := f.index.Bulk(context.Background(), works)
	require.Len(t, futures, len(works))

	_, err := futures[0].Get(context.Background())
	assert.NoError(t, err)
	_, err = futures[1].Get(context.Background())
	var itemErr *work.ItemError
	require.ErrorAs(t, err, &itemErr)
	assert.Equal(t, "2", itemErr.DocumentID)
	_, err = futures[2].Get(context.Background())
	assert.NoError(t, err)
	_, err = futures[3].Get(context.Background())
	assert.True(t, errors.Is(err, errNoDocument))
	_, err = futures[4].Get(context.Background())
	assert.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, [][]sent{
		{{"JSON.SET", "Books:1"}, {"JSON.SET", "Books:2"}},
		{{"DEL", "Books:3"}},
		{{"JSON.SET", "Books:5"}},
	}, calls)
}

func TestIndexManager_BulkTransportFailureFailsEveryItem(t *testing.T) {
	f := newFixture(t, nil, false)
	f.start(t)
	f.client.EXPECT().
		DoMulti(gomock.Any(), gomock.Any()).
		Return([]rueidis.RedisResult{
			mock.ErrorResult(errors.New("connection reset")),
			mock.ErrorResult(errors.New("connection reset")),
		})

	futures := f.index.Bulk(context.Background(), []work.DocumentWork{
		{Op: work.OpDelete, DocumentID: "1"},
		{Op: work.OpDelete, DocumentID: "2"},
	})
	for _, fut := range futures {
		_, err := fut.Get(context.Background())
		assert.ErrorContains(t, err, "connection reset")
	}
}

func TestIndexManager_Search(t *testing.T) {
	f := newFixture(t, nil, false)
	f.start(t)

	stored := `[{"searchmap_id":"1","title":"Dune","isbn":"978-0441","pages":412,"published":-139449600000,` +
		`"location":"2.3522,48.8566","location__shape":"POINT(2.3522 48.8566)","available":"true",` +
		`"notes":"first edition","author":{"name":"Herbert"}}]`
	f.client.EXPECT().
		Do(gomock.Any(), mock.Match("FT.SEARCH", "Books", `@isbn:{978\-0441}`, "WITHSCORES",
			"RETURN", "1", "$", "SORTBY", "pages", "DESC", "LIMIT", "0", "10", "DIALECT", "3")).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(1),
			mock.RedisString("Books:1"),
			mock.RedisString("2.5"),
			mock.RedisArray(mock.RedisString("$"), mock.RedisString(stored)),
		)))

	ff, err := f.index.Predicates().Field("isbn")
	require.NoError(t, err)
	mb, err := ff.CreateMatch("isbn")
	require.NoError(t, err)
	require.NoError(t, mb.Value("978-0441"))
	p, err := mb.Build()
	require.NoError(t, err)

	res, err := f.index.Search(context.Background(), &backend.SearchRequest{
		Predicate: p,
		Sort:      []backend.Sort{{Field: "pages", Descending: true}},
		Fields:    []string{"pages", "author.name", "location", "published"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	require.Len(t, res.Hits, 1)

	hit := res.Hits[0]
	assert.Equal(t, "Books", hit.Index)
	assert.Equal(t, "1", hit.DocumentID)
	assert.InDelta(t, 2.5, hit.Score, 1e-9)
	assert.Equal(t, map[string][]any{
		"pages":       {int64(412)},
		"author.name": {"Herbert"},
		"location":    {paris},
		"published":   {time.Date(1965, 8, 1, 0, 0, 0, 0, time.UTC)},
	}, hit.Fields)
}

func TestIndexManager_SearchHashStorage(t *testing.T) {
	f := newFixture(t, backend.PropertySource{
		backend.KeyIndexDefaults: map[string]any{KeyStorage: "hash", KeyDefaultLimit: 5},
	}, false)
	f.start(t)

	f.client.EXPECT().
		Do(gomock.Any(), mock.Match("FT.SEARCH", "Books", "*", "WITHSCORES",
			"RETURN", "2", IDAttribute, "title", "LIMIT", "0", "5", "DIALECT", "3")).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(1),
			mock.RedisString("Books:7"),
			mock.RedisString("1"),
			mock.RedisArray(mock.RedisString(IDAttribute), mock.RedisString("7"), mock.RedisString("title"), mock.RedisString("Dune")),
		)))

	res, err := f.index.Search(context.Background(), &backend.SearchRequest{Fields: []string{"title"}})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "7", res.Hits[0].DocumentID)
	assert.Equal(t, map[string][]any{"title": {"Dune"}}, res.Hits[0].Fields)
}

func TestIndexManager_MultiTenancy(t *testing.T) {
	props := backend.PropertySource{backend.KeyMultiTenancy: "discriminator"}
	f := newFixture(t, props, true)
	f.start(t)

	f.client.EXPECT().
		Do(gomock.Any(), mock.Match("FT.SEARCH", "Books", "@searchmap_tenant:{acme}", "WITHSCORES",
			"RETURN", "1", "$", "LIMIT", "0", "10", "DIALECT", "3")).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(1),
			mock.RedisString("Books:acme/1"),
			mock.RedisString("1"),
			mock.RedisArray(mock.RedisString("$"), mock.RedisString(`[{"searchmap_id":"1","title":"Dune"}]`)),
		)))
	f.client.EXPECT().
		Do(gomock.Any(), mock.Match("FT.SEARCH", "Books", "@searchmap_tenant:{acme}", "LIMIT", "0", "0", "DIALECT", "3")).
		Return(mock.Result(mock.RedisArray(mock.RedisInt64(3))))

	_, err := f.index.Search(context.Background(), &backend.SearchRequest{})
	assert.True(t, errors.Is(err, backend.ErrMissingTenant))

	res, err := f.index.Search(context.Background(), &backend.SearchRequest{TenantID: "acme"})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "1", res.Hits[0].DocumentID)
	assert.Equal(t, []any{"Dune"}, res.Hits[0].Fields["title"])

	n, err := f.index.Count(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	futures := f.index.Bulk(context.Background(), []work.DocumentWork{{Op: work.OpDelete, DocumentID: "1"}})
	_, err = futures[0].Get(context.Background())
	assert.True(t, errors.Is(err, backend.ErrMissingTenant))
}

func TestIndexManager_SortValidation(t *testing.T) {
	f := newFixture(t, nil, false)
	f.start(t)

	_, err := f.index.Search(context.Background(), &backend.SearchRequest{
		Sort: []backend.Sort{{Field: "pages"}, {Field: "isbn"}},
	})
	assert.True(t, errors.Is(err, errMultipleSort))

	_, err = f.index.Search(context.Background(), &backend.SearchRequest{Sort: []backend.Sort{{Field: "title"}}})
	assert.ErrorContains(t, err, "not sortable")
}

func TestIndexManager_ForeignPredicate(t *testing.T) {
	f := newFixture(t, nil, false)
	f.start(t)

	_, err := f.index.Search(context.Background(), &backend.SearchRequest{Predicate: foreign{}})
	assert.True(t, errors.Is(err, backend.ErrForeignPredicate))
}

func TestBackend_BreakerOpensOnTransportFailures(t *testing.T) {
	props := backend.PropertySource{
		KeyBreakerMinRequests:  2,
		KeyBreakerFailureRatio: 0.5,
		KeyBreakerTimeout:      "1m",
	}
	f := newFixture(t, props, false)
	f.start(t)

	f.client.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool { return cmd[0] == "FT.SEARCH" }, "FT.SEARCH")).
		Return(mock.ErrorResult(errors.New("dial tcp: connection refused"))).
		Times(1)

	_, err := f.index.Search(context.Background(), &backend.SearchRequest{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrCircuitOpen))

	_, err = f.index.Search(context.Background(), &backend.SearchRequest{})
	assert.True(t, errors.Is(err, ErrCircuitOpen))
	_, err = f.index.Count(context.Background(), "")
	assert.True(t, errors.Is(err, ErrCircuitOpen))
}

func TestBackend_ServerErrorsDoNotOpenBreaker(t *testing.T) {
	props := backend.PropertySource{KeyBreakerMinRequests: 1, KeyBreakerFailureRatio: 0.1}
	f := newFixture(t, props, false)
	f.start(t)

	f.client.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool { return cmd[0] == "FT.SEARCH" }, "FT.SEARCH")).
		Return(mock.Result(mock.RedisError("Syntax error at offset 3"))).
		Times(2)

	for range 2 {
		_, err := f.index.Search(context.Background(), &backend.SearchRequest{})
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrCircuitOpen))
	}
}

func TestBackend_Lifecycle(t *testing.T) {
	f := newFixture(t, nil, false)

	_, err := f.backend.CreateIndexManagerBuilder("Books", false, nil, nil)
	assert.Error(t, err, "duplicate index")

	_, err = f.backend.CreateIndexManagerBuilder("Videos", true, nil, nil)
	assert.True(t, errors.Is(err, backend.ErrMultiTenancyNotSupported))

	var store db.Store
	require.NoError(t, f.backend.Unwrap(&store))
	assert.NotNil(t, store)

	m, ok := f.backend.Index("Books")
	require.True(t, ok)
	assert.Same(t, f.index, m)

	require.NoError(t, f.backend.Close())
	require.NoError(t, f.backend.Close())
	_, err = f.backend.CreateIndexManagerBuilder("Videos", false, nil, nil)
	assert.True(t, errors.Is(err, backend.ErrClosed))
}

func TestBackend_RejectsBadProperties(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	_, err := NewWithStore("cache", redis.NewStoreForTest(c), backend.PropertySource{KeyBreakerFailureRatio: "high"}, nil)
	assert.Error(t, err)

	b, err := NewWithStore("cache", redis.NewStoreForTest(c), nil, nil)
	require.NoError(t, err)
	ib, err := b.CreateIndexManagerBuilder("Books", false, nil, backend.PropertySource{KeyStorage: "xml"})
	require.NoError(t, err)
	_, err = ib.Build()
	assert.ErrorContains(t, err, "unknown storage")

	ib, err = b.CreateIndexManagerBuilder("Tagged", false, nil, backend.PropertySource{KeyStorage: "hash"})
	require.NoError(t, err)
	declareBooks(t, ib.Schema(), true)
	_, err = ib.Build()
	assert.True(t, errors.Is(err, errMultiValuedHash))
}
