package searchmap

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"testing"
	"time"

	"go.uber.org/multierr"

	"github.com/kailas-cloud/searchmap/internal/backend"
	"github.com/kailas-cloud/searchmap/internal/backend/embedded"
)

type author struct {
	Name string `search:"keyword"`
	Born int    `search:"long,projectable=no"`
}

type rating int

type ratingBridge struct{}

func (ratingBridge) ToIndexedValue(v rating, _ *ValueContext) (int64, error) {
	if v < 0 || v > 5 {
		return 0, fmt.Errorf("rating %d out of range", v)
	}
	return int64(v), nil
}

func (ratingBridge) FromIndexedValue(v int64, _ *ValueContext) (rating, error) {
	return rating(v), nil
}

type book struct {
	_        struct{} `search:"index=books"`
	ID       int64
	Title    string   `search:"text"`
	ISBN     string   `search:"keyword,sortable"`
	Pages    int      `search:"long,sortable"`
	Tags     []string `search:"keyword,name=tag"`
	Location Point    `search:"geo"`
	Rating   rating   `search:"long,bridge=rating"`
	Author   *author  `search:"embedded"`
	Draft    string
}

type video struct {
	_     struct{} `search:"index=videos"`
	ID    string
	Title string  `search:"text"`
	Pages float64 `search:"double"`
}

type note struct {
	_    struct{} `search:"index=notes,backend=tenants"`
	ID   string
	Body string `search:"keyword"`
}

var (
	paris  = Point{Lat: 48.8566, Lon: 2.3522}
	london = Point{Lat: 51.5074, Lon: -0.1278}
	nyc    = Point{Lat: 40.7128, Lon: -74.0060}
)

func library() []book {
	return []book{
		{ID: 1, Title: "Dune", ISBN: "978-0441", Pages: 412, Tags: []string{"scifi", "classic"},
			Location: paris, Rating: 5, Author: &author{Name: "Herbert", Born: 1920}, Draft: "x"},
		{ID: 2, Title: "Dune Messiah", ISBN: "978-0399", Pages: 256, Tags: []string{"scifi"},
			Location: london, Rating: 4, Author: &author{Name: "Herbert", Born: 1920}},
		{ID: 3, Title: "Neuromancer", ISBN: "978-0441-5", Pages: 271,
			Location: nyc, Rating: 4, Author: &author{Name: "Gibson", Born: 1948}},
	}
}

func newTestMapping(t *testing.T, opts ...Option) *Mapping {
	t.Helper()
	opts = append([]Option{
		Register[book](),
		WithValueBridge[rating, int64]("rating", ratingBridge{}),
	}, opts...)
	m, err := New(opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func booksIndex(t *testing.T, m *Mapping) *TypedIndex[book] {
	t.Helper()
	idx, err := IndexOf[book](m)
	if err != nil {
		t.Fatalf("IndexOf: %v", err)
	}
	results, err := idx.Index(context.Background(), library()...)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	for _, r := range results {
		if !r.OK {
			t.Fatalf("index %s: %v", r.ID, r.Err)
		}
	}
	return idx
}

func hitIDs[T any](hits []Hit[T]) []any {
	out := make([]any, len(hits))
	for i, h := range hits {
		out[i] = h.ID
	}
	return out
}

func sortedIDs[T any](hits []Hit[T]) []int64 {
	out := make([]int64, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.ID.(int64))
	}
	slices.Sort(out)
	return out
}

func TestNew_DefaultsToInMemoryBackend(t *testing.T) {
	m := newTestMapping(t)
	if got := m.Types(); len(got) != 1 || got[0] != reflect.TypeFor[book]() {
		t.Fatalf("types = %v", got)
	}
	b, err := m.Backend(DefaultBackendName)
	if err != nil {
		t.Fatalf("Backend: %v", err)
	}
	if b.Name() != DefaultBackendName {
		t.Errorf("backend name = %q", b.Name())
	}
	if _, err := m.Backend("missing"); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("expected ErrUnknownBackend, got %v", err)
	}
}

func TestIndexAndCount(t *testing.T) {
	m := newTestMapping(t)
	idx := booksIndex(t, m)

	if idx.Name() != "books" {
		t.Errorf("name = %q", idx.Name())
	}
	n, err := idx.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 3 {
		t.Fatalf("count = %d, want 3", n)
	}

	results, err := idx.Delete(context.Background(), int64(2))
	if err != nil || len(results) != 1 || !results[0].OK || results[0].ID != "2" {
		t.Fatalf("Delete = %+v, %v", results, err)
	}
	if n, _ := idx.Count(context.Background()); n != 2 {
		t.Fatalf("count after delete = %d, want 2", n)
	}
}

func TestIndex_ItemFailuresAreIsolated(t *testing.T) {
	m := newTestMapping(t)
	idx, err := IndexOf[book](m)
	if err != nil {
		t.Fatalf("IndexOf: %v", err)
	}
	items := library()
	items[1].Rating = 9

	results, err := idx.Index(context.Background(), items...)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d", len(results))
	}
	if !results[0].OK || !results[2].OK {
		t.Errorf("valid items failed: %+v", results)
	}
	if results[1].OK || results[1].Err == nil || results[1].ID != "2" {
		t.Errorf("invalid item = %+v", results[1])
	}
	if n, _ := idx.Count(context.Background()); n != 2 {
		t.Errorf("count = %d, want 2", n)
	}

	del, err := idx.Delete(context.Background(), "not-an-int64")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if del[0].OK || del[0].Err == nil {
		t.Errorf("delete with a bad identifier should fail: %+v", del[0])
	}
}

func TestSearch_Predicates(t *testing.T) {
	m := newTestMapping(t)
	idx := booksIndex(t, m)
	ctx := context.Background()

	cases := []struct {
		name  string
		where func(f *PredicateFactory) (Predicate, error)
		want  []int64
	}{
		{"match all", nil, []int64{1, 2, 3}},
		{"text", func(f *PredicateFactory) (Predicate, error) {
			return f.Match("title", "dune")
		}, []int64{1, 2}},
		{"keyword", func(f *PredicateFactory) (Predicate, error) {
			return f.Match("isbn", "978-0441")
		}, []int64{1}},
		{"embedded", func(f *PredicateFactory) (Predicate, error) {
			return f.Match("author.name", "Gibson")
		}, []int64{3}},
		{"multi-valued", func(f *PredicateFactory) (Predicate, error) {
			return f.Match("tag", "classic")
		}, []int64{1}},
		{"value bridge", func(f *PredicateFactory) (Predicate, error) {
			return f.Match("rating", rating(4))
		}, []int64{2, 3}},
		{"range", func(f *PredicateFactory) (Predicate, error) {
			return f.Range("pages", 260, nil, RangeOptions{})
		}, []int64{1, 3}},
		{"exclusive range", func(f *PredicateFactory) (Predicate, error) {
			return f.Range("pages", 256, 412, RangeOptions{ExcludeLower: true, ExcludeUpper: true})
		}, []int64{3}},
		{"id", func(f *PredicateFactory) (Predicate, error) {
			return f.ID(int64(1), int64(3))
		}, []int64{1, 3}},
		{"circle", func(f *PredicateFactory) (Predicate, error) {
			return f.WithinCircle("location", paris, 400_000)
		}, []int64{1, 2}},
		{"bounding box", func(f *PredicateFactory) (Predicate, error) {
			return f.WithinBoundingBox("location", BoundingBox{
				TopLeft:     Point{Lat: 52, Lon: -1},
				BottomRight: Point{Lat: 48, Lon: 3},
			})
		}, []int64{1, 2}},
		{"bool", func(f *PredicateFactory) (Predicate, error) {
			herbert, err := f.Match("author.name", "Herbert")
			if err != nil {
				return nil, err
			}
			messiah, err := f.Match("isbn", "978-0399")
			if err != nil {
				return nil, err
			}
			return f.Bool([]Predicate{herbert}, nil, []Predicate{messiah})
		}, []int64{1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hits, err := idx.Search().Where(tc.where).Fetch(ctx)
			if err != nil {
				t.Fatalf("Fetch: %v", err)
			}
			if got := sortedIDs(hits); !slices.Equal(got, tc.want) {
				t.Errorf("ids = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSearch_PredicateErrors(t *testing.T) {
	m := newTestMapping(t)
	idx := booksIndex(t, m)
	ctx := context.Background()

	_, err := idx.Search().Where(func(f *PredicateFactory) (Predicate, error) {
		return f.Match("location", "paris")
	}).Fetch(ctx)
	if !errors.Is(err, ErrNotSupported) {
		t.Errorf("match on geo: expected ErrNotSupported, got %v", err)
	}

	_, err = idx.Search().Where(func(f *PredicateFactory) (Predicate, error) {
		return f.Match("missing", "x")
	}).Fetch(ctx)
	if !errors.Is(err, ErrUnknownField) {
		t.Errorf("unknown field: expected ErrUnknownField, got %v", err)
	}

	_, err = idx.Search().Where(func(f *PredicateFactory) (Predicate, error) {
		return f.Match("rating", rating(7))
	}).Fetch(ctx)
	if err == nil {
		t.Error("bridge failure should fail the predicate")
	}

	_, err = idx.Search().Where(func(f *PredicateFactory) (Predicate, error) {
		return f.ID("1")
	}).Fetch(ctx)
	if err == nil {
		t.Error("identifier of the wrong type should fail")
	}
}

func TestSearch_FetchRebuildsEntities(t *testing.T) {
	m := newTestMapping(t)
	idx := booksIndex(t, m)

	hits, err := idx.Search().Where(func(f *PredicateFactory) (Predicate, error) {
		return f.Match("isbn", "978-0441")
	}).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("hits = %d", len(hits))
	}
	b := hits[0].Item
	if b == nil {
		t.Fatal("entity not rebuilt")
	}
	if b.ID != 1 || b.Title != "Dune" || b.Pages != 412 || b.Rating != 5 {
		t.Errorf("entity = %+v", b)
	}
	if !slices.Equal(b.Tags, []string{"scifi", "classic"}) {
		t.Errorf("tags = %v", b.Tags)
	}
	if b.Author == nil || b.Author.Name != "Herbert" || b.Author.Born != 0 {
		t.Errorf("author = %+v", b.Author)
	}
	if b.Draft != "" {
		t.Errorf("unmapped property restored: %q", b.Draft)
	}
}

func TestSearch_SortOffsetLimit(t *testing.T) {
	m := newTestMapping(t)
	idx := booksIndex(t, m)

	hits, err := idx.Search().Sort("pages", true).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got := hitIDs(hits); !reflect.DeepEqual(got, []any{int64(1), int64(3), int64(2)}) {
		t.Errorf("desc = %v", got)
	}

	hits, err = idx.Search().Sort("pages", false).Offset(1).Limit(1).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got := hitIDs(hits); !reflect.DeepEqual(got, []any{int64(3)}) {
		t.Errorf("page = %v", got)
	}

	if _, err := idx.Search().Limit(-1).Fetch(context.Background()); err == nil {
		t.Error("negative limit should fail")
	}
}

func TestSearch_Loader(t *testing.T) {
	var (
		mu    sync.Mutex
		calls [][]any
	)
	store := map[int64]*book{}
	for _, b := range library() {
		store[b.ID] = &b
	}
	delete(store, 3)

	m := newTestMapping(t, WithLoader[book](func(_ context.Context, ids []any) ([]*book, error) {
		mu.Lock()
		calls = append(calls, ids)
		mu.Unlock()
		out := make([]*book, len(ids))
		for i, id := range ids {
			out[i] = store[id.(int64)]
		}
		return out, nil
	}))
	idx := booksIndex(t, m)

	hits, err := idx.Search().Sort("isbn", false).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(calls) != 1 || len(calls[0]) != 3 {
		t.Fatalf("loader calls = %v", calls)
	}
	byID := map[int64]*book{}
	for _, h := range hits {
		byID[h.ID.(int64)] = h.Item
	}
	if byID[1] != store[1] || byID[2] != store[2] {
		t.Errorf("loaded entities differ: %v", byID)
	}
	if byID[3] != nil {
		t.Errorf("missing entity should be nil, got %+v", byID[3])
	}
}

func TestProject(t *testing.T) {
	m := newTestMapping(t)
	idx := booksIndex(t, m)

	type row struct {
		title    string
		tags     []string
		distance float64
	}
	rows, err := Project(context.Background(), idx.Search().Sort("isbn", false), Composite3(
		ProjectField[string]("title"),
		ProjectFields[string]("tag"),
		ProjectDistance("location", paris),
		func(title string, tags []string, d float64) (row, error) {
			return row{title: title, tags: tags, distance: d}, nil
		}))
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d", len(rows))
	}
	// isbn order: 978-0399, 978-0441, 978-0441-5
	if rows[0].title != "Dune Messiah" || rows[1].title != "Dune" || rows[2].title != "Neuromancer" {
		t.Errorf("titles = %+v", rows)
	}
	if rows[1].distance > 1 {
		t.Errorf("distance from paris to paris = %g", rows[1].distance)
	}
	if rows[0].distance < 300_000 || rows[0].distance > 400_000 {
		t.Errorf("distance from paris to london = %g", rows[0].distance)
	}
	if len(rows[2].tags) != 0 {
		t.Errorf("tags = %v", rows[2].tags)
	}

	refs, err := Project(context.Background(), idx.Search().Where(func(f *PredicateFactory) (Predicate, error) {
		return f.ID(int64(2))
	}), ProjectReference())
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	if len(refs) != 1 || refs[0].TypeName != "book" || refs[0].ID != int64(2) || refs[0].Index != "books" {
		t.Errorf("refs = %+v", refs)
	}
}

func TestMultiTenancy(t *testing.T) {
	m, err := New(
		Register[note](),
		WithBackend("tenants", map[string]any{"type": "embedded", "multi_tenancy": "discriminator"}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close()
	ctx := context.Background()

	idx, err := IndexOf[note](m)
	if err != nil {
		t.Fatalf("IndexOf: %v", err)
	}
	if _, err := idx.Tenant("acme").Index(ctx, note{ID: "1", Body: "a"}, note{ID: "2", Body: "b"}); err != nil {
		t.Fatalf("Index acme: %v", err)
	}
	if _, err := idx.Tenant("globex").Index(ctx, note{ID: "1", Body: "a"}); err != nil {
		t.Fatalf("Index globex: %v", err)
	}

	for tenant, want := range map[string]int{"acme": 2, "globex": 1} {
		n, err := idx.Tenant(tenant).Count(ctx)
		if err != nil || n != want {
			t.Errorf("count %s = %d, %v; want %d", tenant, n, err, want)
		}
	}

	hits, err := idx.Tenant("globex").Search().Where(func(f *PredicateFactory) (Predicate, error) {
		return f.Match("body", "a")
	}).Fetch(ctx)
	if err != nil || len(hits) != 1 || hits[0].ID != "1" {
		t.Errorf("globex hits = %+v, %v", hits, err)
	}

	results, err := idx.Index(ctx, note{ID: "3"})
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if results[0].OK || !errors.Is(results[0].Err, ErrMissingTenant) {
		t.Errorf("expected ErrMissingTenant, got %+v", results[0])
	}
	if _, err := idx.Search().Fetch(ctx); !errors.Is(err, ErrMissingTenant) {
		t.Errorf("search without tenant: %v", err)
	}
}

func TestScope(t *testing.T) {
	m := newTestMapping(t, Register[video]())
	booksIndex(t, m)
	ctx := context.Background()

	videos, err := IndexOf[video](m)
	if err != nil {
		t.Fatalf("IndexOf: %v", err)
	}
	if _, err := videos.Index(ctx, video{ID: "v1", Title: "Dune", Pages: 1}); err != nil {
		t.Fatalf("Index: %v", err)
	}

	s, err := Scope(m)
	if err != nil {
		t.Fatalf("Scope: %v", err)
	}
	hits, err := s.Where(func(f *PredicateFactory) (Predicate, error) {
		return f.Match("title", "dune")
	}).Fetch(ctx)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	types := map[string]int{}
	for _, h := range hits {
		types[h.Reference.TypeName]++
		if h.Entity == nil {
			t.Errorf("entity of %+v not loaded", h.Reference)
		}
	}
	if types["book"] != 2 || types["video"] != 1 {
		t.Errorf("hits by type = %v", types)
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Errorf("hits not sorted by score: %v", hits)
		}
	}

	limited, err := s.Limit(2).Fetch(ctx)
	if err != nil || len(limited) != 2 {
		t.Errorf("limited = %d, %v", len(limited), err)
	}
}

func TestScope_IncompatibleFields(t *testing.T) {
	m := newTestMapping(t, Register[video]())
	s, err := Scope(m, reflect.TypeFor[book](), reflect.TypeFor[video]())
	if err != nil {
		t.Fatalf("Scope: %v", err)
	}
	ctx := context.Background()

	_, err = s.Where(func(f *PredicateFactory) (Predicate, error) {
		return f.Range("pages", nil, nil, RangeOptions{})
	}).Fetch(ctx)
	if !errors.Is(err, ErrIncompatibleField) {
		t.Errorf("long and double: expected ErrIncompatibleField, got %v", err)
	}

	_, err = s.Where(func(f *PredicateFactory) (Predicate, error) {
		return f.Match("isbn", "978-0441")
	}).Fetch(ctx)
	if err == nil {
		t.Error("field missing from one index should fail")
	}

	if _, err := Scope(m, reflect.TypeFor[author]()); !errors.Is(err, ErrUnknownType) {
		t.Errorf("unmapped type: expected ErrUnknownType, got %v", err)
	}
}

func TestNew_MappingFailures(t *testing.T) {
	t.Run("unknown backend", func(t *testing.T) {
		_, err := New(Register[note]())
		if !IsMappingError(err) || !errors.Is(err, ErrUnknownBackend) {
			t.Errorf("expected mapping error with ErrUnknownBackend, got %v", err)
		}
	})
	t.Run("unknown bridge", func(t *testing.T) {
		_, err := New(Register[book]())
		if !IsMappingError(err) {
			t.Errorf("expected mapping error, got %v", err)
		}
	})
	t.Run("duplicate index", func(t *testing.T) {
		_, err := New(
			Register[book](),
			Register[video](func(s *TypeStep) { s.Indexed("books") }),
			WithValueBridge[rating, int64]("rating", ratingBridge{}),
		)
		if !errors.Is(err, ErrDuplicateIndex) {
			t.Errorf("expected ErrDuplicateIndex, got %v", err)
		}
	})
	t.Run("no default backend", func(t *testing.T) {
		_, err := New(
			Register[video](),
			WithBackend("a", map[string]any{"type": "embedded"}),
			WithBackend("b", map[string]any{"type": "embedded"}),
		)
		if !errors.Is(err, ErrNoDefaultBackend) {
			t.Errorf("expected ErrNoDefaultBackend, got %v", err)
		}
	})
	t.Run("unknown backend type", func(t *testing.T) {
		_, err := New(WithBackend("x", map[string]any{"type": "elastic"}))
		if err == nil {
			t.Error("expected an error for an unknown backend type")
		}
	})
}

type countingObserver struct {
	mu    sync.Mutex
	types int
	err   error
}

func (o *countingObserver) ObserveMapping(types int, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.types, o.err = types, err
}

func (o *countingObserver) ObserveBulk(string, int, int, time.Duration) {}
func (o *countingObserver) ObserveSearch(string, int, time.Duration, error) {}
func (o *countingObserver) ObserveBreaker(string, string)                   {}

func TestNew_ObservesMapping(t *testing.T) {
	obs := &countingObserver{}
	newTestMapping(t, WithObserver(obs), Register[video]())
	if obs.types != 2 || obs.err != nil {
		t.Errorf("observed types=%d err=%v", obs.types, obs.err)
	}
}

func TestDefinition(t *testing.T) {
	type plain struct {
		Code  string
		Label string
	}
	d := NewDefinition()
	d.Type(reflect.TypeFor[plain]()).Indexed("plain").
		Property("Code").DocumentID()
	d.Type(reflect.TypeFor[plain]()).Property("Label").KeywordField("label", Sortable())

	m, err := New(WithDefinition(d))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close()

	idx, err := IndexOf[plain](m)
	if err != nil {
		t.Fatalf("IndexOf: %v", err)
	}
	ctx := context.Background()
	if _, err := idx.Index(ctx, plain{Code: "b", Label: "beta"}, plain{Code: "a", Label: "alpha"}); err != nil {
		t.Fatalf("Index: %v", err)
	}
	hits, err := idx.Search().Sort("label", false).Fetch(ctx)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got := hitIDs(hits); !reflect.DeepEqual(got, []any{"a", "b"}) {
		t.Errorf("ids = %v", got)
	}
	if hits[0].Item == nil || hits[0].Item.Label != "alpha" {
		t.Errorf("item = %+v", hits[0].Item)
	}
}

func TestClose(t *testing.T) {
	m, err := New(Register[video]())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	idx, err := IndexOf[video](m)
	if err != nil {
		t.Fatalf("IndexOf: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := IndexOf[video](m); !errors.Is(err, ErrClosed) {
		t.Errorf("IndexOf after close: %v", err)
	}
	results, err := idx.Index(context.Background(), video{ID: "v"})
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if results[0].OK || !errors.Is(results[0].Err, ErrClosed) {
		t.Errorf("index after close = %+v", results[0])
	}
}

type closeCountingBackend struct {
	backend.Backend
	closes *int
	err    error
}

func (b *closeCountingBackend) Close() error {
	*b.closes++
	return multierr.Append(b.Backend.Close(), b.err)
}

func TestClose_ReportsBackendFailure(t *testing.T) {
	errClose := errors.New("connection reset")
	closes := map[string]*int{"a": new(int), "b": new(int)}
	factory := func(name string, props backend.PropertySource, ctx *backend.BuildContext) (backend.Backend, error) {
		b, err := embedded.New(name, props, ctx)
		if err != nil {
			return nil, err
		}
		cb := &closeCountingBackend{Backend: b, closes: closes[name]}
		if name == "a" {
			cb.err = errClose
		}
		return cb, nil
	}

	m, err := New(
		WithBackendFactory("counting", factory),
		WithBackend("a", map[string]any{"type": "counting"}),
		WithBackend("b", map[string]any{"type": "counting"}),
		WithDefaultBackend("a"),
		Register[video](),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := m.Close(); !errors.Is(err, errClose) {
		t.Fatalf("Close = %v, want %v", err, errClose)
	}
	if err := m.Close(); !errors.Is(err, errClose) {
		t.Errorf("second Close = %v, want %v", err, errClose)
	}
	for name, n := range closes {
		if *n != 1 {
			t.Errorf("backend %s closed %d times, want 1", name, *n)
		}
	}
}
