package embedded

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/searchmap/internal/backend"
	"github.com/kailas-cloud/searchmap/internal/geo"
	"github.com/kailas-cloud/searchmap/internal/predicate"
	"github.com/kailas-cloud/searchmap/internal/schema"
	"github.com/kailas-cloud/searchmap/internal/work"
)

type book struct {
	id        string
	title     string
	isbn      string
	pages     int64
	published time.Time
	location  geo.Point
	tags      []string
	author    string
}

var (
	paris  = geo.Point{Lat: 48.8566, Lon: 2.3522}
	london = geo.Point{Lat: 51.5074, Lon: -0.1278}
	nyc    = geo.Point{Lat: 40.7128, Lon: -74.0060}
)

var books = []book{
	{"1", "Dune", "978-0441", 412, time.Date(1965, 8, 1, 0, 0, 0, 0, time.UTC), paris, []string{"scifi", "classic"}, "Herbert"},
	{"2", "Dune Messiah", "978-0399", 256, time.Date(1969, 10, 1, 0, 0, 0, 0, time.UTC), london, []string{"scifi"}, "Herbert"},
	{"3", "Neuromancer", "978-0441-5", 271, time.Date(1984, 7, 1, 0, 0, 0, 0, time.UTC), nyc, nil, "Gibson"},
}

type fixture struct {
	backend backend.Backend
	index   *IndexManager
	refs    map[string]*schema.FieldReference
}

func newFixture(t *testing.T, backendProps backend.PropertySource, multiTenant bool) *fixture {
	t.Helper()
	b, err := New("main", backendProps, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	ib, err := b.CreateIndexManagerBuilder("Books", multiTenant, nil, backend.PropertySource{KeyBulkSize: 2})
	require.NoError(t, err)

	refs := map[string]*schema.FieldReference{}
	root := ib.Schema().Root()
	declare := func(el *schema.ElementBuilder, name string, kind schema.Kind, opts schema.FieldOptions) {
		ref, err := el.Field(name, kind, opts)
		require.NoError(t, err)
		refs[ref.Path()] = ref
	}
	sortable := schema.DefaultOptions()
	sortable.Sortable = true
	multi := schema.DefaultOptions()
	multi.MultiValued = true

	declare(root, "title", schema.KindText, schema.DefaultOptions())
	declare(root, "isbn", schema.KindKeyword, sortable)
	declare(root, "pages", schema.KindLong, sortable)
	declare(root, "published", schema.KindDate, schema.DefaultOptions())
	declare(root, "location", schema.KindGeoPoint, schema.DefaultOptions())
	declare(root, "tags", schema.KindKeyword, multi)
	author, _, err := root.Object("author", false)
	require.NoError(t, err)
	declare(author, "name", schema.KindKeyword, schema.DefaultOptions())

	im, err := ib.Build()
	require.NoError(t, err)
	require.NoError(t, im.Start(context.Background()))
	return &fixture{backend: b, index: im.(*IndexManager), refs: refs}
}

func (f *fixture) document(t *testing.T, b book) *schema.Document {
	t.Helper()
	doc := schema.NewDocument()
	require.NoError(t, doc.Add(f.refs["title"], b.title))
	require.NoError(t, doc.Add(f.refs["isbn"], b.isbn))
	require.NoError(t, doc.Add(f.refs["pages"], b.pages))
	require.NoError(t, doc.Add(f.refs["published"], b.published))
	require.NoError(t, doc.Add(f.refs["location"], b.location))
	for _, tag := range b.tags {
		require.NoError(t, doc.Add(f.refs["tags"], tag))
	}
	require.NoError(t, doc.Add(f.refs["author.name"], b.author))
	return doc
}

func (f *fixture) indexAll(t *testing.T, tenantID string, items []book) {
	t.Helper()
	works := make([]work.DocumentWork, len(items))
	for i, b := range items {
		works[i] = work.DocumentWork{
			Op:         work.OpIndex,
			Index:      "Books",
			DocumentID: b.id,
			TenantID:   tenantID,
			Document:   f.document(t, b),
		}
	}
	_, err := work.All(context.Background(), f.index.Bulk(context.Background(), works))
	require.NoError(t, err)
}

func (f *fixture) ids(t *testing.T, p predicate.Predicate, tenantID string) []string {
	t.Helper()
	res, err := f.index.Search(context.Background(), &backend.SearchRequest{TenantID: tenantID, Predicate: p, Limit: 10})
	require.NoError(t, err)
	out := make([]string, len(res.Hits))
	for i, h := range res.Hits {
		out[i] = h.DocumentID
	}
	return out
}

func mustMatch(t *testing.T, pf predicate.Factory, path string, v any) predicate.Predicate {
	t.Helper()
	ff, err := pf.Field(path)
	require.NoError(t, err)
	mb, err := ff.CreateMatch(path)
	require.NoError(t, err)
	require.NoError(t, mb.Value(v))
	p, err := mb.Build()
	require.NoError(t, err)
	return p
}

func TestIndexManager_SearchPredicates(t *testing.T) {
	f := newFixture(t, backend.PropertySource{}, false)
	f.indexAll(t, "", books)
	pf := f.index.Predicates()

	n, err := f.index.Count(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.ElementsMatch(t, []string{"1", "2", "3"}, f.ids(t, pf.MatchAll(), ""))
	assert.Equal(t, []string{"1"}, f.ids(t, mustMatch(t, pf, "isbn", "978-0441"), ""))
	assert.ElementsMatch(t, []string{"1", "2"}, f.ids(t, mustMatch(t, pf, "title", "dune"), ""))
	assert.ElementsMatch(t, []string{"1", "2"}, f.ids(t, mustMatch(t, pf, "author.name", "Herbert"), ""))
	assert.ElementsMatch(t, []string{"1", "2"}, f.ids(t, mustMatch(t, pf, "tags", "scifi"), ""))
	assert.Equal(t, []string{"3"}, f.ids(t, mustMatch(t, pf, "pages", int64(271)), ""))
	assert.ElementsMatch(t, []string{"1", "3"}, f.ids(t, pf.ID("1", "3"), ""))

	t.Run("range", func(t *testing.T) {
		ff, err := pf.Field("pages")
		require.NoError(t, err)
		rb, err := ff.CreateRange("pages")
		require.NoError(t, err)
		require.NoError(t, rb.Range(int64(271), nil, predicate.RangeOptions{}))
		p, err := rb.Build()
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"1", "3"}, f.ids(t, p, ""))

		require.NoError(t, rb.Range(int64(271), nil, predicate.RangeOptions{ExcludeLower: true}))
		p, err = rb.Build()
		require.NoError(t, err)
		assert.Equal(t, []string{"1"}, f.ids(t, p, ""))
	})

	t.Run("date range", func(t *testing.T) {
		ff, err := pf.Field("published")
		require.NoError(t, err)
		rb, err := ff.CreateRange("published")
		require.NoError(t, err)
		require.NoError(t, rb.Range(nil, time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC), predicate.RangeOptions{}))
		p, err := rb.Build()
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"1", "2"}, f.ids(t, p, ""))
	})

	t.Run("bool", func(t *testing.T) {
		p, err := pf.Bool(nil, nil, []predicate.Predicate{mustMatch(t, pf, "author.name", "Herbert")})
		require.NoError(t, err)
		assert.Equal(t, []string{"3"}, f.ids(t, p, ""))

		p, err = pf.Bool(
			[]predicate.Predicate{mustMatch(t, pf, "tags", "scifi")},
			nil,
			[]predicate.Predicate{mustMatch(t, pf, "isbn", "978-0399")},
		)
		require.NoError(t, err)
		assert.Equal(t, []string{"1"}, f.ids(t, p, ""))
	})
}

func TestIndexManager_SpatialPredicates(t *testing.T) {
	f := newFixture(t, backend.PropertySource{}, false)
	f.indexAll(t, "", books)
	ff, err := f.index.Predicates().Field("location")
	require.NoError(t, err)

	cb, err := ff.CreateSpatialWithinCircle("location")
	require.NoError(t, err)
	assert.Equal(t, "location", cb.Path())
	require.NoError(t, cb.Circle(paris, 400_000))
	p, err := cb.Build()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"1", "2"}, f.ids(t, p, ""))

	bb, err := ff.CreateSpatialWithinBoundingBox("location")
	require.NoError(t, err)
	require.NoError(t, bb.BoundingBox(geo.BoundingBox{
		TopLeft:     geo.Point{Lat: 52, Lon: -1},
		BottomRight: geo.Point{Lat: 48, Lon: 3},
	}))
	p, err = bb.Build()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"1", "2"}, f.ids(t, p, ""))

	pb, err := ff.CreateSpatialWithinPolygon("location")
	require.NoError(t, err)
	poly, err := geo.NewPolygon(
		geo.Point{Lat: 35, Lon: -80},
		geo.Point{Lat: 35, Lon: -70},
		geo.Point{Lat: 45, Lon: -70},
		geo.Point{Lat: 45, Lon: -80},
	)
	require.NoError(t, err)
	require.NoError(t, pb.Polygon(poly))
	p, err = pb.Build()
	require.NoError(t, err)
	assert.Equal(t, []string{"3"}, f.ids(t, p, ""))

	assert.Error(t, cb.Circle(paris, 0))
}

func TestFieldFactories_Capabilities(t *testing.T) {
	geoF := factoryFor(schema.KindGeoPoint)
	assert.Same(t, geoF, factoryFor(schema.KindGeoPoint))

	_, err := geoF.CreateMatch("location")
	var ue *predicate.UnsupportedError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, predicate.KindMatch, ue.Kind)
	assert.Equal(t, "location", ue.Path)
	_, err = geoF.CreateRange("location")
	assert.ErrorIs(t, err, predicate.ErrNotSupported)

	_, err = factoryFor(schema.KindKeyword).CreateSpatialWithinCircle("isbn")
	assert.ErrorIs(t, err, predicate.ErrNotSupported)
	_, err = factoryFor(schema.KindText).CreateRange("title")
	assert.ErrorIs(t, err, predicate.ErrNotSupported)

	assert.True(t, longFactory.IsDslCompatibleWith(longFactory))
	assert.False(t, longFactory.IsDslCompatibleWith(doubleFactory))
	assert.False(t, doubleFactory.IsDslCompatibleWith(longFactory))
	assert.False(t, keywordFactory.IsDslCompatibleWith(textFactory))
	assert.True(t, geoF.IsDslCompatibleWith(geoPointFactory))
}

func TestMatchBuilder_RejectsWrongValueType(t *testing.T) {
	mb, err := factoryFor(schema.KindLong).CreateMatch("pages")
	require.NoError(t, err)
	assert.ErrorIs(t, mb.Value("412"), predicate.ErrInvalidValue)
	_, err = mb.Build()
	assert.ErrorIs(t, err, predicate.ErrInvalidValue)
}

func TestPredicateFactory_UnknownField(t *testing.T) {
	f := newFixture(t, backend.PropertySource{}, false)
	_, err := f.index.Predicates().Field("subtitle")
	assert.ErrorIs(t, err, predicate.ErrUnknownField)
}

func TestIndexManager_StoredFields(t *testing.T) {
	f := newFixture(t, backend.PropertySource{}, false)
	f.indexAll(t, "", books[:1])

	res, err := f.index.Search(context.Background(), &backend.SearchRequest{})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	hit := res.Hits[0]
	assert.Equal(t, "Books", hit.Index)
	assert.Equal(t, []any{"Dune"}, hit.Fields["title"])
	assert.Equal(t, []any{int64(412)}, hit.Fields["pages"])
	assert.Equal(t, []any{"Herbert"}, hit.Fields["author.name"])
	assert.ElementsMatch(t, []any{"scifi", "classic"}, hit.Fields["tags"])
	require.Len(t, hit.Fields["published"], 1)
	assert.True(t, books[0].published.Equal(hit.Fields["published"][0].(time.Time)))
	require.Len(t, hit.Fields["location"], 1)
	loc := hit.Fields["location"][0].(geo.Point)
	assert.InDelta(t, paris.Lat, loc.Lat, 1e-4)
	assert.InDelta(t, paris.Lon, loc.Lon, 1e-4)

	res, err = f.index.Search(context.Background(), &backend.SearchRequest{Fields: []string{"isbn"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"isbn"}, keys(res.Hits[0].Fields))
}

func keys(m map[string][]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestIndexManager_Sort(t *testing.T) {
	f := newFixture(t, backend.PropertySource{}, false)
	f.indexAll(t, "", books)

	res, err := f.index.Search(context.Background(), &backend.SearchRequest{
		Sort: []backend.Sort{{Field: "pages", Descending: true}},
	})
	require.NoError(t, err)
	var order []string
	for _, h := range res.Hits {
		order = append(order, h.DocumentID)
	}
	assert.Equal(t, []string{"1", "3", "2"}, order)

	_, err = f.index.Search(context.Background(), &backend.SearchRequest{Sort: []backend.Sort{{Field: "title"}}})
	assert.Error(t, err)
}

func TestIndexManager_BulkItemFailureIsIsolated(t *testing.T) {
	f := newFixture(t, backend.PropertySource{}, false)
	works := []work.DocumentWork{
		{Op: work.OpIndex, Index: "Books", DocumentID: "1", Document: f.document(t, books[0])},
		{Op: work.OpIndex, Index: "Books", DocumentID: "broken"},
		{Op: work.OpIndex, Index: "Books", DocumentID: "3", Document: f.document(t, books[2])},
	}
	futures := f.index.Bulk(context.Background(), works)
	require.Len(t, futures, 3)

	_, err := futures[0].Get(context.Background())
	assert.NoError(t, err)
	_, err = futures[1].Get(context.Background())
	var ie *work.ItemError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "broken", ie.DocumentID)
	_, err = futures[2].Get(context.Background())
	assert.NoError(t, err)

	n, err := f.index.Count(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	del, err := work.All(context.Background(), f.index.Bulk(context.Background(), []work.DocumentWork{
		{Op: work.OpDelete, Index: "Books", DocumentID: "1"},
	}))
	require.NoError(t, err)
	assert.Len(t, del, 1)
	n, err = f.index.Count(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBackend_MultiTenancy(t *testing.T) {
	b, err := New("main", backend.PropertySource{}, nil)
	require.NoError(t, err)
	_, err = b.CreateIndexManagerBuilder("Books", true, nil, nil)
	assert.ErrorIs(t, err, backend.ErrMultiTenancyNotSupported)

	f := newFixture(t, backend.PropertySource{"multi_tenancy": "discriminator"}, true)
	f.indexAll(t, "acme", books[:2])
	f.indexAll(t, "globex", books[:1])

	assert.ElementsMatch(t, []string{"1", "2"}, f.ids(t, f.index.Predicates().MatchAll(), "acme"))
	assert.Equal(t, []string{"1"}, f.ids(t, f.index.Predicates().MatchAll(), "globex"))
	assert.Equal(t, []string{"1"}, f.ids(t, f.index.Predicates().ID("1"), "globex"))

	n, err := f.index.Count(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = f.index.Search(context.Background(), &backend.SearchRequest{})
	assert.ErrorIs(t, err, backend.ErrMissingTenant)
}

func TestBackend_CloseIsIdempotent(t *testing.T) {
	f := newFixture(t, backend.PropertySource{}, false)

	var idx bleve.Index
	require.NoError(t, f.index.Unwrap(&idx))
	var asBackend *Backend
	require.NoError(t, f.backend.Unwrap(&asBackend))
	m, ok := asBackend.Index("Books")
	require.True(t, ok)
	assert.Same(t, f.index, m)

	require.NoError(t, f.backend.Close())
	require.NoError(t, f.backend.Close())

	futures := f.index.Bulk(context.Background(), []work.DocumentWork{{Op: work.OpDelete, DocumentID: "1"}})
	_, err := futures[0].Get(context.Background())
	assert.True(t, errors.Is(err, backend.ErrClosed))

	_, err = f.backend.CreateIndexManagerBuilder("Other", false, nil, nil)
	assert.ErrorIs(t, err, backend.ErrClosed)
}
