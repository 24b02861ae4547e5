// Package searchmap maps plain Go structs to search indexes served by an
// embedded bleve engine or a remote Redis search engine.
//
// Types are mapped with `search:"..."` struct tags, a programmatic Definition,
// or both. Type-level options go on a blank field.
//
//	type Book struct {
//	    _      struct{}        `search:"index=books"`
//	    ID     int64
//	    Title  string          `search:"text,analyzer=en"`
//	    ISBN   string          `search:"keyword,sortable"`
//	    Shelf  searchmap.Point `search:"geo"`
//	    Author *Author         `search:"embedded"`
//	}
//
//	m, _ := searchmap.New(searchmap.Register[Book]())
//	defer m.Close()
//
//	books, _ := searchmap.IndexOf[Book](m)
//	_, _ = books.Index(ctx, dune, messiah)
//	hits, _ := books.Search().
//	    Where(func(f *searchmap.PredicateFactory) (searchmap.Predicate, error) {
//	        return f.Match("title", "dune")
//	    }).
//	    Limit(20).
//	    Fetch(ctx)
//
// Without configuration every index lives in memory. Backends are declared
// with WithConfig or WithBackend; "type" selects embedded or redis.
package searchmap
