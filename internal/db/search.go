package db

// DefaultDialect is the query dialect sent with every FT.SEARCH.
const DefaultDialect = 3

// Query is the input for FT.SEARCH.
type Query struct {
	Index string
	// Query is a RediSearch query string, "*" matches everything.
	Query  string
	Params map[string]string

	Offset int
	Limit  int

	SortBy   string
	SortDesc bool

	// Return lists the attributes to return; "$" returns the whole JSON document.
	Return     []string
	WithScores bool
	Dialect    int
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
