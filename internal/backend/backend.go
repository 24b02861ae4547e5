// Package backend defines the boundary between the mapper and search engines.
package backend

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/searchmap/internal/failure"
	"github.com/kailas-cloud/searchmap/internal/predicate"
	"github.com/kailas-cloud/searchmap/internal/projection"
	"github.com/kailas-cloud/searchmap/internal/schema"
	"github.com/kailas-cloud/searchmap/internal/work"
)

// Sentinel errors.
var (
	ErrMultiTenancyNotSupported = errors.New("multi-tenancy is not enabled for this backend: set multi_tenancy: discriminator")
	ErrUnknownUnwrapType        = errors.New("backend cannot be unwrapped to the requested type")
	ErrMissingType              = errors.New("backend type is not set")
	ErrUnknownType              = errors.New("unknown backend type")
	ErrIndexNotStarted          = errors.New("index is not started")
	ErrClosed                   = errors.New("backend is closed")
	ErrMissingTenant            = errors.New("index is multi-tenant: a tenant identifier is required")
	ErrForeignPredicate         = errors.New("predicate was built by another backend")
)

// Observer receives backend timings. Implementations must be safe for concurrent use.
type Observer interface {
	work.BulkObserver
	ObserveSearch(index string, hits int, d time.Duration, err error)
	ObserveBreaker(backend string, state string)
}

type nopObserver struct{}

func (nopObserver) ObserveBulk(string, int, int, time.Duration)    {}
func (nopObserver) ObserveSearch(string, int, time.Duration, error) {}
func (nopObserver) ObserveBreaker(string, string)                   {}

// NopObserver discards every observation.
var NopObserver Observer = nopObserver{}

// BuildContext is passed to backends and their index managers.
type BuildContext struct {
	Logger   *zap.Logger
	Observer Observer
}

// WithDefaults fills unset fields.
func (c *BuildContext) WithDefaults() *BuildContext {
	out := BuildContext{}
	if c != nil {
		out = *c
	}
	if out.Logger == nil {
		out.Logger = zap.NewNop()
	}
	if out.Observer == nil {
		out.Observer = NopObserver
	}
	return &out
}

// Backend is one configured search engine.
type Backend interface {
	Name() string
	// CreateIndexManagerBuilder starts an index. Index names are used as given.
	CreateIndexManagerBuilder(indexName string, multiTenancy bool, ctx *BuildContext, props PropertySource) (IndexManagerBuilder, error)
	// Unwrap stores the backend's native client into target, a non-nil
	// pointer, or fails with ErrUnknownUnwrapType.
	Unwrap(target any) error
	Close() error
}

// IndexManagerBuilder collects the schema of an index before it is built.
type IndexManagerBuilder interface {
	Schema() *schema.RootBuilder
	Build() (IndexManager, error)
	// CloseOnFailure releases what the builder holds when the mapping fails.
	CloseOnFailure()
}

// Sort orders search hits by a sortable field.
type Sort struct {
	Field      string
	Descending bool
}

// SearchRequest is a query against one index.
type SearchRequest struct {
	TenantID  string
	Predicate predicate.Predicate
	Offset    int
	Limit     int
	Sort      []Sort
	// Fields restricts the returned stored fields; nil returns every projectable field.
	Fields []string
}

// SearchResult is the response of an index search.
type SearchResult struct {
	Total int
	Hits  []projection.Hit
	Took  time.Duration
}

// IndexManager serves one built index.
type IndexManager interface {
	Name() string
	Schema() *schema.Model
	// Start creates the index when it does not exist.
	Start(ctx context.Context) error
	Stop() error
	Predicates() predicate.Factory
	Bulk(ctx context.Context, works []work.DocumentWork) []*work.Future[work.ItemResult]
	Search(ctx context.Context, req *SearchRequest) (*SearchResult, error)
	Count(ctx context.Context, tenantID string) (int, error)
}

// UnwrapTo stores the first candidate assignable to *target.
func UnwrapTo(target any, candidates ...any) error {
	tv := reflect.ValueOf(target)
	if tv.Kind() != reflect.Pointer || tv.IsNil() {
		return fmt.Errorf("%w: target must be a non-nil pointer, got %T", ErrUnknownUnwrapType, target)
	}
	elem := tv.Elem()
	for _, c := range candidates {
		cv := reflect.ValueOf(c)
		if cv.IsValid() && cv.Type().AssignableTo(elem.Type()) {
			elem.Set(cv)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownUnwrapType, elem.Type())
}

// CheckTenancy fails when a multi-tenant index is requested from a backend
// whose strategy is none.
func CheckTenancy(strategy MultiTenancy, requested bool, indexName string) error {
	if requested && strategy == TenancyNone {
		return failure.WithContext(ErrMultiTenancyNotSupported, failure.Index(indexName))
	}
	return nil
}
