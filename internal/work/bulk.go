package work

import (
	"context"
	"errors"
	"fmt"

	"github.com/kailas-cloud/searchmap/internal/schema"
)

// Op is the kind of a document work.
type Op int

// Document operations.
const (
	OpIndex Op = iota
	OpDelete
)

func (o Op) String() string {
	if o == OpDelete {
		return "delete"
	}
	return "index"
}

// DocumentWork is one item of a bulk request.
type DocumentWork struct {
	Op         Op
	Index      string
	DocumentID string
	TenantID   string
	Routing    string
	Document   *schema.Document
}

// ItemResult is the raw outcome of one bulk item.
type ItemResult struct {
	Index      int
	DocumentID string
	Err        error
}

// BulkResponse is the single response to a bulk request, one item per work, in order.
type BulkResponse struct {
	Items []ItemResult
}

// BulkExecutor sends a whole bulk in one round trip.
type BulkExecutor interface {
	ExecuteBulk(ctx context.Context, works []DocumentWork) (*BulkResponse, error)
}

// ErrItemMissing is returned when a response has no slot for a submitted item.
var ErrItemMissing = errors.New("bulk response has no item at this position")

// ItemError is the failure of one bulk item.
type ItemError struct {
	Index      int
	DocumentID string
	Err        error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("bulk item %d (document %q): %v", e.Index, e.DocumentID, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// BulkableWork is a bulk item able to turn its raw outcome into a typed result.
type BulkableWork[T any] interface {
	ExtractResult(item ItemResult) (T, error)
}

// BulkResultItemExtractor correlates positions of a submitted bulk with its response.
type BulkResultItemExtractor struct {
	response *Future[*BulkResponse]
	size     int
}

// NewExtractor wraps the pending response of a bulk of the given size.
func NewExtractor(response *Future[*BulkResponse], size int) *BulkResultItemExtractor {
	return &BulkResultItemExtractor{response: response, size: size}
}

// Size returns the number of submitted items.
func (e *BulkResultItemExtractor) Size() int { return e.size }

// Response returns the future of the whole response.
func (e *BulkResultItemExtractor) Response() *Future[*BulkResponse] { return e.response }

// Item returns a future of the outcome at index; it fails if that slot reports failure.
func (e *BulkResultItemExtractor) Item(index int) *Future[ItemResult] {
	return Then(e.response, func(r *BulkResponse) (ItemResult, error) {
		if index < 0 || index >= len(r.Items) {
			return ItemResult{Index: index}, fmt.Errorf("item %d of %d: %w", index, len(r.Items), ErrItemMissing)
		}
		item := r.Items[index]
		if item.Err != nil {
			return item, &ItemError{Index: index, DocumentID: item.DocumentID, Err: item.Err}
		}
		return item, nil
	})
}

// Items returns one future per submitted item.
func (e *BulkResultItemExtractor) Items() []*Future[ItemResult] {
	out := make([]*Future[ItemResult], e.size)
	for i := range out {
		out[i] = e.Item(i)
	}
	return out
}

// Extract returns a future of the typed result of work, found at index.
func Extract[T any](e *BulkResultItemExtractor, w BulkableWork[T], index int) *Future[T] {
	return Then(e.Item(index), w.ExtractResult)
}

// Execute runs works through exec and returns the extractor of the response.
// The response future is resolved before Execute returns.
func Execute(ctx context.Context, exec BulkExecutor, works []DocumentWork) *BulkResultItemExtractor {
	resp := NewFuture[*BulkResponse]()
	e := NewExtractor(resp, len(works))
	complete(ctx, exec, works, resp)
	return e
}

func complete(ctx context.Context, exec BulkExecutor, works []DocumentWork, resp *Future[*BulkResponse]) {
	r, err := exec.ExecuteBulk(ctx, works)
	if err != nil {
		resp.Fail(fmt.Errorf("bulk of %d: %w", len(works), err))
		return
	}
	resp.Complete(r)
}
