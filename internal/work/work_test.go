package work

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeExecutor struct {
	mu      sync.Mutex
	calls   int
	sizes   []int
	failAt  map[int]bool
	failAll error
	block   chan struct{}
}

func (f *fakeExecutor) ExecuteBulk(_ context.Context, works []DocumentWork) (*BulkResponse, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.calls++
	f.sizes = append(f.sizes, len(works))
	f.mu.Unlock()
	if f.failAll != nil {
		return nil, f.failAll
	}
	resp := &BulkResponse{Items: make([]ItemResult, len(works))}
	for i, w := range works {
		resp.Items[i] = ItemResult{Index: i, DocumentID: w.DocumentID}
		if f.failAt[i] {
			resp.Items[i].Err = errors.New("rejected " + w.DocumentID)
		}
	}
	return resp, nil
}

func makeWorks(n int) []DocumentWork {
	works := make([]DocumentWork, n)
	for i := range works {
		works[i] = DocumentWork{Index: "books", DocumentID: strconv.Itoa(i)}
	}
	return works
}

func TestFuture_CompleteOnce(t *testing.T) {
	f := NewFuture[int]()
	if !f.Complete(1) {
		t.Fatal("first completion refused")
	}
	if f.Complete(2) || f.Fail(errors.New("x")) {
		t.Error("second completion accepted")
	}
	v, err := f.Get(context.Background())
	if err != nil || v != 1 {
		t.Errorf("Get = %d, %v", v, err)
	}
}

func TestFuture_CancelledWaiterDoesNotAffectOthers(t *testing.T) {
	f := NewFuture[string]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.Get(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	got := make(chan string, 1)
	go func() {
		v, _ := f.Get(context.Background())
		got <- v
	}()
	f.Complete("ok")
	select {
	case v := <-got:
		if v != "ok" {
			t.Errorf("value = %q", v)
		}
	case <-time.After(time.Second):
		t.Fatal("second waiter never resolved")
	}
}

func TestFuture_OnCompleteAndThen(t *testing.T) {
	f := NewFuture[int]()
	doubled := Then(f, func(v int) (int, error) { return v * 2, nil })
	failing := Then(f, func(int) (string, error) { return "", errors.New("nope") })

	var seen atomic.Int32
	f.OnComplete(func(v int, _ error) { seen.Store(int32(v)) })
	f.Complete(21)

	if v, err := doubled.Get(context.Background()); err != nil || v != 42 {
		t.Errorf("doubled = %d, %v", v, err)
	}
	if _, err := failing.Get(context.Background()); err == nil {
		t.Error("expected failure")
	}
	if seen.Load() != 21 {
		t.Errorf("callback saw %d", seen.Load())
	}

	late := false
	f.OnComplete(func(int, error) { late = true })
	if !late {
		t.Error("callback on completed future must run immediately")
	}
}

func TestExtractor_ItemFailureIsIsolated(t *testing.T) {
	exec := &fakeExecutor{failAt: map[int]bool{2: true}}
	e := Execute(context.Background(), exec, makeWorks(5))

	for i := range 5 {
		item, err := e.Item(i).Get(context.Background())
		if i == 2 {
			var ie *ItemError
			if !errors.As(err, &ie) || ie.Index != 2 || ie.DocumentID != "2" {
				t.Errorf("item 2: expected *ItemError, got %v", err)
			}
			continue
		}
		if err != nil {
			t.Errorf("item %d failed: %v", i, err)
		}
		if item.DocumentID != strconv.Itoa(i) {
			t.Errorf("item %d: document %q", i, item.DocumentID)
		}
	}
	if exec.calls != 1 {
		t.Errorf("executor called %d times, want 1", exec.calls)
	}
}

func TestExtractor_WholeBatchFailure(t *testing.T) {
	boom := errors.New("connection reset")
	e := Execute(context.Background(), &fakeExecutor{failAll: boom}, makeWorks(3))
	for i, f := range e.Items() {
		if _, err := f.Get(context.Background()); !errors.Is(err, boom) {
			t.Errorf("item %d: expected batch failure, got %v", i, err)
		}
	}
}

func TestExtractor_MissingSlot(t *testing.T) {
	resp := Completed(&BulkResponse{Items: []ItemResult{{}}})
	e := NewExtractor(resp, 2)
	if _, err := e.Item(1).Get(context.Background()); !errors.Is(err, ErrItemMissing) {
		t.Errorf("expected ErrItemMissing, got %v", err)
	}
}

type idWork struct{}

func (idWork) ExtractResult(item ItemResult) (string, error) {
	return "doc:" + item.DocumentID, nil
}

func TestExtract_Typed(t *testing.T) {
	e := Execute(context.Background(), &fakeExecutor{}, makeWorks(2))
	v, err := Extract[string](e, idWork{}, 1).Get(context.Background())
	if err != nil || v != "doc:1" {
		t.Errorf("Extract = %q, %v", v, err)
	}
}

func TestOrchestrator_SplitsAndCompletes(t *testing.T) {
	exec := &fakeExecutor{failAt: map[int]bool{0: true}}
	o := NewOrchestrator(exec, OrchestratorConfig{Name: "test", Parallelism: 2, MaxBulkSize: 3})

	futures := o.Submit(context.Background(), makeWorks(7))
	if len(futures) != 7 {
		t.Fatalf("futures = %d, want 7", len(futures))
	}
	failed := 0
	for i, f := range futures {
		item, err := f.Get(context.Background())
		if err != nil {
			failed++
			continue
		}
		if item.DocumentID != strconv.Itoa(i) {
			t.Errorf("future %d resolved to document %q", i, item.DocumentID)
		}
	}
	// Position 0 of each of the three bulks fails.
	if failed != 3 {
		t.Errorf("failed = %d, want 3", failed)
	}
	if err := o.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if exec.calls != 3 {
		t.Errorf("executor called %d times, want 3 (sizes %v)", exec.calls, exec.sizes)
	}
}

func TestOrchestrator_ClosedRejects(t *testing.T) {
	o := NewOrchestrator(&fakeExecutor{}, OrchestratorConfig{})
	if err := o.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := o.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	for _, f := range o.Submit(context.Background(), makeWorks(2)) {
		if _, err := f.Get(context.Background()); !errors.Is(err, ErrOrchestratorClosed) {
			t.Errorf("expected ErrOrchestratorClosed, got %v", err)
		}
	}
}

func TestOrchestrator_CloseWaitsForInFlight(t *testing.T) {
	exec := &fakeExecutor{block: make(chan struct{})}
	o := NewOrchestrator(exec, OrchestratorConfig{})
	futures := o.Submit(context.Background(), makeWorks(1))

	closed := make(chan struct{})
	go func() {
		_ = o.Close()
		close(closed)
	}()
	select {
	case <-closed:
		t.Fatal("Close returned before the bulk finished")
	case <-time.After(50 * time.Millisecond):
	}
	close(exec.block)
	<-closed
	if _, err := futures[0].Get(context.Background()); err != nil {
		t.Errorf("in-flight bulk failed: %v", err)
	}
}
