package failure

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/multierr"
)

type entry struct {
	contexts []EventContext
	err      error
}

type sink struct {
	mu      sync.Mutex
	entries []entry
}

// Collector accumulates mapping failures instead of raising them one by one.
// Children created with WithContext share the root's storage.
type Collector struct {
	sink     *sink
	contexts []EventContext
}

// NewCollector returns an empty root collector.
func NewCollector() *Collector {
	return &Collector{sink: &sink{}}
}

// WithContext returns a child collector whose failures carry the extra contexts.
func (c *Collector) WithContext(contexts ...EventContext) *Collector {
	merged := make([]EventContext, 0, len(c.contexts)+len(contexts))
	merged = append(merged, c.contexts...)
	merged = append(merged, contexts...)
	return &Collector{sink: c.sink, contexts: merged}
}

// Contexts returns the contexts this collector tags failures with.
func (c *Collector) Contexts() []EventContext {
	return c.contexts
}

// Add records err under the collector's contexts. Nil is ignored.
func (c *Collector) Add(err error) {
	if err == nil {
		return
	}
	c.sink.mu.Lock()
	defer c.sink.mu.Unlock()
	c.sink.entries = append(c.sink.entries, entry{contexts: c.contexts, err: err})
}

// Addf records a formatted failure.
func (c *Collector) Addf(format string, args ...any) {
	c.Add(fmt.Errorf(format, args...))
}

// HasFailures reports whether any failure was recorded anywhere in the tree.
func (c *Collector) HasFailures() bool {
	c.sink.mu.Lock()
	defer c.sink.mu.Unlock()
	return len(c.sink.entries) > 0
}

// Err returns every recorded failure as a *MappingError, or nil when clean.
func (c *Collector) Err() error {
	c.sink.mu.Lock()
	defer c.sink.mu.Unlock()
	if len(c.sink.entries) == 0 {
		return nil
	}

	// Group by rendered context, preserving first-seen order.
	var order []string
	groups := make(map[string]*Group)
	for _, e := range c.sink.entries {
		key := Render(e.contexts)
		g, ok := groups[key]
		if !ok {
			g = &Group{Contexts: e.contexts}
			groups[key] = g
			order = append(order, key)
		}
		g.Errs = append(g.Errs, e.err)
	}

	me := &MappingError{}
	var all error
	for _, key := range order {
		g := groups[key]
		me.Groups = append(me.Groups, *g)
		for _, err := range g.Errs {
			all = multierr.Append(all, &ContextError{Contexts: g.Contexts, Err: err})
		}
	}
	me.err = all
	return me
}

// Group is the set of failures sharing the same contexts.
type Group struct {
	Contexts []EventContext
	Errs     []error
}

// MappingError aggregates all structural failures of one mapping attempt.
type MappingError struct {
	Groups []Group
	err    error
}

func (e *MappingError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "mapping failed with %d failure(s)", e.Count())
	for _, g := range e.Groups {
		b.WriteString("\n  ")
		if len(g.Contexts) == 0 {
			b.WriteString("default context")
		} else {
			b.WriteString(Render(g.Contexts))
		}
		b.WriteString(":")
		for _, err := range g.Errs {
			b.WriteString("\n    ")
			b.WriteString(err.Error())
		}
	}
	return b.String()
}

// Unwrap exposes every failure (as *ContextError) to errors.Is / errors.As.
func (e *MappingError) Unwrap() []error {
	return multierr.Errors(e.err)
}

// Count returns the total number of failures.
func (e *MappingError) Count() int {
	n := 0
	for _, g := range e.Groups {
		n += len(g.Errs)
	}
	return n
}

// IsMappingError reports whether err is (or wraps) a *MappingError.
func IsMappingError(err error) bool {
	var me *MappingError
	return errors.As(err, &me)
}
