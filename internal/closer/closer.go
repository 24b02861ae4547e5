package closer

import (
	"fmt"
	"io"
	"sync"

	"go.uber.org/multierr"
)

// Closer runs close functions in order and keeps every failure.
// One failing resource never prevents the next one from being released.
type Closer struct {
	err error
}

// Push runs fn and records its error. A panicking fn is recorded as an error.
func (c *Closer) Push(fn func() error) {
	c.err = multierr.Append(c.err, run(fn))
}

// Close closes each closer in order.
func Close[T io.Closer](c *Closer, items ...T) {
	for _, item := range items {
		c.Push(item.Close)
	}
}

// Err returns the aggregated failures, nil when every close succeeded.
func (c *Closer) Err() error { return c.err }

func run(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during close: %v", r)
		}
	}()
	return fn()
}

// Once makes a close operation idempotent: the first call runs it, later
// calls return the same result.
type Once struct {
	once sync.Once
	err  error
}

// Do runs fn the first time it is called.
func (o *Once) Do(fn func() error) error {
	o.once.Do(func() { o.err = run(fn) })
	return o.err
}
