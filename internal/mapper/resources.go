package mapper

import (
	"io"
	"sync"

	"go.uber.org/multierr"

	"github.com/kailas-cloud/searchmap/internal/bridge"
)

type owned struct {
	instance any
	closer   io.Closer
	closed   bool
}

// resources tracks the bridge instances a mapping acquired. Each distinct
// instance is bound once and closed once, however many properties share it.
type resources struct {
	mu    sync.Mutex
	bound []any
	owned []*owned
}

// bind runs fn unless instance was already bound.
func (r *resources) bind(instance any, fn func() error) error {
	r.mu.Lock()
	for _, b := range r.bound {
		if bridge.Identical(b, instance) {
			r.mu.Unlock()
			return nil
		}
	}
	r.bound = append(r.bound, instance)
	r.mu.Unlock()
	return fn()
}

// own registers the closer releasing instance.
func (r *resources) own(instance any, c io.Closer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.owned {
		if bridge.Identical(o.instance, instance) {
			return
		}
	}
	r.owned = append(r.owned, &owned{instance: instance, closer: c})
}

// release closes instance if it is owned and still open.
func (r *resources) release(instance any) error {
	r.mu.Lock()
	var target *owned
	for _, o := range r.owned {
		if !o.closed && bridge.Identical(o.instance, instance) {
			o.closed = true
			target = o
			break
		}
	}
	r.mu.Unlock()
	if target == nil {
		return nil
	}
	return target.closer.Close()
}

// closeAll closes every owned instance still open, in reverse acquisition order.
func (r *resources) closeAll() error {
	r.mu.Lock()
	var pending []*owned
	for i := len(r.owned) - 1; i >= 0; i-- {
		if o := r.owned[i]; !o.closed {
			o.closed = true
			pending = append(pending, o)
		}
	}
	r.mu.Unlock()

	var err error
	for _, o := range pending {
		err = multierr.Append(err, o.closer.Close())
	}
	return err
}
