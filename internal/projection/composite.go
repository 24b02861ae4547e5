package projection

import (
	"fmt"
)

// Composite data is strictly positional: slot i of the collected, extracted
// and transformed sequences always belongs to child i.

func slots(data any, n int, phase string) ([]any, error) {
	s, ok := data.([]any)
	if !ok || len(s) != n {
		return nil, fmt.Errorf("composite %s: expected %d slots, got %T: %w", phase, n, data, ErrMalformedExtract)
	}
	return s, nil
}

type composite2[A, B, R any] struct {
	p1 Projection[A]
	p2 Projection[B]
	fn func(A, B) (R, error)
}

// Composite2 combines two projections with fn.
func Composite2[A, B, R any](p1 Projection[A], p2 Projection[B], fn func(A, B) (R, error)) Projection[R] {
	return &composite2[A, B, R]{p1: p1, p2: p2, fn: fn}
}

func (c *composite2[A, B, R]) Collect(hit *Hit) any {
	return []any{c.p1.Collect(hit), c.p2.Collect(hit)}
}

func (c *composite2[A, B, R]) Extract(mapper HitMapper, raw any, ctx *ConvertContext) (any, error) {
	in, err := slots(raw, 2, "extract")
	if err != nil {
		return nil, err
	}
	e1, err := c.p1.Extract(mapper, in[0], ctx)
	if err != nil {
		return nil, err
	}
	e2, err := c.p2.Extract(mapper, in[1], ctx)
	if err != nil {
		return nil, err
	}
	return []any{e1, e2}, nil
}

func (c *composite2[A, B, R]) Transform(result LoadingResult, extracted any) (R, error) {
	var zero R
	in, err := slots(extracted, 2, "transform")
	if err != nil {
		return zero, err
	}
	a, err := c.p1.Transform(result, in[0])
	if err != nil {
		return zero, err
	}
	b, err := c.p2.Transform(result, in[1])
	if err != nil {
		return zero, err
	}
	return c.fn(a, b)
}

type composite3[A, B, C, R any] struct {
	p1 Projection[A]
	p2 Projection[B]
	p3 Projection[C]
	fn func(A, B, C) (R, error)
}

// Composite3 combines three projections with fn.
func Composite3[A, B, C, R any](
	p1 Projection[A], p2 Projection[B], p3 Projection[C], fn func(A, B, C) (R, error),
) Projection[R] {
	return &composite3[A, B, C, R]{p1: p1, p2: p2, p3: p3, fn: fn}
}

func (c *composite3[A, B, C, R]) Collect(hit *Hit) any {
	return []any{c.p1.Collect(hit), c.p2.Collect(hit), c.p3.Collect(hit)}
}

func (c *composite3[A, B, C, R]) Extract(mapper HitMapper, raw any, ctx *ConvertContext) (any, error) {
	in, err := slots(raw, 3, "extract")
	if err != nil {
		return nil, err
	}
	out := make([]any, 3)
	if out[0], err = c.p1.Extract(mapper, in[0], ctx); err != nil {
		return nil, err
	}
	if out[1], err = c.p2.Extract(mapper, in[1], ctx); err != nil {
		return nil, err
	}
	if out[2], err = c.p3.Extract(mapper, in[2], ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *composite3[A, B, C, R]) Transform(result LoadingResult, extracted any) (R, error) {
	var zero R
	in, err := slots(extracted, 3, "transform")
	if err != nil {
		return zero, err
	}
	a, err := c.p1.Transform(result, in[0])
	if err != nil {
		return zero, err
	}
	b, err := c.p2.Transform(result, in[1])
	if err != nil {
		return zero, err
	}
	v, err := c.p3.Transform(result, in[2])
	if err != nil {
		return zero, err
	}
	return c.fn(a, b, v)
}

type compositeN[R any] struct {
	children []Projection[any]
	fn       func([]any) (R, error)
}

// CompositeN combines any number of projections; fn receives the transformed
// values in child order. Use Erase to pass typed projections.
func CompositeN[R any](fn func([]any) (R, error), children ...Projection[any]) Projection[R] {
	return &compositeN[R]{children: children, fn: fn}
}

func (c *compositeN[R]) Collect(hit *Hit) any {
	out := make([]any, len(c.children))
	for i, child := range c.children {
		out[i] = child.Collect(hit)
	}
	return out
}

func (c *compositeN[R]) Extract(mapper HitMapper, raw any, ctx *ConvertContext) (any, error) {
	in, err := slots(raw, len(c.children), "extract")
	if err != nil {
		return nil, err
	}
	out := make([]any, len(c.children))
	for i, child := range c.children {
		if out[i], err = child.Extract(mapper, in[i], ctx); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (c *compositeN[R]) Transform(result LoadingResult, extracted any) (R, error) {
	var zero R
	in, err := slots(extracted, len(c.children), "transform")
	if err != nil {
		return zero, err
	}
	values := make([]any, len(c.children))
	for i, child := range c.children {
		if values[i], err = child.Transform(result, in[i]); err != nil {
			return zero, err
		}
	}
	return c.fn(values)
}

type erased[T any] struct {
	p Projection[T]
}

// Erase exposes a typed projection as a Projection[any].
func Erase[T any](p Projection[T]) Projection[any] {
	return erased[T]{p: p}
}

func (e erased[T]) Collect(hit *Hit) any { return e.p.Collect(hit) }

func (e erased[T]) Extract(mapper HitMapper, raw any, ctx *ConvertContext) (any, error) {
	return e.p.Extract(mapper, raw, ctx)
}

func (e erased[T]) Transform(result LoadingResult, extracted any) (any, error) {
	return e.p.Transform(result, extracted)
}
