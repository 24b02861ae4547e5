package searchmap

import (
	"fmt"

	"github.com/kailas-cloud/searchmap/internal/bridge"
	"github.com/kailas-cloud/searchmap/internal/failure"
	"github.com/kailas-cloud/searchmap/internal/predicate"
)

// PredicateFactory builds predicates against the index being searched. Values
// are given at the property level and converted through the field's bridge.
// In a multi-index search, every field must resolve to compatible factories in
// all targeted indexes.
type PredicateFactory struct {
	target *target
	peers  []*target
	tenant string
}

func (f *PredicateFactory) factory() predicate.Factory {
	return f.target.manager.Predicates()
}

func (f *PredicateFactory) field(path string) (predicate.FieldFactory, error) {
	ff, err := f.factory().Field(path)
	if err != nil {
		return nil, err
	}
	vb, _, hasBridge := f.target.tm.FieldBridge(path)
	for _, p := range f.peers {
		if p == f.target {
			continue
		}
		incompatible := func(reason string) error {
			return failure.WithContext(
				fmt.Errorf("%w: %s", ErrIncompatibleField, reason),
				failure.Field(path), failure.Index(p.tm.Index()))
		}
		other, err := p.manager.Predicates().Field(path)
		if err != nil {
			return nil, incompatible(err.Error())
		}
		if !ff.IsDslCompatibleWith(other) || !other.IsDslCompatibleWith(ff) {
			return nil, incompatible(fmt.Sprintf("%s and %s fields", ff.FieldTypeName(), other.FieldTypeName()))
		}
		ovb, _, otherBridge := p.tm.FieldBridge(path)
		if hasBridge != otherBridge || (hasBridge && !bridge.IsCompatible(vb.Bridge(), ovb.Bridge())) {
			return nil, incompatible("value bridges differ")
		}
	}
	return ff, nil
}

func (f *PredicateFactory) indexed(path string, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	vb, _, ok := f.target.tm.FieldBridge(path)
	if !ok {
		return value, nil
	}
	v, err := vb.ToIndexedValue(value, &bridge.ValueContext{TenantID: f.tenant})
	if err != nil {
		return nil, failure.WithContext(err, failure.Field(path))
	}
	return v, nil
}

// Match matches documents whose field equals value. Text fields match
// analyzed terms.
func (f *PredicateFactory) Match(path string, value any) (Predicate, error) {
	ff, err := f.field(path)
	if err != nil {
		return nil, err
	}
	b, err := ff.CreateMatch(path)
	if err != nil {
		return nil, err
	}
	v, err := f.indexed(path, value)
	if err != nil {
		return nil, err
	}
	if err := b.Value(v); err != nil {
		return nil, err
	}
	return b.Build()
}

// Range matches documents whose field lies between lower and upper. A nil
// bound is open; bounds are inclusive unless opts exclude them.
func (f *PredicateFactory) Range(path string, lower, upper any, opts RangeOptions) (Predicate, error) {
	ff, err := f.field(path)
	if err != nil {
		return nil, err
	}
	b, err := ff.CreateRange(path)
	if err != nil {
		return nil, err
	}
	lo, err := f.indexed(path, lower)
	if err != nil {
		return nil, err
	}
	hi, err := f.indexed(path, upper)
	if err != nil {
		return nil, err
	}
	if err := b.Range(lo, hi, opts); err != nil {
		return nil, err
	}
	return b.Build()
}

// ID matches documents by entity identifier. Each value must be of the
// identifier type.
func (f *PredicateFactory) ID(values ...any) (Predicate, error) {
	idb := f.target.tm.IdentifierBridge()
	ctx := &bridge.IdentifierContext{TenantID: f.tenant}
	ids := make([]string, len(values))
	for i, v := range values {
		cast, err := idb.Cast(v)
		if err != nil {
			return nil, failure.WithContext(err, failure.Type(f.target.tm.Name()))
		}
		if ids[i], err = idb.ToDocumentIdentifier(cast, ctx); err != nil {
			return nil, failure.WithContext(err, failure.Type(f.target.tm.Name()))
		}
	}
	return f.factory().ID(ids...), nil
}

// WithinCircle matches geo points at most radiusMeters away from center.
func (f *PredicateFactory) WithinCircle(path string, center Point, radiusMeters float64) (Predicate, error) {
	ff, err := f.field(path)
	if err != nil {
		return nil, err
	}
	b, err := ff.CreateSpatialWithinCircle(path)
	if err != nil {
		return nil, err
	}
	if err := b.Circle(center, radiusMeters); err != nil {
		return nil, err
	}
	return b.Build()
}

// WithinPolygon matches geo points inside p.
func (f *PredicateFactory) WithinPolygon(path string, p Polygon) (Predicate, error) {
	ff, err := f.field(path)
	if err != nil {
		return nil, err
	}
	b, err := ff.CreateSpatialWithinPolygon(path)
	if err != nil {
		return nil, err
	}
	if err := b.Polygon(p); err != nil {
		return nil, err
	}
	return b.Build()
}

// WithinBoundingBox matches geo points inside box.
func (f *PredicateFactory) WithinBoundingBox(path string, box BoundingBox) (Predicate, error) {
	ff, err := f.field(path)
	if err != nil {
		return nil, err
	}
	b, err := ff.CreateSpatialWithinBoundingBox(path)
	if err != nil {
		return nil, err
	}
	if err := b.BoundingBox(box); err != nil {
		return nil, err
	}
	return b.Build()
}

// Bool combines predicates: every must clause, at least one should clause
// when there is no must clause, and no mustNot clause.
func (f *PredicateFactory) Bool(must, should, mustNot []Predicate) (Predicate, error) {
	return f.factory().Bool(must, should, mustNot)
}

// MatchAll matches every document.
func (f *PredicateFactory) MatchAll() Predicate {
	return f.factory().MatchAll()
}
