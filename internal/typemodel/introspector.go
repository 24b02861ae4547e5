package typemodel

import (
	"fmt"
	"reflect"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the number of cached raw type models.
const DefaultCacheSize = 1024

// Introspector builds RawTypeModels lazily and caches them per reflect.Type.
// It is safe for concurrent use; models never reference each other directly,
// so recursive types cannot make construction loop.
type Introspector struct {
	cache *lru.Cache[reflect.Type, *RawTypeModel]
}

// NewIntrospector creates an introspector with an LRU cache of the given size.
func NewIntrospector(size int) (*Introspector, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[reflect.Type, *RawTypeModel](size)
	if err != nil {
		return nil, fmt.Errorf("create type model cache: %w", err)
	}
	return &Introspector{cache: cache}, nil
}

// RawTypeModel returns the cached model for typ, building it on first use.
func (i *Introspector) RawTypeModel(typ reflect.Type) *RawTypeModel {
	if m, ok := i.cache.Get(typ); ok {
		return m
	}
	m := newRawTypeModel(typ)
	// A concurrent builder may have won; keep whichever landed first.
	if prev, ok, _ := i.cache.PeekOrAdd(typ, m); ok {
		return prev
	}
	return m
}

// TypeModel returns an exact generic model for typ.
func (i *Introspector) TypeModel(typ reflect.Type) GenericTypeModel {
	return &ExactTypeModel{introspector: i, raw: i.RawTypeModel(typ)}
}

// ErasingTypeModel returns a model whose properties come from raw, which may be
// a super type of typ, while container decomposition still uses typ.
func (i *Introspector) ErasingTypeModel(raw *RawTypeModel, typ reflect.Type) GenericTypeModel {
	return &ErasingTypeModel{introspector: i, raw: raw, typ: typ}
}

// Len reports the number of cached models.
func (i *Introspector) Len() int { return i.cache.Len() }

// ModelOf returns the exact model of T.
func ModelOf[T any](i *Introspector) GenericTypeModel {
	return i.TypeModel(reflect.TypeFor[T]())
}
