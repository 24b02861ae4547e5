package bridge

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kailas-cloud/searchmap/internal/geo"
	"github.com/kailas-cloud/searchmap/internal/typemodel"
)

type isbn string

type level int8

type medium int

const (
	mediumDVD medium = iota + 1
	mediumBluRay
)

func roundTrip(t *testing.T, b AnyIdentifierBridge, values ...any) {
	t.Helper()
	seen := map[string]any{}
	for _, v := range values {
		id, err := b.ToDocumentIdentifier(v, nil)
		if err != nil {
			t.Fatalf("ToDocumentIdentifier(%v): %v", v, err)
		}
		if prev, dup := seen[id]; dup {
			t.Errorf("identifier %q produced by both %v and %v", id, prev, v)
		}
		seen[id] = v
		back, err := b.FromDocumentIdentifier(id, nil)
		if err != nil {
			t.Fatalf("FromDocumentIdentifier(%q): %v", id, err)
		}
		if back != v {
			t.Errorf("round trip of %v gave %v", v, back)
		}
	}
}

func TestIdentifierBridges_RoundTrip(t *testing.T) {
	r := NewResolver()
	cases := []struct {
		typ    reflect.Type
		values []any
	}{
		{reflect.TypeFor[string](), []any{"", "a", "A", "a b", "ключ"}},
		{reflect.TypeFor[int](), []any{0, 1, -1, math.MaxInt, math.MinInt}},
		{reflect.TypeFor[int64](), []any{int64(0), int64(42), int64(-42)}},
		{reflect.TypeFor[uint64](), []any{uint64(0), uint64(math.MaxUint64)}},
		{reflect.TypeFor[uuid.UUID](), []any{uuid.Nil, uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")}},
		{reflect.TypeFor[isbn](), []any{isbn("978-0"), isbn("978-1")}},
		{reflect.TypeFor[level](), []any{level(-128), level(0), level(127)}},
	}
	for _, tc := range cases {
		t.Run(tc.typ.String(), func(t *testing.T) {
			b, err := r.Identifier(tc.typ)
			if err != nil {
				t.Fatalf("Identifier: %v", err)
			}
			if b.IdentifierType() != tc.typ {
				t.Errorf("IdentifierType = %s", b.IdentifierType())
			}
			roundTrip(t, b, tc.values...)
		})
	}
}

func TestIdentifierBridges_RejectMalformed(t *testing.T) {
	r := NewResolver()
	cases := []struct {
		typ reflect.Type
		id  string
	}{
		{reflect.TypeFor[int](), "12abc"},
		{reflect.TypeFor[level](), "300"},
		{reflect.TypeFor[level](), "007"},
		{reflect.TypeFor[uint32](), "-1"},
		{reflect.TypeFor[uuid.UUID](), "{6ba7b810-9dad-11d1-80b4-00c04fd430c8}"},
	}
	for _, tc := range cases {
		b, err := r.Identifier(tc.typ)
		if err != nil {
			t.Fatalf("Identifier: %v", err)
		}
		if _, err := b.FromDocumentIdentifier(tc.id, nil); err == nil {
			t.Errorf("%s: expected error for %q", tc.typ, tc.id)
		}
	}
}

func TestIdentifierBridges_CastFailsFast(t *testing.T) {
	r := NewResolver()
	for _, typ := range []reflect.Type{reflect.TypeFor[int64](), reflect.TypeFor[isbn](), reflect.TypeFor[uuid.UUID]()} {
		b, _ := r.Identifier(typ)
		_, err := b.Cast("definitely-not-" + typ.String())
		if typ == reflect.TypeFor[isbn]() {
			// a plain string is not an isbn either
			if !errors.Is(err, typemodel.ErrTypeMismatch) {
				t.Errorf("%s: expected type mismatch, got %v", typ, err)
			}
			continue
		}
		var ce *typemodel.CastError
		if !errors.As(err, &ce) {
			t.Errorf("%s: expected *CastError, got %v", typ, err)
		}
		if _, err := b.ToDocumentIdentifier(3.5, nil); !errors.Is(err, typemodel.ErrTypeMismatch) {
			t.Errorf("%s: ToDocumentIdentifier must cast, got %v", typ, err)
		}
	}
}

func TestIdentifierBridge_NoDefault(t *testing.T) {
	_, err := NewResolver().Identifier(reflect.TypeFor[[]string]())
	if !errors.Is(err, ErrNoDefaultBridge) {
		t.Errorf("expected ErrNoDefaultBridge, got %v", err)
	}
}

func TestValueBridges_Defaults(t *testing.T) {
	r := NewResolver()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	cases := []struct {
		value   any
		indexed any
	}{
		{"x", "x"},
		{int64(5), int64(5)},
		{3.5, 3.5},
		{true, true},
		{now, now.UTC()},
		{2 * time.Second, int64(2 * time.Second)},
		{geo.Point{Lat: 1, Lon: 2}, geo.Point{Lat: 1, Lon: 2}},
		{isbn("978"), "978"},
		{level(3), int64(3)},
		{float32(1.5), 1.5},
		{uint16(9), int64(9)},
	}
	for _, tc := range cases {
		typ := reflect.TypeOf(tc.value)
		b, err := r.Value(typ)
		if err != nil {
			t.Fatalf("Value(%s): %v", typ, err)
		}
		got, err := b.ToIndexedValue(tc.value, nil)
		if err != nil {
			t.Fatalf("ToIndexedValue(%v): %v", tc.value, err)
		}
		if got != tc.indexed {
			t.Errorf("%s: indexed %v, want %v", typ, got, tc.indexed)
		}
		if reflect.TypeOf(got) != b.IndexedType() {
			t.Errorf("%s: indexed type %T, want %s", typ, got, b.IndexedType())
		}
		back, err := b.FromIndexedValue(got, nil)
		if err != nil {
			t.Fatalf("FromIndexedValue(%v): %v", got, err)
		}
		if typ == reflect.TypeFor[time.Time]() {
			if !back.(time.Time).Equal(now) {
				t.Errorf("time round trip = %v", back)
			}
			continue
		}
		if back != tc.value {
			t.Errorf("%s: round trip %v, want %v", typ, back, tc.value)
		}
	}
}

func TestValueBridges_Overflow(t *testing.T) {
	b, _ := NewResolver().Value(reflect.TypeFor[level]())
	if _, err := b.FromIndexedValue(int64(1000), nil); !errors.Is(err, ErrConversion) {
		t.Errorf("expected conversion error, got %v", err)
	}
	if _, err := b.ToIndexedValue(int64(3), nil); !errors.Is(err, typemodel.ErrTypeMismatch) {
		t.Errorf("expected type mismatch, got %v", err)
	}
}

func TestPointBridge_Invalid(t *testing.T) {
	_, err := PointBridge{}.ToIndexedValue(geo.Point{Lat: 100}, nil)
	if !errors.Is(err, geo.ErrInvalidCoordinates) {
		t.Errorf("expected invalid coordinates, got %v", err)
	}
}

func TestEnumBridge(t *testing.T) {
	b, err := NewEnumBridge(map[medium]string{mediumDVD: "DVD", mediumBluRay: "BLURAY"})
	if err != nil {
		t.Fatalf("NewEnumBridge: %v", err)
	}
	name, err := b.ToIndexedValue(mediumBluRay, nil)
	if err != nil || name != "BLURAY" {
		t.Errorf("ToIndexedValue = %q, %v", name, err)
	}
	v, err := b.FromIndexedValue("DVD", nil)
	if err != nil || v != mediumDVD {
		t.Errorf("FromIndexedValue = %v, %v", v, err)
	}
	if _, err := b.ToIndexedValue(medium(99), nil); !errors.Is(err, ErrConversion) {
		t.Errorf("expected conversion error, got %v", err)
	}
	if _, err := NewEnumBridge(map[medium]string{mediumDVD: "X", mediumBluRay: "X"}); err == nil {
		t.Error("duplicate names must be rejected")
	}
}

type closingBridge struct {
	closed int
}

func (c *closingBridge) Close() error {
	c.closed++
	return errors.New("close failed")
}

type sameName struct{ name string }

func (s sameName) IsCompatibleWith(other any) bool {
	o, ok := other.(sameName)
	return ok && o.name == s.name
}

func TestIsCompatible(t *testing.T) {
	a, b := &closingBridge{}, &closingBridge{}
	if !IsCompatible(a, a) {
		t.Error("identity must be compatible")
	}
	if IsCompatible(a, b) || IsCompatible(b, a) {
		t.Error("distinct instances must not be compatible by default")
	}
	if !IsCompatible(sameName{"x"}, sameName{"x"}) {
		t.Error("Compatible hook ignored")
	}
	if IsCompatible(sameName{"x"}, sameName{"y"}) {
		t.Error("Compatible hook ignored")
	}
	r := NewResolver()
	s1, _ := r.Value(reflect.TypeFor[isbn]())
	s2, _ := r.Value(reflect.TypeFor[isbn]())
	if !IsCompatible(s1.Bridge(), s2.Bridge()) {
		t.Error("resolver defaults must be shared")
	}
}

func TestHolder_ClosesOnce(t *testing.T) {
	c := &closingBridge{}
	h := NewHolder[any](c)
	err1 := h.Close()
	err2 := h.Close()
	if c.closed != 1 {
		t.Errorf("closed %d times, want 1", c.closed)
	}
	if err1 == nil || err1 != err2 {
		t.Errorf("errors = %v, %v", err1, err2)
	}
}

type bindingBridge struct {
	PassThroughBridge[string]
	bound *ValueBindingContext
}

func (b *bindingBridge) Bind(ctx *ValueBindingContext) error {
	b.bound = ctx
	ctx.Options.Sortable = true
	return nil
}

func TestBind_DetectsHook(t *testing.T) {
	b := &bindingBridge{}
	ctx := &ValueBindingContext{FieldName: "title"}
	if err := Bind(any(b), ctx); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if b.bound != ctx || !ctx.Options.Sortable {
		t.Error("bind hook not called")
	}
	if err := Bind(any(PassThroughBridge[string]{}), ctx); err != nil {
		t.Errorf("bridges without hook must bind silently, got %v", err)
	}
}
