package db

import (
	"strings"
	"testing"
)

func TestIndexBuilder_Simple(t *testing.T) {
	idx := NewIndex("test-idx").
		Prefix("doc:").
		Tag("category").
		Numeric("price").
		MustBuild()

	if err := idx.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx.Name != "test-idx" {
		t.Errorf("name = %q, want test-idx", idx.Name)
	}
	if idx.StorageType != StorageHash {
		t.Errorf("storage = %q, want HASH", idx.StorageType)
	}
	if len(idx.Fields) != 2 {
		t.Fatalf("fields count = %d, want 2", len(idx.Fields))
	}
	if idx.Fields[0].Name != "category" || idx.Fields[0].Type != IndexFieldTag {
		t.Errorf("field[0] = %+v, want category TAG", idx.Fields[0])
	}
	if idx.Fields[1].Name != "price" || idx.Fields[1].Type != IndexFieldNumeric {
		t.Errorf("field[1] = %+v, want price NUMERIC", idx.Fields[1])
	}
}

func TestIndexBuilder_GeoFields(t *testing.T) {
	idx := NewIndex("geo-idx").
		OnJSON().
		Geo("$.location").As("location").
		GeoShape("$.location_shape").As("location__shape").
		MustBuild()

	if len(idx.Fields) != 2 {
		t.Fatalf("fields count = %d, want 2", len(idx.Fields))
	}
	if idx.Fields[0].Type != IndexFieldGeo || idx.Fields[0].Attribute() != "location" {
		t.Errorf("field[0] = %+v, want location GEO", idx.Fields[0])
	}
	if idx.Fields[1].Type != IndexFieldGeoShape || idx.Fields[1].Attribute() != "location__shape" {
		t.Errorf("field[1] = %+v, want location__shape GEOSHAPE", idx.Fields[1])
	}
}

func TestIndexBuilder_Modifiers(t *testing.T) {
	idx := NewIndex("mod-idx").
		Numeric("pages").Sortable().
		Tag("isbn").Sortable().NoIndex().
		MustBuild()

	if !idx.Fields[0].Sortable || idx.Fields[0].NoIndex {
		t.Errorf("field[0] = %+v, want SORTABLE only", idx.Fields[0])
	}
	if !idx.Fields[1].Sortable || !idx.Fields[1].NoIndex {
		t.Errorf("field[1] = %+v, want SORTABLE NOINDEX", idx.Fields[1])
	}
}

func TestIndexBuilder_ModifierWithoutField(t *testing.T) {
	b := NewIndex("idx").As("x").Sortable().NoIndex()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected error for definition without fields")
	}
}

func TestIndexBuilder_JSON(t *testing.T) {
	idx := NewIndex("json-idx").
		OnJSON().
		Prefix("json-idx:").
		Text("$.content").As("content").
		MustBuild()

	if idx.StorageType != StorageJSON {
		t.Errorf("storage = %q, want JSON", idx.StorageType)
	}
}

func TestIndexBuilder_TagOptions(t *testing.T) {
	idx := NewIndex("tag-idx").
		Prefix("t:").
		TagWithOpts("tags", "|", true).
		MustBuild()

	f := idx.Fields[0]
	if f.TagSeparator != "|" {
		t.Errorf("separator = %q, want |", f.TagSeparator)
	}
	if !f.TagCaseSensitive {
		t.Error("expected TagCaseSensitive=true")
	}
}

func TestIndexBuilder_MultiplePrefixes(t *testing.T) {
	idx := NewIndex("multi-idx").
		Prefix("a:", "b:", "c:").
		Tag("x").
		MustBuild()

	if len(idx.Prefixes) != 3 {
		t.Errorf("prefix count = %d, want 3", len(idx.Prefixes))
	}
}

func TestIndexBuilder_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		builder func() (*IndexDefinition, error)
		wantErr string
	}{
		{
			name: "empty name",
			builder: func() (*IndexDefinition, error) {
				return NewIndex("").Tag("x").Build()
			},
			wantErr: "index name is required",
		},
		{
			name: "no fields",
			builder: func() (*IndexDefinition, error) {
				return NewIndex("idx").Build()
			},
			wantErr: "at least one field",
		},
		{
			name: "noindex without sortable",
			builder: func() (*IndexDefinition, error) {
				return NewIndex("idx").Tag("x").NoIndex().Build()
			},
			wantErr: "must be SORTABLE",
		},
		{
			name: "invalid characters",
			builder: func() (*IndexDefinition, error) {
				return NewIndex("idx with spaces").Tag("x").Build()
			},
			wantErr: "invalid characters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.builder()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("got error %q, want containing %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestIndexDefinition_String(t *testing.T) {
	idx := NewIndex("my-idx").
		OnJSON().
		Prefix("doc:").
		Tag("$.cat").As("cat").Sortable().
		Geo("$.where").As("where").
		MustBuild()

	want := "FT.CREATE my-idx ON JSON PREFIX doc: SCHEMA $.cat AS cat TAG SORTABLE $.where AS where GEO"
	if s := idx.String(); s != want {
		t.Errorf("String() = %q, want %q", s, want)
	}
}

func TestIndexBuilder_Alias(t *testing.T) {
	idx := &IndexDefinition{
		Name:     "alias-idx",
		Prefixes: []string{"a:"},
		Fields: []IndexField{
			{Name: "$.field", Alias: "field", Type: IndexFieldTag},
		},
	}

	if err := idx.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx.Fields[0].Attribute() != "field" {
		t.Errorf("attribute = %q, want field", idx.Fields[0].Attribute())
	}
}

func TestIndexBuilder_DuplicateFields(t *testing.T) {
	idx := &IndexDefinition{
		Name: "dup-idx",
		Fields: []IndexField{
			{Name: "field1", Type: IndexFieldTag},
			{Name: "field1", Type: IndexFieldNumeric},
		},
	}

	if err := idx.Validate(); err == nil {
		t.Fatal("expected error for duplicate fields")
	}
}

func TestIndexFieldType_String(t *testing.T) {
	tests := map[IndexFieldType]string{
		IndexFieldNumeric:  "NUMERIC",
		IndexFieldTag:      "TAG",
		IndexFieldText:     "TEXT",
		IndexFieldGeo:      "GEO",
		IndexFieldGeoShape: "GEOSHAPE",
		IndexFieldType(99): "UNKNOWN",
	}
	for typ, want := range tests {
		if got := typ.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", typ, got, want)
		}
	}
}
