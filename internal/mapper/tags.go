package mapper

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kailas-cloud/searchmap/internal/failure"
	"github.com/kailas-cloud/searchmap/internal/schema"
	"github.com/kailas-cloud/searchmap/internal/typemodel"
)

// descriptorsFromTags reads `search:"..."` tags of the type's declared and
// promoted properties, plus type-level tags on blank fields. Malformed tags are
// reported to failures under pathPrefix; the walk goes on with what could be parsed.
func descriptorsFromTags(model typemodel.GenericTypeModel, failures *failure.Collector, pathPrefix string) *TypeDescriptor {
	td := &TypeDescriptor{Type: model.Type()}

	for _, tag := range model.Raw().Annotations(typemodel.TagKey) {
		parseTypeTag(td, tag, failures)
	}

	for _, p := range model.Properties() {
		tag, ok := p.TagValue()
		if !ok || tag == "" || tag == "-" {
			continue
		}
		pf := failures.WithContext(failure.Path(pathPrefix + "." + p.Name))
		for _, clause := range strings.Split(tag, ";") {
			d, err := parsePropertyClause(strings.TrimSpace(clause))
			if err != nil {
				pf.Add(err)
				continue
			}
			prop := td.property(p.Name)
			prop.Bindings = append(prop.Bindings, d)
		}
	}
	return td
}

func parseTypeTag(td *TypeDescriptor, tag string, failures *failure.Collector) {
	for _, tok := range strings.Split(tag, ",") {
		key, value, _ := strings.Cut(strings.TrimSpace(tok), "=")
		switch key {
		case "":
		case "index":
			td.Index = value
		case "backend":
			td.Backend = value
		case "routing":
			td.Bindings = append(td.Bindings, Descriptor{Kind: DescriptorRoutingKey, Bridge: value})
		case "bridge":
			td.Bindings = append(td.Bindings, Descriptor{Kind: DescriptorTypeBridge, Bridge: value})
		default:
			failures.Addf("unknown type-level tag option %q", key)
		}
	}
}

// parsePropertyClause parses one clause such as
// "keyword,name=isbn,sortable" or "embedded,prefix=author_,depth=2".
func parsePropertyClause(clause string) (Descriptor, error) {
	tokens := strings.Split(clause, ",")
	d := Descriptor{Kind: DescriptorField, Options: schema.DefaultOptions()}
	start := 0

	head := strings.TrimSpace(tokens[0])
	if !strings.Contains(head, "=") {
		start = 1
		switch head {
		case "id":
			d.Kind = DescriptorDocumentID
		case "geo", "geo_point":
			d.Kind = DescriptorGeoPoint
			d.FieldKind, d.HasKind = schema.KindGeoPoint, true
		case "embedded":
			d.Kind = DescriptorIndexedEmbedded
		case "field":
		default:
			k, err := schema.ParseKind(head)
			if err != nil {
				return d, fmt.Errorf("tag %q: %w", clause, err)
			}
			d.FieldKind, d.HasKind = k, true
		}
	}

	for _, tok := range tokens[start:] {
		key, value, hasValue := strings.Cut(strings.TrimSpace(tok), "=")
		if err := applyOption(&d, key, value, hasValue); err != nil {
			return d, fmt.Errorf("tag %q: %w", clause, err)
		}
	}

	if d.Bridge != "" && d.Kind == DescriptorField {
		d.Kind = DescriptorValueBridge
	}
	return d, nil
}

func applyOption(d *Descriptor, key, value string, hasValue bool) error {
	flag := func() (bool, error) {
		if !hasValue {
			return true, nil
		}
		switch value {
		case "yes", "true":
			return true, nil
		case "no", "false":
			return false, nil
		}
		return false, fmt.Errorf("option %s: expected yes or no, got %q", key, value)
	}
	var err error
	switch key {
	case "":
	case "name":
		d.FieldName = value
	case "bridge":
		d.Bridge = value
	case "analyzer":
		d.Options.Analyzer = value
	case "sortable":
		d.Options.Sortable, err = flag()
	case "projectable":
		d.Options.Projectable, err = flag()
	case "searchable":
		d.Options.Searchable, err = flag()
	case "prefix":
		d.Prefix = value
	case "depth":
		d.Depth, err = strconv.Atoi(value)
		if err == nil && d.Depth < 0 {
			err = fmt.Errorf("depth must not be negative, got %d", d.Depth)
		}
	default:
		err = fmt.Errorf("unknown option %q", key)
	}
	return err
}

// defaultFieldName derives an index field name from a Go field name:
// "Title" → "title", "ISBN" → "isbn", "URLPath" → "urlPath".
func defaultFieldName(goName string) string {
	runes := []rune(goName)
	n := 0
	for n < len(runes) && runes[n] >= 'A' && runes[n] <= 'Z' {
		n++
	}
	switch {
	case n == 0:
		return goName
	case n == len(runes):
		return strings.ToLower(goName)
	case n > 1:
		n--
	}
	return strings.ToLower(string(runes[:n])) + string(runes[n:])
}
