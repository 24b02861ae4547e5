package backend

import (
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"
)

// Well-known backend property keys.
const (
	KeyType          = "type"
	KeyIndexDefaults = "index_defaults"
	KeyIndexes       = "indexes"
	KeyMultiTenancy  = "multi_tenancy"
)

// MultiTenancy is the tenancy strategy of a backend.
type MultiTenancy string

// Tenancy strategies.
const (
	TenancyNone          MultiTenancy = "none"
	TenancyDiscriminator MultiTenancy = "discriminator"
)

// PropertySource is a tree of configuration values as decoded from YAML.
// Keys may be dotted to reach nested maps.
type PropertySource map[string]any

// Get returns the raw value at key.
func (p PropertySource) Get(key string) (any, bool) {
	if p == nil {
		return nil, false
	}
	if v, ok := p[key]; ok {
		return v, true
	}
	head, rest, ok := strings.Cut(key, ".")
	if !ok {
		return nil, false
	}
	return p.Child(head).Get(rest)
}

// String returns the value at key as a string, or def when unset.
func (p PropertySource) String(key, def string) string {
	v, ok := p.Get(key)
	if !ok || v == nil {
		return def
	}
	return fmt.Sprint(v)
}

// Int returns the value at key as an int, or def when unset.
func (p PropertySource) Int(key string, def int) (int, error) {
	v, ok := p.Get(key)
	if !ok || v == nil {
		return def, nil
	}
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case float64:
		if x != float64(int(x)) {
			return 0, fmt.Errorf("property %s: %g is not an integer", key, x)
		}
		return int(x), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, fmt.Errorf("property %s: %w", key, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("property %s: unexpected type %T", key, v)
	}
}

// Float returns the value at key as a float64, or def when unset.
func (p PropertySource) Float(key string, def float64) (float64, error) {
	v, ok := p.Get(key)
	if !ok || v == nil {
		return def, nil
	}
	switch x := v.(type) {
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("property %s: %w", key, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("property %s: unexpected type %T", key, v)
	}
}

// Bool returns the value at key as a bool, or def when unset.
func (p PropertySource) Bool(key string, def bool) (bool, error) {
	v, ok := p.Get(key)
	if !ok || v == nil {
		return def, nil
	}
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		if err != nil {
			return false, fmt.Errorf("property %s: %w", key, err)
		}
		return b, nil
	default:
		return false, fmt.Errorf("property %s: unexpected type %T", key, v)
	}
}

// Duration returns the value at key as a duration ("5s", or seconds as a number).
func (p PropertySource) Duration(key string, def time.Duration) (time.Duration, error) {
	v, ok := p.Get(key)
	if !ok || v == nil {
		return def, nil
	}
	switch x := v.(type) {
	case string:
		d, err := time.ParseDuration(strings.TrimSpace(x))
		if err != nil {
			return 0, fmt.Errorf("property %s: %w", key, err)
		}
		return d, nil
	case int:
		return time.Duration(x) * time.Second, nil
	case float64:
		return time.Duration(x * float64(time.Second)), nil
	default:
		return 0, fmt.Errorf("property %s: unexpected type %T", key, v)
	}
}

// Strings returns the value at key as a string list. A scalar becomes a
// one-element list; a comma-separated string is split.
func (p PropertySource) Strings(key string) []string {
	v, ok := p.Get(key)
	if !ok || v == nil {
		return nil
	}
	switch x := v.(type) {
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			out = append(out, fmt.Sprint(e))
		}
		return out
	case string:
		var out []string
		for _, s := range strings.Split(x, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return []string{fmt.Sprint(x)}
	}
}

// Child returns the nested map at key, empty when absent.
func (p PropertySource) Child(key string) PropertySource {
	v, ok := p.Get(key)
	if !ok {
		return PropertySource{}
	}
	switch x := v.(type) {
	case PropertySource:
		return x
	case map[string]any:
		return PropertySource(x)
	default:
		return PropertySource{}
	}
}

// Merge returns p with defaults filled in underneath; p's values win and
// nested maps are merged recursively.
func (p PropertySource) Merge(defaults PropertySource) PropertySource {
	out := make(PropertySource, len(p)+len(defaults))
	maps.Copy(out, defaults)
	for k, v := range p {
		if sub, ok := asMap(v); ok {
			if dsub, ok := asMap(defaults[k]); ok {
				out[k] = sub.Merge(dsub)
				continue
			}
		}
		out[k] = v
	}
	return out
}

func asMap(v any) (PropertySource, bool) {
	switch x := v.(type) {
	case PropertySource:
		return x, true
	case map[string]any:
		return PropertySource(x), true
	default:
		return nil, false
	}
}

// IndexProperties returns the properties of one index: its own entry under
// "indexes" merged over "index_defaults".
func (p PropertySource) IndexProperties(indexName string) PropertySource {
	own := p.Child(KeyIndexes).Child(indexName)
	return own.Merge(p.Child(KeyIndexDefaults))
}

// Tenancy returns the configured multi-tenancy strategy, none by default.
func (p PropertySource) Tenancy() (MultiTenancy, error) {
	switch s := MultiTenancy(p.String(KeyMultiTenancy, string(TenancyNone))); s {
	case TenancyNone, TenancyDiscriminator:
		return s, nil
	default:
		return "", fmt.Errorf("property %s: unknown strategy %q", KeyMultiTenancy, s)
	}
}
