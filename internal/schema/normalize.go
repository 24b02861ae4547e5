package schema

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/searchmap/internal/geo"
)

// Normalize converts a raw value read back from a backend into the value type
// of kind k. Backends store numbers as float64 or strings, dates as RFC 3339
// strings or epoch milliseconds and geo points as "lat,lon" or lat/lon maps.
func Normalize(k Kind, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch k {
	case KindKeyword, KindText:
		if s, ok := raw.(string); ok {
			return s, nil
		}
		return fmt.Sprint(raw), nil
	case KindLong:
		return normalizeLong(raw)
	case KindDouble:
		return normalizeDouble(raw)
	case KindBoolean:
		switch x := raw.(type) {
		case bool:
			return x, nil
		case string:
			return strconv.ParseBool(x)
		case float64:
			return x != 0, nil
		case int64:
			return x != 0, nil
		}
	case KindDate:
		return normalizeDate(raw)
	case KindGeoPoint:
		return normalizePoint(raw)
	}
	return nil, fmt.Errorf("%s: cannot normalize %T", k, raw)
}

func normalizeLong(raw any) (any, error) {
	switch x := raw.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case float64:
		if x != math.Trunc(x) {
			return nil, fmt.Errorf("long: %g is not integral", x)
		}
		return int64(x), nil
	case string:
		return strconv.ParseInt(x, 10, 64)
	}
	return nil, fmt.Errorf("long: cannot normalize %T", raw)
}

func normalizeDouble(raw any) (any, error) {
	switch x := raw.(type) {
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	case int:
		return float64(x), nil
	case string:
		return strconv.ParseFloat(x, 64)
	}
	return nil, fmt.Errorf("double: cannot normalize %T", raw)
}

func normalizeDate(raw any) (any, error) {
	switch x := raw.(type) {
	case time.Time:
		return x.UTC(), nil
	case float64:
		return time.UnixMilli(int64(x)).UTC(), nil
	case int64:
		return time.UnixMilli(x).UTC(), nil
	case string:
		if t, err := time.Parse(time.RFC3339Nano, x); err == nil {
			return t.UTC(), nil
		}
		ms, err := strconv.ParseInt(x, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("date: %q is neither RFC 3339 nor epoch milliseconds", x)
		}
		return time.UnixMilli(ms).UTC(), nil
	}
	return nil, fmt.Errorf("date: cannot normalize %T", raw)
}

func normalizePoint(raw any) (any, error) {
	switch x := raw.(type) {
	case geo.Point:
		return x, nil
	case string:
		return geo.ParsePoint(x)
	case []any:
		// GeoJSON order: [lon, lat].
		if len(x) == 2 {
			lon, err1 := normalizeDouble(x[0])
			lat, err2 := normalizeDouble(x[1])
			if err1 == nil && err2 == nil {
				return geo.NewPoint(lat.(float64), lon.(float64))
			}
		}
	case []float64:
		if len(x) == 2 {
			return geo.NewPoint(x[1], x[0])
		}
	case map[string]any:
		lat, err1 := normalizeDouble(x["lat"])
		lon, err2 := normalizeDouble(firstOf(x, "lon", "lng"))
		if err1 == nil && err2 == nil {
			return geo.NewPoint(lat.(float64), lon.(float64))
		}
	}
	return nil, fmt.Errorf("geo_point: cannot normalize %v", raw)
}

func firstOf(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}

// FormatValue renders an index-level value as a string for backends that
// store every field as text. Dates become epoch milliseconds, points "lat,lon".
func FormatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return strconv.FormatInt(x.UnixMilli(), 10)
	case geo.Point:
		return x.String()
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
