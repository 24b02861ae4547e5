package predicate

import (
	"fmt"
	"time"
)

// NumericBound converts an index-level numeric or date bound to a float64.
// Dates are expressed in milliseconds since the epoch.
func NumericBound(v any) (float64, error) {
	switch x := v.(type) {
	case int64:
		return float64(x), nil
	case float64:
		return x, nil
	case time.Time:
		return float64(x.UnixMilli()), nil
	default:
		return 0, fmt.Errorf("%w: %T is not a numeric bound", ErrInvalidValue, v)
	}
}

// CheckRadius validates a circle radius.
func CheckRadius(radiusMeters float64) error {
	if radiusMeters <= 0 {
		return fmt.Errorf("%w: radius must be positive, got %g", ErrInvalidValue, radiusMeters)
	}
	return nil
}
