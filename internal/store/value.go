package store

import (
	"fmt"
	"strconv"
	"time"
)

func normalizeValue(value any) any {
	switch typed := value.(type) {
	case []byte:
		return string(typed)
	default:
		return typed
	}
}

// Float coerces a cell value to float64. Source datasets loaded from CSV may
// carry numbers as text, so numeric strings are accepted too.
func Float(value any) (float64, bool) {
	switch typed := value.(type) {
	case float64:
		return typed, true
	case float32:
		return float64(typed), true
	case int:
		return float64(typed), true
	case int32:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case uint64:
		return float64(typed), true
	case string:
		parsed, err := strconv.ParseFloat(typed, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// Text renders a cell value as a plain string for matching and labels.
func Text(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case []byte:
		return string(typed)
	case time.Time:
		return typed.Format("2006-01-02")
	case nil:
		return ""
	default:
		return fmt.Sprint(typed)
	}
}
