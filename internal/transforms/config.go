package transforms

import (
	"fmt"
	"time"
)

// ConfigInt64 извлекает целое значение из конфига.
//
// JSON числа приходят как float64, TOML — как int64.
func ConfigInt64(config map[string]any, key string, defaultVal int64) (int64, error) {
	v, ok := config[key]
	if !ok {
		return defaultVal, nil
	}

	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n != float64(int64(n)) {
			return 0, fmt.Errorf("%w: %s must be an integer, got %v", ErrInvalidConfig, key, n)
		}
		return int64(n), nil
	default:
		return 0, fmt.Errorf("%w: %s must be a number, got %T", ErrInvalidConfig, key, v)
	}
}

// ConfigString извлекает строковое значение из конфига.
func ConfigString(config map[string]any, key, defaultVal string) string {
	if v, ok := config[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return defaultVal
}

// ConfigDuration извлекает длительность из поля <key>_ms.
func ConfigDuration(config map[string]any, key string) (time.Duration, error) {
	ms, err := ConfigInt64(config, key+"_ms", 0)
	if err != nil {
		return 0, err
	}
	if ms < 0 {
		return 0, fmt.Errorf("%w: %s_ms must not be negative", ErrInvalidConfig, key)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// ConfigTimestamp извлекает время в формате RFC 3339.
func ConfigTimestamp(config map[string]any, key string) (time.Time, bool, error) {
	s := ConfigString(config, key, "")
	if s == "" {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
	}
	return t, true, nil
}
