package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// StringToDurations converts a sep-separated string such as "1s,2.5s" into a
// []time.Duration. An empty string yields an empty schedule.
func StringToDurations(sep string) mapstructure.DecodeHookFunc {
	target := reflect.TypeOf([]time.Duration{})
	return func(f, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String || t != target {
			return data, nil
		}
		s := strings.TrimSpace(data.(string))
		if s == "" {
			return []time.Duration{}, nil
		}
		parts := strings.Split(s, sep)
		out := make([]time.Duration, 0, len(parts))
		for _, p := range parts {
			d, err := time.ParseDuration(strings.TrimSpace(p))
			if err != nil {
				return nil, fmt.Errorf("parse duration list %q: %w", s, err)
			}
			out = append(out, d)
		}
		return out, nil
	}
}
