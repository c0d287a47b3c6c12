package views

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"
)

// Number reads a numeric property. Absent keys, nulls and values that are not
// numbers (or numeric strings) come back as NaN, the classifier's missing
// sentinel. This is the only place property-bag lookups are defaulted.
func Number(props geojson.Properties, key string) float64 {
	if props == nil {
		return math.NaN()
	}
	switch n := props[key].(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return f
		}
	}
	return math.NaN()
}

// String reads a string property, returning def when absent or not a string.
func String(props geojson.Properties, key, def string) string {
	if s, ok := props[key].(string); ok {
		return s
	}
	return def
}

// Attribute returns an extractor reading a numeric property.
func Attribute(key string) func(*geojson.Feature) float64 {
	return func(f *geojson.Feature) float64 {
		if f == nil {
			return math.NaN()
		}
		return Number(f.Properties, key)
	}
}
