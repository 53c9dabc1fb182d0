package utils

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// SafeFloat converts an exchange numeric value to float64, returning def when
// the value is missing, non-numeric, NaN or infinite. Exchange payloads carry
// numbers as strings, floats or json.Number interchangeably, so every numeric
// field must pass through here before arithmetic.
func SafeFloat(v interface{}, def float64) float64 {
	switch x := v.(type) {
	case nil:
		return def
	case float64:
		return finiteOr(x, def)
	case float32:
		return finiteOr(float64(x), def)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case json.Number:
		return parseFloat(x.String(), def)
	case string:
		return parseFloat(x, def)
	default:
		return def
	}
}

// ParseFloat parses a string with the same safety guarantees as SafeFloat.
func ParseFloat(s string, def float64) float64 {
	return parseFloat(s, def)
}

func parseFloat(s string, def float64) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return finiteOr(f, def)
}

func finiteOr(f, def float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	return f
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampInt bounds v to [lo, hi].
func ClampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
