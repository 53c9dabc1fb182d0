package utils

import (
	"fmt"
	"strings"
)

// minAddressLen is the shortest accepted wallet address: "0x" plus a 40-hex
// account identifier.
const minAddressLen = 42

// ParseCSV splits a comma-separated string and returns trimmed non-empty values.
// Returns nil for empty/whitespace-only input.
// Used to parse vault lists and order-flow window configuration.
func ParseCSV(s string) []string {
	if s == "" {
		return nil
	}

	var result []string
	for _, v := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return nil
	}

	return result
}

// NormalizeAddress lowercases and validates a wallet address. The second
// return is false when the input is too short or not 0x-prefixed.
func NormalizeAddress(s string) (string, bool) {
	addr := strings.ToLower(strings.TrimSpace(s))
	if len(addr) < minAddressLen || !strings.HasPrefix(addr, "0x") {
		return "", false
	}
	return addr, true
}

// WindowLabel renders a window size in seconds as the short form used in
// order-flow responses ("1m", "15m", "1h", "24h").
func WindowLabel(seconds int) string {
	if seconds <= 0 {
		return "0s"
	}
	if seconds < 3600 {
		return fmt.Sprintf("%dm", seconds/60)
	}
	return fmt.Sprintf("%dh", seconds/3600)
}
