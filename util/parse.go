package util

import (
	"fmt"
	"strings"
)

var sizeSuffixes = []struct {
	suffix     string
	multiplier int64
}{
	{"GB", 1024 * 1024 * 1024},
	{"MB", 1024 * 1024},
	{"KB", 1024},
}

// ParseSize parses a human-readable size such as "500MB" or "512KB" into
// bytes. A bare number is taken as bytes. Unparsable input returns
// defaultBytes.
func ParseSize(s string, defaultBytes int64) int64 {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return defaultBytes
	}

	var multiplier int64 = 1
	for _, sz := range sizeSuffixes {
		if strings.HasSuffix(s, sz.suffix) {
			multiplier = sz.multiplier
			s = strings.TrimSuffix(s, sz.suffix)
			break
		}
	}

	var val int64
	if _, err := fmt.Sscanf(s, "%d", &val); err == nil {
		return val * multiplier
	}
	return defaultBytes
}

// MaskSecret keeps the first visiblePrefix characters of a secret and masks
// the rest, so API keys can appear in logs without leaking.
func MaskSecret(s string, visiblePrefix int) string {
	if len(s) <= visiblePrefix {
		return "***"
	}
	return s[:visiblePrefix] + "***"
}
