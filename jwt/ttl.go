package jwt

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ttlUnits = map[byte]time.Duration{
	's': time.Second,
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
	'w': 7 * 24 * time.Hour,
	'y': 365 * 24 * time.Hour,
}

// ParseTTL parses token lifetimes such as "15m", "30d" or "1y". Anything
// time.ParseDuration accepts ("1h30m", "90s") is accepted as well.
func ParseTTL(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("jwt: empty ttl")
	}

	if unit, ok := ttlUnits[s[len(s)-1]]; ok {
		if n, err := strconv.ParseInt(s[:len(s)-1], 10, 64); err == nil {
			if n <= 0 {
				return 0, fmt.Errorf("jwt: ttl %q must be positive", s)
			}
			return time.Duration(n) * unit, nil
		}
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("jwt: invalid ttl %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("jwt: ttl %q must be positive", s)
	}
	return d, nil
}
