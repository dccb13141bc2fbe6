// Package hms converts between `HH:MM:SS` durations and whole seconds.
package hms

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrNegative  = errors.New("duration is negative")
	ErrNotFinite = errors.New("duration is not a finite number")
)

// Parse converts `HH:MM:SS` into seconds. Exactly three colon-separated
// non-negative integers are accepted; minutes and seconds are not
// range-checked, so `00:99:99` parses. Durations that don't fit in an int
// are rejected.
func Parse(text string) (seconds int, ok bool) {
	parts := strings.Split(text, ":")
	if len(parts) != 3 {
		return 0, false
	}

	var values [3]int
	for i, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || v < 0 {
			return 0, false
		}
		values[i] = v
	}

	if values[0] > math.MaxInt/3600 {
		return 0, false
	}
	total := values[0] * 3600
	if values[1] > (math.MaxInt-total)/60 {
		return 0, false
	}
	total += values[1] * 60
	if values[2] > math.MaxInt-total {
		return 0, false
	}
	return total + values[2], true
}

// Format renders seconds as zero-padded `HH:MM:SS`, dropping fractional
// seconds. Hours are not capped at 99.
func Format(seconds float64) (string, error) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return "", fmt.Errorf("formatting `%v`: %w", seconds, ErrNotFinite)
	}
	if seconds < 0 {
		return "", fmt.Errorf("formatting `%v`: %w", seconds, ErrNegative)
	}

	total := int64(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s), nil
}
