// Package period parses the colon-separated duration text used for schedule
// periods, tolerances and intervals, e.g. "1h:30m" or "3d:2h:30m:0ml".
//
// Units:
//   - mc: microseconds
//   - ml: milliseconds
//   - s:  seconds
//   - m:  minutes
//   - h:  hours
//   - d:  days (24h, no calendar awareness)
//
// Components may appear in any order, each unit at most once.
package period

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

type unit struct {
	suffix string
	size   time.Duration
}

// units is ordered largest first; Format relies on that.
var units = []unit{
	{"d", 24 * time.Hour},
	{"h", time.Hour},
	{"m", time.Minute},
	{"s", time.Second},
	{"ml", time.Millisecond},
	{"mc", time.Microsecond},
}

func lookupUnit(suffix string) (unit, bool) {
	for _, u := range units {
		if u.suffix == suffix {
			return u, true
		}
	}
	return unit{}, false
}

// Parse converts duration text into a time.Duration.
func Parse(text string) (time.Duration, error) {
	if text == "" {
		return 0, &FormatError{Input: text, Reason: "empty period"}
	}

	var (
		total time.Duration
		seen  = make(map[string]bool, len(units))
	)
	for _, comp := range strings.Split(text, ":") {
		digits, suffix := splitComponent(comp)
		if digits == "" {
			return 0, &FormatError{Input: text, Reason: fmt.Sprintf("component %q has no digits", comp)}
		}
		if suffix == "" {
			return 0, &FormatError{Input: text, Reason: fmt.Sprintf("component %q has no unit suffix", comp)}
		}
		u, ok := lookupUnit(suffix)
		if !ok {
			return 0, &FormatError{Input: text, Reason: fmt.Sprintf("unknown unit %q", suffix)}
		}
		if seen[suffix] {
			return 0, &FormatError{Input: text, Reason: fmt.Sprintf("unit %q given twice", suffix)}
		}
		seen[suffix] = true

		n, err := strconv.ParseInt(digits, 10, 64)
		if err != nil || n > int64(math.MaxInt64/u.size) {
			return 0, &FormatError{Input: text, Reason: fmt.Sprintf("component %q out of range", comp)}
		}
		add := time.Duration(n) * u.size
		if total > math.MaxInt64-add {
			return 0, &FormatError{Input: text, Reason: "period overflows"}
		}
		total += add
	}
	return total, nil
}

// splitComponent splits "150m" into ("150", "m"). The suffix is whatever
// follows the leading digits, so "1x2s" yields suffix "x2s" and is rejected
// as an unknown unit.
func splitComponent(comp string) (digits, suffix string) {
	i := 0
	for i < len(comp) && comp[i] >= '0' && comp[i] <= '9' {
		i++
	}
	return comp[:i], comp[i:]
}

// From accepts either duration text or a pre-built time.Duration.
func From(v any) (time.Duration, error) {
	switch x := v.(type) {
	case string:
		return Parse(x)
	case time.Duration:
		return x, nil
	default:
		return 0, &InvalidTypeError{Value: v}
	}
}

// Format renders d in the text form accepted by Parse, largest unit first.
// Sub-microsecond remainders are truncated. Negative durations are rendered
// by magnitude with a leading "-", which Parse does not accept.
func Format(d time.Duration) string {
	if d == 0 {
		return "0s"
	}
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	parts := make([]string, 0, len(units))
	for _, u := range units {
		if n := d / u.size; n > 0 {
			parts = append(parts, strconv.FormatInt(int64(n), 10)+u.suffix)
			d -= n * u.size
		}
	}
	if len(parts) == 0 {
		return "0s"
	}
	return sign + strings.Join(parts, ":")
}
