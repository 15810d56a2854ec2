package config

import (
	"fmt"
	"strings"
	"time"

	"cadence/internal/period"
)

// ParseDurationField parses duration text ("1h:30m") or, failing that, a Go
// duration string. Empty is 0. path prefixes errors, e.g. "engine.default_timeout".
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := period.Parse(s)
	if err != nil {
		gd, gerr := time.ParseDuration(s)
		if gerr != nil {
			return 0, fmt.Errorf("%s: %w", path, err)
		}
		d = gd
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
