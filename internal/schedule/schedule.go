// Package schedule implements the time sequences jobs are bound to.
//
// Two variants exist and the set is closed:
//   - Periodic: fixed period from an anchor instant
//   - Regular:  calendar-field (cron-like) minute matching
//
// Both answer "does this instant belong to the sequence" within a tolerance
// window, compute the next occurrence, and offer a stateful Tick that is true
// at most once per occurrence. Tick state is not synchronized; a sequence must
// be ticked from a single goroutine.
package schedule

import (
	"errors"
	"fmt"
	"time"

	"cadence/internal/period"
)

// ErrUnsatisfiable is returned by Regular.Next when no minute within the
// search horizon satisfies the field sets.
var ErrUnsatisfiable = errors.New("schedule unsatisfiable")

// Sequence is the capability shared by Periodic and Regular.
type Sequence interface {
	// Contains reports whether some occurrence lies within tolerance of t.
	Contains(t time.Time) bool
	// Next returns the earliest occurrence strictly after the given instant.
	Next(after time.Time) (time.Time, error)
	// Tick is Contains with de-duplication: true at most once per occurrence.
	Tick(now time.Time) bool
	// LastFired returns the occurrence the last successful Tick matched.
	LastFired() (time.Time, bool)

	Anchor() time.Time
	Tolerance() time.Duration
	String() string

	sealed()
}

// RangeError reports a construction parameter outside its domain.
type RangeError struct {
	Field string
	Value int64
	Min   int64
	Max   int64
}

func (e *RangeError) Error() string {
	switch {
	case e.Min == 0 && e.Max == 0:
		return fmt.Sprintf("%s out of range: %d", e.Field, e.Value)
	case e.Max == 0:
		return fmt.Sprintf("%s out of range: %d (want >= %d)", e.Field, e.Value, e.Min)
	default:
		return fmt.Sprintf("%s out of range: %d (want %d..%d)", e.Field, e.Value, e.Min, e.Max)
	}
}

// Option customizes sequence construction.
type Option func(*options)

type options struct {
	anchor    time.Time
	tolerance any
	loc       *time.Location
}

// WithAnchor sets the reference instant. Defaults to the construction time.
func WithAnchor(t time.Time) Option {
	return func(o *options) { o.anchor = t }
}

// WithTolerance sets the tolerance window as duration text or time.Duration.
func WithTolerance(v any) Option {
	return func(o *options) { o.tolerance = v }
}

// WithLocation sets the time zone calendar fields are evaluated in (Regular
// only). Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(o *options) { o.loc = loc }
}

func buildOptions(def time.Duration, opts []Option) (options, time.Duration, error) {
	o := options{}
	for _, fn := range opts {
		if fn != nil {
			fn(&o)
		}
	}
	if o.anchor.IsZero() {
		o.anchor = time.Now()
	}
	if o.loc == nil {
		o.loc = time.Local
	}
	tol := def
	if o.tolerance != nil {
		d, err := period.From(o.tolerance)
		if err != nil {
			return o, 0, fmt.Errorf("tolerance: %w", err)
		}
		tol = d
	}
	if tol < 0 {
		return o, 0, &RangeError{Field: "tolerance", Value: int64(tol)}
	}
	return o, tol, nil
}

// within reports whether |d| < tol. An exact hit always counts, so a zero
// tolerance still matches occurrences exactly.
func within(d, tol time.Duration) bool {
	if d < 0 {
		d = -d
	}
	return d == 0 || d < tol
}

// Upcoming returns up to n successive occurrences strictly after the given
// instant. It stops early, returning what it has, when Next fails.
func Upcoming(seq Sequence, after time.Time, n int) ([]time.Time, error) {
	out := make([]time.Time, 0, max(n, 0))
	cur := after
	for len(out) < n {
		next, err := seq.Next(cur)
		if err != nil {
			return out, err
		}
		out = append(out, next)
		cur = next
	}
	return out, nil
}
