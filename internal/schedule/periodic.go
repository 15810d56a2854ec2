package schedule

import (
	"fmt"
	"time"

	"cadence/internal/period"
)

// DefaultPeriodicTolerance is used when WithTolerance is not given.
const DefaultPeriodicTolerance = time.Minute

// Periodic fires at anchor + k*period for k = 0, 1, 2, ...
type Periodic struct {
	period    time.Duration
	anchor    time.Time
	tolerance time.Duration

	fired     bool
	lastFired int64
}

// NewPeriodic builds a Periodic sequence. p is duration text ("1h:30m") or a
// time.Duration and must be positive.
func NewPeriodic(p any, opts ...Option) (*Periodic, error) {
	d, err := period.From(p)
	if err != nil {
		return nil, fmt.Errorf("period: %w", err)
	}
	if d <= 0 {
		return nil, &RangeError{Field: "period", Value: int64(d), Min: 1}
	}
	o, tol, err := buildOptions(DefaultPeriodicTolerance, opts)
	if err != nil {
		return nil, err
	}
	return &Periodic{period: d, anchor: o.anchor, tolerance: tol}, nil
}

func (p *Periodic) sealed() {}

func (p *Periodic) Period() time.Duration    { return p.period }
func (p *Periodic) Anchor() time.Time        { return p.anchor }
func (p *Periodic) Tolerance() time.Duration { return p.tolerance }

// String returns e.g. "every 1h:30m".
func (p *Periodic) String() string {
	return "every " + period.Format(p.period)
}

// Contains reports whether an occurrence lies within tolerance of t.
func (p *Periodic) Contains(t time.Time) bool {
	_, ok := p.match(t)
	return ok
}

// Next returns the first occurrence strictly after the given instant. No
// tolerance snapping is applied.
func (p *Periodic) Next(after time.Time) (time.Time, error) {
	if after.Before(p.anchor) {
		return p.anchor, nil
	}
	k := int64(after.Sub(p.anchor)/p.period) + 1
	return p.at(k), nil
}

// Tick is true once per matched occurrence index. After a gap spanning
// several periods the index is recomputed directly, so only the most recent
// occurrence fires and the skipped ones are never replayed.
func (p *Periodic) Tick(now time.Time) bool {
	k, ok := p.match(now)
	if !ok {
		return false
	}
	if p.fired && k <= p.lastFired {
		return false
	}
	p.fired = true
	p.lastFired = k
	return true
}

// LastFired returns the last occurrence Tick reported, if any.
func (p *Periodic) LastFired() (time.Time, bool) {
	if !p.fired {
		return time.Time{}, false
	}
	return p.at(p.lastFired), true
}

func (p *Periodic) at(k int64) time.Time {
	return p.anchor.Add(time.Duration(k) * p.period)
}

// match returns the index of the occurrence within tolerance of t, preferring
// the nearer one when both neighbours qualify.
func (p *Periodic) match(t time.Time) (int64, bool) {
	d := t.Sub(p.anchor)
	if d < 0 {
		return 0, within(d, p.tolerance)
	}
	k := int64(d / p.period)
	sinceLower := d - time.Duration(k)*p.period
	untilUpper := p.period - sinceLower

	lowerOK := within(sinceLower, p.tolerance)
	upperOK := within(untilUpper, p.tolerance)
	switch {
	case lowerOK && upperOK:
		if untilUpper < sinceLower {
			return k + 1, true
		}
		return k, true
	case lowerOK:
		return k, true
	case upperOK:
		return k + 1, true
	}
	return 0, false
}
