package schedule

import (
	"fmt"
	"time"
)

// DefaultRegularTolerance makes a Regular sequence match anywhere inside a
// matching calendar minute.
const DefaultRegularTolerance = time.Minute

// searchHorizonYears bounds Next. Ten years spans the longest gap between
// two February 29ths (eight years around a skipped century leap year).
const searchHorizonYears = 10

// Regular matches calendar minutes whose components satisfy every restricted
// field. Occurrences are minute starts in the sequence location.
//
// The tolerance window is late-only: t belongs to occurrence m when
// m <= t < m+tolerance and t is not before the anchor. With the default
// one-minute tolerance that is exactly "t's calendar minute matches". The
// anchor's own minute is an occurrence only if the anchor lies inside its
// window.
//
// Occurrences are instants, not wall-clock labels: a wall minute repeated at
// a DST fall-back is two occurrences and fires twice. A minute skipped by a
// spring-forward gap never fires.
type Regular struct {
	fields Fields

	minutes   fieldSet
	hours     fieldSet
	monthdays fieldSet
	weekdays  fieldSet
	months    fieldSet

	anchor    time.Time
	tolerance time.Duration
	loc       *time.Location

	satisfiable bool

	fired     bool
	lastFired time.Time
}

// NewRegular validates f and builds a Regular sequence. The tolerance is how
// long after an occurrence starts an instant still belongs to it.
func NewRegular(f Fields, opts ...Option) (*Regular, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	o, tol, err := buildOptions(DefaultRegularTolerance, opts)
	if err != nil {
		return nil, err
	}
	f = f.normalized()
	r := &Regular{
		fields:    f,
		minutes:   newFieldSet(f.Minutes),
		hours:     newFieldSet(f.Hours),
		monthdays: newFieldSet(f.Monthdays),
		weekdays:  newFieldSet(f.Weekdays),
		months:    newFieldSet(f.Months),
		anchor:    o.anchor,
		tolerance: tol,
		loc:       o.loc,
	}
	r.satisfiable = r.feasible()
	return r, nil
}

func (r *Regular) sealed() {}

func (r *Regular) Anchor() time.Time        { return r.anchor }
func (r *Regular) Tolerance() time.Duration { return r.tolerance }
func (r *Regular) Location() *time.Location { return r.loc }
func (r *Regular) Fields() Fields           { return r.fields.normalized() }

// Satisfiable reports whether any calendar date can ever match. It is false
// for combinations like monthday 31 in February.
func (r *Regular) Satisfiable() bool { return r.satisfiable }

// String returns the field-set text, e.g. "[0,30]:[9]:[]:[1,5]:[]".
func (r *Regular) String() string {
	return r.fields.String()
}

// Contains reports whether t lies within tolerance after a matching minute
// start, at or after the anchor.
func (r *Regular) Contains(t time.Time) bool {
	_, ok := r.match(t)
	return ok
}

// Next scans forward from the minute after the given instant. It returns
// ErrUnsatisfiable when nothing matches within the search horizon.
func (r *Regular) Next(after time.Time) (time.Time, error) {
	if !r.satisfiable {
		return time.Time{}, fmt.Errorf("%w: %s", ErrUnsatisfiable, r)
	}
	m := truncMinute(after, r.loc).Add(time.Minute)
	if start := r.firstMinute(); m.Before(start) {
		m = start
	}
	limit := m.AddDate(searchHorizonYears, 0, 0)

	for m.Before(limit) {
		var next time.Time
		switch {
		case !r.months.has(int(m.Month())):
			next = time.Date(m.Year(), m.Month()+1, 1, 0, 0, 0, 0, r.loc)
		case !r.dayMatches(m):
			next = time.Date(m.Year(), m.Month(), m.Day()+1, 0, 0, 0, 0, r.loc)
		case !r.hours.has(m.Hour()):
			next = time.Date(m.Year(), m.Month(), m.Day(), m.Hour()+1, 0, 0, 0, r.loc)
		case !r.minutes.has(m.Minute()):
			next = m.Add(time.Minute)
		default:
			return m, nil
		}
		// Wall-clock arithmetic can land earlier around DST transitions.
		if !next.After(m) {
			next = m.Add(time.Minute)
		}
		m = next
	}
	return time.Time{}, fmt.Errorf("%w: %s within %d years after %s", ErrUnsatisfiable, r, searchHorizonYears, after.Format(time.RFC3339))
}

// Tick is true once per matched minute.
func (r *Regular) Tick(now time.Time) bool {
	m, ok := r.match(now)
	if !ok {
		return false
	}
	if r.fired && !m.After(r.lastFired) {
		return false
	}
	r.fired = true
	r.lastFired = m
	return true
}

// LastFired returns the last occurrence Tick reported, if any.
func (r *Regular) LastFired() (time.Time, bool) {
	return r.lastFired, r.fired
}

// match finds the latest matching minute start m with m <= t and t-m within
// tolerance. Whole months, days and hours that cannot match are skipped.
func (r *Regular) match(t time.Time) (time.Time, bool) {
	if !r.satisfiable || t.Before(r.anchor) {
		return time.Time{}, false
	}
	floor := r.firstMinute()
	m := truncMinute(t, r.loc)
	for !m.Before(floor) && within(t.Sub(m), r.tolerance) {
		var prev time.Time
		switch {
		case !r.months.has(int(m.Month())):
			prev = time.Date(m.Year(), m.Month(), 1, 0, 0, 0, 0, r.loc).Add(-time.Minute)
		case !r.dayMatches(m):
			prev = time.Date(m.Year(), m.Month(), m.Day(), 0, 0, 0, 0, r.loc).Add(-time.Minute)
		case !r.hours.has(m.Hour()):
			prev = time.Date(m.Year(), m.Month(), m.Day(), m.Hour(), 0, 0, 0, r.loc).Add(-time.Minute)
		case !r.minutes.has(m.Minute()):
			prev = m.Add(-time.Minute)
		default:
			return m, true
		}
		if !prev.Before(m) {
			prev = m.Add(-time.Minute)
		}
		m = prev
	}
	return time.Time{}, false
}

// firstMinute is the earliest minute start that can be an occurrence: the
// anchor's own minute when the anchor is still inside its window, otherwise
// the minute after.
func (r *Regular) firstMinute() time.Time {
	m := truncMinute(r.anchor, r.loc)
	if !within(r.anchor.Sub(m), r.tolerance) {
		m = m.Add(time.Minute)
	}
	return m
}

// dayMatches applies the day rule: when both monthdays and weekdays are
// restricted a day matching either one qualifies.
func (r *Regular) dayMatches(t time.Time) bool {
	domRestricted := !r.monthdays.wildcard()
	dowRestricted := !r.weekdays.wildcard()
	switch {
	case domRestricted && dowRestricted:
		return r.monthdays.has(t.Day()) || r.weekdays.has(int(t.Weekday()))
	case domRestricted:
		return r.monthdays.has(t.Day())
	case dowRestricted:
		return r.weekdays.has(int(t.Weekday()))
	}
	return true
}

// feasible reports whether at least one allowed month can contain an
// allowed day. Every month contains every weekday, so a weekday restriction
// alone (or OR-ed with monthdays) is always feasible.
func (r *Regular) feasible() bool {
	if r.monthdays.wildcard() || !r.weekdays.wildcard() {
		return true
	}
	for mo := 1; mo <= 12; mo++ {
		if !r.months.has(mo) {
			continue
		}
		for d := 1; d <= maxDaysIn(time.Month(mo)); d++ {
			if r.monthdays.has(d) {
				return true
			}
		}
	}
	return false
}

func maxDaysIn(m time.Month) int {
	switch m {
	case time.February:
		return 29
	case time.April, time.June, time.September, time.November:
		return 30
	}
	return 31
}

// truncMinute keeps the instant's own offset, so both copies of a wall minute
// repeated at a DST fall-back stay distinct.
func truncMinute(t time.Time, loc *time.Location) time.Time {
	m := t.In(loc).Truncate(time.Minute)
	if m.Second() != 0 {
		// Historic zones with sub-minute offsets.
		m = time.Date(m.Year(), m.Month(), m.Day(), m.Hour(), m.Minute(), 0, 0, loc)
	}
	return m
}
