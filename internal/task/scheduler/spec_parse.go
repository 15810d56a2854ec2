package scheduler

import (
	"fmt"
	"strings"
	"time"

	"cadence/internal/schedule"
)

// Sequence kinds accepted by BuildSequence.
const (
	KindPeriodic = "periodic"
	KindRegular  = "regular"
	KindCron     = "cron"
)

// SequenceSpec is the declarative form of a sequence, as written in config.
//
//   - periodic: Period ("1h:30m"), optional Start
//   - regular:  Fields ("[0]:[9]:[]:[1,5]:[]"), optional Start, Timezone
//   - cron:     Cron ("0 9 * * 1-5", "@daily", "CRON_TZ=UTC 0 3 * * *")
//
// Kind may be left empty when exactly one of Period, Fields and Cron is set.
// Tolerance is duration text; empty uses the variant default.
type SequenceSpec struct {
	Kind      string
	Period    string
	Fields    string
	Cron      string
	Start     string
	Tolerance string
	Timezone  string
}

// startLayouts are accepted for Start besides RFC 3339; they are read in the
// sequence location.
var startLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// BuildSequence validates spec and constructs the sequence. defaultLoc
// applies when spec.Timezone is empty; now is the anchor when Start is.
func BuildSequence(spec SequenceSpec, defaultLoc *time.Location, now time.Time) (schedule.Sequence, error) {
	kind, err := inferKind(spec)
	if err != nil {
		return nil, err
	}

	loc := defaultLoc
	if loc == nil {
		loc = time.Local
	}
	if tz := strings.TrimSpace(spec.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("timezone: %w", err)
		}
		loc = l
	}

	anchor := now
	if s := strings.TrimSpace(spec.Start); s != "" {
		anchor, err = parseStart(s, loc)
		if err != nil {
			return nil, err
		}
	}

	opts := []schedule.Option{schedule.WithAnchor(anchor), schedule.WithLocation(loc)}
	if tol := strings.TrimSpace(spec.Tolerance); tol != "" {
		opts = append(opts, schedule.WithTolerance(tol))
	}

	switch kind {
	case KindPeriodic:
		return schedule.NewPeriodic(strings.TrimSpace(spec.Period), opts...)
	case KindRegular:
		f, err := schedule.ParseFields(strings.TrimSpace(spec.Fields))
		if err != nil {
			return nil, fmt.Errorf("fields: %w", err)
		}
		return schedule.NewRegular(f, opts...)
	default:
		expr := strings.TrimSpace(spec.Cron)
		if strings.TrimSpace(spec.Timezone) == "" && !strings.HasPrefix(expr, "CRON_TZ=") && !strings.HasPrefix(expr, "TZ=") {
			expr = "CRON_TZ=" + loc.String() + " " + expr
		}
		f, cronLoc, err := schedule.FieldsFromCron(expr)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(spec.Timezone) != "" {
			cronLoc = loc
		}
		opts = append(opts, schedule.WithLocation(cronLoc))
		return schedule.NewRegular(f, opts...)
	}
}

func inferKind(spec SequenceSpec) (string, error) {
	kind := strings.ToLower(strings.TrimSpace(spec.Kind))
	set := map[string]bool{
		KindPeriodic: strings.TrimSpace(spec.Period) != "",
		KindRegular:  strings.TrimSpace(spec.Fields) != "",
		KindCron:     strings.TrimSpace(spec.Cron) != "",
	}
	if kind == "" {
		for k, ok := range set {
			if !ok {
				continue
			}
			if kind != "" {
				return "", fmt.Errorf("ambiguous schedule: set only one of period, fields and cron")
			}
			kind = k
		}
		if kind == "" {
			return "", fmt.Errorf("schedule required: set period, fields or cron")
		}
		return kind, nil
	}
	if _, ok := set[kind]; !ok {
		return "", fmt.Errorf("unknown kind %q (use periodic, regular or cron)", spec.Kind)
	}
	if !set[kind] {
		field := map[string]string{KindPeriodic: "period", KindRegular: "fields", KindCron: "cron"}[kind]
		return "", fmt.Errorf("kind %s requires %s", kind, field)
	}
	return kind, nil
}

func parseStart(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range startLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("start %q: want RFC 3339 or \"2006-01-02 15:04[:05]\"", s)
}
