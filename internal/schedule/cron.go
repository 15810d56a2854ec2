package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// cronStarBit mirrors robfig/cron's marker for fields written as "*" or "?".
const cronStarBit = 1 << 63

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// FieldsFromCron converts a standard five-field cron expression (or a
// descriptor such as "@daily", optionally prefixed with "CRON_TZ=<zone>")
// into Fields and the location it should be evaluated in. "@every" is
// rejected; fixed intervals are Periodic sequences.
func FieldsFromCron(expr string) (Fields, *time.Location, error) {
	s, err := cronParser.Parse(expr)
	if err != nil {
		return Fields{}, nil, fmt.Errorf("cron %q: %w", expr, err)
	}
	spec, ok := s.(*cron.SpecSchedule)
	if !ok {
		return Fields{}, nil, fmt.Errorf("cron %q: interval descriptors are not calendar schedules; use a periodic schedule", expr)
	}
	f := Fields{
		Minutes:   cronBits(spec.Minute, 0, 59),
		Hours:     cronBits(spec.Hour, 0, 23),
		Monthdays: cronBits(spec.Dom, 1, 31),
		Weekdays:  cronBits(spec.Dow, 0, 6),
		Months:    cronBits(spec.Month, 1, 12),
	}
	loc := spec.Location
	if loc == nil {
		loc = time.Local
	}
	return f, loc, nil
}

func cronBits(mask uint64, min, max int) []int {
	if mask&cronStarBit != 0 {
		return nil
	}
	var out []int
	for v := min; v <= max; v++ {
		if mask&(1<<uint(v)) != 0 {
			out = append(out, v)
		}
	}
	return out
}
