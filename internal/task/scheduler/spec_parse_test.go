package scheduler

import (
	"errors"
	"strings"
	"testing"
	"time"

	"cadence/internal/period"
	"cadence/internal/schedule"
)

func TestBuildSequenceVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		spec SequenceSpec
		kind string
		str  string
	}{
		{name: "periodic", spec: SequenceSpec{Period: "1h:30m"}, kind: "periodic", str: "every 1h:30m"},
		{name: "explicit periodic", spec: SequenceSpec{Kind: "Periodic", Period: "90m", Tolerance: "5s"}, kind: "periodic", str: "every 1h:30m"},
		{name: "regular", spec: SequenceSpec{Fields: "[0]:[9]:[]:[1,5]:[]"}, kind: "regular", str: "[0]:[9]:[]:[1,5]:[]"},
		{name: "cron", spec: SequenceSpec{Cron: "30 2 * * 0"}, kind: "regular", str: "[30]:[2]:[]:[0]:[]"},
		{name: "cron descriptor", spec: SequenceSpec{Kind: "cron", Cron: "@hourly", Timezone: "UTC"}, kind: "regular", str: "[0]:[]:[]:[]:[]"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			seq, err := BuildSequence(tt.spec, time.UTC, t0)
			if err != nil {
				t.Fatalf("BuildSequence: %v", err)
			}
			if got := kindOf(seq); got != tt.kind {
				t.Fatalf("kind = %s, want %s", got, tt.kind)
			}
			if got := seq.String(); got != tt.str {
				t.Fatalf("String() = %q, want %q", got, tt.str)
			}
			if !seq.Anchor().Equal(t0) {
				t.Fatalf("anchor = %s, want %s", seq.Anchor(), t0)
			}
		})
	}
}

func TestBuildSequenceStartAndLocation(t *testing.T) {
	t.Parallel()
	seq, err := BuildSequence(SequenceSpec{Period: "1d", Start: "2024-01-01 03:00"}, time.UTC, t0)
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC); !seq.Anchor().Equal(want) {
		t.Fatalf("anchor = %s, want %s", seq.Anchor(), want)
	}

	seq, err = BuildSequence(SequenceSpec{Cron: "0 3 * * *", Start: "2024-01-01T00:00:00Z"}, time.UTC, t0)
	if err != nil {
		t.Fatal(err)
	}
	r := seq.(*schedule.Regular)
	if r.Location() != time.UTC {
		t.Fatalf("location = %s, want UTC", r.Location())
	}
	next, err := r.Next(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC); !next.Equal(want) {
		t.Fatalf("next = %s, want %s", next, want)
	}
}

func TestBuildSequenceErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		spec SequenceSpec
		want string
	}{
		{name: "empty", spec: SequenceSpec{}, want: "schedule required"},
		{name: "ambiguous", spec: SequenceSpec{Period: "1m", Cron: "* * * * *"}, want: "ambiguous"},
		{name: "unknown kind", spec: SequenceSpec{Kind: "weekly", Period: "1m"}, want: "unknown kind"},
		{name: "kind without value", spec: SequenceSpec{Kind: "regular", Period: "1m"}, want: "requires fields"},
		{name: "bad timezone", spec: SequenceSpec{Period: "1m", Timezone: "Mars/Olympus"}, want: "timezone"},
		{name: "bad start", spec: SequenceSpec{Period: "1m", Start: "yesterday"}, want: "start"},
		{name: "every descriptor", spec: SequenceSpec{Cron: "@every 5m"}, want: "periodic"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildSequence(tt.spec, time.UTC, t0)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want containing %q", err, tt.want)
			}
		})
	}

	_, err := BuildSequence(SequenceSpec{Period: "2h:1h"}, time.UTC, t0)
	var fe *period.FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *period.FormatError", err)
	}
	_, err = BuildSequence(SequenceSpec{Fields: "[99]:[]:[]:[]:[]"}, time.UTC, t0)
	var re *schedule.RangeError
	if !errors.As(err, &re) {
		t.Fatalf("err = %v, want *schedule.RangeError", err)
	}
}
