package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cadence/internal/eventbus"
	"cadence/internal/schedule"
	"cadence/internal/task/engine"
	logx "cadence/pkg/logx"
)

var t0 = time.Date(2024, 3, 24, 12, 0, 0, 0, time.UTC)

type fakeExec struct {
	mu    sync.Mutex
	tasks []engine.Task
	err   error
	panic string // panic when this job name is enqueued
}

func (f *fakeExec) Enqueue(t engine.Task) error {
	if f.panic != "" && t.Name == f.panic {
		panic("executor exploded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.tasks = append(f.tasks, t)
	return nil
}

func (f *fakeExec) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.tasks))
	for i, t := range f.tasks {
		out[i] = t.Name
	}
	return out
}

func noop(context.Context) error { return nil }

func periodic(t *testing.T, p, tol string) *schedule.Periodic {
	t.Helper()
	seq, err := schedule.NewPeriodic(p, schedule.WithAnchor(t0), schedule.WithTolerance(tol))
	if err != nil {
		t.Fatal(err)
	}
	return seq
}

func newTestService(exec Executor, bus eventbus.Bus) *Service {
	return New(Config{}, exec, logx.Nop(), bus, WithClock(func() time.Time { return t0 }))
}

func TestAddRejectsCoarsePoll(t *testing.T) {
	t.Parallel()
	s := New(Config{PollInterval: time.Second}, &fakeExec{}, logx.Nop(), nil)

	err := s.Add("tight", periodic(t, "1m", "1s"), engine.Task{Run: noop})
	if !errors.Is(err, ErrPollTooCoarse) {
		t.Fatalf("got %v, want ErrPollTooCoarse", err)
	}
	if err := s.Add("ok", periodic(t, "1m", "2s"), engine.Task{Run: noop}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add("ok", periodic(t, "1m", "2s"), engine.Task{Run: noop}); !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("got %v, want ErrDuplicateName", err)
	}
	if err := s.Add("norun", periodic(t, "1m", "2s"), engine.Task{}); err == nil {
		t.Fatal("expected error for missing job")
	}
}

func TestPollFiresOncePerOccurrence(t *testing.T) {
	t.Parallel()
	exec := &fakeExec{}
	s := newTestService(exec, nil)
	if err := s.Add("hourly", periodic(t, "1h", "1s"), engine.Task{Run: noop, Timeout: time.Minute}); err != nil {
		t.Fatal(err)
	}

	// 100ms polls across the first occurrence window and into the next hour.
	for now := t0.Add(-2 * time.Second); now.Before(t0.Add(time.Hour + 2*time.Second)); now = now.Add(100 * time.Millisecond) {
		if now.After(t0.Add(5*time.Second)) && now.Before(t0.Add(time.Hour-5*time.Second)) {
			continue
		}
		s.Poll(now)
	}

	if got := len(exec.tasks); got != 2 {
		t.Fatalf("fired %d times, want 2", got)
	}
	first := exec.tasks[0]
	if first.Name != "hourly" || first.Schedule != "every 1h" || first.Timeout != time.Minute {
		t.Fatalf("unexpected task %+v", first)
	}
	if first.ID == "" || first.ID == exec.tasks[1].ID {
		t.Fatalf("task IDs not unique: %q %q", first.ID, exec.tasks[1].ID)
	}
}

func TestPollOrderAndFaultIsolation(t *testing.T) {
	t.Parallel()
	exec := &fakeExec{panic: "second"}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()
	s := newTestService(exec, bus)

	for _, name := range []string{"first", "second", "third"} {
		if err := s.Add(name, periodic(t, "1m", "1s"), engine.Task{Run: noop}); err != nil {
			t.Fatal(err)
		}
	}
	// A sequence whose Tick itself panics.
	broken := periodic(t, "1m", "1s")
	if err := s.Add("fourth", broken, engine.Task{Run: noop}); err != nil {
		t.Fatal(err)
	}
	s.bindings[3].tick = func(time.Time) bool { panic("tick exploded") }

	s.Poll(t0)

	got := exec.names()
	want := []string{"first", "third"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("dispatched %v, want %v", got, want)
	}

	snap := s.Snapshot()
	if snap.Schedules[1].Faults != 1 || snap.Schedules[3].Faults != 1 {
		t.Fatalf("faults = %d/%d, want 1/1", snap.Schedules[1].Faults, snap.Schedules[3].Faults)
	}
	if snap.Schedules[0].Fired != 1 || snap.Schedules[2].Fired != 1 {
		t.Fatalf("fired counters = %+v", snap.Schedules)
	}

	counts := map[string]int{}
	for len(events) > 0 {
		counts[(<-events).Type]++
	}
	if counts[eventbus.ScheduleFired] != 2 || counts[eventbus.ScheduleFault] != 2 {
		t.Fatalf("event counts = %v", counts)
	}

	// Healthy bindings keep firing on later cycles.
	s.Poll(t0.Add(time.Minute))
	if n := len(exec.names()); n != 4 {
		t.Fatalf("dispatched %d tasks after second cycle, want 4", n)
	}
}

func TestEnqueueErrorIsCountedNotRetried(t *testing.T) {
	t.Parallel()
	exec := &fakeExec{err: engine.ErrQueueFull}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()
	s := newTestService(exec, bus)
	if err := s.Add("busy", periodic(t, "1m", "1s"), engine.Task{Run: noop}); err != nil {
		t.Fatal(err)
	}

	s.Poll(t0)
	s.Poll(t0.Add(200 * time.Millisecond))

	info := s.Snapshot().Schedules[0]
	if info.Fired != 1 || info.Rejected != 1 {
		t.Fatalf("fired=%d rejected=%d, want 1/1", info.Fired, info.Rejected)
	}
	if info.LastError != engine.ErrQueueFull.Error() {
		t.Fatalf("last error = %q", info.LastError)
	}
	e := <-events
	if e.Type != eventbus.ScheduleRejected {
		t.Fatalf("event %q, want %q", e.Type, eventbus.ScheduleRejected)
	}
}

func TestSnapshotReportsNext(t *testing.T) {
	t.Parallel()
	s := newTestService(&fakeExec{}, nil)

	never, err := schedule.NewRegular(schedule.Fields{Monthdays: []int{31}, Months: []int{2}}, schedule.WithAnchor(t0))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Add("never", never, engine.Task{Run: noop}); err != nil {
		t.Fatal(err)
	}
	if err := s.Add("quarter", periodic(t, "15m", "1s"), engine.Task{Run: noop}); err != nil {
		t.Fatal(err)
	}
	s.Poll(t0)

	snap := s.Snapshot()
	if snap.PollInterval != DefaultPollInterval || snap.Polls != 1 || snap.Running {
		t.Fatalf("unexpected snapshot header %+v", snap)
	}
	if snap.Schedules[0].Kind != "regular" || snap.Schedules[0].NextErr == "" {
		t.Fatalf("never: %+v", snap.Schedules[0])
	}
	q := snap.Schedules[1]
	if q.Kind != "periodic" || !q.Next.Equal(t0.Add(15*time.Minute)) || !q.LastFired.Equal(t0) {
		t.Fatalf("quarter: %+v", q)
	}
}

func TestStartStopDrivesLoop(t *testing.T) {
	t.Parallel()
	exec := &fakeExec{}
	s := New(Config{PollInterval: 5 * time.Millisecond}, exec, logx.Nop(), nil)
	seq, err := schedule.NewPeriodic(40*time.Millisecond, schedule.WithTolerance(20*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Add("fast", seq, engine.Task{Run: noop}); err != nil {
		t.Fatal(err)
	}

	s.Start(context.Background())
	s.Start(context.Background())
	deadline := time.Now().Add(5 * time.Second)
	for len(exec.names()) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("loop fired %d times", len(exec.names()))
		}
		time.Sleep(5 * time.Millisecond)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Stop(ctx)
	if s.Snapshot().Running {
		t.Fatal("still running after Stop")
	}
}

func TestFiringReportsMatchedOccurrence(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()
	s := newTestService(&fakeExec{}, bus)
	if err := s.Add("hourly", periodic(t, "1h", "2s"), engine.Task{Run: noop}); err != nil {
		t.Fatal(err)
	}

	// Polled slightly early: the firing carries the occurrence, not the poll time.
	s.Poll(t0.Add(time.Hour - 700*time.Millisecond))
	e := <-events
	f, ok := e.Data.(eventbus.Firing)
	if !ok || e.Type != eventbus.ScheduleFired {
		t.Fatalf("event = %+v", e)
	}
	if want := t0.Add(time.Hour); !f.Occurred.Equal(want) {
		t.Fatalf("occurred = %s, want %s", f.Occurred, want)
	}
	if last := s.Snapshot().Schedules[0].LastFired; !last.Equal(t0.Add(time.Hour)) {
		t.Fatalf("snapshot last fired = %s", last)
	}
}
