package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cadence/internal/config"
	"cadence/internal/eventbus"
	"cadence/internal/schedule"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestBuildJobs(t *testing.T) {
	now := time.Date(2024, 3, 24, 12, 0, 0, 0, time.UTC)
	cfg := &config.Config{
		Scheduler: config.SchedulerConfig{Timezone: "UTC"},
		Jobs: []config.JobConfig{
			{Name: "hourly", Period: "1h", Command: "true", Timeout: "30s"},
			{Name: " weekdays ", Cron: "0 9 * * 1-5", Command: "true"},
		},
	}
	jobs, err := BuildJobs(cfg, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 2 {
		t.Fatalf("jobs = %d", len(jobs))
	}
	if jobs[0].Task.Timeout != 30*time.Second || jobs[0].Task.Name != "hourly" {
		t.Fatalf("task = %+v", jobs[0].Task)
	}
	if jobs[1].Name != "weekdays" {
		t.Fatalf("name = %q", jobs[1].Name)
	}
	next, err := jobs[1].Seq.Next(now)
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2024, 3, 25, 9, 0, 0, 0, time.UTC); !next.Equal(want) {
		t.Fatalf("next = %s, want %s", next, want)
	}
	if !jobs[0].Seq.Contains(now) {
		t.Fatal("periodic job should contain its anchor")
	}
	if _, ok := jobs[1].Seq.(*schedule.Regular); !ok {
		t.Fatalf("cron job built %T", jobs[1].Seq)
	}

	cfg.Jobs = append(cfg.Jobs, config.JobConfig{Name: "bad", Period: "1x", Command: "true"})
	if _, err := BuildJobs(cfg, now); err == nil || !strings.Contains(err.Error(), "jobs[2] (bad)") {
		t.Fatalf("err = %v", err)
	}
}

func TestMapEngineConfig(t *testing.T) {
	cfg := &config.Config{Engine: config.EngineConfig{Workers: 2, MaxConcurrent: 3, MaxQueueDelay: "30s"}}
	got, err := mapEngineConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if got.Workers != 2 || got.MaxConcurrent != 3 || got.MaxQueueDelay != 30*time.Second {
		t.Fatalf("engine config = %+v", got)
	}

	got, err = mapEngineConfig(&config.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if got.MaxConcurrent != 0 {
		t.Fatalf("max concurrent = %d, want 0 (no cap)", got.MaxConcurrent)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	p := writeConfig(t, t.TempDir(), "jobs:\n  - name: x\n    period: 1h\n")
	if _, err := New(p); err == nil || !strings.Contains(err.Error(), "jobs[0].command") {
		t.Fatalf("err = %v", err)
	}
}

func TestAppRunsJobAndJournals(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.txt")
	p := writeConfig(t, dir, fmt.Sprintf(`
logging:
  level: error
scheduler:
  poll_interval: 20ml
storage:
  driver: file
  path: %s
status:
  enabled: true
  addr: "127.0.0.1:0"
jobs:
  - name: touch
    period: 1h
    tolerance: 1s
    command: "echo fired > %s"
`, filepath.Join(dir, "journal"), out))

	a, err := New(p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for a.Engine().Snapshot().Completed < 1 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if got := a.Engine().Snapshot().Completed; got != 1 {
		t.Fatalf("completed = %d, want 1", got)
	}
	b, err := os.ReadFile(out)
	if err != nil || strings.TrimSpace(string(b)) != "fired" {
		t.Fatalf("job output = %q, %v", b, err)
	}

	// fired, started and finished reach the journal.
	types := map[string]bool{}
	for time.Now().Before(deadline) && len(types) < 3 {
		entries, err := a.Journal().Recent(context.Background(), "touch", 10)
		if err != nil {
			t.Fatal(err)
		}
		for _, e := range entries {
			types[e.Type] = true
		}
		time.Sleep(20 * time.Millisecond)
	}
	for _, typ := range []string{eventbus.ScheduleFired, eventbus.TaskStarted, eventbus.TaskFinished} {
		if !types[typ] {
			t.Errorf("journal missing %s (have %v)", typ, types)
		}
	}

	snap := a.Scheduler().Snapshot()
	if len(snap.Schedules) != 1 || snap.Schedules[0].Fired != 1 {
		t.Fatalf("schedules = %+v", snap.Schedules)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, StopAppStop); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case <-a.Done():
	default:
		t.Fatal("app context still live after Stop")
	}
	if err := a.Err(); err != nil {
		t.Fatalf("Err = %v", err)
	}
}
