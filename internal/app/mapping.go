package app

import (
	"fmt"
	"strings"
	"time"

	"cadence/internal/config"
	"cadence/internal/schedule"
	"cadence/internal/status"
	"cadence/internal/storage"
	"cadence/internal/task/engine"
	"cadence/internal/task/scheduler"
	logx "cadence/pkg/logx"
)

// Job is one configured job, ready to be bound to the scheduler loop.
type Job struct {
	Name    string
	Command string
	Seq     schedule.Sequence
	Task    engine.Task
}

// BuildJobs constructs every job's sequence and task. now anchors sequences
// that do not set a start time. Errors are prefixed with the job's path.
func BuildJobs(cfg *config.Config, now time.Time) ([]Job, error) {
	loc, err := cfg.Scheduler.Location()
	if err != nil {
		return nil, fmt.Errorf("scheduler.timezone: %w", err)
	}
	jobs := make([]Job, 0, len(cfg.Jobs))
	for i, jc := range cfg.Jobs {
		path := fmt.Sprintf("jobs[%d]", i)
		seq, err := scheduler.BuildSequence(jc.SequenceSpec(), loc, now)
		if err != nil {
			return nil, fmt.Errorf("%s (%s): %w", path, jc.Name, err)
		}
		timeout, err := config.ParseDurationField(path+".timeout", jc.Timeout)
		if err != nil {
			return nil, err
		}
		name := strings.TrimSpace(jc.Name)
		jobs = append(jobs, Job{
			Name:    name,
			Command: jc.Command,
			Seq:     seq,
			Task:    engine.CommandTask(name, seq.String(), jc.Command, timeout),
		})
	}
	return jobs, nil
}

func mapLoggingConfig(c config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File: logx.FileConfig{
			Enabled: c.File.Enabled,
			Path:    c.File.Path,
		},
	}
}

func mapEngineConfig(cfg *config.Config) (engine.Config, error) {
	defTimeout, err := config.ParseDurationField("engine.default_timeout", cfg.Engine.DefaultTimeout)
	if err != nil {
		return engine.Config{}, err
	}
	maxQueueDelay, err := config.ParseDurationField("engine.max_queue_delay", cfg.Engine.MaxQueueDelay)
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		Workers:        cfg.Engine.Workers,
		QueueSize:      cfg.Engine.QueueSize,
		MaxConcurrent:  cfg.Engine.MaxConcurrent,
		DefaultTimeout: defTimeout,
		MaxQueueDelay:  maxQueueDelay,
		HistorySize:    cfg.Engine.HistorySize,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	poll, err := config.ParseDurationOrDefault("scheduler.poll_interval", cfg.Scheduler.PollInterval, scheduler.DefaultPollInterval)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{PollInterval: poll}, nil
}

// mapStorageConfig returns enabled=false for driver none.
func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	sc := cfg.Storage
	driver := sc.DriverName()
	if driver == config.DriverNone {
		return storage.Config{}, false, nil
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, false, err
	}
	return storage.Config{Driver: driver, Path: sc.PathOrDefault(), BusyTimeout: busy}, true, nil
}

func mapStatusConfig(cfg *config.Config) status.Config {
	return status.Config{
		Addr:          cfg.Status.AddrOrDefault(),
		Token:         strings.TrimSpace(cfg.Status.Token),
		AllowInsecure: cfg.Status.AllowInsecure,
		Pprof:         cfg.Status.Pprof,
	}
}
