package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"cadence/internal/task/scheduler"
)

// Storage drivers.
const (
	DriverNone   = "none"
	DriverSQLite = "sqlite"
	DriverFile   = "file"
)

const (
	DefaultStatusAddr  = "127.0.0.1:8089"
	DefaultStoragePath = "./cadence.db"
)

var validLevels = map[string]bool{"": true, "trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}

// Validate checks every section and builds each job's sequence once so
// malformed schedules are reported before the loop starts. All problems are
// joined, each prefixed with its path ("jobs[2].period: ...").
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(path string, err error) {
		if err != nil {
			if path != "" {
				err = fmt.Errorf("%s: %w", path, err)
			}
			errs = append(errs, err)
		}
	}

	if !validLevels[strings.ToLower(strings.TrimSpace(c.Logging.Level))] {
		add("logging.level", fmt.Errorf("unknown level %q", c.Logging.Level))
	}

	poll, err := ParseDurationOrDefault("scheduler.poll_interval", c.Scheduler.PollInterval, scheduler.DefaultPollInterval)
	add("", err)
	loc, err := c.Scheduler.Location()
	add("scheduler.timezone", err)

	if c.Engine.Workers < 0 {
		add("engine.workers", errors.New("must be >= 0"))
	}
	if c.Engine.QueueSize < 0 {
		add("engine.queue_size", errors.New("must be >= 0"))
	}
	if c.Engine.MaxConcurrent < 0 {
		add("engine.max_concurrent", errors.New("must be >= 0"))
	}
	if c.Engine.HistorySize < 0 {
		add("engine.history_size", errors.New("must be >= 0"))
	}
	_, err = ParseDurationField("engine.default_timeout", c.Engine.DefaultTimeout)
	add("", err)
	_, err = ParseDurationField("engine.max_queue_delay", c.Engine.MaxQueueDelay)
	add("", err)

	switch c.Storage.DriverName() {
	case DriverNone, DriverSQLite, DriverFile:
	default:
		add("storage.driver", fmt.Errorf("unknown driver %q (use none, sqlite or file)", c.Storage.Driver))
	}
	_, err = ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout)
	add("", err)

	if c.Status.Enabled {
		add("status.addr", c.Status.checkAddr())
	}

	now := time.Now()
	seen := make(map[string]int, len(c.Jobs))
	for i, j := range c.Jobs {
		path := fmt.Sprintf("jobs[%d]", i)
		name := strings.TrimSpace(j.Name)
		if name == "" {
			add(path+".name", errors.New("required"))
		} else if prev, dup := seen[name]; dup {
			add(path+".name", fmt.Errorf("%q already used by jobs[%d]", name, prev))
		} else {
			seen[name] = i
		}
		if strings.TrimSpace(j.Command) == "" {
			add(path+".command", errors.New("required"))
		}
		_, err := ParseDurationField(path+".timeout", j.Timeout)
		add("", err)

		seq, err := scheduler.BuildSequence(j.SequenceSpec(), loc, now)
		if err != nil {
			add(path+"."+j.scheduleField(), err)
			continue
		}
		if poll > 0 && seq.Tolerance() <= poll {
			add(path+".tolerance", fmt.Errorf("%w (tolerance %s, poll_interval %s)", scheduler.ErrPollTooCoarse, seq.Tolerance(), poll))
		}
	}
	return errors.Join(errs...)
}

// Location resolves Timezone; empty is the process local zone.
func (s SchedulerConfig) Location() (*time.Location, error) {
	tz := strings.TrimSpace(s.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	return time.LoadLocation(tz)
}

func (s StorageConfig) DriverName() string {
	d := strings.ToLower(strings.TrimSpace(s.Driver))
	if d == "" {
		return DriverNone
	}
	return d
}

func (s StorageConfig) PathOrDefault() string {
	if p := strings.TrimSpace(s.Path); p != "" {
		return p
	}
	return DefaultStoragePath
}

func (s StatusConfig) AddrOrDefault() string {
	if a := strings.TrimSpace(s.Addr); a != "" {
		return a
	}
	return DefaultStatusAddr
}

// checkAddr refuses a non-loopback bind without a token unless allow_insecure is set.
func (s StatusConfig) checkAddr() error {
	addr := s.AddrOrDefault()
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if IsLoopbackHost(host) || strings.TrimSpace(s.Token) != "" || s.AllowInsecure {
		return nil
	}
	return fmt.Errorf("non-loopback bind %q requires token or allow_insecure", addr)
}

func IsLoopbackHost(host string) bool {
	host = strings.TrimSpace(host)
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// SequenceSpec maps the job's schedule keys onto the scheduler's declarative form.
func (j JobConfig) SequenceSpec() scheduler.SequenceSpec {
	return scheduler.SequenceSpec{
		Kind:      j.Kind,
		Period:    j.Period,
		Fields:    j.Fields,
		Cron:      j.Cron,
		Start:     j.Start,
		Tolerance: j.Tolerance,
		Timezone:  j.Timezone,
	}
}

// scheduleField names the key an error most likely refers to.
func (j JobConfig) scheduleField() string {
	switch {
	case strings.TrimSpace(j.Period) != "":
		return "period"
	case strings.TrimSpace(j.Fields) != "":
		return "fields"
	case strings.TrimSpace(j.Cron) != "":
		return "cron"
	}
	return "kind"
}
