package config

// Config is the on-disk configuration, YAML or JSON. Unknown keys are
// rejected.
//
// Every duration is duration text ("1h:30m", "250ml") or a Go duration
// string ("90s").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Engine    EngineConfig    `json:"engine"`
	Storage   StorageConfig   `json:"storage"`
	Status    StatusConfig    `json:"status"`
	Jobs      []JobConfig     `json:"jobs"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls the polling loop.
//
// Defaults:
//   - poll_interval: "100ml"
//   - timezone: process local time
type SchedulerConfig struct {
	PollInterval string `json:"poll_interval,omitempty"`
	// Timezone is the IANA zone calendar schedules use unless a job sets its own.
	Timezone string `json:"timezone,omitempty"`
}

// EngineConfig controls the executor.
//
// Defaults (when fields are omitted/zero):
//   - workers: 4 (dispatchers; each run gets its own goroutine)
//   - queue_size: 256
//   - max_concurrent: unlimited
//   - default_timeout: disabled
//   - max_queue_delay: disabled
//   - history_size: 200
type EngineConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	MaxConcurrent  int    `json:"max_concurrent,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	MaxQueueDelay  string `json:"max_queue_delay,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
}

// StorageConfig selects where firings are journaled.
//
// Example:
//
//	storage: { driver: sqlite, path: ./cadence.db }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"` // "none" (default) | "sqlite" | "file"
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// StatusConfig controls the optional HTTP status server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:8089").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type StatusConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"` // bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
}

// JobConfig declares one scheduled job. Exactly one of period, fields and
// cron selects the sequence; kind may name it explicitly.
type JobConfig struct {
	Name      string `json:"name"`
	Kind      string `json:"kind,omitempty"`
	Period    string `json:"period,omitempty"`
	Fields    string `json:"fields,omitempty"`
	Cron      string `json:"cron,omitempty"`
	Start     string `json:"start,omitempty"`
	Tolerance string `json:"tolerance,omitempty"`
	Timezone  string `json:"timezone,omitempty"`

	Command string `json:"command"`
	Timeout string `json:"timeout,omitempty"`
}
