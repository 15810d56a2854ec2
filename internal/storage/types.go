package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// DefaultMaxEntries bounds the sqlite journal; older rows are pruned.
const DefaultMaxEntries = 100_000

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	MaxEntries  int           // sqlite only; 0 means DefaultMaxEntries
}

// Entry is one journal line. Keep it compact and schema-stable.
type Entry struct {
	At       time.Time     `json:"at"`
	Type     string        `json:"type"`
	Schedule string        `json:"schedule,omitempty"`
	Sequence string        `json:"sequence,omitempty"`
	Occurred time.Time     `json:"occurred,omitempty"`
	TaskID   string        `json:"task_id,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Error    string        `json:"error,omitempty"`
}
