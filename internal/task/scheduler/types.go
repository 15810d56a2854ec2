package scheduler

import (
	"errors"
	"sync"
	"time"

	"cadence/internal/eventbus"
	rtsup "cadence/internal/runtime/supervisor"
	"cadence/internal/schedule"
	"cadence/internal/task/engine"
	logx "cadence/pkg/logx"
)

// DefaultPollInterval is how often the loop samples the clock.
const DefaultPollInterval = 100 * time.Millisecond

var (
	// ErrPollTooCoarse rejects a sequence whose tolerance window is not
	// strictly wider than the poll interval; such a sequence could miss
	// occurrences between two polls.
	ErrPollTooCoarse = errors.New("tolerance must exceed the poll interval")
	ErrDuplicateName = errors.New("schedule name already registered")
)

// Config controls the scheduler loop.
type Config struct {
	PollInterval time.Duration
}

// Executor accepts fired jobs. Enqueue must not block.
type Executor interface {
	Enqueue(t engine.Task) error
}

type binding struct {
	name string
	seq  schedule.Sequence
	task engine.Task

	// tick is seq.Tick; kept separate so a faulting sequence can be isolated.
	tick func(time.Time) bool

	// Guarded by Service.mu.
	fired     uint64
	faults    uint64
	rejected  uint64
	lastFired time.Time
	lastErr   string
}

type Service struct {
	mu sync.Mutex

	cfg  Config
	log  logx.Logger
	bus  eventbus.Bus
	exec Executor
	now  func() time.Time

	bindings []*binding
	polls    uint64

	faultWarn *logx.Throttle
	enqWarn   *logx.Throttle

	sup *rtsup.Supervisor
}

type ScheduleInfo struct {
	Name      string        `json:"name"`
	Kind      string        `json:"kind"`
	Sequence  string        `json:"sequence"`
	Anchor    time.Time     `json:"anchor"`
	Tolerance time.Duration `json:"tolerance"`
	Next      time.Time     `json:"next,omitempty"`
	NextErr   string        `json:"next_error,omitempty"`
	LastFired time.Time     `json:"last_fired,omitempty"`
	Fired     uint64        `json:"fired"`
	Faults    uint64        `json:"faults"`
	Rejected  uint64        `json:"rejected"`
	LastError string        `json:"last_error,omitempty"`
}

type Snapshot struct {
	Running      bool           `json:"running"`
	PollInterval time.Duration  `json:"poll_interval"`
	Polls        uint64         `json:"polls"`
	Schedules    []ScheduleInfo `json:"schedules"`
}
