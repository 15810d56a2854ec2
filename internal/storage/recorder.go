package storage

import (
	"context"
	"sync/atomic"
	"time"

	"cadence/internal/eventbus"
	logx "cadence/pkg/logx"
)

const recorderBuffer = 1024

// Recorder copies bus events into a Store. It subscribes on construction so
// nothing published before Run starts is missed.
type Recorder struct {
	store Store
	log   logx.Logger
	warn  *logx.Throttle

	events <-chan eventbus.Event
	unsub  func()

	written atomic.Uint64
	failed  atomic.Uint64
}

func NewRecorder(store Store, bus eventbus.Bus, log logx.Logger) *Recorder {
	if bus == nil {
		bus = eventbus.Nop{}
	}
	ch, unsub := bus.Subscribe(recorderBuffer)
	return &Recorder{
		store:  store,
		log:    log.With(logx.String("comp", "journal")),
		warn:   logx.NewThrottle(10*time.Second, 1),
		events: ch,
		unsub:  unsub,
	}
}

// Run records events until ctx is done, then drains what is already buffered.
func (r *Recorder) Run(ctx context.Context) error {
	defer r.unsub()
	for {
		select {
		case <-ctx.Done():
			r.drain()
			return nil
		case ev, ok := <-r.events:
			if !ok {
				return nil
			}
			r.record(ev)
		}
	}
}

func (r *Recorder) drain() {
	for {
		select {
		case ev, ok := <-r.events:
			if !ok {
				return
			}
			r.record(ev)
		default:
			return
		}
	}
}

func (r *Recorder) record(ev eventbus.Event) {
	e, ok := EntryFromEvent(ev)
	if !ok || r.store == nil {
		return
	}
	// Writes outlive the run context so shutdown can flush.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	err := r.store.Append(ctx, e)
	cancel()
	if err != nil {
		r.failed.Add(1)
		if ok, suppressed := r.warn.AllowAt("append", time.Now()); ok {
			r.log.Warn("journal append failed", logx.Err(err), logx.String("type", e.Type), logx.Int("suppressed", suppressed))
		}
		return
	}
	r.written.Add(1)
}

// Written and Failed count Append outcomes.
func (r *Recorder) Written() uint64 { return r.written.Load() }
func (r *Recorder) Failed() uint64  { return r.failed.Load() }

// EntryFromEvent maps a bus event to a journal entry. Unknown payloads are skipped.
func EntryFromEvent(ev eventbus.Event) (Entry, bool) {
	switch d := ev.Data.(type) {
	case eventbus.Firing:
		return Entry{
			At:       ev.Time,
			Type:     ev.Type,
			Schedule: d.Schedule,
			Sequence: d.Sequence,
			Occurred: d.Occurred,
			TaskID:   d.TaskID,
			Error:    d.Err,
		}, true
	case eventbus.TaskRun:
		// Task names are schedule names; Task.Schedule holds the sequence text.
		return Entry{
			At:       ev.Time,
			Type:     ev.Type,
			Schedule: d.Name,
			Sequence: d.Schedule,
			TaskID:   d.TaskID,
			Occurred: d.Started,
			Duration: d.Duration,
			Error:    d.Err,
		}, true
	}
	return Entry{}, false
}
