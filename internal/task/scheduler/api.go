package scheduler

import (
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"cadence/internal/eventbus"
	"cadence/internal/schedule"
	"cadence/internal/task/engine"
	logx "cadence/pkg/logx"
)

// previewCount is how many upcoming occurrences are logged at registration.
const previewCount = 3

// Add binds task to seq under name. Bindings are polled in the order they
// were added and live for the lifetime of the Service.
func (s *Service) Add(name string, seq schedule.Sequence, task engine.Task) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("schedule name required")
	}
	if seq == nil {
		return fmt.Errorf("schedule %q: sequence required", name)
	}
	if task.Run == nil {
		return fmt.Errorf("schedule %q: job required", name)
	}
	if tol := seq.Tolerance(); tol <= s.cfg.PollInterval {
		return fmt.Errorf("schedule %q: %w (tolerance %s, poll %s)", name, ErrPollTooCoarse, tol, s.cfg.PollInterval)
	}

	task.Name = name
	task.Schedule = seq.String()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bindings {
		if b.name == name {
			return fmt.Errorf("schedule %q: %w", name, ErrDuplicateName)
		}
	}
	s.bindings = append(s.bindings, &binding{name: name, seq: seq, task: task, tick: seq.Tick})

	fields := []logx.Field{logx.String("schedule", name), logx.String("sequence", seq.String()), logx.Duration("tolerance", seq.Tolerance())}
	if s.log.Enabled(logx.LevelDebug) {
		fields = append(fields, logx.String("next", s.previewLocked(seq)))
	}
	s.log.Debug("schedule registered", fields...)
	return nil
}

func (s *Service) previewLocked(seq schedule.Sequence) string {
	next, err := schedule.Upcoming(seq, s.now(), previewCount)
	parts := make([]string, 0, len(next)+1)
	for _, t := range next {
		parts = append(parts, t.Format("2006-01-02 15:04:05 MST"))
	}
	if err != nil {
		parts = append(parts, err.Error())
	}
	return strings.Join(parts, ", ")
}

// Poll runs one loop cycle at now: every binding is ticked in order and each
// one that fires is handed to the executor. A panic inside one binding is
// contained to that binding for this cycle.
func (s *Service) Poll(now time.Time) {
	s.mu.Lock()
	bindings := append([]*binding(nil), s.bindings...)
	s.polls++
	s.mu.Unlock()

	for _, b := range bindings {
		s.pollOne(b, now)
	}
}

func (s *Service) pollOne(b *binding, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.reportFault(b, now, r, string(debug.Stack()))
		}
	}()

	if !b.tick(now) {
		return
	}
	occurred := now
	if t, fired := b.seq.LastFired(); fired {
		occurred = t
	}

	task := b.task
	task.ID = uuid.NewString()

	s.mu.Lock()
	b.fired++
	b.lastFired = occurred
	s.mu.Unlock()

	firing := eventbus.Firing{Schedule: b.name, Sequence: task.Schedule, Occurred: occurred, TaskID: task.ID}
	if err := s.dispatch(task); err != nil {
		s.mu.Lock()
		b.rejected++
		b.lastErr = err.Error()
		s.mu.Unlock()
		firing.Err = err.Error()
		s.bus.Publish(eventbus.Event{Type: eventbus.ScheduleRejected, Time: now, Data: firing})
		s.reportEnqueueError(b.name, now, err)
		return
	}
	s.bus.Publish(eventbus.Event{Type: eventbus.ScheduleFired, Time: now, Data: firing})
	s.log.Debug("schedule fired", logx.String("schedule", b.name), logx.Time("occurred", occurred), logx.String("task_id", task.ID))
}

func (s *Service) dispatch(t engine.Task) error {
	if s.exec == nil {
		return engine.ErrStopped
	}
	return s.exec.Enqueue(t)
}
