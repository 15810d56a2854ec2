package scheduler

import (
	"fmt"
	"time"

	"cadence/internal/eventbus"
	logx "cadence/pkg/logx"
)

const enqueueWarnThrottle = 5 * time.Second

func (s *Service) reportEnqueueError(name string, now time.Time, err error) {
	ok, suppressed := s.enqWarn.AllowAt(name, now)
	if !ok {
		return
	}
	// Queue full / stopping are important but can be bursty.
	s.log.Warn("schedule failed to enqueue task", logx.String("schedule", name), logx.Err(err), logx.Int("suppressed", suppressed))
}

// reportFault records a panic raised while polling one binding. It is
// treated as "no occurrence" for that binding in this cycle.
func (s *Service) reportFault(b *binding, now time.Time, p any, stack string) {
	msg := fmt.Sprint(p)
	s.mu.Lock()
	b.faults++
	b.lastErr = "panic: " + msg
	s.mu.Unlock()

	s.bus.Publish(eventbus.Event{Type: eventbus.ScheduleFault, Time: now, Data: eventbus.Firing{
		Schedule: b.name, Sequence: b.task.Schedule, Occurred: now, Err: msg,
	}})

	ok, suppressed := s.faultWarn.AllowAt(b.name, now)
	if !ok {
		return
	}
	s.log.Error("schedule poll panicked",
		logx.String("schedule", b.name),
		logx.Any("panic", p),
		logx.Int("suppressed", suppressed),
		logx.Stack(stack),
	)
}
