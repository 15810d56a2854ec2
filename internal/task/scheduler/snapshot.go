package scheduler

import (
	"cadence/internal/schedule"
)

// Snapshot lists every binding with its next occurrence and counters. Next is
// computed from the service clock; Sequence.Next only reads immutable state,
// so this is safe while the loop runs.
func (s *Service) Snapshot() Snapshot {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]ScheduleInfo, 0, len(s.bindings))
	for _, b := range s.bindings {
		it := ScheduleInfo{
			Name:      b.name,
			Kind:      kindOf(b.seq),
			Sequence:  b.seq.String(),
			Anchor:    b.seq.Anchor(),
			Tolerance: b.seq.Tolerance(),
			LastFired: b.lastFired,
			Fired:     b.fired,
			Faults:    b.faults,
			Rejected:  b.rejected,
			LastError: b.lastErr,
		}
		if next, err := b.seq.Next(now); err != nil {
			it.NextErr = err.Error()
		} else {
			it.Next = next
		}
		items = append(items, it)
	}
	return Snapshot{
		Running:      s.sup != nil,
		PollInterval: s.cfg.PollInterval,
		Polls:        s.polls,
		Schedules:    items,
	}
}

func kindOf(seq schedule.Sequence) string {
	switch seq.(type) {
	case *schedule.Periodic:
		return "periodic"
	case *schedule.Regular:
		return "regular"
	}
	return "unknown"
}
