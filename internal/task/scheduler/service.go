package scheduler

import (
	"context"
	"time"

	"cadence/internal/eventbus"
	rtsup "cadence/internal/runtime/supervisor"
	logx "cadence/pkg/logx"
)

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces time.Now as the loop's clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(cfg Config, exec Executor, log logx.Logger, bus eventbus.Bus, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	s := &Service{
		cfg:       cfg,
		log:       log,
		bus:       bus,
		exec:      exec,
		now:       time.Now,
		faultWarn: logx.NewThrottle(time.Minute, 1),
		enqWarn:   logx.NewThrottle(enqueueWarnThrottle, 1),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) PollInterval() time.Duration { return s.cfg.PollInterval }

// Start launches the polling loop under its own supervisor. It is a no-op if
// the loop is already running.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return
	}
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log))
	s.sup.GoRestart("scheduler.loop", s.run)
	s.log.Info("scheduler started", logx.Duration("poll", s.cfg.PollInterval), logx.Int("schedules", len(s.bindings)))
}

// Stop halts the loop. Jobs already handed to the executor keep running.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.mu.Unlock()
	if sup == nil {
		return
	}
	start := time.Now()
	if err := sup.Stop(ctx); err != nil {
		s.log.Warn("scheduler stop", logx.Err(err))
	}
	s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
}

func (s *Service) run(ctx context.Context) error {
	t := time.NewTicker(s.cfg.PollInterval)
	defer t.Stop()
	for {
		s.Poll(s.now())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}
