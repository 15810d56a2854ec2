// Package app wires configuration, logging, the executor, the scheduler loop,
// the firing journal and the status server into one daemon.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cadence/internal/config"
	"cadence/internal/eventbus"
	rtsup "cadence/internal/runtime/supervisor"
	"cadence/internal/status"
	"cadence/internal/storage"
	"cadence/internal/task/engine"
	"cadence/internal/task/scheduler"
	logx "cadence/pkg/logx"

	"github.com/coreos/go-systemd/v22/daemon"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store storage.Store
	rec   *storage.Recorder

	engine *engine.Service
	sched  *scheduler.Service
	status *status.Service
}

// New loads and validates the config at cfgPath and builds every component.
// Nothing runs until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", cfgPath, err)
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg.Logging))
	log = log.With(logx.String("comp", "app"))

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     eventbus.New(),
	}
	if err := a.build(cfg); err != nil {
		_ = a.close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config) error {
	root := a.logs.Logger()

	// Storage (optional)
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return err
	} else if enabled {
		st, err := storage.Open(sc, root.With(logx.String("comp", "storage")))
		if err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		a.store = st
		a.rec = storage.NewRecorder(st, a.bus, root)
		a.log.Info("journal enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	engCfg, err := mapEngineConfig(cfg)
	if err != nil {
		return err
	}
	a.engine = engine.New(engCfg, root.With(logx.String("comp", "engine")), a.bus)

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return err
	}
	a.sched = scheduler.New(schedCfg, a.engine, root.With(logx.String("comp", "scheduler")), a.bus)

	jobs, err := BuildJobs(cfg, time.Now())
	if err != nil {
		return err
	}
	for _, j := range jobs {
		if err := a.sched.Add(j.Name, j.Seq, j.Task); err != nil {
			return fmt.Errorf("job %s: %w", j.Name, err)
		}
	}

	if cfg.Status.Enabled {
		a.status = status.New(mapStatusConfig(cfg), status.Sources{
			Scheduler: a.sched,
			Engine:    a.engine,
			Runtime:   supervisorView{a},
			Journal:   a.store,
		}, root)
	}
	return nil
}

// supervisorView resolves the app supervisor lazily; it only exists after Start.
type supervisorView struct{ a *App }

func (v supervisorView) Snapshot() rtsup.Snapshot { return v.a.sup.Snapshot() }

// Scheduler exposes the loop for status and tests.
func (a *App) Scheduler() *scheduler.Service { return a.sched }

func (a *App) Engine() *engine.Service { return a.engine }

func (a *App) Journal() storage.Store { return a.store }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	c := a.sup.Context()

	if a.rec != nil {
		a.sup.Go("journal.recorder", a.rec.Run)
	}
	// Engine first so the first poll already has workers.
	a.engine.Start(c)
	a.sched.Start(c)
	if a.status != nil {
		if err := a.status.Start(c); err != nil {
			return err
		}
	}

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.startWatchdog()
	a.sdNotify(daemon.SdNotifyReady)
	a.log.Info("app started", logx.Int("jobs", len(a.sched.Snapshot().Schedules)), logx.String("config", a.cfgPath))
	return nil
}

// reloadLoop applies logging changes live. Every other section is fixed for
// the process lifetime; changes there are reported as needing a restart.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}

			sections, attrs, jobsChanged := config.SummarizeConfigChange(lastApplied, newCfg)
			lastApplied = newCfg
			if len(sections) == 0 {
				a.log.Info("config reloaded (no changes)")
				continue
			}

			restart := make([]string, 0, len(sections))
			for _, s := range sections {
				if s == "logging" {
					a.sdNotify(daemon.SdNotifyReloading)
					a.logs.Apply(mapLoggingConfig(newCfg.Logging))
					a.sdNotify(daemon.SdNotifyReady)
					continue
				}
				restart = append(restart, s)
			}
			if len(restart) > 0 {
				a.log.Warn("config changes need a restart to take effect",
					logx.String("sections", strings.Join(restart, ",")),
					logx.Any("jobs", jobsChanged),
				)
			}
			fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
			a.log.Info("config reloaded", fields...)
		}
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return a.close()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sdNotify(daemon.SdNotifyStopping)

	// Helper: run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	// Scheduler first so nothing new is enqueued, then drain the engine.
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("engine", 5*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	step("status", time.Second, func(c context.Context) error {
		if a.status != nil {
			a.status.Stop(c)
		}
		return nil
	})

	// Cancel the rest (config watch, recorder, watchdog); the recorder flushes on the way out.
	a.sup.Cancel()
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	return a.close()
}

func (a *App) close() error {
	var err error
	if a.store != nil {
		err = a.store.Close()
		a.store = nil
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return err
}
