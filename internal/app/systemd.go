package app

import (
	"context"
	"time"

	logx "cadence/pkg/logx"

	"github.com/coreos/go-systemd/v22/daemon"
)

// sdNotify is a no-op outside a systemd unit with NotifyAccess.
func (a *App) sdNotify(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		a.log.Debug("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		a.log.Debug("sd_notify", logx.String("state", state))
	}
}

// watchdog pings systemd at half the configured interval, but only while the
// scheduler loop keeps polling. A stuck loop lets the watchdog expire.
func (a *App) watchdog(ctx context.Context, interval time.Duration) error {
	tick := time.NewTicker(interval / 2)
	defer tick.Stop()
	last := a.sched.Snapshot().Polls
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			polls := a.sched.Snapshot().Polls
			if polls == last {
				a.log.Warn("scheduler loop not polling; withholding watchdog ping", logx.Uint64("polls", polls))
				continue
			}
			last = polls
			a.sdNotify(daemon.SdNotifyWatchdog)
		}
	}
}

func (a *App) startWatchdog() {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		a.log.Warn("systemd watchdog config invalid", logx.Err(err))
		return
	}
	if interval <= 0 {
		return
	}
	a.log.Info("systemd watchdog enabled", logx.Duration("interval", interval))
	a.sup.Go("systemd.watchdog", func(c context.Context) error {
		return a.watchdog(c, interval)
	})
}
