package config

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "cadence/pkg/logx"

	"github.com/fsnotify/fsnotify"
)

const (
	reloadDebounce   = 250 * time.Millisecond
	watchBackoffBase = 250 * time.Millisecond
	watchBackoffMax  = 5 * time.Second
)

// Watch follows the config file until ctx is done. Every change that parses,
// validates and differs from the committed content is committed and
// published. The file's directory is watched so editors that replace the file
// by rename are followed; a broken watcher is recreated with jittered backoff.
func (m *ConfigManager) Watch(ctx context.Context) error {
	dir, file := filepath.Dir(m.path), filepath.Base(m.path)
	log := m.log.With(logx.String("path", m.path))
	rl := &reloader{m: m, log: log}
	defer rl.stop()

	bo := newBackoff(watchBackoffBase, watchBackoffMax)
	for ctx.Err() == nil {
		err := m.watchSession(ctx, dir, file, rl, bo.reset)
		if ctx.Err() != nil {
			break
		}
		wait := bo.next()
		log.Warn("config watcher stopped; restarting", logx.Err(err), logx.Duration("backoff", wait))
		select {
		case <-ctx.Done():
		case <-time.After(wait):
		}
	}
	return nil
}

// watchSession runs one fsnotify watcher until it breaks or ctx ends.
func (m *ConfigManager) watchSession(ctx context.Context, dir, file string, rl *reloader, started func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch init: %w", err)
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	started()
	rl.log.Debug("config watcher started", logx.String("dir", dir))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return errors.New("event channel closed")
			}
			if strings.EqualFold(filepath.Base(ev.Name), file) {
				rl.schedule(ctx)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return errors.New("error channel closed")
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				rl.log.Warn("config watch overflow; forcing reload", logx.Err(err))
				rl.schedule(ctx)
				continue
			}
			if errors.Is(err, fsnotify.ErrClosed) {
				return err
			}
			rl.log.Warn("config watch error", logx.Err(err))
		}
	}
}

// reloader coalesces bursts of file events into one reload.
type reloader struct {
	m   *ConfigManager
	log logx.Logger

	mu    sync.Mutex
	timer *time.Timer
}

func (r *reloader) schedule(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(reloadDebounce, func() {
		if ctx.Err() == nil {
			r.reload()
		}
	})
}

func (r *reloader) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
	}
}

func (r *reloader) reload() {
	cfg, err := r.m.Parse()
	if err != nil {
		r.log.Warn("config parse failed", logx.Err(err))
		return
	}
	h := hashConfig(cfg)
	if h != 0 && h == r.m.committedHash() {
		r.log.Debug("config unchanged; skipping publish")
		return
	}
	if err := cfg.Validate(); err != nil {
		r.log.Warn("config rejected", logx.Err(err))
		return
	}
	r.m.Commit(cfg)
	r.m.publish(cfg)
	r.log.Debug("config published", logx.String("hash", fmt.Sprintf("%x", h)))
}

type backoff struct {
	base, max, cur time.Duration
	rng            *rand.Rand
}

func newBackoff(base, max time.Duration) *backoff {
	return &backoff{base: base, max: max, cur: base, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (b *backoff) reset() { b.cur = b.base }

// next returns the current delay plus up to 50% jitter and doubles the delay.
func (b *backoff) next() time.Duration {
	wait := b.cur + time.Duration(b.rng.Int63n(int64(b.cur/2)+1))
	b.cur = min(b.cur*2, b.max)
	return wait
}
