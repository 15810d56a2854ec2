package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"cadence/internal/eventbus"
	logx "cadence/pkg/logx"
)

// slowTaskThreshold promotes completion logs from debug to info.
const slowTaskThreshold = 750 * time.Millisecond

// worker dispatches queued tasks. Each run gets its own goroutine; with a
// MaxConcurrent cap the dispatcher first waits for a free slot.
func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue chan queuedTask, slots chan struct{}) {
	for {
		// A closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case t := <-queue:
			if !acquireSlot(ctx, stopCh, slots) {
				return
			}
			s.running.Add(1)
			atomic.AddInt32(&s.inFlight, 1)
			go func() {
				defer s.running.Done()
				defer releaseSlot(slots)
				defer atomic.AddInt32(&s.inFlight, -1)
				s.execOne(ctx, t)
			}()
		}
	}
}

func acquireSlot(ctx context.Context, stopCh <-chan struct{}, slots chan struct{}) bool {
	if slots == nil {
		return true
	}
	select {
	case slots <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	case <-stopCh:
		return false
	}
}

func releaseSlot(slots chan struct{}) {
	if slots != nil {
		<-slots
	}
}

func (s *Service) execOne(ctx context.Context, qt queuedTask) {
	start := time.Now()
	queueDelay := max(start.Sub(qt.enqueuedAt), 0)
	task := qt.task

	s.mu.Lock()
	maxDelay := s.cfg.MaxQueueDelay
	s.mu.Unlock()

	if maxDelay > 0 && queueDelay > maxDelay {
		s.onStaleDropped(start, task, queueDelay)
		return
	}

	log := s.log.With(logx.String("task", task.Name), logx.String("id", task.ID))
	log.Debug("task started", logx.Duration("queue_delay", queueDelay))
	s.bus.Publish(eventbus.Event{Type: eventbus.TaskStarted, Time: start, Data: eventbus.TaskRun{
		TaskID: task.ID, Name: task.Name, Schedule: task.Schedule, Started: start,
	}})

	runCtx := ctx
	var cancel context.CancelFunc
	if qt.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, qt.timeout)
	}
	err := func() (err error) {
		// A panicking task must not take the worker down with it.
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				log.Error("task panicked", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			}
		}()
		return task.Run(runCtx)
	}()
	if cancel != nil {
		cancel()
	}

	dur := time.Since(start)
	item := HistoryItem{ID: task.ID, Name: task.Name, Schedule: task.Schedule, Started: start, QueueDelay: queueDelay, Duration: dur}
	run := eventbus.TaskRun{TaskID: task.ID, Name: task.Name, Schedule: task.Schedule, Started: start, Duration: dur}
	if err != nil {
		atomic.AddUint64(&s.failed, 1)
		item.Error = err.Error()
		run.Err = item.Error
		log.Warn("task failed", logx.Err(err), logx.Duration("queue_delay", queueDelay), logx.Duration("dur", dur))
	} else {
		atomic.AddUint64(&s.completed, 1)
		if dur >= slowTaskThreshold {
			log.Info("task completed", logx.Duration("queue_delay", queueDelay), logx.Duration("dur", dur))
		} else {
			log.Debug("task completed", logx.Duration("queue_delay", queueDelay), logx.Duration("dur", dur))
		}
	}
	s.bus.Publish(eventbus.Event{Type: eventbus.TaskFinished, Time: time.Now(), Data: run})
	s.record(item)
}
