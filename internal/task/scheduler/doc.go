// Package scheduler drives the polling loop that fires jobs.
//
// The loop samples the clock every poll interval and calls Tick on every
// registered binding in registration order. A true Tick hands the job to the
// executor without waiting for it; execution belongs to internal/task/engine.
// Sequence state is touched only by the loop goroutine.
package scheduler
