// Package scheduler provides the deferred-execution capability used by the
// job runner to finalize jobs after the simulated work delay.
package scheduler

import (
	"context"
	"time"
)

// FinalizeFunc is invoked when a scheduled finalization fires.
type FinalizeFunc func(jobID string)

// Timer schedules finalizations on in-process timers. Pending timers do not
// survive a process restart; the asynq scheduler is the durable alternative.
type Timer struct {
	finalize FinalizeFunc
}

func NewTimer(fn FinalizeFunc) *Timer {
	return &Timer{finalize: fn}
}

// Schedule arranges for the finalize callback to run for jobID after delay.
// The timer is not cancellable.
func (t *Timer) Schedule(ctx context.Context, jobID string, delay time.Duration) error {
	time.AfterFunc(delay, func() {
		t.finalize(jobID)
	})
	return nil
}
