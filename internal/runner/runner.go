// Package runner drives one execution cycle of a job: PENDING to RUNNING on
// demand, then RUNNING to a terminal state after the simulated work delay,
// followed by best-effort webhook and email notifications.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jobdeck/api/internal/lifecycle"
	"github.com/jobdeck/api/internal/model"
	"github.com/jobdeck/api/internal/scheduler"
	"github.com/jobdeck/api/internal/sink"
	"github.com/jobdeck/api/internal/store"
)

// Scheduler arranges for Finalize to run for a job after the given delay.
// Satisfied by scheduler.Timer and scheduler.Asynq.
type Scheduler interface {
	Schedule(ctx context.Context, jobID string, delay time.Duration) error
}

// StatusBroadcaster pushes job status changes to interested subscribers.
type StatusBroadcaster interface {
	BroadcastStatus(job *model.Job)
}

// Runner orchestrates job execution cycles.
type Runner struct {
	store   *store.JobStore
	engine  *lifecycle.Engine
	webhook sink.WebhookSink
	email   sink.EmailSink
	hub     StatusBroadcaster
	sched   Scheduler
	delay   time.Duration
	log     *logrus.Entry
}

// New creates a runner using an in-process timer scheduler by default.
func New(s *store.JobStore, e *lifecycle.Engine, webhook sink.WebhookSink, email sink.EmailSink, hub StatusBroadcaster, delay time.Duration) *Runner {
	r := &Runner{
		store:   s,
		engine:  e,
		webhook: webhook,
		email:   email,
		hub:     hub,
		delay:   delay,
		log:     logrus.WithField("component", "runner"),
	}
	r.sched = scheduler.NewTimer(r.finalizeInBackground)
	return r
}

// SetScheduler replaces the default timer scheduler. Used to swap in the
// durable asynq scheduler, or a fake in tests.
func (r *Runner) SetScheduler(s Scheduler) {
	r.sched = s
}

// Start transitions a PENDING job to RUNNING and schedules its finalization.
// It returns as soon as the RUNNING transition has committed; the terminal
// transition happens later, out of band. The transition table is the sole
// guard against double execution: a job that is already RUNNING or terminal
// fails the PENDING check with an InvalidTransitionError.
func (r *Runner) Start(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := r.store.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	job, err = r.engine.Transition(ctx, job, model.JobStatusRunning)
	if err != nil {
		return nil, err
	}

	r.broadcast(job)
	r.log.WithField("jobId", job.ID).Info("job execution started")

	if err := r.sched.Schedule(ctx, job.ID, r.delay); err != nil {
		// The job is RUNNING but will never finalize; fail it rather than
		// leave it stuck.
		r.log.WithField("jobId", job.ID).WithError(err).Error("failed to schedule finalization")
		if failed, ferr := r.engine.Transition(ctx, job, model.JobStatusFailed); ferr == nil {
			r.broadcast(failed)
		}
		return nil, fmt.Errorf("failed to schedule job execution: %w", err)
	}

	return job, nil
}

// Finalize completes one deferred execution step. The job is re-fetched by id
// so a row changed since Start was called is seen in its current state. All
// failures are contained here: the webhook and email sinks are best-effort,
// and a failed COMPLETED transition downgrades to a FAILED attempt that is
// itself logged and swallowed.
func (r *Runner) Finalize(ctx context.Context, jobID string) {
	log := r.log.WithField("jobId", jobID)
	log.Info("finishing job execution")

	job, err := r.store.GetByID(ctx, jobID)
	if err != nil {
		log.WithError(err).Error("failed to load job for finalization")
		return
	}

	job, err = r.engine.Transition(ctx, job, model.JobStatusCompleted)
	if err != nil {
		log.WithError(err).Error("failed to complete job")
		r.failJob(ctx, jobID)
		return
	}

	r.broadcast(job)

	if ok := r.webhook.Deliver(ctx, job.Snapshot()); !ok {
		log.Warn("webhook delivery did not succeed")
	}

	if to, ok := job.Payload.StringField(model.PayloadKeyUserEmail); ok {
		subject := fmt.Sprintf("Job Completed: %s", job.TaskName)
		body := fmt.Sprintf("Hello User %s,\n\nYour job is complete.\n\nOverview: %s\nTimeline: %s",
			job.Payload.StringFieldOr(model.PayloadKeyUserID, "Unknown"),
			job.Payload.StringFieldOr(model.PayloadKeyOverview, "N/A"),
			job.Payload.StringFieldOr(model.PayloadKeyTimeline, "N/A"),
		)
		if ok := r.email.Send(ctx, to, subject, body); !ok {
			log.Warn("email delivery did not succeed")
		}
	}

	log.Info("job cycle finished")
}

// failJob attempts to mark a job FAILED after a finalization error. A failure
// here is logged and swallowed; the job keeps whatever state the store holds.
func (r *Runner) failJob(ctx context.Context, jobID string) {
	job, err := r.store.GetByID(ctx, jobID)
	if err != nil {
		r.log.WithField("jobId", jobID).WithError(err).Error("failed to load job for failure marking")
		return
	}

	job, err = r.engine.Transition(ctx, job, model.JobStatusFailed)
	if err != nil {
		r.log.WithField("jobId", jobID).WithError(err).Error("failed to mark job as failed")
		return
	}

	r.broadcast(job)
}

// finalizeInBackground runs Finalize on a timer callback. The recover guard
// keeps a panic in the deferred path from taking down the process.
func (r *Runner) finalizeInBackground(jobID string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.WithField("jobId", jobID).Errorf("panic during finalization: %v", rec)
		}
	}()
	r.Finalize(context.Background(), jobID)
}

func (r *Runner) broadcast(job *model.Job) {
	if r.hub != nil {
		r.hub.BroadcastStatus(job)
	}
}
