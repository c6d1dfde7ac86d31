// Package sink provides best-effort delivery of job-completion notifications.
// Sinks never return errors to callers: failures are logged and reported as a
// boolean outcome, and never affect a job's lifecycle state.
package sink

import (
	"context"

	"github.com/jobdeck/api/internal/model"
)

// WebhookSink delivers a terminal job snapshot to an external endpoint.
type WebhookSink interface {
	Deliver(ctx context.Context, snapshot *model.JobSnapshot) bool
}

// EmailSink delivers a notification email.
type EmailSink interface {
	Send(ctx context.Context, to, subject, body string) bool
}
