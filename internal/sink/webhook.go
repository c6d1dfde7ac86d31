package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jobdeck/api/internal/model"
)

// HTTPWebhook posts terminal job snapshots to a configured target URL.
type HTTPWebhook struct {
	httpClient *http.Client
	targetURL  string
	log        *logrus.Entry
}

// NewHTTPWebhook creates a webhook sink. The timeout bounds the whole
// request, connection setup included.
func NewHTTPWebhook(targetURL string, timeout time.Duration) *HTTPWebhook {
	return &HTTPWebhook{
		httpClient: &http.Client{Timeout: timeout},
		targetURL:  targetURL,
		log:        logrus.WithField("component", "webhook"),
	}
}

// IsConfigured reports whether a target URL has been set.
func (w *HTTPWebhook) IsConfigured() bool {
	return w.targetURL != ""
}

// Deliver posts the snapshot as JSON. Returns false on any failure; nothing
// is retried. A production hardening would push failures onto a durable
// retry queue.
func (w *HTTPWebhook) Deliver(ctx context.Context, snapshot *model.JobSnapshot) bool {
	if !w.IsConfigured() {
		w.log.WithField("jobId", snapshot.JobID).Debug("no target URL configured, skipping delivery")
		return false
	}

	body, err := json.Marshal(snapshot)
	if err != nil {
		w.log.WithField("jobId", snapshot.JobID).WithError(err).Error("failed to marshal snapshot")
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.targetURL, bytes.NewReader(body))
	if err != nil {
		w.log.WithField("jobId", snapshot.JobID).WithError(err).Error("failed to build request")
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		w.log.WithField("jobId", snapshot.JobID).WithError(err).Error("webhook delivery failed")
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		w.log.WithFields(logrus.Fields{
			"jobId":  snapshot.JobID,
			"status": resp.StatusCode,
		}).Error("webhook target returned non-2xx status")
		return false
	}

	w.log.WithField("jobId", snapshot.JobID).Info("webhook delivered")
	return true
}
