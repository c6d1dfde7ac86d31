package model

import "time"

// Payload is the open-ended document attached to a job at creation.
// Well-known notification-routing keys are read through the accessors below.
type Payload map[string]any

// Keys the runner inspects when building the completion email.
const (
	PayloadKeyUserEmail = "userEmail"
	PayloadKeyUserID    = "userId"
	PayloadKeyOverview  = "overview"
	PayloadKeyTimeline  = "timeline"
)

// StringField returns the payload value for key if it is a non-empty string.
func (p Payload) StringField(key string) (string, bool) {
	if p == nil {
		return "", false
	}
	v, ok := p[key].(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// StringFieldOr returns the payload value for key, or fallback when absent.
func (p Payload) StringFieldOr(key, fallback string) string {
	if v, ok := p.StringField(key); ok {
		return v
	}
	return fallback
}

// Job represents a tracked unit of work and its lifecycle state
type Job struct {
	ID          string      `json:"id"`
	TaskName    string      `json:"taskName"`
	Priority    JobPriority `json:"priority"`
	Payload     Payload     `json:"payload"`
	Status      JobStatus   `json:"status"`
	CompletedAt *time.Time  `json:"completedAt"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// CreateJobRequest represents the request to create a job
type CreateJobRequest struct {
	TaskName string      `json:"taskName" validate:"required"`
	Priority JobPriority `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH"`
	Payload  Payload     `json:"payload"`
}

// ListJobsFilter narrows job listings; zero values mean no filtering.
type ListJobsFilter struct {
	Status   JobStatus
	Priority JobPriority
}

// RunJobResponse represents the acknowledgment returned when a run is triggered
type RunJobResponse struct {
	Message string    `json:"message"`
	JobID   string    `json:"jobId"`
	Status  JobStatus `json:"status"`
}

// JobSnapshot is the terminal view of a job delivered to notification targets
type JobSnapshot struct {
	JobID       string      `json:"jobId"`
	TaskName    string      `json:"taskName"`
	Priority    JobPriority `json:"priority"`
	Payload     Payload     `json:"payload"`
	CompletedAt *time.Time  `json:"completedAt"`
	Status      JobStatus   `json:"status"`
}

// Snapshot builds the notification view of the job.
func (j *Job) Snapshot() *JobSnapshot {
	return &JobSnapshot{
		JobID:       j.ID,
		TaskName:    j.TaskName,
		Priority:    j.Priority,
		Payload:     j.Payload,
		CompletedAt: j.CompletedAt,
		Status:      j.Status,
	}
}
