package model

// Job status
type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
)

var ValidStatuses = []JobStatus{
	JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed,
}

// IsValid reports whether s is one of the four known statuses.
func (s JobStatus) IsValid() bool {
	for _, v := range ValidStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status permits no further transitions.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job priority
type JobPriority string

const (
	PriorityLow    JobPriority = "LOW"
	PriorityMedium JobPriority = "MEDIUM"
	PriorityHigh   JobPriority = "HIGH"
)

var ValidPriorities = []JobPriority{
	PriorityLow, PriorityMedium, PriorityHigh,
}

// IsValid reports whether p is one of the three known priorities.
func (p JobPriority) IsValid() bool {
	for _, v := range ValidPriorities {
		if p == v {
			return true
		}
	}
	return false
}
