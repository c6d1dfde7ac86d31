package model

import "time"

// WebSocket message types
const (
	WSMessageTypeStatus = "status"
	WSMessageTypePing   = "ping"
	WSMessageTypePong   = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSStatusMessage announces a job status change to subscribers
type WSStatusMessage struct {
	Type        string     `json:"type"`
	JobID       string     `json:"jobId"`
	Status      JobStatus  `json:"status"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}
