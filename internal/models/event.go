package models

import "time"

// JobEvent is published on every stage or progress write
type JobEvent struct {
	JobID        string    `json:"job_id"`
	Owner        string    `json:"owner"`
	Stage        Stage     `json:"stage"`
	Progress     int       `json:"progress"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Title        string    `json:"title,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}
