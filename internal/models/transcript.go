package models

import "time"

// Segment is one timed span of a transcript
type Segment struct {
	From string `json:"from"` // e.g. "00:00:01,240"
	To   string `json:"to"`
	Text string `json:"text"`
}

// Transcript is the transcription output for a job
type Transcript struct {
	JobID     string    `json:"job_id" badgerhold:"key"`
	Text      string    `json:"text"`
	Segments  []Segment `json:"segments,omitempty"`
	Language  string    `json:"language,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Notes is the synthesized output for a job
type Notes struct {
	JobID     string    `json:"job_id" badgerhold:"key"`
	Content   string    `json:"content"`
	Format    string    `json:"format"` // Always "markdown"
	Provider  string    `json:"provider,omitempty"`
	Model     string    `json:"model,omitempty"`
	Parts     int       `json:"parts"`
	CreatedAt time.Time `json:"created_at"`
}
