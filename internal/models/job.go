// -----------------------------------------------------------------------
// Job - Durable record of one media -> transcript -> notes request
// -----------------------------------------------------------------------

package models

import (
	"time"
)

// Stage is the job state-machine variable.
//
// Lifecycle:
//
//	pending -> acquiring -> transcribing -> generating -> completed
//
// failed and cancelled are reachable from any non-terminal stage.
type Stage string

const (
	StagePending      Stage = "pending"
	StageAcquiring    Stage = "acquiring"
	StageTranscribing Stage = "transcribing"
	StageGenerating   Stage = "generating"
	StageCompleted    Stage = "completed"
	StageFailed       Stage = "failed"
	StageCancelled    Stage = "cancelled"
)

// IsTerminal reports whether no further transitions can occur from s
func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s == StageFailed || s == StageCancelled
}

// IsCancellable reports whether a job in stage s may be cancelled
func (s Stage) IsCancellable() bool {
	switch s {
	case StagePending, StageAcquiring, StageTranscribing, StageGenerating:
		return true
	}
	return false
}

// IsRestartable reports whether a job in stage s may be run again
func (s Stage) IsRestartable() bool {
	return s == StageFailed || s == StageCancelled
}

// IsValid reports whether s is a known stage
func (s Stage) IsValid() bool {
	return s.IsCancellable() || s.IsTerminal()
}

// NonTerminalStages lists the stages a live worker can leave a record in
func NonTerminalStages() []Stage {
	return []Stage{StagePending, StageAcquiring, StageTranscribing, StageGenerating}
}

// SourceKind distinguishes remote locators from uploaded artifacts
type SourceKind string

const (
	SourceRemote SourceKind = "remote"
	SourceLocal  SourceKind = "local"
)

// Job is the durable record of a job. Identity, ownership and source are
// immutable after creation; metadata is overwritten once per run.
type Job struct {
	// Identity and ownership (immutable)
	ID               string     `json:"id" badgerhold:"key"`
	Owner            string     `json:"owner" badgerhold:"index"`
	SourceDescriptor string     `json:"source_descriptor"` // Remote URL or path of the uploaded artifact
	SourceKind       SourceKind `json:"source_kind"`

	// Metadata (placeholder until acquisition completes)
	Title        string  `json:"title"`
	Creator      string  `json:"creator"`
	Duration     float64 `json:"duration"` // Seconds
	CanonicalURL string  `json:"canonical_url,omitempty"`
	Description  string  `json:"description,omitempty"` // Markdown

	// State machine
	Stage        Stage  `json:"stage" badgerhold:"index"`
	Progress     int    `json:"progress"` // 0-100, non-decreasing within a run
	ErrorMessage string `json:"error_message,omitempty"`
	Run          int    `json:"run"` // Incremented on each restart

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Metadata is the acquisition output written onto a job
type Metadata struct {
	Title        string  `json:"title"`
	Creator      string  `json:"creator"`
	Duration     float64 `json:"duration"`
	CanonicalURL string  `json:"canonical_url,omitempty"`
	Description  string  `json:"description,omitempty"`
}

// JobStatus is the polling view of a job
type JobStatus struct {
	JobID        string    `json:"job_id"`
	Stage        Stage     `json:"stage"`
	Progress     int       `json:"progress"`
	ErrorMessage string    `json:"error_message,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Status returns the polling view of the job
func (j *Job) Status() JobStatus {
	return JobStatus{
		JobID:        j.ID,
		Stage:        j.Stage,
		Progress:     j.Progress,
		ErrorMessage: j.ErrorMessage,
		UpdatedAt:    j.UpdatedAt,
	}
}

// Metadata returns the job's current metadata
func (j *Job) Metadata() Metadata {
	return Metadata{
		Title:        j.Title,
		Creator:      j.Creator,
		Duration:     j.Duration,
		CanonicalURL: j.CanonicalURL,
		Description:  j.Description,
	}
}

// ApplyMetadata overwrites metadata fields, keeping the placeholder when a value is empty
func (j *Job) ApplyMetadata(meta Metadata) {
	if meta.Title != "" {
		j.Title = meta.Title
	}
	if meta.Creator != "" {
		j.Creator = meta.Creator
	}
	j.Duration = meta.Duration
	if meta.CanonicalURL != "" {
		j.CanonicalURL = meta.CanonicalURL
	}
	j.Description = meta.Description
}
