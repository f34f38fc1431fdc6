package job

import (
	"context"
	"time"
)

// Status is the lifecycle state of a processing job.
type Status string

// Job statuses. Legal transitions: pending → processing → {completed,
// failed}; processing → cancelled; completed → processing (reprocess).
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transitions except reprocess are
// possible from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Job is one meeting recording moving through the pipeline.
type Job struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Status Status `json:"status"`

	// AudioRef is the opaque artifact key of the compressed audio.
	AudioRef string `json:"audio_ref,omitempty"`
	// DurationSecs is the audio length, measured at upload time. Credit
	// estimates derive from it without re-probing the artifact.
	DurationSecs float64 `json:"duration_secs,omitempty"`

	Transcript  *string  `json:"transcript,omitempty"`
	Summary     *string  `json:"summary,omitempty"`
	ActionItems []string `json:"action_items,omitempty"`
	KeyTopics   []string `json:"key_topics,omitempty"`
	Sentiment   string   `json:"sentiment,omitempty"`

	ProcessingModel string `json:"processing_model,omitempty"`
	CreditsConsumed int    `json:"credits_consumed"`
	// CreditsHeld is the debit of the in-flight attempt, recorded at claim
	// time so a cancel knows how much to refund. Zero outside processing.
	CreditsHeld int    `json:"-"`
	ErrorNote   string `json:"error_note,omitempty"`

	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	ReprocessedAt *time.Time `json:"reprocessed_at,omitempty"`
}

// Clone returns a deep copy. Used to snapshot a job before a submission so
// a failed attempt can restore every prior field.
func (j *Job) Clone() *Job {
	c := *j
	if j.Transcript != nil {
		t := *j.Transcript
		c.Transcript = &t
	}
	if j.Summary != nil {
		s := *j.Summary
		c.Summary = &s
	}
	if j.ActionItems != nil {
		c.ActionItems = append([]string(nil), j.ActionItems...)
	}
	if j.KeyTopics != nil {
		c.KeyTopics = append([]string(nil), j.KeyTopics...)
	}
	if j.ReprocessedAt != nil {
		r := *j.ReprocessedAt
		c.ReprocessedAt = &r
	}
	return &c
}

// Store is the persistence contract the orchestrator needs.
type Store interface {
	// CreateJob persists a new job.
	CreateJob(ctx context.Context, j *Job) error

	// GetJob loads a job by id. Missing jobs yield a NOT_FOUND AppError.
	GetJob(ctx context.Context, id string) (*Job, error)

	// UpdateJob persists all fields of j unconditionally.
	UpdateJob(ctx context.Context, j *Job) error

	// UpdateJobIfStatus persists all fields of j only while the stored
	// status still equals expect. Returns false when the guard fails.
	UpdateJobIfStatus(ctx context.Context, j *Job, expect Status) (bool, error)

	// ListTerminalBefore returns terminal jobs last updated before cutoff
	// that still hold an artifact reference.
	ListTerminalBefore(ctx context.Context, cutoff time.Time) ([]*Job, error)
}
