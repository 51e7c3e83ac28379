package domain

import "time"

// CaptionStyle enumerates supported caption prompt styles.
type CaptionStyle string

const (
	StyleNatural  CaptionStyle = "natural"
	StyleDetailed CaptionStyle = "detailed"
	StyleTags     CaptionStyle = "tags"
	StyleCustom   CaptionStyle = "custom"
)

// JobStatus enumerates caption-job lifecycle states.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusPaused    JobStatus = "paused"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a legal
// state-machine step. Pending to paused covers crash recovery of jobs
// that never started dispatching.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch next {
	case JobStatusRunning:
		return s == JobStatusPending || s == JobStatusPaused
	case JobStatusPaused:
		return s == JobStatusRunning || s == JobStatusPending
	case JobStatusCompleted, JobStatusFailed:
		return s == JobStatusRunning
	case JobStatusCancelled:
		return s == JobStatusPending || s == JobStatusRunning || s == JobStatusPaused
	}
	return false
}

// JobConfig is the immutable configuration a caption job is created with.
type JobConfig struct {
	CaptionSetID      string
	VisionModel       string
	VisionBackend     string
	Style             CaptionStyle
	MaxLength         int
	TriggerPhrase     string
	CustomPrompt      string
	OverwriteExisting bool
	// MinQualityToRegenerate skips regeneration of captions whose existing
	// quality score meets the threshold. Zero disables the check.
	MinQualityToRegenerate float64
}

// CaptionJob is one batch request to caption the files of a caption set.
// The work list is fixed at creation and never recomputed mid-run, so
// pausing and resuming always operate over the same file set.
type CaptionJob struct {
	ID     string
	Config JobConfig

	Status         JobStatus
	TotalFiles     int
	CompletedFiles int
	FailedFiles    int
	SkippedFiles   int
	CurrentFileID  string
	LastError      string

	WorkList []string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   *time.Time
	PausedAt    *time.Time
	CompletedAt *time.Time
}

// Settled returns the number of items that reached a terminal per-item
// outcome.
func (j *CaptionJob) Settled() int {
	return j.CompletedFiles + j.FailedFiles + j.SkippedFiles
}

// OutcomeKind enumerates terminal per-item outcomes.
type OutcomeKind string

const (
	OutcomeCompleted OutcomeKind = "completed"
	OutcomeFailed    OutcomeKind = "failed"
	OutcomeSkipped   OutcomeKind = "skipped"
)

// ItemOutcome is the per-item result produced by one worker for one file.
// Persisted outcomes double as the recovery payload: resume skips every
// file id that already has one.
type ItemOutcome struct {
	FileID       string
	Kind         OutcomeKind
	Caption      string
	QualityScore float64
	QualityFlags []string
	VisionModel  string
	ErrorMessage string
	Attempts     int
}
