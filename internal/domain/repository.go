package domain

import "context"

// JobRepository is the durable record store for caption jobs. ApplyProgress
// must serialize concurrent calls for the same job; it is the only write
// path with real contention.
type JobRepository interface {
	// Create persists a new job together with its work list. Returns
	// ErrDuplicateJob when the id already exists.
	Create(ctx context.Context, job *CaptionJob) error
	GetByID(ctx context.Context, jobID string) (*CaptionJob, error)
	// List returns jobs newest-first, optionally filtered by status.
	List(ctx context.Context, status JobStatus) ([]*CaptionJob, error)
	// LoadActive returns jobs whose last known status is pending, running
	// or paused. Used at startup to find interrupted work.
	LoadActive(ctx context.Context) ([]*CaptionJob, error)
	// ApplyProgress atomically records one item outcome and increments the
	// matching counter. Recording the same file id twice is a no-op, and a
	// counter can never exceed the job total.
	ApplyProgress(ctx context.Context, jobID string, outcome ItemOutcome) error
	// SetStatus transitions the job status, records the timestamp matching
	// the new status and, when errMsg is non-empty, the last error.
	SetStatus(ctx context.Context, jobID string, status JobStatus, errMsg string) error
	SetCurrentFile(ctx context.Context, jobID, fileID string) error
	// Outcomes returns recorded item outcomes, optionally filtered by kind.
	Outcomes(ctx context.Context, jobID string, kind OutcomeKind) ([]ItemOutcome, error)
}

// CaptionRepository is the caption-storage collaborator consumed by the
// runner. Only the narrow surface the job subsystem needs is modeled.
type CaptionRepository interface {
	// Quality reports whether a caption exists for the file and, if so,
	// its stored quality score.
	Quality(ctx context.Context, captionSetID, fileID string) (score float64, exists bool, err error)
	// Save upserts a generated caption.
	Save(ctx context.Context, caption *Caption) error
}

// CaptionSetRepository resolves caption sets and their generation settings.
type CaptionSetRepository interface {
	Get(ctx context.Context, captionSetID string) (*CaptionSet, error)
}

// FileRepository resolves tracked files for the runner.
type FileRepository interface {
	// ListCaptionTargets returns the ordered file ids a job over the given
	// caption set should process. When overwrite is false, files that
	// already carry a caption in the set are excluded.
	ListCaptionTargets(ctx context.Context, set *CaptionSet, overwrite bool) ([]string, error)
	// ResolvePath maps a file id to a readable image path on disk.
	ResolvePath(ctx context.Context, fileID string) (string, error)
}
