package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"curator/internal/domain"
	"curator/internal/vision"
)

// Deps are the collaborators one runner needs.
type Deps struct {
	Jobs     domain.JobRepository
	Captions domain.CaptionRepository
	Files    domain.FileRepository
	Logger   zerolog.Logger
}

// Options bound a runner's concurrency and retry policy.
type Options struct {
	// Workers is the fixed worker-pool size per job. Kept small by default:
	// local vision backends rarely benefit from more than a few in-flight
	// requests.
	Workers int
	// MaxAttempts caps attempts per item for transient failures. Permanent
	// failures are recorded after the first attempt regardless.
	MaxAttempts int
	// RetryBackoff is the base delay before a retry; it doubles per attempt.
	RetryBackoff time.Duration
}

func (o Options) withDefaults() Options {
	if o.Workers < 1 {
		o.Workers = 2
	}
	if o.MaxAttempts < 1 {
		o.MaxAttempts = 3
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	return o
}

type controlSignal int

const (
	sigPause controlSignal = iota + 1
	sigCancel
)

// Runner owns the state machine of a single caption job. It fans the fixed
// work list out to a bounded pool of workers, applies retry policy, and
// serializes every outcome into the job store. Pause and cancel are
// cooperative: dispatch stops between items and in-flight calls drain.
type Runner struct {
	job     *domain.CaptionJob
	backend vision.Captioner
	prompt  string
	deps    Deps
	opts    Options

	control chan controlSignal
	done    chan struct{}
	onStop  func(jobID string, status domain.JobStatus)

	log zerolog.Logger
}

// NewRunner builds a runner for the given job snapshot. The prompt is fixed
// up front: it is the same pure function of the job config for every item.
func NewRunner(job *domain.CaptionJob, backend vision.Captioner, deps Deps, opts Options) *Runner {
	opts = opts.withDefaults()
	cfg := job.Config
	return &Runner{
		job:     job,
		backend: backend,
		prompt:  vision.BuildPrompt(cfg.Style, cfg.MaxLength, cfg.CustomPrompt, cfg.TriggerPhrase),
		deps:    deps,
		opts:    opts,
		control: make(chan controlSignal, 1),
		done:    make(chan struct{}),
		log: deps.Logger.With().
			Str("job_id", job.ID).
			Str("caption_set_id", cfg.CaptionSetID).
			Str("backend", cfg.VisionBackend).
			Str("model", cfg.VisionModel).
			Logger(),
	}
}

// OnStop registers a callback invoked once the runner stops for any reason,
// with the status the job was left in.
func (r *Runner) OnStop(fn func(jobID string, status domain.JobStatus)) { r.onStop = fn }

// Done is closed when the runner has fully stopped.
func (r *Runner) Done() <-chan struct{} { return r.done }

// Start transitions the job to running and launches the dispatch loop. The
// transition is persisted before any work is dispatched.
func (r *Runner) Start(ctx context.Context) error {
	if !r.job.Status.CanTransition(domain.JobStatusRunning) {
		return fmt.Errorf("start from %s: %w", r.job.Status, domain.ErrInvalidTransition)
	}
	if err := r.deps.Jobs.SetStatus(ctx, r.job.ID, domain.JobStatusRunning, ""); err != nil {
		return fmt.Errorf("persist running status: %w", err)
	}
	r.job.Status = domain.JobStatusRunning
	r.log.Info().Int("total", r.job.TotalFiles).Int("workers", r.opts.Workers).Msg("caption job started")

	go r.run(ctx)
	return nil
}

// Pause asks the runner to stop dispatching after in-flight items complete.
func (r *Runner) Pause() { r.signal(sigPause) }

// Cancel behaves like Pause but leaves the job in a terminal state.
func (r *Runner) Cancel() { r.signal(sigCancel) }

func (r *Runner) signal(s controlSignal) {
	select {
	case r.control <- s:
	default:
	}
}

func (r *Runner) run(ctx context.Context) {
	defer close(r.done)

	// Recovery payload: every file id with a recorded outcome is settled and
	// must not be reprocessed.
	outcomes, err := r.deps.Jobs.Outcomes(ctx, r.job.ID, "")
	if err != nil {
		r.finish(ctx, domain.JobStatusFailed, fmt.Sprintf("load recovery payload: %v", err))
		return
	}
	seen := make(map[string]struct{}, len(outcomes))
	for _, o := range outcomes {
		seen[o.FileID] = struct{}{}
	}

	items := make(chan string)
	fatal := make(chan error, r.opts.Workers)
	var wg sync.WaitGroup
	for i := 0; i < r.opts.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			r.worker(ctx, workerID, items, fatal)
		}(i)
	}

	final := domain.JobStatusCompleted
	var lastErr string

dispatch:
	for _, fileID := range r.job.WorkList {
		if _, ok := seen[fileID]; ok {
			continue
		}
		select {
		case sig := <-r.control:
			if sig == sigCancel {
				final = domain.JobStatusCancelled
			} else {
				final = domain.JobStatusPaused
			}
			break dispatch
		case workerErr := <-fatal:
			final = domain.JobStatusFailed
			lastErr = workerErr.Error()
			break dispatch
		case <-ctx.Done():
			break dispatch
		case items <- fileID:
		}
	}
	close(items)
	// Workers finish their in-flight call so completed results are not lost.
	wg.Wait()

	select {
	case workerErr := <-fatal:
		final = domain.JobStatusFailed
		lastErr = workerErr.Error()
	default:
	}

	if ctx.Err() != nil {
		// Process shutdown. The status stays as last persisted; startup
		// recovery will park the job in paused.
		r.log.Warn().Msg("caption job interrupted by shutdown")
		r.stopped(r.job.Status)
		return
	}

	r.finish(ctx, final, lastErr)
}

func (r *Runner) worker(ctx context.Context, workerID int, items <-chan string, fatal chan<- error) {
	log := r.log.With().Int("worker", workerID).Logger()
	for fileID := range items {
		if ctx.Err() != nil {
			return
		}
		// Best effort, display only.
		_ = r.deps.Jobs.SetCurrentFile(ctx, r.job.ID, fileID)

		outcome := r.processItem(ctx, log, fileID)
		if ctx.Err() != nil {
			return
		}
		if err := r.deps.Jobs.ApplyProgress(ctx, r.job.ID, outcome); err != nil {
			// Progress that cannot be durably recorded cannot be safely
			// resumed. Fatal to the run.
			select {
			case fatal <- fmt.Errorf("record progress for file %s: %w", fileID, err):
			default:
			}
			return
		}
		log.Debug().Str("file_id", fileID).Str("outcome", string(outcome.Kind)).Int("attempts", outcome.Attempts).Msg("item settled")
	}
}

// processItem produces exactly one terminal outcome for one file. Item-level
// failures never propagate; they become failed outcomes.
func (r *Runner) processItem(ctx context.Context, log zerolog.Logger, fileID string) domain.ItemOutcome {
	cfg := r.job.Config

	score, exists, err := r.deps.Captions.Quality(ctx, cfg.CaptionSetID, fileID)
	if err == nil && exists {
		if !cfg.OverwriteExisting {
			return skipOutcome(fileID, "caption already exists and overwrite is disabled")
		}
		if cfg.MinQualityToRegenerate > 0 && score >= cfg.MinQualityToRegenerate {
			return skipOutcome(fileID, fmt.Sprintf("existing quality %.2f meets threshold %.2f", score, cfg.MinQualityToRegenerate))
		}
	}

	path, err := r.deps.Files.ResolvePath(ctx, fileID)
	if err != nil {
		return failOutcome(fileID, 0, fmt.Errorf("resolve file: %w", err))
	}

	req := vision.Request{
		ImagePath:     path,
		Prompt:        r.prompt,
		Model:         cfg.VisionModel,
		TriggerPhrase: cfg.TriggerPhrase,
	}

	var res vision.Result
	var genErr error
	attempts := 0
	for attempt := 1; attempt <= r.opts.MaxAttempts; attempt++ {
		attempts = attempt
		res, genErr = r.backend.Generate(ctx, req)
		if genErr == nil || !vision.IsTransient(genErr) || attempt == r.opts.MaxAttempts {
			break
		}
		delay := r.opts.RetryBackoff << (attempt - 1)
		log.Warn().Err(genErr).Str("file_id", fileID).Int("attempt", attempt).Dur("backoff", delay).
			Msg("transient backend failure, retrying")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return failOutcome(fileID, attempts, ctx.Err())
		}
	}
	if genErr != nil {
		log.Error().Err(genErr).Str("file_id", fileID).Int("attempts", attempts).Msg("captioning failed")
		return failOutcome(fileID, attempts, genErr)
	}

	caption := &domain.Caption{
		CaptionSetID: cfg.CaptionSetID,
		FileID:       fileID,
		Text:         res.Caption,
		Source:       domain.CaptionSourceGenerated,
		VisionModel:  res.Model,
		QualityScore: res.QualityScore,
		QualityFlags: res.QualityFlags,
	}
	if err := r.deps.Captions.Save(ctx, caption); err != nil {
		// Same weight as a backend failure for this item; the job goes on.
		return failOutcome(fileID, attempts, fmt.Errorf("save caption: %w", err))
	}

	return domain.ItemOutcome{
		FileID:       fileID,
		Kind:         domain.OutcomeCompleted,
		Caption:      res.Caption,
		QualityScore: res.QualityScore,
		QualityFlags: res.QualityFlags,
		VisionModel:  res.Model,
		Attempts:     attempts,
	}
}

func (r *Runner) finish(ctx context.Context, status domain.JobStatus, errMsg string) {
	if err := r.deps.Jobs.SetStatus(ctx, r.job.ID, status, errMsg); err != nil {
		r.log.Error().Err(err).Str("status", string(status)).Msg("failed to persist final job status")
	}
	r.job.Status = status

	evt := r.log.Info().Str("status", string(status))
	if errMsg != "" {
		evt = evt.Str("last_error", errMsg)
	}
	evt.Msg("caption job stopped")

	r.stopped(status)
}

func (r *Runner) stopped(status domain.JobStatus) {
	if r.onStop != nil {
		r.onStop(r.job.ID, status)
	}
}

func skipOutcome(fileID, reason string) domain.ItemOutcome {
	return domain.ItemOutcome{FileID: fileID, Kind: domain.OutcomeSkipped, ErrorMessage: reason}
}

func failOutcome(fileID string, attempts int, err error) domain.ItemOutcome {
	return domain.ItemOutcome{FileID: fileID, Kind: domain.OutcomeFailed, Attempts: attempts, ErrorMessage: err.Error()}
}
