package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"curator/internal/domain"
	"curator/internal/vision"
)

// ManagerDeps wires the manager's collaborators.
type ManagerDeps struct {
	Jobs        domain.JobRepository
	Captions    domain.CaptionRepository
	CaptionSets domain.CaptionSetRepository
	Files       domain.FileRepository
	// Backends is the closed set of configured vision adapters.
	Backends       map[vision.Backend]vision.Captioner
	DefaultBackend vision.Backend
	DefaultModel   string
	Logger         zerolog.Logger
}

// StartRequest is the caller-supplied configuration for a new caption job.
type StartRequest struct {
	CaptionSetID           string
	VisionModel            string
	VisionBackend          string
	OverwriteExisting      bool
	MinQualityToRegenerate float64
}

// Manager is the process-wide registry of active runners. It creates jobs,
// routes control commands to the owning runner, and parks interrupted jobs
// on startup. At most one live runner exists per job id.
type Manager struct {
	deps ManagerDeps
	opts Options

	// baseCtx bounds runner lifetimes to the process, not to the API
	// request that started the job.
	baseCtx context.Context

	mu      sync.Mutex
	runners map[string]*Runner
}

// NewManager constructs a manager whose runners live until ctx is cancelled.
func NewManager(ctx context.Context, deps ManagerDeps, opts Options) *Manager {
	return &Manager{
		deps:    deps,
		opts:    opts.withDefaults(),
		baseCtx: ctx,
		runners: make(map[string]*Runner),
	}
}

// StartJob creates the job record with its fixed work list and starts a
// runner for it. Creation is synchronous; execution is not.
func (m *Manager) StartJob(ctx context.Context, req StartRequest) (*domain.CaptionJob, error) {
	set, err := m.deps.CaptionSets.Get(ctx, req.CaptionSetID)
	if err != nil {
		return nil, fmt.Errorf("caption set %s: %w", req.CaptionSetID, err)
	}

	backendKind, captioner, err := m.resolveBackend(req.VisionBackend)
	if err != nil {
		return nil, err
	}
	model := req.VisionModel
	if model == "" {
		model = m.deps.DefaultModel
	}

	if busyID := m.activeJobForSet(req.CaptionSetID); busyID != "" {
		return nil, fmt.Errorf("job %s: %w", busyID, domain.ErrCaptionSetBusy)
	}

	workList, err := m.deps.Files.ListCaptionTargets(ctx, set, req.OverwriteExisting)
	if err != nil {
		return nil, fmt.Errorf("list caption targets: %w", err)
	}
	if len(workList) == 0 {
		return nil, domain.ErrNoFilesToCaption
	}

	now := time.Now().UTC()
	job := &domain.CaptionJob{
		ID: uuid.NewString(),
		Config: domain.JobConfig{
			CaptionSetID:           set.ID,
			VisionModel:            model,
			VisionBackend:          string(backendKind),
			Style:                  set.Style,
			MaxLength:              set.MaxLength,
			TriggerPhrase:          set.TriggerPhrase,
			CustomPrompt:           set.CustomPrompt,
			OverwriteExisting:      req.OverwriteExisting,
			MinQualityToRegenerate: req.MinQualityToRegenerate,
		},
		Status:     domain.JobStatusPending,
		TotalFiles: len(workList),
		WorkList:   workList,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := m.deps.Jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	m.deps.Logger.Info().Str("job_id", job.ID).Str("caption_set_id", set.ID).
		Int("total", job.TotalFiles).Msg("caption job created")

	if err := m.spawn(job, captioner); err != nil {
		return nil, err
	}
	return job, nil
}

// Pause stops dispatch for a running job. Pausing anything else is reported
// as an invalid transition, never a crash.
func (m *Manager) Pause(ctx context.Context, jobID string) error {
	job, err := m.deps.Jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != domain.JobStatusRunning {
		return fmt.Errorf("pause from %s: %w", job.Status, domain.ErrInvalidTransition)
	}

	m.mu.Lock()
	r := m.runners[jobID]
	m.mu.Unlock()

	if r != nil {
		r.Pause()
		return nil
	}
	// Running in the store but no live runner: the process restarted
	// mid-job. Park it so an explicit resume is required.
	return m.deps.Jobs.SetStatus(ctx, jobID, domain.JobStatusPaused, "")
}

// Resume restarts a paused job with a fresh worker pool. No state is lost:
// progress was persisted incrementally and settled items are skipped.
func (m *Manager) Resume(ctx context.Context, jobID string) error {
	job, err := m.deps.Jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != domain.JobStatusPaused {
		return fmt.Errorf("resume from %s: %w", job.Status, domain.ErrInvalidTransition)
	}

	m.mu.Lock()
	_, alreadyActive := m.runners[jobID]
	m.mu.Unlock()
	if alreadyActive {
		return fmt.Errorf("runner already active: %w", domain.ErrInvalidTransition)
	}

	_, captioner, err := m.resolveBackend(job.Config.VisionBackend)
	if err != nil {
		return err
	}
	return m.spawn(job, captioner)
}

// Cancel terminates a job from any non-terminal state. Outcomes recorded so
// far stay valid and persisted.
func (m *Manager) Cancel(ctx context.Context, jobID string) error {
	job, err := m.deps.Jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return fmt.Errorf("cancel from %s: %w", job.Status, domain.ErrInvalidTransition)
	}

	m.mu.Lock()
	r := m.runners[jobID]
	m.mu.Unlock()

	if r != nil {
		r.Cancel()
		return nil
	}
	return m.deps.Jobs.SetStatus(ctx, jobID, domain.JobStatusCancelled, "")
}

// Get returns the current job record.
func (m *Manager) Get(ctx context.Context, jobID string) (*domain.CaptionJob, error) {
	return m.deps.Jobs.GetByID(ctx, jobID)
}

// List returns jobs newest-first, optionally filtered by status.
func (m *Manager) List(ctx context.Context, status domain.JobStatus) ([]*domain.CaptionJob, error) {
	return m.deps.Jobs.List(ctx, status)
}

// Outcomes returns the per-item outcomes of a job, optionally by kind.
func (m *Manager) Outcomes(ctx context.Context, jobID string, kind domain.OutcomeKind) ([]domain.ItemOutcome, error) {
	if _, err := m.deps.Jobs.GetByID(ctx, jobID); err != nil {
		return nil, err
	}
	return m.deps.Jobs.Outcomes(ctx, jobID, kind)
}

// RecoverInterrupted parks every job the store reports as pending or running
// in paused. Resuming after an unplanned restart is a human decision, not an
// automatic bulk re-invocation of an expensive backend. Returns the number
// of jobs parked.
func (m *Manager) RecoverInterrupted(ctx context.Context) (int, error) {
	active, err := m.deps.Jobs.LoadActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("load active jobs: %w", err)
	}
	parked := 0
	for _, job := range active {
		if job.Status != domain.JobStatusRunning && job.Status != domain.JobStatusPending {
			continue
		}
		if err := m.deps.Jobs.SetStatus(ctx, job.ID, domain.JobStatusPaused, ""); err != nil {
			return parked, fmt.Errorf("park job %s: %w", job.ID, err)
		}
		m.deps.Logger.Warn().Str("job_id", job.ID).Str("previous_status", string(job.Status)).
			Int("completed", job.CompletedFiles).Int("total", job.TotalFiles).
			Msg("interrupted caption job parked as paused")
		parked++
	}
	return parked, nil
}

// ActiveRunners reports the number of live runners.
func (m *Manager) ActiveRunners() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runners)
}

func (m *Manager) spawn(job *domain.CaptionJob, captioner vision.Captioner) error {
	r := NewRunner(job, captioner, Deps{
		Jobs:     m.deps.Jobs,
		Captions: m.deps.Captions,
		Files:    m.deps.Files,
		Logger:   m.deps.Logger,
	}, m.opts)
	r.OnStop(func(jobID string, _ domain.JobStatus) {
		m.mu.Lock()
		delete(m.runners, jobID)
		m.mu.Unlock()
	})

	m.mu.Lock()
	if _, exists := m.runners[job.ID]; exists {
		m.mu.Unlock()
		return fmt.Errorf("runner already active: %w", domain.ErrInvalidTransition)
	}
	m.runners[job.ID] = r
	m.mu.Unlock()

	if err := r.Start(m.baseCtx); err != nil {
		m.mu.Lock()
		delete(m.runners, job.ID)
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *Manager) resolveBackend(kind string) (vision.Backend, vision.Captioner, error) {
	backend := vision.Backend(kind)
	if kind == "" {
		backend = m.deps.DefaultBackend
	}
	captioner, ok := m.deps.Backends[backend]
	if !ok {
		return "", nil, fmt.Errorf("vision backend %q is not configured", backend)
	}
	return backend, captioner, nil
}

func (m *Manager) activeJobForSet(captionSetID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.runners {
		if r.job.Config.CaptionSetID == captionSetID {
			return id
		}
	}
	return ""
}
