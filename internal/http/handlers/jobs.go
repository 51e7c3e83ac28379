package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"curator/internal/domain"
	"curator/internal/jobs"
)

var titleCaser = cases.Title(language.English)

type createJobRequest struct {
	CaptionSetID           string  `json:"caption_set_id"`
	VisionModel            string  `json:"vision_model"`
	VisionBackend          string  `json:"vision_backend"`
	OverwriteExisting      bool    `json:"overwrite_existing"`
	MinQualityToRegenerate float64 `json:"min_quality_to_regenerate"`
}

func (a *App) JobsCreate(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.CaptionSetID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "caption_set_id is required")
		return
	}
	if req.MinQualityToRegenerate < 0 || req.MinQualityToRegenerate > 1 {
		a.error(w, http.StatusBadRequest, "bad_request", "min_quality_to_regenerate must be within [0, 1]")
		return
	}

	job, err := a.Jobs.StartJob(r.Context(), jobs.StartRequest{
		CaptionSetID:           req.CaptionSetID,
		VisionModel:            req.VisionModel,
		VisionBackend:          req.VisionBackend,
		OverwriteExisting:      req.OverwriteExisting,
		MinQualityToRegenerate: req.MinQualityToRegenerate,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			a.error(w, http.StatusNotFound, "not_found", "caption set not found")
		case errors.Is(err, domain.ErrCaptionSetBusy):
			a.error(w, http.StatusConflict, "caption_set_busy", "a caption job is already running for this set")
		case errors.Is(err, domain.ErrDuplicateJob):
			a.error(w, http.StatusConflict, "duplicate_job", "a job with this id already exists")
		case errors.Is(err, domain.ErrNoFilesToCaption):
			a.error(w, http.StatusUnprocessableEntity, "no_files", "no files left to caption in this set")
		default:
			a.Log.Error().Err(err).Msg("failed to start caption job")
			a.error(w, http.StatusInternalServerError, "internal", "failed to start caption job")
		}
		return
	}
	a.json(w, http.StatusCreated, jobPayload(job))
}

func (a *App) JobsList(w http.ResponseWriter, r *http.Request) {
	status := domain.JobStatus(r.URL.Query().Get("status"))
	if status != "" && !validStatus(status) {
		a.error(w, http.StatusBadRequest, "bad_request", "unknown status filter")
		return
	}
	list, err := a.Jobs.List(r.Context(), status)
	if err != nil {
		a.Log.Error().Err(err).Msg("failed to list caption jobs")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list caption jobs")
		return
	}
	items := make([]map[string]any, 0, len(list))
	for _, job := range list {
		items = append(items, jobPayload(job))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func (a *App) JobsGet(w http.ResponseWriter, r *http.Request) {
	job, err := a.Jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.jobError(w, err, "failed to load caption job")
		return
	}
	a.json(w, http.StatusOK, jobPayload(job))
}

func (a *App) JobsPause(w http.ResponseWriter, r *http.Request) {
	a.transition(w, r, a.Jobs.Pause)
}

func (a *App) JobsResume(w http.ResponseWriter, r *http.Request) {
	a.transition(w, r, a.Jobs.Resume)
}

func (a *App) JobsCancel(w http.ResponseWriter, r *http.Request) {
	a.transition(w, r, a.Jobs.Cancel)
}

// transition runs one control command and answers with the job record as it
// stands right after. Pause and cancel drain asynchronously, so the record
// may still show the previous status.
func (a *App) transition(w http.ResponseWriter, r *http.Request, cmd func(ctx context.Context, jobID string) error) {
	jobID := chi.URLParam(r, "id")
	if err := cmd(r.Context(), jobID); err != nil {
		a.jobError(w, err, "caption job transition failed")
		return
	}
	job, err := a.Jobs.Get(r.Context(), jobID)
	if err != nil {
		a.jobError(w, err, "failed to load caption job")
		return
	}
	a.json(w, http.StatusAccepted, jobPayload(job))
}

func (a *App) JobsProgress(w http.ResponseWriter, r *http.Request) {
	job, err := a.Jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.jobError(w, err, "failed to load caption job")
		return
	}
	percent := 0.0
	if job.TotalFiles > 0 {
		percent = float64(job.Settled()) / float64(job.TotalFiles) * 100
	}
	a.json(w, http.StatusOK, map[string]any{
		"job_id":          job.ID,
		"status":          job.Status,
		"total_files":     job.TotalFiles,
		"completed_files": job.CompletedFiles,
		"failed_files":    job.FailedFiles,
		"skipped_files":   job.SkippedFiles,
		"percent":         percent,
		"current_file_id": job.CurrentFileID,
		"last_error":      job.LastError,
	})
}

func (a *App) JobsItems(w http.ResponseWriter, r *http.Request) {
	kind := domain.OutcomeKind(r.URL.Query().Get("outcome"))
	switch kind {
	case "", domain.OutcomeCompleted, domain.OutcomeFailed, domain.OutcomeSkipped:
	default:
		a.error(w, http.StatusBadRequest, "bad_request", "unknown outcome filter")
		return
	}
	outcomes, err := a.Jobs.Outcomes(r.Context(), chi.URLParam(r, "id"), kind)
	if err != nil {
		a.jobError(w, err, "failed to load job items")
		return
	}
	items := make([]map[string]any, 0, len(outcomes))
	for _, o := range outcomes {
		items = append(items, map[string]any{
			"file_id":       o.FileID,
			"outcome":       o.Kind,
			"caption":       o.Caption,
			"quality_score": o.QualityScore,
			"quality_flags": o.QualityFlags,
			"vision_model":  o.VisionModel,
			"error_message": o.ErrorMessage,
			"attempts":      o.Attempts,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func (a *App) jobError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "caption job not found")
	case errors.Is(err, domain.ErrInvalidTransition):
		a.error(w, http.StatusConflict, "invalid_transition", err.Error())
	default:
		a.Log.Error().Err(err).Msg(fallback)
		a.error(w, http.StatusInternalServerError, "internal", fallback)
	}
}

func jobPayload(job *domain.CaptionJob) map[string]any {
	return map[string]any{
		"id":              job.ID,
		"caption_set_id":  job.Config.CaptionSetID,
		"status":          job.Status,
		"style":           job.Config.Style,
		"style_label":     titleCaser.String(string(job.Config.Style)),
		"vision_model":    job.Config.VisionModel,
		"vision_backend":  job.Config.VisionBackend,
		"total_files":     job.TotalFiles,
		"completed_files": job.CompletedFiles,
		"failed_files":    job.FailedFiles,
		"skipped_files":   job.SkippedFiles,
		"current_file_id": job.CurrentFileID,
		"last_error":      job.LastError,
		"created_at":      job.CreatedAt,
		"updated_at":      job.UpdatedAt,
		"started_at":      job.StartedAt,
		"paused_at":       job.PausedAt,
		"completed_at":    job.CompletedAt,
	}
}

func validStatus(s domain.JobStatus) bool {
	switch s {
	case domain.JobStatusPending, domain.JobStatusRunning, domain.JobStatusPaused,
		domain.JobStatusCompleted, domain.JobStatusCancelled, domain.JobStatusFailed:
		return true
	}
	return false
}
