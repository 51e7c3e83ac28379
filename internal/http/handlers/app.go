package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"curator/internal/domain"
	"curator/internal/jobs"
	"curator/internal/vision"
)

// JobService is the job-management surface the handlers depend on. It is
// satisfied by *jobs.Manager.
type JobService interface {
	StartJob(ctx context.Context, req jobs.StartRequest) (*domain.CaptionJob, error)
	Pause(ctx context.Context, jobID string) error
	Resume(ctx context.Context, jobID string) error
	Cancel(ctx context.Context, jobID string) error
	Get(ctx context.Context, jobID string) (*domain.CaptionJob, error)
	List(ctx context.Context, status domain.JobStatus) ([]*domain.CaptionJob, error)
	Outcomes(ctx context.Context, jobID string, kind domain.OutcomeKind) ([]domain.ItemOutcome, error)
}

// ModelCatalog reports curated vision models and their availability on the
// active backend.
type ModelCatalog func(ctx context.Context) []vision.ModelAvailability

type App struct {
	Jobs   JobService
	Models ModelCatalog
	Log    zerolog.Logger
}

func NewApp(jobSvc JobService, models ModelCatalog, log zerolog.Logger) *App {
	return &App{Jobs: jobSvc, Models: models, Log: log}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}
