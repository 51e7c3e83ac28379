package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"curator/internal/domain"
	"curator/internal/jobs"
)

type fakeJobService struct {
	startErr      error
	transitionErr error
	job           *domain.CaptionJob
	list          []*domain.CaptionJob
	outcomes      []domain.ItemOutcome

	gotStart jobs.StartRequest
	gotKind  domain.OutcomeKind
}

func (f *fakeJobService) StartJob(_ context.Context, req jobs.StartRequest) (*domain.CaptionJob, error) {
	f.gotStart = req
	if f.startErr != nil {
		return nil, f.startErr
	}
	return f.job, nil
}

func (f *fakeJobService) Pause(context.Context, string) error  { return f.transitionErr }
func (f *fakeJobService) Resume(context.Context, string) error { return f.transitionErr }
func (f *fakeJobService) Cancel(context.Context, string) error { return f.transitionErr }

func (f *fakeJobService) Get(_ context.Context, jobID string) (*domain.CaptionJob, error) {
	if f.job == nil || f.job.ID != jobID {
		return nil, domain.ErrNotFound
	}
	return f.job, nil
}

func (f *fakeJobService) List(context.Context, domain.JobStatus) ([]*domain.CaptionJob, error) {
	return f.list, nil
}

func (f *fakeJobService) Outcomes(_ context.Context, jobID string, kind domain.OutcomeKind) ([]domain.ItemOutcome, error) {
	if f.job == nil || f.job.ID != jobID {
		return nil, domain.ErrNotFound
	}
	f.gotKind = kind
	return f.outcomes, nil
}

func sampleJob() *domain.CaptionJob {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &domain.CaptionJob{
		ID: "job-1",
		Config: domain.JobConfig{
			CaptionSetID:  "set-1",
			VisionModel:   "qwen2.5-vl:7b",
			VisionBackend: "ollama",
			Style:         domain.StyleDetailed,
		},
		Status:         domain.JobStatusRunning,
		TotalFiles:     4,
		CompletedFiles: 2,
		FailedFiles:    1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func testApp(svc *fakeJobService) *App {
	return NewApp(svc, nil, zerolog.Nop())
}

func withJobID(req *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return payload
}

func TestJobsCreate(t *testing.T) {
	svc := &fakeJobService{job: sampleJob()}
	app := testApp(svc)

	body := `{"caption_set_id":"set-1","vision_backend":"ollama","overwrite_existing":true,"min_quality_to_regenerate":0.7}`
	rr := httptest.NewRecorder()
	app.JobsCreate(rr, httptest.NewRequest("POST", "/v1/caption-jobs", strings.NewReader(body)))

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rr.Code, rr.Body)
	}
	if svc.gotStart.CaptionSetID != "set-1" || !svc.gotStart.OverwriteExisting || svc.gotStart.MinQualityToRegenerate != 0.7 {
		t.Fatalf("start request = %+v", svc.gotStart)
	}
	payload := decodeBody(t, rr)
	if payload["id"] != "job-1" || payload["status"] != "running" {
		t.Fatalf("payload = %v", payload)
	}
	if payload["style_label"] != "Detailed" {
		t.Fatalf("style_label = %v, want Detailed", payload["style_label"])
	}
}

func TestJobsCreateValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing set id", `{"vision_backend":"ollama"}`},
		{"threshold out of range", `{"caption_set_id":"set-1","min_quality_to_regenerate":1.5}`},
		{"malformed json", `{`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			app := testApp(&fakeJobService{})
			rr := httptest.NewRecorder()
			app.JobsCreate(rr, httptest.NewRequest("POST", "/v1/caption-jobs", strings.NewReader(tc.body)))
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rr.Code)
			}
		})
	}
}

func TestJobsCreateErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("job x: %w", domain.ErrCaptionSetBusy), http.StatusConflict},
		{domain.ErrNoFilesToCaption, http.StatusUnprocessableEntity},
		{fmt.Errorf("db down"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		app := testApp(&fakeJobService{startErr: tc.err})
		rr := httptest.NewRecorder()
		app.JobsCreate(rr, httptest.NewRequest("POST", "/v1/caption-jobs", strings.NewReader(`{"caption_set_id":"set-1"}`)))
		if rr.Code != tc.want {
			t.Errorf("error %v mapped to %d, want %d", tc.err, rr.Code, tc.want)
		}
	}
}

func TestJobsGetNotFound(t *testing.T) {
	app := testApp(&fakeJobService{})
	rr := httptest.NewRecorder()
	app.JobsGet(rr, withJobID(httptest.NewRequest("GET", "/v1/caption-jobs/missing", nil), "missing"))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestJobsPauseConflict(t *testing.T) {
	app := testApp(&fakeJobService{
		job:           sampleJob(),
		transitionErr: fmt.Errorf("pause from completed: %w", domain.ErrInvalidTransition),
	})
	rr := httptest.NewRecorder()
	app.JobsPause(rr, withJobID(httptest.NewRequest("POST", "/v1/caption-jobs/job-1/pause", nil), "job-1"))
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rr.Code)
	}
	payload := decodeBody(t, rr)
	errObj, _ := payload["error"].(map[string]any)
	if errObj["code"] != "invalid_transition" {
		t.Fatalf("error payload = %v", payload)
	}
}

func TestJobsPauseAccepted(t *testing.T) {
	app := testApp(&fakeJobService{job: sampleJob()})
	rr := httptest.NewRecorder()
	app.JobsPause(rr, withJobID(httptest.NewRequest("POST", "/v1/caption-jobs/job-1/pause", nil), "job-1"))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rr.Code)
	}
}

func TestJobsProgress(t *testing.T) {
	app := testApp(&fakeJobService{job: sampleJob()})
	rr := httptest.NewRecorder()
	app.JobsProgress(rr, withJobID(httptest.NewRequest("GET", "/v1/caption-jobs/job-1/progress", nil), "job-1"))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	payload := decodeBody(t, rr)
	if payload["percent"] != 75.0 {
		t.Fatalf("percent = %v, want 75 (3 of 4 settled)", payload["percent"])
	}
	if payload["completed_files"] != 2.0 || payload["failed_files"] != 1.0 {
		t.Fatalf("payload = %v", payload)
	}
}

func TestJobsItems(t *testing.T) {
	svc := &fakeJobService{
		job: sampleJob(),
		outcomes: []domain.ItemOutcome{
			{FileID: "f1", Kind: domain.OutcomeFailed, ErrorMessage: "timeout", Attempts: 3},
		},
	}
	app := testApp(svc)
	rr := httptest.NewRecorder()
	app.JobsItems(rr, withJobID(httptest.NewRequest("GET", "/v1/caption-jobs/job-1/items?outcome=failed", nil), "job-1"))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if svc.gotKind != domain.OutcomeFailed {
		t.Fatalf("outcome filter = %q, want failed", svc.gotKind)
	}
	payload := decodeBody(t, rr)
	items, _ := payload["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("items = %v", payload)
	}
}

func TestJobsItemsRejectsUnknownFilter(t *testing.T) {
	app := testApp(&fakeJobService{job: sampleJob()})
	rr := httptest.NewRecorder()
	app.JobsItems(rr, withJobID(httptest.NewRequest("GET", "/v1/caption-jobs/job-1/items?outcome=bogus", nil), "job-1"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestJobsListRejectsUnknownStatus(t *testing.T) {
	app := testApp(&fakeJobService{})
	rr := httptest.NewRecorder()
	app.JobsList(rr, httptest.NewRequest("GET", "/v1/caption-jobs?status=zombie", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestJobsList(t *testing.T) {
	app := testApp(&fakeJobService{list: []*domain.CaptionJob{sampleJob()}})
	rr := httptest.NewRecorder()
	app.JobsList(rr, httptest.NewRequest("GET", "/v1/caption-jobs", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	payload := decodeBody(t, rr)
	items, _ := payload["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("items = %v", payload)
	}
}
