package domain

import "testing"

func TestJobStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to JobStatus
		want     bool
	}{
		{JobStatusPending, JobStatusRunning, true},
		{JobStatusPending, JobStatusPaused, true},
		{JobStatusPending, JobStatusCancelled, true},
		{JobStatusPending, JobStatusCompleted, false},
		{JobStatusRunning, JobStatusPaused, true},
		{JobStatusRunning, JobStatusCompleted, true},
		{JobStatusRunning, JobStatusFailed, true},
		{JobStatusRunning, JobStatusCancelled, true},
		{JobStatusPaused, JobStatusRunning, true},
		{JobStatusPaused, JobStatusCancelled, true},
		{JobStatusPaused, JobStatusCompleted, false},
		{JobStatusCompleted, JobStatusRunning, false},
		{JobStatusCancelled, JobStatusRunning, false},
		{JobStatusFailed, JobStatusRunning, false},
		{JobStatusFailed, JobStatusCancelled, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestJobStatusTerminal(t *testing.T) {
	terminal := []JobStatus{JobStatusCompleted, JobStatusFailed, JobStatusCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []JobStatus{JobStatusPending, JobStatusRunning, JobStatusPaused} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestSettled(t *testing.T) {
	j := &CaptionJob{TotalFiles: 10, CompletedFiles: 4, FailedFiles: 1, SkippedFiles: 2}
	if got := j.Settled(); got != 7 {
		t.Fatalf("Settled() = %d, want 7", got)
	}
}
