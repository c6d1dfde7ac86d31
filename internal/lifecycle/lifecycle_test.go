package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jobdeck/api/internal/model"
	"github.com/jobdeck/api/internal/store"
)

func newEngine(t *testing.T) (*Engine, *store.JobStore) {
	t.Helper()
	s, err := store.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewEngine(s), s
}

// createAt moves a fresh job into the wanted starting status.
func createAt(t *testing.T, e *Engine, s *store.JobStore, status model.JobStatus) *model.Job {
	t.Helper()
	job, err := s.Create(context.Background(), &model.CreateJobRequest{TaskName: "test"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	path := map[model.JobStatus][]model.JobStatus{
		model.JobStatusPending:   {},
		model.JobStatusRunning:   {model.JobStatusRunning},
		model.JobStatusCompleted: {model.JobStatusRunning, model.JobStatusCompleted},
		model.JobStatusFailed:    {model.JobStatusRunning, model.JobStatusFailed},
	}
	for _, next := range path[status] {
		job, err = e.Transition(context.Background(), job, next)
		if err != nil {
			t.Fatalf("setup transition to %s failed: %v", next, err)
		}
	}
	return job
}

func TestTransition_Table(t *testing.T) {
	valid := map[model.JobStatus][]model.JobStatus{
		model.JobStatusPending: {model.JobStatusRunning},
		model.JobStatusRunning: {model.JobStatusCompleted, model.JobStatusFailed},
	}

	for _, from := range model.ValidStatuses {
		for _, to := range model.ValidStatuses {
			allowed := false
			for _, v := range valid[from] {
				if v == to {
					allowed = true
				}
			}

			t.Run(string(from)+"_to_"+string(to), func(t *testing.T) {
				e, s := newEngine(t)
				job := createAt(t, e, s, from)

				updated, err := e.Transition(context.Background(), job, to)
				if allowed {
					if err != nil {
						t.Fatalf("expected transition to succeed: %v", err)
					}
					if updated.Status != to {
						t.Errorf("expected status %s, got %s", to, updated.Status)
					}
					return
				}

				var invalid *InvalidTransitionError
				if !errors.As(err, &invalid) {
					t.Fatalf("expected InvalidTransitionError, got %v", err)
				}
				if invalid.From != from || invalid.To != to {
					t.Errorf("error carries wrong states: %v", invalid)
				}

				// The job must be left untouched in the store
				current, gerr := s.GetByID(context.Background(), job.ID)
				if gerr != nil {
					t.Fatalf("get failed: %v", gerr)
				}
				if current.Status != job.Status {
					t.Errorf("rejected transition mutated status: %s -> %s", job.Status, current.Status)
				}
				if (current.CompletedAt == nil) != (job.CompletedAt == nil) {
					t.Error("rejected transition mutated completedAt")
				}
			})
		}
	}
}

func TestTransition_CompletedStampsTime(t *testing.T) {
	e, s := newEngine(t)
	job := createAt(t, e, s, model.JobStatusRunning)

	updated, err := e.Transition(context.Background(), job, model.JobStatusCompleted)
	if err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if updated.CompletedAt == nil {
		t.Fatal("expected completedAt to be set")
	}
	if updated.CompletedAt.Before(job.CreatedAt.Add(-time.Second)) {
		t.Errorf("completedAt %v precedes creation %v", updated.CompletedAt, job.CreatedAt)
	}
}

func TestTransition_FailedLeavesCompletedAtNil(t *testing.T) {
	e, s := newEngine(t)
	job := createAt(t, e, s, model.JobStatusRunning)

	updated, err := e.Transition(context.Background(), job, model.JobStatusFailed)
	if err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if updated.CompletedAt != nil {
		t.Error("completedAt must only be set on COMPLETED")
	}
}

func TestTransition_StaleReferenceLosesRace(t *testing.T) {
	e, s := newEngine(t)
	job := createAt(t, e, s, model.JobStatusPending)

	// A concurrent caller wins the PENDING -> RUNNING swap first
	if _, err := e.Transition(context.Background(), job, model.JobStatusRunning); err != nil {
		t.Fatalf("first transition failed: %v", err)
	}

	// The stale reference still says PENDING; the conditional write must lose
	_, err := e.Transition(context.Background(), job, model.JobStatusRunning)
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if invalid.From != model.JobStatusRunning {
		t.Errorf("expected error against current state RUNNING, got %s", invalid.From)
	}
}

func TestCanTransition(t *testing.T) {
	if !CanTransition(model.JobStatusPending, model.JobStatusRunning) {
		t.Error("PENDING -> RUNNING must be allowed")
	}
	if CanTransition(model.JobStatusFailed, model.JobStatusRunning) {
		t.Error("FAILED is terminal, no retry path")
	}
	if CanTransition(model.JobStatusCompleted, model.JobStatusRunning) {
		t.Error("COMPLETED is terminal")
	}
	if CanTransition(model.JobStatusRunning, model.JobStatusRunning) {
		t.Error("RUNNING -> RUNNING is not in the table")
	}
}
