package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jobdeck/api/internal/model"
	"github.com/jobdeck/api/internal/store"
)

// validTransitions is the complete set of legal status moves. PENDING is the
// only initial state; COMPLETED and FAILED are terminal, with no retry path.
var validTransitions = map[model.JobStatus][]model.JobStatus{
	model.JobStatusPending:   {model.JobStatusRunning},
	model.JobStatusRunning:   {model.JobStatusCompleted, model.JobStatusFailed},
	model.JobStatusCompleted: {},
	model.JobStatusFailed:    {},
}

// InvalidTransitionError reports a status move outside the transition table.
type InvalidTransitionError struct {
	From model.JobStatus
	To   model.JobStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition from %s to %s", e.From, e.To)
}

// CanTransition reports whether the move from one status to another is legal.
func CanTransition(from, to model.JobStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Engine is the sole authority for job status changes. Every successful
// transition is exactly one store write; a rejected transition writes nothing.
type Engine struct {
	store *store.JobStore
}

func NewEngine(s *store.JobStore) *Engine {
	return &Engine{store: s}
}

// Transition moves the job to the target status and persists it. Moving to
// COMPLETED stamps completedAt in the same write. The store applies the change
// conditionally on the job still holding its current status, so a concurrent
// transition cannot double-apply; the loser gets an InvalidTransitionError
// against the state the winner left behind.
func (e *Engine) Transition(ctx context.Context, job *model.Job, target model.JobStatus) (*model.Job, error) {
	if !CanTransition(job.Status, target) {
		return nil, &InvalidTransitionError{From: job.Status, To: target}
	}

	var completedAt *time.Time
	if target == model.JobStatusCompleted {
		now := time.Now().UTC()
		completedAt = &now
	}

	updated, err := e.store.CompareAndSwapStatus(ctx, job.ID, job.Status, target, completedAt)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			current, gerr := e.store.GetByID(ctx, job.ID)
			if gerr == nil {
				return nil, &InvalidTransitionError{From: current.Status, To: target}
			}
			return nil, &InvalidTransitionError{From: job.Status, To: target}
		}
		return nil, fmt.Errorf("failed to persist transition: %w", err)
	}

	return updated, nil
}
