package scheduler

import (
	"context"

	"github.com/paysync/paysync/pkg/domain"
	"github.com/paysync/paysync/pkg/logger"
)

const (
	// BusinessStatusCompleted is written by RetryingWorkflow when its step
	// completes without an explicit status.
	BusinessStatusCompleted = "COMPLETED"
	// BusinessStatusGlobalError is written when a workflow fails with an
	// error it did not handle.
	BusinessStatusGlobalError = "GLOBAL_ERROR"
)

// Workflow executes one tracker.  It is expected to finish or reschedule the
// tracker through the Scheduler; an error finishes the tracker with
// BusinessStatusGlobalError.
//
// A tracker may be executed more than once, so workflows must be idempotent.
type Workflow interface {
	Execute(ctx context.Context, s *Scheduler, p domain.ProcessTracker) error
}

// WorkflowFunc adapts a function to a Workflow.
type WorkflowFunc func(ctx context.Context, s *Scheduler, p domain.ProcessTracker) error

func (f WorkflowFunc) Execute(ctx context.Context, s *Scheduler, p domain.ProcessTracker) error {
	return f(ctx, s, p)
}

// Workflows maps a tracker's runner to its workflow.
type Workflows map[string]Workflow

// Step is one run of a retrying workflow.  It returns true once the work is
// complete; false polls again on the retry schedule.
type Step func(ctx context.Context, p domain.ProcessTracker) (done bool, err error)

// RetryingWorkflow runs Step and reschedules the tracker on the retry
// schedule of its merchant and payment method until Step completes or the
// schedule is exhausted.
type RetryingWorkflow struct {
	Step Step
	// Retryable reports whether a Step error is worth another attempt.  Nil
	// retries every error.
	Retryable func(error) bool
	// BusinessStatus is written on completion, defaulting to
	// BusinessStatusCompleted.
	BusinessStatus string
}

func (w RetryingWorkflow) Execute(ctx context.Context, s *Scheduler, p domain.ProcessTracker) error {
	done, err := w.Step(ctx, p)
	if err != nil {
		if w.Retryable != nil && !w.Retryable(err) {
			return err
		}
		logger.StdlibLogger(ctx).Warn("workflow step failed, retrying", "tracker_id", p.ID, "retry_count", p.RetryCount, "error", err)
		_, err = s.RetryOrFinish(ctx, p)
		return err
	}

	if !done {
		_, err = s.RetryOrFinish(ctx, p)
		return err
	}

	status := w.BusinessStatus
	if status == "" {
		status = BusinessStatusCompleted
	}
	_, err = s.FinishProcess(ctx, p, status)
	return err
}
