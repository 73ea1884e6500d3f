package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/govsignal/scout/pkg/models"
)

// Step is one unit of pipeline work with its own audit row and timeout
// budget. Self-auditing steps (the ones that record sub-step rows, like
// the featured-intel fan-out) set SelfAudit and own their rows.
type Step struct {
	Name      string
	Timeout   time.Duration
	SelfAudit bool
	Run       func(ctx context.Context) (*Delta, error)
}

// Delta is a step's output: the state writes to apply and the audit row
// content. Keys lists the wire keys the step produced, skipped or not.
type Delta struct {
	Keys    []string
	Apply   func(*State)
	Message string
	Meta    map[string]any
	Status  models.StepStatus
}

// Skip builds the delta for a branch that has nothing to do. The audit
// row is recorded as skipped with zero duration and the keys are still
// produced, carrying their empty values.
func Skip(reason string, apply func(*State), keys ...string) *Delta {
	return &Delta{
		Keys:    keys,
		Apply:   apply,
		Message: reason,
		Status:  models.StepSkipped,
	}
}

// exec runs one step: cancellation gate, timeout enforcement, audit
// row, state merge. Returned errors are wrapped with the step name so
// the failure path can report which step broke the run.
func (r *run) exec(ctx context.Context, step Step) error {
	if err := ctx.Err(); err != nil {
		return ErrCancelled
	}

	stepCtx := ctx
	cancel := context.CancelFunc(func() {})
	if step.Timeout > 0 {
		stepCtx, cancel = context.WithTimeout(ctx, step.Timeout)
	}
	defer cancel()

	start := time.Now()
	delta, err := step.Run(stepCtx)
	elapsed := time.Since(start)

	if err != nil {
		switch {
		case ctx.Err() != nil:
			// The run itself was killed; the terminal pipeline_cancelled
			// row covers it.
			slog.Warn("Step interrupted by cancellation", "run_id", r.id, "step", step.Name)
			return ErrCancelled
		case step.Timeout > 0 && errors.Is(stepCtx.Err(), context.DeadlineExceeded):
			toErr := &StepTimeoutError{Step: step.Name, Timeout: step.Timeout}
			if !step.SelfAudit {
				r.p.store.LogStep(context.Background(), r.id, step.Name,
					models.StepTimeout, toErr.Error(), elapsed, nil)
			}
			slog.Error("Step timed out", "run_id", r.id, "step", step.Name, "timeout", step.Timeout)
			return toErr
		default:
			if !step.SelfAudit {
				r.p.store.LogStep(context.Background(), r.id, step.Name,
					models.StepFailure, err.Error(), elapsed, nil)
			}
			slog.Error("Step failed", "run_id", r.id, "step", step.Name, "error", err)
			return &ExternalError{Step: step.Name, Err: err}
		}
	}

	if delta != nil {
		status := delta.Status
		if status == "" {
			status = models.StepSuccess
		}
		if !step.SelfAudit {
			duration := elapsed
			if status == models.StepSkipped {
				duration = 0
			}
			r.p.store.LogStep(ctx, r.id, step.Name, status,
				delta.Message, duration, summarizeMeta(delta.Meta))
		}
		r.state.apply(delta)
	}
	return nil
}
