// Package saga runs a sequence of compensable steps.
package saga

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"
)

// Step is a single unit of work. Compensate undoes the effect of a
// successful Execute.
type Step interface {
	Name() string
	Execute(ctx context.Context) error
	Compensate(ctx context.Context) error
}

// FuncStep adapts a pair of functions to Step.
type FuncStep struct {
	StepName     string
	ExecuteFn    func(ctx context.Context) error
	CompensateFn func(ctx context.Context) error
}

func (s FuncStep) Name() string { return s.StepName }

func (s FuncStep) Execute(ctx context.Context) error { return s.ExecuteFn(ctx) }

func (s FuncStep) Compensate(ctx context.Context) error {
	if s.CompensateFn == nil {
		return nil
	}
	return s.CompensateFn(ctx)
}

// CompensationError is returned when a step failed and at least one of the
// previous steps could not be compensated.
type CompensationError struct {
	Cause error
	Errs  error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("%v (compensation failed: %v)", e.Cause, e.Errs)
}

func (e *CompensationError) Unwrap() error { return e.Cause }

// Run executes steps in order. When a step fails, every previously
// successful step is compensated in reverse order and the step error is
// returned.
func Run(ctx context.Context, steps ...Step) error {
	done := make([]Step, 0, len(steps))

	for _, step := range steps {
		if err := step.Execute(ctx); err != nil {
			slog.WarnContext(ctx, "Saga step failed, rolling back", "step", step.Name(), "error", err)
			if cerr := rollback(ctx, done); cerr != nil {
				return &CompensationError{Cause: err, Errs: cerr}
			}
			return err
		}
		done = append(done, step)
	}
	return nil
}

func rollback(ctx context.Context, steps []Step) error {
	var result *multierror.Error
	for i := len(steps) - 1; i >= 0; i-- {
		step := steps[i]
		if err := step.Compensate(ctx); err != nil {
			slog.ErrorContext(ctx, "Failed to compensate saga step", "step", step.Name(), "error", err)
			result = multierror.Append(result, fmt.Errorf("%s: %w", step.Name(), err))
		}
	}
	return result.ErrorOrNil()
}
