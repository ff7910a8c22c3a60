package saga

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	calls []string
}

func (r *recorder) step(name string, execErr, compErr error) Step {
	return FuncStep{
		StepName: name,
		ExecuteFn: func(context.Context) error {
			r.calls = append(r.calls, "exec:"+name)
			return execErr
		},
		CompensateFn: func(context.Context) error {
			r.calls = append(r.calls, "comp:"+name)
			return compErr
		},
	}
}

func TestRunAllStepsSucceed(t *testing.T) {
	rec := &recorder{}
	err := Run(context.Background(), rec.step("a", nil, nil), rec.step("b", nil, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"exec:a", "exec:b"}, rec.calls)
}

func TestRunCompensatesInReverseOrder(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("boom")

	err := Run(context.Background(),
		rec.step("a", nil, nil),
		rec.step("b", nil, nil),
		rec.step("c", boom, nil),
		rec.step("d", nil, nil),
	)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"exec:a", "exec:b", "exec:c", "comp:b", "comp:a"}, rec.calls)
}

func TestRunReportsCompensationFailures(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("boom")
	stuck := errors.New("stuck")

	err := Run(context.Background(),
		rec.step("a", nil, stuck),
		rec.step("b", nil, nil),
		rec.step("c", boom, nil),
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var cerr *CompensationError
	require.ErrorAs(t, err, &cerr)
	assert.ErrorIs(t, cerr.Errs, stuck)
	assert.Equal(t, []string{"exec:a", "exec:b", "exec:c", "comp:b", "comp:a"}, rec.calls)
}

func TestFuncStepWithoutCompensation(t *testing.T) {
	s := FuncStep{StepName: "noop", ExecuteFn: func(context.Context) error { return nil }}
	assert.NoError(t, s.Compensate(context.Background()))
}
