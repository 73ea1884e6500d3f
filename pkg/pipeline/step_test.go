package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/govsignal/scout/pkg/models"
)

// newExecRun builds a run bound to a real store so executed steps leave
// queryable audit rows.
func newExecRun(t *testing.T) (*run, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	in := env.newInput(t, testWebhook())
	return &run{
		p:       env.pipeline,
		id:      in.RunID,
		webhook: in.Webhook,
		tun:     in.Tunables,
		state:   newState(in.Webhook, in.RunID),
	}, env
}

func TestExecAppliesDeltaAndRecordsSuccess(t *testing.T) {
	r, env := newExecRun(t)

	err := r.exec(context.Background(), Step{
		Name:    "fetch_strategy",
		Timeout: time.Second,
		Run: func(ctx context.Context) (*Delta, error) {
			return &Delta{
				Keys:    []string{keyStrategy},
				Apply:   func(s *State) { s.Strategy = testStrategy() },
				Message: "strategy ready",
				Meta:    map[string]any{"keywords": 1},
			}, nil
		},
	})
	require.NoError(t, err)

	assert.NotNil(t, r.state.Strategy)
	assert.True(t, r.state.has(keyStrategy))

	entry, found := env.auditSteps(t, r.id)["fetch_strategy"]
	require.True(t, found)
	assert.Equal(t, models.StepSuccess, entry.Status)
	require.NotNil(t, entry.Message)
	assert.Equal(t, "strategy ready", *entry.Message)
	require.NotNil(t, entry.DurationSeconds)
	assert.GreaterOrEqual(t, *entry.DurationSeconds, 0.0)
	require.NotNil(t, entry.Metadata)
	assert.Contains(t, *entry.Metadata, "keywords")
}

func TestExecSkipRecordsZeroDuration(t *testing.T) {
	r, env := newExecRun(t)

	err := r.exec(context.Background(), Step{
		Name: "optional_search",
		Run: func(ctx context.Context) (*Delta, error) {
			time.Sleep(25 * time.Millisecond)
			return Skip("nothing to search", nil, keySignalsB), nil
		},
	})
	require.NoError(t, err)

	// The key is produced even though the branch did no work.
	assert.True(t, r.state.has(keySignalsB))

	entry, found := env.auditSteps(t, r.id)["optional_search"]
	require.True(t, found)
	assert.Equal(t, models.StepSkipped, entry.Status)
	require.NotNil(t, entry.Message)
	assert.Equal(t, "nothing to search", *entry.Message)
	require.NotNil(t, entry.DurationSeconds)
	assert.Zero(t, *entry.DurationSeconds)
}

func TestExecStepTimeout(t *testing.T) {
	r, env := newExecRun(t)

	err := r.exec(context.Background(), Step{
		Name:    "slow_provider_call",
		Timeout: 15 * time.Millisecond,
		Run: func(ctx context.Context) (*Delta, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})

	var toErr *StepTimeoutError
	require.ErrorAs(t, err, &toErr)
	assert.Equal(t, "slow_provider_call", toErr.Step)
	assert.Equal(t, 15*time.Millisecond, toErr.Timeout)

	entry, found := env.auditSteps(t, r.id)["slow_provider_call"]
	require.True(t, found)
	assert.Equal(t, models.StepTimeout, entry.Status)
	require.NotNil(t, entry.Message)
	assert.Equal(t, "step slow_provider_call timed out after 15ms", *entry.Message)
}

func TestExecParentCancellationLeavesNoRow(t *testing.T) {
	r, env := newExecRun(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(15 * time.Millisecond)
		cancel()
	}()

	err := r.exec(ctx, Step{
		Name:    "interruptible_wait",
		Timeout: time.Second,
		Run: func(ctx context.Context) (*Delta, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})

	// Run-level cancellation is reported once by the terminal marker,
	// not per step.
	assert.ErrorIs(t, err, ErrCancelled)
	assert.NotContains(t, env.auditSteps(t, r.id), "interruptible_wait")
}

func TestExecGateRejectsCancelledContext(t *testing.T) {
	r, env := newExecRun(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	invoked := false
	err := r.exec(ctx, Step{
		Name: "gated_step",
		Run: func(ctx context.Context) (*Delta, error) {
			invoked = true
			return nil, nil
		},
	})

	assert.ErrorIs(t, err, ErrCancelled)
	assert.False(t, invoked)
	assert.NotContains(t, env.auditSteps(t, r.id), "gated_step")
}

func TestExecWrapsProviderFailure(t *testing.T) {
	r, env := newExecRun(t)

	boom := errors.New("boom")
	err := r.exec(context.Background(), Step{
		Name:    "provider_call",
		Timeout: time.Second,
		Run: func(ctx context.Context) (*Delta, error) {
			return nil, boom
		},
	})

	var extErr *ExternalError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, "provider_call", extErr.Step)
	assert.ErrorIs(t, err, boom)
	assert.EqualError(t, err, "provider_call: boom")

	entry, found := env.auditSteps(t, r.id)["provider_call"]
	require.True(t, found)
	assert.Equal(t, models.StepFailure, entry.Status)
	require.NotNil(t, entry.Message)
	assert.Equal(t, "boom", *entry.Message)
}

func TestExecSelfAuditOwnsItsRows(t *testing.T) {
	r, env := newExecRun(t)

	err := r.exec(context.Background(), Step{
		Name:      "self_audited_fetch",
		SelfAudit: true,
		Run: func(ctx context.Context) (*Delta, error) {
			return nil, errors.New("partial failure already recorded")
		},
	})
	var extErr *ExternalError
	require.ErrorAs(t, err, &extErr)
	assert.NotContains(t, env.auditSteps(t, r.id), "self_audited_fetch")

	err = r.exec(context.Background(), Step{
		Name:      "self_audited_write",
		SelfAudit: true,
		Run: func(ctx context.Context) (*Delta, error) {
			return &Delta{
				Keys:  []string{keyCTA},
				Apply: func(s *State) { s.CTA = "call to action" },
			}, nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "call to action", r.state.CTA)
	assert.NotContains(t, env.auditSteps(t, r.id), "self_audited_write")
}

func TestExecDeadlineWithoutBudgetIsFailure(t *testing.T) {
	r, env := newExecRun(t)

	// A step with no budget of its own can still surface a deadline from
	// an inner call; that is an external failure, not a step timeout.
	err := r.exec(context.Background(), Step{
		Name: "inner_deadline",
		Run: func(ctx context.Context) (*Delta, error) {
			return nil, context.DeadlineExceeded
		},
	})

	var extErr *ExternalError
	require.ErrorAs(t, err, &extErr)
	var toErr *StepTimeoutError
	assert.False(t, errors.As(err, &toErr))

	entry, found := env.auditSteps(t, r.id)["inner_deadline"]
	require.True(t, found)
	assert.Equal(t, models.StepFailure, entry.Status)
}

func TestExecNilDeltaLeavesNoRow(t *testing.T) {
	r, env := newExecRun(t)

	err := r.exec(context.Background(), Step{
		Name: "silent_step",
		Run: func(ctx context.Context) (*Delta, error) {
			return nil, nil
		},
	})
	require.NoError(t, err)
	assert.NotContains(t, env.auditSteps(t, r.id), "silent_step")
}

func TestDeltaStatusDefaultsToSuccess(t *testing.T) {
	r, env := newExecRun(t)

	err := r.exec(context.Background(), Step{
		Name: "plain_step",
		Run: func(ctx context.Context) (*Delta, error) {
			return &Delta{Message: "done"}, nil
		},
	})
	require.NoError(t, err)

	entry, found := env.auditSteps(t, r.id)["plain_step"]
	require.True(t, found)
	assert.Equal(t, models.StepSuccess, entry.Status)
}
