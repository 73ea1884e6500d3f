package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/govsignal/scout/pkg/models"
	"github.com/govsignal/scout/pkg/pipeline"
	"github.com/govsignal/scout/pkg/store"
)

func newBatchService(t *testing.T, exec *stubExecutor, maxRuns int) (*BatchService, *store.Store) {
	t.Helper()
	st := newTestStore(t)
	pool := newTestPool(t, st, exec, maxRuns)
	return NewBatchService(st, pool), st
}

func TestBatchServiceStartRejectsEmptyList(t *testing.T) {
	svc, _ := newBatchService(t, &stubExecutor{}, 3)

	_, err := svc.Start(context.Background(), nil)
	require.Error(t, err)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "Empty webhook list", ve.Message)
}

func TestBatchServiceStartRejectsInvalidRows(t *testing.T) {
	svc, _ := newBatchService(t, &stubExecutor{}, 3)

	webhooks := []models.WebhookPayload{
		serviceWebhook(),
		{ProductDescription: "no target"},
		{Tier: "A"},
	}
	_, err := svc.Start(context.Background(), webhooks)
	require.Error(t, err)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t,
		"Validation failed:\n"+
			"Row 2: missing target_company and target_domain\n"+
			"Row 3: missing target_company and target_domain",
		ve.Message)
}

func TestBatchServiceStartReturnsReceipt(t *testing.T) {
	svc, st := newBatchService(t, &stubExecutor{}, 3)

	receipt, err := svc.Start(context.Background(),
		[]models.WebhookPayload{serviceWebhook(), serviceWebhook(), serviceWebhook()})
	require.NoError(t, err)

	assert.Equal(t, int64(1), receipt.BatchID)
	assert.Equal(t, 3, receipt.Total)
	require.Len(t, receipt.RunIDs, 3)

	runs, err := st.ListBatchRuns(context.Background(), receipt.BatchID)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestBatchServiceStartAcceptsOversizedBatch(t *testing.T) {
	exec := &stubExecutor{}
	exec.runFn = func(ctx context.Context, in pipeline.Input) pipeline.Outcome {
		<-ctx.Done()
		return pipeline.Outcome{Status: pipeline.StatusCancelled, Err: ctx.Err()}
	}
	svc, _ := newBatchService(t, exec, 1)

	// Five rows against one slot: accepted, excess queues on the batch gate.
	receipt, err := svc.Start(context.Background(), []models.WebhookPayload{
		serviceWebhook(), serviceWebhook(), serviceWebhook(), serviceWebhook(), serviceWebhook(),
	})
	require.NoError(t, err)
	assert.Equal(t, 5, receipt.Total)
}

func TestBatchServiceStatusCountsStates(t *testing.T) {
	svc, st := newBatchService(t, &stubExecutor{}, 3)
	ctx := context.Background()
	batchID := int64(9)

	var ids []int64
	for i := 0; i < 4; i++ {
		id, err := st.InsertRunStub(ctx, serviceWebhook(), &batchID)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.NoError(t, st.UpdateRunCompleted(ctx, ids[0], &store.Snapshot{}))
	require.NoError(t, st.UpdateRunFailed(ctx, ids[1], "signal fetch failed", nil))
	changed, err := st.UpdateRunCancelled(ctx, ids[2])
	require.NoError(t, err)
	require.True(t, changed)

	status, err := svc.Status(ctx, batchID)
	require.NoError(t, err)

	assert.Equal(t, batchID, status.BatchID)
	assert.Equal(t, 4, status.Total)
	assert.Equal(t, 1, status.Completed)
	assert.Equal(t, 1, status.Failed)
	assert.Equal(t, 1, status.Cancelled)
	assert.Equal(t, 1, status.Pending)
	assert.Zero(t, status.Processing)
	require.Len(t, status.Runs, 4)
	assert.Equal(t, ids[0], status.Runs[0].ID, "members are listed oldest first")
}

func TestBatchServiceStatusUnknownBatch(t *testing.T) {
	svc, _ := newBatchService(t, &stubExecutor{}, 3)
	_, err := svc.Status(context.Background(), 77)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBatchServiceKillCancelsMembers(t *testing.T) {
	exec := &stubExecutor{}
	entered := make(chan struct{}, 2)
	exec.runFn = func(ctx context.Context, in pipeline.Input) pipeline.Outcome {
		entered <- struct{}{}
		<-ctx.Done()
		return pipeline.Outcome{Status: pipeline.StatusCancelled, Err: ctx.Err()}
	}
	svc, st := newBatchService(t, exec, 2)

	receipt, err := svc.Start(context.Background(),
		[]models.WebhookPayload{serviceWebhook(), serviceWebhook()})
	require.NoError(t, err)
	<-entered
	<-entered

	killed, err := svc.Kill(context.Background(), receipt.BatchID)
	require.NoError(t, err)
	assert.Equal(t, 2, killed)

	for _, id := range receipt.RunIDs {
		run, err := st.GetRun(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, models.RunStatusCancelled, run.Status)
	}
}

func TestBatchServiceKillUnknownBatch(t *testing.T) {
	svc, _ := newBatchService(t, &stubExecutor{}, 3)
	killed, err := svc.Kill(context.Background(), 1234)
	require.NoError(t, err)
	assert.Zero(t, killed)
}
