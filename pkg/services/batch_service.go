package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/govsignal/scout/pkg/models"
	"github.com/govsignal/scout/pkg/runner"
	"github.com/govsignal/scout/pkg/store"
)

// BatchReceipt acknowledges an accepted batch submission.
type BatchReceipt struct {
	BatchID int64   `json:"batch_id"`
	RunIDs  []int64 `json:"run_ids"`
	Total   int     `json:"total"`
}

// BatchStatus summarizes the lifecycle states of every run in a batch.
type BatchStatus struct {
	BatchID    int64        `json:"batch_id"`
	Total      int          `json:"total"`
	Completed  int          `json:"completed"`
	Failed     int          `json:"failed"`
	Processing int          `json:"processing"`
	Pending    int          `json:"pending"`
	Cancelled  int          `json:"cancelled"`
	Runs       []models.Run `json:"runs"`
}

// BatchService handles batch submission, monitoring, and kill.
type BatchService struct {
	store *store.Store
	pool  *runner.Pool
}

// NewBatchService creates a new BatchService.
func NewBatchService(st *store.Store, pool *runner.Pool) *BatchService {
	if st == nil {
		panic("NewBatchService: store must not be nil")
	}
	if pool == nil {
		panic("NewBatchService: pool must not be nil")
	}
	return &BatchService{store: st, pool: pool}
}

// Start validates every row, then admits the whole batch. Queued runs
// wait on the batch's own concurrency gate, so oversized batches are
// accepted rather than rejected.
func (s *BatchService) Start(ctx context.Context, webhooks []models.WebhookPayload) (*BatchReceipt, error) {
	if len(webhooks) == 0 {
		return nil, NewValidationError("webhooks", "Empty webhook list")
	}

	var invalid []string
	for i, wh := range webhooks {
		if !wh.Valid() {
			invalid = append(invalid, fmt.Sprintf("Row %d: missing target_company and target_domain", i+1))
		}
	}
	if len(invalid) > 0 {
		return nil, NewValidationError("webhooks", "Validation failed:\n"+strings.Join(invalid, "\n"))
	}

	batchID, runIDs, err := s.pool.SubmitBatch(ctx, webhooks)
	if err != nil {
		return nil, err
	}
	return &BatchReceipt{BatchID: batchID, RunIDs: runIDs, Total: len(runIDs)}, nil
}

// Status returns per-state counts plus the full member rows.
func (s *BatchService) Status(ctx context.Context, batchID int64) (*BatchStatus, error) {
	runs, err := s.store.ListBatchRuns(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrNotFound
	}

	status := &BatchStatus{BatchID: batchID, Total: len(runs), Runs: runs}
	for _, r := range runs {
		switch r.Status {
		case models.RunStatusCompleted:
			status.Completed++
		case models.RunStatusFailed:
			status.Failed++
		case models.RunStatusProcessing:
			status.Processing++
		case models.RunStatusPending:
			status.Pending++
		case models.RunStatusCancelled:
			status.Cancelled++
		}
	}
	return status, nil
}

// Kill cancels every live run in the batch and reports how many workers
// were signalled. Unknown batch ids kill nothing.
func (s *BatchService) Kill(ctx context.Context, batchID int64) (int, error) {
	return s.pool.CancelBatch(ctx, batchID)
}
