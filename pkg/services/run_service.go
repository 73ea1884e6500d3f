// Package services contains business logic service layer implementations.
package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/govsignal/scout/pkg/models"
	"github.com/govsignal/scout/pkg/runner"
	"github.com/govsignal/scout/pkg/store"
)

// recentRunLimit caps the run selector dropdown.
const recentRunLimit = 20

// dedupStep is the audit step whose metadata records whether keyword
// diversification was applied for the run.
const dedupStep = "s1_validate_and_load"

// runViewJSONFields lists the run columns that hold serialized JSON and
// get parsed into structures for the full data view.
var runViewJSONFields = []string{
	"search_strategy",
	"discovery_signals_a",
	"discovery_signals_b",
	"discovery_buyers",
	"secondary_buyers",
	"feat_profile",
	"feat_contacts",
	"sec_profiles",
	"sec_contacts",
	"validation_result",
}

// RunStatus is the polling payload for one run: a lightweight projection
// of the run row, its audit trail, and the state of its pool worker.
type RunStatus struct {
	Run            map[string]any      `json:"run"`
	AuditLog       []models.AuditEntry `json:"audit_log"`
	PipelineActive bool                `json:"pipeline_active"`
	Error          *string             `json:"error"`
}

// RunService handles run submission, monitoring, and inspection.
type RunService struct {
	store *store.Store
	pool  *runner.Pool
}

// NewRunService creates a new RunService.
func NewRunService(st *store.Store, pool *runner.Pool) *RunService {
	if st == nil {
		panic("NewRunService: store must not be nil")
	}
	if pool == nil {
		panic("NewRunService: pool must not be nil")
	}
	return &RunService{store: st, pool: pool}
}

// Start validates the webhook and admits it into the run pool. Returns
// the new run id; the pipeline itself executes in the background.
func (s *RunService) Start(ctx context.Context, webhook models.WebhookPayload) (int64, error) {
	if !webhook.Valid() {
		return 0, NewValidationError("webhook", "At least one of target_company or target_domain required")
	}
	return s.pool.Submit(ctx, webhook)
}

// Status assembles the polling payload for one run.
func (s *RunService) Status(ctx context.Context, runID int64) (*RunStatus, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	audit, err := s.store.ListAudit(ctx, runID)
	if err != nil {
		return nil, err
	}

	lightRun := map[string]any{
		"id":                  run.ID,
		"target_domain":       run.TargetDomain,
		"target_company":      run.TargetCompany,
		"product_description": run.ProductDescription,
		"status":              run.Status,
		"created_at":          run.CreatedAt,
		"completed_at":        run.CompletedAt,
		"featured_buyer_id":   run.FeaturedBuyerID,
		"featured_buyer_name": run.FeaturedBuyerName,
		"featured_buyer_type": nil,
		"selection_rationale": run.SelectionRationale,
		"secondary_buyers":    parseJSONField(run.SecondaryBuyers),
		"validation_result":   parseJSONField(run.ValidationResult),
		"notion_url":          run.NotionURL,
		"batch_id":            run.BatchID,
		"search_strategy":     run.SearchStrategy,
	}

	priorCount := 0
	if run.TargetDomain != "" {
		priorCount, err = s.store.CountPriorCompleted(ctx, run.TargetDomain, run.ID)
		if err != nil {
			return nil, err
		}
	}
	lightRun["prior_run_count"] = priorCount
	lightRun["dedup_enabled"] = dedupFlag(audit)

	active, workerErr, _ := s.pool.RunState(runID)
	var workerErrStr *string
	if workerErr != nil {
		v := workerErr.Error()
		workerErrStr = &v
	}

	return &RunStatus{
		Run:            lightRun,
		AuditLog:       audit,
		PipelineActive: active,
		Error:          workerErrStr,
	}, nil
}

// Kill signals the run's pipeline to stop and marks the row cancelled.
func (s *RunService) Kill(ctx context.Context, runID int64) error {
	return s.pool.Cancel(ctx, runID)
}

// Recent returns the newest runs for the run selector dropdown.
func (s *RunService) Recent(ctx context.Context) ([]models.Run, error) {
	return s.store.ListRecentRuns(ctx, recentRunLimit)
}

// RunView returns the full run row with its JSON columns parsed into
// structures.
func (s *RunService) RunView(ctx context.Context, runID int64) (map[string]any, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	view, err := runAsMap(run)
	if err != nil {
		return nil, err
	}
	for _, key := range runViewJSONFields {
		raw, ok := view[key].(string)
		if !ok || raw == "" {
			continue
		}
		var parsed any
		if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
			view[key] = parsed
		}
	}
	return view, nil
}

// TableData returns a run's rows from one whitelisted child table.
func (s *RunService) TableData(ctx context.Context, runID int64, table string) ([]map[string]any, error) {
	return s.store.TableRows(ctx, runID, table)
}

// runAsMap converts a run row to a generic map via a JSON round-trip so
// the data view can rewrite individual columns.
func runAsMap(run *models.Run) (map[string]any, error) {
	raw, err := json.Marshal(run)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run %d: %w", run.ID, err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode run %d: %w", run.ID, err)
	}
	return out, nil
}

// parseJSONField decodes a JSON column for the frontend, falling back to
// the raw string when it does not parse.
func parseJSONField(raw *string) any {
	if raw == nil {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(*raw), &v); err != nil {
		return *raw
	}
	return v
}

// dedupFlag extracts the dedup_enabled marker from the first validation
// step entry that carries metadata.
func dedupFlag(audit []models.AuditEntry) any {
	for _, e := range audit {
		if e.Step != dedupStep || e.Metadata == nil || *e.Metadata == "" {
			continue
		}
		var meta map[string]any
		if err := json.Unmarshal([]byte(*e.Metadata), &meta); err != nil {
			return nil
		}
		return meta["dedup_enabled"]
	}
	return nil
}
