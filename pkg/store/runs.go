package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/govsignal/scout/pkg/models"
)

// InsertRunStub creates a pending run row carrying only the webhook
// fields. Discovery columns are backfilled later; the early insert
// gives every subsequent step a run_id for audit logging.
func (s *Store) InsertRunStub(ctx context.Context, webhook models.WebhookPayload, batchID *int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (
			batch_id, target_domain, target_company, product_description,
			campaign_id, prospect_name, prospect_email, tier, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		batchID,
		webhook.TargetDomain,
		nullable(webhook.TargetCompany),
		nullable(webhook.ProductDescription),
		nullable(webhook.CampaignID),
		nullable(webhook.ProspectName),
		nullable(webhook.ProspectEmail),
		nullable(webhook.Tier),
		models.RunStatusPending,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run stub: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read run id: %w", err)
	}
	return id, nil
}

// MarkRunProcessing flips a pending run to processing. Called by the
// admission pool once a concurrency slot is held.
func (s *Store) MarkRunProcessing(ctx context.Context, runID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ? WHERE id = ? AND status = ?`,
		models.RunStatusProcessing, runID, models.RunStatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark run %d processing: %w", runID, err)
	}
	return nil
}

// UpdateRunDiscovery backfills discovery-phase columns. COALESCE keeps
// any value that is already present, so a retried or failed run never
// loses earlier persisted state.
func (s *Store) UpdateRunDiscovery(ctx context.Context, runID int64, snap *Snapshot) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs SET
			search_strategy     = COALESCE(search_strategy, ?),
			discovery_signals_a = COALESCE(discovery_signals_a, ?),
			discovery_signals_b = COALESCE(discovery_signals_b, ?),
			discovery_buyers    = COALESCE(discovery_buyers, ?),
			featured_buyer_id   = COALESCE(featured_buyer_id, ?),
			featured_buyer_name = COALESCE(featured_buyer_name, ?),
			selection_rationale = COALESCE(selection_rationale, ?),
			secondary_buyers    = COALESCE(secondary_buyers, ?)
		WHERE id = ?`,
		snap.SearchStrategy, snap.DiscoverySignalsA, snap.DiscoverySignalsB,
		snap.DiscoveryBuyers, snap.FeaturedBuyerID, snap.FeaturedBuyerName,
		snap.SelectionRationale, snap.SecondaryBuyers, runID)
	if err != nil {
		return fmt.Errorf("failed to update run %d discovery: %w", runID, err)
	}
	return nil
}

// UpdateRunCompleted writes enrichment and report columns and marks the
// run completed.
func (s *Store) UpdateRunCompleted(ctx context.Context, runID int64, snap *Snapshot) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs SET
			feat_profile              = ?,
			feat_contacts             = ?,
			feat_opportunities        = ?,
			feat_ai_context           = ?,
			feat_ai_context_available = ?,
			sec_profiles              = ?,
			sec_contacts              = ?,
			section_exec_summary      = ?,
			section_featured          = ?,
			section_secondary         = ?,
			section_cta               = ?,
			section_footer            = ?,
			report_markdown           = ?,
			validation_result         = ?,
			notion_url                = ?,
			status                    = ?,
			completed_at              = datetime('now')
		WHERE id = ?`,
		snap.FeatProfile, snap.FeatContacts, snap.FeatOpportunities,
		snap.FeatAIContext, boolPtrToInt(snap.FeatAIContextAvailable),
		snap.SecProfiles, snap.SecContacts,
		snap.SectionExecSummary, snap.SectionFeatured, snap.SectionSecondary,
		snap.SectionCTA, snap.SectionFooter,
		snap.ReportMarkdown, snap.ValidationResult, snap.NotionURL,
		models.RunStatusCompleted, runID)
	if err != nil {
		return fmt.Errorf("failed to update run %d completed: %w", runID, err)
	}
	return nil
}

// UpdateRunFailed marks the run failed and COALESCE-merges whatever
// partial state the pipeline accumulated, without overwriting columns
// already written by discovery or a completed later step.
func (s *Store) UpdateRunFailed(ctx context.Context, runID int64, errMsg string, snap *Snapshot) error {
	if snap == nil {
		snap = &Snapshot{}
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs SET
			search_strategy           = COALESCE(search_strategy, ?),
			discovery_signals_a       = COALESCE(discovery_signals_a, ?),
			discovery_signals_b       = COALESCE(discovery_signals_b, ?),
			discovery_buyers          = COALESCE(discovery_buyers, ?),
			featured_buyer_id         = COALESCE(featured_buyer_id, ?),
			featured_buyer_name       = COALESCE(featured_buyer_name, ?),
			selection_rationale       = COALESCE(selection_rationale, ?),
			secondary_buyers          = COALESCE(secondary_buyers, ?),
			feat_profile              = COALESCE(feat_profile, ?),
			feat_contacts             = COALESCE(feat_contacts, ?),
			feat_opportunities        = COALESCE(feat_opportunities, ?),
			feat_ai_context           = COALESCE(feat_ai_context, ?),
			feat_ai_context_available = COALESCE(feat_ai_context_available, ?),
			sec_profiles              = COALESCE(sec_profiles, ?),
			sec_contacts              = COALESCE(sec_contacts, ?),
			section_exec_summary      = COALESCE(section_exec_summary, ?),
			section_featured          = COALESCE(section_featured, ?),
			section_secondary         = COALESCE(section_secondary, ?),
			section_cta               = COALESCE(section_cta, ?),
			section_footer            = COALESCE(section_footer, ?),
			report_markdown           = COALESCE(report_markdown, ?),
			validation_result         = COALESCE(validation_result, ?),
			notion_url                = COALESCE(notion_url, ?),
			error                     = ?,
			status                    = ?,
			completed_at              = datetime('now')
		WHERE id = ?`,
		snap.SearchStrategy, snap.DiscoverySignalsA, snap.DiscoverySignalsB,
		snap.DiscoveryBuyers, snap.FeaturedBuyerID, snap.FeaturedBuyerName,
		snap.SelectionRationale, snap.SecondaryBuyers,
		snap.FeatProfile, snap.FeatContacts, snap.FeatOpportunities,
		snap.FeatAIContext, boolPtrToInt(snap.FeatAIContextAvailable),
		snap.SecProfiles, snap.SecContacts,
		snap.SectionExecSummary, snap.SectionFeatured, snap.SectionSecondary,
		snap.SectionCTA, snap.SectionFooter,
		snap.ReportMarkdown, snap.ValidationResult, snap.NotionURL,
		errMsg, models.RunStatusFailed, runID)
	if err != nil {
		return fmt.Errorf("failed to update run %d failed: %w", runID, err)
	}
	return nil
}

// UpdateRunCancelled marks the run cancelled, but only while it is
// still pending or processing. Returns whether a row changed.
func (s *Store) UpdateRunCancelled(ctx context.Context, runID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, completed_at = datetime('now')
		WHERE id = ? AND status IN (?, ?)`,
		models.RunStatusCancelled, runID,
		models.RunStatusPending, models.RunStatusProcessing)
	if err != nil {
		return false, fmt.Errorf("failed to cancel run %d: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read cancel result for run %d: %w", runID, err)
	}
	return n > 0, nil
}

// UpdateRunURL fixes up the published page URL on a terminal run, used
// when the workspace URL only becomes known after completion.
func (s *Store) UpdateRunURL(ctx context.Context, runID int64, url string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET notion_url = ? WHERE id = ?`, url, runID)
	if err != nil {
		return fmt.Errorf("failed to update run %d url: %w", runID, err)
	}
	return nil
}

// GetRun loads one run row. Returns sql.ErrNoRows (wrapped) when the
// id is unknown; the services layer maps that to its not-found error.
func (s *Store) GetRun(ctx context.Context, runID int64) (*models.Run, error) {
	var run models.Run
	if err := s.db.GetContext(ctx, &run, `SELECT * FROM runs WHERE id = ?`, runID); err != nil {
		return nil, fmt.Errorf("failed to get run %d: %w", runID, err)
	}
	return &run, nil
}

// ListRecentRuns returns the newest runs first.
func (s *Store) ListRecentRuns(ctx context.Context, limit int) ([]models.Run, error) {
	runs := []models.Run{}
	err := s.db.SelectContext(ctx, &runs,
		`SELECT * FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent runs: %w", err)
	}
	return runs, nil
}

// ListBatchRuns returns every run belonging to a batch, oldest first.
func (s *Store) ListBatchRuns(ctx context.Context, batchID int64) ([]models.Run, error) {
	runs := []models.Run{}
	err := s.db.SelectContext(ctx, &runs,
		`SELECT * FROM runs WHERE batch_id = ? ORDER BY id ASC`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list batch %d runs: %w", batchID, err)
	}
	return runs, nil
}

// LoadPriorRuns returns the most recent runs for a domain, newest
// first, capped at limit.
func (s *Store) LoadPriorRuns(ctx context.Context, domain string, limit int) ([]models.Run, error) {
	runs := []models.Run{}
	err := s.db.SelectContext(ctx, &runs, `
		SELECT * FROM runs WHERE target_domain = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, domain, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load prior runs for %s: %w", domain, err)
	}
	return runs, nil
}

// CountPriorCompleted counts completed runs for the same domain that
// started before the given run.
func (s *Store) CountPriorCompleted(ctx context.Context, domain string, beforeRunID int64) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM runs
		WHERE target_domain = ? AND status = ? AND id < ?`,
		domain, models.RunStatusCompleted, beforeRunID)
	if err != nil {
		return 0, fmt.Errorf("failed to count prior runs for %s: %w", domain, err)
	}
	return n, nil
}

// MaxBatchID returns the highest batch id ever assigned, or 0 when no
// batches exist. Used to seed the batch counter at startup.
func (s *Store) MaxBatchID(ctx context.Context) (int64, error) {
	var maxID sql.NullInt64
	err := s.db.GetContext(ctx, &maxID, `SELECT MAX(batch_id) FROM runs`)
	if err != nil {
		return 0, fmt.Errorf("failed to read max batch id: %w", err)
	}
	if !maxID.Valid {
		return 0, nil
	}
	return maxID.Int64, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func boolPtrToInt(b *bool) any {
	if b == nil {
		return nil
	}
	if *b {
		return 1
	}
	return 0
}
