package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/govsignal/scout/pkg/models"
)

// maxAuditMessage caps the persisted message length.
const maxAuditMessage = 2000

// LogStep appends one audit entry. It never returns an error: a failed
// audit write must not break the pipeline, so problems are logged and
// swallowed here.
func (s *Store) LogStep(ctx context.Context, runID int64, step string, status models.StepStatus, message string, duration time.Duration, metadata map[string]any) {
	if runID == 0 {
		return
	}

	var metaJSON *string
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			slog.Warn("Failed to marshal audit metadata",
				"run_id", runID, "step", step, "error", err)
		} else {
			v := string(raw)
			metaJSON = &v
		}
	}

	var msg *string
	if message != "" {
		v := truncate(message, maxAuditMessage)
		msg = &v
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (run_id, step, status, message, duration_seconds, metadata)
		VALUES (?, ?, ?, ?, ?, ?)`,
		runID, step, status, msg, duration.Seconds(), metaJSON)
	if err != nil {
		slog.Warn("Failed to write audit entry",
			"run_id", runID, "step", step, "status", status, "error", err)
	}
}

// ListAudit returns a run's audit entries in insertion order.
func (s *Store) ListAudit(ctx context.Context, runID int64) ([]models.AuditEntry, error) {
	entries := []models.AuditEntry{}
	err := s.db.SelectContext(ctx, &entries,
		`SELECT * FROM audit_log WHERE run_id = ? ORDER BY id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit for run %d: %w", runID, err)
	}
	return entries, nil
}
