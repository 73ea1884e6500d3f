package models

import "time"

// StepStatus is the outcome recorded for one audit entry.
type StepStatus string

const (
	StepSuccess StepStatus = "success"
	StepFailure StepStatus = "failure"
	StepTimeout StepStatus = "timeout"
	StepWarning StepStatus = "warning"
	StepSkipped StepStatus = "skipped"
)

// AuditEntry is a row in the audit_log table: one per executed (or
// skipped) step, plus the terminal pipeline_* markers.
type AuditEntry struct {
	ID              int64      `db:"id" json:"id"`
	RunID           int64      `db:"run_id" json:"run_id"`
	Step            string     `db:"step" json:"step"`
	Status          StepStatus `db:"status" json:"status"`
	Message         *string    `db:"message" json:"message,omitempty"`
	DurationSeconds *float64   `db:"duration_seconds" json:"duration_seconds,omitempty"`
	Metadata        *string    `db:"metadata" json:"metadata,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}
