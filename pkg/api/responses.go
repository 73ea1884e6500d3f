package api

import (
	"github.com/govsignal/scout/pkg/database"
)

// RunReceiptResponse is returned by POST /api/run.
type RunReceiptResponse struct {
	RunID int64 `json:"run_id"`
}

// KillResponse is returned by POST /api/kill/:run_id.
type KillResponse struct {
	Status string `json:"status"`
	RunID  int64  `json:"run_id"`
}

// BatchKillResponse is returned by POST /api/batch-kill/:batch_id.
type BatchKillResponse struct {
	Status  string `json:"status"`
	BatchID int64  `json:"batch_id"`
	Killed  int    `json:"killed"`
}

// ConfigResetResponse is returned by POST /api/config/reset.
type ConfigResetResponse struct {
	Status string         `json:"status"`
	Values map[string]any `json:"values"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status   string                 `json:"status"`
	Version  string                 `json:"version"`
	Database *database.HealthStatus `json:"database"`
	Pool     *PoolHealth            `json:"pool"`
}

// PoolHealth reports run pool occupancy.
type PoolHealth struct {
	ActiveRuns int `json:"active_runs"`
	Capacity   int `json:"capacity"`
}
