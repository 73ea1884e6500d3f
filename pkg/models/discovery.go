package models

import "time"

// Discovery is a row in the discoveries table: one scored buyer signal
// persisted for later inspection and cross-run dedup.
type Discovery struct {
	ID            int64     `db:"id" json:"id"`
	RunID         int64     `db:"run_id" json:"run_id"`
	TargetDomain  string    `db:"target_domain" json:"target_domain"`
	BuyerID       *string   `db:"buyer_id" json:"buyer_id,omitempty"`
	BuyerName     *string   `db:"buyer_name" json:"buyer_name,omitempty"`
	SignalType    *string   `db:"signal_type" json:"signal_type,omitempty"`
	SignalSummary *string   `db:"signal_summary" json:"signal_summary,omitempty"`
	SignalScore   *float64  `db:"signal_score" json:"signal_score,omitempty"`
	DiscoveredAt  time.Time `db:"discovered_at" json:"discovered_at"`
}
