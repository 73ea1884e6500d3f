package models

import "time"

// Contact is a row in the contacts table: a person at the featured
// buyer captured from the provider's contact records.
type Contact struct {
	ID             int64     `db:"id" json:"id"`
	RunID          int64     `db:"run_id" json:"run_id"`
	BuyerID        *string   `db:"buyer_id" json:"buyer_id,omitempty"`
	ContactName    *string   `db:"contact_name" json:"contact_name,omitempty"`
	ContactTitle   *string   `db:"contact_title" json:"contact_title,omitempty"`
	ContactEmail   *string   `db:"contact_email" json:"contact_email,omitempty"`
	EmailVerified  bool      `db:"email_verified" json:"email_verified"`
	RelevanceScore float64   `db:"relevance_score" json:"relevance_score"`
	DiscoveredAt   time.Time `db:"discovered_at" json:"discovered_at"`
}
