package models

import (
	"encoding/json"
	"time"
)

// RunStatus is the lifecycle state of a report run.
type RunStatus string

const (
	RunStatusPending    RunStatus = "pending"
	RunStatusProcessing RunStatus = "processing"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
	RunStatusCancelled  RunStatus = "cancelled"
)

// Terminal reports whether the status can no longer change.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// Active reports whether the run is still pending or processing.
func (s RunStatus) Active() bool {
	return s == RunStatusPending || s == RunStatusProcessing
}

// Run is a row in the runs table. Columns that hold serialized JSON
// (strategy, signal lists, profiles, sections) stay as raw strings here;
// decode helpers below unpack the ones the API needs structured.
type Run struct {
	ID      int64  `db:"id" json:"id"`
	BatchID *int64 `db:"batch_id" json:"batch_id,omitempty"`

	TargetDomain       string  `db:"target_domain" json:"target_domain"`
	TargetCompany      *string `db:"target_company" json:"target_company,omitempty"`
	ProductDescription *string `db:"product_description" json:"product_description,omitempty"`
	CampaignID         *string `db:"campaign_id" json:"campaign_id,omitempty"`
	ProspectName       *string `db:"prospect_name" json:"prospect_name,omitempty"`
	ProspectEmail      *string `db:"prospect_email" json:"prospect_email,omitempty"`
	Tier               *string `db:"tier" json:"tier,omitempty"`

	SearchStrategy    *string `db:"search_strategy" json:"search_strategy,omitempty"`
	DiscoverySignalsA *string `db:"discovery_signals_a" json:"discovery_signals_a,omitempty"`
	DiscoverySignalsB *string `db:"discovery_signals_b" json:"discovery_signals_b,omitempty"`
	DiscoveryBuyers   *string `db:"discovery_buyers" json:"discovery_buyers,omitempty"`

	FeaturedBuyerID    *string `db:"featured_buyer_id" json:"featured_buyer_id,omitempty"`
	FeaturedBuyerName  *string `db:"featured_buyer_name" json:"featured_buyer_name,omitempty"`
	SelectionRationale *string `db:"selection_rationale" json:"selection_rationale,omitempty"`
	SecondaryBuyers    *string `db:"secondary_buyers" json:"secondary_buyers,omitempty"`

	FeatProfile            *string `db:"feat_profile" json:"feat_profile,omitempty"`
	FeatContacts           *string `db:"feat_contacts" json:"feat_contacts,omitempty"`
	FeatOpportunities      *string `db:"feat_opportunities" json:"feat_opportunities,omitempty"`
	FeatAIContext          *string `db:"feat_ai_context" json:"feat_ai_context,omitempty"`
	FeatAIContextAvailable *bool   `db:"feat_ai_context_available" json:"feat_ai_context_available,omitempty"`

	SecProfiles *string `db:"sec_profiles" json:"sec_profiles,omitempty"`
	SecContacts *string `db:"sec_contacts" json:"sec_contacts,omitempty"`

	SectionExecSummary *string `db:"section_exec_summary" json:"section_exec_summary,omitempty"`
	SectionFeatured    *string `db:"section_featured" json:"section_featured,omitempty"`
	SectionSecondary   *string `db:"section_secondary" json:"section_secondary,omitempty"`
	SectionCTA         *string `db:"section_cta" json:"section_cta,omitempty"`
	SectionFooter      *string `db:"section_footer" json:"section_footer,omitempty"`

	ReportMarkdown   *string `db:"report_markdown" json:"report_markdown,omitempty"`
	ValidationResult *string `db:"validation_result" json:"validation_result,omitempty"`
	NotionURL        *string `db:"notion_url" json:"notion_url,omitempty"`
	Error            *string `db:"error" json:"error,omitempty"`

	Status      RunStatus  `db:"status" json:"status"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// DecodeSecondaryBuyers unpacks the secondary_buyers JSON column.
// Returns nil when the column is NULL or malformed.
func (r *Run) DecodeSecondaryBuyers() []ScoredBuyer {
	if r.SecondaryBuyers == nil {
		return nil
	}
	var buyers []ScoredBuyer
	if err := json.Unmarshal([]byte(*r.SecondaryBuyers), &buyers); err != nil {
		return nil
	}
	return buyers
}

// DecodeValidationResult unpacks the validation_result JSON column.
func (r *Run) DecodeValidationResult() *ValidationResult {
	if r.ValidationResult == nil {
		return nil
	}
	var vr ValidationResult
	if err := json.Unmarshal([]byte(*r.ValidationResult), &vr); err != nil {
		return nil
	}
	return &vr
}
