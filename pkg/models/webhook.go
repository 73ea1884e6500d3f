package models

import "strings"

// WebhookPayload is the intake contract for a single report run.
// Vendors send these via POST /api/run or as rows of a batch.
type WebhookPayload struct {
	TargetCompany      string `json:"target_company,omitempty"`
	TargetDomain       string `json:"target_domain,omitempty"`
	ProductDescription string `json:"product_description,omitempty"`
	CampaignID         string `json:"campaign_id,omitempty"`
	ProspectName       string `json:"prospect_name,omitempty"`
	ProspectEmail      string `json:"prospect_email,omitempty"`
	Tier               string `json:"tier,omitempty"`
}

// Valid reports whether the payload satisfies the minimum intake
// contract: at least one of target_company or target_domain.
func (w WebhookPayload) Valid() bool {
	return strings.TrimSpace(w.TargetCompany) != "" || strings.TrimSpace(w.TargetDomain) != ""
}

// CompanyLabel returns the display name for the target, falling back
// to the domain when no company name was provided.
func (w WebhookPayload) CompanyLabel() string {
	if strings.TrimSpace(w.TargetCompany) != "" {
		return w.TargetCompany
	}
	return w.TargetDomain
}
