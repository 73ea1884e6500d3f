package models

// SearchStrategy is the structured output of the strategy step: which
// keywords, buyer types, and regions the discovery searches should use.
type SearchStrategy struct {
	PrimaryKeywords   []string `json:"primary_keywords"`
	AlternateKeywords []string `json:"alternate_keywords"`
	MeetingKeywords   []string `json:"meeting_keywords"`
	RFPKeywords       []string `json:"rfp_keywords"`
	BuyerTypes        []string `json:"buyer_types"`
	OpportunityTypes  []string `json:"opportunity_types"`
	GeographicHints   []string `json:"geographic_hints"`
	SLEDSegments      []string `json:"sled_segments"`
	IdealBuyerProfile string   `json:"ideal_buyer_profile"`
}
