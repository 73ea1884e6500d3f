package models

// ScoredBuyer is one candidate buyer after ranking. JSON tags match the
// provider's camelCase record shape so persisted rows and provider
// payloads read the same way.
type ScoredBuyer struct {
	BuyerID          string  `json:"buyerId"`
	BuyerName        string  `json:"buyerName"`
	BuyerType        string  `json:"buyerType"`
	SignalCount      int     `json:"signalCount"`
	TopSignalType    string  `json:"topSignalType"`
	TopSignalSummary string  `json:"topSignalSummary"`
	Score            float64 `json:"score"`
}

// SecondaryContacts pairs a secondary buyer with its fetched contacts.
type SecondaryContacts struct {
	BuyerID   string   `json:"buyerId"`
	BuyerName string   `json:"buyerName"`
	Contacts  []Record `json:"contacts"`
}
