package pipeline

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/govsignal/scout/pkg/models"
	"github.com/govsignal/scout/pkg/store"
)

// Wire keys for the run's working state. They surface verbatim in the
// error payload's partial_state and last_completed_keys, in cancel
// audit metadata, and (lowercased column names aside) in the persisted
// run row, so they are part of the API contract.
const (
	keyRunID = "DB_RUN_ID"

	keyPriorRuns = "PRIOR_RUNS"
	keyStrategy  = "SEARCH_STRATEGY"

	keySignalsA = "DISCOVERY_SIGNALS_A"
	keySignalsB = "DISCOVERY_SIGNALS_B"
	keyBuyersC  = "DISCOVERY_BUYERS_C"
	keyBuyersD  = "DISCOVERY_BUYERS_D"

	keyFeaturedID   = "FEATURED_BUYER_ID"
	keyFeaturedName = "FEATURED_BUYER_NAME"
	keyFeaturedType = "FEATURED_BUYER_TYPE"
	keySecondary    = "SECONDARY_BUYERS"
	keyRationale    = "SELECTION_RATIONALE"
	keyAllScored    = "ALL_SCORED_BUYERS"
	keyDirectBuyers = "DISCOVERY_BUYERS"

	keyFeatProfile  = "FEAT_PROFILE"
	keyFeatContacts = "FEAT_CONTACTS"
	keyFeatOpps     = "FEAT_OPPORTUNITIES"
	keyFeatAI       = "FEAT_AI_CONTEXT"

	keySecProfiles = "SEC_PROFILES"
	keySecContacts = "SEC_CONTACTS"

	keyExecSummary      = "SECTION_EXEC_SUMMARY"
	keyFeaturedSection  = "SECTION_FEATURED"
	keySecondarySection = "SECTION_SECONDARY"
	keyCTA              = "SECTION_CTA"
	keyFooter           = "SECTION_FOOTER"

	keyReport  = "REPORT_MARKDOWN"
	keyPageURL = "NOTION_PAGE_URL"

	keyValidation  = "VALIDATION_RESULT"
	keyFixedReport = "VALIDATED_REPORT_MARKDOWN"
)

// State is the run's typed working record. Steps never write it
// directly: they return a Delta and the executor applies it under the
// lock, so parallel branches cannot race. Reads are safe without the
// lock once the producing phase has joined.
type State struct {
	mu       sync.Mutex
	produced map[string]struct{}

	webhook models.WebhookPayload
	runID   int64

	PriorRuns []models.Run
	Strategy  *models.SearchStrategy

	SignalsA []models.Record
	SignalsB []models.Record
	BuyersC  []models.Record
	BuyersD  []models.Record

	FeaturedID   string
	FeaturedName string
	FeaturedType string
	Secondary    []models.ScoredBuyer
	AllScored    []models.ScoredBuyer
	DirectBuyers []models.Record
	Rationale    string

	FeatProfile   any
	FeatContacts  []models.Record
	FeatOpps      []models.Record
	FeatAIContext string

	SecProfiles []any
	SecContacts []models.SecondaryContacts

	ExecSummary      string
	FeaturedSection  string
	SecondarySection string
	CTA              string
	Footer           string

	Report  string
	PageURL string

	Validation  *models.ValidationResult
	FixedReport string
}

func newState(webhook models.WebhookPayload, runID int64) *State {
	return &State{
		produced: map[string]struct{}{keyRunID: {}},
		webhook:  webhook,
		runID:    runID,
	}
}

// apply runs the delta's field writes and records its keys.
func (s *State) apply(d *Delta) {
	if d == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.Apply != nil {
		d.Apply(s)
	}
	for _, k := range d.Keys {
		s.produced[k] = struct{}{}
	}
}

// markProduced records keys written outside a step delta.
func (s *State) markProduced(keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		s.produced[k] = struct{}{}
	}
}

// Keys returns the produced wire keys plus the intake fields, sorted.
// Uppercase working keys sort ahead of the lowercase webhook fields,
// matching how the keys read in audit metadata.
func (s *State) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.produced)+7)
	for k := range s.produced {
		keys = append(keys, k)
	}
	keys = append(keys,
		"campaign_id", "product_description", "prospect_email",
		"prospect_name", "target_company", "target_domain", "tier")
	sort.Strings(keys)
	return keys
}

// Partial renders everything collected so far for the error payload.
func (s *State) Partial() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := map[string]any{
		"target_company":      s.webhook.TargetCompany,
		"target_domain":       s.webhook.TargetDomain,
		"product_description": s.webhook.ProductDescription,
		"campaign_id":         s.webhook.CampaignID,
		"prospect_name":       s.webhook.ProspectName,
		"prospect_email":      s.webhook.ProspectEmail,
		"tier":                s.webhook.Tier,
		keyRunID:              s.runID,
	}

	values := map[string]any{
		keyPriorRuns:        s.PriorRuns,
		keyStrategy:         s.Strategy,
		keySignalsA:         s.SignalsA,
		keySignalsB:         s.SignalsB,
		keyBuyersC:          s.BuyersC,
		keyBuyersD:          s.BuyersD,
		keyFeaturedID:       s.FeaturedID,
		keyFeaturedName:     s.FeaturedName,
		keyFeaturedType:     s.FeaturedType,
		keySecondary:        s.Secondary,
		keyRationale:        s.Rationale,
		keyAllScored:        s.AllScored,
		keyDirectBuyers:     s.DirectBuyers,
		keyFeatProfile:      s.FeatProfile,
		keyFeatContacts:     s.FeatContacts,
		keyFeatOpps:         s.FeatOpps,
		keyFeatAI:           s.FeatAIContext,
		keySecProfiles:      s.SecProfiles,
		keySecContacts:      s.SecContacts,
		keyExecSummary:      s.ExecSummary,
		keyFeaturedSection:  s.FeaturedSection,
		keySecondarySection: s.SecondarySection,
		keyCTA:              s.CTA,
		keyFooter:           s.Footer,
		keyReport:           s.Report,
		keyPageURL:          s.PageURL,
		keyValidation:       s.Validation,
		keyFixedReport:      s.FixedReport,
	}
	for k := range s.produced {
		if v, ok := values[k]; ok {
			out[k] = v
		}
	}
	return out
}

// has reports whether a wire key was produced (a skipped step still
// produces its key, with an empty value).
func (s *State) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.produced[key]
	return ok
}

// discoverySnapshot carries the columns backfilled by s5.
func (s *State) discoverySnapshot() *store.Snapshot {
	return &store.Snapshot{
		SearchStrategy:     jsonColumn(s.Strategy),
		DiscoverySignalsA:  jsonColumn(s.SignalsA),
		DiscoverySignalsB:  jsonColumn(s.SignalsB),
		DiscoveryBuyers:    jsonColumn(s.DirectBuyers),
		FeaturedBuyerID:    strColumn(s.FeaturedID),
		FeaturedBuyerName:  strColumn(s.FeaturedName),
		SelectionRationale: strColumn(s.Rationale),
		SecondaryBuyers:    jsonColumn(s.Secondary),
	}
}

// snapshot carries every persistable column, for completion and for the
// COALESCE merge on failure. The fixed report, when the validator
// produced one, replaces the original markdown.
func (s *State) snapshot() *store.Snapshot {
	snap := s.discoverySnapshot()

	if s.has(keyFeatProfile) {
		snap.FeatProfile = jsonColumn(s.FeatProfile)
	}
	if s.has(keyFeatContacts) {
		snap.FeatContacts = jsonColumn(s.FeatContacts)
	}
	if s.has(keyFeatOpps) {
		snap.FeatOpportunities = jsonColumn(s.FeatOpps)
	}
	if s.has(keyFeatAI) {
		snap.FeatAIContext = strColumn(s.FeatAIContext)
		available := s.FeatAIContext != ""
		snap.FeatAIContextAvailable = &available
	}
	if s.has(keySecProfiles) {
		snap.SecProfiles = jsonColumn(s.SecProfiles)
	}
	if s.has(keySecContacts) {
		snap.SecContacts = jsonColumn(s.SecContacts)
	}

	snap.SectionExecSummary = strColumn(s.ExecSummary)
	snap.SectionFeatured = strColumn(s.FeaturedSection)
	snap.SectionSecondary = strColumn(s.SecondarySection)
	snap.SectionCTA = strColumn(s.CTA)
	snap.SectionFooter = strColumn(s.Footer)

	report := s.Report
	if s.FixedReport != "" {
		report = s.FixedReport
	}
	snap.ReportMarkdown = strColumn(report)
	snap.NotionURL = strColumn(s.PageURL)
	if s.Validation != nil {
		snap.ValidationResult = jsonColumn(s.Validation)
	}
	return snap
}

// jsonColumn serializes a value for a TEXT column. Nil input and
// marshal failures both yield NULL rather than aborting persistence.
func jsonColumn(v any) *string {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	out := string(raw)
	return &out
}

func strColumn(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
