package config

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Metadata describes one tunable for the config API: which panel
// category it belongs to, its declared type, and a short description.
type Metadata struct {
	Category    string `json:"cat"`
	Type        string `json:"type"`
	Description string `json:"desc"`
	Unit        string `json:"unit,omitempty"`
}

// tunableKeys fixes the ordering used by Values() and the config API.
var tunableKeys = []string{
	"LLM_MODEL",
	"LLM_MAX_OUTPUT_TOKENS",
	"LLM_TOOL_TIMEOUT",
	"TIMEOUTS",
	"OPPORTUNITY_PAGE_SIZE",
	"OPPORTUNITY_SORT_FIELD",
	"BUYER_SEARCH_PAGE_SIZE",
	"FEATURED_CONTACT_PAGE_SIZE",
	"SECONDARY_CONTACT_PAGE_SIZE",
	"AI_PROFILE_CHAR_LIMIT",
	"AI_CONTACTS_CHAR_LIMIT",
	"AI_OPPS_CHAR_LIMIT",
	"AI_CONTEXT_CHAR_LIMIT",
	"AI_VALIDATION_SOURCE_LIMIT",
	"AI_CONTACTS_MAX",
	"AI_OPPS_MAX",
	"AI_REPORT_OPPS_MAX",
	"AI_REPORT_OPPS_CHAR_LIMIT",
	"AI_REPORT_SECTION_CHAR_LIMIT",
	"MAX_SECONDARY_BUYERS",
	"MAX_CONCURRENT_RUNS",
	"ENABLE_PRIOR_RUN_DEDUP",
	"MAX_WORKERS_DISCOVERY",
	"MAX_WORKERS_ENRICHMENT",
	"MAX_WORKERS_FEATURED",
	"MAX_WORKERS_SECONDARY",
	"ASYNC_POLL_INTERVAL",
	"ASYNC_DEFAULT_MAX_WAIT",
	"BUYER_CHAT_MAX_WAIT",
	"CTA_BUYERS_COUNT",
	"CTA_RECORDS_COUNT",
	"NOTION_PARENT_PAGE_ID",
}

var tunableMetadata = map[string]Metadata{
	"LLM_MODEL":                    {Category: "LLM", Type: "str", Description: "Model passed to the generator CLI"},
	"LLM_MAX_OUTPUT_TOKENS":        {Category: "LLM", Type: "int", Description: "Max output tokens for CLI subprocess"},
	"LLM_TOOL_TIMEOUT":             {Category: "LLM", Type: "int", Description: "Timeout for tool-enabled generator sessions (seconds)", Unit: "s"},
	"TIMEOUTS":                     {Category: "Timeouts", Type: "dict", Description: "Per-step timeout seconds"},
	"OPPORTUNITY_PAGE_SIZE":        {Category: "Search", Type: "int", Description: "Results per opportunity search call"},
	"OPPORTUNITY_SORT_FIELD":       {Category: "Search", Type: "str", Description: "Sort order for opportunity results"},
	"BUYER_SEARCH_PAGE_SIZE":       {Category: "Search", Type: "int", Description: "Results per buyer search call"},
	"FEATURED_CONTACT_PAGE_SIZE":   {Category: "Contacts", Type: "int", Description: "Contacts fetched for featured buyer"},
	"SECONDARY_CONTACT_PAGE_SIZE":  {Category: "Contacts", Type: "int", Description: "Contacts fetched per secondary buyer"},
	"AI_PROFILE_CHAR_LIMIT":        {Category: "LLM Limits", Type: "int", Description: "Profile JSON char limit for the featured section"},
	"AI_CONTACTS_CHAR_LIMIT":       {Category: "LLM Limits", Type: "int", Description: "Contacts JSON char limit for the featured section"},
	"AI_OPPS_CHAR_LIMIT":           {Category: "LLM Limits", Type: "int", Description: "Opportunities JSON char limit for the featured section"},
	"AI_CONTEXT_CHAR_LIMIT":        {Category: "LLM Limits", Type: "int", Description: "AI context char limit for the featured section"},
	"AI_VALIDATION_SOURCE_LIMIT":   {Category: "LLM Limits", Type: "int", Description: "Source data char limit for the fact check"},
	"AI_CONTACTS_MAX":              {Category: "LLM Limits", Type: "int", Description: "Max contacts passed to the generator"},
	"AI_OPPS_MAX":                  {Category: "LLM Limits", Type: "int", Description: "Max opportunities passed to the generator"},
	"AI_REPORT_OPPS_MAX":           {Category: "LLM Limits", Type: "int", Description: "Max opps for the report assembler"},
	"AI_REPORT_OPPS_CHAR_LIMIT":    {Category: "LLM Limits", Type: "int", Description: "Opp signals char limit for the assembler"},
	"AI_REPORT_SECTION_CHAR_LIMIT": {Category: "LLM Limits", Type: "int", Description: "Section reference char limit"},
	"MAX_SECONDARY_BUYERS":         {Category: "Pipeline", Type: "int", Description: "Secondary buyer cards in report"},
	"MAX_CONCURRENT_RUNS":          {Category: "Pipeline", Type: "int", Description: "Max simultaneous pipeline runs"},
	"ENABLE_PRIOR_RUN_DEDUP":       {Category: "Pipeline", Type: "bool", Description: "Diversify keywords across runs for same domain"},
	"MAX_WORKERS_DISCOVERY":        {Category: "Worker Pools", Type: "int", Description: "Discovery fan-out width"},
	"MAX_WORKERS_ENRICHMENT":       {Category: "Worker Pools", Type: "int", Description: "Enrichment fan-out width"},
	"MAX_WORKERS_FEATURED":         {Category: "Worker Pools", Type: "int", Description: "Featured-buyer fetch width"},
	"MAX_WORKERS_SECONDARY":        {Category: "Worker Pools", Type: "int", Description: "Secondary-buyer fetch width"},
	"ASYNC_POLL_INTERVAL":          {Category: "Async Polling", Type: "int", Description: "Seconds between poll requests", Unit: "s"},
	"ASYNC_DEFAULT_MAX_WAIT":       {Category: "Async Polling", Type: "int", Description: "Default async tool max wait", Unit: "s"},
	"BUYER_CHAT_MAX_WAIT":          {Category: "Async Polling", Type: "int", Description: "Buyer chat async max wait", Unit: "s"},
	"CTA_BUYERS_COUNT":             {Category: "CTA Copy", Type: "str", Description: "Total SLED buyers (marketing number)"},
	"CTA_RECORDS_COUNT":            {Category: "CTA Copy", Type: "str", Description: "Total indexed records (marketing number)"},
	"NOTION_PARENT_PAGE_ID":        {Category: "External", Type: "str", Description: "Workspace parent page for published reports"},
}

// MetadataTable returns the full key → metadata map for the config API.
func MetadataTable() map[string]Metadata {
	out := make(map[string]Metadata, len(tunableMetadata))
	for k, v := range tunableMetadata {
		out[k] = v
	}
	return out
}

// TunableKeys returns the declared key order.
func TunableKeys() []string {
	out := make([]string, len(tunableKeys))
	copy(out, tunableKeys)
	return out
}

// Registry is the process-wide tunable store. Runs take a Snapshot at
// admission; Set and Reset only affect runs admitted afterwards.
type Registry struct {
	mu      sync.RWMutex
	current Tunables
	factory Tunables
}

// NewRegistry captures t as both the live state and the factory
// snapshot that Reset restores.
func NewRegistry(t Tunables) *Registry {
	return &Registry{current: t.clone(), factory: t.clone()}
}

// Snapshot returns a copy of the live tunables.
func (r *Registry) Snapshot() Tunables {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.clone()
}

// Reset restores the factory snapshot and returns it.
func (r *Registry) Reset() Tunables {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = r.factory.clone()
	return r.current.clone()
}

// Values renders the live tunables keyed the way the config API and
// the original explorer UI expect.
func (r *Registry) Values() map[string]any {
	snap := r.Snapshot()
	out := make(map[string]any, len(tunableKeys))
	for _, key := range tunableKeys {
		out[key] = snap.get(key)
	}
	return out
}

// Set coerces value to the key's declared type and stores it. The
// returned error message is surfaced verbatim by the config API.
func (r *Registry) Set(key string, value any) error {
	meta, ok := tunableMetadata[key]
	if !ok {
		return fmt.Errorf("Unknown config key: %s", key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch meta.Type {
	case "int":
		n, err := coerceInt(value)
		if err != nil {
			return fmt.Errorf("Invalid value for %s: %v", key, err)
		}
		r.current.setInt(key, n)
	case "str":
		r.current.setStr(key, coerceStr(value))
	case "bool":
		r.current.setBool(key, coerceBool(value))
	case "dict":
		m, err := coerceIntMap(value)
		if err != nil {
			return fmt.Errorf("Invalid value for %s: %v", key, err)
		}
		r.current.Timeouts = m
	}
	return nil
}

func coerceInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, err
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to int", v)
	}
}

func coerceStr(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func coerceBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		switch strings.ToLower(b) {
		case "true", "1", "yes":
			return true
		}
		return false
	case float64:
		return b != 0
	case int:
		return b != 0
	default:
		return v != nil
	}
}

func coerceIntMap(v any) (map[string]int, error) {
	raw, ok := v.(map[string]any)
	if !ok {
		if typed, isTyped := v.(map[string]int); isTyped {
			out := make(map[string]int, len(typed))
			for k, n := range typed {
				out[k] = n
			}
			return out, nil
		}
		return nil, fmt.Errorf("requires a dict value")
	}
	out := make(map[string]int, len(raw))
	for k, item := range raw {
		n, err := coerceInt(item)
		if err != nil {
			return nil, fmt.Errorf("key %q: %v", k, err)
		}
		out[k] = n
	}
	return out, nil
}

// get renders one field by API key. TIMEOUTS comes back as a fresh map
// so callers cannot mutate registry state through it.
func (t Tunables) get(key string) any {
	switch key {
	case "LLM_MODEL":
		return t.LLMModel
	case "LLM_MAX_OUTPUT_TOKENS":
		return t.LLMMaxOutputTokens
	case "LLM_TOOL_TIMEOUT":
		return t.LLMToolTimeout
	case "TIMEOUTS":
		out := make(map[string]int, len(t.Timeouts))
		for k, v := range t.Timeouts {
			out[k] = v
		}
		return out
	case "OPPORTUNITY_PAGE_SIZE":
		return t.OpportunityPageSize
	case "OPPORTUNITY_SORT_FIELD":
		return t.OpportunitySortField
	case "BUYER_SEARCH_PAGE_SIZE":
		return t.BuyerSearchPageSize
	case "FEATURED_CONTACT_PAGE_SIZE":
		return t.FeaturedContactPageSize
	case "SECONDARY_CONTACT_PAGE_SIZE":
		return t.SecondaryContactPageSize
	case "AI_PROFILE_CHAR_LIMIT":
		return t.AIProfileCharLimit
	case "AI_CONTACTS_CHAR_LIMIT":
		return t.AIContactsCharLimit
	case "AI_OPPS_CHAR_LIMIT":
		return t.AIOppsCharLimit
	case "AI_CONTEXT_CHAR_LIMIT":
		return t.AIContextCharLimit
	case "AI_VALIDATION_SOURCE_LIMIT":
		return t.AIValidationSourceLimit
	case "AI_CONTACTS_MAX":
		return t.AIContactsMax
	case "AI_OPPS_MAX":
		return t.AIOppsMax
	case "AI_REPORT_OPPS_MAX":
		return t.AIReportOppsMax
	case "AI_REPORT_OPPS_CHAR_LIMIT":
		return t.AIReportOppsCharLimit
	case "AI_REPORT_SECTION_CHAR_LIMIT":
		return t.AIReportSectionCharLimit
	case "MAX_SECONDARY_BUYERS":
		return t.MaxSecondaryBuyers
	case "MAX_CONCURRENT_RUNS":
		return t.MaxConcurrentRuns
	case "ENABLE_PRIOR_RUN_DEDUP":
		return t.EnablePriorRunDedup
	case "MAX_WORKERS_DISCOVERY":
		return t.MaxWorkersDiscovery
	case "MAX_WORKERS_ENRICHMENT":
		return t.MaxWorkersEnrichment
	case "MAX_WORKERS_FEATURED":
		return t.MaxWorkersFeatured
	case "MAX_WORKERS_SECONDARY":
		return t.MaxWorkersSecondary
	case "ASYNC_POLL_INTERVAL":
		return t.AsyncPollInterval
	case "ASYNC_DEFAULT_MAX_WAIT":
		return t.AsyncDefaultMaxWait
	case "BUYER_CHAT_MAX_WAIT":
		return t.BuyerChatMaxWait
	case "CTA_BUYERS_COUNT":
		return t.CTABuyersCount
	case "CTA_RECORDS_COUNT":
		return t.CTARecordsCount
	case "NOTION_PARENT_PAGE_ID":
		return t.NotionParentPageID
	default:
		return nil
	}
}

func (t *Tunables) setInt(key string, n int) {
	switch key {
	case "LLM_MAX_OUTPUT_TOKENS":
		t.LLMMaxOutputTokens = n
	case "LLM_TOOL_TIMEOUT":
		t.LLMToolTimeout = n
	case "OPPORTUNITY_PAGE_SIZE":
		t.OpportunityPageSize = n
	case "BUYER_SEARCH_PAGE_SIZE":
		t.BuyerSearchPageSize = n
	case "FEATURED_CONTACT_PAGE_SIZE":
		t.FeaturedContactPageSize = n
	case "SECONDARY_CONTACT_PAGE_SIZE":
		t.SecondaryContactPageSize = n
	case "AI_PROFILE_CHAR_LIMIT":
		t.AIProfileCharLimit = n
	case "AI_CONTACTS_CHAR_LIMIT":
		t.AIContactsCharLimit = n
	case "AI_OPPS_CHAR_LIMIT":
		t.AIOppsCharLimit = n
	case "AI_CONTEXT_CHAR_LIMIT":
		t.AIContextCharLimit = n
	case "AI_VALIDATION_SOURCE_LIMIT":
		t.AIValidationSourceLimit = n
	case "AI_CONTACTS_MAX":
		t.AIContactsMax = n
	case "AI_OPPS_MAX":
		t.AIOppsMax = n
	case "AI_REPORT_OPPS_MAX":
		t.AIReportOppsMax = n
	case "AI_REPORT_OPPS_CHAR_LIMIT":
		t.AIReportOppsCharLimit = n
	case "AI_REPORT_SECTION_CHAR_LIMIT":
		t.AIReportSectionCharLimit = n
	case "MAX_SECONDARY_BUYERS":
		t.MaxSecondaryBuyers = n
	case "MAX_CONCURRENT_RUNS":
		t.MaxConcurrentRuns = n
	case "MAX_WORKERS_DISCOVERY":
		t.MaxWorkersDiscovery = n
	case "MAX_WORKERS_ENRICHMENT":
		t.MaxWorkersEnrichment = n
	case "MAX_WORKERS_FEATURED":
		t.MaxWorkersFeatured = n
	case "MAX_WORKERS_SECONDARY":
		t.MaxWorkersSecondary = n
	case "ASYNC_POLL_INTERVAL":
		t.AsyncPollInterval = n
	case "ASYNC_DEFAULT_MAX_WAIT":
		t.AsyncDefaultMaxWait = n
	case "BUYER_CHAT_MAX_WAIT":
		t.BuyerChatMaxWait = n
	}
}

func (t *Tunables) setStr(key, s string) {
	switch key {
	case "LLM_MODEL":
		t.LLMModel = s
	case "OPPORTUNITY_SORT_FIELD":
		t.OpportunitySortField = s
	case "CTA_BUYERS_COUNT":
		t.CTABuyersCount = s
	case "CTA_RECORDS_COUNT":
		t.CTARecordsCount = s
	case "NOTION_PARENT_PAGE_ID":
		t.NotionParentPageID = s
	}
}

func (t *Tunables) setBool(key string, b bool) {
	switch key {
	case "ENABLE_PRIOR_RUN_DEDUP":
		t.EnablePriorRunDedup = b
	}
}
