package config

import "time"

// Tunables holds every runtime-adjustable pipeline setting. The
// registry hands out value copies of this struct, so a run admitted
// with one snapshot is never affected by later PATCHes.
type Tunables struct {
	LLMModel           string         `yaml:"llm_model"`
	LLMMaxOutputTokens int            `yaml:"llm_max_output_tokens"`
	LLMToolTimeout     int            `yaml:"llm_tool_timeout"`
	Timeouts           map[string]int `yaml:"timeouts"`

	OpportunityPageSize  int    `yaml:"opportunity_page_size"`
	OpportunitySortField string `yaml:"opportunity_sort_field"`
	BuyerSearchPageSize  int    `yaml:"buyer_search_page_size"`

	FeaturedContactPageSize  int `yaml:"featured_contact_page_size"`
	SecondaryContactPageSize int `yaml:"secondary_contact_page_size"`

	AIProfileCharLimit       int `yaml:"ai_profile_char_limit"`
	AIContactsCharLimit      int `yaml:"ai_contacts_char_limit"`
	AIOppsCharLimit          int `yaml:"ai_opps_char_limit"`
	AIContextCharLimit       int `yaml:"ai_context_char_limit"`
	AIValidationSourceLimit  int `yaml:"ai_validation_source_limit"`
	AIContactsMax            int `yaml:"ai_contacts_max"`
	AIOppsMax                int `yaml:"ai_opps_max"`
	AIReportOppsMax          int `yaml:"ai_report_opps_max"`
	AIReportOppsCharLimit    int `yaml:"ai_report_opps_char_limit"`
	AIReportSectionCharLimit int `yaml:"ai_report_section_char_limit"`

	MaxSecondaryBuyers  int  `yaml:"max_secondary_buyers"`
	MaxConcurrentRuns   int  `yaml:"max_concurrent_runs"`
	EnablePriorRunDedup bool `yaml:"enable_prior_run_dedup"`

	MaxWorkersDiscovery  int `yaml:"max_workers_discovery"`
	MaxWorkersEnrichment int `yaml:"max_workers_enrichment"`
	MaxWorkersFeatured   int `yaml:"max_workers_featured"`
	MaxWorkersSecondary  int `yaml:"max_workers_secondary"`

	AsyncPollInterval   int `yaml:"async_poll_interval"`
	AsyncDefaultMaxWait int `yaml:"async_default_max_wait"`
	BuyerChatMaxWait    int `yaml:"buyer_chat_max_wait"`

	CTABuyersCount  string `yaml:"cta_buyers_count"`
	CTARecordsCount string `yaml:"cta_records_count"`

	NotionParentPageID string `yaml:"notion_parent_page_id"`
}

// DefaultTunables returns the factory values. Env and YAML overrides
// are layered on top during Initialize.
func DefaultTunables() Tunables {
	return Tunables{
		LLMModel:           "claude-sonnet-4-5",
		LLMMaxOutputTokens: 64000,
		LLMToolTimeout:     300,

		// Per-step budgets in seconds. The s6 budget covers the buyer
		// chat polling window plus margin, so it must stay above
		// BuyerChatMaxWait to avoid double-timeout races.
		Timeouts: map[string]int{
			"s0": 30, "s1": 30, "s2": 300,
			"s3a": 300, "s3b": 300, "s3c": 300, "s3d": 300,
			"s4": 60, "s5": 60,
			"s6": 330, "s7": 300, "s8": 300,
			"s9": 300, "s10": 300, "s11": 300,
			"s12": 300, "s13": 300, "s14": 60,
		},

		OpportunityPageSize:  40,
		OpportunitySortField: "SearchRelevancy",
		BuyerSearchPageSize:  25,

		FeaturedContactPageSize:  50,
		SecondaryContactPageSize: 20,

		AIProfileCharLimit:       3000,
		AIContactsCharLimit:      3000,
		AIOppsCharLimit:          4000,
		AIContextCharLimit:       3000,
		AIValidationSourceLimit:  2000,
		AIContactsMax:            20,
		AIOppsMax:                15,
		AIReportOppsMax:          20,
		AIReportOppsCharLimit:    6000,
		AIReportSectionCharLimit: 3000,

		MaxSecondaryBuyers:  4,
		MaxConcurrentRuns:   3,
		EnablePriorRunDedup: true,

		MaxWorkersDiscovery:  4,
		MaxWorkersEnrichment: 4,
		MaxWorkersFeatured:   3,
		MaxWorkersSecondary:  4,

		AsyncPollInterval:   3,
		AsyncDefaultMaxWait: 120,
		BuyerChatMaxWait:    300,

		CTABuyersCount:  "296,000+",
		CTARecordsCount: "107M+",

		NotionParentPageID: "",
	}
}

// clone returns a deep copy; the Timeouts map must not be shared
// between the registry and handed-out snapshots.
func (t Tunables) clone() Tunables {
	out := t
	out.Timeouts = make(map[string]int, len(t.Timeouts))
	for k, v := range t.Timeouts {
		out.Timeouts[k] = v
	}
	return out
}

// StepTimeout returns the budget for a step label, or fallback seconds
// when the label has no entry.
func (t Tunables) StepTimeout(step string, fallback int) time.Duration {
	if secs, ok := t.Timeouts[step]; ok {
		return time.Duration(secs) * time.Second
	}
	return time.Duration(fallback) * time.Second
}

// PollInterval returns the async polling cadence as a duration.
func (t Tunables) PollInterval() time.Duration {
	return time.Duration(t.AsyncPollInterval) * time.Second
}
