// Package store implements persistence for runs, discoveries, contacts,
// and the per-step audit log on top of the SQLite client.
package store

import (
	"github.com/govsignal/scout/pkg/database"
)

// Store executes all SQL against the shared WAL-mode database. It is
// safe for concurrent use; each call runs on a pooled connection.
type Store struct {
	db *database.Client
}

// New returns a Store bound to the given database client.
func New(db *database.Client) *Store {
	return &Store{db: db}
}

// Snapshot carries the persistable slice of a run's pipeline state.
// Every field is optional: nil means "no value produced yet". JSON
// valued fields arrive pre-serialized so the store stays ignorant of
// blackboard shapes.
type Snapshot struct {
	SearchStrategy     *string
	DiscoverySignalsA  *string
	DiscoverySignalsB  *string
	DiscoveryBuyers    *string
	FeaturedBuyerID    *string
	FeaturedBuyerName  *string
	SelectionRationale *string
	SecondaryBuyers    *string

	FeatProfile            *string
	FeatContacts           *string
	FeatOpportunities      *string
	FeatAIContext          *string
	FeatAIContextAvailable *bool

	SecProfiles *string
	SecContacts *string

	SectionExecSummary *string
	SectionFeatured    *string
	SectionSecondary   *string
	SectionCTA         *string
	SectionFooter      *string

	ReportMarkdown   *string
	ValidationResult *string
	NotionURL        *string
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
