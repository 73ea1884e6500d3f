package store

import (
	"context"
	"fmt"

	"github.com/govsignal/scout/pkg/models"
)

// InsertDiscoveries appends one row per scored buyer. All inserts run
// in a single transaction so a crash never leaves half a ranking.
func (s *Store) InsertDiscoveries(ctx context.Context, runID int64, domain string, buyers []models.ScoredBuyer) error {
	if len(buyers) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin discoveries tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, b := range buyers {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO discoveries (run_id, target_domain, buyer_id, buyer_name,
			                         signal_type, signal_summary, signal_score)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, domain, b.BuyerID, b.BuyerName,
			b.TopSignalType, b.TopSignalSummary, b.Score)
		if err != nil {
			return fmt.Errorf("failed to insert discovery for %s: %w", b.BuyerID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit discoveries: %w", err)
	}
	return nil
}

// InsertContacts appends the featured buyer's contacts. The provider's
// records use name/title/email keys with an emailVerified flag.
func (s *Store) InsertContacts(ctx context.Context, runID int64, buyerID string, contacts []models.Record) error {
	if len(contacts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin contacts tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, c := range contacts {
		verified := 0
		if c.Truthy("emailVerified") {
			verified = 1
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO contacts (run_id, buyer_id, contact_name, contact_title,
			                      contact_email, email_verified, relevance_score)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, buyerID, c.Str("name"), c.Str("title"), c.Str("email"), verified, 0)
		if err != nil {
			return fmt.Errorf("failed to insert contact: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit contacts: %w", err)
	}
	return nil
}

// ListDiscoveries returns a run's discovery rows, highest score first.
func (s *Store) ListDiscoveries(ctx context.Context, runID int64) ([]models.Discovery, error) {
	rows := []models.Discovery{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM discoveries WHERE run_id = ?
		ORDER BY signal_score DESC, id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list discoveries for run %d: %w", runID, err)
	}
	return rows, nil
}

// ListContacts returns a run's contact rows in insertion order.
func (s *Store) ListContacts(ctx context.Context, runID int64) ([]models.Contact, error) {
	rows := []models.Contact{}
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM contacts WHERE run_id = ? ORDER BY id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts for run %d: %w", runID, err)
	}
	return rows, nil
}
