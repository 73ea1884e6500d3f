package store

import (
	"context"
	"fmt"
)

// inspectableTables whitelists what the data-inspection endpoint may
// read. Anything else is rejected before touching SQL.
var inspectableTables = map[string]bool{
	"discoveries": true,
	"contacts":    true,
	"audit_log":   true,
}

// InspectableTable reports whether the data endpoint may read table.
func InspectableTable(table string) bool {
	return inspectableTables[table]
}

// TableRows returns a run's rows from one whitelisted child table as
// generic maps, preserving column order only loosely (JSON objects).
func (s *Store) TableRows(ctx context.Context, runID int64, table string) ([]map[string]any, error) {
	if !inspectableTables[table] {
		return nil, fmt.Errorf("table %q is not inspectable", table)
	}

	rows, err := s.db.QueryxContext(ctx,
		fmt.Sprintf(`SELECT * FROM %s WHERE run_id = ? ORDER BY id ASC`, table), runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s for run %d: %w", table, runID, err)
	}
	defer rows.Close()

	out := []map[string]any{}
	for rows.Next() {
		row := map[string]any{}
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		for k, v := range row {
			if b, ok := v.([]byte); ok {
				row[k] = string(b)
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", table, err)
	}
	return out, nil
}
