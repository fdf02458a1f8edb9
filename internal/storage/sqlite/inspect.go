package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
)

// Summary counts the rows of an era database.
type Summary struct {
	Bills              int `json:"bills"`
	TrackingEvents     int `json:"tracking_events"`
	Signers            int `json:"signers"`
	GroupedInitiatives int `json:"grouped_initiatives"`
}

// Inspect opens the database at path and counts its rows. A missing
// file wraps os.ErrNotExist.
func Inspect(ctx context.Context, path string) (Summary, error) {
	if _, err := os.Stat(path); err != nil {
		return Summary{}, fmt.Errorf("inspect %s: %w", path, err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return Summary{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer db.Close()

	var s Summary
	counts := []struct {
		table string
		dst   *int
	}{
		{"bill", &s.Bills},
		{"tracking_event", &s.TrackingEvents},
		{"signer", &s.Signers},
		{"grouped_initiative", &s.GroupedInitiatives},
	}
	for _, c := range counts {
		row := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table)
		if err := row.Scan(c.dst); err != nil {
			return Summary{}, fmt.Errorf("count %s: %w", c.table, err)
		}
	}
	return s, nil
}

// Exists reports whether a database file is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
