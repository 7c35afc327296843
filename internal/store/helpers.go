package store

import (
	"database/sql"
	"fmt"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// scanDeliveries reads every Delivery row, closing rows when done.
func scanDeliveries(rows *sql.Rows) ([]Delivery, error) {
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		var d Delivery
		var lastError sql.NullString
		if err := rows.Scan(&d.ID, &d.Kind, &d.UserID, &d.ChannelID, &d.PayloadJSON, &d.StatusCode, &lastError, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan delivery failed: %w", err)
		}
		d.Error = lastError.String
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("delivery rows iteration failed: %w", err)
	}
	return out, nil
}
