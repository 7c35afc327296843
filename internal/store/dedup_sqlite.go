package store

import (
	"fmt"
	"time"
)

// Compile-time check that SQLiteStore implements DedupRepo.
var _ DedupRepo = (*SQLiteStore)(nil)

func (s *SQLiteStore) RecordInbound(messageID, userID string) (bool, error) {
	result, err := s.db.Exec(
		`INSERT OR IGNORE INTO inbound_dedup (message_id, user_id, received_at) VALUES (?, ?, ?)`,
		messageID, userID, time.Now(),
	)
	if err != nil {
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("dedup rows affected check failed: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) MarkProcessed(messageID string) error {
	_, err := s.db.Exec(
		`UPDATE inbound_dedup SET processed_at = ? WHERE message_id = ?`,
		time.Now(), messageID,
	)
	if err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) PruneProcessedBefore(cutoff time.Time) (int, error) {
	result, err := s.db.Exec(
		`DELETE FROM inbound_dedup WHERE processed_at IS NOT NULL AND processed_at < ?`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("prune dedup failed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune rows affected check failed: %w", err)
	}
	return int(n), nil
}
