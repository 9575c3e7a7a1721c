package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lazypower/statuscast/internal/status"
)

// DefaultHistoryCap is the number of entries kept per user when the
// caller passes a non-positive capacity.
const DefaultHistoryCap = 20

// ErrVersionConflict is returned by AppendHistoryIfVersion when the latest
// entry changed since the caller read it.
var ErrVersionConflict = errors.New("latest status was updated concurrently")

// LatestEntry is a user's newest entry plus the version token used for
// compare-and-swap writes.
type LatestEntry struct {
	status.Entry
	Version int64
}

// GetLatest returns the user's latest entry, or nil if they have none.
func (db *DB) GetLatest(ctx context.Context, userID string) (*LatestEntry, error) {
	var (
		le  LatestEntry
		raw string
	)
	err := db.QueryRowContext(ctx, `
		SELECT entry_id, timestamp, raw_input, processed_status, version
		FROM latest_status WHERE user_id = ?
	`, userID).Scan(&le.ID, &le.Timestamp, &le.RawInput, &raw, &le.Version)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &le.ProcessedStatus); err != nil {
		return nil, fmt.Errorf("decode latest %s: %w", le.ID, err)
	}
	le.ProcessedStatus.EnsureArrays()
	return &le, nil
}

// AppendHistory records entry for the user, evicts the oldest entries
// beyond capacity and overwrites the latest pointer, all in one
// transaction. An empty entry ID is filled with a fresh UUID.
func (db *DB) AppendHistory(ctx context.Context, userID string, entry status.Entry, capacity int) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		return appendEntry(ctx, tx, userID, entry, capacity)
	})
}

// AppendHistoryIfVersion is AppendHistory guarded by the latest pointer's
// version. expected is the Version from GetLatest, or 0 when the user had
// no latest entry.
func (db *DB) AppendHistoryIfVersion(ctx context.Context, userID string, entry status.Entry, capacity int, expected int64) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		var current int64
		err := tx.QueryRowContext(ctx,
			"SELECT version FROM latest_status WHERE user_id = ?", userID,
		).Scan(&current)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("read version: %w", err)
		}
		if current != expected {
			return fmt.Errorf("%w: have version %d, expected %d", ErrVersionConflict, current, expected)
		}
		return appendEntry(ctx, tx, userID, entry, capacity)
	})
}

func appendEntry(ctx context.Context, tx *sql.Tx, userID string, entry status.Entry, capacity int) error {
	if capacity <= 0 {
		capacity = DefaultHistoryCap
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.ProcessedStatus.EnsureArrays()

	body, err := json.Marshal(entry.ProcessedStatus)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	now := time.Now().UnixMilli()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO status_entries (entry_id, user_id, timestamp, raw_input, processed_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.ID, userID, entry.Timestamp, entry.RawInput, string(body), now); err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}

	// FIFO eviction: keep the newest capacity rows by insertion order.
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM status_entries
		WHERE user_id = ? AND id NOT IN (
			SELECT id FROM status_entries WHERE user_id = ? ORDER BY id DESC LIMIT ?
		)
	`, userID, userID, capacity); err != nil {
		return fmt.Errorf("evict entries: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO latest_status (user_id, entry_id, timestamp, raw_input, processed_status, version, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			entry_id = excluded.entry_id,
			timestamp = excluded.timestamp,
			raw_input = excluded.raw_input,
			processed_status = excluded.processed_status,
			version = latest_status.version + 1,
			updated_at = excluded.updated_at
	`, userID, entry.ID, entry.Timestamp, entry.RawInput, string(body), now); err != nil {
		return fmt.Errorf("update latest: %w", err)
	}
	return nil
}

// GetHistory returns up to limit of the user's newest entries, oldest
// first. A non-positive limit returns the whole retained history.
func (db *DB) GetHistory(ctx context.Context, userID string, limit int) ([]status.Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx, `
		SELECT entry_id, timestamp, raw_input, processed_status FROM (
			SELECT id, entry_id, timestamp, raw_input, processed_status
			FROM status_entries WHERE user_id = ?
			ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []status.Entry
	for rows.Next() {
		var (
			e   status.Entry
			raw string
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.RawInput, &raw); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &e.ProcessedStatus); err != nil {
			return nil, fmt.Errorf("decode entry %s: %w", e.ID, err)
		}
		e.ProcessedStatus.EnsureArrays()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountHistory returns how many entries are retained for the user.
func (db *DB) CountHistory(ctx context.Context, userID string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM status_entries WHERE user_id = ?", userID,
	).Scan(&n)
	return n, err
}

// PurgeAll deletes every record held for the user (history, latest
// pointer and profile) and returns how many rows were removed. Purging
// an unknown or already-purged user returns 0.
func (db *DB) PurgeAll(ctx context.Context, userID string) (int, error) {
	var removed int64
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		for _, q := range []string{
			"DELETE FROM status_entries WHERE user_id = ?",
			"DELETE FROM latest_status WHERE user_id = ?",
			"DELETE FROM user_profiles WHERE user_id = ?",
		} {
			res, err := tx.ExecContext(ctx, q, userID)
			if err != nil {
				return fmt.Errorf("purge: %w", err)
			}
			n, _ := res.RowsAffected()
			removed += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(removed), nil
}
