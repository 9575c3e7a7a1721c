package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lazypower/statuscast/internal/profile"
)

// GetPreferences returns the user's display preferences, or nil if none
// are stored.
func (db *DB) GetPreferences(ctx context.Context, userID string) (*profile.Preferences, error) {
	var raw string
	err := db.QueryRowContext(ctx,
		"SELECT preferences FROM user_profiles WHERE user_id = ?", userID,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get preferences: %w", err)
	}

	var p profile.Preferences
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("decode preferences: %w", err)
	}
	return &p, nil
}

// SavePreferences replaces the user's display preferences.
func (db *DB) SavePreferences(ctx context.Context, userID string, p profile.Preferences) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO user_profiles (user_id, preferences, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			preferences = excluded.preferences,
			updated_at = excluded.updated_at
	`, userID, string(body), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}
