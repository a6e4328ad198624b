package store

import (
	"database/sql"
	"strings"
	"time"
)

// SaveSettings persists the per-account settings record.
func (db *DB) SaveSettings(s *SettingsRow) error {
	_, err := db.Exec(`
		INSERT INTO settings (account_id, disabled_resolvers, embedding_dim, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			disabled_resolvers = excluded.disabled_resolvers,
			embedding_dim = excluded.embedding_dim,
			updated_at = excluded.updated_at`,
		s.AccountID, strings.Join(s.DisabledResolvers, ","), s.EmbeddingDim, time.Now().UnixMilli())
	return err
}

// GetSettings returns the stored settings for an account, or nil when
// the account has never saved any.
func (db *DB) GetSettings(accountID string) (*SettingsRow, error) {
	var s SettingsRow
	var disabled string
	err := db.QueryRow(`
		SELECT account_id, disabled_resolvers, embedding_dim FROM settings WHERE account_id = ?`,
		accountID).Scan(&s.AccountID, &disabled, &s.EmbeddingDim)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if disabled != "" {
		s.DisabledResolvers = strings.Split(disabled, ",")
	}
	return &s, nil
}
