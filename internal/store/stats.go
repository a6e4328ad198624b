package store

import (
	"database/sql"
	"strings"
	"time"
)

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// refreshStats recomputes the per-chat sync boundaries from the
// messages table. Called inside the upsert transaction so incremental
// sync never needs a full scan at start time.
func (db *DB) refreshStats(e execer, chatID int64) error {
	now := time.Now().UnixMilli()
	_, err := e.Exec(`
		INSERT INTO chat_stats (chat_id, message_count, first_synced_id, latest_synced_id, first_ts, latest_ts, updated_at)
		SELECT chat_id, COUNT(*), MIN(platform_msg_id), MAX(platform_msg_id), MIN(platform_ts), MAX(platform_ts), ?
		FROM messages WHERE chat_id = ? AND deleted_at = 0
		ON CONFLICT(chat_id) DO UPDATE SET
			message_count = excluded.message_count,
			first_synced_id = excluded.first_synced_id,
			latest_synced_id = excluded.latest_synced_id,
			first_ts = excluded.first_ts,
			latest_ts = excluded.latest_ts,
			updated_at = excluded.updated_at`,
		now, chatID)
	return err
}

// GetChatStats returns the sync boundaries for a chat, or nil when the
// chat has never been synced.
func (db *DB) GetChatStats(chatID int64) (*ChatStats, error) {
	var s ChatStats
	err := db.QueryRow(`
		SELECT chat_id, message_count, first_synced_id, latest_synced_id, first_ts, latest_ts
		FROM chat_stats WHERE chat_id = ?`, chatID).
		Scan(&s.ChatID, &s.MessageCount, &s.FirstSyncedID, &s.LatestSyncedID, &s.FirstTS, &s.LatestTS)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// prefixed qualifies a comma-separated column list with a table alias.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
