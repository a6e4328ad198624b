package store

import (
	"database/sql"
	"fmt"
	"time"
)

const messageColumns = `id, uuid, platform, platform_msg_id, chat_id, owner_account_id,
	sender_id, sender_name, sender_uuid, content, reply_to_msg_id, forward_from,
	media, tokens, embedding, embedding_dim, platform_ts, created_at, updated_at, deleted_at`

const upsertMessageSQL = `
	INSERT INTO messages (uuid, platform, platform_msg_id, chat_id, owner_account_id,
		sender_id, sender_name, sender_uuid, content, reply_to_msg_id, forward_from,
		media, tokens, embedding, embedding_dim, platform_ts, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(platform, platform_msg_id, chat_id, owner_account_id) DO UPDATE SET
		sender_name = CASE WHEN excluded.sender_name <> '' THEN excluded.sender_name ELSE messages.sender_name END,
		sender_uuid = CASE WHEN excluded.sender_uuid <> '' THEN excluded.sender_uuid ELSE messages.sender_uuid END,
		content = excluded.content,
		reply_to_msg_id = excluded.reply_to_msg_id,
		forward_from = excluded.forward_from,
		media = CASE WHEN excluded.media <> '' THEN excluded.media ELSE messages.media END,
		tokens = CASE WHEN excluded.tokens <> '' THEN excluded.tokens ELSE messages.tokens END,
		embedding = CASE WHEN excluded.embedding IS NOT NULL THEN excluded.embedding ELSE messages.embedding END,
		embedding_dim = CASE WHEN excluded.embedding_dim > 0 THEN excluded.embedding_dim ELSE messages.embedding_dim END,
		updated_at = excluded.updated_at`

func upsertArgs(m *Message, now int64) []any {
	return []any{
		m.UUID, m.Platform, m.PlatformMsgID, m.ChatID, m.OwnerAccountID,
		m.SenderID, m.SenderName, m.SenderUUID, m.Content, m.ReplyToMsgID, m.ForwardFrom,
		encodeMedia(m.Media), encodeTokens(m.Tokens), encodeEmbedding(m.Embedding),
		m.EmbeddingDim, m.PlatformTS, now, now,
	}
}

// UpsertMessage inserts or updates one message, idempotent on
// (platform, platform_msg_id, chat_id, owner_account_id). Tokens,
// embedding, and media are only overwritten by non-empty values.
func (db *DB) UpsertMessage(m *Message) error {
	now := time.Now().UnixMilli()
	if _, err := db.Exec(upsertMessageSQL, upsertArgs(m, now)...); err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}
	return db.refreshStats(db.DB, m.ChatID)
}

// UpsertMessages stores a batch in one transaction and refreshes the
// per-chat stats for every touched chat.
func (db *DB) UpsertMessages(msgs []*Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	chats := make(map[int64]struct{})
	for _, m := range msgs {
		if _, err := tx.Exec(upsertMessageSQL, upsertArgs(m, now)...); err != nil {
			return fmt.Errorf("upsert message in batch: %w", err)
		}
		chats[m.ChatID] = struct{}{}
	}
	for chatID := range chats {
		if err := db.refreshStats(tx, chatID); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// GetMessage fetches one message by its identity tuple. Returns nil
// when absent.
func (db *DB) GetMessage(platform string, platformMsgID, chatID int64, owner string) (*Message, error) {
	row := db.QueryRow(`
		SELECT `+messageColumns+`
		FROM messages
		WHERE platform = ? AND platform_msg_id = ? AND chat_id = ? AND owner_account_id = ?`,
		platform, platformMsgID, chatID, owner)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

// ListChatMessages returns a page of messages for one chat, newest
// first, with the ownership predicate applied.
func (db *DB) ListChatMessages(accountID string, chatID int64, beforeTS int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTS <= 0 {
		beforeTS = time.Now().UnixMilli() + 1
	}
	rows, err := db.Query(`
		SELECT `+prefixed("m", messageColumns)+`
		FROM messages m
		JOIN chats c ON c.id = m.chat_id
		WHERE m.chat_id = ? AND m.platform_ts < ? AND m.deleted_at = 0
		AND (c.type <> ? OR m.owner_account_id = '' OR m.owner_account_id = ?)
		ORDER BY m.platform_ts DESC
		LIMIT ?`, chatID, beforeTS, ChatDialog, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*Message, error) {
	var m Message
	var media, tokens string
	var embedding []byte
	if err := row.Scan(
		&m.ID, &m.UUID, &m.Platform, &m.PlatformMsgID, &m.ChatID, &m.OwnerAccountID,
		&m.SenderID, &m.SenderName, &m.SenderUUID, &m.Content, &m.ReplyToMsgID, &m.ForwardFrom,
		&media, &tokens, &embedding, &m.EmbeddingDim, &m.PlatformTS,
		&m.CreatedAt, &m.UpdatedAt, &m.DeletedAt,
	); err != nil {
		return nil, err
	}
	m.Media = decodeMedia(media)
	m.Tokens = decodeTokens(tokens)
	m.Embedding = decodeEmbedding(embedding)
	return &m, nil
}
