package store

import (
	"database/sql"
	"time"
)

// UpsertChat inserts or updates a chat record.
func (db *DB) UpsertChat(c *Chat) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO chats (id, type, title, avatar_file_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			title = CASE WHEN excluded.title <> '' THEN excluded.title ELSE chats.title END,
			avatar_file_id = CASE WHEN excluded.avatar_file_id <> '' THEN excluded.avatar_file_id ELSE chats.avatar_file_id END,
			updated_at = excluded.updated_at`,
		c.ID, c.Type, c.Title, c.AvatarFileID, now, now)
	return err
}

// GetChat returns a single chat by id, or nil when unknown.
func (db *DB) GetChat(id int64) (*Chat, error) {
	var c Chat
	err := db.QueryRow(`SELECT id, type, title, avatar_file_id FROM chats WHERE id = ?`, id).
		Scan(&c.ID, &c.Type, &c.Title, &c.AvatarFileID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// AddChatMember records a membership link between an account and a chat.
func (db *DB) AddChatMember(chatID int64, accountID string) error {
	_, err := db.Exec(`
		INSERT INTO chat_members (chat_id, account_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(chat_id, account_id) DO NOTHING`,
		chatID, accountID, time.Now().UnixMilli())
	return err
}

// IsChatMember reports whether the account has a recorded membership
// link to the chat.
func (db *DB) IsChatMember(chatID int64, accountID string) (bool, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM chat_members WHERE chat_id = ? AND account_id = ?`,
		chatID, accountID).Scan(&n)
	return n > 0, err
}
