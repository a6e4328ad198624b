package store

import "strings"

// SearchRow is a message joined with its chat's display data.
type SearchRow struct {
	Message   Message
	ChatTitle string
	ChatType  string
}

// LexicalFilter parameterizes a token-containment query. ChatIDs, when
// present, overrides ChatID. RequireMembership adds an inner join on
// the requesting account's membership links.
type LexicalFilter struct {
	AccountID         string
	ChatID            int64
	ChatIDs           []int64
	SenderID          int64
	After             int64
	Before            int64
	Tokens            []string
	Limit             int
	RequireMembership bool
}

// aclPredicate is the ownership rule applied to every retrieval query:
// one-to-one dialogs are visible only to their owner (or when legacy
// data carries no owner); every other chat type is shared.
const aclPredicate = `(c.type <> 'dialog' OR m.owner_account_id = '' OR m.owner_account_id = ?)`

// LexicalSearch returns messages whose stored token list contains every
// query token, with the ACL predicate baked in. Results follow the
// storage's natural order.
func (db *DB) LexicalSearch(f LexicalFilter) ([]SearchRow, error) {
	if len(f.Tokens) == 0 {
		return nil, nil
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + prefixed("m", messageColumns) + `, c.title, c.type
		FROM messages m
		JOIN chats c ON c.id = m.chat_id`)
	args := []any{}
	if f.RequireMembership {
		sb.WriteString(` JOIN chat_members cm ON cm.chat_id = m.chat_id AND cm.account_id = ?`)
		args = append(args, f.AccountID)
	}
	sb.WriteString(` WHERE m.deleted_at = 0 AND ` + aclPredicate)
	args = append(args, f.AccountID)

	for _, tok := range f.Tokens {
		sb.WriteString(` AND instr(m.tokens, ?) > 0`)
		args = append(args, tokenNeedle(tok))
	}
	if len(f.ChatIDs) > 0 {
		sb.WriteString(` AND m.chat_id IN (?` + strings.Repeat(",?", len(f.ChatIDs)-1) + `)`)
		for _, id := range f.ChatIDs {
			args = append(args, id)
		}
	} else if f.ChatID != 0 {
		sb.WriteString(` AND m.chat_id = ?`)
		args = append(args, f.ChatID)
	}
	if f.SenderID != 0 {
		sb.WriteString(` AND m.sender_id = ?`)
		args = append(args, f.SenderID)
	}
	if f.After > 0 {
		sb.WriteString(` AND m.platform_ts >= ?`)
		args = append(args, f.After)
	}
	if f.Before > 0 {
		sb.WriteString(` AND m.platform_ts <= ?`)
		args = append(args, f.Before)
	}
	sb.WriteString(` LIMIT ?`)
	args = append(args, limit)

	return db.querySearchRows(sb.String(), args...)
}

// VectorFilter parameterizes a vector candidate query. Candidates are
// ACL-filtered and membership-joined; similarity scoring happens in the
// retrieval engine.
type VectorFilter struct {
	AccountID string
	ChatID    int64
	Dim       int
}

// VectorCandidates returns messages carrying an embedding of the given
// dimension that the account may see and belongs to via membership.
func (db *DB) VectorCandidates(f VectorFilter) ([]SearchRow, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + prefixed("m", messageColumns) + `, c.title, c.type
		FROM messages m
		JOIN chats c ON c.id = m.chat_id
		JOIN chat_members cm ON cm.chat_id = m.chat_id AND cm.account_id = ?
		WHERE m.deleted_at = 0 AND m.embedding IS NOT NULL AND m.embedding_dim = ?
		AND ` + aclPredicate)
	args := []any{f.AccountID, f.Dim, f.AccountID}
	if f.ChatID != 0 {
		sb.WriteString(` AND m.chat_id = ?`)
		args = append(args, f.ChatID)
	}

	return db.querySearchRows(sb.String(), args...)
}

func (db *DB) querySearchRows(query string, args ...any) ([]SearchRow, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []SearchRow
	for rows.Next() {
		var r SearchRow
		var media, tokens string
		var embedding []byte
		if err := rows.Scan(
			&r.Message.ID, &r.Message.UUID, &r.Message.Platform, &r.Message.PlatformMsgID,
			&r.Message.ChatID, &r.Message.OwnerAccountID, &r.Message.SenderID, &r.Message.SenderName,
			&r.Message.SenderUUID, &r.Message.Content, &r.Message.ReplyToMsgID, &r.Message.ForwardFrom,
			&media, &tokens, &embedding, &r.Message.EmbeddingDim, &r.Message.PlatformTS,
			&r.Message.CreatedAt, &r.Message.UpdatedAt, &r.Message.DeletedAt,
			&r.ChatTitle, &r.ChatType,
		); err != nil {
			return nil, err
		}
		r.Message.Media = decodeMedia(media)
		r.Message.Tokens = decodeTokens(tokens)
		r.Message.Embedding = decodeEmbedding(embedding)
		out = append(out, r)
	}
	return out, rows.Err()
}
