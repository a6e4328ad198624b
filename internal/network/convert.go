package network

import (
	"github.com/google/uuid"
	"github.com/matheus3301/chatvault/internal/store"
)

// ToCanonical converts a raw network message into the canonical record.
// owner is the syncing account for one-to-one dialogs and empty for
// shared chats.
func ToCanonical(raw RawMessage, owner string) *store.Message {
	m := &store.Message{
		UUID:           uuid.New().String(),
		Platform:       store.PlatformTelegram,
		PlatformMsgID:  raw.ID,
		ChatID:         raw.ChatID,
		OwnerAccountID: owner,
		SenderID:       raw.SenderID,
		SenderName:     raw.SenderName,
		Content:        raw.Text,
		ReplyToMsgID:   raw.ReplyToID,
		ForwardFrom:    raw.ForwardFrom,
		PlatformTS:     raw.Timestamp.UnixMilli(),
	}
	for _, ref := range raw.Media {
		m.Media = append(m.Media, store.MediaItem{
			FileID: ref.FileID,
			Kind:   ref.Kind,
			Size:   ref.Size,
		})
	}
	return m
}

// OwnerFor returns the owner-account value for a chat type: dialogs are
// private to the syncing account, everything else is shared.
func OwnerFor(chatType, accountID string) string {
	if chatType == store.ChatDialog {
		return accountID
	}
	return ""
}
