package network

import "time"

// EntityKind distinguishes the two avatar-bearing entity kinds.
type EntityKind string

const (
	EntityUser EntityKind = "user"
	EntityChat EntityKind = "chat"
)

// Entity is a resolved user or chat on the remote network. Type is the
// chat type (dialog, group, supergroup, channel, bot) for chat
// entities and empty for users.
type Entity struct {
	ID           int64
	Kind         EntityKind
	Type         string
	Name         string
	Username     string
	AvatarFileID string // empty when the entity has no avatar
}

// MediaRef points at downloadable media on the remote network.
type MediaRef struct {
	FileID string
	Kind   string // photo, video, document, sticker, voice
	Size   int64
	Ref    any // opaque client-specific location data
}

// RawMessage is one message as yielded by the remote history API,
// before conversion to the canonical record.
type RawMessage struct {
	ID          int64
	ChatID      int64
	SenderID    int64
	SenderName  string
	Text        string
	ReplyToID   int64
	ForwardFrom string
	Media       []MediaRef
	Timestamp   time.Time
}
