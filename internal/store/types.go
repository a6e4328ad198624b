package store

// Platform identifies the source chat network of a message.
const PlatformTelegram = "telegram"

// Chat types on the remote network. Dialogs are private one-to-one
// archives; every other type is shared infrastructure.
const (
	ChatDialog     = "dialog"
	ChatGroup      = "group"
	ChatSupergroup = "supergroup"
	ChatChannel    = "channel"
	ChatBot        = "bot"
)

// Blob kinds accepted by UpsertBlob/GetBlob.
const (
	BlobAvatar  = "avatar"
	BlobPhoto   = "photo"
	BlobSticker = "sticker"
)

// Chat represents an archived chat.
type Chat struct {
	ID           int64
	Type         string
	Title        string
	AvatarFileID string
}

// MediaItem is one resolved media descriptor attached to a message.
// Serialized as JSON in the media column.
type MediaItem struct {
	FileID     string `json:"file_id"`
	Kind       string `json:"kind"`
	Mime       string `json:"mime,omitempty"`
	Size       int64  `json:"size,omitempty"`
	Downloaded bool   `json:"downloaded,omitempty"`
}

// Message is the canonical, platform-agnostic message record.
// OwnerAccountID is empty for shared (group/broadcast) chats and set to
// the syncing account for one-to-one dialogs.
type Message struct {
	ID             int64
	UUID           string
	Platform       string
	PlatformMsgID  int64
	ChatID         int64
	OwnerAccountID string
	SenderID       int64
	SenderName     string
	SenderUUID     string
	Content        string
	ReplyToMsgID   int64
	ForwardFrom    string
	Media          []MediaItem
	Tokens         []string
	Embedding      []float32
	EmbeddingDim   int
	PlatformTS     int64 // unix milliseconds
	CreatedAt      int64
	UpdatedAt      int64
	DeletedAt      int64
}

// ChatStats are per-chat sync boundaries maintained on every upsert.
type ChatStats struct {
	ChatID         int64
	MessageCount   int64
	FirstSyncedID  int64
	LatestSyncedID int64
	FirstTS        int64
	LatestTS       int64
}

// Blob is a stored binary keyed by remote file id. Bytes and
// StoragePath are mutually exclusive.
type Blob struct {
	FileID      string
	Mime        string
	Bytes       []byte
	StoragePath string
}

// SettingsRow is the persisted per-account settings record.
type SettingsRow struct {
	AccountID         string
	DisabledResolvers []string
	EmbeddingDim      int
}
