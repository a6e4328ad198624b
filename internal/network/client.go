// Package network defines the capability set consumed from the remote
// chat network client. The concrete client (connection, auth, raw RPC)
// is an external collaborator; this package owns only the contract and
// the raw message model.
package network

import "context"

// Peer is an opaque input-entity handle resolved from a chat id.
type Peer any

// TakeoutSession is an opaque durable handle for bulk history export.
// It must be opened before and explicitly closed after a large export.
type TakeoutSession any

// HistoryOptions parameterizes one history page fetch. Pages are
// returned newest-first. OffsetID = 0 starts from the newest message;
// otherwise only messages with id strictly below OffsetID are returned.
// MinID/MaxID, when non-zero, bound the returned ids exclusively.
type HistoryOptions struct {
	Limit    int
	OffsetID int64
	MinID    int64
	MaxID    int64
	Takeout  TakeoutSession
}

// HistoryResult is one page of raw history plus the remote total when
// the API reports one.
type HistoryResult struct {
	Messages   []RawMessage
	TotalCount int
}

// Client is the consumed capability set of the remote chat network.
// All calls are fallible; transport errors include the invalid-peer
// class (see ErrInvalidPeer) signalling that the peer handle is stale.
type Client interface {
	// ResolveInputEntity resolves a chat id to an opaque peer handle.
	ResolveInputEntity(ctx context.Context, chatID int64) (Peer, error)

	// HistoryPage fetches one page of message history for a peer.
	HistoryPage(ctx context.Context, peer Peer, opts HistoryOptions) (*HistoryResult, error)

	// HistoryCount is a cheap probe for the total remote history size.
	HistoryCount(ctx context.Context, peer Peer) (int, error)

	// GetMessages fetches specific messages by id, bypassing any local
	// cache. Used by the reprocess path.
	GetMessages(ctx context.Context, peer Peer, ids []int64) ([]RawMessage, error)

	// GetEntity resolves a user or chat entity.
	GetEntity(ctx context.Context, kind EntityKind, id int64) (*Entity, error)

	// DownloadProfilePhoto downloads an entity's profile photo. A nil
	// byte slice with nil error means the entity has no photo.
	DownloadProfilePhoto(ctx context.Context, entity *Entity, small bool) ([]byte, error)

	// DownloadMedia downloads the media behind a reference.
	DownloadMedia(ctx context.Context, ref MediaRef) ([]byte, error)

	// InitTakeoutSession opens a bulk-export session.
	InitTakeoutSession(ctx context.Context) (TakeoutSession, error)

	// FinishTakeoutSession closes a bulk-export session, flagging
	// whether the export completed successfully.
	FinishTakeoutSession(ctx context.Context, session TakeoutSession, success bool) error
}
