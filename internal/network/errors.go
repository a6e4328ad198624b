package network

import "errors"

// Error classes raised by client implementations. Callers test with
// errors.Is; concrete clients wrap their transport errors around these
// sentinels.
var (
	// ErrInvalidPeer signals a stale or invalid peer handle. The caller
	// should re-resolve the peer once and retry the failed call once.
	ErrInvalidPeer = errors.New("invalid peer")

	// ErrFloodWait signals remote rate limiting.
	ErrFloodWait = errors.New("flood wait")

	// ErrNotFound signals a missing message, entity, or media object.
	ErrNotFound = errors.New("not found")
)
