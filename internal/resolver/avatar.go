package resolver

import (
	"context"

	"github.com/matheus3301/chatvault/internal/avatar"
	"github.com/matheus3301/chatvault/internal/network"
)

// AvatarResolver warms the avatar cache for every distinct sender in
// the batch. It changes no messages; results land in the cache only.
// Disabled by default in the account settings.
type AvatarResolver struct {
	cache *avatar.Cache
}

// NewAvatarResolver creates the avatar resolver.
func NewAvatarResolver(cache *avatar.Cache) *AvatarResolver {
	return &AvatarResolver{cache: cache}
}

func (r *AvatarResolver) Name() string { return NameAvatar }

func (r *AvatarResolver) Run(ctx context.Context, b *Batch) (Result, error) {
	if r.cache == nil {
		return Result{}, nil
	}
	seen := make(map[int64]bool)
	for _, m := range b.Messages {
		if m.SenderID == 0 || seen[m.SenderID] {
			continue
		}
		seen[m.SenderID] = true
		// Best-effort warm-up; the cache absorbs failures and dedups.
		r.cache.Fetch(ctx, network.EntityUser, m.SenderID, "", nil)
	}
	return Result{}, nil
}
