package resolver

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matheus3301/chatvault/internal/network"
	"github.com/matheus3301/chatvault/internal/store"
)

// senderNamespace seeds the deterministic sender uuids, so the same
// sender maps to the same uuid across runs and machines.
var senderNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("chatvault://sender"))

// SenderUUID derives the stable uuid for a platform sender id.
func SenderUUID(platform string, senderID int64) string {
	return uuid.NewSHA1(senderNamespace, []byte(platform+":"+strconv.FormatInt(senderID, 10))).String()
}

// UserResolver fills in sender display names and stable sender uuids.
// Names come from the raw messages when present; missing ones are
// looked up once per sender.
type UserResolver struct {
	client network.Client
	logger *zap.Logger
}

// NewUserResolver creates the user resolver.
func NewUserResolver(client network.Client, logger *zap.Logger) *UserResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserResolver{client: client, logger: logger}
}

func (r *UserResolver) Name() string { return NameUser }

func (r *UserResolver) Run(ctx context.Context, b *Batch) (Result, error) {
	names := make(map[int64]string)
	for _, raw := range b.Raws {
		if raw.SenderName != "" {
			names[raw.SenderID] = raw.SenderName
		}
	}

	looked := make(map[int64]bool)
	var out []*store.Message
	for _, m := range b.Messages {
		if m.SenderID == 0 {
			continue
		}
		name, ok := names[m.SenderID]
		if !ok && !looked[m.SenderID] && r.client != nil {
			looked[m.SenderID] = true
			ent, err := r.client.GetEntity(ctx, network.EntityUser, m.SenderID)
			if err != nil {
				r.logger.Debug("sender lookup failed", zap.Int64("sender_id", m.SenderID), zap.Error(err))
			} else {
				name = ent.Name
				names[m.SenderID] = name
			}
		}

		changed := false
		if name != "" && m.SenderName != name {
			m.SenderName = name
			changed = true
		}
		if m.SenderUUID == "" {
			m.SenderUUID = SenderUUID(m.Platform, m.SenderID)
			changed = true
		}
		if changed {
			out = append(out, m)
		}
	}
	return Result{Batch: out}, nil
}
