package resolver

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/matheus3301/chatvault/internal/network"
	"github.com/matheus3301/chatvault/internal/pool"
	"github.com/matheus3301/chatvault/internal/store"
)

// MediaResolver downloads the media attached to messages through the
// shared media pool and stores the bytes by file id. It streams so that
// each message's media lands as soon as its downloads finish.
type MediaResolver struct {
	client network.Client
	db     *store.DB
	exec   *pool.Executor
	logger *zap.Logger
}

// NewMediaResolver creates the media resolver.
func NewMediaResolver(client network.Client, db *store.DB, exec *pool.Executor, logger *zap.Logger) *MediaResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MediaResolver{client: client, db: db, exec: exec, logger: logger}
}

func (r *MediaResolver) Name() string { return NameMedia }

// blobKindFor maps downloadable media kinds to their blob table. Large
// kinds (video, document, voice) are referenced, never stored inline.
func blobKindFor(mediaKind string) (string, bool) {
	switch mediaKind {
	case "photo":
		return store.BlobPhoto, true
	case "sticker":
		return store.BlobSticker, true
	}
	return "", false
}

func (r *MediaResolver) Run(ctx context.Context, b *Batch) (Result, error) {
	refs := make(map[string]network.MediaRef)
	for _, raw := range b.Raws {
		for _, ref := range raw.Media {
			refs[ref.FileID] = ref
		}
	}

	stream := func(yield func(*store.Message, error) bool) {
		for _, m := range b.Messages {
			if len(m.Media) == 0 {
				continue
			}
			changed := false
			for i := range m.Media {
				item := &m.Media[i]
				kind, ok := blobKindFor(item.Kind)
				if !ok || item.FileID == "" {
					continue
				}
				if done, err := r.fetchOne(ctx, kind, item, refs, b.Options.ForceRefetch); err != nil {
					r.logger.Warn("media download failed",
						zap.String("file_id", item.FileID), zap.Error(err))
				} else if done {
					changed = true
				}
			}
			if !changed {
				continue
			}
			if !yield(m, nil) {
				return
			}
		}
	}
	return Result{Stream: stream}, nil
}

// fetchOne ensures one media item's bytes are stored, downloading
// through the pool unless a blob already exists.
func (r *MediaResolver) fetchOne(ctx context.Context, kind string, item *store.MediaItem,
	refs map[string]network.MediaRef, force bool) (bool, error) {
	if item.Downloaded && !force {
		return false, nil
	}
	if !force {
		blob, err := r.db.GetBlob(kind, item.FileID)
		if err != nil {
			return false, err
		}
		if blob != nil {
			item.Downloaded = true
			item.Mime = blob.Mime
			return true, nil
		}
	}

	ref, ok := refs[item.FileID]
	if !ok {
		ref = network.MediaRef{FileID: item.FileID, Kind: item.Kind, Size: item.Size}
	}

	var data []byte
	err := r.exec.Do(ctx, func() error {
		b, err := r.client.DownloadMedia(ctx, ref)
		if err != nil {
			return err
		}
		data = b
		return nil
	})
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, fmt.Errorf("empty media %s", item.FileID)
	}

	mime := http.DetectContentType(data)
	if err := r.db.UpsertBlob(kind, &store.Blob{FileID: item.FileID, Mime: mime, Bytes: data}); err != nil {
		return false, err
	}
	item.Downloaded = true
	item.Mime = mime
	if item.Size == 0 {
		item.Size = int64(len(data))
	}
	return true, nil
}
