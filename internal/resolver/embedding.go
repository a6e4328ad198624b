package resolver

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/matheus3301/chatvault/internal/embed"
	"github.com/matheus3301/chatvault/internal/store"
)

// EmbeddingResolver attaches embedding vectors for messages with text
// content. One batched embedder call per run.
type EmbeddingResolver struct {
	embedder embed.Embedder
	logger   *zap.Logger
}

// NewEmbeddingResolver creates the embedding resolver.
func NewEmbeddingResolver(embedder embed.Embedder, logger *zap.Logger) *EmbeddingResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmbeddingResolver{embedder: embedder, logger: logger}
}

func (r *EmbeddingResolver) Name() string { return NameEmbedding }

func (r *EmbeddingResolver) Run(ctx context.Context, b *Batch) (Result, error) {
	if r.embedder == nil {
		return Result{}, nil
	}

	var texts []string
	var targets []*store.Message
	for _, m := range b.Messages {
		if m.Content == "" {
			continue
		}
		texts = append(texts, m.Content)
		targets = append(targets, m)
	}
	if len(texts) == 0 {
		return Result{}, nil
	}

	vecs, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return Result{}, fmt.Errorf("embed batch: %w", err)
	}
	if len(vecs) != len(targets) {
		return Result{}, fmt.Errorf("embed batch: got %d vectors for %d texts", len(vecs), len(targets))
	}

	for i, m := range targets {
		m.Embedding = vecs[i]
		m.EmbeddingDim = len(vecs[i])
	}
	return Result{Batch: targets}, nil
}
