// Package resolver implements the post-ingestion enrichment pipeline.
// Each resolver enriches a batch of canonical messages independently;
// a resolver failure never blocks persistence or the other resolvers.
package resolver

import (
	"context"
	"iter"

	"github.com/matheus3301/chatvault/internal/network"
	"github.com/matheus3301/chatvault/internal/store"
)

// Options carry the per-run flags of one batch.
type Options struct {
	// Takeout marks bulk-export batches: queued processing, no
	// new-data publication.
	Takeout bool
	// ForceRefetch bypasses already-persisted media checks.
	ForceRefetch bool

	SkipMedia     bool
	SkipTokens    bool
	SkipEmbedding bool
}

// Batch is the unit of work flowing through the pipeline: canonical
// messages plus the raw source messages they were converted from.
type Batch struct {
	Messages []*store.Message
	Raws     []network.RawMessage
	Options  Options
}

// Result is what a resolver hands back: exactly one of Batch or Stream
// is set. Batch results are persisted in one transaction; Stream
// results are persisted message by message as they are yielded, so a
// slow per-message resolver surfaces partial progress.
type Result struct {
	Batch  []*store.Message
	Stream iter.Seq2[*store.Message, error]
}

// Resolver enriches messages in a batch. Run returns only the messages
// it changed.
type Resolver interface {
	Name() string
	Run(ctx context.Context, b *Batch) (Result, error)
}
