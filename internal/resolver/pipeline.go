package resolver

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/chatvault/internal/metrics"
	"github.com/matheus3301/chatvault/internal/network"
	"github.com/matheus3301/chatvault/internal/settings"
	"github.com/matheus3301/chatvault/internal/store"
)

// DefaultQueueDepth bounds the takeout batch queue. A full queue
// applies backpressure to the sync engine's flush.
const DefaultQueueDepth = 4

// DataHandler receives persisted messages: once on arrival and again
// after each enrichment lands. Takeout batches are never published.
type DataHandler func(msgs []*store.Message)

// Pipeline persists incoming batches and fans them out to the enabled
// resolvers. Takeout batches are serialized through a bounded queue so
// a bulk export cannot starve realtime work; realtime batches dispatch
// directly.
type Pipeline struct {
	db        *store.DB
	client    network.Client
	registry  *Registry
	settings  *settings.Service
	sink      metrics.Sink
	onData    DataHandler
	accountID string
	logger    *zap.Logger

	queue chan *Batch

	startOnce sync.Once
	wg        sync.WaitGroup
}

// NewPipeline creates a pipeline. sink and onData may be nil; client is
// only needed for Reprocess.
func NewPipeline(db *store.DB, client network.Client, registry *Registry, svc *settings.Service,
	sink metrics.Sink, onData DataHandler, accountID string, queueDepth int, logger *zap.Logger) *Pipeline {
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		db:        db,
		client:    client,
		registry:  registry,
		settings:  svc,
		sink:      sink,
		onData:    onData,
		accountID: accountID,
		logger:    logger,
		queue:     make(chan *Batch, queueDepth),
	}
}

// Start launches the takeout worker. It runs until ctx is cancelled.
func (p *Pipeline) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case b := <-p.queue:
					p.run(ctx, b)
				case <-ctx.Done():
					return
				}
			}
		}()
	})
}

// Wait blocks until the takeout worker has exited.
func (p *Pipeline) Wait() { p.wg.Wait() }

// Process accepts one batch. Takeout batches block until the queue has
// room; realtime batches return immediately and process concurrently.
func (p *Pipeline) Process(ctx context.Context, msgs []*store.Message, raws []network.RawMessage, opts Options) {
	if len(msgs) == 0 {
		return
	}
	b := &Batch{Messages: msgs, Raws: raws, Options: opts}
	if opts.Takeout {
		select {
		case p.queue <- b:
		case <-ctx.Done():
			p.logger.Warn("takeout batch dropped on shutdown", zap.Int("messages", len(msgs)))
		}
		return
	}
	go p.run(context.WithoutCancel(ctx), b)
}

// Reprocess refetches specific messages from the network, bypassing
// local caches, and runs them through the full pipeline again.
func (p *Pipeline) Reprocess(ctx context.Context, chatID int64, ids []int64) error {
	if p.client == nil {
		return fmt.Errorf("reprocess chat %d: no network client", chatID)
	}
	peer, err := p.client.ResolveInputEntity(ctx, chatID)
	if err != nil {
		return fmt.Errorf("resolve chat %d: %w", chatID, err)
	}
	raws, err := p.client.GetMessages(ctx, peer, ids)
	if err != nil {
		return fmt.Errorf("refetch messages: %w", err)
	}

	owner := ""
	if chat, err := p.db.GetChat(chatID); err == nil && chat != nil {
		owner = network.OwnerFor(chat.Type, p.accountID)
	}
	msgs := make([]*store.Message, 0, len(raws))
	for _, raw := range raws {
		msgs = append(msgs, network.ToCanonical(raw, owner))
	}
	p.run(ctx, &Batch{Messages: msgs, Raws: raws, Options: Options{ForceRefetch: true}})
	return nil
}

// run persists the batch, publishes it, and fans out to the enabled
// resolvers. Resolver failures are logged and isolated.
func (p *Pipeline) run(ctx context.Context, b *Batch) {
	start := time.Now()

	sort.Slice(b.Messages, func(i, j int) bool {
		return b.Messages[i].PlatformMsgID > b.Messages[j].PlatformMsgID
	})
	// Publish raw arrivals first so consumers see them immediately; the
	// batch is always persisted before any resolver runs.
	p.publish(b, b.Messages)
	if err := p.db.UpsertMessages(b.Messages); err != nil {
		p.logger.Error("persist batch", zap.Int("messages", len(b.Messages)), zap.Error(err))
		return
	}

	var disabled map[string]bool
	if p.settings != nil {
		disabled = p.settings.Disabled()
	}
	selected := p.registry.Select(disabled, b.Options)

	// Each resolver works on its own copy of the batch: siblings run
	// concurrently and persist their own results, so they must never
	// share mutable message state. The upsert's non-empty-wins merge
	// folds the per-resolver deltas back into one row.
	var wg sync.WaitGroup
	for _, res := range selected {
		wg.Add(1)
		go func(res Resolver) {
			defer wg.Done()
			rb := &Batch{Messages: cloneMessages(b.Messages), Raws: b.Raws, Options: b.Options}
			p.runResolver(ctx, res, rb)
		}(res)
	}
	wg.Wait()

	if p.sink != nil {
		source := metrics.SourceRealtime
		if b.Options.Takeout {
			source = metrics.SourceTakeout
		}
		p.sink.ObserveBatch(source, len(b.Messages), time.Since(start))
	}
}

// runResolver executes one resolver and persists whatever it produced.
// A panic or error is contained to this resolver.
func (p *Pipeline) runResolver(ctx context.Context, res Resolver, b *Batch) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("resolver panicked", zap.String("resolver", res.Name()), zap.Any("panic", r))
		}
	}()

	result, err := res.Run(ctx, b)
	if err != nil {
		p.logger.Warn("resolver failed", zap.String("resolver", res.Name()), zap.Error(err))
		return
	}

	switch {
	case result.Stream != nil:
		var done []*store.Message
		for m, err := range result.Stream {
			if err != nil {
				p.logger.Warn("resolver item failed", zap.String("resolver", res.Name()), zap.Error(err))
				continue
			}
			if err := p.db.UpsertMessage(m); err != nil {
				p.logger.Error("persist resolved message", zap.String("resolver", res.Name()), zap.Error(err))
				continue
			}
			done = append(done, m)
		}
		p.publish(b, done)
	case len(result.Batch) > 0:
		if err := p.db.UpsertMessages(result.Batch); err != nil {
			p.logger.Error("persist resolver batch", zap.String("resolver", res.Name()), zap.Error(err))
			return
		}
		p.publish(b, result.Batch)
	}
}

// cloneMessages copies the batch's messages so one resolver's writes
// are invisible to its siblings. Media items are mutated in place by
// the media resolver, so that slice is copied too.
func cloneMessages(msgs []*store.Message) []*store.Message {
	out := make([]*store.Message, len(msgs))
	for i, m := range msgs {
		cp := *m
		if len(m.Media) > 0 {
			cp.Media = append([]store.MediaItem(nil), m.Media...)
		}
		out[i] = &cp
	}
	return out
}

func (p *Pipeline) publish(b *Batch, msgs []*store.Message) {
	if b.Options.Takeout || p.onData == nil || len(msgs) == 0 {
		return
	}
	p.onData(msgs)
}
