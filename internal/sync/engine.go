// Package sync implements resumable, rate-limited pagination over the
// remote history API, with per-chat task tracking and abort.
package sync

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/matheus3301/chatvault/internal/network"
	"github.com/matheus3301/chatvault/internal/rate"
	"github.com/matheus3301/chatvault/internal/store"
	"github.com/matheus3301/chatvault/internal/task"
)

// Mode selects full or incremental history sync.
type Mode string

const (
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
)

// TaskType identifies sync tasks in the active-task table.
const TaskType = "history_sync"

const defaultPageSize = 100

// BatchHandler receives each emitted message batch together with the
// raw source messages, tagged with the takeout flag.
type BatchHandler func(msgs []*store.Message, raws []network.RawMessage, takeout bool)

// Engine pulls pages of raw history, converts them to canonical
// records, and emits fixed-size batches to its handler. One task per
// chat; chats sync concurrently, pages within a chat sequentially.
type Engine struct {
	client    network.Client
	db        *store.DB
	registry  *task.Registry
	notifier  *task.Notifier
	waiter    *rate.Waiter
	handler   BatchHandler
	accountID string
	batchSize int
	logger    *zap.Logger
}

// NewEngine creates a sync engine.
func NewEngine(client network.Client, db *store.DB, registry *task.Registry, notifier *task.Notifier,
	waiter *rate.Waiter, handler BatchHandler, accountID string, batchSize int, logger *zap.Logger) *Engine {
	if batchSize <= 0 {
		batchSize = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		client:    client,
		db:        db,
		registry:  registry,
		notifier:  notifier,
		waiter:    waiter,
		handler:   handler,
		accountID: accountID,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Start launches one sync task per chat id and returns the task ids.
func (e *Engine) Start(chatIDs []int64, mode Mode) []string {
	ids := make([]string, 0, len(chatIDs))
	for _, chatID := range chatIDs {
		t := task.New(TaskType, map[string]any{"chat_id": chatID, "mode": string(mode)})
		e.registry.Add(t)
		ids = append(ids, t.ID())
		go e.syncChat(t, chatID, mode)
	}
	return ids
}

// Abort cancels the task with the given id. Returns false when the id
// is not active.
func (e *Engine) Abort(taskID string) bool {
	return e.registry.Abort(taskID)
}

// Tasks returns the serializable state of all active tasks.
func (e *Engine) Tasks() []task.Snapshot {
	return e.registry.List()
}

// chatRun carries the state shared across both phases of one chat's
// sync: one pending batch and one running processed counter, so the
// forward phase continues the backward phase's progress.
type chatRun struct {
	task      *task.Task
	chatID    int64
	owner     string
	peer      network.Peer
	session   network.TakeoutSession
	expected  int
	processed int
	msgs      []*store.Message
	raws      []network.RawMessage
}

func (e *Engine) syncChat(t *task.Task, chatID int64, mode Mode) {
	defer e.registry.Remove(t.ID())
	ctx := t.Context()

	fail := func(err error) {
		e.logger.Error("sync failed", zap.Int64("chat_id", chatID), zap.Error(err))
		e.notifier.Publish(task.KindError, t.Fail(err))
	}

	peer, err := e.client.ResolveInputEntity(ctx, chatID)
	if err != nil {
		fail(fmt.Errorf("resolve chat %d: %w", chatID, err))
		return
	}

	owner := e.registerChat(ctx, chatID)

	if err := e.waiter.Wait(ctx); err != nil {
		e.finishAborted(t)
		return
	}
	total, err := e.client.HistoryCount(ctx, peer)
	if err != nil {
		fail(fmt.Errorf("history count: %w", err))
		return
	}

	var stats *store.ChatStats
	if mode == ModeIncremental {
		stats, err = e.db.GetChatStats(chatID)
		if err != nil {
			fail(fmt.Errorf("load chat stats: %w", err))
			return
		}
		// No prior boundaries: silently fall back to a full sync.
		if stats == nil || (stats.FirstSyncedID == 0 && stats.LatestSyncedID == 0) {
			mode = ModeFull
			stats = nil
		}
	}

	expected := total
	if stats != nil {
		expected = total - int(stats.MessageCount)
	}
	if expected < 0 {
		expected = 0
	}

	session, err := e.client.InitTakeoutSession(ctx)
	if err != nil {
		fail(fmt.Errorf("init takeout session: %w", err))
		return
	}
	success := false
	defer func() {
		// The session is finalized on every exit path, abort included.
		if err := e.client.FinishTakeoutSession(context.WithoutCancel(ctx), session, success); err != nil {
			e.logger.Warn("finish takeout session", zap.Int64("chat_id", chatID), zap.Error(err))
		}
	}()

	run := &chatRun{
		task:     t,
		chatID:   chatID,
		owner:    owner,
		peer:     peer,
		session:  session,
		expected: expected,
	}

	var runErr error
	if mode == ModeFull {
		runErr = e.paginate(run, network.HistoryOptions{Limit: defaultPageSize}, nil)
	} else {
		// Backward phase: everything newer than the latest synced id.
		// The boundary id itself is already stored and skipped.
		latest := stats.LatestSyncedID
		runErr = e.paginate(run,
			network.HistoryOptions{Limit: defaultPageSize, MinID: latest},
			func(id int64) bool { return id > latest })
		if runErr == nil && !t.Aborted() {
			// Forward phase: everything older than the first synced id.
			runErr = e.paginate(run,
				network.HistoryOptions{Limit: defaultPageSize, OffsetID: stats.FirstSyncedID}, nil)
		}
	}

	switch {
	case t.Aborted():
		e.finishAborted(t)
	case runErr != nil:
		fail(runErr)
	default:
		e.flush(run)
		success = true
		e.notifier.Publish(task.KindDone, t.Complete(fmt.Sprintf("synced %d messages", run.processed)))
		e.logger.Info("sync complete", zap.Int64("chat_id", chatID), zap.Int("messages", run.processed))
	}
}

// registerChat records the chat and the syncing account's membership so
// retrieval ACL checks hold for everything this run persists.
func (e *Engine) registerChat(ctx context.Context, chatID int64) string {
	chatType := store.ChatGroup
	title := ""
	if ent, err := e.client.GetEntity(ctx, network.EntityChat, chatID); err == nil {
		if ent.Type != "" {
			chatType = ent.Type
		}
		title = ent.Name
	} else {
		e.logger.Warn("chat entity lookup failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
	if err := e.db.UpsertChat(&store.Chat{ID: chatID, Type: chatType, Title: title}); err != nil {
		e.logger.Warn("upsert chat", zap.Int64("chat_id", chatID), zap.Error(err))
	}
	if err := e.db.AddChatMember(chatID, e.accountID); err != nil {
		e.logger.Warn("add chat member", zap.Int64("chat_id", chatID), zap.Error(err))
	}
	return network.OwnerFor(chatType, e.accountID)
}

// paginate walks history pages sequentially until an empty page. keep,
// when set, filters raw messages by id. Returning nil with the task
// aborted means the loop stopped early without error.
func (e *Engine) paginate(run *chatRun, opts network.HistoryOptions, keep func(int64) bool) error {
	opts.Takeout = run.session
	for {
		// Pace every page fetch; an abort during the wait stops the
		// loop without counting as an error.
		if err := e.waiter.Wait(run.task.Context()); err != nil {
			return nil
		}
		if run.task.Aborted() {
			return nil
		}

		page, err := e.fetchPage(run, opts)
		if err != nil {
			return err
		}
		if len(page.Messages) == 0 {
			return nil
		}

		for _, raw := range page.Messages {
			if run.task.Aborted() {
				return nil
			}
			opts.OffsetID = raw.ID
			if keep != nil && !keep(raw.ID) {
				continue
			}
			run.msgs = append(run.msgs, network.ToCanonical(raw, run.owner))
			run.raws = append(run.raws, raw)
			if len(run.msgs) >= e.batchSize {
				if run.task.Aborted() {
					return nil
				}
				e.flush(run)
			}
		}
	}
}

// fetchPage issues one history page request. On an invalid-peer error
// the peer is re-resolved once and the call retried exactly once.
func (e *Engine) fetchPage(run *chatRun, opts network.HistoryOptions) (*network.HistoryResult, error) {
	ctx := run.task.Context()
	page, err := e.client.HistoryPage(ctx, run.peer, opts)
	if err != nil && errors.Is(err, network.ErrInvalidPeer) {
		e.logger.Warn("stale peer handle, re-resolving", zap.Int64("chat_id", run.chatID))
		peer, rerr := e.client.ResolveInputEntity(ctx, run.chatID)
		if rerr != nil {
			return nil, fmt.Errorf("re-resolve chat %d: %w", run.chatID, rerr)
		}
		run.peer = peer
		page, err = e.client.HistoryPage(ctx, run.peer, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("history page: %w", err)
	}
	return page, nil
}

// flush emits the pending batch, advances the processed counter, and
// reports progress. Partial batches flush too.
func (e *Engine) flush(run *chatRun) {
	if len(run.msgs) == 0 {
		return
	}
	msgs, raws := run.msgs, run.raws
	run.msgs, run.raws = nil, nil

	e.handler(msgs, raws, true)
	run.processed += len(msgs)

	pct := float64(100)
	if run.expected > 0 {
		pct = math.Round(float64(run.processed)/float64(run.expected)*10000) / 100
	}
	snap := run.task.SetProgress(pct, fmt.Sprintf("synced %d/%d messages", run.processed, run.expected))
	e.notifier.Publish(task.KindProgress, snap)
}

func (e *Engine) finishAborted(t *task.Task) {
	e.logger.Info("sync aborted", zap.String("task_id", t.ID()))
	e.notifier.Publish(task.KindAborted, t.Snapshot())
}
