package sync

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matheus3301/chatvault/internal/network"
	"github.com/matheus3301/chatvault/internal/rate"
	"github.com/matheus3301/chatvault/internal/store"
	"github.com/matheus3301/chatvault/internal/task"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// fakeHistoryClient serves pages from a fixed id set, honoring
// OffsetID/MinID semantics the way the remote API does.
type fakeHistoryClient struct {
	mu      sync.Mutex
	ids     []int64 // unsorted is fine
	pageErr error   // returned by every HistoryPage when set

	invalidOnce  bool // first HistoryPage fails with ErrInvalidPeer
	blockPages   chan struct{}
	resolveCalls int32
	pageCalls    int32
	initErr      error

	finishMu      sync.Mutex
	finishSuccess []bool
}

func (f *fakeHistoryClient) ResolveInputEntity(_ context.Context, chatID int64) (network.Peer, error) {
	atomic.AddInt32(&f.resolveCalls, 1)
	return chatID, nil
}

func (f *fakeHistoryClient) HistoryPage(ctx context.Context, _ network.Peer, opts network.HistoryOptions) (*network.HistoryResult, error) {
	atomic.AddInt32(&f.pageCalls, 1)
	if f.blockPages != nil {
		select {
		case <-f.blockPages:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	if f.invalidOnce {
		f.invalidOnce = false
		f.mu.Unlock()
		return nil, network.ErrInvalidPeer
	}
	if f.pageErr != nil {
		err := f.pageErr
		f.mu.Unlock()
		return nil, err
	}
	var matched []int64
	for _, id := range f.ids {
		if opts.OffsetID > 0 && id >= opts.OffsetID {
			continue
		}
		if opts.MinID > 0 && id <= opts.MinID {
			continue
		}
		matched = append(matched, id)
	}
	f.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i] > matched[j] })
	limit := opts.Limit
	if limit <= 0 || limit > len(matched) {
		limit = len(matched)
	}
	matched = matched[:limit]

	res := &network.HistoryResult{}
	for _, id := range matched {
		res.Messages = append(res.Messages, network.RawMessage{
			ID: id, ChatID: 7, SenderID: 1, Text: "hello", Timestamp: time.UnixMilli(id * 1000),
		})
	}
	return res, nil
}

func (f *fakeHistoryClient) HistoryCount(context.Context, network.Peer) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ids), nil
}

func (f *fakeHistoryClient) GetMessages(context.Context, network.Peer, []int64) ([]network.RawMessage, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeHistoryClient) GetEntity(_ context.Context, kind network.EntityKind, id int64) (*network.Entity, error) {
	return &network.Entity{ID: id, Kind: kind, Type: store.ChatGroup, Name: "test chat"}, nil
}

func (f *fakeHistoryClient) DownloadProfilePhoto(context.Context, *network.Entity, bool) ([]byte, error) {
	return nil, nil
}

func (f *fakeHistoryClient) DownloadMedia(context.Context, network.MediaRef) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeHistoryClient) InitTakeoutSession(context.Context) (network.TakeoutSession, error) {
	if f.initErr != nil {
		return nil, f.initErr
	}
	return "takeout", nil
}

func (f *fakeHistoryClient) FinishTakeoutSession(_ context.Context, _ network.TakeoutSession, success bool) error {
	f.finishMu.Lock()
	f.finishSuccess = append(f.finishSuccess, success)
	f.finishMu.Unlock()
	return nil
}

func (f *fakeHistoryClient) finished() []bool {
	f.finishMu.Lock()
	defer f.finishMu.Unlock()
	return append([]bool{}, f.finishSuccess...)
}

type recordedBatch struct {
	ids     []int64
	takeout bool
}

type batchRecorder struct {
	mu      sync.Mutex
	batches []recordedBatch
}

func (r *batchRecorder) handle(msgs []*store.Message, _ []network.RawMessage, takeout bool) {
	b := recordedBatch{takeout: takeout}
	for _, m := range msgs {
		b.ids = append(b.ids, m.PlatformMsgID)
	}
	r.mu.Lock()
	r.batches = append(r.batches, b)
	r.mu.Unlock()
}

func (r *batchRecorder) all() []recordedBatch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedBatch{}, r.batches...)
}

func testEngine(t *testing.T, client network.Client, db *store.DB, handler BatchHandler, batchSize int) (*Engine, *task.Notifier) {
	t.Helper()
	notifier := task.NewNotifier()
	e := NewEngine(client, db, task.NewRegistry(), notifier,
		rate.NewWaiter(time.Millisecond), handler, "acct-1", batchSize, nil)
	return e, notifier
}

func waitTerminal(t *testing.T, events <-chan task.Event) task.Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case evt := <-events:
			if evt.Kind != task.KindProgress {
				return evt
			}
		case <-deadline:
			t.Fatal("no terminal task event")
		}
	}
}

func TestFullSyncBatchesAndCompletes(t *testing.T) {
	client := &fakeHistoryClient{}
	for id := int64(1); id <= 51; id++ {
		client.ids = append(client.ids, id)
	}
	rec := &batchRecorder{}
	e, notifier := testEngine(t, client, testDB(t), rec.handle, 50)
	events, unsub := notifier.Subscribe(64)
	defer unsub()

	ids := e.Start([]int64{7}, ModeFull)
	if len(ids) != 1 {
		t.Fatalf("task ids = %v, want one", ids)
	}
	evt := waitTerminal(t, events)
	if evt.Kind != task.KindDone {
		t.Fatalf("terminal event = %s (%s), want done", evt.Kind, evt.Task.Error)
	}

	batches := rec.all()
	if len(batches) != 2 || len(batches[0].ids) != 50 || len(batches[1].ids) != 1 {
		t.Fatalf("batch sizes = %v, want [50 1]", batches)
	}
	for _, b := range batches {
		if !b.takeout {
			t.Error("history batch not flagged as takeout")
		}
	}
	if batches[0].ids[0] != 51 || batches[0].ids[1] != 50 {
		t.Errorf("first batch starts %v, want newest-first from 51", batches[0].ids[:2])
	}
	if got := client.finished(); len(got) != 1 || !got[0] {
		t.Errorf("takeout finish calls = %v, want [true]", got)
	}
}

func TestIncrementalSyncsBothGaps(t *testing.T) {
	db := testDB(t)
	seed := []*store.Message{
		{UUID: "a", Platform: store.PlatformTelegram, PlatformMsgID: 10, ChatID: 7, PlatformTS: 10_000},
		{UUID: "b", Platform: store.PlatformTelegram, PlatformMsgID: 100, ChatID: 7, PlatformTS: 100_000},
	}
	if err := db.UpsertMessages(seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	client := &fakeHistoryClient{ids: []int64{8, 9, 10, 100, 101}}
	rec := &batchRecorder{}
	e, notifier := testEngine(t, client, db, rec.handle, 50)
	events, unsub := notifier.Subscribe(64)
	defer unsub()

	e.Start([]int64{7}, ModeIncremental)
	if evt := waitTerminal(t, events); evt.Kind != task.KindDone {
		t.Fatalf("terminal event = %s (%s), want done", evt.Kind, evt.Task.Error)
	}

	batches := rec.all()
	if len(batches) != 1 {
		t.Fatalf("batches = %v, want one combined flush", batches)
	}
	want := []int64{101, 9, 8}
	got := batches[0].ids
	if len(got) != len(want) {
		t.Fatalf("batch ids = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("batch ids = %v, want %v", got, want)
		}
	}
}

func TestIncrementalFallsBackToFull(t *testing.T) {
	client := &fakeHistoryClient{ids: []int64{3, 2, 1}}
	rec := &batchRecorder{}
	e, notifier := testEngine(t, client, testDB(t), rec.handle, 50)
	events, unsub := notifier.Subscribe(64)
	defer unsub()

	e.Start([]int64{7}, ModeIncremental)
	if evt := waitTerminal(t, events); evt.Kind != task.KindDone {
		t.Fatalf("terminal event = %s, want done", evt.Kind)
	}
	batches := rec.all()
	if len(batches) != 1 || len(batches[0].ids) != 3 {
		t.Fatalf("batches = %v, want one batch of 3", batches)
	}
}

func TestAbortStopsPagination(t *testing.T) {
	client := &fakeHistoryClient{blockPages: make(chan struct{})}
	for id := int64(1); id <= 500; id++ {
		client.ids = append(client.ids, id)
	}
	rec := &batchRecorder{}
	e, notifier := testEngine(t, client, testDB(t), rec.handle, 50)
	events, unsub := notifier.Subscribe(64)
	defer unsub()

	ids := e.Start([]int64{7}, ModeFull)
	// Wait for the first page fetch to be in flight, then abort.
	for atomic.LoadInt32(&client.pageCalls) == 0 {
		time.Sleep(time.Millisecond)
	}
	if !e.Abort(ids[0]) {
		t.Fatal("abort returned false for active task")
	}
	close(client.blockPages)

	if evt := waitTerminal(t, events); evt.Kind != task.KindAborted {
		t.Fatalf("terminal event = %s, want aborted", evt.Kind)
	}
	if got := client.finished(); len(got) != 1 || got[0] {
		t.Errorf("takeout finish calls = %v, want [false]", got)
	}
}

func TestTakeoutFinalizedOnError(t *testing.T) {
	client := &fakeHistoryClient{ids: []int64{1}, pageErr: errors.New("flood")}
	rec := &batchRecorder{}
	e, notifier := testEngine(t, client, testDB(t), rec.handle, 50)
	events, unsub := notifier.Subscribe(64)
	defer unsub()

	e.Start([]int64{7}, ModeFull)
	evt := waitTerminal(t, events)
	if evt.Kind != task.KindError || evt.Task.State != task.StateFailed {
		t.Fatalf("terminal event = %s/%s, want error/failed", evt.Kind, evt.Task.State)
	}
	if evt.Task.Progress != task.ErrorProgress {
		t.Errorf("progress = %v, want error sentinel", evt.Task.Progress)
	}
	if got := client.finished(); len(got) != 1 || got[0] {
		t.Errorf("takeout finish calls = %v, want [false]", got)
	}
}

func TestInvalidPeerRetriesOnce(t *testing.T) {
	client := &fakeHistoryClient{ids: []int64{2, 1}, invalidOnce: true}
	rec := &batchRecorder{}
	e, notifier := testEngine(t, client, testDB(t), rec.handle, 50)
	events, unsub := notifier.Subscribe(64)
	defer unsub()

	e.Start([]int64{7}, ModeFull)
	if evt := waitTerminal(t, events); evt.Kind != task.KindDone {
		t.Fatalf("terminal event = %s, want done after peer refresh", evt.Kind)
	}
	if n := atomic.LoadInt32(&client.resolveCalls); n != 2 {
		t.Errorf("resolve calls = %d, want 2 (initial + refresh)", n)
	}
	batches := rec.all()
	if len(batches) != 1 || len(batches[0].ids) != 2 {
		t.Fatalf("batches = %v, want one batch of 2", batches)
	}
}

func TestTaskListAndRemoval(t *testing.T) {
	client := &fakeHistoryClient{blockPages: make(chan struct{}), ids: []int64{1}}
	rec := &batchRecorder{}
	e, notifier := testEngine(t, client, testDB(t), rec.handle, 50)
	events, unsub := notifier.Subscribe(64)
	defer unsub()

	e.Start([]int64{7}, ModeFull)
	for atomic.LoadInt32(&client.pageCalls) == 0 {
		time.Sleep(time.Millisecond)
	}
	if tasks := e.Tasks(); len(tasks) != 1 || tasks[0].Type != TaskType {
		t.Fatalf("tasks = %v, want one history_sync", tasks)
	}

	close(client.blockPages)
	waitTerminal(t, events)
	// Owner removes the task once terminal.
	deadline := time.Now().Add(time.Second)
	for len(e.Tasks()) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("terminal task not removed from registry")
		}
		time.Sleep(time.Millisecond)
	}
}
