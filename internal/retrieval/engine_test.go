package retrieval

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/chatvault/internal/store"
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

func seedChat(t *testing.T, db *store.DB, chatID int64, chatType string, members ...string) {
	t.Helper()
	if err := db.UpsertChat(&store.Chat{ID: chatID, Type: chatType, Title: fmt.Sprintf("chat %d", chatID)}); err != nil {
		t.Fatalf("upsert chat: %v", err)
	}
	for _, m := range members {
		if err := db.AddChatMember(chatID, m); err != nil {
			t.Fatalf("add member: %v", err)
		}
	}
}

func seedMessage(t *testing.T, db *store.DB, m *store.Message) {
	t.Helper()
	if m.UUID == "" {
		m.UUID = fmt.Sprintf("uuid-%d-%d", m.ChatID, m.PlatformMsgID)
	}
	m.Platform = store.PlatformTelegram
	if err := db.UpsertMessage(m); err != nil {
		t.Fatalf("upsert message: %v", err)
	}
}

func TestLexicalTokenContainment(t *testing.T) {
	db := testDB(t)
	seedChat(t, db, 1, store.ChatGroup, "acct-a")
	seedMessage(t, db, &store.Message{
		PlatformMsgID: 1, ChatID: 1, Content: "hello gopher world",
		Tokens: []string{"hello", "gopher", "world"}, PlatformTS: 1000,
	})
	e := NewEngine(db, nil)
	ctx := context.Background()

	hits, err := e.Retrieve(ctx, Query{AccountID: "acct-a", Text: "gopher hello"})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("subset query hits = %d, want 1", len(hits))
	}

	hits, err = e.Retrieve(ctx, Query{AccountID: "acct-a", Text: "gopher missing"})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("non-subset query hits = %d, want 0", len(hits))
	}

	// Whole-token match only: "go" must not match "gopher".
	hits, err = e.Retrieve(ctx, Query{AccountID: "acct-a", Text: "go"})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("partial token matched: hits = %d, want 0", len(hits))
	}
}

func TestLexicalEmptyTokenizationIsEmptyResult(t *testing.T) {
	db := testDB(t)
	e := NewEngine(db, nil)

	hits, err := e.Retrieve(context.Background(), Query{AccountID: "acct-a", Text: "!!! ..."})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("hits = %d, want 0 for untokenizable query", len(hits))
	}
}

func TestVectorThresholdAndOrdering(t *testing.T) {
	db := testDB(t)
	seedChat(t, db, 1, store.ChatGroup, "acct-a")
	now := time.Now()

	// sim 1.0, 0.8, and 0.0 against the query vector.
	seedMessage(t, db, &store.Message{
		PlatformMsgID: 1, ChatID: 1, Content: "exact",
		Embedding: []float32{1, 0, 0}, EmbeddingDim: 3, PlatformTS: now.UnixMilli(),
	})
	seedMessage(t, db, &store.Message{
		PlatformMsgID: 2, ChatID: 1, Content: "close",
		Embedding: []float32{0.8, 0.6, 0}, EmbeddingDim: 3, PlatformTS: now.UnixMilli(),
	})
	seedMessage(t, db, &store.Message{
		PlatformMsgID: 3, ChatID: 1, Content: "orthogonal",
		Embedding: []float32{0, 1, 0}, EmbeddingDim: 3, PlatformTS: now.UnixMilli(),
	})

	e := NewEngine(db, nil)
	hits, err := e.Retrieve(context.Background(), Query{AccountID: "acct-a", Embedding: []float32{1, 0, 0}})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %d, want 2 above threshold", len(hits))
	}
	if hits[0].Message.PlatformMsgID != 1 || hits[1].Message.PlatformMsgID != 2 {
		t.Errorf("order = [%d %d], want [1 2]", hits[0].Message.PlatformMsgID, hits[1].Message.PlatformMsgID)
	}
	if hits[0].Score <= hits[1].Score {
		t.Errorf("scores not descending: %v then %v", hits[0].Score, hits[1].Score)
	}
}

func TestVectorRecencyBreaksSimilarityTies(t *testing.T) {
	db := testDB(t)
	seedChat(t, db, 1, store.ChatGroup, "acct-a")
	now := time.Now()

	vec := []float32{1, 0, 0}
	seedMessage(t, db, &store.Message{
		PlatformMsgID: 1, ChatID: 1, Content: "old",
		Embedding: vec, EmbeddingDim: 3, PlatformTS: now.Add(-20 * 24 * time.Hour).UnixMilli(),
	})
	seedMessage(t, db, &store.Message{
		PlatformMsgID: 2, ChatID: 1, Content: "new",
		Embedding: vec, EmbeddingDim: 3, PlatformTS: now.UnixMilli(),
	})

	e := NewEngine(db, nil)
	e.now = func() time.Time { return now }
	hits, err := e.Retrieve(context.Background(), Query{AccountID: "acct-a", Embedding: vec})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(hits) != 2 || hits[0].Message.PlatformMsgID != 2 {
		t.Fatalf("hits = %+v, want the newer message first", hits)
	}
}

func TestVectorDecayGoesNegativeBeyondWindow(t *testing.T) {
	db := testDB(t)
	seedChat(t, db, 1, store.ChatGroup, "acct-a")
	now := time.Now()

	vec := []float32{1, 0, 0}
	seedMessage(t, db, &store.Message{
		PlatformMsgID: 1, ChatID: 1, Content: "ancient",
		Embedding: vec, EmbeddingDim: 3, PlatformTS: now.Add(-60 * 24 * time.Hour).UnixMilli(),
	})

	e := NewEngine(db, nil)
	e.now = func() time.Time { return now }
	hits, err := e.Retrieve(context.Background(), Query{AccountID: "acct-a", Embedding: vec})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("hits = %d, want 1: old messages stay retrievable", len(hits))
	}
	// sim 1.0 at 60 days: 1.2*1 + 0.2*(1 - 2) = 1.0.
	if got := hits[0].Score; got > 1.01 || got < 0.99 {
		t.Errorf("score = %v, want ~1.0 (negative recency term not clamped)", got)
	}
}

func TestDialogOwnershipACL(t *testing.T) {
	db := testDB(t)
	seedChat(t, db, 1, store.ChatDialog, "acct-a", "acct-b")
	seedChat(t, db, 2, store.ChatGroup, "acct-a", "acct-b")
	seedMessage(t, db, &store.Message{
		PlatformMsgID: 1, ChatID: 1, OwnerAccountID: "acct-a", Content: "private note",
		Tokens: []string{"private", "note"}, PlatformTS: 1000,
	})
	seedMessage(t, db, &store.Message{
		PlatformMsgID: 2, ChatID: 2, Content: "shared note",
		Tokens: []string{"shared", "note"}, PlatformTS: 2000,
	})
	e := NewEngine(db, nil)
	ctx := context.Background()

	hits, err := e.Retrieve(ctx, Query{AccountID: "acct-a", Text: "note"})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(hits) != 2 {
		t.Errorf("owner sees %d hits, want 2", len(hits))
	}

	// acct-b is a member of both chats but does not own the dialog row.
	hits, err = e.Retrieve(ctx, Query{AccountID: "acct-b", Text: "note"})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(hits) != 1 || hits[0].Message.ChatID != 2 {
		t.Errorf("non-owner hits = %+v, want only the group message", hits)
	}
}

func TestVectorSearchRequiresMembership(t *testing.T) {
	db := testDB(t)
	seedChat(t, db, 1, store.ChatGroup, "acct-a")
	seedMessage(t, db, &store.Message{
		PlatformMsgID: 1, ChatID: 1, Content: "members only",
		Embedding: []float32{1, 0, 0}, EmbeddingDim: 3, PlatformTS: 1000,
	})
	e := NewEngine(db, nil)

	hits, err := e.Retrieve(context.Background(), Query{AccountID: "acct-z", Embedding: []float32{1, 0, 0}})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("non-member vector hits = %d, want 0", len(hits))
	}
}

func TestCheckAccess(t *testing.T) {
	db := testDB(t)
	seedChat(t, db, 1, store.ChatGroup, "acct-a")
	e := NewEngine(db, nil)

	if err := e.CheckAccess("acct-a", 1); err != nil {
		t.Errorf("member denied: %v", err)
	}
	if err := e.CheckAccess("acct-z", 1); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("non-member error = %v, want ErrUnauthorized", err)
	}
}
