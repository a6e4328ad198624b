// Package retrieval implements lexical and vector search over the
// archived messages, with per-account access control.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/viterin/vek/vek32"
	"go.uber.org/zap"

	"github.com/matheus3301/chatvault/internal/store"
	"github.com/matheus3301/chatvault/internal/token"
)

// ErrUnauthorized is returned when the requesting account may not read
// the target chat.
var ErrUnauthorized = errors.New("account is not a member of this chat")

const (
	// similarityThreshold gates vector matches.
	similarityThreshold = 0.5
	// similarityWeight and recencyWeight combine into the final score.
	similarityWeight = 1.2
	recencyWeight    = 0.2
	// recencyWindow is the age at which the recency term reaches zero;
	// older messages go negative, which keeps ordering meaningful
	// without clamping.
	recencyWindow = 30 * 24 * time.Hour

	defaultLimit = 20
)

// Query describes one retrieval request. Text drives lexical search,
// Embedding drives vector search; both may be set and their results
// concatenate. ChatIDs, when present, overrides ChatID.
type Query struct {
	AccountID string
	Text      string
	Embedding []float32
	ChatID    int64
	ChatIDs   []int64
	SenderID  int64
	After     int64 // unix milliseconds, inclusive
	Before    int64
	Limit     int
}

// Hit is one scored result.
type Hit struct {
	Message   store.Message
	ChatTitle string
	ChatType  string
	Score     float64
}

// Engine runs retrieval queries against the store.
type Engine struct {
	db     *store.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewEngine creates a retrieval engine.
func NewEngine(db *store.DB, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{db: db, logger: logger, now: time.Now}
}

// CheckAccess verifies the account may read the given chat. Meant for
// callers taking the single-chat path before querying.
func (e *Engine) CheckAccess(accountID string, chatID int64) error {
	ok, err := e.db.IsChatMember(chatID, accountID)
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if !ok {
		return ErrUnauthorized
	}
	return nil
}

// Retrieve runs the query's lexical and vector modes and concatenates
// their hits, lexical first.
func (e *Engine) Retrieve(ctx context.Context, q Query) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Hit
	if q.Text != "" {
		hits, err := e.lexical(q)
		if err != nil {
			return nil, fmt.Errorf("lexical search: %w", err)
		}
		out = append(out, hits...)
	}
	if len(q.Embedding) > 0 {
		hits, err := e.vector(q)
		if err != nil {
			return nil, fmt.Errorf("vector search: %w", err)
		}
		out = append(out, hits...)
	}
	return out, nil
}

// lexical matches messages whose token list contains every query
// token. An empty tokenization short-circuits to no results.
func (e *Engine) lexical(q Query) ([]Hit, error) {
	tokens := token.Tokenize(q.Text)
	if len(tokens) == 0 {
		return nil, nil
	}

	// Broad scopes (all chats, allowlist) require a membership link;
	// the single-chat path trusts the caller's CheckAccess, with the
	// ownership predicate still applied inside the query.
	requireMembership := q.ChatID == 0 || len(q.ChatIDs) > 0

	rows, err := e.db.LexicalSearch(store.LexicalFilter{
		AccountID:         q.AccountID,
		ChatID:            q.ChatID,
		ChatIDs:           q.ChatIDs,
		SenderID:          q.SenderID,
		After:             q.After,
		Before:            q.Before,
		Tokens:            tokens,
		Limit:             q.Limit,
		RequireMembership: requireMembership,
	})
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(rows))
	for _, r := range rows {
		hits = append(hits, Hit{Message: r.Message, ChatTitle: r.ChatTitle, ChatType: r.ChatType})
	}
	return hits, nil
}

// vector scores ACL-visible candidates by cosine similarity blended
// with recency, keeping those above the similarity threshold.
func (e *Engine) vector(q Query) ([]Hit, error) {
	rows, err := e.db.VectorCandidates(store.VectorFilter{
		AccountID: q.AccountID,
		ChatID:    q.ChatID,
		Dim:       len(q.Embedding),
	})
	if err != nil {
		return nil, err
	}

	qNorm := norm(q.Embedding)
	if qNorm == 0 {
		return nil, nil
	}

	now := e.now()
	var hits []Hit
	for _, r := range rows {
		mNorm := norm(r.Message.Embedding)
		if mNorm == 0 {
			continue
		}
		sim := float64(vek32.Dot(q.Embedding, r.Message.Embedding)) / (qNorm * mNorm)
		if sim <= similarityThreshold {
			continue
		}
		age := now.Sub(time.UnixMilli(r.Message.PlatformTS))
		recency := 1 - age.Seconds()/recencyWindow.Seconds()
		score := similarityWeight*sim + recencyWeight*recency
		hits = append(hits, Hit{Message: r.Message, ChatTitle: r.ChatTitle, ChatType: r.ChatType, Score: score})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func norm(v []float32) float64 {
	if len(v) == 0 {
		return 0
	}
	return math.Sqrt(float64(vek32.Dot(v, v)))
}
