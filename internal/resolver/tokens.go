package resolver

import (
	"context"

	"github.com/matheus3301/chatvault/internal/store"
	"github.com/matheus3301/chatvault/internal/token"
)

// TokensResolver attaches the lexical token list of each message's
// content. Stateless.
type TokensResolver struct{}

// NewTokensResolver creates the tokens resolver.
func NewTokensResolver() *TokensResolver { return &TokensResolver{} }

func (r *TokensResolver) Name() string { return NameTokens }

func (r *TokensResolver) Run(_ context.Context, b *Batch) (Result, error) {
	var out []*store.Message
	for _, m := range b.Messages {
		if m.Content == "" {
			continue
		}
		toks := token.Tokenize(m.Content)
		if len(toks) == 0 {
			continue
		}
		m.Tokens = toks
		out = append(out, m)
	}
	return Result{Batch: out}, nil
}
