// Package settings manages the mutable per-account processing options.
package settings

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/matheus3301/chatvault/internal/store"
)

// Settings is the per-account configuration controlling enrichment.
// Avatar resolution is disabled by default: avatars are fetched
// on demand by clients rather than during ingestion.
type Settings struct {
	AccountID         string   `validate:"required"`
	DisabledResolvers []string `validate:"dive,oneof=media user tokens embedding avatar"`
	EmbeddingDim      int      `validate:"gte=0,lte=4096"`
}

// Default returns the default settings for an account.
func Default(accountID string) Settings {
	return Settings{
		AccountID:         accountID,
		DisabledResolvers: []string{"avatar"},
		EmbeddingDim:      1536,
	}
}

// Service loads, validates, and persists account settings.
type Service struct {
	db        *store.DB
	accountID string
	validate  *validator.Validate

	mu      sync.RWMutex
	current Settings
	loaded  bool
}

// NewService creates a settings service for one account.
func NewService(db *store.DB, accountID string) *Service {
	return &Service{
		db:        db,
		accountID: accountID,
		validate:  validator.New(),
	}
}

// Get returns the current settings, reading the store on first use and
// falling back to defaults when nothing is persisted.
func (s *Service) Get() Settings {
	s.mu.RLock()
	if s.loaded {
		defer s.mu.RUnlock()
		return s.current
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.current
	}
	s.current = Default(s.accountID)
	if s.db != nil {
		if row, err := s.db.GetSettings(s.accountID); err == nil && row != nil {
			s.current.DisabledResolvers = row.DisabledResolvers
			s.current.EmbeddingDim = row.EmbeddingDim
		}
	}
	s.loaded = true
	return s.current
}

// Update validates and persists a new settings payload. A malformed
// payload is rejected synchronously and nothing is committed.
func (s *Service) Update(payload Settings) error {
	payload.AccountID = s.accountID
	if err := s.validate.Struct(payload); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	if s.db != nil {
		if err := s.db.SaveSettings(&store.SettingsRow{
			AccountID:         payload.AccountID,
			DisabledResolvers: payload.DisabledResolvers,
			EmbeddingDim:      payload.EmbeddingDim,
		}); err != nil {
			return fmt.Errorf("save settings: %w", err)
		}
	}

	s.mu.Lock()
	s.current = payload
	s.loaded = true
	s.mu.Unlock()
	return nil
}

// Disabled returns the disabled-resolver set.
func (s *Service) Disabled() map[string]bool {
	cur := s.Get()
	out := make(map[string]bool, len(cur.DisabledResolvers))
	for _, name := range cur.DisabledResolvers {
		out[name] = true
	}
	return out
}

// EmbeddingDim returns the account's configured embedding dimension.
func (s *Service) EmbeddingDim() int {
	return s.Get().EmbeddingDim
}
