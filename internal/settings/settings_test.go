package settings

import (
	"testing"
)

func TestDefaultsDisableAvatar(t *testing.T) {
	s := NewService(nil, "acct")

	disabled := s.Disabled()
	if !disabled["avatar"] {
		t.Error("avatar resolver not disabled by default")
	}
	if disabled["media"] || disabled["tokens"] {
		t.Error("unexpected resolvers disabled by default")
	}
	if s.EmbeddingDim() != 1536 {
		t.Errorf("default dim = %d, want 1536", s.EmbeddingDim())
	}
}

func TestUpdateValidates(t *testing.T) {
	s := NewService(nil, "acct")

	err := s.Update(Settings{DisabledResolvers: []string{"bogus"}})
	if err == nil {
		t.Fatal("invalid resolver name accepted")
	}
	// No partial state committed.
	if s.Disabled()["bogus"] {
		t.Error("invalid payload was committed")
	}

	err = s.Update(Settings{EmbeddingDim: 99999})
	if err == nil {
		t.Fatal("out-of-range dimension accepted")
	}

	if err := s.Update(Settings{DisabledResolvers: []string{"media", "embedding"}, EmbeddingDim: 768}); err != nil {
		t.Fatal(err)
	}
	disabled := s.Disabled()
	if !disabled["media"] || !disabled["embedding"] {
		t.Errorf("disabled = %v, want media+embedding", disabled)
	}
	if s.EmbeddingDim() != 768 {
		t.Errorf("dim = %d, want 768", s.EmbeddingDim())
	}
}
