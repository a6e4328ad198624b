package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0600)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "chatvault.toml")

	cfg := Default()
	cfg.AccountID = "acct-1"
	cfg.BatchSize = 100
	cfg.RateIntervalMS = 500

	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.AccountID != "acct-1" || loaded.BatchSize != 100 {
		t.Errorf("loaded = %+v, want saved values", loaded)
	}
	if loaded.RateInterval().Milliseconds() != 500 {
		t.Errorf("rate interval = %v, want 500ms", loaded.RateInterval())
	}
}

func TestLoadLayersOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatvault.toml")
	if err := Save(path, &Config{AccountID: "acct-2"}); err != nil {
		t.Fatal(err)
	}

	// Zero fields in the file override defaults; Load only fills fields
	// present in the file, so write a minimal file by hand instead.
	minimal := filepath.Join(t.TempDir(), "minimal.toml")
	if err := writeFile(minimal, "account_id = \"acct-3\"\n"); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(minimal)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.AccountID != "acct-3" {
		t.Errorf("account = %q, want acct-3", cfg.AccountID)
	}
	if cfg.BatchSize != 50 || cfg.MediaPoolSize != 32 || cfg.AvatarPoolSize != 4 {
		t.Errorf("defaults not layered: %+v", cfg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
