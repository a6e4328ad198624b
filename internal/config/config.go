package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the daemon configuration loaded from chatvault.toml.
type Config struct {
	AccountID string `toml:"account_id"`
	DBPath    string `toml:"db_path"`
	LogPath   string `toml:"log_path"`

	BatchSize      int `toml:"batch_size"`
	RateIntervalMS int `toml:"rate_interval_ms"`

	MediaPoolSize     int `toml:"media_pool_size"`
	AvatarPoolSize    int `toml:"avatar_pool_size"`
	TakeoutQueueDepth int `toml:"takeout_queue_depth"`

	AvatarCacheSize   int   `toml:"avatar_cache_size"`
	AvatarCacheTTLSec int   `toml:"avatar_cache_ttl_sec"`
	AvatarByteBudget  int64 `toml:"avatar_byte_budget"`

	EmbeddingDim   int    `toml:"embedding_dim"`
	EmbeddingModel string `toml:"embedding_model"`
	OpenAIKey      string `toml:"openai_key"`
	OpenAIBaseURL  string `toml:"openai_base_url"`
}

// Default returns the documented defaults.
func Default() *Config {
	return &Config{
		DBPath:            "chatvault.db",
		LogPath:           "chatvault.log",
		BatchSize:         50,
		RateIntervalMS:    1000,
		MediaPoolSize:     32,
		AvatarPoolSize:    4,
		TakeoutQueueDepth: 4,
		AvatarCacheSize:   512,
		AvatarCacheTTLSec: 600,
		AvatarByteBudget:  50 << 20,
		EmbeddingDim:      1536,
	}
}

// RateInterval returns the pagination pacing interval.
func (c *Config) RateInterval() time.Duration {
	return time.Duration(c.RateIntervalMS) * time.Millisecond
}

// AvatarCacheTTL returns the avatar cache entry TTL.
func (c *Config) AvatarCacheTTL() time.Duration {
	return time.Duration(c.AvatarCacheTTLSec) * time.Second
}

// Load reads config from the given path, layering the file over the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
