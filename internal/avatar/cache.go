// Package avatar implements the bounded, TTL-cached, negative-cached,
// dedup-protected fetch layer for profile images of users and chats.
//
// Avatar fetching is best-effort enrichment: every network or decode
// failure is logged and swallowed, never surfaced to the caller.
package avatar

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/matheus3301/chatvault/internal/network"
	"github.com/matheus3301/chatvault/internal/pool"
	"github.com/matheus3301/chatvault/internal/store"
)

// Result is an available avatar.
type Result struct {
	Kind   network.EntityKind
	ID     int64
	FileID string
	Mime   string
	Bytes  []byte
}

// Config bounds the cache.
type Config struct {
	CacheSize       int
	TTL             time.Duration
	ByteBudget      int64
	DownloadTimeout time.Duration
	RetryBackoff    time.Duration
}

// DefaultConfig returns the production bounds.
func DefaultConfig() Config {
	return Config{
		CacheSize:       512,
		TTL:             10 * time.Minute,
		ByteBudget:      50 << 20,
		DownloadTimeout: 5 * time.Second,
		RetryBackoff:    500 * time.Millisecond,
	}
}

type entryState int

const (
	// Known to have no avatar (negative cache).
	stateNoAvatar entryState = iota + 1
	// File id known, bytes not yet downloaded.
	statePrimed
	// Bytes present.
	stateBytes
)

type entry struct {
	state  entryState
	fileID string
	mime   string
	bytes  []byte
}

type fileBytes struct {
	mime string
	data []byte
}

type call struct {
	done chan struct{}
	res  *Result
}

// Cache is the avatar cache subsystem for one account context. Not
// safe to share across unrelated accounts.
type Cache struct {
	cfg    Config
	client network.Client
	db     *store.DB
	exec   *pool.Executor
	logger *zap.Logger

	// One tri-state cache keyed "kind:id"; a secondary index from file
	// id to bytes dedups downloads across entities sharing a file; a
	// short-TTL entity cache skips repeated chat entity lookups.
	entries  *expirable.LRU[string, *entry]
	byFile   *expirable.LRU[string, fileBytes]
	entities *expirable.LRU[int64, *network.Entity]

	mu      sync.Mutex
	pending map[string]*call

	budget atomic.Int64
}

// NewCache creates the subsystem. db may be nil (no persistence);
// exec is the shared avatar download pool.
func NewCache(client network.Client, db *store.DB, exec *pool.Executor, cfg Config, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultConfig().CacheSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	if cfg.ByteBudget <= 0 {
		cfg.ByteBudget = DefaultConfig().ByteBudget
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = DefaultConfig().DownloadTimeout
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultConfig().RetryBackoff
	}

	c := &Cache{
		cfg:     cfg,
		client:  client,
		db:      db,
		exec:    exec,
		logger:  logger,
		pending: make(map[string]*call),
	}
	c.entries = expirable.NewLRU[string, *entry](cfg.CacheSize, func(_ string, e *entry) {
		if e.state == stateBytes {
			c.budget.Add(-int64(len(e.bytes)))
		}
	}, cfg.TTL)
	c.byFile = expirable.NewLRU[string, fileBytes](cfg.CacheSize, nil, cfg.TTL)
	c.entities = expirable.NewLRU[int64, *network.Entity](cfg.CacheSize, nil, time.Minute)
	return c
}

func cacheKey(kind network.EntityKind, id int64) string {
	return string(kind) + ":" + strconv.FormatInt(id, 10)
}

// Fetch returns the avatar for an entity, or nil when unavailable.
// Concurrent fetches for the same entity collapse into one download;
// late joiners wait for and share the in-flight result. expectedFileID,
// when known from the caller's own store, enables a zero-network fast
// path on a byte-level cache hit.
func (c *Cache) Fetch(ctx context.Context, kind network.EntityKind, id int64, expectedFileID string, override *network.Entity) *Result {
	key := cacheKey(kind, id)

	c.mu.Lock()
	if p, ok := c.pending[key]; ok {
		c.mu.Unlock()
		select {
		case <-p.done:
			return p.res
		case <-ctx.Done():
			return nil
		}
	}
	p := &call{done: make(chan struct{})}
	c.pending[key] = p
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, key)
		c.mu.Unlock()
		close(p.done)
	}()

	p.res = c.fetch(ctx, kind, id, expectedFileID, override)
	return p.res
}

// FetchChats resolves avatars for a list of chats, skipping the
// unavailable ones.
func (c *Cache) FetchChats(ctx context.Context, chatIDs []int64) []Result {
	var out []Result
	for _, id := range chatIDs {
		if r := c.Fetch(ctx, network.EntityChat, id, "", nil); r != nil {
			out = append(out, *r)
		}
	}
	return out
}

// Prime seeds a known file identifier without bytes so a later Fetch
// can skip the entity round-trip. A priming never downgrades an entry
// that already holds bytes.
func (c *Cache) Prime(kind network.EntityKind, id int64, fileID string) {
	if fileID == "" {
		return
	}
	key := cacheKey(kind, id)
	if e, ok := c.entries.Get(key); ok && e.state == stateBytes && e.fileID == fileID {
		return
	}
	c.replaceEntry(key, &entry{state: statePrimed, fileID: fileID})
}

func (c *Cache) fetch(ctx context.Context, kind network.EntityKind, id int64, expectedFileID string, override *network.Entity) *Result {
	key := cacheKey(kind, id)

	var primed string
	if e, ok := c.entries.Get(key); ok {
		switch e.state {
		case stateNoAvatar:
			return nil
		case stateBytes:
			if expectedFileID != "" && e.fileID == expectedFileID {
				return c.result(kind, id, e)
			}
		case statePrimed:
			primed = e.fileID
		}
	}

	ent := c.resolveEntity(ctx, kind, id, override, primed)
	if ent == nil {
		return nil
	}
	fileID := ent.AvatarFileID

	if e, ok := c.entries.Get(key); ok && e.state == stateBytes {
		// Cached bytes still current, or the entity no longer exposes a
		// file id at all: serve the cache.
		if e.fileID == fileID || fileID == "" {
			return c.result(kind, id, e)
		}
	}
	if fileID == "" {
		c.replaceEntry(key, &entry{state: stateNoAvatar})
		return nil
	}

	if fb, ok := c.byFile.Get(fileID); ok {
		e := &entry{state: stateBytes, fileID: fileID, mime: fb.mime, bytes: fb.data}
		c.storeEntry(key, e)
		return c.result(kind, id, e)
	}

	data, err := c.download(ctx, ent, fileID)
	if err != nil {
		c.logger.Debug("avatar download failed",
			zap.String("kind", string(kind)), zap.Int64("id", id), zap.Error(err))
		// A present file id that failed to download may succeed later;
		// it is not negatively cached.
		return nil
	}

	mime := sniffMime(data)
	e := &entry{state: stateBytes, fileID: fileID, mime: mime, bytes: data}
	c.storeEntry(key, e)
	c.byFile.Add(fileID, fileBytes{mime: mime, data: data})
	if c.db != nil {
		if err := c.db.UpsertBlob(store.BlobAvatar, &store.Blob{FileID: fileID, Mime: mime, Bytes: data}); err != nil {
			c.logger.Warn("avatar persist failed", zap.String("file_id", fileID), zap.Error(err))
		}
	}
	return c.result(kind, id, e)
}

func (c *Cache) resolveEntity(ctx context.Context, kind network.EntityKind, id int64, override *network.Entity, primedFileID string) *network.Entity {
	if override != nil {
		return override
	}
	if primedFileID != "" {
		return &network.Entity{ID: id, Kind: kind, AvatarFileID: primedFileID}
	}
	if kind == network.EntityChat {
		if ent, ok := c.entities.Get(id); ok {
			return ent
		}
	}
	ent, err := c.client.GetEntity(ctx, kind, id)
	if err != nil {
		c.logger.Debug("entity lookup failed",
			zap.String("kind", string(kind)), zap.Int64("id", id), zap.Error(err))
		return nil
	}
	if kind == network.EntityChat {
		c.entities.Add(id, ent)
	}
	return ent
}

func (c *Cache) download(ctx context.Context, ent *network.Entity, fileID string) ([]byte, error) {
	dctx, cancel := context.WithTimeout(ctx, c.cfg.DownloadTimeout)
	defer cancel()

	var data []byte
	err := c.exec.Do(dctx, func() error {
		b, err := c.client.DownloadProfilePhoto(dctx, ent, true)
		if err == nil && len(b) > 0 {
			data = b
			return nil
		}

		// Fallback to the generic media path, with one backoff retry.
		ref := network.MediaRef{FileID: fileID, Kind: "photo"}
		b, ferr := c.client.DownloadMedia(dctx, ref)
		if ferr == nil && len(b) > 0 {
			data = b
			return nil
		}
		select {
		case <-time.After(c.cfg.RetryBackoff):
		case <-dctx.Done():
			return dctx.Err()
		}
		b, ferr = c.client.DownloadMedia(dctx, ref)
		if ferr != nil {
			return ferr
		}
		if len(b) == 0 {
			return errors.New("empty media")
		}
		data = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// replaceEntry writes an entry, debiting the bytes of any entry it
// displaces. Add on an existing key does not run the evict callback,
// so the debit has to happen here or the budget counter drifts up.
func (c *Cache) replaceEntry(key string, e *entry) {
	if old, ok := c.entries.Peek(key); ok && old.state == stateBytes {
		c.budget.Add(-int64(len(old.bytes)))
	}
	c.entries.Add(key, e)
}

// storeEntry adds a byte-holding entry and applies the byte budget:
// crossing the ceiling clears every avatar-related cache at once. A
// write lost to the purge is simply a miss next time.
func (c *Cache) storeEntry(key string, e *entry) {
	c.replaceEntry(key, e)
	if c.budget.Add(int64(len(e.bytes))) > c.cfg.ByteBudget {
		c.logger.Info("avatar byte budget exceeded, clearing caches")
		c.entries.Purge()
		c.byFile.Purge()
		c.entities.Purge()
		c.budget.Store(0)
	}
}

func (c *Cache) result(kind network.EntityKind, id int64, e *entry) *Result {
	return &Result{Kind: kind, ID: id, FileID: e.fileID, Mime: e.mime, Bytes: e.bytes}
}
