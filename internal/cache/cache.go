package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sonroyaalmerol/kumastream/internal/config"
	"github.com/sonroyaalmerol/kumastream/internal/repository"
	"go.uber.org/zap"
)

type FileCache struct {
	cfg  *config.Config
	repo *repository.Repo
	log  *zap.Logger
	mu   sync.Mutex
}

func NewFileCache(cfg *config.Config, repo *repository.Repo, log *zap.Logger) *FileCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &FileCache{cfg: cfg, repo: repo, log: log.Named("cache")}
}

func (c *FileCache) HashKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Key identifies the rendition of uri at bitrateKbps.
func (c *FileCache) Key(uri string, bitrateKbps int) string {
	return c.HashKey(uri + "|" + strconv.Itoa(bitrateKbps))
}

func (c *FileCache) PathFor(hash string) string {
	return filepath.Join(c.cfg.CacheDir, hash+".mp3")
}

func (c *FileCache) tmpDir() string {
	return filepath.Join(c.cfg.CacheDir, "tmp")
}

// TempPathFor returns a fresh temp path for hash. Every call differs, so
// concurrent transcodes of one key never write the same file.
func (c *FileCache) TempPathFor(hash string) string {
	return filepath.Join(c.tmpDir(), hash+"."+uuid.NewString()+".part")
}

// Get returns the promoted artifact for hash and bumps its access time. A
// file that has gone missing is dropped from the index.
func (c *FileCache) Get(ctx context.Context, hash string) (string, bool) {
	p := c.PathFor(hash)
	if info, err := os.Stat(p); err == nil && info.Size() > 0 {
		if err := c.repo.CacheTouch(ctx, hash, 0, false); err != nil {
			c.log.Debug("cache touch failed", zap.String("hash", hash), zap.Error(err))
		}
		return p, true
	}
	_ = c.repo.CacheRemove(ctx, hash)
	return "", false
}

// Track indexes a freshly promoted artifact and evicts least recently used
// entries until the cache fits its limit. Empty artifacts are deleted.
func (c *FileCache) Track(ctx context.Context, hash string, size int64) error {
	if size <= 0 {
		_ = os.Remove(c.PathFor(hash))
		_ = c.repo.CacheRemove(ctx, hash)
		c.log.Debug("dropped empty artifact", zap.String("hash", hash))
		return nil
	}
	if err := c.repo.CacheTouch(ctx, hash, size, true); err != nil {
		return fmt.Errorf("index artifact: %w", err)
	}
	return c.evictIfNeeded(ctx)
}

func (c *FileCache) evictIfNeeded(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	total, err := c.repo.CacheTotalBytes(ctx)
	if err != nil {
		return err
	}
	for total > c.cfg.CacheLimitBytes {
		oldest, err := c.repo.CacheOldest(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		p := c.PathFor(oldest)
		_ = os.Remove(p)
		_ = c.repo.CacheRemove(ctx, oldest)
		c.log.Info("evicted", zap.String("hash", oldest), zap.Int64("totalBytes", total))
		total, err = c.repo.CacheTotalBytes(ctx)
		if err != nil {
			return err
		}
	}
	return nil
}

// Sweep deletes temp files left behind by a previous run and returns how
// many it removed. Call it before serving.
func (c *FileCache) Sweep() (int, error) {
	entries, err := os.ReadDir(c.tmpDir())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".part") {
			continue
		}
		if err := os.Remove(filepath.Join(c.tmpDir(), e.Name())); err != nil {
			c.log.Warn("sweep failed", zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		c.log.Info("swept stale temp files", zap.Int("count", removed))
	}
	return removed, nil
}
