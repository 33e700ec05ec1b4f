package repository

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	r := NewRepo(db)
	clock := time.Unix(1_700_000_000, 0)
	r.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return r
}

func TestOpen_MigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "again.db")
	for i := 0; i < 2; i++ {
		db, err := Open(path)
		if err != nil {
			t.Fatalf("Open #%d: %v", i+1, err)
		}
		_ = db.Close()
	}
}

func TestCacheTouch(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	if err := r.CacheTouch(ctx, "a", 100, true); err != nil {
		t.Fatalf("CacheTouch: %v", err)
	}
	first, err := r.CacheGet(ctx, "a")
	if err != nil {
		t.Fatalf("CacheGet: %v", err)
	}

	if err := r.CacheTouch(ctx, "a", 250, true); err != nil {
		t.Fatalf("CacheTouch resize: %v", err)
	}
	if err := r.CacheTouch(ctx, "a", 0, false); err != nil {
		t.Fatalf("CacheTouch access: %v", err)
	}
	got, err := r.CacheGet(ctx, "a")
	if err != nil {
		t.Fatalf("CacheGet: %v", err)
	}
	if got.Bytes != 250 {
		t.Errorf("Bytes = %d, want 250", got.Bytes)
	}
	if !got.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt changed: %v -> %v", first.CreatedAt, got.CreatedAt)
	}
	if !got.AccessedAt.After(first.AccessedAt) {
		t.Errorf("AccessedAt not advanced: %v", got.AccessedAt)
	}
}

func TestCacheOldestAndTotal(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	if _, err := r.CacheOldest(ctx); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("CacheOldest on empty index: %v", err)
	}
	for _, h := range []string{"a", "b", "c"} {
		if err := r.CacheTouch(ctx, h, 10, true); err != nil {
			t.Fatal(err)
		}
	}
	_ = r.CacheTouch(ctx, "a", 0, false)

	oldest, err := r.CacheOldest(ctx)
	if err != nil || oldest != "b" {
		t.Errorf("CacheOldest = %q, %v; want b", oldest, err)
	}
	total, err := r.CacheTotalBytes(ctx)
	if err != nil || total != 30 {
		t.Errorf("CacheTotalBytes = %d, %v; want 30", total, err)
	}

	if err := r.CacheRemove(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.CacheGet(ctx, "b"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("removed entry still present: %v", err)
	}
	if oldest, _ := r.CacheOldest(ctx); oldest != "c" {
		t.Errorf("CacheOldest after remove = %q, want c", oldest)
	}
}
