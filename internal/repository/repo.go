package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

func NewRepo(db *sql.DB) *Repo { return &Repo{db: db, now: time.Now} }

// CacheTouch records an access to hash. With created set it inserts or
// resizes the entry, keeping its original creation time.
func (r *Repo) CacheTouch(ctx context.Context, hash string, size int64, created bool) error {
	now := r.now().UnixNano()
	if created {
		_, err := r.db.ExecContext(ctx, `INSERT OR REPLACE INTO file_cache(hash,bytes,accessed_at,created_at) VALUES (?,?,?,COALESCE((SELECT created_at FROM file_cache WHERE hash=?),?))`,
			hash, size, now, hash, now)
		return err
	}
	_, err := r.db.ExecContext(ctx, `UPDATE file_cache SET accessed_at=? WHERE hash=?`, now, hash)
	return err
}

func (r *Repo) CacheRemove(ctx context.Context, hash string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM file_cache WHERE hash=?`, hash)
	return err
}

func (r *Repo) CacheGet(ctx context.Context, hash string) (*CacheEntry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT hash, bytes, accessed_at, created_at FROM file_cache WHERE hash=?`, hash)
	var e CacheEntry
	var accessed, created int64
	if err := row.Scan(&e.Hash, &e.Bytes, &accessed, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, err
	}
	e.AccessedAt = time.Unix(0, accessed)
	e.CreatedAt = time.Unix(0, created)
	return &e, nil
}

func (r *Repo) CacheTotalBytes(ctx context.Context) (int64, error) {
	row := r.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(bytes),0) FROM file_cache`)
	var v int64
	if err := row.Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

// CacheOldest returns the least recently accessed hash, or sql.ErrNoRows
// when the index is empty.
func (r *Repo) CacheOldest(ctx context.Context) (string, error) {
	row := r.db.QueryRowContext(ctx, `SELECT hash FROM file_cache ORDER BY accessed_at ASC, hash ASC LIMIT 1`)
	var hash string
	if err := row.Scan(&hash); err != nil {
		return "", err
	}
	return hash, nil
}
