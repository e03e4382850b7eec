package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const cacheColumns = "content_hash, perceptual_hash, asset_type, storage_locator, width, height, created_at"

// UpsertCacheEntry records that artwork bytes are materialized on disk.
// Writing the same hash twice is a no-op.
func (s *Store) UpsertCacheEntry(ctx context.Context, entry *CacheEntry) error {
	if entry.ContentHash == "" || entry.StorageLocator == "" {
		return fmt.Errorf("upsert cache entry: content hash and storage locator required")
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO cache_entries
             (content_hash, perceptual_hash, asset_type, storage_locator, width, height, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT (content_hash) DO NOTHING`,
		entry.ContentHash,
		nullableString(entry.PerceptualHash),
		string(entry.AssetType),
		entry.StorageLocator,
		entry.Width,
		entry.Height,
		now,
	)
	if err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}

// GetCacheEntry fetches the entry for a content hash. Returns nil when the
// bytes are not cached.
func (s *Store) GetCacheEntry(ctx context.Context, contentHash string) (*CacheEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+cacheColumns+` FROM cache_entries WHERE content_hash = ?`, contentHash)
	entry, err := scanCacheEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cache entry: %w", err)
	}
	return entry, nil
}

// ListCacheEntries returns every cache entry, oldest first.
func (s *Store) ListCacheEntries(ctx context.Context) ([]*CacheEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+cacheColumns+` FROM cache_entries ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list cache entries: %w", err)
	}
	defer rows.Close()

	var entries []*CacheEntry
	for rows.Next() {
		entry, err := scanCacheEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// DeleteCacheEntry removes the bookkeeping row for a content hash. Callers
// must have verified no selected candidate still references the hash.
func (s *Store) DeleteCacheEntry(ctx context.Context, contentHash string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE content_hash = ?`, contentHash); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

func scanCacheEntry(scanner interface{ Scan(dest ...any) error }) (*CacheEntry, error) {
	var (
		contentHash    string
		perceptualHash sql.NullString
		assetType      string
		locator        string
		width          int
		height         int
		createdRaw     sql.NullString
	)

	if err := scanner.Scan(
		&contentHash,
		&perceptualHash,
		&assetType,
		&locator,
		&width,
		&height,
		&createdRaw,
	); err != nil {
		return nil, err
	}

	entry := &CacheEntry{
		ContentHash:    contentHash,
		PerceptualHash: perceptualHash.String,
		AssetType:      AssetType(assetType),
		StorageLocator: locator,
		Width:          width,
		Height:         height,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		entry.CreatedAt = created
	}
	return entry, nil
}
