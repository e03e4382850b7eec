package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const entityColumns = "id, type, title, year, library_path, poster_locked, backdrop_locked, logo_locked, created_at, updated_at"

// UpsertEntity creates or refreshes the entity owning libraryPath. The library
// path is the natural key: rescans of the same directory update title and year
// in place and keep the entity ID and lock flags stable.
func (s *Store) UpsertEntity(ctx context.Context, entityType EntityType, title string, year int, libraryPath string) (*Entity, error) {
	if _, ok := ParseEntityType(string(entityType)); !ok {
		return nil, fmt.Errorf("upsert entity: unknown type %q", entityType)
	}
	if libraryPath == "" {
		return nil, fmt.Errorf("upsert entity: library path required")
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO entities (id, type, title, year, library_path, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT (library_path) DO UPDATE SET
             type = excluded.type,
             title = excluded.title,
             year = excluded.year,
             updated_at = excluded.updated_at`,
		uuid.NewString(),
		string(entityType),
		title,
		year,
		libraryPath,
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert entity: %w", err)
	}

	return s.GetEntityByPath(ctx, libraryPath)
}

// GetEntity fetches an entity by ID. Returns nil when absent.
func (s *Store) GetEntity(ctx context.Context, id string) (*Entity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE id = ?`, id)
	entity, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entity: %w", err)
	}
	return entity, nil
}

// GetEntityByPath fetches an entity by its library path. Returns nil when absent.
func (s *Store) GetEntityByPath(ctx context.Context, libraryPath string) (*Entity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE library_path = ?`, libraryPath)
	entity, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entity by path: %w", err)
	}
	return entity, nil
}

// ListEntities returns every entity ordered by title.
func (s *Store) ListEntities(ctx context.Context) ([]*Entity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+entityColumns+` FROM entities ORDER BY title ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	var entities []*Entity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	return entities, rows.Err()
}

// SetLock freezes or releases automatic selection for one asset type on an
// entity. Only user actions reach this method.
func (s *Store) SetLock(ctx context.Context, entityID string, assetType AssetType, locked bool) error {
	var column string
	switch assetType {
	case AssetPoster:
		column = "poster_locked"
	case AssetBackdrop:
		column = "backdrop_locked"
	case AssetLogo:
		column = "logo_locked"
	default:
		return fmt.Errorf("set lock: unknown asset type %q", assetType)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE entities SET `+column+` = ?, updated_at = ? WHERE id = ?`,
		boolToInt(locked),
		now,
		entityID,
	)
	if err != nil {
		return fmt.Errorf("set lock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set lock rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("set lock: entity %s not found", entityID)
	}
	return nil
}

// DeleteEntity removes an entity and, through the foreign key cascade, its
// candidate catalog. This is the only path that deletes candidate rows.
func (s *Store) DeleteEntity(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete entity: %w", err)
	}
	return nil
}

func scanEntity(scanner interface{ Scan(dest ...any) error }) (*Entity, error) {
	var (
		id             string
		typeStr        string
		title          string
		year           int
		libraryPath    string
		posterLocked   int
		backdropLocked int
		logoLocked     int
		createdRaw     sql.NullString
		updatedRaw     sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&typeStr,
		&title,
		&year,
		&libraryPath,
		&posterLocked,
		&backdropLocked,
		&logoLocked,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	entity := &Entity{
		ID:             id,
		Type:           EntityType(typeStr),
		Title:          title,
		Year:           year,
		LibraryPath:    libraryPath,
		PosterLocked:   posterLocked != 0,
		BackdropLocked: backdropLocked != 0,
		LogoLocked:     logoLocked != 0,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		entity.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		entity.UpdatedAt = updated
	}
	return entity, nil
}
