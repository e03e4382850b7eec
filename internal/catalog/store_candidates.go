package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const candidateColumns = "id, entity_id, asset_type, provider, source_url, language, votes, rating, analyzed, width, height, duration, content_hash, perceptual_hash, score, is_selected, is_rejected, selected_by, created_at, updated_at"

// UpsertCandidates merges freshly fetched provider results into the catalog.
// New (entity, asset type, source URL) rows are inserted; rows seen before keep
// their analysis and selection state and only refresh provider metadata.
// Returns the number of newly inserted rows.
func (s *Store) UpsertCandidates(ctx context.Context, candidates []*CandidateAsset) (int, error) {
	if len(candidates) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin candidates tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	inserted := 0
	for _, candidate := range candidates {
		if candidate.EntityID == "" || candidate.SourceURL == "" {
			return 0, fmt.Errorf("upsert candidates: entity id and source url required")
		}
		if _, ok := ParseAssetType(string(candidate.AssetType)); !ok {
			return 0, fmt.Errorf("upsert candidates: unknown asset type %q", candidate.AssetType)
		}

		var createdAt string
		err := tx.QueryRowContext(
			ctx,
			`INSERT INTO candidate_assets
                 (entity_id, asset_type, provider, source_url, language, votes, rating, duration, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
             ON CONFLICT (entity_id, asset_type, source_url) DO UPDATE SET
                 language = excluded.language,
                 votes = excluded.votes,
                 rating = excluded.rating,
                 updated_at = excluded.updated_at
             RETURNING created_at`,
			candidate.EntityID,
			string(candidate.AssetType),
			candidate.Provider,
			candidate.SourceURL,
			nullableString(candidate.Language),
			candidate.Votes,
			candidate.Rating,
			candidate.Duration,
			now,
			now,
		).Scan(&createdAt)
		if err != nil {
			return 0, fmt.Errorf("upsert candidate %s: %w", candidate.SourceURL, err)
		}
		if createdAt == now {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit candidates: %w", err)
	}
	return inserted, nil
}

// CandidatesFor returns all candidates for one (entity, asset type) pair in
// insertion order. Insertion order is the tie-break the selection engine
// relies on, so the ordering here is part of the contract.
func (s *Store) CandidatesFor(ctx context.Context, entityID string, assetType AssetType) ([]*CandidateAsset, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+candidateColumns+` FROM candidate_assets
         WHERE entity_id = ? AND asset_type = ?
         ORDER BY id ASC`,
		entityID,
		string(assetType),
	)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	var candidates []*CandidateAsset
	for rows.Next() {
		candidate, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, candidate)
	}
	return candidates, rows.Err()
}

// UnanalyzedCandidates returns candidates awaiting analysis for an entity.
func (s *Store) UnanalyzedCandidates(ctx context.Context, entityID string) ([]*CandidateAsset, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+candidateColumns+` FROM candidate_assets
         WHERE entity_id = ? AND analyzed = 0 AND is_rejected = 0
         ORDER BY id ASC`,
		entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("list unanalyzed candidates: %w", err)
	}
	defer rows.Close()

	var candidates []*CandidateAsset
	for rows.Next() {
		candidate, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, candidate)
	}
	return candidates, rows.Err()
}

// SaveAnalysis records the measured facts for a candidate and marks it
// analyzed.
func (s *Store) SaveAnalysis(ctx context.Context, id int64, width, height int, contentHash, perceptualHash string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE candidate_assets
         SET analyzed = 1, width = ?, height = ?, content_hash = ?, perceptual_hash = ?, updated_at = ?
         WHERE id = ?`,
		width,
		height,
		nullableString(contentHash),
		nullableString(perceptualHash),
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("save analysis: %w", err)
	}
	return requireAffected(res, "save analysis", id)
}

// MarkRejected flags a candidate the analyzer could not process. Rejected rows
// stay in the catalog but never reach scoring or selection.
func (s *Store) MarkRejected(ctx context.Context, id int64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE candidate_assets SET is_rejected = 1, is_selected = 0, updated_at = ? WHERE id = ?`,
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("mark rejected: %w", err)
	}
	return requireAffected(res, "mark rejected", id)
}

// SaveScore records the computed score for a candidate.
func (s *Store) SaveScore(ctx context.Context, id int64, score float64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE candidate_assets SET score = ?, updated_at = ? WHERE id = ?`,
		score,
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("save score: %w", err)
	}
	return requireAffected(res, "save score", id)
}

// ApplySelection replaces the selected set for one (entity, asset type) pair
// in a single transaction: everything currently auto-selected is cleared, then
// the given IDs are marked selected with the stated provenance. User-selected
// rows survive the clear so a lock release cannot wipe manual picks.
func (s *Store) ApplySelection(ctx context.Context, entityID string, assetType AssetType, selectedIDs []int64, selectedBy string) error {
	if selectedBy != SelectedByAuto && selectedBy != SelectedByUser {
		return fmt.Errorf("apply selection: unknown provenance %q", selectedBy)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin selection tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = tx.ExecContext(
		ctx,
		`UPDATE candidate_assets
         SET is_selected = 0, selected_by = NULL, updated_at = ?
         WHERE entity_id = ? AND asset_type = ? AND is_selected = 1 AND selected_by = ?`,
		now,
		entityID,
		string(assetType),
		SelectedByAuto,
	)
	if err != nil {
		return fmt.Errorf("clear selection: %w", err)
	}

	if len(selectedIDs) > 0 {
		placeholders := makePlaceholders(len(selectedIDs))
		args := make([]any, 0, len(selectedIDs)+4)
		args = append(args, selectedBy, now, entityID, string(assetType))
		for _, id := range selectedIDs {
			args = append(args, id)
		}
		query := `UPDATE candidate_assets
            SET is_selected = 1, selected_by = ?, updated_at = ?
            WHERE entity_id = ? AND asset_type = ? AND id IN (` + placeholders + `)`
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("mark selection: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit selection: %w", err)
	}
	return nil
}

// SelectedCandidates returns the currently selected candidates for one
// (entity, asset type) pair, best score first.
func (s *Store) SelectedCandidates(ctx context.Context, entityID string, assetType AssetType) ([]*CandidateAsset, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+candidateColumns+` FROM candidate_assets
         WHERE entity_id = ? AND asset_type = ? AND is_selected = 1
         ORDER BY score DESC, id ASC`,
		entityID,
		string(assetType),
	)
	if err != nil {
		return nil, fmt.Errorf("list selected candidates: %w", err)
	}
	defer rows.Close()

	var candidates []*CandidateAsset
	for rows.Next() {
		candidate, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, candidate)
	}
	return candidates, rows.Err()
}

// CountSelectedByHash reports how many selected candidates, across every
// entity, still reference a content hash. Cache eviction must see zero before
// deleting bytes because entities can share identical artwork.
func (s *Store) CountSelectedByHash(ctx context.Context, contentHash string) (int, error) {
	var count int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM candidate_assets WHERE content_hash = ? AND is_selected = 1`,
		contentHash,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count selected by hash: %w", err)
	}
	return count, nil
}

func requireAffected(res sql.Result, operation string, id int64) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", operation, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: candidate %d not found", operation, id)
	}
	return nil
}

func scanCandidate(scanner interface{ Scan(dest ...any) error }) (*CandidateAsset, error) {
	var (
		id             int64
		entityID       string
		assetType      string
		provider       string
		sourceURL      string
		language       sql.NullString
		votes          int
		rating         float64
		analyzed       int
		width          int
		height         int
		duration       int
		contentHash    sql.NullString
		perceptualHash sql.NullString
		score          float64
		isSelected     int
		isRejected     int
		selectedBy     sql.NullString
		createdRaw     sql.NullString
		updatedRaw     sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&entityID,
		&assetType,
		&provider,
		&sourceURL,
		&language,
		&votes,
		&rating,
		&analyzed,
		&width,
		&height,
		&duration,
		&contentHash,
		&perceptualHash,
		&score,
		&isSelected,
		&isRejected,
		&selectedBy,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	candidate := &CandidateAsset{
		ID:             id,
		EntityID:       entityID,
		AssetType:      AssetType(assetType),
		Provider:       provider,
		SourceURL:      sourceURL,
		Language:       language.String,
		Votes:          votes,
		Rating:         rating,
		Analyzed:       analyzed != 0,
		Width:          width,
		Height:         height,
		Duration:       duration,
		ContentHash:    contentHash.String,
		PerceptualHash: perceptualHash.String,
		Score:          score,
		IsSelected:     isSelected != 0,
		IsRejected:     isRejected != 0,
		SelectedBy:     selectedBy.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		candidate.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		candidate.UpdatedAt = updated
	}
	return candidate, nil
}
