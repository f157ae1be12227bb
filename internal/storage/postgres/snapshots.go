package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pribylovaa/go-steam-client/internal/models"
	"github.com/pribylovaa/go-steam-client/internal/storage"
)

// SaveSnapshot сохраняет снапшот аккаунта (upsert по steam_id).
func (s *Storage) SaveSnapshot(ctx context.Context, steamID int64, snap *models.Snapshot) error {
	const op = "storage.postgres.SaveSnapshot"

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	query := `INSERT INTO session_snapshots (steam_id, snapshot, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (steam_id)
		DO UPDATE SET snapshot = EXCLUDED.snapshot, updated_at = EXCLUDED.updated_at`

	if _, err := s.db.Exec(ctx, query, steamID, data, time.Now().UTC()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// SnapshotBySteamID находит снапшот аккаунта.
func (s *Storage) SnapshotBySteamID(ctx context.Context, steamID int64) (*models.Snapshot, error) {
	const op = "storage.postgres.SnapshotBySteamID"

	query := `SELECT snapshot FROM session_snapshots WHERE steam_id = $1`

	var data []byte
	if err := s.db.QueryRow(ctx, query, steamID).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &snap, nil
}

// DeleteSnapshot удаляет снапшот аккаунта.
func (s *Storage) DeleteSnapshot(ctx context.Context, steamID int64) error {
	const op = "storage.postgres.DeleteSnapshot"

	tag, err := s.db.Exec(ctx, `DELETE FROM session_snapshots WHERE steam_id = $1`, steamID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}
