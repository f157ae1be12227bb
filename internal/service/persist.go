package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pribylovaa/go-steam-client/internal/pkg/log"
	"github.com/pribylovaa/go-steam-client/internal/storage"
)

// Persist сохраняет текущий снапшот сессии в хранилище под steam_id
// аккаунта.
func (m *Manager) Persist(ctx context.Context, store storage.SnapshotStorage) error {
	const op = "service.persist.Persist"

	snap := m.ExportSession()
	if err := store.SaveSnapshot(ctx, m.cfg.Identity.SteamID, snap); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Debug("session_persisted",
		slog.String("op", op),
		slog.Int64("steam_id", m.cfg.Identity.SteamID),
	)

	return nil
}

// Resume загружает снапшот аккаунта из хранилища и восстанавливает
// из него сессию через Restore. Отсутствие снапшота всплывает как
// storage.ErrNotFound — вызывающий решает, выполнять ли полный вход.
func (m *Manager) Resume(ctx context.Context, store storage.SnapshotStorage) error {
	const op = "service.persist.Resume"

	snap, err := store.SnapshotBySteamID(ctx, m.cfg.Identity.SteamID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := m.Restore(ctx, snap); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
