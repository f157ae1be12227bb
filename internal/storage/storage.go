//go:generate mockgen -source=storage.go -destination=../../mocks/mock_storage.go -package=mocks
package storage

import (
	"context"
	"errors"

	"github.com/pribylovaa/go-steam-client/internal/models"
)

var (
	// ErrNotFound — снапшот для аккаунта не найден.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists — нарушение уникальности по steam id.
	ErrAlreadyExists = errors.New("already exists")
)

// SnapshotStorage — персистентное хранилище снапшотов сессий,
// ключ — steam id аккаунта.
type SnapshotStorage interface {
	// SaveSnapshot сохраняет (или замещает) снапшот аккаунта.
	SaveSnapshot(ctx context.Context, steamID int64, snap *models.Snapshot) error
	// SnapshotBySteamID возвращает снапшот аккаунта.
	SnapshotBySteamID(ctx context.Context, steamID int64) (*models.Snapshot, error)
	// DeleteSnapshot удаляет снапшот аккаунта.
	DeleteSnapshot(ctx context.Context, steamID int64) error
}

// Storage задает контракт работы с хранилищем.
type Storage interface {
	SnapshotStorage
	Close()
}
