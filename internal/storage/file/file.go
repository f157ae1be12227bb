// file — файловое хранилище снапшотов сессий: по одному JSON-документу
// на аккаунт в заданной директории. Подходит для одного-двух аккаунтов
// и локальных запусков; для парка ботов есть postgres-адаптер.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pribylovaa/go-steam-client/internal/models"
	"github.com/pribylovaa/go-steam-client/internal/storage"
)

type Storage struct {
	dir string
}

// New создает файловое хранилище в директории dir (создаётся при необходимости).
func New(dir string) (*Storage, error) {
	const op = "storage.file.New"

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{dir: dir}, nil
}

// Close — no-op, оставлен для симметрии с интерфейсом Storage.
func (s *Storage) Close() {}

// SaveSnapshot пишет снапшот атомарно: во временный файл с последующим rename.
func (s *Storage) SaveSnapshot(_ context.Context, steamID int64, snap *models.Snapshot) error {
	const op = "storage.file.SaveSnapshot"

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	path := s.path(steamID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// SnapshotBySteamID читает снапшот аккаунта.
func (s *Storage) SnapshotBySteamID(_ context.Context, steamID int64) (*models.Snapshot, error) {
	const op = "storage.file.SnapshotBySteamID"

	data, err := os.ReadFile(s.path(steamID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
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
func (s *Storage) DeleteSnapshot(_ context.Context, steamID int64) error {
	const op = "storage.file.DeleteSnapshot"

	if err := os.Remove(s.path(steamID)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) path(steamID int64) string {
	return filepath.Join(s.dir, strconv.FormatInt(steamID, 10)+".json")
}

// Проверка на соответствие интерфейсу Storage.
var _ storage.Storage = (*Storage)(nil)
