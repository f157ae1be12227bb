package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pribylovaa/go-steam-client/internal/cache"
	"github.com/pribylovaa/go-steam-client/internal/config"
	"github.com/pribylovaa/go-steam-client/internal/confirm"
	"github.com/pribylovaa/go-steam-client/internal/models"
	"github.com/pribylovaa/go-steam-client/internal/pkg/log"
	"github.com/pribylovaa/go-steam-client/internal/service"
	"github.com/pribylovaa/go-steam-client/internal/storage"
	"github.com/pribylovaa/go-steam-client/internal/storage/file"
	"github.com/pribylovaa/go-steam-client/internal/storage/postgres"
	"github.com/pribylovaa/go-steam-client/internal/transport"
)

// Константы для определения окружения.
const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

const keepAlivePeriod = 10 * time.Minute

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	lg := setupLogger(cfg.Env)
	slog.SetDefault(lg)
	lg.Info("starting application", "env", cfg.Env)

	// Корневой контекст по сигналам.
	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()
	rootCtx = log.Into(rootCtx, lg)

	// Хранилище снапшотов: postgres при заданном DATABASE_URL,
	// иначе файлы в snapshot_dir.
	var (
		store storage.Storage
		err   error
	)
	if cfg.DB.DatabaseURL != "" {
		dbCtx, dbCancel := context.WithTimeout(rootCtx, 10*time.Second)
		store, err = postgres.New(dbCtx, cfg.DB.DatabaseURL)
		dbCancel()
	} else {
		store, err = file.New(cfg.Session.SnapshotDir)
	}
	if err != nil {
		lg.Error("storage_init_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer store.Close()
	lg.Info("storage_initialized")

	// Кэш снапшотов — опционален.
	var snapCache cache.SnapshotCache
	if cfg.Redis.RedisURL != "" {
		snapCache, err = cache.NewRedisCache(cfg.Redis.RedisURL, "")
		if err != nil {
			lg.Error("cache_init_failed", slog.String("err", err.Error()))
			os.Exit(1)
		}
		defer snapCache.Close()
		lg.Info("cache_initialized")
	}

	tr, err := transport.NewClient(
		transport.WithHTTPClient(&http.Client{Timeout: cfg.Timeouts.HTTP}),
	)
	if err != nil {
		lg.Error("transport_init_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}

	manager, err := service.New(service.Config{
		Identity: models.Identity{
			SteamID:        cfg.Account.SteamID,
			AccountName:    cfg.Account.AccountName,
			SharedSecret:   cfg.Account.SharedSecret,
			IdentitySecret: cfg.Account.IdentitySecret,
		},
		Password: cfg.Account.Password,
	}, tr, nil)
	if err != nil {
		lg.Error("manager_init_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}

	if err := establishSession(rootCtx, manager, store, snapCache, cfg); err != nil {
		lg.Error("session_establish_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
	lg.Info("session_established", slog.String("phase", manager.Phase().String()))

	reportPendingConfirmations(rootCtx, tr, cfg)

	persistSession(rootCtx, manager, store, snapCache, cfg)

	// Фоновое поддержание сессии до сигнала завершения.
	keepAlive(rootCtx, manager, store, snapCache, cfg)

	// Снапшот актуального состояния перед выходом; сессию на сервере
	// не гасим — она переживает перезапуск процесса.
	persistCtx, persistCancel := context.WithTimeout(context.Background(), 10*time.Second)
	persistSession(log.Into(persistCtx, lg), manager, store, snapCache, cfg)
	persistCancel()

	lg.Info("application_stopped")
}

// establishSession восстанавливает сессию из кэша или хранилища,
// а при их отсутствии выполняет полный вход.
func establishSession(ctx context.Context, m *service.Manager, store storage.Storage, snapCache cache.SnapshotCache, cfg *config.Config) error {
	lg := log.From(ctx)

	if snapCache != nil {
		snap, ok, err := snapCache.Get(ctx, cfg.Account.SteamID)
		if err != nil {
			lg.Warn("cache_get_failed", slog.String("err", err.Error()))
		} else if ok {
			if err := m.Restore(ctx, snap); err == nil {
				lg.Info("session_restored_from_cache")
				return nil
			}
			lg.Warn("cached_snapshot_rejected")
		}
	}

	err := m.Resume(ctx, store)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		lg.Warn("resume_failed", slog.String("err", err.Error()))
	}

	return m.Login(ctx)
}

// reportPendingConfirmations логирует ожидающие мобильные подтверждения
// аккаунта. Без identity-секрета шаг пропускается.
func reportPendingConfirmations(ctx context.Context, tr transport.Transport, cfg *config.Config) {
	lg := log.From(ctx)

	if cfg.Account.IdentitySecret == "" {
		return
	}

	signer, err := confirm.NewSigner(models.Identity{
		SteamID:        cfg.Account.SteamID,
		AccountName:    cfg.Account.AccountName,
		SharedSecret:   cfg.Account.SharedSecret,
		IdentitySecret: cfg.Account.IdentitySecret,
	}, tr, service.DefaultEndpoints().Community, nil)
	if err != nil {
		lg.Warn("confirmation_signer_init_failed", slog.String("err", err.Error()))
		return
	}

	confs, err := signer.ListPending(ctx)
	if err != nil {
		lg.Warn("confirmations_list_failed", slog.String("err", err.Error()))
		return
	}

	lg.Info("pending_confirmations", slog.Int("count", len(confs)))
	for _, c := range confs {
		lg.Info("pending_confirmation",
			slog.Int64("id", c.ID),
			slog.Int("type", int(c.Type)),
			slog.String("headline", c.Headline),
		)
	}
}

func persistSession(ctx context.Context, m *service.Manager, store storage.Storage, snapCache cache.SnapshotCache, cfg *config.Config) {
	lg := log.From(ctx)

	if err := m.Persist(ctx, store); err != nil {
		lg.Error("session_persist_failed", slog.String("err", err.Error()))
	}

	if snapCache != nil {
		if err := snapCache.Set(ctx, cfg.Account.SteamID, m.ExportSession(), cfg.Session.CacheTTL); err != nil {
			lg.Warn("cache_set_failed", slog.String("err", err.Error()))
		}
	}
}

// keepAlive периодически проверяет живость сессии и чинит её:
// мёртвая сессия сперва обновляется по refresh-токену, при истёкшем
// refresh-токене выполняется полный вход.
func keepAlive(ctx context.Context, m *service.Manager, store storage.Storage, snapCache cache.SnapshotCache, cfg *config.Config) {
	lg := log.From(ctx)

	t := time.NewTicker(keepAlivePeriod)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			alive, err := m.IsAlive(ctx)
			if err != nil {
				lg.Warn("keepalive_check_failed", slog.String("err", err.Error()))
				continue
			}
			if alive {
				continue
			}

			lg.Info("session_dead_refreshing")
			err = m.Refresh(ctx)
			if errors.Is(err, service.ErrReauthenticationRequired) {
				err = m.Login(ctx)
			}
			if err != nil {
				lg.Error("session_repair_failed", slog.String("err", err.Error()))
				continue
			}

			persistSession(ctx, m, store, snapCache, cfg)
		}
	}
}

// setupLogger настраивает slog по окружению.
func setupLogger(env string) *slog.Logger {
	var lg *slog.Logger

	switch env {
	case envLocal:
		lg = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		lg = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		lg = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		lg = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}

	return lg
}
