package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/pribylovaa/go-steam-client/internal/models"
	"github.com/pribylovaa/go-steam-client/internal/pkg/log"
	"github.com/pribylovaa/go-steam-client/internal/pkg/redact"
	"github.com/pribylovaa/go-steam-client/internal/transport"
)

// IsAlive проверяет живость сессии реальным запросом к домену
// сообщества: сессия жива, если платформа отдаёт страницу с именем
// аккаунта. Локальный срок действия токенов тут не участвует —
// единственный достоверный источник истины о живости это сервер.
func (m *Manager) IsAlive(ctx context.Context) (bool, error) {
	const op = "service.lifecycle.IsAlive"

	m.mu.Lock()
	defer m.mu.Unlock()

	alive, err := m.isAlive(ctx)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return alive, nil
}

func (m *Manager) isAlive(ctx context.Context) (bool, error) {
	resp, err := m.doJSON(ctx, http.MethodGet, m.cfg.Endpoints.Community+"/", nil, nil)
	if err != nil {
		return false, err
	}

	alive := bodyContains(resp.Body, m.cfg.Identity.AccountName)
	if alive {
		m.state.MarkAlive(m.clock.Now())
	}

	return alive, nil
}

// Restore восстанавливает сессию из снапшота: импортирует cookies
// и токены, затем проверяет живость на сервере. Если сессия мертва,
// прозрачно выполняет повторный вход по сохранённому паролю; без
// пароля возвращает ErrSessionExpired, а при истёкшем refresh-токене —
// ErrReauthenticationRequired.
func (m *Manager) Restore(ctx context.Context, snap *models.Snapshot) error {
	const op = "service.lifecycle.Restore"

	m.mu.Lock()

	if m.phase == PhaseLoggedOut {
		m.mu.Unlock()

		return fmt.Errorf("%s: %w", op, ErrLoggedOut)
	}

	lg := log.From(ctx).With(
		slog.String("op", op),
		slog.String("account", redact.AccountName(m.cfg.Identity.AccountName)),
	)

	if err := m.state.Import(snap); err != nil {
		m.mu.Unlock()
		lg.Warn("snapshot_rejected", slog.String("err", err.Error()))

		return fmt.Errorf("%s: %w", op, err)
	}

	m.state.ApplyToTransport(m.tr)
	m.tokens.Set(m.state.Tokens())

	alive, err := m.isAlive(ctx)
	if err != nil {
		m.mu.Unlock()

		return fmt.Errorf("%s: %w", op, err)
	}
	if alive {
		m.phase = PhaseAuthenticated
		m.mu.Unlock()
		lg.Info("session_restored")

		return nil
	}

	refreshExpired := m.tokens.IsRefreshExpired()
	m.phase = PhaseUnauthenticated
	m.mu.Unlock()

	if m.cfg.Password == "" {
		if refreshExpired {
			lg.Warn("restore_requires_reauthentication")

			return fmt.Errorf("%s: %w", op, ErrReauthenticationRequired)
		}
		lg.Warn("restored_session_dead")

		return fmt.Errorf("%s: %w", op, ErrSessionExpired)
	}

	lg.Info("restored_session_dead_relogin")

	return m.Login(ctx)
}

// Logout завершает сессию. Удалённая инвалидация выполняется
// best-effort: сетевая ошибка логируется, но локальное состояние
// сбрасывается безусловно. Состояние LoggedOut терминально.
func (m *Manager) Logout(ctx context.Context) error {
	const op = "service.lifecycle.Logout"

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase == PhaseLoggedOut {
		return fmt.Errorf("%s: %w", op, ErrLoggedOut)
	}

	lg := log.From(ctx).With(slog.String("op", op))

	sessionID := cookieValue(m.tr, hostOf(m.cfg.Endpoints.Community), "sessionid")
	_, err := m.tr.Do(ctx, &transport.Request{
		Method: http.MethodPost,
		URL:    m.cfg.Endpoints.Community + "/login/logout/",
		Form:   url.Values{"sessionid": {sessionID}},
	})
	if err != nil {
		lg.Warn("remote_logout_failed", slog.String("err", err.Error()))
	}

	m.tokens.Clear()
	m.state.Clear()
	m.phase = PhaseLoggedOut
	lg.Info("logged_out")

	return nil
}
