package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pribylovaa/go-steam-client/internal/models"
	"github.com/pribylovaa/go-steam-client/internal/pkg/log"
)

type refreshTokenResponse struct {
	Response struct {
		AccessToken string `json:"access_token"`
	} `json:"response"`
}

// Refresh обменивает refresh-токен на новый access-токен.
//
// Конкурентные вызовы схлопываются в один сетевой обмен: результат
// единственного запроса раздаётся всем ожидающим. Результат успешного
// обмена фиксируется в состоянии даже при отмене контекста вызывающего:
// обмен выполняется вне его контекста отмены.
func (m *Manager) Refresh(ctx context.Context) error {
	const op = "service.refresh.Refresh"

	_, err, _ := m.refreshGroup.Do("refresh", func() (any, error) {
		return nil, m.refresh(context.WithoutCancel(ctx))
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (m *Manager) refresh(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase == PhaseLoggedOut {
		return ErrLoggedOut
	}

	pair, ok := m.tokens.Get()
	if !ok || pair.Refresh == "" {
		return ErrReauthenticationRequired
	}
	if m.tokens.IsRefreshExpired() {
		m.phase = PhaseUnauthenticated

		return ErrReauthenticationRequired
	}

	lg := log.From(ctx).With(slog.String("op", "service.refresh.Refresh"))

	prev := m.phase
	m.phase = PhaseRefreshing

	access, err := m.exchangeRefreshToken(ctx, pair.Refresh)
	if err != nil {
		m.phase = prev
		lg.Error("refresh_failed", slog.String("err", err.Error()))

		return err
	}

	// Refresh-токен платформа при обмене не ротирует: обновляется только
	// access-токен и steamLoginSecure-cookie доменов.
	next := models.TokenPair{Access: access, Refresh: pair.Refresh}
	m.tokens.Set(next)
	m.state.SetTokens(next)
	m.updateLoginSecureCookies(access)
	m.state.CaptureFromTransport(m.tr)

	m.phase = PhaseAuthenticated
	lg.Info("refresh_succeeded")

	return nil
}

func (m *Manager) exchangeRefreshToken(ctx context.Context, refreshToken string) (string, error) {
	form := url.Values{
		"refresh_token": {refreshToken},
		"steamid":       {strconv.FormatInt(m.cfg.Identity.SteamID, 10)},
	}

	resp, err := m.doJSON(ctx, http.MethodPost, m.cfg.Endpoints.API+"/IAuthService/GenerateAccessTokenForApp/v1/", nil, form)
	if err != nil {
		return "", err
	}

	var out refreshTokenResponse
	if err := resp.JSON(&out); err != nil {
		return "", fmt.Errorf("%w: decode refresh response: %v", ErrTransport, err)
	}
	if out.Response.AccessToken == "" {
		return "", ErrReauthenticationRequired
	}

	return out.Response.AccessToken, nil
}

// updateLoginSecureCookies переписывает steamLoginSecure-cookie всех
// доменов платформы под новый access-токен, чтобы cookie-авторизация
// не отставала от токенной.
func (m *Manager) updateLoginSecureCookies(access string) {
	value := fmt.Sprintf("%d%%7C%%7C%s", m.cfg.Identity.SteamID, access)
	for _, domain := range m.cfg.Endpoints.Domains() {
		m.tr.SetCookies(domain, []models.Cookie{{
			Name:  "steamLoginSecure",
			Value: value,
			Path:  "/",
		}})
	}
}
