// service содержит оркестрацию жизненного цикла авторизованной сессии:
// вход с guard-кодом, проверку живости, восстановление из снапшота,
// обновление access-токена и выход.
//
// Основные аспекты:
//   - Manager владеет TokenStore и SessionState одного аккаунта; никакой
//     другой компонент их не мутирует. Мутирующие переходы
//     (Authenticating/Refreshing) сериализуются мьютексом, конкурентные
//     триггеры refresh схлопываются в один сетевой обмен (singleflight).
//   - Политика таймаутов и ретраев бизнес-вызовов ядру не принадлежит:
//     сетевые ошибки всплывают как ErrTransport без внутренних повторов.
//     Единственное исключение — logout: сетевая ошибка удалённой
//     инвалидации не блокирует локальный сброс состояния.
package service

import (
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/pribylovaa/go-steam-client/internal/guard"
	"github.com/pribylovaa/go-steam-client/internal/models"
	"github.com/pribylovaa/go-steam-client/internal/session"
	"github.com/pribylovaa/go-steam-client/internal/transport"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrInvalidCredentials — логин/пароль отвергнуты платформой.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrGuardCodeRejected — одноразовый guard-код отвергнут
	// (рассинхронизация часов или неверный shared-секрет).
	ErrGuardCodeRejected = errors.New("guard code rejected")

	// ErrRateLimited — платформа троттлит запросы; всплывает отдельно от
	// ошибок учётных данных, чтобы вызывающий мог применить backoff,
	// а не считать ошибку фатальной. Ядро само никогда не ретраит.
	ErrRateLimited = errors.New("rate limited")

	// ErrSessionExpired — сервер больше не принимает сессию; требуется
	// повторный вход.
	ErrSessionExpired = errors.New("session expired")

	// ErrReauthenticationRequired — refresh-токен истёк, обновление
	// невозможно; требуется полный повторный вход.
	ErrReauthenticationRequired = errors.New("reauthentication required")

	// ErrMalformedSession — снапшот сессии структурно некорректен;
	// импорт отклонён целиком, прежнее состояние не тронуто.
	ErrMalformedSession = session.ErrMalformedSnapshot

	// ErrTransport — непрозрачная ошибка сетевого слоя, передана как есть.
	ErrTransport = errors.New("transport failure")

	// ErrLoggedOut — менеджер в терминальном состоянии LoggedOut;
	// для нового входа требуется новый экземпляр.
	ErrLoggedOut = errors.New("manager is logged out")
)

// Phase — фаза жизненного цикла менеджера.
type Phase int32

const (
	PhaseUnauthenticated Phase = iota
	PhaseAuthenticating
	PhaseAuthenticated
	PhaseRefreshing
	PhaseLoggedOut
)

func (p Phase) String() string {
	switch p {
	case PhaseUnauthenticated:
		return "unauthenticated"
	case PhaseAuthenticating:
		return "authenticating"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseRefreshing:
		return "refreshing"
	case PhaseLoggedOut:
		return "logged_out"
	default:
		return "unknown"
	}
}

// Endpoints — базовые URL доменов платформы. Выделены в структуру,
// чтобы тесты могли направить весь трафик в httptest-сервер.
type Endpoints struct {
	Community string
	Store     string
	Help      string
	Login     string
	API       string
}

// DefaultEndpoints — боевые адреса платформы.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Community: "https://steamcommunity.com",
		Store:     "https://store.steampowered.com",
		Help:      "https://help.steampowered.com",
		Login:     "https://login.steampowered.com",
		API:       "https://api.steampowered.com",
	}
}

// Domains возвращает уникальные хосты эндпоинтов — домены, cookies
// которых входят в снапшот сессии.
func (e Endpoints) Domains() []string {
	seen := make(map[string]struct{}, 5)
	var out []string

	for _, raw := range []string{e.Community, e.Store, e.Help, e.Login} {
		u, err := url.Parse(raw)
		if err != nil || u.Hostname() == "" {
			continue
		}
		host := u.Hostname()
		if _, ok := seen[host]; ok {
			continue
		}
		seen[host] = struct{}{}
		out = append(out, host)
	}

	return out
}

// Config — конфигурация менеджера одного аккаунта.
//
// Password опционален: без него Restore не сможет прозрачно перелогиниться
// и вернёт ErrSessionExpired/ErrReauthenticationRequired.
type Config struct {
	Identity  models.Identity
	Password  string
	Endpoints Endpoints
}

// Manager — владелец состояния авторизованной сессии одного аккаунта
// (AuthSessionManager). Создаётся в Unauthenticated, завершает жизнь
// в терминальном LoggedOut.
type Manager struct {
	cfg   Config
	tr    transport.Transport
	clock guard.Clock

	tokens *session.TokenStore
	state  *session.State

	mu    sync.RWMutex
	phase Phase

	refreshGroup singleflight.Group
}

// New создаёт менеджер в состоянии Unauthenticated.
func New(cfg Config, tr transport.Transport, clock guard.Clock) (*Manager, error) {
	const op = "service.New"

	if cfg.Identity.SteamID == 0 || cfg.Identity.AccountName == "" {
		return nil, fmt.Errorf("%s: identity steam_id and account_name are required", op)
	}
	if (cfg.Endpoints == Endpoints{}) {
		cfg.Endpoints = DefaultEndpoints()
	}
	if clock == nil {
		clock = guard.SystemClock()
	}

	return &Manager{
		cfg:    cfg,
		tr:     tr,
		clock:  clock,
		tokens: session.NewTokenStore(clock),
		state:  session.NewState(cfg.Endpoints.Domains()),
	}, nil
}

// Phase возвращает текущую фазу жизненного цикла.
func (m *Manager) Phase() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.phase
}

// Tokens возвращает текущую пару токенов (для бизнес-коллабораторов).
func (m *Manager) Tokens() (models.TokenPair, bool) {
	return m.tokens.Get()
}

// AccessToken возвращает текущий access-токен ("" — если пары нет).
func (m *Manager) AccessToken() string {
	pair, _ := m.tokens.Get()
	return pair.Access
}

// SessionID возвращает значение sessionid-cookie домена сообщества
// (пустая строка, если cookie ещё нет).
func (m *Manager) SessionID() string {
	return cookieValue(m.tr, hostOf(m.cfg.Endpoints.Community), "sessionid")
}

// ExportSession выгружает снапшот сессии: свежие cookies транспорта
// плюс текущая пара токенов.
func (m *Manager) ExportSession() *models.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.CaptureFromTransport(m.tr)
	pair, _ := m.tokens.Get()
	m.state.SetTokens(pair)

	return m.state.Export()
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	return u.Hostname()
}

func cookieValue(tr transport.Transport, domain, name string) string {
	for _, ck := range tr.Cookies(domain) {
		if ck.Name == name {
			return ck.Value
		}
	}

	return ""
}
