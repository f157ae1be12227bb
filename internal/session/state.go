package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/pribylovaa/go-steam-client/internal/models"
	"github.com/pribylovaa/go-steam-client/internal/transport"
)

// ErrMalformedSnapshot — снапшот сессии структурно некорректен.
// Импорт такого снапшота не меняет состояние (всё-или-ничего).
var ErrMalformedSnapshot = errors.New("malformed session snapshot")

// State — durable-представление авторизованной сессии: cookies по
// известным доменам платформы, пара токенов и отметка последней
// успешной проверки живости.
//
// Время жизни State принадлежит AuthSessionManager; никакой другой
// компонент не мутирует его напрямую.
type State struct {
	domains []string

	cookies   map[string][]models.Cookie
	tokens    models.TokenPair
	lastAlive time.Time
}

// NewState создаёт пустое состояние для перечисленных доменов.
func NewState(domains []string) *State {
	return &State{
		domains: domains,
		cookies: make(map[string][]models.Cookie),
	}
}

// SetTokens запоминает пару токенов в составе состояния.
func (s *State) SetTokens(pair models.TokenPair) { s.tokens = pair }

// Tokens возвращает запомненную пару.
func (s *State) Tokens() models.TokenPair { return s.tokens }

// MarkAlive фиксирует момент последней подтверждённой живости сессии.
func (s *State) MarkAlive(at time.Time) { s.lastAlive = at }

// LastAlive — момент последней подтверждённой живости (zero — не было).
func (s *State) LastAlive() time.Time { return s.lastAlive }

// Clear сбрасывает состояние до пустого.
func (s *State) Clear() {
	s.cookies = make(map[string][]models.Cookie)
	s.tokens = models.TokenPair{}
	s.lastAlive = time.Time{}
}

// CaptureFromTransport забирает cookies всех известных доменов из транспорта.
func (s *State) CaptureFromTransport(t transport.Transport) {
	for _, domain := range s.domains {
		if cookies := t.Cookies(domain); len(cookies) > 0 {
			cp := make([]models.Cookie, len(cookies))
			copy(cp, cookies)
			s.cookies[domain] = cp
		}
	}
}

// ApplyToTransport записывает сохранённые cookies обратно в транспорт.
func (s *State) ApplyToTransport(t transport.Transport) {
	for domain, cookies := range s.cookies {
		if len(cookies) == 0 {
			continue
		}
		cp := make([]models.Cookie, len(cookies))
		copy(cp, cookies)
		t.SetCookies(domain, cp)
	}
}

// Export выгружает состояние в снапшот. Внутренние типы наружу не
// протекают: снапшот — плоские key/value-структуры.
func (s *State) Export() *models.Snapshot {
	snap := &models.Snapshot{
		Cookies: make(map[string][]models.Cookie, len(s.cookies)),
		Tokens: &models.SnapshotTokens{
			Access:  s.tokens.Access,
			Refresh: s.tokens.Refresh,
		},
	}

	for domain, cookies := range s.cookies {
		cp := make([]models.Cookie, len(cookies))
		copy(cp, cookies)
		snap.Cookies[domain] = cp
	}

	return snap
}

// Import атомарно замещает состояние содержимым снапшота.
// Любое структурное нарушение отклоняется целиком: прежнее состояние
// остаётся нетронутым, возвращается ErrMalformedSnapshot.
func (s *State) Import(snap *models.Snapshot) error {
	const op = "session.State.Import"

	if err := validateSnapshot(snap); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	cookies := make(map[string][]models.Cookie, len(snap.Cookies))
	for domain, list := range snap.Cookies {
		cp := make([]models.Cookie, len(list))
		copy(cp, list)
		cookies[domain] = cp
	}

	s.cookies = cookies
	s.tokens = models.TokenPair{
		Access:  snap.Tokens.Access,
		Refresh: snap.Tokens.Refresh,
	}
	s.lastAlive = time.Time{}

	return nil
}

// validateSnapshot проверяет структуру снапшота до каких-либо мутаций.
func validateSnapshot(snap *models.Snapshot) error {
	if snap == nil {
		return ErrMalformedSnapshot
	}

	// Отсутствие ключа "tokens" отличимо от пустых токенов и означает
	// повреждение снапшота.
	if snap.Tokens == nil {
		return ErrMalformedSnapshot
	}

	// Пара токенов — всё-или-ничего.
	if (snap.Tokens.Access == "") != (snap.Tokens.Refresh == "") {
		return ErrMalformedSnapshot
	}

	for domain, list := range snap.Cookies {
		if domain == "" {
			return ErrMalformedSnapshot
		}
		for _, ck := range list {
			if ck.Name == "" {
				return ErrMalformedSnapshot
			}
		}
	}

	return nil
}
