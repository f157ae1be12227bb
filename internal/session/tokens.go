// session хранит состояние авторизованной сессии одного аккаунта:
// пару access/refresh-токенов с проверками истечения (TokenStore)
// и cookies по доменам платформы со снапшотами (State).
//
// Оба типа безопасны для конкурентного чтения; мутации сериализует
// владелец — AuthSessionManager из пакета service.
package session

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pribylovaa/go-steam-client/internal/guard"
	"github.com/pribylovaa/go-steam-client/internal/models"
)

// DefaultExpirySkew — отрицательный запас к embedded-сроку токена:
// токен считается истёкшим чуть раньше фактического срока, чтобы не
// проигрывать гонку запросам, находящимся в полёте.
const DefaultExpirySkew = 30 * time.Second

// TokenStore — текущая пара токенов с проверками свежести.
//
// Срок читается из незаверенного JWT-клейма exp: подпись эмитента
// не проверяется (клиент платформы доверяет эмитенту), некорректный
// токен трактуется как истёкший, а не как фатальная ошибка.
type TokenStore struct {
	mu    sync.RWMutex
	pair  models.TokenPair
	clock guard.Clock
	skew  time.Duration
}

// NewTokenStore создаёт пустое хранилище токенов.
func NewTokenStore(clock guard.Clock) *TokenStore {
	if clock == nil {
		clock = guard.SystemClock()
	}

	return &TokenStore{clock: clock, skew: DefaultExpirySkew}
}

// Set заменяет пару токенов.
func (s *TokenStore) Set(pair models.TokenPair) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pair = pair
}

// Get возвращает пару и признак её присутствия.
func (s *TokenStore) Get() (models.TokenPair, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.pair, !s.pair.IsZero()
}

// Clear сбрасывает пару (logout).
func (s *TokenStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pair = models.TokenPair{}
}

// IsAccessExpired — истёк ли access-токен (true и для отсутствующего,
// и для нечитаемого токена).
func (s *TokenStore) IsAccessExpired() bool {
	s.mu.RLock()
	token := s.pair.Access
	s.mu.RUnlock()

	return s.expired(token)
}

// IsRefreshExpired — истёк ли refresh-токен.
func (s *TokenStore) IsRefreshExpired() bool {
	s.mu.RLock()
	token := s.pair.Refresh
	s.mu.RUnlock()

	return s.expired(token)
}

func (s *TokenStore) expired(token string) bool {
	if token == "" {
		return true
	}

	exp, err := tokenExpiry(token)
	if err != nil {
		// Fail-safe: нечитаемый токен эквивалентен истёкшему.
		return true
	}

	return !s.clock.Now().Add(s.skew).Before(exp)
}

// tokenExpiry декодирует exp-клейм токена без проверки подписи.
func tokenExpiry(token string) (time.Time, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, err
	}

	if claims.ExpiresAt == nil {
		return time.Time{}, jwt.ErrTokenInvalidClaims
	}

	return claims.ExpiresAt.Time, nil
}
