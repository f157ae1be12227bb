package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Тесты покрывают:
// - успешный полный вход: фаза, пара токенов, cookies доменов;
// - отображение кодов платформы на таксономию ошибок (5, 84, 88);
// - повторный вход поверх живой сессии;
// - вход после Logout.
func TestLogin_OK(t *testing.T) {
	p := newFakePlatform(t)
	m := newTestManager(t, p, testPassword)

	require.Equal(t, PhaseUnauthenticated, m.Phase())

	require.NoError(t, m.Login(context.Background()))

	require.Equal(t, PhaseAuthenticated, m.Phase())
	require.Equal(t, p.accessToken, m.AccessToken())
	require.Equal(t, "sess-abc123", m.SessionID())

	pair, ok := m.Tokens()
	require.True(t, ok)
	require.Equal(t, p.refreshToken, pair.Refresh)

	alive, err := m.IsAlive(context.Background())
	require.NoError(t, err)
	require.True(t, alive)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	p := newFakePlatform(t)
	p.beginEresult = 5
	m := newTestManager(t, p, "wrong-password")

	err := m.Login(context.Background())
	require.ErrorIs(t, err, ErrInvalidCredentials)
	require.Equal(t, PhaseUnauthenticated, m.Phase())
	require.Empty(t, m.AccessToken())
}

func TestLogin_RateLimited(t *testing.T) {
	p := newFakePlatform(t)
	p.beginEresult = 84
	m := newTestManager(t, p, testPassword)

	err := m.Login(context.Background())
	require.ErrorIs(t, err, ErrRateLimited)
	require.Equal(t, PhaseUnauthenticated, m.Phase())
}

func TestLogin_GuardCodeRejected(t *testing.T) {
	p := newFakePlatform(t)
	p.guardEresult = 88
	m := newTestManager(t, p, testPassword)

	err := m.Login(context.Background())
	require.ErrorIs(t, err, ErrGuardCodeRejected)
	require.Equal(t, PhaseUnauthenticated, m.Phase())
}

func TestLogin_RepeatedOverwritesSession(t *testing.T) {
	p := newFakePlatform(t)
	m := newTestManager(t, p, testPassword)

	require.NoError(t, m.Login(context.Background()))
	first := m.AccessToken()

	p.accessToken = signedToken(t, time.Now().Add(3*time.Hour))
	require.NoError(t, m.Login(context.Background()))

	require.Equal(t, PhaseAuthenticated, m.Phase())
	require.NotEqual(t, first, m.AccessToken())
	require.Equal(t, p.accessToken, m.AccessToken())
}

func TestLogin_AfterLogout(t *testing.T) {
	p := newFakePlatform(t)
	m := newTestManager(t, p, testPassword)

	require.NoError(t, m.Login(context.Background()))
	require.NoError(t, m.Logout(context.Background()))

	err := m.Login(context.Background())
	require.ErrorIs(t, err, ErrLoggedOut)
}
