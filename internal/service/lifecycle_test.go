package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pribylovaa/go-steam-client/internal/models"
	"github.com/stretchr/testify/require"
)

// snapshotWith собирает снапшот с одной парой cookie и заданными токенами.
func snapshotWith(t *testing.T, p *fakePlatform, loginSecure, access, refresh string) *models.Snapshot {
	t.Helper()

	host := hostOf(p.srv.URL)
	require.NotEmpty(t, host)

	return &models.Snapshot{
		Cookies: map[string][]models.Cookie{host: {
			{Name: "steamLoginSecure", Value: loginSecure, Path: "/"},
			{Name: "sessionid", Value: "sess-restored", Path: "/"},
		}},
		Tokens: &models.SnapshotTokens{Access: access, Refresh: refresh},
	}
}

// Тесты покрывают:
// - восстановление живой сессии из снапшота;
// - мёртвую сессию: прозрачный перелогин по паролю, ErrSessionExpired
//   без пароля, ErrReauthenticationRequired при истёкшем refresh-токене;
// - отказ от структурно некорректного снапшота без порчи состояния;
// - живость как серверную истину;
// - цикл Export/Restore;
// - logout: сброс состояния при недоступной платформе.
func TestRestore_AliveSession(t *testing.T) {
	p := newFakePlatform(t)
	m := newTestManager(t, p, "")

	live := p.loginSecureValue(p.accessToken)
	p.markLive(live)
	snap := snapshotWith(t, p, live, p.accessToken, p.refreshToken)

	require.NoError(t, m.Restore(context.Background(), snap))
	require.Equal(t, PhaseAuthenticated, m.Phase())
	require.Equal(t, p.accessToken, m.AccessToken())
	require.Equal(t, "sess-restored", m.SessionID())
}

func TestRestore_DeadSession_ReloginWithPassword(t *testing.T) {
	p := newFakePlatform(t)
	m := newTestManager(t, p, testPassword)

	snap := snapshotWith(t, p, "stale-value", signedToken(t, time.Now().Add(-time.Hour)), p.refreshToken)

	require.NoError(t, m.Restore(context.Background(), snap))
	require.Equal(t, PhaseAuthenticated, m.Phase())
	require.Equal(t, p.accessToken, m.AccessToken())
}

func TestRestore_DeadSession_NoPassword(t *testing.T) {
	p := newFakePlatform(t)
	m := newTestManager(t, p, "")

	snap := snapshotWith(t, p, "stale-value", signedToken(t, time.Now().Add(-time.Hour)), p.refreshToken)

	err := m.Restore(context.Background(), snap)
	require.ErrorIs(t, err, ErrSessionExpired)
	require.Equal(t, PhaseUnauthenticated, m.Phase())
}

func TestRestore_ExpiredRefresh_NoPassword(t *testing.T) {
	p := newFakePlatform(t)
	m := newTestManager(t, p, "")

	expired := signedToken(t, time.Now().Add(-time.Hour))
	snap := snapshotWith(t, p, "stale-value", expired, expired)

	err := m.Restore(context.Background(), snap)
	require.ErrorIs(t, err, ErrReauthenticationRequired)
	require.Equal(t, PhaseUnauthenticated, m.Phase())
}

func TestRestore_MalformedSnapshot(t *testing.T) {
	p := newFakePlatform(t)
	m := newTestManager(t, p, testPassword)
	require.NoError(t, m.Login(context.Background()))

	// Частичная пара токенов структурно некорректна.
	bad := snapshotWith(t, p, "whatever", p.accessToken, "")

	err := m.Restore(context.Background(), bad)
	require.ErrorIs(t, err, ErrMalformedSession)

	// Прежняя сессия не тронута.
	require.Equal(t, PhaseAuthenticated, m.Phase())
	require.Equal(t, p.accessToken, m.AccessToken())

	alive, aliveErr := m.IsAlive(context.Background())
	require.NoError(t, aliveErr)
	require.True(t, alive)
}

// Живость определяется сервером, а не локальным сроком токенов:
// снапшот с давно истёкшими токенами, но признанными сервером cookies,
// восстанавливается как живой.
func TestIsAlive_ServerTruthWinsOverLocalExpiry(t *testing.T) {
	p := newFakePlatform(t)
	m := newTestManager(t, p, "")

	expired := signedToken(t, time.Now().Add(-time.Hour))
	p.markLive("still-honored")
	snap := snapshotWith(t, p, "still-honored", expired, expired)

	require.NoError(t, m.Restore(context.Background(), snap))
	require.Equal(t, PhaseAuthenticated, m.Phase())
}

func TestExportRestore_RoundTrip(t *testing.T) {
	p := newFakePlatform(t)
	m := newTestManager(t, p, testPassword)
	require.NoError(t, m.Login(context.Background()))

	snap := m.ExportSession()
	require.NotNil(t, snap.Tokens)
	require.Equal(t, p.accessToken, snap.Tokens.Access)
	require.NotEmpty(t, snap.Cookies[hostOf(p.srv.URL)])

	other := newTestManager(t, p, "")
	require.NoError(t, other.Restore(context.Background(), snap))
	require.Equal(t, PhaseAuthenticated, other.Phase())
	require.Equal(t, m.AccessToken(), other.AccessToken())
}

func TestLogout_ClearsState(t *testing.T) {
	p := newFakePlatform(t)
	m := newTestManager(t, p, testPassword)
	require.NoError(t, m.Login(context.Background()))

	require.NoError(t, m.Logout(context.Background()))

	require.Equal(t, PhaseLoggedOut, m.Phase())
	require.Empty(t, m.AccessToken())
	require.Equal(t, int32(1), atomic.LoadInt32(&p.logoutCalls))

	err := m.Logout(context.Background())
	require.ErrorIs(t, err, ErrLoggedOut)
}

// Сетевая ошибка удалённой инвалидации не мешает локальному сбросу.
func TestLogout_TransportFailureStillClears(t *testing.T) {
	p := newFakePlatform(t)
	m := newTestManager(t, p, testPassword)
	require.NoError(t, m.Login(context.Background()))

	p.srv.Close()

	require.NoError(t, m.Logout(context.Background()))
	require.Equal(t, PhaseLoggedOut, m.Phase())
	require.Empty(t, m.AccessToken())
}
