package cache

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/pribylovaa/go-steam-client/internal/models"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Интеграционные тесты redis-кэша снапшотов.
//
// Покрытие:
//   - set → get round-trip, miss для незнакомого аккаунта;
//   - истечение TTL;
//   - удаление.

// startRedis — поднимает временный Redis через testcontainers-go.
// Если переменная окружения GO_TEST_INTEGRATION не установлена — тест пропускается.
func startRedis(t *testing.T) (SnapshotCache, func()) {
	t.Helper()
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		t.Skip("integration tests are disabled (set GO_TEST_INTEGRATION=1)")
	}

	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(60 * time.Second),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)

	host, _ := c.Host(ctx)
	port, _ := c.MappedPort(ctx, "6379/tcp")

	cch, err := NewRedisCache(fmt.Sprintf("redis://%s:%s/0", host, port.Port()), "")
	require.NoError(t, err)

	cleanup := func() {
		_ = cch.Close()
		_ = c.Terminate(context.Background())
	}
	return cch, cleanup
}

func testSnapshot() *models.Snapshot {
	return &models.Snapshot{
		Cookies: map[string][]models.Cookie{
			"steamcommunity.com": {{Name: "sessionid", Value: "abc", Path: "/"}},
		},
		Tokens: &models.SnapshotTokens{Access: "at", Refresh: "rt"},
	}
}

func TestIntegration_SetGet_RoundTrip_And_Miss(t *testing.T) {
	cch, cleanup := startRedis(t)
	defer cleanup()

	ctx := context.Background()

	_, ok, err := cch.Get(ctx, 404)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, cch.Set(ctx, 76561198012345678, testSnapshot(), time.Minute))

	got, ok, err := cch.Get(ctx, 76561198012345678)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, testSnapshot(), got)
}

func TestIntegration_TTLExpiry(t *testing.T) {
	cch, cleanup := startRedis(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, cch.Set(ctx, 1, testSnapshot(), time.Second))

	time.Sleep(1500 * time.Millisecond)

	_, ok, err := cch.Get(ctx, 1)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIntegration_Delete(t *testing.T) {
	cch, cleanup := startRedis(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, cch.Set(ctx, 2, testSnapshot(), time.Minute))
	require.NoError(t, cch.Delete(ctx, 2))

	_, ok, err := cch.Get(ctx, 2)
	require.NoError(t, err)
	require.False(t, ok)
}
