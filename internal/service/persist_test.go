package service

import (
	"context"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/pribylovaa/go-steam-client/internal/models"
	"github.com/pribylovaa/go-steam-client/internal/storage"
	"github.com/pribylovaa/go-steam-client/mocks"
	"github.com/stretchr/testify/require"
)

// Тесты покрывают:
// - сохранение снапшота под steam id аккаунта;
// - восстановление из хранилища;
// - прозрачный проброс storage.ErrNotFound.
func TestPersist_SavesSnapshot(t *testing.T) {
	p := newFakePlatform(t)
	m := newTestManager(t, p, testPassword)
	require.NoError(t, m.Login(context.Background()))

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	st := mocks.NewMockSnapshotStorage(ctrl)
	st.EXPECT().
		SaveSnapshot(gomock.Any(), testSteamID, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ int64, snap *models.Snapshot) error {
			require.NotNil(t, snap.Tokens)
			require.Equal(t, p.accessToken, snap.Tokens.Access)
			require.Equal(t, p.refreshToken, snap.Tokens.Refresh)
			require.NotEmpty(t, snap.Cookies)
			return nil
		})

	require.NoError(t, m.Persist(context.Background(), st))
}

func TestResume_RestoresFromStorage(t *testing.T) {
	p := newFakePlatform(t)
	m := newTestManager(t, p, "")

	live := p.loginSecureValue(p.accessToken)
	p.markLive(live)
	snap := snapshotWith(t, p, live, p.accessToken, p.refreshToken)

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	st := mocks.NewMockSnapshotStorage(ctrl)
	st.EXPECT().
		SnapshotBySteamID(gomock.Any(), testSteamID).
		Return(snap, nil)

	require.NoError(t, m.Resume(context.Background(), st))
	require.Equal(t, PhaseAuthenticated, m.Phase())
	require.Equal(t, p.accessToken, m.AccessToken())
}

func TestResume_NotFound(t *testing.T) {
	p := newFakePlatform(t)
	m := newTestManager(t, p, testPassword)

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	st := mocks.NewMockSnapshotStorage(ctrl)
	st.EXPECT().
		SnapshotBySteamID(gomock.Any(), testSteamID).
		Return(nil, storage.ErrNotFound)

	err := m.Resume(context.Background(), st)
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.Equal(t, PhaseUnauthenticated, m.Phase())
}
