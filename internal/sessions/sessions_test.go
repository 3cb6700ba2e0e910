package sessions

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStartStopRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	started := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	id, err := s.RecordStart(ctx, "beefcafe", "native", 8000, "/logs/server.log", started)
	require.NoError(t, err)
	require.NoError(t, s.RecordStop(ctx, id, started.Add(time.Minute), errors.New("exit status 1")))

	recs, err := s.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	r := recs[0]
	require.Equal(t, "beefcafe", r.ProjectID)
	require.Equal(t, "native", r.Mode)
	require.Equal(t, 8000, r.Port)
	require.True(t, r.StoppedAt.Valid)
	require.True(t, r.ExitErr.Valid)
	require.Equal(t, "exit status 1", r.ExitErr.String)
}

func TestCleanExitLeavesErrorNull(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	id, err := s.RecordStart(ctx, "beefcafe", "native", 8000, "", time.Now())
	require.NoError(t, err)
	require.NoError(t, s.RecordStop(ctx, id, time.Now(), nil))

	recs, err := s.List(ctx, 1)
	require.NoError(t, err)
	require.False(t, recs[0].ExitErr.Valid)
}

func TestGetByID(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	id, err := s.RecordStart(ctx, "beefcafe", "native", 8000, "/logs/x.log", time.Now())
	require.NoError(t, err)

	r, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, id, r.ID)
	require.Equal(t, "/logs/x.log", r.LogPath)

	_, err = s.Get(ctx, id+1)
	require.Error(t, err)
}

func TestListNewestFirstWithLimit(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := s.RecordStart(ctx, "beefcafe", "native", 8000+i, "", time.Now())
		require.NoError(t, err)
	}
	recs, err := s.List(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	require.Equal(t, 8004, recs[0].Port)
	require.Equal(t, 8002, recs[2].Port)
}

func TestOpenSchemaIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	s1, err := Open(path)
	require.NoError(t, err)
	_, err = s1.RecordStart(context.Background(), "beefcafe", "native", 8000, "", time.Now())
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	recs, err := s2.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
}
