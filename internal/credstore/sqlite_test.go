package credstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteBackend(t *testing.T) *SQLiteBackend {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "credentials.db")
	b, err := NewSQLiteBackend(dbPath, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestSQLiteBackendSetGetDelete(t *testing.T) {
	b := newSQLiteBackend(t)
	ctx := context.Background()

	_, found, err := b.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, b.Set(ctx, "k", []byte(`{"access_token":"tok"}`), time.Hour))

	value, found, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `{"access_token":"tok"}`, string(value))

	require.NoError(t, b.Delete(ctx, "k"))

	_, found, err = b.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSQLiteBackendUpsertRenewsTTL(t *testing.T) {
	b := newSQLiteBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "k", []byte("old"), time.Hour))
	require.NoError(t, b.Set(ctx, "k", []byte("new"), 2*time.Hour))

	value, found, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("new"), value)

	var expiresAt int64
	err = b.reader.QueryRow(`SELECT expires_at FROM credentials WHERE key = 'k'`).Scan(&expiresAt)
	require.NoError(t, err)
	assert.Greater(t, expiresAt, time.Now().Add(90*time.Minute).Unix())
}

func TestSQLiteBackendExpiredRowIsAbsent(t *testing.T) {
	b := newSQLiteBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "k", []byte("v"), time.Hour))

	// Force the row into the past rather than sleeping.
	_, err := b.writer.Exec(`UPDATE credentials SET expires_at = ? WHERE key = 'k'`,
		time.Now().Add(-time.Minute).Unix())
	require.NoError(t, err)

	_, found, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSQLiteBackendSurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "credentials.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	b, err := NewSQLiteBackend(dbPath, logger)
	require.NoError(t, err)
	require.NoError(t, b.Set(ctx, "k", []byte("v"), time.Hour))
	require.NoError(t, b.Close())

	b, err = NewSQLiteBackend(dbPath, logger)
	require.NoError(t, err)
	defer b.Close()

	value, found, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v"), value)
}

func TestSQLiteBackendWithStore(t *testing.T) {
	b := newSQLiteBackend(t)
	store := NewStore(b, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, Identity{FallbackID: "c1"}, &Record{AccessToken: "tok"}))

	copied, err := store.Migrate(ctx, Identity{FallbackID: "c1"}, Identity{CanonicalID: "u1"})
	require.NoError(t, err)
	assert.True(t, copied)

	record, err := store.Load(ctx, Identity{CanonicalID: "u1"})
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "tok", record.AccessToken)
}
