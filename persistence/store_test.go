package persistence

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"

	"github.com/hectormc-main/casa-playgroundServer/config"
	"github.com/hectormc-main/casa-playgroundServer/feature"
	"github.com/hectormc-main/casa-playgroundServer/game"
	"github.com/hectormc-main/casa-playgroundServer/models"
)

func sampleSnapshot(version uint64) *models.Snapshot {
	return &models.Snapshot{
		Version: version,
		SavedAt: time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
		Features: map[string]feature.State{
			"chat":        {Enabled: true, Options: json.RawMessage(`{"max_message_length":500,"slow_mode_seconds":5}`)},
			"maintenance": {Enabled: false, Options: json.RawMessage(`{"message":""}`)},
		},
		Game: &game.Game{
			ID:        "5c0b7a39-2c57-4b1e-8b5f-7f7f0d1fbb3a",
			Name:      "g1",
			Settings:  game.Settings{"x": json.Number("1")},
			StartedAt: time.Date(2026, 3, 4, 5, 0, 0, 0, time.UTC),
			UpdatedAt: time.Date(2026, 3, 4, 5, 1, 0, 0, time.UTC),
		},
	}
}

// storeFactories builds one fresh store per backend that can run without a server.
func storeFactories(t *testing.T) map[string]func() Store {
	return map[string]func() Store{
		"file": func() Store {
			s, err := NewFileStore(filepath.Join(t.TempDir(), "nested", "state.json"))
			require.NoError(t, err)
			return s
		},
		"sql-sqlite": func() Store {
			s, err := NewSQLite(filepath.Join(t.TempDir(), "state.db"))
			require.NoError(t, err)
			return s
		},
		"gorm-sqlite": func() Store {
			s, err := NewGormStore(sqlite.Open(filepath.Join(t.TempDir(), "gorm.db")))
			require.NoError(t, err)
			return s
		},
	}
}

func assertSnapshotsEqual(t *testing.T, want, got *models.Snapshot) {
	t.Helper()
	require.NotNil(t, got)
	assert.Equal(t, want.Version, got.Version)
	require.Len(t, got.Features, len(want.Features))
	for name, s := range want.Features {
		assert.Equal(t, s.Enabled, got.Features[name].Enabled, name)
		assert.JSONEq(t, string(s.Options), string(got.Features[name].Options), name)
	}
	if want.Game == nil {
		assert.Nil(t, got.Game)
		return
	}
	require.NotNil(t, got.Game)
	assert.Equal(t, want.Game.ID, got.Game.ID)
	assert.Equal(t, want.Game.Name, got.Game.Name)
	assert.True(t, want.Game.StartedAt.Equal(got.Game.StartedAt))
	wantSettings, _ := json.Marshal(want.Game.Settings)
	gotSettings, _ := json.Marshal(got.Game.Settings)
	assert.JSONEq(t, string(wantSettings), string(gotSettings))
}

func TestStores_RoundTrip(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore()
			defer store.Close()

			_, err := store.Load(ctx)
			require.ErrorIs(t, err, ErrNoSnapshot)

			want := sampleSnapshot(1)
			require.NoError(t, store.Save(ctx, want))

			got, err := store.Load(ctx)
			require.NoError(t, err)
			assertSnapshotsEqual(t, want, got)

			// stopping the game clears the stored game
			next := sampleSnapshot(2)
			next.Game = nil
			require.NoError(t, store.Save(ctx, next))

			got, err = store.Load(ctx)
			require.NoError(t, err)
			assertSnapshotsEqual(t, next, got)
		})
	}
}

func TestFileStore_DropsOutOfOrderSaves(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)

	newer := sampleSnapshot(5)
	require.NoError(t, store.Save(ctx, newer))

	older := sampleSnapshot(4)
	older.Game = nil
	require.NoError(t, store.Save(ctx, older))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assertSnapshotsEqual(t, newer, got)
}

func TestFileStore_LoadRaisesVersionFloor(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")

	first, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, first.Save(ctx, sampleSnapshot(9)))

	// a restarted process learns the stored version on load
	second, err := NewFileStore(path)
	require.NoError(t, err)
	_, err = second.Load(ctx)
	require.NoError(t, err)

	stale := sampleSnapshot(3)
	stale.Game = nil
	require.NoError(t, second.Save(ctx, stale))

	got, err := second.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), got.Version)
	assert.NotNil(t, got.Game)
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": 3, "features": [`), 0o644))

	store, err := NewFileStore(path)
	require.NoError(t, err)

	_, err = store.Load(context.Background())
	require.ErrorIs(t, err, ErrCorruptSnapshot)
}

func TestFileStore_NoTempFilesLeftBehind(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(filepath.Join(dir, "state.json"))
	require.NoError(t, err)

	for v := uint64(1); v <= 3; v++ {
		require.NoError(t, store.Save(context.Background(), sampleSnapshot(v)))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "state.json", entries[0].Name())
}

func TestFileStore_CancelledContext(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, store.Save(ctx, sampleSnapshot(1)), context.Canceled)
	_, err = store.Load(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestFileStore_MissingGameStillLoadsFeatures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":2,"features":{"chat":{"enabled":false}}}`), 0o644))

	store, err := NewFileStore(path)
	require.NoError(t, err)

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got.Game)
	assert.False(t, got.Features["chat"].Enabled)
}

func TestFileStore_MalformedGameStillLoadsFeatures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	data := `{"version":3,"features":{"chat":{"enabled":false}},"game":{"name":"g1","settings":[1]}}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	store, err := NewFileStore(path)
	require.NoError(t, err)

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got.Game)
	assert.False(t, got.Features["chat"].Enabled)
	assert.Equal(t, uint64(3), got.Version)
}

func TestFileStore_MalformedFeaturesStillLoadGame(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	data := `{"version":4,"features":[1,2],"game":{"id":"abc","name":"g1","settings":{"x":1}}}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	store, err := NewFileStore(path)
	require.NoError(t, err)

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got.Features)
	require.NotNil(t, got.Game)
	assert.Equal(t, "g1", got.Game.Name)
}

func TestJoinRecords(t *testing.T) {
	_, err := joinRecords(nil)
	require.ErrorIs(t, err, ErrNoSnapshot)

	_, err = joinRecords([]record{{key: models.KeyFeatures, data: "{"}})
	require.ErrorIs(t, err, ErrCorruptSnapshot)

	// a broken game part does not prevent features from loading
	s, err := joinRecords([]record{
		{key: models.KeyFeatures, data: `{"chat":{"enabled":true}}`, version: 7},
		{key: models.KeyGame, data: `{"name":`, version: 7},
	})
	require.NoError(t, err)
	assert.Nil(t, s.Game)
	assert.True(t, s.Features["chat"].Enabled)
	assert.Equal(t, uint64(7), s.Version)
}

func TestSQLStore_Rebind(t *testing.T) {
	s := &SQLStore{numbered: true}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", s.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))

	s.numbered = false
	assert.Equal(t, "x = ?", s.rebind("x = ?"))
}

func TestOpen(t *testing.T) {
	store, err := Open(config.StorageConfig{Driver: "file", File: config.FileConfig{Path: filepath.Join(t.TempDir(), "s.json")}})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)

	store, err = Open(config.StorageConfig{Driver: "sqlite", SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "s.db")}})
	require.NoError(t, err)
	assert.IsType(t, &SQLStore{}, store)
	require.NoError(t, store.Close())

	_, err = Open(config.StorageConfig{Driver: "etcd"})
	require.ErrorIs(t, err, ErrUnknownDriver)
}
