package store_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/simple-data-server/store"
)

// runStoreTests runs a common test suite against any Store implementation.
func runStoreTests(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("List empty", func(t *testing.T) {
		docs, err := s.List(ctx, 100)
		require.NoError(t, err)
		assert.NotNil(t, docs)
		assert.Empty(t, docs)
	})

	t.Run("Create and List", func(t *testing.T) {
		doc := store.Record{
			"id":    "k1",
			"title": "hello",
			"count": json.Number("42"),
			"ratio": json.Number("0.25"),
			"tags":  []any{"a", "b"},
			"meta":  map[string]any{"nested": true},
		}
		require.NoError(t, s.Create(ctx, doc))

		docs, err := s.List(ctx, 100)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		if diff := cmp.Diff(doc, docs[0]); diff != "" {
			t.Fatalf("record mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Large integers keep precision", func(t *testing.T) {
		doc := store.Record{"id": "big", "n": json.Number("9007199254740993")}
		require.NoError(t, s.Create(ctx, doc))

		docs, err := s.List(ctx, 100)
		require.NoError(t, err)
		for _, d := range docs {
			if d["id"] == "big" {
				b, err := json.Marshal(d["n"])
				require.NoError(t, err)
				assert.Equal(t, "9007199254740993", string(b))
				return
			}
		}
		t.Fatal("big not listed")
	})

	t.Run("Create without id", func(t *testing.T) {
		err := s.Create(ctx, store.Record{"title": "no id"})
		assert.ErrorIs(t, err, store.ErrMissingID)

		err = s.Create(ctx, store.Record{"id": 7})
		assert.ErrorIs(t, err, store.ErrMissingID)
	})

	t.Run("Create duplicate", func(t *testing.T) {
		err := s.Create(ctx, store.Record{"id": "k1", "title": "again"})
		assert.ErrorIs(t, err, store.ErrDuplicateID)
	})

	t.Run("List honors limit", func(t *testing.T) {
		for i := 2; i <= 5; i++ {
			require.NoError(t, s.Create(ctx, store.Record{"id": fmt.Sprintf("k%d", i)}))
		}
		docs, err := s.List(ctx, 3)
		require.NoError(t, err)
		assert.Len(t, docs, 3)

		docs, err = s.List(ctx, 100)
		require.NoError(t, err)
		assert.Len(t, docs, 6)
	})

	t.Run("Create copies input", func(t *testing.T) {
		doc := store.Record{"id": "k6", "title": "original"}
		require.NoError(t, s.Create(ctx, doc))
		doc["title"] = "mutated"

		docs, err := s.List(ctx, 0)
		require.NoError(t, err)
		for _, d := range docs {
			if d["id"] == "k6" {
				assert.Equal(t, "original", d["title"])
				return
			}
		}
		t.Fatal("k6 not listed")
	})
}

func TestMemoryStore(t *testing.T) {
	s := store.NewMemoryStore()
	runStoreTests(t, s)
}

func TestSqliteStore(t *testing.T) {
	dir := t.TempDir()
	s, err := store.OpenSqliteStore(context.Background(), store.Params{
		Endpoint:  dir,
		Database:  "test",
		Container: "items",
	})
	require.NoError(t, err)
	defer s.Close(context.Background())
	runStoreTests(t, s)

	assert.FileExists(t, filepath.Join(dir, "test.db"))
}

func TestSqliteStoreCollectionIsolation(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	a, err := store.OpenSqliteStore(ctx, store.Params{Endpoint: dir, Database: "shared", Container: "a"})
	require.NoError(t, err)
	defer a.Close(ctx)
	b, err := store.OpenSqliteStore(ctx, store.Params{Endpoint: dir, Database: "shared", Container: "b"})
	require.NoError(t, err)
	defer b.Close(ctx)

	require.NoError(t, a.Create(ctx, store.Record{"id": "k1", "x": json.Number("1")}))
	require.NoError(t, b.Create(ctx, store.Record{"id": "k1", "x": json.Number("2")}))

	aDocs, err := a.List(ctx, 100)
	require.NoError(t, err)
	bDocs, err := b.List(ctx, 100)
	require.NoError(t, err)
	require.Len(t, aDocs, 1)
	require.Len(t, bDocs, 1)
	assert.Equal(t, json.Number("1"), aDocs[0]["x"])
	assert.Equal(t, json.Number("2"), bDocs[0]["x"])
}

func TestSqliteStoreCorruptRow(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := store.OpenSqliteStore(ctx, store.Params{Endpoint: dir, Database: "test", Container: "items"})
	require.NoError(t, err)
	defer s.Close(ctx)
	require.NoError(t, s.Create(ctx, store.Record{"id": "ok"}))

	db, err := sql.Open("sqlite3", filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	defer db.Close()
	_, err = db.ExecContext(ctx,
		"INSERT INTO documents (collection, id, data) VALUES (?, ?, ?)", "items", "bad", "{not json")
	require.NoError(t, err)

	_, err = s.List(ctx, 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode stored record")
}

func TestDecodeRecord(t *testing.T) {
	rec, err := store.DecodeRecord([]byte(`{"id": "a", "n": 18446744073709551615, "f": 1.5, "l": [1, {"m": 2}]}`))
	require.NoError(t, err)
	want := store.Record{
		"id": "a",
		"n":  json.Number("18446744073709551615"),
		"f":  json.Number("1.5"),
		"l":  []any{json.Number("1"), map[string]any{"m": json.Number("2")}},
	}
	if diff := cmp.Diff(want, rec); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}

	rec, err = store.DecodeRecord([]byte("null"))
	require.NoError(t, err)
	assert.Nil(t, rec)

	_, err = store.DecodeRecord([]byte(`[1]`))
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	t.Run("memory", func(t *testing.T) {
		s, err := store.Open(ctx, store.Params{Backend: "memory"})
		require.NoError(t, err)
		assert.IsType(t, &store.MemoryStore{}, s)
	})

	t.Run("sqlite", func(t *testing.T) {
		s, err := store.Open(ctx, store.Params{Backend: "sqlite", Endpoint: dir, Database: "db", Container: "c"})
		require.NoError(t, err)
		defer s.Close(ctx)
		assert.IsType(t, &store.SqliteStore{}, s)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := store.Open(ctx, store.Params{Backend: "redis", Endpoint: "x", Database: "y", Container: "z"})
		assert.ErrorIs(t, err, store.ErrUnknown)
	})

	for _, backend := range []string{"", "cosmos", "mongo", "surreal", "sqlite"} {
		t.Run("unconfigured "+backend, func(t *testing.T) {
			_, err := store.Open(ctx, store.Params{Backend: backend})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "endpoint, database, container")
		})
	}
}

func TestConnect(t *testing.T) {
	ctx := context.Background()
	log := zerolog.Nop()

	t.Run("connected", func(t *testing.T) {
		conn := store.Connect(ctx, store.Params{Backend: "memory"}, log)
		assert.Equal(t, store.StateConnected, conn.State())
		assert.NoError(t, conn.Err())
		s, err := conn.Store()
		require.NoError(t, err)
		assert.NotNil(t, s)
		assert.NoError(t, conn.Close(ctx))
	})

	t.Run("failed", func(t *testing.T) {
		conn := store.Connect(ctx, store.Params{Backend: "cosmos"}, log)
		assert.Equal(t, store.StateFailed, conn.State())
		require.Error(t, conn.Err())
		assert.Contains(t, conn.Err().Error(), "failed to connect to store")

		_, err := conn.Store()
		assert.ErrorIs(t, err, store.ErrNotConnected)
		assert.NoError(t, conn.Close(ctx))
	})

	// Nothing listens on port 1, so these fail on the first dial.
	for _, p := range []store.Params{
		{
			Backend:   "mongo",
			Endpoint:  "mongodb://127.0.0.1:1/?serverSelectionTimeoutMS=500&connectTimeoutMS=500",
			Database:  "app",
			Container: "items",
		},
		{
			Backend:   "surreal",
			Endpoint:  "ws://127.0.0.1:1/rpc",
			Database:  "app/main",
			Container: "items",
		},
	} {
		t.Run("unreachable "+p.Backend, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			conn := store.Connect(ctx, p, log)
			assert.Equal(t, store.StateFailed, conn.State())
			require.Error(t, conn.Err())
			assert.Contains(t, conn.Err().Error(), "failed to connect to store")
			assert.NoError(t, conn.Close(ctx))
		})
	}

	t.Run("not attempted", func(t *testing.T) {
		conn := store.NotAttempted()
		assert.Equal(t, store.StateNotAttempted, conn.State())
		_, err := conn.Store()
		assert.ErrorIs(t, err, store.ErrNotConnected)
	})
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "not-attempted", store.StateNotAttempted.String())
	assert.Equal(t, "connected", store.StateConnected.String())
	assert.Equal(t, "failed", store.StateFailed.String())
}

func TestRecordID(t *testing.T) {
	id, ok := store.Record{"id": "abc"}.ID()
	assert.True(t, ok)
	assert.Equal(t, "abc", id)

	_, ok = store.Record{"id": ""}.ID()
	assert.False(t, ok)
	_, ok = store.Record{"id": 1}.ID()
	assert.False(t, ok)
	_, ok = store.Record{}.ID()
	assert.False(t, ok)
}
