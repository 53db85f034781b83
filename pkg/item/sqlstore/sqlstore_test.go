package sqlstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gootel "go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"inventory/pkg/item"
	"inventory/pkg/item/itemtest"
	"inventory/pkg/metrics"
)

func openTemp(t *testing.T, n item.ChangeNotifier) *Store {
	t.Helper()
	s, err := Open(context.Background(), Config{
		DSN:      filepath.Join(t.TempDir(), "items.db"),
		Notifier: n,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEngineSQLite(t *testing.T) {
	itemtest.RunEngineTests(t, "SQLite", func(t *testing.T, n item.ChangeNotifier) item.Engine {
		return openTemp(t, n)
	})
}

func TestEngineSQLiteInMemory(t *testing.T) {
	itemtest.RunEngineTests(t, "SQLiteInMemory", func(t *testing.T, n item.ChangeNotifier) item.Engine {
		s, err := Open(context.Background(), Config{Driver: DriverSQLite, DSN: ":memory:", Notifier: n})
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestOpenCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "items.db")

	s, err := Open(context.Background(), Config{DSN: path})
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestWritesSurviveReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "items.db")

	s1, err := Open(ctx, Config{DSN: path})
	require.NoError(t, err)
	_, _, err = s1.Insert(ctx, item.Item{ID: 1, Name: "Apples", Price: 10, Quantity: 20})
	require.NoError(t, err)
	_, _, err = s1.Insert(ctx, item.Item{ID: 2, Name: "Bananas", Price: 15, Quantity: 97})
	require.NoError(t, err)
	_, err = s1.Update(ctx, item.Item{ID: 1, Name: "Apples", Price: 15, Quantity: 25})
	require.NoError(t, err)
	_, err = s1.Delete(ctx, 2)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(ctx, Config{DSN: path})
	require.NoError(t, err)
	defer s2.Close()

	all, err := s2.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []item.Item{{ID: 1, Name: "Apples", Price: 15, Quantity: 25}}, all)
}

func TestPragmasHoldOnNewConnections(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t, nil)

	// Without idle connections every query runs on a freshly opened one.
	s.db.SetMaxIdleConns(0)

	for range 2 {
		var journal string
		var synchronous, busyTimeout int
		require.NoError(t, s.db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journal))
		require.NoError(t, s.db.QueryRowContext(ctx, "PRAGMA synchronous").Scan(&synchronous))
		require.NoError(t, s.db.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busyTimeout))

		assert.Equal(t, "wal", journal)
		assert.Equal(t, 2, synchronous, "synchronous=FULL")
		assert.Equal(t, 5000, busyTimeout)
	}
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "items.db?"+sqlitePragmas, sqliteDSN("items.db"))
	assert.Equal(t, "file:items.db?cache=shared&"+sqlitePragmas, sqliteDSN("file:items.db?cache=shared"))
}

func TestOpenFailures(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, Config{DSN: ""})
	require.Error(t, err)

	_, err = Open(ctx, Config{Driver: "oracle", DSN: "x"})
	require.Error(t, err)

	// The parent of the database path is a regular file.
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))
	_, err = Open(ctx, Config{DSN: filepath.Join(blocker, "items.db")})
	require.Error(t, err)
}

func TestStorageErrorsAreWrapped(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t, nil)

	// Pull the table out from under the engine.
	_, err := s.db.ExecContext(ctx, "DROP TABLE items")
	require.NoError(t, err)

	_, err = s.List(ctx)
	require.ErrorIs(t, err, item.ErrStorageIO)
	_, err = s.Get(ctx, 1)
	require.ErrorIs(t, err, item.ErrStorageIO)
	_, _, err = s.Insert(ctx, item.Item{ID: 1, Name: "Apples"})
	require.ErrorIs(t, err, item.ErrStorageIO)
	_, err = s.Delete(ctx, 1)
	require.ErrorIs(t, err, item.ErrStorageIO)
}

func TestSpansAndMetrics(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := gootel.GetTracerProvider()
	gootel.SetTracerProvider(tp)
	t.Cleanup(func() { gootel.SetTracerProvider(prev) })

	ctx := context.Background()
	reg := prometheus.NewRegistry()
	s, err := Open(ctx, Config{
		DSN:     filepath.Join(t.TempDir(), "items.db"),
		Metrics: metrics.New(reg),
	})
	require.NoError(t, err)
	defer s.Close()

	_, _, err = s.Insert(ctx, item.Item{ID: 1, Name: "Apples", Price: 10, Quantity: 20})
	require.NoError(t, err)
	_, _, err = s.Insert(ctx, item.Item{ID: 1, Name: "Apples", Price: 10, Quantity: 20})
	require.NoError(t, err)
	_, err = s.List(ctx)
	require.NoError(t, err)

	var names []string
	for _, span := range rec.Ended() {
		names = append(names, span.Name())
	}
	assert.Equal(t, []string{"sqlstore.Insert", "sqlstore.Insert", "sqlstore.List"}, names)

	n, err := testutil.GatherAndCount(reg, "inventory_writes_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "one changed and one noop series")
}
