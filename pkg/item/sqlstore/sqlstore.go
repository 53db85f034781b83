// Package sqlstore persists items through database/sql. SQLite is the default
// embedded backend; PostgreSQL is supported with the same semantics.
//
// All writes are serialized by one engine-wide mutex. Each write runs in its
// own transaction and is committed before the call returns. With SQLite the
// database runs in WAL mode with synchronous=FULL so that a committed write
// survives a crash right after the call returns.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"inventory/pkg/item"
	"inventory/pkg/logger"
	"inventory/pkg/metrics"
	"inventory/pkg/otel"
)

// Config defines how to open a Store.
type Config struct {
	// Driver is DriverSQLite (default) or DriverPostgres.
	Driver string
	// DSN is a file path for SQLite or a connection string for PostgreSQL.
	DSN string

	Notifier item.ChangeNotifier
	Log      *logger.Logger
	Metrics  *metrics.Collector
}

// Store implements item.Engine on top of a SQL database.
type Store struct {
	db       *sql.DB
	d        dialect
	mu       sync.Mutex // serializes writes
	closed   atomic.Bool
	notifier item.ChangeNotifier
	log      *logger.Logger
	metrics  *metrics.Collector
}

// Open connects to the database and creates the items table if needed.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if cfg.DSN == "" {
		return nil, errors.New("empty storage location")
	}
	log := cfg.Log
	if log == nil {
		log = logger.Nop()
	}

	if d.driver == DriverSQLite {
		if err := ensureDir(cfg.DSN); err != nil {
			return nil, err
		}
	}

	dsn := cfg.DSN
	if d.driver == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	if d.driver == DriverSQLite {
		// SQLite has a single writer; one connection also keeps an in-memory
		// database alive.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.ExecContext(ctx, d.schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	log.Info(ctx, "item store opened", "driver", d.driver)

	return &Store{
		db:       db,
		d:        d,
		notifier: cfg.Notifier,
		log:      log,
		metrics:  cfg.Metrics,
	}, nil
}

func ensureDir(dsn string) error {
	if strings.HasPrefix(dsn, ":memory:") || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	path, _, _ := strings.Cut(dsn, "?")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create storage directory: %w", err)
	}
	return nil
}

// sqlitePragmas are applied by go-sqlite3 on every connection it opens, so
// they hold even after the pool replaces a connection.
const sqlitePragmas = "_journal_mode=WAL&_synchronous=FULL&_busy_timeout=5000"

func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + sqlitePragmas
	}
	return dsn + "?" + sqlitePragmas
}

// Insert stores the item unless its id is already taken, in which case the
// existing item is returned. A zero id gets the next free id assigned.
func (s *Store) Insert(ctx context.Context, it item.Item) (item.Item, bool, error) {
	ctx, span := otel.AddSpan(ctx, "sqlstore.Insert", s.attrs(it.ID)...)
	start := time.Now()

	stored, inserted, err := s.insert(ctx, it)
	s.done(span, "insert", start, err)
	if err != nil {
		return item.Item{}, false, err
	}

	s.metrics.Write("insert", inserted)
	if inserted {
		s.notify()
	} else {
		s.log.Debug(ctx, "insert ignored, id exists", "id", stored.ID)
	}
	return stored, inserted, nil
}

func (s *Store) insert(ctx context.Context, it item.Item) (item.Item, bool, error) {
	if err := it.Validate(); err != nil {
		return item.Item{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return item.Item{}, false, item.ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return item.Item{}, false, ioErr("begin insert", err)
	}
	defer tx.Rollback()

	if it.ID == 0 {
		if err := tx.QueryRowContext(ctx, s.d.nextID).Scan(&it.ID); err != nil {
			return item.Item{}, false, ioErr("allocate id", err)
		}
	}

	res, err := tx.ExecContext(ctx, s.d.insert, it.ID, it.Name, it.Price, it.Quantity)
	if err != nil {
		return item.Item{}, false, ioErr("insert", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return item.Item{}, false, ioErr("insert", err)
	}
	if n == 0 {
		var existing item.Item
		err := tx.QueryRowContext(ctx, s.d.get, it.ID).Scan(&existing.ID, &existing.Name, &existing.Price, &existing.Quantity)
		if err != nil {
			return item.Item{}, false, ioErr("read conflicting item", err)
		}
		return existing, false, nil
	}
	if err := tx.Commit(); err != nil {
		return item.Item{}, false, ioErr("commit insert", err)
	}

	return it, true, nil
}

// Update replaces all fields of the item with the same id. It reports false
// when no such item exists.
func (s *Store) Update(ctx context.Context, it item.Item) (bool, error) {
	ctx, span := otel.AddSpan(ctx, "sqlstore.Update", s.attrs(it.ID)...)
	start := time.Now()

	changed, err := s.update(ctx, it)
	s.done(span, "update", start, err)
	if err != nil {
		return false, err
	}

	s.metrics.Write("update", changed)
	if changed {
		s.notify()
	}
	return changed, nil
}

func (s *Store) update(ctx context.Context, it item.Item) (bool, error) {
	if err := it.Validate(); err != nil {
		return false, err
	}
	return s.exec(ctx, "update", s.d.update, it.Name, it.Price, it.Quantity, it.ID)
}

// Delete removes the item with the given id. It reports false when no such
// item exists.
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	ctx, span := otel.AddSpan(ctx, "sqlstore.Delete", s.attrs(id)...)
	start := time.Now()

	deleted, err := s.exec(ctx, "delete", s.d.delete, id)
	s.done(span, "delete", start, err)
	if err != nil {
		return false, err
	}

	s.metrics.Write("delete", deleted)
	if deleted {
		s.notify()
	}
	return deleted, nil
}

// exec runs a single-statement write and reports whether a row was touched.
func (s *Store) exec(ctx context.Context, op, query string, args ...any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return false, item.ErrClosed
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, ioErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, ioErr(op, err)
	}
	return n > 0, nil
}

// Get retrieves an item by id.
func (s *Store) Get(ctx context.Context, id int64) (item.Lookup, error) {
	ctx, span := otel.AddSpan(ctx, "sqlstore.Get", s.attrs(id)...)
	start := time.Now()

	l, err := s.get(ctx, id)
	s.done(span, "get", start, err)
	return l, err
}

func (s *Store) get(ctx context.Context, id int64) (item.Lookup, error) {
	if s.closed.Load() {
		return item.Lookup{}, item.ErrClosed
	}

	var it item.Item
	err := s.db.QueryRowContext(ctx, s.d.get, id).Scan(&it.ID, &it.Name, &it.Price, &it.Quantity)
	if err == sql.ErrNoRows {
		return item.Lookup{}, nil
	}
	if err != nil {
		return item.Lookup{}, ioErr("get", err)
	}
	return item.Lookup{Item: it, Found: true}, nil
}

// List fetches all items ordered by name, then id.
func (s *Store) List(ctx context.Context) ([]item.Item, error) {
	ctx, span := otel.AddSpan(ctx, "sqlstore.List", attribute.String("db.system", s.d.driver))
	start := time.Now()

	items, err := s.list(ctx)
	s.done(span, "list", start, err)
	return items, err
}

func (s *Store) list(ctx context.Context) ([]item.Item, error) {
	if s.closed.Load() {
		return nil, item.ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, s.d.list)
	if err != nil {
		return nil, ioErr("list", err)
	}
	defer rows.Close()

	items := []item.Item{}
	for rows.Next() {
		var it item.Item
		if err := rows.Scan(&it.ID, &it.Name, &it.Price, &it.Quantity); err != nil {
			return nil, ioErr("list", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, ioErr("list", err)
	}
	return items, nil
}

// Close closes the database. Later calls fail with item.ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func (s *Store) notify() {
	if s.notifier != nil {
		s.notifier.Notify()
	}
}

func (s *Store) attrs(id int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("db.system", s.d.driver),
		attribute.Int64("item.id", id),
	}
}

func (s *Store) done(span trace.Span, op string, start time.Time, err error) {
	s.metrics.ObserveOp(op, time.Since(start), err)
	otel.EndSpan(span, err)
}

func ioErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", item.ErrStorageIO, op, err)
}
