// Package store hands out the one shared item store of the process.
//
// GetInstance constructs the store lazily on first use. Concurrent first
// callers are serialized so that exactly one of them builds the store while
// the others wait; afterwards every caller gets the same *Handle without
// taking a lock.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"inventory/pkg/item"
	"inventory/pkg/item/sqlstore"
	"inventory/pkg/live"
	"inventory/pkg/logger"
	"inventory/pkg/metrics"
	"inventory/pkg/notify/redisbus"
)

// ErrConstruction indicates the store could not be built. A later call may
// retry.
var ErrConstruction = errors.New("store construction failed")

// Config is consumed once, by the call that constructs the store.
type Config struct {
	// StorageLocation is the SQLite file path or the PostgreSQL DSN.
	StorageLocation string
	// Driver is sqlstore.DriverSQLite (default) or sqlstore.DriverPostgres.
	Driver string
	// RedisAddr enables the cross-process change bus when set.
	RedisAddr    string
	RedisChannel string

	Log     *logger.Logger
	Metrics *metrics.Collector
}

func (c Config) sameStorage(o Config) bool {
	return c.StorageLocation == o.StorageLocation && c.Driver == o.Driver && c.RedisAddr == o.RedisAddr
}

// Handle bundles the engine with the hub its writes notify.
type Handle struct {
	engine item.Engine
	hub    *live.Hub
	bus    *redisbus.Bus
	cfg    Config
}

// NewHandle wraps an existing engine and hub. The engine must notify hub of
// its changes.
func NewHandle(engine item.Engine, hub *live.Hub) *Handle {
	return &Handle{engine: engine, hub: hub}
}

// Engine returns the store engine.
func (h *Handle) Engine() item.Engine {
	return h.engine
}

// Hub returns the change hub of the engine.
func (h *Handle) Hub() *live.Hub {
	return h.hub
}

// Close ends all live subscriptions and releases the storage. It is meant
// for process shutdown only.
func (h *Handle) Close() error {
	h.hub.Close()
	var errs []error
	if h.bus != nil {
		errs = append(errs, h.bus.Close())
	}
	errs = append(errs, h.engine.Close())
	return errors.Join(errs...)
}

// OpenFunc builds a Handle from a Config.
type OpenFunc func(ctx context.Context, cfg Config) (*Handle, error)

// Open builds the production store: a SQL engine whose writes notify a live
// hub, optionally relayed through Redis.
func Open(ctx context.Context, cfg Config) (*Handle, error) {
	hub := live.NewHub(cfg.Log, cfg.Metrics)

	var notifier item.ChangeNotifier = hub
	var bus *redisbus.Bus
	if cfg.RedisAddr != "" {
		var err error
		bus, err = redisbus.New(ctx, redisbus.Config{
			Addr:    cfg.RedisAddr,
			Channel: cfg.RedisChannel,
			Log:     cfg.Log,
		}, hub)
		if err != nil {
			return nil, fmt.Errorf("change bus: %w", err)
		}
		notifier = bus
	}

	engine, err := sqlstore.Open(ctx, sqlstore.Config{
		Driver:   cfg.Driver,
		DSN:      cfg.StorageLocation,
		Notifier: notifier,
		Log:      cfg.Log,
		Metrics:  cfg.Metrics,
	})
	if err != nil {
		if bus != nil {
			bus.Close()
		}
		return nil, fmt.Errorf("item store: %w", err)
	}

	return &Handle{engine: engine, hub: hub, bus: bus}, nil
}

// Manager owns one lazily constructed Handle.
type Manager struct {
	open OpenFunc

	instance atomic.Pointer[Handle]
	mu       sync.Mutex // held while constructing
}

// NewManager returns a Manager constructing its Handle with open.
func NewManager(open OpenFunc) *Manager {
	return &Manager{open: open}
}

// GetInstance returns the Handle, constructing it on first use. When
// construction fails the error wraps ErrConstruction and the next call tries
// again. Callers waiting on a failed attempt make their own attempt in turn.
func (m *Manager) GetInstance(ctx context.Context, cfg Config) (*Handle, error) {
	if h := m.instance.Load(); h != nil {
		m.warnMismatch(ctx, h, cfg)
		return h, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if h := m.instance.Load(); h != nil {
		m.warnMismatch(ctx, h, cfg)
		return h, nil
	}

	h, err := m.open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConstruction, err)
	}
	if h == nil {
		return nil, fmt.Errorf("%w: constructor returned no handle", ErrConstruction)
	}
	h.cfg = cfg
	m.instance.Store(h)

	cfg.Log.Info(ctx, "store constructed", "location", cfg.StorageLocation, "driver", cfg.Driver)
	return h, nil
}

func (m *Manager) warnMismatch(ctx context.Context, h *Handle, cfg Config) {
	if cfg.sameStorage(h.cfg) {
		return
	}
	h.cfg.Log.Warn(ctx, "store already constructed, ignoring config",
		"location", h.cfg.StorageLocation, "requested", cfg.StorageLocation)
}

var defaultManager = NewManager(Open)

// GetInstance returns the process-wide Handle, constructing it from cfg on
// first use.
func GetInstance(ctx context.Context, cfg Config) (*Handle, error) {
	return defaultManager.GetInstance(ctx, cfg)
}
