// Package memory implements an in-memory item engine. It honours the same
// contract as the durable engine and serves as its test double.
package memory

import (
	"context"
	"sync"

	"inventory/pkg/item"
)

// Engine provides an in-memory implementation of item.Engine.
type Engine struct {
	mu       sync.RWMutex
	items    map[int64]item.Item
	closed   bool
	notifier item.ChangeNotifier
}

// New creates a new in-memory engine. notifier may be nil.
func New(notifier item.ChangeNotifier) *Engine {
	return &Engine{items: make(map[int64]item.Item), notifier: notifier}
}

// Insert stores the item unless its id is taken, in which case the existing
// item is returned.
func (e *Engine) Insert(ctx context.Context, it item.Item) (item.Item, bool, error) {
	if err := it.Validate(); err != nil {
		return item.Item{}, false, err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return item.Item{}, false, item.ErrClosed
	}
	if it.ID == 0 {
		it.ID = e.nextID()
	}
	if existing, ok := e.items[it.ID]; ok {
		e.mu.Unlock()
		return existing, false, nil
	}
	e.items[it.ID] = it
	e.mu.Unlock()

	e.notify()
	return it, true, nil
}

// Update replaces an existing item.
func (e *Engine) Update(ctx context.Context, it item.Item) (bool, error) {
	if err := it.Validate(); err != nil {
		return false, err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false, item.ErrClosed
	}
	if _, ok := e.items[it.ID]; !ok {
		e.mu.Unlock()
		return false, nil
	}
	e.items[it.ID] = it
	e.mu.Unlock()

	e.notify()
	return true, nil
}

// Delete removes an item by ID.
func (e *Engine) Delete(ctx context.Context, id int64) (bool, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false, item.ErrClosed
	}
	if _, ok := e.items[id]; !ok {
		e.mu.Unlock()
		return false, nil
	}
	delete(e.items, id)
	e.mu.Unlock()

	e.notify()
	return true, nil
}

// Get retrieves an item by ID.
func (e *Engine) Get(ctx context.Context, id int64) (item.Lookup, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return item.Lookup{}, item.ErrClosed
	}
	it, ok := e.items[id]
	return item.Lookup{Item: it, Found: ok}, nil
}

// List returns all items ordered by name, then id.
func (e *Engine) List(ctx context.Context) ([]item.Item, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, item.ErrClosed
	}
	out := make([]item.Item, 0, len(e.items))
	for _, it := range e.items {
		out = append(out, it)
	}
	item.SortItems(out)
	return out, nil
}

// Close marks the engine closed.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *Engine) nextID() int64 {
	var max int64
	for id := range e.items {
		if id > max {
			max = id
		}
	}
	return max + 1
}

func (e *Engine) notify() {
	if e.notifier != nil {
		e.notifier.Notify()
	}
}
