// Package offline implements item.Repository on top of the local store.
package offline

import (
	"context"

	"inventory/pkg/item"
	"inventory/pkg/live"
	"inventory/pkg/store"
)

// Repository delegates to the engine and hub of a store handle.
type Repository struct {
	engine item.Engine
	hub    *live.Hub
}

// New creates a repository backed by h.
func New(h *store.Handle) *Repository {
	return &Repository{engine: h.Engine(), hub: h.Hub()}
}

// AddItem inserts the item and returns its id. An existing id is left
// untouched and returned without error.
func (r *Repository) AddItem(ctx context.Context, it item.Item) (int64, error) {
	stored, _, err := r.engine.Insert(ctx, it)
	if err != nil {
		return 0, err
	}
	return stored.ID, nil
}

// UpdateItem replaces the item with the same id, if any.
func (r *Repository) UpdateItem(ctx context.Context, it item.Item) error {
	_, err := r.engine.Update(ctx, it)
	return err
}

// RemoveItem deletes the item with the same id, if any.
func (r *Repository) RemoveItem(ctx context.Context, it item.Item) error {
	_, err := r.engine.Delete(ctx, it.ID)
	return err
}

// ObserveItem streams the item with the given id, starting with its current
// state.
func (r *Repository) ObserveItem(ctx context.Context, id int64) (*live.Subscription[item.Lookup], error) {
	query := func(ctx context.Context) (item.Lookup, error) {
		return r.engine.Get(ctx, id)
	}
	return live.Subscribe(ctx, r.hub, query, item.EqualLookups)
}

// ObserveAllItems streams every item ordered by name, starting with the
// current contents.
func (r *Repository) ObserveAllItems(ctx context.Context) (*live.Subscription[[]item.Item], error) {
	return live.Subscribe(ctx, r.hub, r.engine.List, item.EqualLists)
}

var _ item.Repository = (*Repository)(nil)
