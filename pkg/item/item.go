// Package item defines the inventory record and the contracts used to store
// and observe it.
package item

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"inventory/pkg/live"
)

// Item represents one inventory record.
type Item struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// Lookup is the result of a point query. Found is false when no record
// exists for the requested id; Item is then the zero value.
type Lookup struct {
	Item  Item
	Found bool
}

var (
	// ErrStorageIO indicates the backing storage failed to complete a read or
	// a write.
	ErrStorageIO = errors.New("storage i/o failure")

	// ErrInvalidItem indicates an item carries a negative or non-finite price,
	// or a negative quantity.
	ErrInvalidItem = errors.New("invalid item")

	// ErrClosed is returned by engines after Close.
	ErrClosed = errors.New("engine closed")
)

// Validate checks the field invariants. The name is not checked.
func (it Item) Validate() error {
	if math.IsNaN(it.Price) || math.IsInf(it.Price, 0) {
		return fmt.Errorf("%w: non-finite price %v", ErrInvalidItem, it.Price)
	}
	if it.Price < 0 {
		return fmt.Errorf("%w: negative price %v", ErrInvalidItem, it.Price)
	}
	if it.Quantity < 0 {
		return fmt.Errorf("%w: negative quantity %d", ErrInvalidItem, it.Quantity)
	}
	return nil
}

// Less orders items by name, then by id.
func Less(a, b Item) bool {
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.ID < b.ID
}

// SortItems sorts items in place using Less.
func SortItems(items []Item) {
	sort.Slice(items, func(i, j int) bool { return Less(items[i], items[j]) })
}

// EqualLists reports whether two item lists hold the same records in the
// same order.
func EqualLists(a, b []Item) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// EqualLookups reports whether two point query results are identical.
func EqualLookups(a, b Lookup) bool {
	return a == b
}

// ChangeNotifier is told about every committed write that changed state.
// Notify must not block.
type ChangeNotifier interface {
	Notify()
}

// Engine is the storage contract for items.
//
// Insert ignores conflicts: when a record with the same id exists it is left
// untouched, nothing is reported as an error and inserted is false. An item
// with a zero id gets the next free id assigned. The returned item is the
// record stored under the id: the new one when inserted is true, the existing
// one otherwise.
// Update and Delete report whether a record was changed; an absent id is not
// an error.
type Engine interface {
	Insert(ctx context.Context, it Item) (stored Item, inserted bool, err error)
	Update(ctx context.Context, it Item) (bool, error)
	Delete(ctx context.Context, id int64) (bool, error)
	Get(ctx context.Context, id int64) (Lookup, error)
	List(ctx context.Context) ([]Item, error)
	Close() error
}

// Repository defines the entity-level operations offered to callers.
type Repository interface {
	AddItem(ctx context.Context, it Item) (int64, error)
	UpdateItem(ctx context.Context, it Item) error
	RemoveItem(ctx context.Context, it Item) error
	ObserveItem(ctx context.Context, id int64) (*live.Subscription[Lookup], error)
	ObserveAllItems(ctx context.Context) (*live.Subscription[[]Item], error)
}
