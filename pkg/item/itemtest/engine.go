// Package itemtest provides a conformance suite for item.Engine
// implementations.
package itemtest

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"inventory/pkg/item"
)

// EngineFactory creates an empty engine reporting changes to n. The factory
// is responsible for cleaning the engine up when the test ends.
type EngineFactory func(t *testing.T, n item.ChangeNotifier) item.Engine

// Recorder counts change notifications.
type Recorder struct {
	n atomic.Int64
}

// Notify implements item.ChangeNotifier.
func (r *Recorder) Notify() { r.n.Add(1) }

// Count returns the number of notifications seen.
func (r *Recorder) Count() int64 { return r.n.Load() }

var (
	apples  = item.Item{ID: 1, Name: "Apples", Price: 10.0, Quantity: 20}
	bananas = item.Item{ID: 2, Name: "Bananas", Price: 15.0, Quantity: 97}
)

// RunEngineTests runs the conformance suite against an engine implementation.
func RunEngineTests(t *testing.T, name string, factory EngineFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("InsertAndListOrdered", func(t *testing.T) { testInsertAndList(t, factory) })
		t.Run("InsertIgnoresConflict", func(t *testing.T) { testInsertIgnoresConflict(t, factory) })
		t.Run("InsertAssignsID", func(t *testing.T) { testInsertAssignsID(t, factory) })
		t.Run("Update", func(t *testing.T) { testUpdate(t, factory) })
		t.Run("UpdateAbsent", func(t *testing.T) { testUpdateAbsent(t, factory) })
		t.Run("Delete", func(t *testing.T) { testDelete(t, factory) })
		t.Run("DeleteTwice", func(t *testing.T) { testDeleteTwice(t, factory) })
		t.Run("GetAbsent", func(t *testing.T) { testGetAbsent(t, factory) })
		t.Run("Ordering", func(t *testing.T) { testOrdering(t, factory) })
		t.Run("Validation", func(t *testing.T) { testValidation(t, factory) })
		t.Run("LargeQuantity", func(t *testing.T) { testLargeQuantity(t, factory) })
		t.Run("ConcurrentInserts", func(t *testing.T) { testConcurrentInserts(t, factory) })
		t.Run("ConcurrentAssignedIDs", func(t *testing.T) { testConcurrentAssignedIDs(t, factory) })
		t.Run("Closed", func(t *testing.T) { testClosed(t, factory) })
	})
}

func mustInsert(t *testing.T, e item.Engine, items ...item.Item) {
	t.Helper()
	for _, it := range items {
		_, _, err := e.Insert(context.Background(), it)
		require.NoError(t, err)
	}
}

func mustList(t *testing.T, e item.Engine) []item.Item {
	t.Helper()
	all, err := e.List(context.Background())
	require.NoError(t, err)
	require.NotNil(t, all)
	return all
}

func testInsertAndList(t *testing.T, factory EngineFactory) {
	rec := &Recorder{}
	e := factory(t, rec)

	// Inserted out of order, listed by name.
	mustInsert(t, e, bananas, apples)

	assert.Equal(t, []item.Item{apples, bananas}, mustList(t, e))
	assert.EqualValues(t, 2, rec.Count())
}

func testInsertIgnoresConflict(t *testing.T, factory EngineFactory) {
	ctx := context.Background()
	rec := &Recorder{}
	e := factory(t, rec)

	stored, inserted, err := e.Insert(ctx, apples)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, apples, stored)

	dup := item.Item{ID: 1, Name: "Avocado", Price: 99, Quantity: 1}
	stored, inserted, err = e.Insert(ctx, dup)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, apples, stored, "a conflicting insert returns the existing record")

	got, err := e.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, item.Lookup{Item: apples, Found: true}, got)
	assert.Len(t, mustList(t, e), 1)
	assert.EqualValues(t, 1, rec.Count(), "an ignored insert must not notify")
}

func testInsertAssignsID(t *testing.T, factory EngineFactory) {
	ctx := context.Background()
	e := factory(t, nil)

	first, inserted, err := e.Insert(ctx, item.Item{Name: "Cherries", Price: 3, Quantity: 5})
	require.NoError(t, err)
	require.True(t, inserted)
	assert.EqualValues(t, 1, first.ID)

	mustInsert(t, e, item.Item{ID: 10, Name: "Dates", Price: 1, Quantity: 1})

	next, inserted, err := e.Insert(ctx, item.Item{Name: "Figs", Price: 2, Quantity: 2})
	require.NoError(t, err)
	require.True(t, inserted)
	assert.EqualValues(t, 11, next.ID)

	got, err := e.Get(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, "Figs", got.Item.Name)
}

func testUpdate(t *testing.T, factory EngineFactory) {
	ctx := context.Background()
	rec := &Recorder{}
	e := factory(t, rec)
	mustInsert(t, e, apples, bananas)

	updated := item.Item{ID: 1, Name: "Apples", Price: 15.0, Quantity: 25}
	changed, err := e.Update(ctx, updated)
	require.NoError(t, err)
	assert.True(t, changed)

	assert.Equal(t, []item.Item{updated, bananas}, mustList(t, e))
	assert.EqualValues(t, 3, rec.Count())

	// The name is replaced too, which moves the record in the ordering.
	renamed := item.Item{ID: 1, Name: "Zucchini", Price: 1, Quantity: 1}
	_, err = e.Update(ctx, renamed)
	require.NoError(t, err)
	assert.Equal(t, []item.Item{bananas, renamed}, mustList(t, e))
}

func testUpdateAbsent(t *testing.T, factory EngineFactory) {
	rec := &Recorder{}
	e := factory(t, rec)
	mustInsert(t, e, apples)

	changed, err := e.Update(context.Background(), item.Item{ID: 42, Name: "Ghost", Price: 1, Quantity: 1})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, []item.Item{apples}, mustList(t, e))
	assert.EqualValues(t, 1, rec.Count())
}

func testDelete(t *testing.T, factory EngineFactory) {
	ctx := context.Background()
	e := factory(t, nil)
	mustInsert(t, e, apples, bananas)

	for _, id := range []int64{1, 2} {
		deleted, err := e.Delete(ctx, id)
		require.NoError(t, err)
		assert.True(t, deleted)
	}
	assert.Empty(t, mustList(t, e))
}

func testDeleteTwice(t *testing.T, factory EngineFactory) {
	ctx := context.Background()
	rec := &Recorder{}
	e := factory(t, rec)
	mustInsert(t, e, apples, bananas)

	deleted, err := e.Delete(ctx, 1)
	require.NoError(t, err)
	assert.True(t, deleted)
	once := mustList(t, e)

	deleted, err = e.Delete(ctx, 1)
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Equal(t, once, mustList(t, e))
	assert.EqualValues(t, 3, rec.Count())
}

func testGetAbsent(t *testing.T, factory EngineFactory) {
	e := factory(t, nil)

	got, err := e.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, got.Found)
	assert.Equal(t, item.Item{}, got.Item)
}

func testOrdering(t *testing.T, factory EngineFactory) {
	e := factory(t, nil)
	mustInsert(t, e,
		item.Item{ID: 5, Name: "apples"},
		item.Item{ID: 4, Name: "Bananas"},
		item.Item{ID: 3, Name: "Apples"},
		item.Item{ID: 2, Name: "Bananas"},
		item.Item{ID: 1, Name: "Cherries"},
	)

	var ids []int64
	for _, it := range mustList(t, e) {
		ids = append(ids, it.ID)
	}
	// Byte order: upper case before lower case, ties by id.
	assert.Equal(t, []int64{3, 2, 4, 1, 5}, ids)
}

func testValidation(t *testing.T, factory EngineFactory) {
	ctx := context.Background()
	rec := &Recorder{}
	e := factory(t, rec)
	mustInsert(t, e, apples)

	_, _, err := e.Insert(ctx, item.Item{ID: 7, Name: "Bad", Price: -1})
	require.ErrorIs(t, err, item.ErrInvalidItem)

	_, _, err = e.Insert(ctx, item.Item{ID: 8, Name: "NaN", Price: math.NaN()})
	require.ErrorIs(t, err, item.ErrInvalidItem)

	_, _, err = e.Insert(ctx, item.Item{ID: 9, Name: "Inf", Price: math.Inf(1)})
	require.ErrorIs(t, err, item.ErrInvalidItem)

	_, err = e.Update(ctx, item.Item{ID: 1, Name: "Apples", Quantity: -1})
	require.ErrorIs(t, err, item.ErrInvalidItem)

	_, err = e.Update(ctx, item.Item{ID: 1, Name: "Apples", Price: math.NaN()})
	require.ErrorIs(t, err, item.ErrInvalidItem)

	assert.Equal(t, []item.Item{apples}, mustList(t, e))
	assert.EqualValues(t, 1, rec.Count())
}

func testLargeQuantity(t *testing.T, factory EngineFactory) {
	ctx := context.Background()
	e := factory(t, nil)

	big := item.Item{ID: 1, Name: "Screws", Price: 0.01, Quantity: 1 << 40}
	mustInsert(t, e, big)

	got, err := e.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, item.Lookup{Item: big, Found: true}, got)

	big.Quantity = 1<<40 + 1
	changed, err := e.Update(ctx, big)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []item.Item{big}, mustList(t, e))
}

func testConcurrentInserts(t *testing.T, factory EngineFactory) {
	const writers, ids = 8, 20
	e := factory(t, nil)

	var inserted atomic.Int64
	var g errgroup.Group
	for w := 0; w < writers; w++ {
		g.Go(func() error {
			for id := int64(1); id <= ids; id++ {
				it := item.Item{ID: id, Name: fmt.Sprintf("writer-%d", w), Price: 1, Quantity: w}
				_, ok, err := e.Insert(context.Background(), it)
				if err != nil {
					return err
				}
				if ok {
					inserted.Add(1)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	all := mustList(t, e)
	assert.Len(t, all, ids)
	assert.EqualValues(t, ids, inserted.Load())

	seen := make(map[int64]bool)
	for _, it := range all {
		assert.False(t, seen[it.ID], "duplicate id %d", it.ID)
		seen[it.ID] = true
	}
}

func testConcurrentAssignedIDs(t *testing.T, factory EngineFactory) {
	const writers, perWriter = 8, 10
	e := factory(t, nil)

	var mu sync.Mutex
	seen := make(map[int64]bool)
	var g errgroup.Group
	for w := 0; w < writers; w++ {
		g.Go(func() error {
			for i := 0; i < perWriter; i++ {
				stored, ok, err := e.Insert(context.Background(), item.Item{Name: "auto", Price: 1, Quantity: 1})
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("assigned id %d was not inserted", stored.ID)
				}
				mu.Lock()
				seen[stored.ID] = true
				mu.Unlock()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Len(t, seen, writers*perWriter)
	assert.Len(t, mustList(t, e), writers*perWriter)
}

func testClosed(t *testing.T, factory EngineFactory) {
	ctx := context.Background()
	e := factory(t, nil)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	_, _, err := e.Insert(ctx, apples)
	require.ErrorIs(t, err, item.ErrClosed)
	_, err = e.Update(ctx, apples)
	require.ErrorIs(t, err, item.ErrClosed)
	_, err = e.Delete(ctx, 1)
	require.ErrorIs(t, err, item.ErrClosed)
	_, err = e.Get(ctx, 1)
	require.ErrorIs(t, err, item.ErrClosed)
	_, err = e.List(ctx)
	require.ErrorIs(t, err, item.ErrClosed)
}
