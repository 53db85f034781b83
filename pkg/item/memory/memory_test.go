package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"inventory/pkg/item"
	"inventory/pkg/item/itemtest"
)

func TestEngine(t *testing.T) {
	itemtest.RunEngineTests(t, "Memory", func(t *testing.T, n item.ChangeNotifier) item.Engine {
		e := New(n)
		t.Cleanup(func() { _ = e.Close() })
		return e
	})
}

func TestListReturnsCopies(t *testing.T) {
	ctx := context.Background()
	e := New(nil)
	_, _, err := e.Insert(ctx, item.Item{ID: 1, Name: "Widget", Price: 1, Quantity: 2})
	require.NoError(t, err)

	list, err := e.List(ctx)
	require.NoError(t, err)
	list[0].Name = "Gadget"

	got, err := e.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "Widget", got.Item.Name)
}
