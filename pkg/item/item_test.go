package item

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	require.NoError(t, Item{ID: 1, Name: "", Price: 0, Quantity: 0}.Validate())
	require.ErrorIs(t, Item{ID: 1, Price: -1}.Validate(), ErrInvalidItem)
	require.ErrorIs(t, Item{ID: 1, Quantity: -3}.Validate(), ErrInvalidItem)
	require.ErrorIs(t, Item{ID: 1, Price: math.NaN()}.Validate(), ErrInvalidItem)
	require.ErrorIs(t, Item{ID: 1, Price: math.Inf(1)}.Validate(), ErrInvalidItem)
	require.ErrorIs(t, Item{ID: 1, Price: math.Inf(-1)}.Validate(), ErrInvalidItem)
}

func TestSortItems(t *testing.T) {
	items := []Item{
		{ID: 3, Name: "bananas"},
		{ID: 2, Name: "Bananas"},
		{ID: 9, Name: "Apples"},
		{ID: 1, Name: "Apples"},
	}
	SortItems(items)

	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	// Upper case sorts before lower case in byte order.
	assert.Equal(t, []int64{1, 9, 2, 3}, ids)
}

func TestEqualLists(t *testing.T) {
	a := []Item{{ID: 1, Name: "Apples", Price: 10, Quantity: 20}}
	b := []Item{{ID: 1, Name: "Apples", Price: 10, Quantity: 20}}
	assert.True(t, EqualLists(a, b))
	assert.True(t, EqualLists(nil, []Item{}))

	b[0].Quantity = 21
	assert.False(t, EqualLists(a, b))
	assert.False(t, EqualLists(a, nil))
}

func TestEqualLookups(t *testing.T) {
	assert.True(t, EqualLookups(Lookup{}, Lookup{}))
	assert.False(t, EqualLookups(Lookup{}, Lookup{Item: Item{ID: 1}, Found: true}))
}
