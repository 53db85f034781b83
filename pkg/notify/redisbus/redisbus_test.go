package redisbus

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inventory/pkg/item/itemtest"
)

func TestHandleIgnoresOwnOrigin(t *testing.T) {
	rec := &itemtest.Recorder{}
	b := &Bus{origin: "self", local: rec, pending: make(chan struct{}, 1)}

	assert.False(t, b.handle("self"))
	assert.EqualValues(t, 0, rec.Count())

	assert.True(t, b.handle("other"))
	assert.EqualValues(t, 1, rec.Count())
}

func TestNotifyIsLocalFirstAndCoalesced(t *testing.T) {
	rec := &itemtest.Recorder{}
	b := &Bus{origin: "self", local: rec, pending: make(chan struct{}, 1)}

	for i := 0; i < 5; i++ {
		b.Notify()
	}
	assert.EqualValues(t, 5, rec.Count())
	assert.Len(t, b.pending, 1)
}

// TestBusRelaysBetweenProcesses needs a Redis server, for example
// INVENTORY_TEST_REDIS_ADDR=localhost:6379
func TestBusRelaysBetweenProcesses(t *testing.T) {
	addr := os.Getenv("INVENTORY_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("INVENTORY_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	channel := "inventory:test:" + t.Name()

	recA, recB := &itemtest.Recorder{}, &itemtest.Recorder{}
	a, err := New(ctx, Config{Addr: addr, Channel: channel}, recA)
	require.NoError(t, err)
	defer a.Close()
	b, err := New(ctx, Config{Addr: addr, Channel: channel}, recB)
	require.NoError(t, err)
	defer b.Close()

	a.Notify()

	require.Eventually(t, func() bool { return recB.Count() == 1 }, 5*time.Second, 10*time.Millisecond)
	// a saw its own change exactly once, locally.
	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, 1, recA.Count())
}
