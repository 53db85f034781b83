package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.Write("insert", true)
	c.Write("insert", false)
	c.Write("insert", false)
	c.ObserveOp("insert", time.Millisecond, nil)
	c.ObserveOp("insert", time.Millisecond, errors.New("boom"))
	c.SubscriptionOpened()
	c.SubscriptionOpened()
	c.SubscriptionClosed()
	c.Delivered()
	c.EvalFailed()

	assert.Equal(t, 1.0, testutil.ToFloat64(c.writes.WithLabelValues("insert", "changed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.writes.WithLabelValues("insert", "noop")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.subscriptions))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.deliveries))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.evalFailures))

	n, err := testutil.GatherAndCount(reg, "inventory_operation_latency_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	c.Write("delete", true)
	c.ObserveOp("delete", time.Second, nil)
	c.SubscriptionOpened()
	c.SubscriptionClosed()
	c.Delivered()
	c.EvalFailed()
}
