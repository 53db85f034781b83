// Package live implements queries that re-deliver their result whenever the
// backing store reports a committed change.
//
// Writers call Hub.Notify after every commit that changed state. Each
// Subscription owns one goroutine which, on every notification, re-runs its
// query and hands the result to the subscriber through an unbuffered channel.
//
// Delivery policy: notifications are coalesced and results are distinct
// until changed. A subscriber that is slow to receive causes pending
// notifications to fold into a single re-evaluation, and a result equal to
// the last delivered one is not delivered again. Every committed write is
// therefore followed by at least one delivery reflecting a state at least as
// recent as that write, unless the query result did not change.
package live

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"inventory/pkg/logger"
	"inventory/pkg/metrics"
)

// ErrHubClosed is returned when subscribing to a closed hub.
var ErrHubClosed = errors.New("live: hub closed")

type entry struct {
	dirty  chan struct{}
	cancel context.CancelFunc
}

// Hub fans change notifications out to every active subscription.
type Hub struct {
	log     *logger.Logger
	metrics *metrics.Collector

	subs *xsync.MapOf[uuid.UUID, entry]

	mu     sync.Mutex // guards closed and wg.Add
	closed bool
	wg     sync.WaitGroup
}

// NewHub creates an empty hub. log and m may be nil.
func NewHub(log *logger.Logger, m *metrics.Collector) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		log:     log,
		metrics: m,
		subs:    xsync.NewMapOf[uuid.UUID, entry](),
	}
}

// Notify marks every subscription as stale. It never blocks.
func (h *Hub) Notify() {
	h.subs.Range(func(_ uuid.UUID, e entry) bool {
		select {
		case e.dirty <- struct{}{}:
		default:
		}
		return true
	})
}

// Len returns the number of active subscriptions.
func (h *Hub) Len() int {
	return h.subs.Size()
}

// Close cancels every subscription and waits for their goroutines to exit.
// Subscribing afterwards fails with ErrHubClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	h.subs.Range(func(_ uuid.UUID, e entry) bool {
		e.cancel()
		return true
	})
	h.wg.Wait()
}

// Subscription is a live query. Results arrive on C in store order; C is
// closed once the subscription ends.
type Subscription[T any] struct {
	id    uuid.UUID
	hub   *Hub
	query func(context.Context) (T, error)
	equal func(a, b T) bool

	ctx    context.Context
	cancel context.CancelFunc
	dirty  chan struct{}
	out    chan T
	done   chan struct{}
}

// Subscribe starts a live query. The query runs once before Subscribe returns
// and its result is the first value delivered; an error from that first run
// is returned and no subscription is created. Later failures are logged and
// the last good result is kept.
//
// equal decides whether a new result differs from the last delivered one; a
// nil equal delivers every re-evaluation. The subscription ends when ctx is
// done, when Cancel is called, or when the hub is closed.
func Subscribe[T any](ctx context.Context, h *Hub, query func(context.Context) (T, error), equal func(a, b T) bool) (*Subscription[T], error) {
	sctx, cancel := context.WithCancel(ctx)
	s := &Subscription[T]{
		id:     uuid.New(),
		hub:    h,
		query:  query,
		equal:  equal,
		ctx:    sctx,
		cancel: cancel,
		dirty:  make(chan struct{}, 1),
		out:    make(chan T),
		done:   make(chan struct{}),
	}

	// Register before the first read so that a write committing in between
	// leaves the subscription dirty instead of going unseen.
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		cancel()
		return nil, ErrHubClosed
	}
	h.wg.Add(1)
	h.subs.Store(s.id, entry{dirty: s.dirty, cancel: cancel})
	h.mu.Unlock()

	first, err := query(sctx)
	if err != nil {
		s.abort()
		return nil, fmt.Errorf("live: initial query: %w", err)
	}

	h.metrics.SubscriptionOpened()
	go s.run(first)

	return s, nil
}

// ID returns the subscription identifier.
func (s *Subscription[T]) ID() uuid.UUID {
	return s.id
}

// C returns the delivery channel.
func (s *Subscription[T]) C() <-chan T {
	return s.out
}

// Done is closed once the subscription has fully stopped.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

// Cancel stops the subscription and waits until no further delivery can
// happen. It is safe to call more than once and concurrently with a pending
// delivery.
func (s *Subscription[T]) Cancel() {
	s.cancel()
	<-s.done
}

func (s *Subscription[T]) abort() {
	s.hub.subs.Delete(s.id)
	s.cancel()
	close(s.out)
	close(s.done)
	s.hub.wg.Done()
}

func (s *Subscription[T]) run(value T) {
	defer s.finish()

	for {
		if !s.deliver(value) {
			return
		}
		next, ok := s.awaitChange(value)
		if !ok {
			return
		}
		value = next
	}
}

func (s *Subscription[T]) deliver(value T) bool {
	select {
	case s.out <- value:
		s.hub.metrics.Delivered()
		return true
	case <-s.ctx.Done():
		return false
	}
}

// awaitChange blocks until a notification yields a result different from
// last.
func (s *Subscription[T]) awaitChange(last T) (T, bool) {
	var zero T
	for {
		select {
		case <-s.dirty:
		case <-s.ctx.Done():
			return zero, false
		}

		next, err := s.query(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return zero, false
			}
			s.hub.metrics.EvalFailed()
			s.hub.log.Warn(s.ctx, "live query re-evaluation failed, keeping last result",
				"subscription", s.id.String(), "error", err)
			continue
		}

		if s.equal != nil && s.equal(last, next) {
			continue
		}
		return next, true
	}
}

func (s *Subscription[T]) finish() {
	s.hub.subs.Delete(s.id)
	s.cancel()
	close(s.out)
	s.hub.metrics.SubscriptionClosed()
	close(s.done)
	s.hub.wg.Done()
}
