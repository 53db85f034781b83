// Package redisbus relays "store changed" signals between processes sharing
// one database through Redis pub/sub. Only invalidation signals travel over
// the bus, never item data.
package redisbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"inventory/pkg/item"
	"inventory/pkg/logger"
)

// DefaultChannel is used when Config.Channel is empty.
const DefaultChannel = "inventory:changed"

// Config defines the Redis connection of a Bus.
type Config struct {
	Addr    string
	Channel string
	Log     *logger.Logger
}

// Bus implements item.ChangeNotifier. Local changes reach the local notifier
// at once and are published to other processes in the background; changes
// published by other processes are forwarded to the local notifier.
type Bus struct {
	client  *redis.Client
	channel string
	origin  string
	local   item.ChangeNotifier
	log     *logger.Logger

	pending chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New connects to Redis and starts relaying.
func New(ctx context.Context, cfg Config, local item.ChangeNotifier) (*Bus, error) {
	channel := cfg.Channel
	if channel == "" {
		channel = DefaultChannel
	}
	log := cfg.Log
	if log == nil {
		log = logger.Nop()
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	pubsub := client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		client.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		local:   local,
		log:     log,
		pending: make(chan struct{}, 1),
		cancel:  cancel,
	}

	b.wg.Add(2)
	go b.publishLoop(runCtx)
	go b.listenLoop(runCtx, pubsub)

	log.Info(ctx, "change bus connected", "addr", cfg.Addr, "channel", channel, "origin", b.origin)
	return b, nil
}

// Notify implements item.ChangeNotifier. It never blocks; bursts of local
// changes are published as one message.
func (b *Bus) Notify() {
	b.local.Notify()
	select {
	case b.pending <- struct{}{}:
	default:
	}
}

// Close stops relaying and closes the Redis client.
func (b *Bus) Close() error {
	b.cancel()
	b.wg.Wait()
	return b.client.Close()
}

func (b *Bus) publishLoop(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.pending:
			if err := b.client.Publish(ctx, b.channel, b.origin).Err(); err != nil && ctx.Err() == nil {
				b.log.Warn(ctx, "publishing change failed", "channel", b.channel, "error", err)
			}
		}
	}
}

func (b *Bus) listenLoop(ctx context.Context, pubsub *redis.PubSub) {
	defer b.wg.Done()
	defer pubsub.Close()

	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			b.handle(msg.Payload)
		}
	}
}

// handle forwards a message published by another process. Messages carrying
// this bus's own origin are ignored since the local notifier already saw
// the change.
func (b *Bus) handle(origin string) bool {
	if origin == b.origin {
		return false
	}
	b.local.Notify()
	return true
}
