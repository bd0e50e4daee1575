package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var _ Transport = (*RedisTransport)(nil)

// redisHealthCheck is how long a subscription may stay silent before it is pinged.
const redisHealthCheck = 15 * time.Second

// RedisTransport carries payment events over Redis Pub/Sub, one channel per
// transaction id.
type RedisTransport struct {
	client         *redis.Client
	connectTimeout time.Duration
	logger         zerolog.Logger
}

func NewRedisTransport(client *redis.Client, connectTimeout time.Duration, logger zerolog.Logger) *RedisTransport {
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	return &RedisTransport{
		client:         client,
		connectTimeout: connectTimeout,
		logger:         logger.With().Str("component", "redis_channel").Logger(),
	}
}

func (t *RedisTransport) NewChannel() TransactionChannel {
	return &RedisChannel{
		client:         t.client,
		connectTimeout: t.connectTimeout,
		healthCheck:    redisHealthCheck,
		logger:         t.logger,
	}
}

func (t *RedisTransport) Publish(ctx context.Context, transactionID string, payload any) error {
	msg, err := setPrepareMessage(payload)
	if err != nil {
		return err
	}
	if err := t.client.Publish(ctx, transactionID, msg).Err(); err != nil {
		return fmt.Errorf("t.client.Publish(channel: %v): %w", transactionID, err)
	}
	return nil
}

type RedisChannel struct {
	client         *redis.Client
	connectTimeout time.Duration
	healthCheck    time.Duration
	logger         zerolog.Logger

	completed handlerSet[PaymentCompletedEvent]
	lost      handlerSet[error]

	mu     sync.Mutex
	pubsub *redis.PubSub
	closed bool
}

func (c *RedisChannel) Subscribe(transactionID string) error {
	if transactionID == "" {
		return ErrMissingTransactionID
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	previous := c.pubsub
	c.pubsub = nil
	c.mu.Unlock()

	if previous != nil {
		_ = previous.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.connectTimeout)
	defer cancel()

	ps := c.client.Subscribe(ctx, transactionID)
	// Receive blocks until the subscription is confirmed by the server.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("redis subscribe %s: %w", transactionID, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = ps.Close()
		return ErrChannelClosed
	}
	c.pubsub = ps
	c.mu.Unlock()

	go c.listen(ps, transactionID)
	return nil
}

func (c *RedisChannel) OnPaymentCompleted(h PaymentCompletedHandler) func() {
	return c.completed.add(h)
}

func (c *RedisChannel) OnConnectionLost(h ConnectionLostHandler) func() {
	return c.lost.add(h)
}

func (c *RedisChannel) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	ps := c.pubsub
	c.pubsub = nil
	c.mu.Unlock()

	c.completed.clear()
	c.lost.clear()
	if ps != nil {
		if err := ps.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("closing redis subscription")
		}
	}
}

func (c *RedisChannel) listen(ps *redis.PubSub, transactionID string) {
	logger := c.logger.With().Str("transaction_id", transactionID).Logger()
	ctx := context.Background()

	// ps.Channel() would reconnect silently and drop what was published in
	// between, so the loop reads directly and reports transport errors.
	for {
		msg, err := ps.ReceiveTimeout(ctx, c.healthCheck)
		if err != nil {
			if !c.current(ps) {
				return
			}
			if isTimeout(err) {
				if err = ps.Ping(ctx); err == nil {
					continue
				}
			}
			c.connectionLost(ps, logger, err)
			return
		}

		switch m := msg.(type) {
		case *redis.Message:
			emitPaymentCompleted(logger, []byte(m.Payload), &c.completed)
		case *redis.Pong, *redis.Subscription:
		default:
			logger.Debug().Msgf("ignoring pubsub reply %T", m)
		}
	}
}

// current reports whether ps is still the live subscription of c.
func (c *RedisChannel) current(ps *redis.PubSub) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pubsub == ps && !c.closed
}

func (c *RedisChannel) connectionLost(ps *redis.PubSub, logger zerolog.Logger, cause error) {
	c.mu.Lock()
	current := c.pubsub == ps && !c.closed
	if current {
		c.pubsub = nil
	}
	c.mu.Unlock()
	if !current {
		return
	}

	_ = ps.Close()
	logger.Warn().Err(cause).Msg("redis subscription lost")
	c.lost.emit(fmt.Errorf("%w: %v", ErrConnectionLost, cause))
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
