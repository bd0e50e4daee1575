package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

var _ Transport = (*LocalHub)(nil)

// LocalHub is an in-process transport for development and tests.
type LocalHub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*LocalChannel]struct{}
	logger zerolog.Logger
}

func NewLocalHub(logger zerolog.Logger) *LocalHub {
	return &LocalHub{
		rooms:  make(map[string]map[*LocalChannel]struct{}),
		logger: logger.With().Str("component", "local_hub").Logger(),
	}
}

func (h *LocalHub) NewChannel() TransactionChannel {
	return &LocalChannel{hub: h, logger: h.logger}
}

func (h *LocalHub) Publish(ctx context.Context, transactionID string, payload any) error {
	msg, err := setPrepareMessage(payload)
	if err != nil {
		return fmt.Errorf("setPrepareMessage: %w", err)
	}
	return h.PublishRaw(ctx, transactionID, []byte(msg))
}

// PublishRaw delivers raw bytes as-is, without canonical encoding.
func (h *LocalHub) PublishRaw(ctx context.Context, transactionID string, raw []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.RLock()
	members := make([]*LocalChannel, 0, len(h.rooms[transactionID]))
	for c := range h.rooms[transactionID] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		c.deliver(raw)
	}
	return nil
}

// Subscribers reports how many channels are joined to a room.
func (h *LocalHub) Subscribers(transactionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[transactionID])
}

func (h *LocalHub) join(room string, c *LocalChannel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*LocalChannel]struct{})
	}
	h.rooms[room][c] = struct{}{}
}

func (h *LocalHub) leave(room string, c *LocalChannel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms[room], c)
	if len(h.rooms[room]) == 0 {
		delete(h.rooms, room)
	}
}

type LocalChannel struct {
	hub    *LocalHub
	logger zerolog.Logger

	completed handlerSet[PaymentCompletedEvent]
	lost      handlerSet[error]

	mu     sync.Mutex
	room   string
	closed bool
}

func (c *LocalChannel) Subscribe(transactionID string) error {
	if transactionID == "" {
		return ErrMissingTransactionID
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	if c.room != "" && c.room != transactionID {
		c.hub.leave(c.room, c)
	}
	c.room = transactionID
	c.hub.join(transactionID, c)
	return nil
}

func (c *LocalChannel) OnPaymentCompleted(h PaymentCompletedHandler) func() {
	return c.completed.add(h)
}

func (c *LocalChannel) OnConnectionLost(h ConnectionLostHandler) func() {
	return c.lost.add(h)
}

func (c *LocalChannel) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	room := c.room
	c.mu.Unlock()

	if room != "" {
		c.hub.leave(room, c)
	}
	c.completed.clear()
	c.lost.clear()
}

func (c *LocalChannel) deliver(raw []byte) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	emitPaymentCompleted(c.logger, raw, &c.completed)
}
