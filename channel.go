package main

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
)

type PaymentCompletedHandler func(PaymentCompletedEvent)

type ConnectionLostHandler func(error)

// TransactionChannel is a real-time subscription to the room named after a
// transaction id.
type TransactionChannel interface {
	// Subscribe opens the subscription. It may be called again after a
	// failure to resubscribe.
	Subscribe(transactionID string) error
	// OnPaymentCompleted registers h and returns its de-registration func.
	OnPaymentCompleted(h PaymentCompletedHandler) (unregister func())
	// OnConnectionLost registers h for transport failures after Subscribe succeeded.
	OnConnectionLost(h ConnectionLostHandler) (unregister func())
	// Disconnect closes the subscription. Only the first call has effect.
	Disconnect()
}

type Publisher interface {
	Publish(ctx context.Context, transactionID string, payload any) error
}

// Transport creates per-session channels and publishes to them.
type Transport interface {
	Publisher
	NewChannel() TransactionChannel
}

type handlerEntry[T any] struct {
	id uint64
	fn func(T)
}

// handlerSet is an ordered set of callbacks. Removal is immediate: a handler
// removed while an emit is in flight is not called afterwards.
type handlerSet[T any] struct {
	mu      sync.Mutex
	nextID  uint64
	entries []handlerEntry[T]
}

func (s *handlerSet[T]) add(fn func(T)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.entries = append(s.entries, handlerEntry[T]{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(id) })
	}
}

func (s *handlerSet[T]) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.entries {
		if e.id == id {
			s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
			return
		}
	}
}

func (s *handlerSet[T]) registered(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.id == id {
			return true
		}
	}
	return false
}

func (s *handlerSet[T]) emit(v T) {
	s.mu.Lock()
	snapshot := make([]handlerEntry[T], len(s.entries))
	copy(snapshot, s.entries)
	s.mu.Unlock()

	for _, e := range snapshot {
		if !s.registered(e.id) {
			continue
		}
		e.fn(v)
	}
}

func (s *handlerSet[T]) clear() {
	s.mu.Lock()
	s.entries = nil
	s.mu.Unlock()
}

func (s *handlerSet[T]) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// emitPaymentCompleted decodes raw at the channel boundary and fans it out.
func emitPaymentCompleted(logger zerolog.Logger, raw []byte, handlers *handlerSet[PaymentCompletedEvent]) {
	evt, err := DecodePaymentCompleted(raw)
	if err != nil {
		logger.Warn().Err(err).Bytes("payload", raw).Msg("dropping channel message")
		return
	}
	handlers.emit(evt)
}

// setPrepareMessage is a function to format message to JSON
func setPrepareMessage(messagePayload any) (string, error) {
	messageJSON, err := json.Marshal(messagePayload)
	if err != nil {
		return "", err
	}

	return string(messageJSON), nil
}
