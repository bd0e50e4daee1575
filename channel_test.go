package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerSet_UnregisterIsImmediate(t *testing.T) {
	var set handlerSet[int]
	var got []string

	var unregisterB func()
	set.add(func(int) {
		got = append(got, "a")
		unregisterB()
	})
	unregisterB = set.add(func(int) { got = append(got, "b") })

	set.emit(1)
	assert.Equal(t, []string{"a"}, got, "b was removed during the emit")
	assert.Equal(t, 1, set.len())

	unregisterB()
	assert.Equal(t, 1, set.len())
}

func TestHandlerSet_OrderAndClear(t *testing.T) {
	var set handlerSet[string]
	var got []string
	set.add(func(v string) { got = append(got, "1:"+v) })
	set.add(func(v string) { got = append(got, "2:"+v) })

	set.emit("x")
	assert.Equal(t, []string{"1:x", "2:x"}, got)

	set.clear()
	set.emit("y")
	assert.Len(t, got, 2)
	assert.Zero(t, set.len())
}

func TestLocalHub_DeliversToRoom(t *testing.T) {
	hub := NewLocalHub(zerolog.Nop())
	ctx := context.Background()

	a := hub.NewChannel()
	b := hub.NewChannel()
	require.NoError(t, a.Subscribe("tx-a"))
	require.NoError(t, b.Subscribe("tx-b"))

	var mu sync.Mutex
	var gotA, gotB []PaymentCompletedEvent
	a.OnPaymentCompleted(func(e PaymentCompletedEvent) {
		mu.Lock()
		gotA = append(gotA, e)
		mu.Unlock()
	})
	b.OnPaymentCompleted(func(e PaymentCompletedEvent) {
		mu.Lock()
		gotB = append(gotB, e)
		mu.Unlock()
	})

	require.NoError(t, hub.Publish(ctx, "tx-a", PaymentCompletedMessage{Type: EventTypePaymentCompleted, BookingID: 42, Message: "Pago confirmado"}))

	require.Len(t, gotA, 1)
	assert.Equal(t, PaymentCompletedEvent{BookingID: 42, Message: "Pago confirmado"}, gotA[0])
	assert.Empty(t, gotB)

	require.NoError(t, hub.PublishRaw(ctx, "tx-b", []byte(`{"bookingId":"9"}`)))
	require.Len(t, gotB, 1)
	assert.Equal(t, int64(9), gotB[0].BookingID)

	require.NoError(t, hub.PublishRaw(ctx, "tx-b", []byte(`garbage`)))
	assert.Len(t, gotB, 1)
}

func TestLocalChannel_DisconnectIsIdempotent(t *testing.T) {
	hub := NewLocalHub(zerolog.Nop())
	ch := hub.NewChannel()
	require.NoError(t, ch.Subscribe("tx-1"))

	calls := 0
	ch.OnPaymentCompleted(func(PaymentCompletedEvent) { calls++ })
	assert.Equal(t, 1, hub.Subscribers("tx-1"))

	ch.Disconnect()
	ch.Disconnect()
	assert.Zero(t, hub.Subscribers("tx-1"))

	require.NoError(t, hub.PublishRaw(context.Background(), "tx-1", []byte(`{"reservaId":1}`)))
	assert.Zero(t, calls)

	assert.ErrorIs(t, ch.Subscribe("tx-1"), ErrChannelClosed)
}

func TestLocalChannel_SubscribeRequiresID(t *testing.T) {
	ch := NewLocalHub(zerolog.Nop()).NewChannel()
	assert.ErrorIs(t, ch.Subscribe(""), ErrMissingTransactionID)
}

func TestLocalHub_PublishHonoursContext(t *testing.T) {
	hub := NewLocalHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, hub.PublishRaw(ctx, "tx-1", []byte(`{}`)), context.Canceled)
}

func TestLocalHub_DrivesWaiterEndToEnd(t *testing.T) {
	hub := NewLocalHub(zerolog.Nop())
	clock := newFakeClock()
	nav := &navRecorder{}
	w := NewWaiter(WaiterConfig{}, qrInput("tx-abc123"), hub.NewChannel(), clock, nav, nil, zerolog.Nop())
	require.NoError(t, w.Start())
	assert.Equal(t, 1, hub.Subscribers("tx-abc123"))

	clock.Advance(1500 * time.Millisecond)
	require.NoError(t, hub.PublishRaw(context.Background(), "tx-abc123", []byte(`{"reservaId":42,"mensaje":"Pago confirmado"}`)))

	assert.Equal(t, StateCompleted, w.Snapshot().State)
	assert.Zero(t, hub.Subscribers("tx-abc123"), "channel released on completion")

	clock.Advance(DefaultDisplayDelay)
	require.Len(t, nav.all(), 1)
	assert.Equal(t, int64(42), nav.all()[0].State.BookingID)
}
