package main

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	pubnubgo "github.com/pubnub/go/v7"
	"github.com/rs/zerolog"
)

var _ Transport = (*PubNubTransport)(nil)

// tokenTTLMinutes bounds a browser token to slightly more than the payment deadline.
const tokenTTLMinutes = 10

type PubNubConfig struct {
	PublishKey, SubscribeKey, SecretKey, UserID, SubscriberUserID string
	ConnectTimeout                                                time.Duration
}

// pubnubRoom is the shared subscription of one transaction channel. Several
// wait sessions may be members; the SDK subscription lives while any is.
type pubnubRoom struct {
	members     map[*PubNubChannel]struct{}
	connected   bool
	subscribing bool
	pending     []chan error
}

// PubNubTransport shares one PubNub client and one listener between every wait
// session and routes messages and statuses to the sessions of each room.
type PubNubTransport struct {
	pn               *pubnubgo.PubNub
	listener         *pubnubgo.Listener
	subscriberUserID string
	connectTimeout   time.Duration
	logger           zerolog.Logger

	// SDK room operations, serialized by opMu.
	subscribe   func(room string)
	unsubscribe func(room string)
	opMu        sync.Mutex

	mu     sync.Mutex
	rooms  map[string]*pubnubRoom
	active map[string]bool

	done      chan struct{}
	closeOnce sync.Once
}

func NewPubNubTransport(pnCfg *PubNubConfig, logger zerolog.Logger) (*PubNubTransport, error) {
	if pnCfg == nil {
		return nil, fmt.Errorf("[NewPubNubTransport] pnCfg: must not be nil")
	}
	if pnCfg.SubscribeKey == "" {
		return nil, fmt.Errorf("[NewPubNubTransport] SubscribeKey: must not be empty")
	}

	cfg := pubnubgo.NewConfigWithUserId(pubnubgo.UserId(pnCfg.UserID))
	cfg.PublishKey = pnCfg.PublishKey
	cfg.SubscribeKey = pnCfg.SubscribeKey
	cfg.SecretKey = pnCfg.SecretKey

	return newPubNubTransport(pubnubgo.NewPubNub(cfg), pnCfg, logger), nil
}

func newPubNubTransport(pn *pubnubgo.PubNub, pnCfg *PubNubConfig, logger zerolog.Logger) *PubNubTransport {
	connectTimeout := pnCfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}

	t := &PubNubTransport{
		pn:               pn,
		listener:         pubnubgo.NewListener(),
		subscriberUserID: pnCfg.SubscriberUserID,
		connectTimeout:   connectTimeout,
		logger:           logger.With().Str("component", "pubnub").Logger(),
		rooms:            make(map[string]*pubnubRoom),
		active:           make(map[string]bool),
		done:             make(chan struct{}),
	}
	t.subscribe = func(room string) {
		pn.Subscribe().Channels([]string{room}).Execute()
	}
	t.unsubscribe = func(room string) {
		pn.Unsubscribe().Channels([]string{room}).Execute()
	}

	pn.AddListener(t.listener)
	go t.listen()
	return t
}

func (t *PubNubTransport) NewChannel() TransactionChannel {
	return &PubNubChannel{
		transport: t,
		logger:    t.logger,
		done:      make(chan struct{}),
	}
}

func (t *PubNubTransport) Publish(ctx context.Context, transactionID string, payload any) error {
	messageJSON, err := setPrepareMessage(payload)
	if err != nil {
		return err
	}

	resp, _, err := t.pn.PublishWithContext(ctx).Channel(transactionID).Message(messageJSON).Execute()
	if err != nil {
		return fmt.Errorf("t.pn.Publish(channel: %v): %w", transactionID, err)
	}

	t.logger.Debug().
		Str("transaction_id", transactionID).
		Int64("timetoken", resp.Timestamp).
		Msg("payment event published")
	return nil
}

// GrantToken issues a read-only token for a single transaction channel so a
// browser can subscribe directly.
func (t *PubNubTransport) GrantToken(ctx context.Context, transactionID string) (string, error) {
	grantToken := t.pn.GrantTokenWithContext(ctx)
	permissions := map[string]pubnubgo.ChannelPermissions{
		transactionID: {
			Read: true,
		},
	}

	token, _, err := grantToken.TTL(tokenTTLMinutes).AuthorizedUUID(t.subscriberUserID).Channels(permissions).Execute()
	if err != nil {
		return "", err
	}

	return token.Data.Token, nil
}

// Close removes the shared listener before stopping the client, so the SDK
// never announces into a listener nobody reads.
func (t *PubNubTransport) Close() {
	t.closeOnce.Do(func() {
		t.pn.RemoveListener(t.listener)
		t.pn.Destroy()
		close(t.done)
	})
}

// Subscribers reports how many wait sessions share a room.
func (t *PubNubTransport) Subscribers(room string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r := t.rooms[room]; r != nil {
		return len(r.members)
	}
	return 0
}

// join adds c to room. A nil result means the room is already connected;
// otherwise the result receives the outcome of the subscription.
func (t *PubNubTransport) join(room string, c *PubNubChannel) chan error {
	t.mu.Lock()
	r := t.rooms[room]
	if r == nil {
		r = &pubnubRoom{members: make(map[*PubNubChannel]struct{})}
		t.rooms[room] = r
	}
	r.members[c] = struct{}{}
	if r.connected {
		t.mu.Unlock()
		return nil
	}
	result := make(chan error, 1)
	r.pending = append(r.pending, result)
	issue := !r.subscribing
	r.subscribing = true
	t.mu.Unlock()

	if issue {
		t.reconcile(room, true)
	}
	return result
}

// leave removes c from room; the SDK unsubscribes when the last member leaves.
func (t *PubNubTransport) leave(room string, c *PubNubChannel) {
	t.mu.Lock()
	if r := t.rooms[room]; r != nil {
		delete(r.members, c)
		if len(r.members) == 0 {
			delete(t.rooms, room)
		}
	}
	t.mu.Unlock()

	t.reconcile(room, false)
}

// dropPending forgets a subscription result nobody waits for any more.
func (t *PubNubTransport) dropPending(room string, result chan error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.rooms[room]
	if r == nil {
		return
	}
	r.pending = slices.DeleteFunc(r.pending, func(ch chan error) bool { return ch == result })
	if len(r.pending) == 0 {
		r.subscribing = false
	}
}

// reconcile brings the SDK subscription of room in line with its membership.
// Calls are serialized, so the last one always sees the final membership.
func (t *PubNubTransport) reconcile(room string, force bool) {
	t.opMu.Lock()
	defer t.opMu.Unlock()

	t.mu.Lock()
	r := t.rooms[room]
	want := r != nil && len(r.members) > 0
	active := t.active[room]
	t.mu.Unlock()

	switch {
	case want && (force || !active):
		t.subscribe(room)
		t.mu.Lock()
		t.active[room] = true
		t.mu.Unlock()
	case !want && active:
		t.unsubscribe(room)
		t.mu.Lock()
		delete(t.active, room)
		t.mu.Unlock()
	}
}

func (t *PubNubTransport) listen() {
	for {
		select {
		case <-t.done:
			return
		case status := <-t.listener.Status:
			t.handleStatus(status)
		case msg := <-t.listener.Message:
			t.handleMessage(msg)
		case <-t.listener.Presence:
		}
	}
}

// affectedRooms returns the rooms a status applies to; an empty affected list
// means the whole connection. Caller holds mu.
func (t *PubNubTransport) affectedRooms(status *pubnubgo.PNStatus) []string {
	if len(status.AffectedChannels) == 0 {
		rooms := make([]string, 0, len(t.rooms))
		for room := range t.rooms {
			rooms = append(rooms, room)
		}
		return rooms
	}
	var rooms []string
	for _, room := range status.AffectedChannels {
		if _, ok := t.rooms[room]; ok {
			rooms = append(rooms, room)
		}
	}
	return rooms
}

func (t *PubNubTransport) handleStatus(status *pubnubgo.PNStatus) {
	if status == nil {
		return
	}

	switch status.Category {
	case pubnubgo.PNConnectedCategory, pubnubgo.PNReconnectedCategory:
		t.mu.Lock()
		var resolved []chan error
		for _, room := range t.affectedRooms(status) {
			r := t.rooms[room]
			r.connected = true
			r.subscribing = false
			resolved = append(resolved, r.pending...)
			r.pending = nil
		}
		t.mu.Unlock()

		for _, ch := range resolved {
			ch <- nil
		}

	case pubnubgo.PNDisconnectedCategory,
		pubnubgo.PNReconnectionAttemptsExhausted,
		pubnubgo.PNTimeoutCategory,
		pubnubgo.PNAccessDeniedCategory,
		pubnubgo.PNBadRequestCategory:
		err := fmt.Errorf("pubnub status %v: %w", status.Category, ErrConnectionLost)
		if status.ErrorData != nil {
			err = fmt.Errorf("pubnub status %v: %w: %v", status.Category, ErrConnectionLost, status.ErrorData)
		}

		t.mu.Lock()
		var resolved []chan error
		var lost []*PubNubChannel
		for _, room := range t.affectedRooms(status) {
			r := t.rooms[room]
			r.connected = false
			r.subscribing = false
			delete(t.active, room)
			if len(r.pending) > 0 {
				resolved = append(resolved, r.pending...)
				r.pending = nil
				continue
			}
			for c := range r.members {
				lost = append(lost, c)
			}
		}
		t.mu.Unlock()

		for _, ch := range resolved {
			ch <- err
		}
		if len(lost) > 0 {
			t.logger.Warn().Err(err).Int("sessions", len(lost)).Msg("pubnub connection lost")
		}
		for _, c := range lost {
			c.connectionLost(err)
		}
	}
}

func (t *PubNubTransport) handleMessage(msg *pubnubgo.PNMessage) {
	if msg == nil {
		return
	}

	t.mu.Lock()
	var members []*PubNubChannel
	if r := t.rooms[msg.Channel]; r != nil {
		for c := range r.members {
			members = append(members, c)
		}
	}
	t.mu.Unlock()
	if len(members) == 0 {
		return
	}

	raw, err := messageBytes(msg.Message)
	if err != nil {
		t.logger.Warn().Err(err).Str("transaction_id", msg.Channel).Msg("dropping undecodable pubnub message")
		return
	}
	for _, c := range members {
		c.deliver(raw)
	}
}

// PubNubChannel is one wait session's membership in a transaction room.
type PubNubChannel struct {
	transport *PubNubTransport
	logger    zerolog.Logger

	completed handlerSet[PaymentCompletedEvent]
	lost      handlerSet[error]

	mu     sync.Mutex
	room   string
	closed bool
	done   chan struct{}
}

func (c *PubNubChannel) Subscribe(transactionID string) error {
	if transactionID == "" {
		return ErrMissingTransactionID
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	previous := c.room
	c.room = transactionID
	c.mu.Unlock()

	if previous != "" && previous != transactionID {
		c.transport.leave(previous, c)
	}

	result := c.transport.join(transactionID, c)
	if result == nil {
		return nil
	}

	timer := time.NewTimer(c.transport.connectTimeout)
	defer timer.Stop()

	select {
	case err := <-result:
		return err
	case <-timer.C:
		c.transport.dropPending(transactionID, result)
		return fmt.Errorf("pubnub subscribe %s: %w", transactionID, ErrConnectTimeout)
	case <-c.done:
		return ErrChannelClosed
	}
}

func (c *PubNubChannel) OnPaymentCompleted(h PaymentCompletedHandler) func() {
	return c.completed.add(h)
}

func (c *PubNubChannel) OnConnectionLost(h ConnectionLostHandler) func() {
	return c.lost.add(h)
}

func (c *PubNubChannel) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	room := c.room
	close(c.done)
	c.mu.Unlock()

	c.completed.clear()
	c.lost.clear()
	if room != "" {
		c.transport.leave(room, c)
	}
}

func (c *PubNubChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *PubNubChannel) deliver(raw []byte) {
	c.mu.Lock()
	closed, room := c.closed, c.room
	c.mu.Unlock()
	if closed {
		return
	}
	emitPaymentCompleted(c.logger.With().Str("transaction_id", room).Logger(), raw, &c.completed)
}

func (c *PubNubChannel) connectionLost(err error) {
	if c.isClosed() {
		return
	}
	c.lost.emit(err)
}

// messageBytes normalizes PubNub payloads: publishers send either a JSON
// string (as Publish does) or a JSON object.
func messageBytes(message any) ([]byte, error) {
	switch v := message.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(v)
	}
}
