package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const EventTypePaymentCompleted = "pago_completado"

// Field names the backend has been seen using, in lookup order.
var (
	bookingIDAliases = []string{"reservaId", "reserva_id", "idReserva", "bookingId", "booking_id", "id"}
	messageAliases   = []string{"mensaje", "message"}
	eventTypeAliases = []string{"tipo", "type", "event"}
)

// DecodePaymentCompleted turns a raw channel message into a PaymentCompletedEvent.
// Messages that are not JSON objects, or that name a different event type, are
// rejected with ErrUnexpectedEvent. A missing booking id is not an error.
func DecodePaymentCompleted(raw []byte) (PaymentCompletedEvent, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return PaymentCompletedEvent{}, fmt.Errorf("%w: %v", ErrUnexpectedEvent, err)
	}
	if fields == nil {
		return PaymentCompletedEvent{}, fmt.Errorf("%w: null payload", ErrUnexpectedEvent)
	}

	if t, ok := firstString(fields, eventTypeAliases); ok && !isPaymentCompletedType(t) {
		return PaymentCompletedEvent{}, fmt.Errorf("%w: event type %q", ErrUnexpectedEvent, t)
	}

	var evt PaymentCompletedEvent
	for _, key := range bookingIDAliases {
		if id, ok := parseBookingID(fields[key]); ok {
			evt.BookingID = id
			break
		}
	}
	evt.Message, _ = firstString(fields, messageAliases)
	return evt, nil
}

// resolveBookingID prefers the event's id and falls back to the one carried in
// navigation state.
func resolveBookingID(evt PaymentCompletedEvent, fallback int64) (int64, bool) {
	if evt.BookingID > 0 {
		return evt.BookingID, true
	}
	if fallback > 0 {
		return fallback, true
	}
	return 0, false
}

func isPaymentCompletedType(t string) bool {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case EventTypePaymentCompleted, "payment_completed", "pago-completado":
		return true
	}
	return false
}

func firstString(fields map[string]json.RawMessage, keys []string) (string, bool) {
	for _, key := range keys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s, true
		}
	}
	return "", false
}

// parseBookingID accepts positive integers encoded as JSON numbers or numeric strings.
func parseBookingID(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 {
		return 0, false
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, false
	}

	var id int64
	switch val := v.(type) {
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			f, ferr := val.Float64()
			if ferr != nil || f != math.Trunc(f) || f > math.MaxInt64 {
				return 0, false
			}
			n = int64(f)
		}
		id = n
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			return 0, false
		}
		id = n
	default:
		return 0, false
	}

	if id <= 0 {
		return 0, false
	}
	return id, true
}
