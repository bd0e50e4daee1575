package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const DefaultNotifiedTTL = 24 * time.Hour

// NotificationService pushes "payment completed" onto a transaction channel,
// at most once per transaction.
type NotificationService struct {
	publisher   Publisher
	redis       *redis.Client
	notifiedTTL time.Duration
	metrics     *Metrics
	logger      zerolog.Logger
}

func NewNotificationService(publisher Publisher, redis *redis.Client, metrics *Metrics, logger zerolog.Logger) *NotificationService {
	return &NotificationService{
		publisher:   publisher,
		redis:       redis,
		notifiedTTL: DefaultNotifiedTTL,
		metrics:     metrics,
		logger:      logger.With().Str("component", "notification_service").Logger(),
	}
}

func (ns *NotificationService) NotifyPaymentCompleted(ctx context.Context, payload PaymentCompletedPayload) error {
	notifiedKey := fmt.Sprintf("payment_notified:%s", payload.TransactionID)

	first, err := ns.redis.SetNX(ctx, notifiedKey, payload.BookingID, ns.notifiedTTL).Result()
	if err != nil {
		return fmt.Errorf("ns.redis.SetNX(%v): %w", notifiedKey, err)
	}
	if !first {
		ns.metrics.RecordNotification(true)
		ns.logger.Info().
			Str("transaction_id", payload.TransactionID).
			Msg("transaction already notified, skipping")
		return nil
	}

	msg := PaymentCompletedMessage{
		Type:      EventTypePaymentCompleted,
		BookingID: payload.BookingID,
		Message:   payload.Message,
	}
	if err := ns.publisher.Publish(ctx, payload.TransactionID, msg); err != nil {
		ns.metrics.RecordNotificationError()
		// Release the guard so the task retry can publish.
		if delErr := ns.redis.Del(ctx, notifiedKey).Err(); delErr != nil {
			ns.logger.Error().Err(delErr).Str("key", notifiedKey).Msg("ns.redis.Del()")
		}
		return fmt.Errorf("ns.publisher.Publish(transaction: %v): %w", payload.TransactionID, err)
	}

	ns.metrics.RecordNotification(false)
	ns.logger.Info().
		Str("transaction_id", payload.TransactionID).
		Int64("booking_id", payload.BookingID).
		Msg("payment completed notification sent")
	return nil
}
