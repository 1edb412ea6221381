// Package notify is the driver-offer push channel (C10, supplemented): a
// thin publish-only wrapper over Kafka. The original backend exposed only a
// driver-side poll (driver_trip_service.get_trip_offers); the teacher repo
// independently carried an unused segmentio/kafka-go import for exactly this
// purpose (internal/matching/service.go's "ride-matches" topic), now wired.
// A publish failure is logged and swallowed: list_pending_offers always
// reads DispatchAttempt rows directly, so the bus is a latency optimization,
// never a correctness dependency.
package notify

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

const topic = "dispatch-events"

// OfferCreated is published once per DispatchAttempt row inserted in a wave.
type OfferCreated struct {
	TripID    int64     `json:"trip_id"`
	AttemptID int64     `json:"attempt_id"`
	DriverID  int64     `json:"driver_id"`
	Wave      int       `json:"wave"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TripAssigned is the payload of PublishTripAssigned. Nothing in this module
// calls PublishTripAssigned, so no event is published when an acceptance race
// resolves.
type TripAssigned struct {
	TripID   int64 `json:"trip_id"`
	DriverID int64 `json:"driver_id"`
}

// TripCancelled is published on rider cancellation. Dispatch exhaustion
// publishes no event.
type TripCancelled struct {
	TripID int64  `json:"trip_id"`
	Reason string `json:"reason"`
}

// Bus publishes dispatch/trip lifecycle events, partitioned by trip_id so a
// single trip's events stay ordered for any one consumer.
type Bus struct {
	writer *kafka.Writer
}

// New builds a Bus writing to brokers.
func New(brokers []string) *Bus {
	return &Bus{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
	}
}

// Close flushes and closes the underlying writer.
func (b *Bus) Close() error { return b.writer.Close() }

func (b *Bus) publish(ctx context.Context, key string, eventType string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Warn().Err(err).Str("event_type", eventType).Msg("notify: marshal failed")
		return
	}
	msg := kafka.Message{
		Key:     []byte(key),
		Value:   body,
		Headers: []kafka.Header{{Key: "event_type", Value: []byte(eventType)}},
		Time:    time.Now().UTC(),
	}
	if err := b.writer.WriteMessages(ctx, msg); err != nil {
		log.Warn().Err(err).Str("event_type", eventType).Msg("notify: publish failed, continuing")
	}
}

func tripKey(tripID int64) string {
	return "trip:" + strconv.FormatInt(tripID, 10)
}

// PublishOfferCreated notifies a driver of a new offer.
func (b *Bus) PublishOfferCreated(ctx context.Context, e OfferCreated) {
	b.publish(ctx, tripKey(e.TripID), "offer.created", e)
}

// PublishTripAssigned notifies all parties a trip's driver is decided.
func (b *Bus) PublishTripAssigned(ctx context.Context, e TripAssigned) {
	b.publish(ctx, tripKey(e.TripID), "trip.assigned", e)
}

// PublishTripCancelled notifies all parties a trip ended without completion.
func (b *Bus) PublishTripCancelled(ctx context.Context, e TripCancelled) {
	b.publish(ctx, tripKey(e.TripID), "trip.cancelled", e)
}
