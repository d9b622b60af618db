package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/seatsurge/booking-core/internal/domain"
	"github.com/seatsurge/booking-core/pkg/config"
	"github.com/seatsurge/booking-core/pkg/kafka"
	"github.com/seatsurge/booking-core/pkg/logger"
)

// Event type constants carried in every payload
const (
	EventTypeSeatHoldCreated   = "SEAT_HOLD_CREATED"
	EventTypeSeatHoldConfirmed = "SEAT_HOLD_CONFIRMED"
	EventTypeSeatHoldCancelled = "SEAT_HOLD_CANCELLED"
	EventTypeSeatHoldExpired   = "SEAT_HOLD_EXPIRED"
	EventTypeBookingConfirmed  = "BOOKING_CONFIRMED"
)

// SourceLockTTL marks transition events originating from key expiry
const SourceLockTTL = "lock-ttl"

// EventPublisher publishes booking-core events to the event log.
// Publish failures never fail the user-visible operation; audit lag is
// acceptable, lost correctness is not.
type EventPublisher interface {
	// PublishSeatExpiry emits a per-seat transition event onto the
	// seat-state-transitions topic, keyed {eventId}:{seatId} so a seat's
	// events stay on one partition.
	PublishSeatExpiry(ctx context.Context, eventID, seatID int64) error

	PublishSeatHoldCreated(ctx context.Context, hold *domain.SeatHold) error
	PublishSeatHoldConfirmed(ctx context.Context, hold *domain.SeatHold) error
	PublishSeatHoldCancelled(ctx context.Context, hold *domain.SeatHold) error
	PublishSeatHoldExpired(ctx context.Context, hold *domain.SeatHold) error
	PublishBookingConfirmed(ctx context.Context, booking *domain.Booking) error

	Close() error
}

// seatTransitionEvent is the lightweight C5 signal consumed by the
// state-transition consumer.
type seatTransitionEvent struct {
	EventType string `json:"eventType"`
	EventID   int64  `json:"eventId"`
	SeatID    int64  `json:"seatId"`
	Timestamp int64  `json:"timestamp"`
	Source    string `json:"source"`
}

// holdAuditEvent is the hold-lifecycle audit payload
type holdAuditEvent struct {
	EventType string    `json:"eventType"`
	HoldToken string    `json:"holdToken"`
	CustomerID int64    `json:"customerId"`
	EventID   int64     `json:"eventId"`
	SeatIDs   []int64   `json:"seatIds"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expiresAt"`
	Timestamp int64     `json:"timestamp"`
	Source    string    `json:"source"`
}

// bookingConfirmedEvent is the booking audit payload
type bookingConfirmedEvent struct {
	EventType        string          `json:"eventType"`
	BookingReference string          `json:"bookingReference"`
	CustomerID       int64           `json:"customerId"`
	EventID          int64           `json:"eventId"`
	SeatIDs          []int64         `json:"seatIds"`
	TotalAmount      decimal.Decimal `json:"totalAmount"`
	PaymentID        string          `json:"paymentId"`
	HoldToken        string          `json:"holdToken"`
	ConfirmedAt      *time.Time      `json:"confirmedAt"`
	Timestamp        int64           `json:"timestamp"`
	Source           string          `json:"source"`
}

// KafkaEventPublisher implements EventPublisher on the shared producer
type KafkaEventPublisher struct {
	producer *kafka.Producer
	topics   config.TopicConfig
	source   string
	log      *logger.Logger
}

// KafkaEventPublisherConfig contains configuration for the publisher
type KafkaEventPublisherConfig struct {
	Brokers  []string
	ClientID string
	Topics   config.TopicConfig
	Source   string
}

// NewKafkaEventPublisher creates a publisher with its own producer
func NewKafkaEventPublisher(ctx context.Context, cfg *KafkaEventPublisherConfig) (*KafkaEventPublisher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("event publisher config is required")
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}

	source := cfg.Source
	if source == "" {
		source = "booking-core"
	}

	producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
		Brokers:       cfg.Brokers,
		ClientID:      cfg.ClientID,
		MaxRetries:    3,
		RetryInterval: 2 * time.Second,
		LingerMs:      10,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return &KafkaEventPublisher{
		producer: producer,
		topics:   cfg.Topics,
		source:   source,
		log:      logger.Get(),
	}, nil
}

// PublishSeatExpiry emits the per-seat expiry signal
func (p *KafkaEventPublisher) PublishSeatExpiry(ctx context.Context, eventID, seatID int64) error {
	event := seatTransitionEvent{
		EventType: EventTypeSeatHoldExpired,
		EventID:   eventID,
		SeatID:    seatID,
		Timestamp: time.Now().UnixMilli(),
		Source:    SourceLockTTL,
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal seat expiry event: %w", err)
	}

	key := fmt.Sprintf("%d:%d", eventID, seatID)
	return p.produce(ctx, p.topics.SeatStateTransitions, key, value, event.EventType)
}

// PublishSeatHoldCreated publishes the hold-created audit event
func (p *KafkaEventPublisher) PublishSeatHoldCreated(ctx context.Context, hold *domain.SeatHold) error {
	return p.publishHoldEvent(ctx, p.topics.SeatHoldCreated, EventTypeSeatHoldCreated, hold)
}

// PublishSeatHoldConfirmed publishes the hold-confirmed audit event
func (p *KafkaEventPublisher) PublishSeatHoldConfirmed(ctx context.Context, hold *domain.SeatHold) error {
	return p.publishHoldEvent(ctx, p.topics.SeatHoldConfirmed, EventTypeSeatHoldConfirmed, hold)
}

// PublishSeatHoldCancelled publishes the hold-cancelled audit event
func (p *KafkaEventPublisher) PublishSeatHoldCancelled(ctx context.Context, hold *domain.SeatHold) error {
	return p.publishHoldEvent(ctx, p.topics.SeatHoldCancelled, EventTypeSeatHoldCancelled, hold)
}

// PublishSeatHoldExpired publishes the hold-expired audit event
func (p *KafkaEventPublisher) PublishSeatHoldExpired(ctx context.Context, hold *domain.SeatHold) error {
	return p.publishHoldEvent(ctx, p.topics.SeatHoldExpired, EventTypeSeatHoldExpired, hold)
}

// PublishBookingConfirmed publishes the booking audit event
func (p *KafkaEventPublisher) PublishBookingConfirmed(ctx context.Context, booking *domain.Booking) error {
	event := bookingConfirmedEvent{
		EventType:        EventTypeBookingConfirmed,
		BookingReference: booking.BookingReference,
		CustomerID:       booking.CustomerID,
		EventID:          booking.EventID,
		SeatIDs:          booking.SeatIDs,
		TotalAmount:      booking.TotalAmount,
		PaymentID:        booking.PaymentID,
		HoldToken:        booking.HoldToken,
		ConfirmedAt:      booking.ConfirmedAt,
		Timestamp:        time.Now().UnixMilli(),
		Source:           p.source,
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal booking confirmed event: %w", err)
	}

	return p.produce(ctx, p.topics.BookingConfirmed, booking.HoldToken, value, event.EventType)
}

// Close flushes and closes the underlying producer
func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		p.producer.Close()
	}
	return nil
}

func (p *KafkaEventPublisher) publishHoldEvent(ctx context.Context, topic, eventType string, hold *domain.SeatHold) error {
	event := holdAuditEvent{
		EventType:  eventType,
		HoldToken:  hold.HoldToken,
		CustomerID: hold.CustomerID,
		EventID:    hold.EventID,
		SeatIDs:    hold.SeatIDs,
		Status:     hold.Status.String(),
		ExpiresAt:  hold.ExpiresAt,
		Timestamp:  time.Now().UnixMilli(),
		Source:     p.source,
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	return p.produce(ctx, topic, hold.HoldToken, value, eventType)
}

func (p *KafkaEventPublisher) produce(ctx context.Context, topic, key string, value []byte, eventType string) error {
	msg := &kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Headers: map[string]string{
			"event_type":   eventType,
			"source":       p.source,
			"content_type": "application/json",
		},
		Timestamp: time.Now(),
	}

	if err := p.producer.Produce(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}
	return nil
}

// NoOpEventPublisher is a no-op implementation for tests and local runs
// without a broker.
type NoOpEventPublisher struct{}

// NewNoOpEventPublisher creates a new no-op event publisher
func NewNoOpEventPublisher() *NoOpEventPublisher {
	return &NoOpEventPublisher{}
}

func (p *NoOpEventPublisher) PublishSeatExpiry(ctx context.Context, eventID, seatID int64) error {
	return nil
}

func (p *NoOpEventPublisher) PublishSeatHoldCreated(ctx context.Context, hold *domain.SeatHold) error {
	return nil
}

func (p *NoOpEventPublisher) PublishSeatHoldConfirmed(ctx context.Context, hold *domain.SeatHold) error {
	return nil
}

func (p *NoOpEventPublisher) PublishSeatHoldCancelled(ctx context.Context, hold *domain.SeatHold) error {
	return nil
}

func (p *NoOpEventPublisher) PublishSeatHoldExpired(ctx context.Context, hold *domain.SeatHold) error {
	return nil
}

func (p *NoOpEventPublisher) PublishBookingConfirmed(ctx context.Context, booking *domain.Booking) error {
	return nil
}

func (p *NoOpEventPublisher) Close() error {
	return nil
}

var (
	_ EventPublisher = (*KafkaEventPublisher)(nil)
	_ EventPublisher = (*NoOpEventPublisher)(nil)
)
