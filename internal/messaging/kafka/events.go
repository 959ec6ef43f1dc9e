package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// Topics по умолчанию.
const (
	TopicPurchaseEvents  = "marketplace.purchases"
	TopicDeadLetterQueue = "marketplace.purchases.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers
const (
	HeaderEventType     = "x-event-type"
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// Envelope — сообщение outbox в topic событий.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// ConsumerDeadLetter — конверт сообщения, которое consumer не смог обработать.
type ConsumerDeadLetter struct {
	OriginalTopic     string    `json:"original_topic"`
	OriginalPartition int32     `json:"original_partition"`
	OriginalOffset    int64     `json:"original_offset"`
	OriginalKey       string    `json:"original_key"`
	OriginalValue     string    `json:"original_value"`
	ErrorMessage      string    `json:"error_message"`
	FailedAt          time.Time `json:"failed_at"`
	RetryCount        int       `json:"retry_count"`
}

// ParseEnvelope парсит Envelope из сообщения
func ParseEnvelope(message *sarama.ConsumerMessage) (*Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(message.Value, &envelope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	if envelope.EventType == "" {
		return nil, fmt.Errorf("envelope without event type")
	}
	return &envelope, nil
}

// ParsePurchaseCreated парсит событие purchase.created из сообщения
func ParsePurchaseCreated(message *sarama.ConsumerMessage) (*Envelope, *domain.PurchaseCreatedPayload, error) {
	envelope, err := ParseEnvelope(message)
	if err != nil {
		return nil, nil, err
	}
	if envelope.EventType != domain.EventPurchaseCreated {
		return envelope, nil, fmt.Errorf("unexpected event type %q", envelope.EventType)
	}

	var payload domain.PurchaseCreatedPayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		return envelope, nil, fmt.Errorf("failed to unmarshal purchase payload: %w", err)
	}
	if payload.PurchaseID <= 0 || payload.Quantity < 1 {
		return envelope, nil, fmt.Errorf("invalid purchase payload")
	}
	return envelope, &payload, nil
}
