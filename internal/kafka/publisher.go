// Package kafka publishes governance violation events for downstream
// consumers (case management, analytics). Publishing is strictly
// best-effort: a broker outage never blocks or fails a validation pass.
package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// ViolationEvent is the wire shape of one published violation.
type ViolationEvent struct {
	EventID         string                 `json:"event_id"`
	ProtocolVersion string                 `json:"protocol_version"`
	RuleID          string                 `json:"rule_id"`
	Severity        string                 `json:"severity"`
	ActorType       string                 `json:"actor_type"`
	Action          string                 `json:"action"`
	CompanyID       string                 `json:"company_id,omitempty"`
	WasBlocked      bool                   `json:"was_blocked"`
	EnforcementMode string                 `json:"enforcement_mode"`
	Details         map[string]interface{} `json:"details,omitempty"`
	OccurredAt      time.Time              `json:"occurred_at"`
}

// Publisher wraps an async sarama producer for the violations topic.
type Publisher struct {
	producer sarama.AsyncProducer
	topic    string
	logger   *zap.Logger
}

// NewPublisher creates an async publisher and starts draining producer
// errors into the log.
func NewPublisher(brokers []string, topic string, logger *zap.Logger) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Errors = true
	cfg.Producer.Compression = sarama.CompressionSnappy

	producer, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	p := &Publisher{producer: producer, topic: topic, logger: logger}
	go p.drainErrors()
	return p, nil
}

func (p *Publisher) drainErrors() {
	for err := range p.producer.Errors() {
		p.logger.Error("failed to publish violation event",
			zap.String("topic", p.topic),
			zap.Error(err.Err))
	}
}

// Publish enqueues one violation event. Keyed by rule id so per-rule
// ordering is preserved across partitions.
func (p *Publisher) Publish(event ViolationEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal violation event: %w", err)
	}

	p.producer.Input() <- &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.RuleID),
		Value: sarama.ByteEncoder(payload),
	}
	return nil
}

// Close shuts the producer down, flushing buffered messages.
func (p *Publisher) Close() error {
	return p.producer.Close()
}
