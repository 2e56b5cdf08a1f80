package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/joshsymonds/advisor/internal/metrics"
	"github.com/joshsymonds/advisor/pkg/logger"
)

// AttemptHeader counts deliveries of one job.
const AttemptHeader = "advisor-attempt"

// Config holds Kafka settings.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Writer is the subset of kafka.Writer the producer uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes job messages.
type Producer struct {
	writer Writer
	logger logger.Logger
	topic  string
}

// NewProducer creates a producer writing to cfg.Topic.
func NewProducer(cfg Config, log logger.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return newProducer(writer, cfg.Topic, log), nil
}

func newProducer(w Writer, topic string, log logger.Logger) *Producer {
	return &Producer{writer: w, topic: topic, logger: log}
}

// Publish validates and sends one job.
func (p *Producer) Publish(ctx context.Context, m Message) error {
	return p.publish(ctx, m, 1)
}

func (p *Producer) publish(ctx context.Context, m Message, attempt int) error {
	if err := m.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   m.Key(),
		Value: data,
		Headers: []kafka.Header{
			{Key: AttemptHeader, Value: []byte(strconv.Itoa(attempt))},
		},
	})
	if err != nil {
		metrics.RecordQueueMessage("published", "failed")
		return fmt.Errorf("failed to publish %s message: %w", m.Kind, err)
	}

	metrics.RecordQueueMessage("published", "ok")
	p.logger.Debug("Published job", "kind", m.Kind, "report_id", m.ReportID, "topic", p.topic, "attempt", attempt)
	return nil
}

// Close closes the producer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
