package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"rbot_go/internal/domain"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes trades to a topic keyed by market, so one market
// stays ordered within its partition. Books are not sent to Kafka.
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher creates an async writer; delivery errors are logged.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	logger := slog.Default().With("module", "kafka_publisher", "topic", topic)
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				logger.Error("Failed to deliver trades", "count", len(msgs), "error", err)
			}
		},
	}
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) PublishTrades(ctx context.Context, market string, trades []domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(trades))
	for _, m := range tradeMessages(market, trades) {
		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("json marshal failed: %w", err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(market), Value: b, Time: m.Time.Time()})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka write failed: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) PublishBoard(context.Context, string, *domain.BoardTransfer) error {
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
