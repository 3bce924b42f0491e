package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/bdu-carp/risk-dashboard/internal/config"
	"github.com/bdu-carp/risk-dashboard/internal/domain"
)

// Publisher announces replaced dataset files on the refresh topic.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a producer for the configured refresh topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaRefreshTopic,
		Balancer:               &kafkago.LeastBytes{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Publisher{writer: w, logger: logger}
}

// Publish writes the notices in a single WriteMessages call.
func (p *Publisher) Publish(ctx context.Context, notices ...domain.DatasetNotice) error {
	if len(notices) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(notices))
	for i := range notices {
		msg, err := serializeNotice(notices[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish dataset notices: %w", err)
	}
	p.logger.Info("dataset notices published", "count", len(msgs), "topic", p.writer.Topic)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeNotice keys the message by path so notices for one file stay on
// one partition and apply in order.
func serializeNotice(n domain.DatasetNotice) (kafkago.Message, error) {
	if n.PublishedAt.IsZero() {
		n.PublishedAt = time.Now().UTC()
	}
	data, err := json.Marshal(n)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize dataset notice: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(n.Path),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "dataset", Value: []byte(n.Dataset)},
			{Key: "published_at", Value: []byte(n.PublishedAt.Format(time.RFC3339))},
		},
	}, nil
}
