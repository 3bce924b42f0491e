package kafka

import (
	"context"
	"errors"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/bdu-carp/risk-dashboard/internal/config"
	"github.com/bdu-carp/risk-dashboard/internal/domain"
)

const defaultFlushInterval = time.Second

// Reader consumes dataset notices from the refresh topic.
// It implements refresh.BatchExtractor.
type Reader struct {
	reader        *kafkago.Reader
	logger        *slog.Logger
	flushInterval time.Duration
}

// NewReader creates a consumer-group reader for the refresh topic. A new
// group starts at the oldest retained notice; replaying old notices against
// an empty cache is harmless.
func NewReader(cfg *config.Config, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     cfg.KafkaBrokers,
		GroupID:     cfg.KafkaGroupID,
		Topic:       cfg.KafkaRefreshTopic,
		MinBytes:    1,
		MaxBytes:    1 << 20,
		StartOffset: kafkago.FirstOffset,
	})
	flush := cfg.BatchFlushInterval
	if flush <= 0 {
		flush = defaultFlushInterval
	}
	return &Reader{reader: r, logger: logger, flushInterval: flush}
}

// ExtractBatch collects notices until the batch is full or the flush
// interval passes. An empty batch with a nil
// error means the interval passed with nothing on the topic. On a fetch
// error the notices read so far are returned with it and must still be
// applied.
func (r *Reader) ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawNotice, error) {
	batchCtx, cancel := context.WithTimeout(ctx, r.flushInterval)
	defer cancel()

	batch := make([]domain.RawNotice, 0, batchSize)
	for len(batch) < batchSize {
		msg, err := r.reader.FetchMessage(batchCtx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				break
			}
			return batch, err
		}
		batch = append(batch, r.mapMessage(msg))
	}
	if len(batch) > 0 {
		r.logger.Debug("notice batch fetched", "size", len(batch))
	}
	return batch, nil
}

func (r *Reader) mapMessage(msg kafkago.Message) domain.RawNotice {
	raw := mapMessageToRawNotice(msg)
	raw.Commit = func(ctx context.Context) error {
		return r.reader.CommitMessages(ctx, msg)
	}
	return raw
}

func (r *Reader) Close() error {
	return r.reader.Close()
}

// mapMessageToRawNotice copies the message fields the listener logs and
// parses. Commit is left for the caller to bind.
func mapMessageToRawNotice(msg kafkago.Message) domain.RawNotice {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	return domain.RawNotice{
		Key:       msg.Key,
		Value:     msg.Value,
		Headers:   headers,
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
	}
}
