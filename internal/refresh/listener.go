// Package refresh keeps the dataset cache in step with the offline pipeline.
//
// The offline pipeline publishes a JSON notice to a Kafka topic whenever it
// replaces one of the static files. The Listener consumes those notices in
// batches and evicts the matching cache entries; the next request reloads the
// file from disk. A notice without a path clears the whole cache.
package refresh

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	sharedretry "github.com/couchcryptid/storm-data-shared/retry"

	"github.com/bdu-carp/risk-dashboard/internal/domain"
	"github.com/bdu-carp/risk-dashboard/internal/observability"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// BatchExtractor reads up to batchSize raw notices from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawNotice, error)
}

// Invalidator evicts cached datasets.
type Invalidator interface {
	Invalidate(path string) bool
	Clear() int
}

// Listener applies dataset notices to the cache until its context ends.
type Listener struct {
	extractor BatchExtractor
	cache     Invalidator
	dataDir   string
	logger    *slog.Logger
	metrics   *observability.Metrics
	batchSize int
	ready     atomic.Bool
}

// New creates a Listener. Relative notice paths are also tried against
// dataDir, matching how dataset paths are configured.
func New(e BatchExtractor, cache Invalidator, dataDir string, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Listener {
	return &Listener{
		extractor: e,
		cache:     cache,
		dataDir:   dataDir,
		logger:    logger,
		metrics:   metrics,
		batchSize: batchSize,
	}
}

// CheckReadiness returns nil once the listener has completed a fetch from
// the topic.
func (l *Listener) CheckReadiness(_ context.Context) error {
	if !l.ready.Load() {
		return errors.New("refresh listener has not reached the broker yet")
	}
	return nil
}

// Run consumes notices until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	l.logger.Info("refresh listener started", "batch_size", l.batchSize)
	l.metrics.RefreshRunning.Set(1)
	defer l.metrics.RefreshRunning.Set(0)

	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("refresh listener stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !l.processBatch(ctx, &backoff) {
			return nil
		}
	}
}

// processBatch runs one extract-apply-commit cycle. Returns false if the listener should stop.
func (l *Listener) processBatch(ctx context.Context, backoff *time.Duration) bool {
	batch, err := l.extractor.ExtractBatch(ctx, l.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		// Notices fetched before the error are applied and committed; the
		// broker will not hand them out again to this consumer.
		l.applyBatch(ctx, batch)
		l.logger.Error("extract notices failed", "error", err, "applied", len(batch), "retry_in", *backoff)
		if !sharedretry.SleepWithContext(ctx, *backoff) {
			return false
		}
		*backoff = sharedretry.NextBackoff(*backoff, maxBackoff)
		return true
	}
	*backoff = initialBackoff
	l.ready.Store(true)

	if len(batch) == 0 {
		return ctx.Err() == nil
	}
	l.applyBatch(ctx, batch)
	return true
}

func (l *Listener) applyBatch(ctx context.Context, batch []domain.RawNotice) {
	if len(batch) == 0 {
		return
	}
	l.metrics.RefreshNotices.Add(float64(len(batch)))
	l.metrics.RefreshBatchSize.Observe(float64(len(batch)))

	for _, raw := range batch {
		l.apply(raw)
		l.commitOffset(ctx, raw)
	}
}

// apply evicts the cache entries named by one notice. Malformed notices are
// counted and skipped; they are still committed so they are not redelivered.
func (l *Listener) apply(raw domain.RawNotice) {
	n, err := domain.ParseDatasetNotice(raw)
	if err != nil {
		l.logger.Warn("malformed dataset notice, skipping",
			"error", err,
			"topic", raw.Topic,
			"partition", raw.Partition,
			"offset", raw.Offset,
		)
		l.metrics.RefreshErrors.Inc()
		return
	}

	if n.ClearsAll() {
		removed := l.cache.Clear()
		l.metrics.RefreshInvalidations.Inc()
		l.logger.Info("dataset cache cleared by notice", "removed", removed, "published_at", n.PublishedAt)
		return
	}

	hit := false
	for _, p := range l.candidates(n.Path) {
		if l.cache.Invalidate(p) {
			hit = true
		}
	}
	l.metrics.RefreshInvalidations.Inc()
	l.logger.Info("dataset notice applied",
		"path", n.Path,
		"dataset", n.Dataset,
		"cached", hit,
		"published_at", n.PublishedAt,
	)
}

// candidates lists the cache keys a notice path may refer to. Shapefile
// sidecars (.dbf, .shx, .prj, .cpg) map to their .shp.
func (l *Listener) candidates(path string) []string {
	path = filepath.Clean(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".dbf", ".shx", ".prj", ".cpg":
		path = strings.TrimSuffix(path, filepath.Ext(path)) + ".shp"
	}
	out := []string{path}
	if l.dataDir != "" && !filepath.IsAbs(path) {
		if joined := filepath.Join(l.dataDir, path); joined != path {
			out = append(out, joined)
		}
	}
	return out
}

// commitOffset commits the message offset if a commit function is available.
func (l *Listener) commitOffset(ctx context.Context, raw domain.RawNotice) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		l.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}
