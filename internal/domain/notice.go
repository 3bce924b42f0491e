package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RawNotice is an unprocessed message from the dataset notice topic.
type RawNotice struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// DatasetNotice announces that the offline pipeline has published a new
// version of a static file. An empty Path means every dataset changed.
type DatasetNotice struct {
	Path        string    `json:"path"`
	Dataset     string    `json:"dataset,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// ClearsAll reports whether the notice invalidates the whole cache.
func (n DatasetNotice) ClearsAll() bool { return n.Path == "" }

// ParseDatasetNotice decodes a notice. The message timestamp stands in for a
// missing published_at.
func ParseDatasetNotice(raw RawNotice) (DatasetNotice, error) {
	var n DatasetNotice
	if err := json.Unmarshal(raw.Value, &n); err != nil {
		return DatasetNotice{}, fmt.Errorf("parse dataset notice: %w", err)
	}
	n.Path = strings.TrimSpace(n.Path)
	n.Dataset = strings.TrimSpace(n.Dataset)
	if n.PublishedAt.IsZero() {
		n.PublishedAt = raw.Timestamp
	}
	return n, nil
}
