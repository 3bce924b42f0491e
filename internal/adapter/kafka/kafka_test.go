package kafka

import (
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdu-carp/risk-dashboard/internal/domain"
)

func TestMapMessageToRawNotice(t *testing.T) {
	now := time.Now()
	msg := kafkago.Message{
		Key:       []byte("data/rmetric_gdf.shp"),
		Value:     []byte(`{"path":"data/rmetric_gdf.shp"}`),
		Topic:     "dataset-published",
		Partition: 2,
		Offset:    42,
		Time:      now,
		Headers: []kafkago.Header{
			{Key: "dataset", Value: []byte("zones")},
		},
	}

	raw := mapMessageToRawNotice(msg)

	assert.Equal(t, []byte("data/rmetric_gdf.shp"), raw.Key)
	assert.JSONEq(t, `{"path":"data/rmetric_gdf.shp"}`, string(raw.Value))
	assert.Equal(t, "dataset-published", raw.Topic)
	assert.Equal(t, 2, raw.Partition)
	assert.Equal(t, int64(42), raw.Offset)
	assert.Equal(t, now, raw.Timestamp)
	assert.Equal(t, "zones", raw.Headers["dataset"])
	assert.Nil(t, raw.Commit)
}

func TestSerializeNotice(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)
	notice := domain.DatasetNotice{Path: "data/year_rank.csv", Dataset: "year_rank", PublishedAt: now}

	msg, err := serializeNotice(notice)
	require.NoError(t, err)

	assert.Equal(t, []byte("data/year_rank.csv"), msg.Key)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "dataset", msg.Headers[0].Key)
	assert.Equal(t, []byte("year_rank"), msg.Headers[0].Value)
	assert.Equal(t, "published_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[1].Value)

	parsed, err := domain.ParseDatasetNotice(mapMessageToRawNotice(msg))
	require.NoError(t, err)
	assert.Equal(t, notice, parsed)
}

func TestSerializeNotice_StampsMissingTime(t *testing.T) {
	msg, err := serializeNotice(domain.DatasetNotice{})
	require.NoError(t, err)

	parsed, err := domain.ParseDatasetNotice(mapMessageToRawNotice(msg))
	require.NoError(t, err)
	assert.True(t, parsed.ClearsAll())
	assert.False(t, parsed.PublishedAt.IsZero())
}
