package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxpersona/internal/config"
)

func TestNewWithEmptyDSNIsNoop(t *testing.T) {
	sink, err := New(context.Background(), config.ClickHouseConfig{})
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		sink.Record(context.Background(), UsageRow{Model: "claude-sonnet-4-5", OccurredAt: time.Now()})
	})
	assert.NoError(t, sink.Close())
}

func TestNilSinkRecordIsNoop(t *testing.T) {
	var s *Sink
	assert.NotPanics(t, func() {
		s.Record(context.Background(), UsageRow{})
	})
	assert.NoError(t, s.Close())
}
