package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsHighCardinalityLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("user_id", "123"),
		attribute.String("fusion_id", "456"),
		attribute.String("policy_version", "v2"),
		attribute.String("action", "fusion"),
	)
	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.Key("policy_version"), attrs[0].Key)
	assert.Equal(t, attribute.Key("action"), attrs[1].Key)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordFusionCommit(context.Background(), "success", "v2")
	m.RecordRateLimitDenied(context.Background(), "fusion", "limit")

	var f *FusionMetrics
	f.ObserveCommit("success", "v2", time.Second)
	f.IncError("conflict")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	require.NoError(t, err)
	m.RecordFusionCommit(context.Background(), "failure", "v1")
	m.RecordFusionReplay(context.Background())
	m.RecordRateLimitAllowed(context.Background(), "fusion")
}

func TestFusionMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewFusionMetrics(reg, Config{ServiceName: "cardforge", Environment: "test"})

	m.ObserveCommit("success", "v2", 120*time.Millisecond)
	m.ObserveCommit("success", "v2", 80*time.Millisecond)
	m.ObserveCommit("failure", "v3", 10*time.Millisecond)
	m.IncReplay()
	m.IncError("conflict")
	m.IncRateLimit("fusion", "denied")
	m.ObserveDBLockWait(LockResourceInventory, 5*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.commits.WithLabelValues("success", "v2")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commits.WithLabelValues("failure", "v3")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.replays))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rateLimit.WithLabelValues("fusion", "denied")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.duration))
}
