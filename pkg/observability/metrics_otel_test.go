package observability

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func TestOTelMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	m, err := NewOTelMetrics(provider)
	require.NoError(t, err)

	m.RecordPluginLoad("loaded", 5*time.Millisecond)
	m.RecordPluginLoad("activation_failed", 5*time.Millisecond)
	m.RecordRender(7, time.Second)

	data := collect(t, reader)

	loads, ok := data["quire.plugin.loads"].(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Len(t, loads.DataPoints, 2)

	pages, ok := data["quire.render.pages"].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, pages.DataPoints, 1)
	assert.Equal(t, int64(7), pages.DataPoints[0].Value)

	assert.Contains(t, data, "quire.plugin.load.duration")
	assert.Contains(t, data, "quire.render.duration")
}

func TestNewOTelMetrics_GlobalProvider(t *testing.T) {
	m, err := NewOTelMetrics(nil)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		m.RecordPluginLoad("loaded", time.Millisecond)
		m.RecordRender(1, time.Millisecond)
	})
}

func TestFanout(t *testing.T) {
	first := NewMetrics(nil)
	second := NewMetrics(nil)

	recorder := Fanout(first, nil, second)
	recorder.RecordPluginLoad("loaded", time.Millisecond)
	recorder.RecordRender(2, time.Millisecond)

	for _, m := range []*Metrics{first, second} {
		assert.Equal(t, 1.0, testutil.ToFloat64(m.PluginLoadsTotal.WithLabelValues("loaded")))
		assert.Equal(t, 2.0, testutil.ToFloat64(m.PagesRenderedTotal))
	}
}
