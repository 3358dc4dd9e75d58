package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Recorder is implemented by every metrics backend
type Recorder interface {
	RecordPluginLoad(status string, duration time.Duration)
	RecordRender(pages int, duration time.Duration)
}

// OTelMetrics holds OpenTelemetry metric instruments
type OTelMetrics struct {
	pluginLoads        metric.Int64Counter
	pluginLoadDuration metric.Float64Histogram
	pagesRendered      metric.Int64Counter
	renderDuration     metric.Float64Histogram
}

// NewOTelMetrics creates the instruments on provider, or on the global meter
// provider when provider is nil.
func NewOTelMetrics(provider metric.MeterProvider) (*OTelMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter("github.com/platinummonkey/quire")

	m := &OTelMetrics{}
	var err error

	m.pluginLoads, err = meter.Int64Counter(
		"quire.plugin.loads",
		metric.WithDescription("Plugin load attempts by outcome"),
		metric.WithUnit("{load}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create plugin loads counter: %w", err)
	}

	m.pluginLoadDuration, err = meter.Float64Histogram(
		"quire.plugin.load.duration",
		metric.WithDescription("Plugin load duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create plugin load duration histogram: %w", err)
	}

	m.pagesRendered, err = meter.Int64Counter(
		"quire.render.pages",
		metric.WithDescription("Pages written by completed renders"),
		metric.WithUnit("{page}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pages rendered counter: %w", err)
	}

	m.renderDuration, err = meter.Float64Histogram(
		"quire.render.duration",
		metric.WithDescription("Render duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create render duration histogram: %w", err)
	}

	return m, nil
}

// RecordPluginLoad records the outcome of one plugin load attempt
func (m *OTelMetrics) RecordPluginLoad(status string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	ctx := context.Background()

	m.pluginLoads.Add(ctx, 1, attrs)
	m.pluginLoadDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordRender records a completed render
func (m *OTelMetrics) RecordRender(pages int, duration time.Duration) {
	ctx := context.Background()

	m.pagesRendered.Add(ctx, int64(pages))
	m.renderDuration.Record(ctx, duration.Seconds())
}

// multiRecorder forwards each observation to every recorder
type multiRecorder []Recorder

// Fanout returns a Recorder that forwards to all non-nil recorders
func Fanout(recorders ...Recorder) Recorder {
	var out multiRecorder
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (m multiRecorder) RecordPluginLoad(status string, duration time.Duration) {
	for _, r := range m {
		r.RecordPluginLoad(status, duration)
	}
}

func (m multiRecorder) RecordRender(pages int, duration time.Duration) {
	for _, r := range m {
		r.RecordRender(pages, duration)
	}
}
