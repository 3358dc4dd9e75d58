// Package observability provides logging setup, Prometheus and OpenTelemetry
// metrics, tracing, health checks, and shutdown handling for quire.
//
// # Logging
//
//	log, err := observability.NewLogger("debug", observability.FormatText, os.Stderr)
//
// # Metrics
//
// Metrics and OTelMetrics both implement Recorder; Fanout combines them so
// the plugin loader and renderer report to every backend:
//
//	metrics := observability.NewMetrics(nil)
//	otelMetrics, _ := observability.NewOTelMetrics(nil)
//	recorder := observability.Fanout(metrics, otelMetrics)
//	...
//	_ = metrics.WriteTextfile("/var/lib/node_exporter/quire.prom")
//
// # Tracing
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "quire",
//		Insecure:    true,
//	}, log)
//	defer observability.ShutdownOTel(ctx, providers, log)
package observability
