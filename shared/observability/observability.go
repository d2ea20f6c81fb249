package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"github.com/libohan-ha/BaiHe-sub001/pkg/logger"
)

// SetupTracing initializes OpenTelemetry tracing with a stdout exporter
// (replace with OTLP in production). Returns a shutdown function.
func SetupTracing(serviceName string) (func(context.Context) error, error) {
	exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	res, _ := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)

	provider := trace.NewTracerProvider(
		trace.WithBatcher(exp),
		trace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return provider.Shutdown, nil
}

// SetupPrometheusMetrics initializes the Prometheus exporter and serves
// /metrics on the given address
func SetupPrometheusMetrics(addr string, log *logger.Logger) *metric.MeterProvider {
	exp, err := otelprom.New()
	if err != nil {
		log.LogError(err, "failed to initialize prometheus exporter")
		return nil
	}

	mp := metric.NewMeterProvider(metric.WithReader(exp))

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.LogError(err, "metrics endpoint stopped", "addr", addr)
		}
	}()

	return mp
}
