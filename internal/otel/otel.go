// Package otel holds the task, memory and stream metrics and their Prometheus export.
package otel

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelglobal "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const (
	meterName      = "github.com/shahincodev/Sofware-AI-English"
	defaultService = "software-ai"
)

// Exporter is an installed meter provider scraped through Handler.
type Exporter struct {
	// Handler serves the OpenMetrics text for /metrics.
	Handler  http.Handler
	provider *sdkmetric.MeterProvider
}

// Shutdown flushes and stops the meter provider.
func (e *Exporter) Shutdown(ctx context.Context) error {
	if e == nil || e.provider == nil {
		return nil
	}
	return e.provider.Shutdown(ctx)
}

// Setup installs a global meter provider backed by a private Prometheus registry,
// so only software-ai instruments appear on /metrics. An empty service name
// becomes "software-ai". On error nothing is installed and the server keeps
// its plain-text /metrics.
func Setup(ctx context.Context, service, version string) (*Exporter, error) {
	if service == "" {
		service = defaultService
	}
	reg := prometheus.NewRegistry()
	reader, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}
	attrs := []attribute.KeyValue{semconv.ServiceName(service)}
	if version != "" {
		attrs = append(attrs, semconv.ServiceVersion(version))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res))
	otelglobal.SetMeterProvider(mp)
	return &Exporter{
		Handler:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}),
		provider: mp,
	}, nil
}

// Meter returns the project meter from the global provider.
func Meter() metric.Meter {
	return otelglobal.Meter(meterName)
}

// Metric labels.
var (
	AttrMode   = attribute.Key("mode")
	AttrStatus = attribute.Key("status")
	AttrKind   = attribute.Key("error_kind")
	AttrAgent  = attribute.Key("agent")
	AttrReason = attribute.Key("reason")
	AttrResult = attribute.Key("result")
)
