package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/mpapenbr/sentinel-replay/log"
	"github.com/mpapenbr/sentinel-replay/version"
)

const (
	ExporterGrpc   = "grpc"
	ExporterStdout = "stdout"
)

// Telemetry holds the providers installed as otel globals.
type Telemetry struct {
	traces  *sdktrace.TracerProvider
	metrics *sdkmetric.MeterProvider
}

// SetupTelemetry installs trace and metric providers exporting to
// TelemetryEndpoint (or stdout if TelemetryExporter says so).
func SetupTelemetry(ctx context.Context) (*Telemetry, error) {
	res, err := resource.Merge(resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", "sentinel"),
			attribute.String("service.version", version.Version),
		))
	if err != nil {
		return nil, err
	}
	var (
		traceExp  sdktrace.SpanExporter
		metricExp sdkmetric.Exporter
	)
	switch TelemetryExporter {
	case ExporterStdout:
		if traceExp, err = stdouttrace.New(stdouttrace.WithPrettyPrint()); err != nil {
			return nil, err
		}
		if metricExp, err = stdoutmetric.New(); err != nil {
			return nil, err
		}
	case ExporterGrpc, "":
		if traceExp, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(TelemetryEndpoint),
			otlptracegrpc.WithInsecure()); err != nil {
			return nil, err
		}
		if metricExp, err = otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(TelemetryEndpoint),
			otlpmetricgrpc.WithInsecure()); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown telemetry exporter %q", TelemetryExporter)
	}

	t := &Telemetry{
		traces: sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(traceExp),
			sdktrace.WithResource(res)),
		metrics: sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp,
				sdkmetric.WithInterval(15*time.Second))),
			sdkmetric.WithResource(res)),
	}
	otel.SetTracerProvider(t.traces)
	otel.SetMeterProvider(t.metrics)
	log.Info("telemetry enabled",
		log.String("exporter", TelemetryExporter),
		log.String("endpoint", TelemetryEndpoint))
	return t, nil
}

// Shutdown flushes pending data.
func (t *Telemetry) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := errors.Join(
		t.traces.Shutdown(ctx),
		t.metrics.Shutdown(ctx),
	); err != nil {
		log.Warn("telemetry shutdown", log.ErrorField(err))
	}
}
