// Package telemetry wires the OpenTelemetry metrics pipeline. Metrics are
// exported periodically as JSON into a rotated file; a collector can pick
// them up from the SDK the same way.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"topicchat/backend/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const serviceName = "topicchat"

// InitMetrics returns the meter used by the service and a shutdown func that
// flushes pending data. With telemetry disabled it returns a no-op meter.
func InitMetrics(ctx context.Context, cfg config.TelemetryConfig, version string) (metric.Meter, func(context.Context) error, error) {
	if !cfg.Enabled {
		return noop.NewMeterProvider().Meter(serviceName), func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create resource: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.MetricsFile), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create metrics directory: %w", err)
	}
	metricsFile := &lumberjack.Logger{
		Filename:   cfg.MetricsFile,
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}

	exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(metricsFile))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.Interval))),
	)
	otel.SetMeterProvider(mp)

	shutdown := func(ctx context.Context) error {
		err := mp.Shutdown(ctx)
		if closeErr := metricsFile.Close(); err == nil {
			err = closeErr
		}
		return err
	}
	return mp.Meter(serviceName), shutdown, nil
}
