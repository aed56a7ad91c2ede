package telemetry

import (
	"context"
	"errors"
	"os"

	"github.com/rs/zerolog"
	"github.com/rynowak/tye/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const serviceName = "tyed"

// Setup installs the global meter provider and returns it with its shutdown
// func. Without an OTLP endpoint nothing is exported and the returned
// provider is the global no-op one.
func Setup(ctx context.Context, cfg *config.TelemetryConfig, logger zerolog.Logger) (metric.MeterProvider, func(context.Context) error, error) {
	if cfg.OTLPEndpoint == "" {
		logger.Debug().Msg("No OTLP endpoint configured, metrics are not exported")
		return otel.GetMeterProvider(), func(context.Context) error { return nil }, nil
	}

	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
		opts = append(opts, otlpmetricgrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
	}

	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, nil, err
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			attribute.String("host.name", hostname),
		),
	)
	if err != nil {
		return nil, nil, errors.Join(err, exporter.Shutdown(ctx))
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.PushInterval))),
	)
	otel.SetMeterProvider(provider)

	logger.Info().Str("endpoint", cfg.OTLPEndpoint).Dur("interval", cfg.PushInterval).Msg("Exporting metrics over OTLP")
	return provider, provider.Shutdown, nil
}
