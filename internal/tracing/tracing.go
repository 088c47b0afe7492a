// Package tracing exports turn, capability and tool spans over OTLP gRPC.
package tracing

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/moolen/sre-assistant/internal/config"
	"github.com/moolen/sre-assistant/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// ServiceName is reported as service.name on every span.
const ServiceName = "sre-assistant"

// Tracer returns a tracer from the global provider. Without an enabled
// Provider this is the otel no-op tracer.
func Tracer(component string) trace.Tracer {
	return otel.Tracer(ServiceName + "/" + component)
}

// Provider owns the SDK tracer provider and implements lifecycle.Component.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	logger         *logging.Logger
}

// NewProvider installs a global tracer provider exporting to cfg.Endpoint.
// A disabled config yields a Provider whose Start and Stop do nothing.
func NewProvider(cfg config.TracingConfig, version string) (*Provider, error) {
	logger := logging.GetLogger("tracing")
	if !cfg.Enabled {
		logger.Debug("tracing disabled")
		return &Provider{logger: logger}, nil
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("tracing enabled but endpoint not configured")
	}

	creds, err := transportCredentials(cfg)
	if err != nil {
		return nil, err
	}
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(creds)),
	}
	if cfg.CAPath == "" && !cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(ServiceName),
		semconv.ServiceVersion(version),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	logger.Info("tracing initialized with endpoint %s", cfg.Endpoint)

	return &Provider{tracerProvider: tp, logger: logger}, nil
}

// transportCredentials picks plaintext unless a CA file or insecure TLS is
// configured.
func transportCredentials(cfg config.TracingConfig) (credentials.TransportCredentials, error) {
	switch {
	case cfg.Insecure:
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true, MinVersion: tls.VersionTLS12}), nil //nolint:gosec
	case cfg.CAPath != "":
		pem, err := os.ReadFile(cfg.CAPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("failed to append CA certificate to pool")
		}
		return credentials.NewTLS(&tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}), nil
	default:
		return insecure.NewCredentials(), nil
	}
}

// Enabled reports whether spans are exported.
func (p *Provider) Enabled() bool {
	return p.tracerProvider != nil
}

// Start implements lifecycle.Component
func (p *Provider) Start(context.Context) error {
	return nil
}

// Stop flushes pending spans.
func (p *Provider) Stop(ctx context.Context) error {
	if p.tracerProvider == nil {
		return nil
	}
	if err := p.tracerProvider.Shutdown(ctx); err != nil {
		p.logger.ErrorWithErr("error shutting down tracer provider", err)
		return err
	}
	return nil
}

// Name implements lifecycle.Component
func (p *Provider) Name() string {
	return "tracing"
}
