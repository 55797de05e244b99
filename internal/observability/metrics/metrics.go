package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	workspaceSwitches metric.Int64Counter
	paymentOutcomes   metric.Int64Counter
	renewalAttempts   metric.Int64Counter
	quotaDenials      metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "weldvault"
	}
	meter := provider.Meter(name)

	workspaceSwitches, err := meter.Int64Counter("weldvault_workspace_switches_total")
	if err != nil {
		return nil, err
	}
	paymentOutcomes, err := meter.Int64Counter("weldvault_payment_outcomes_total")
	if err != nil {
		return nil, err
	}
	renewalAttempts, err := meter.Int64Counter("weldvault_renewal_attempts_total")
	if err != nil {
		return nil, err
	}
	quotaDenials, err := meter.Int64Counter("weldvault_quota_denials_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		workspaceSwitches: workspaceSwitches,
		paymentOutcomes:   paymentOutcomes,
		renewalAttempts:   renewalAttempts,
		quotaDenials:      quotaDenials,
	}, nil
}

// RecordWorkspaceSwitch increments workspace switch counts.
func (m *Metrics) RecordWorkspaceSwitch(ctx context.Context, kind, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("workspace_kind", strings.TrimSpace(kind)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.workspaceSwitches.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPaymentOutcome increments payment order outcome counts.
func (m *Metrics) RecordPaymentOutcome(ctx context.Context, method, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("method", strings.TrimSpace(method)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.paymentOutcomes.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRenewalAttempt increments renewal attempt counts.
func (m *Metrics) RecordRenewalAttempt(ctx context.Context, tier, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("tier", strings.TrimSpace(tier)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.renewalAttempts.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordQuotaDenial increments quota denial counts.
func (m *Metrics) RecordQuotaDenial(ctx context.Context, resourceKind, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("resource_kind", strings.TrimSpace(resourceKind)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.quotaDenials.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"workspace_kind": {},
	"tier":           {},
	"endpoint":       {},
	"status_code":    {},
	"method":         {},
	"outcome":        {},
	"resource_kind":  {},
	"reason":         {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
