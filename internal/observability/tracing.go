package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/signalsfoundry/constellation-optimizer/internal/logging"
)

// Tracing environment variables.
const (
	EnvTracingEnabled     = "CONSTELLATION_TRACING_ENABLED"
	EnvTracingExporter    = "CONSTELLATION_TRACING_EXPORTER"
	EnvTracingService     = "CONSTELLATION_TRACING_SERVICE_NAME"
	EnvTracingSampleRatio = "CONSTELLATION_TRACING_SAMPLE_RATIO"
	EnvTracingAttributes  = "CONSTELLATION_TRACING_ATTRIBUTES"
	EnvOTLPEndpoint       = "CONSTELLATION_OTLP_ENDPOINT"
)

// Resource attribute keys added on top of the OpenTelemetry service keys.
const (
	AttrRole  = attribute.Key("constellation.role")
	AttrRunID = attribute.Key("constellation.run_id")
)

// TracingConfig governs how optimiser and visibility-service tracing is initialised.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	// Role is the process's part in a run: "optimizer" or "visibility-server".
	Role string
	// InstanceID becomes service.instance.id; a random one is used when empty.
	InstanceID  string
	Exporter    string // stdout | otlp
	Endpoint    string // used when Exporter == otlp
	SampleRatio float64
	// Attributes are extra resource attributes, e.g. the run ID.
	Attributes map[string]string
	// Output receives stdout-exporter spans; defaults to stderr because stdout
	// carries the optimiser's result document.
	Output io.Writer
}

// TracingConfigFromEnv reads CONSTELLATION_TRACING_* variables through getenv
// (os.Getenv when nil). The service name defaults to "constellation-" + role.
// CONSTELLATION_TRACING_ATTRIBUTES holds comma-separated key=value pairs.
func TracingConfigFromEnv(role string, getenv func(string) string) (TracingConfig, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg := TracingConfig{
		Enabled:     strings.EqualFold(getenv(EnvTracingEnabled), "true"),
		ServiceName: getenv(EnvTracingService),
		Role:        role,
		Exporter:    strings.ToLower(getenv(EnvTracingExporter)),
		Endpoint:    getenv(EnvOTLPEndpoint),
		SampleRatio: 1,
	}
	if cfg.Exporter == "" {
		cfg.Exporter = "stdout"
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "constellation-" + role
	}
	if raw := getenv(EnvTracingSampleRatio); raw != "" {
		ratio, err := strconv.ParseFloat(raw, 64)
		if err != nil || !(ratio >= 0 && ratio <= 1) {
			return TracingConfig{}, fmt.Errorf("%s=%q: want a ratio in [0, 1]", EnvTracingSampleRatio, raw)
		}
		cfg.SampleRatio = ratio
	}
	if raw := getenv(EnvTracingAttributes); raw != "" {
		cfg.Attributes = make(map[string]string)
		for _, pair := range strings.Split(raw, ",") {
			k, v, ok := strings.Cut(pair, "=")
			k = strings.TrimSpace(k)
			if !ok || k == "" {
				return TracingConfig{}, fmt.Errorf("%s: malformed pair %q", EnvTracingAttributes, pair)
			}
			cfg.Attributes[k] = strings.TrimSpace(v)
		}
	}
	return cfg, nil
}

// WithAttribute returns a copy of cfg carrying one more resource attribute.
func (cfg TracingConfig) WithAttribute(key attribute.Key, value string) TracingConfig {
	attrs := make(map[string]string, len(cfg.Attributes)+1)
	maps.Copy(attrs, cfg.Attributes)
	attrs[string(key)] = value
	cfg.Attributes = attrs
	return cfg
}

// InitTracing wires a tracer provider, exporter, propagators, and sampler based
// on the provided configuration. It returns a shutdown function to flush spans.
func InitTracing(ctx context.Context, cfg TracingConfig, log logging.Logger) (func(context.Context) error, error) {
	log = logging.OrNoop(log)

	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		otel.SetTextMapPropagator(propagation.TraceContext{})
		log.Info(ctx, "tracing disabled; using noop tracer provider")
		return func(context.Context) error { return nil }, nil
	}

	exp, err := exporterFromConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	sampler := sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sampler),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	log.Info(ctx, "tracing enabled",
		logging.String("exporter", cfg.Exporter),
		logging.String("service_name", cfg.ServiceName),
		logging.String("role", cfg.Role),
		logging.Float64("sample_ratio", cfg.SampleRatio),
	)

	return tp.Shutdown, nil
}

// newResource describes this process: service identity, role, any extra
// attributes, and host/process details detected by the SDK.
func newResource(ctx context.Context, cfg TracingConfig) (*resource.Resource, error) {
	instance := cfg.InstanceID
	if instance == "" {
		instance = uuid.NewString()
	}
	attrs := []attribute.KeyValue{
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.namespace", "constellation"),
		attribute.String("service.instance.id", instance),
	}
	if cfg.Role != "" {
		attrs = append(attrs, AttrRole.String(cfg.Role))
	}
	for _, k := range slices.Sorted(maps.Keys(cfg.Attributes)) {
		attrs = append(attrs, attribute.String(k, cfg.Attributes[k]))
	}
	res, err := resource.New(ctx,
		resource.WithHost(),
		resource.WithProcessPID(),
		resource.WithProcessRuntimeVersion(),
		resource.WithAttributes(attrs...),
	)
	if err != nil && !errors.Is(err, resource.ErrPartialResource) {
		return nil, fmt.Errorf("create resource: %w", err)
	}
	return res, nil
}

func exporterFromConfig(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(cfg.Exporter) {
	case "stdout", "":
		out := cfg.Output
		if out == nil {
			out = os.Stderr
		}
		return stdouttrace.New(
			stdouttrace.WithWriter(out),
			stdouttrace.WithPrettyPrint(),
			stdouttrace.WithoutTimestamps(),
		)
	case "otlp", "otlpgrpc":
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		client := otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
		return otlptrace.New(ctx, client)
	default:
		return nil, fmt.Errorf("unsupported tracing exporter: %s", cfg.Exporter)
	}
}

// ShutdownWithTimeout invokes the provided shutdown function with a bounded
// timeout, swallowing errors in the shutdown path.
func ShutdownWithTimeout(ctx context.Context, shutdown func(context.Context) error, log logging.Logger) {
	if shutdown == nil {
		return
	}
	log = logging.OrNoop(log)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Warn(ctx, "tracing shutdown failed", logging.Err(err))
	}
}

// Tracer returns the named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
