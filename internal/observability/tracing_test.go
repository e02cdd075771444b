package observability

import (
	"bytes"
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/constellation-optimizer/internal/logging"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestTracingConfigFromEnv(t *testing.T) {
	cfg, err := TracingConfigFromEnv("visibility-server", envMap(map[string]string{
		EnvTracingEnabled:     "TRUE",
		EnvTracingExporter:    "OTLP",
		EnvTracingSampleRatio: "0.25",
		EnvTracingAttributes:  "deployment=lab, zone = eu",
		EnvOTLPEndpoint:       "collector:4317",
	}))
	if err != nil {
		t.Fatalf("TracingConfigFromEnv error: %v", err)
	}
	if !cfg.Enabled || cfg.Exporter != "otlp" || cfg.Endpoint != "collector:4317" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.ServiceName != "constellation-visibility-server" || cfg.Role != "visibility-server" {
		t.Fatalf("service name/role = %q/%q", cfg.ServiceName, cfg.Role)
	}
	if cfg.SampleRatio != 0.25 {
		t.Fatalf("sample ratio = %v, want 0.25", cfg.SampleRatio)
	}
	if cfg.Attributes["deployment"] != "lab" || cfg.Attributes["zone"] != "eu" {
		t.Fatalf("attributes = %q", cfg.Attributes)
	}
}

func TestTracingConfigDefaults(t *testing.T) {
	cfg, err := TracingConfigFromEnv("optimizer", envMap(nil))
	if err != nil {
		t.Fatalf("TracingConfigFromEnv error: %v", err)
	}
	if cfg.Enabled || cfg.Exporter != "stdout" || cfg.SampleRatio != 1 || cfg.ServiceName != "constellation-optimizer" {
		t.Fatalf("defaults = %+v", cfg)
	}
}

func TestTracingConfigRejectsBadValues(t *testing.T) {
	for name, env := range map[string]map[string]string{
		"ratio above one": {EnvTracingSampleRatio: "3"},
		"ratio not float": {EnvTracingSampleRatio: "half"},
		"attribute pair":  {EnvTracingAttributes: "a=1,oops"},
		"empty key":       {EnvTracingAttributes: "=1"},
	} {
		if _, err := TracingConfigFromEnv("x", envMap(env)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestResourceCarriesRoleAndRunID(t *testing.T) {
	base := TracingConfig{ServiceName: "svc", Role: "optimizer", InstanceID: "inst-1"}
	cfg := base.WithAttribute(AttrRunID, "run-7")
	if base.Attributes != nil {
		t.Fatalf("WithAttribute modified the receiver")
	}

	res, err := newResource(context.Background(), cfg)
	if err != nil {
		t.Fatalf("newResource error: %v", err)
	}
	want := map[attribute.Key]string{
		"service.name":        "svc",
		"service.namespace":   "constellation",
		"service.instance.id": "inst-1",
		AttrRole:              "optimizer",
		AttrRunID:             "run-7",
	}
	for k, v := range want {
		got, ok := res.Set().Value(k)
		if !ok || got.AsString() != v {
			t.Fatalf("resource %s = %q (present %v), want %q", k, got.AsString(), ok, v)
		}
	}

	res, err = newResource(context.Background(), TracingConfig{ServiceName: "svc"})
	if err != nil {
		t.Fatalf("newResource error: %v", err)
	}
	if id, ok := res.Set().Value("service.instance.id"); !ok || id.AsString() == "" {
		t.Fatalf("missing generated instance id")
	}
}

func TestStdoutExporterWritesToConfiguredOutput(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	shutdown, err := InitTracing(ctx, TracingConfig{Enabled: true, ServiceName: "svc", Exporter: "stdout", SampleRatio: 1, Output: &buf}, nil)
	if err != nil {
		t.Fatalf("InitTracing error: %v", err)
	}
	_, span := Tracer("test").Start(ctx, "unit-span")
	span.End()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("unit-span")) {
		t.Fatalf("span not written to configured output:\n%s", buf.String())
	}
	// Leave the global provider disabled for other tests.
	if _, err := InitTracing(ctx, TracingConfig{}, nil); err != nil {
		t.Fatalf("reset tracing: %v", err)
	}
}

func TestInitTracingDisabledAndBadExporter(t *testing.T) {
	ctx := context.Background()
	shutdown, err := InitTracing(ctx, TracingConfig{}, logging.Noop())
	if err != nil {
		t.Fatalf("InitTracing disabled: %v", err)
	}
	ShutdownWithTimeout(ctx, shutdown, nil)

	if _, err := InitTracing(ctx, TracingConfig{Enabled: true, Exporter: "carrier-pigeon"}, nil); err == nil {
		t.Fatalf("expected error for unsupported exporter")
	}
}
