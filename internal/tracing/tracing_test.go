package tracing

import (
	"context"
	"log/slog"
	"net/http"
	"testing"
)

func TestHostPort(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"collector:4317", "collector:4317"},
		{"collector:4317/", "collector:4317"},
		{"http://collector:4317", "collector:4317"},
		{"https://otel.example.com:443/v1/traces", "otel.example.com:443"},
	}
	for _, tt := range tests {
		if got := hostPort(tt.in); got != tt.want {
			t.Errorf("hostPort(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolve(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "")

	s := resolve(Config{})
	if s.serviceName != "elqbulk" || s.endpoint != "localhost:4317" || s.sampleRatio != 1 || s.insecure {
		t.Fatalf("defaults = %+v", s)
	}

	s = resolve(Config{ServiceName: "svc", OTLPEndpoint: "https://otel:4317", SampleRatio: 0.25})
	if s.serviceName != "svc" || s.endpoint != "otel:4317" || s.sampleRatio != 0.25 {
		t.Fatalf("explicit = %+v", s)
	}

	t.Setenv("OTEL_SERVICE_NAME", "from-env")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://env-collector:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "yes")
	s = resolve(Config{SampleRatio: 3})
	if s.serviceName != "from-env" || s.endpoint != "env-collector:4317" || !s.insecure || s.sampleRatio != 1 {
		t.Fatalf("env = %+v", s)
	}
}

func TestDisabledSetupPropagatesRemoteParent(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{Enabled: false}, slog.Default())
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer shutdown(context.Background())

	const parent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	ctx := ContextWithRemoteParent(context.Background(), parent, "")
	tp, _ := TraceContextStrings(ctx)
	if tp != parent {
		t.Fatalf("traceparent = %q, want %q", tp, parent)
	}

	h := http.Header{}
	InjectHeaders(ctx, h)
	if h.Get("traceparent") != parent {
		t.Errorf("injected traceparent = %q", h.Get("traceparent"))
	}
	if h.Get("baggage") != "" {
		t.Errorf("baggage must not be forwarded")
	}
}

func TestContextWithRemoteParentBlank(t *testing.T) {
	ctx := context.Background()
	if got := ContextWithRemoteParent(ctx, " ", ""); got != ctx {
		t.Fatalf("blank trace context should return ctx unchanged")
	}
}
