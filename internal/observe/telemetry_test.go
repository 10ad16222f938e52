package observe

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTelemetry_MetricsHandler(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tel, err := NewTelemetry(ctx, TelemetryConfig{ServiceName: "jarvis-test", ServiceVersion: "1.2.3"})
	if err != nil {
		t.Fatalf("NewTelemetry: %v", err)
	}
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	tel.Metrics().WakeDetections.Add(ctx, 1)

	rec := httptest.NewRecorder()
	tel.MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{"jarvis_wakeword_detections", "go_goroutines", `service_name="jarvis-test"`} {
		if !strings.Contains(string(body), want) {
			t.Errorf("/metrics output missing %q", want)
		}
	}
}

func TestTelemetry_ExportsSpans(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	exp := tracetest.NewInMemoryExporter()
	tel, err := NewTelemetry(ctx, TelemetryConfig{TraceExporter: exp})
	if err != nil {
		t.Fatalf("NewTelemetry: %v", err)
	}
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	_, span := tel.tracers.Tracer("test").Start(ctx, "stt.transcribe")
	span.End()
	if err := tel.tracers.ForceFlush(ctx); err != nil {
		t.Fatalf("ForceFlush: %v", err)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "stt.transcribe" {
		t.Fatalf("spans = %v, want one stt.transcribe span", spans)
	}
}

func TestTelemetry_SeparateRegistries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a, err := NewTelemetry(ctx, TelemetryConfig{})
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewTelemetry(ctx, TelemetryConfig{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = a.Shutdown(context.Background())
		_ = b.Shutdown(context.Background())
	})

	a.Metrics().Utterances.Add(ctx, 3)

	rec := httptest.NewRecorder()
	b.MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if strings.Contains(rec.Body.String(), "jarvis_utterances") {
		t.Error("metric recorded on one telemetry leaked into another registry")
	}
}
