package telemetry

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type recordingExporter struct {
	shutdowns int
}

func (e *recordingExporter) ExportSpans(context.Context, []sdktrace.ReadOnlySpan) error { return nil }

func (e *recordingExporter) Shutdown(context.Context) error {
	e.shutdowns++
	return nil
}

func TestSetup_NoopWhenEndpointEmpty(t *testing.T) {
	shutdown, err := Setup(context.Background(), "test-service", "  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetup_CreatesProviderWhenEndpointSet(t *testing.T) {
	// Non-routable address: nothing is exported because no spans are recorded.
	shutdown, err := Setup(context.Background(), "test-service", "http://192.0.2.1:4318")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetup_ShutsDownExporterWhenResourceFails(t *testing.T) {
	exp := &recordingExporter{}
	origExporter, origResource := newExporter, newResource
	t.Cleanup(func() { newExporter, newResource = origExporter, origResource })
	newExporter = func(context.Context, string) (sdktrace.SpanExporter, error) { return exp, nil }
	boom := errors.New("resource detection failed")
	newResource = func(context.Context, string) (*resource.Resource, error) { return nil, boom }

	shutdown, err := Setup(context.Background(), "test-service", "http://192.0.2.1:4318")
	if !errors.Is(err, boom) {
		t.Fatalf("got %v want %v", err, boom)
	}
	if exp.shutdowns != 1 {
		t.Fatalf("exporter shutdowns: got %d want 1", exp.shutdowns)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("noop shutdown: %v", err)
	}
}
