package monitor

import (
	"context"
	"testing"
)

func TestInitTracer_InstallsProviderAndShutsDownCleanly(t *testing.T) {
	shutdown, err := InitTracer("test-instance", discardLogger())
	if err != nil {
		t.Fatalf("InitTracer: %v", err)
	}

	_, span := Tracer().Start(context.Background(), "test-span")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
