package telemetry_test

import (
	"context"
	"testing"

	"github.com/raid-guild/x402-facilitator-go/telemetry"
)

func TestSetup(t *testing.T) {

	t.Run("no endpoint disables tracing", func(t *testing.T) {
		shutdown, err := telemetry.Setup(context.Background(), "", "x402-facilitator")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := shutdown(ctx); err != nil {
			t.Fatalf("noop shutdown should not error: %v", err)
		}
	})

	t.Run("endpoint registers a provider", func(t *testing.T) {
		// Non-routable address so nothing is exported
		shutdown, err := telemetry.Setup(context.Background(), "http://192.0.2.1:4318", "x402-facilitator")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := shutdown(context.Background()); err != nil {
			t.Fatalf("shutdown error: %v", err)
		}
	})
}
