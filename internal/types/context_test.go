package types

import (
	"context"
	"log/slog"
	"testing"
)

func TestWithRequestID_GetRequestID(t *testing.T) {
	t.Run("round-trip stores and retrieves request id", func(t *testing.T) {
		ctx := WithRequestID(context.Background(), "req-abc")
		if got := GetRequestID(ctx); got != "req-abc" {
			t.Errorf("GetRequestID: got %q, want %q", got, "req-abc")
		}
	})

	t.Run("missing request id returns empty string", func(t *testing.T) {
		if got := GetRequestID(context.Background()); got != "" {
			t.Errorf("GetRequestID on empty context: got %q, want empty", got)
		}
	})
}

func TestLoggerFromContext(t *testing.T) {
	fallback := slog.Default()

	t.Run("returns fallback when unset", func(t *testing.T) {
		if got := LoggerFromContext(context.Background(), fallback); got != fallback {
			t.Error("expected fallback logger")
		}
	})

	t.Run("returns stored logger", func(t *testing.T) {
		scoped := fallback.With("request_id", "req-1")
		ctx := WithLogger(context.Background(), scoped)
		if got := LoggerFromContext(ctx, fallback); got != scoped {
			t.Error("expected the request-scoped logger")
		}
	})
}
