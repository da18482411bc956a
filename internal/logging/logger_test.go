package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"disabled", zerolog.Disabled},
		{"", zerolog.InfoLevel},
		{"nonsense", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCtxAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "info", Output: &buf})
	defer Init(Config{Level: "info"})

	ctx := ContextWithRequestID(context.Background(), "req-123")
	Ctx(ctx).Info().Msg("hello")

	out := buf.String()
	if !strings.Contains(out, `"request_id":"req-123"`) {
		t.Errorf("expected request_id in output, got %s", out)
	}
	if RequestIDFromContext(context.Background()) != "" {
		t.Error("expected empty request id for bare context")
	}
}

func TestAttachBindsRequestID(t *testing.T) {
	var buf bytes.Buffer
	component := zerolog.New(&buf).With().Str("component", "journey").Logger()

	log := Attach(ContextWithRequestID(context.Background(), "req-9"), component)
	log.Info().Msg("resolved")
	out := buf.String()
	if !strings.Contains(out, `"request_id":"req-9"`) || !strings.Contains(out, `"component":"journey"`) {
		t.Errorf("unexpected output %s", out)
	}

	buf.Reset()
	Attach(context.Background(), component).Info().Msg("bare")
	if strings.Contains(buf.String(), "request_id") {
		t.Errorf("expected no request_id, got %s", buf.String())
	}
}
