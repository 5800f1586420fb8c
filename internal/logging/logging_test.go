package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestPreInitLoggerUsesConfiguredHandler(t *testing.T) {
	logger := L("server")

	var buf bytes.Buffer
	Init("text", "info", &buf)

	logger.Info("client connected", "remote", "127.0.0.1:54321")

	out := buf.String()
	if strings.Contains(out, `msg="INFO client connected`) {
		t.Fatalf("unexpected nested severity prefix in message: %s", out)
	}
	if !strings.Contains(out, "msg=\"client connected\"") {
		t.Fatalf("expected plain message, got: %s", out)
	}
	if !strings.Contains(out, "component=server") {
		t.Fatalf("expected component field, got: %s", out)
	}
	if !strings.Contains(out, "remote=127.0.0.1:54321") {
		t.Fatalf("expected remote field, got: %s", out)
	}
}

func TestPreInitLoggerRespectsConfiguredLevel(t *testing.T) {
	logger := L("server")

	var buf bytes.Buffer
	Init("text", "warn", &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info log should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("warn log should be emitted: %s", out)
	}
}

func TestInitJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	Init("json", "info", &buf)

	L("mixer").Info("tick", "activeClients", 3)

	out := buf.String()
	if !strings.Contains(out, `"component":"mixer"`) {
		t.Fatalf("expected json component field, got: %s", out)
	}
	if !strings.Contains(out, `"activeClients":3`) {
		t.Fatalf("expected json activeClients field, got: %s", out)
	}
}

func TestWithClientAddsCorrelationFields(t *testing.T) {
	var buf bytes.Buffer
	Init("text", "info", &buf)

	logger := WithClient(L("client"), 7, "sess-abc")
	logger.Info("handshake complete")

	out := buf.String()
	if !strings.Contains(out, "clientId=7") {
		t.Fatalf("expected clientId field, got: %s", out)
	}
	if !strings.Contains(out, "sessionId=sess-abc") {
		t.Fatalf("expected sessionId field, got: %s", out)
	}
}

func TestContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	Init("text", "info", &buf)

	logger := L("handshake")
	ctx := NewContext(t.Context(), logger)

	got := FromContext(ctx)
	got.Info("from context")

	if !strings.Contains(buf.String(), "component=handshake") {
		t.Fatalf("expected logger retrieved from context to carry component field, got: %s", buf.String())
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	logger := FromContext(t.Context())
	if logger == nil {
		t.Fatal("expected non-nil fallback logger")
	}
}

func TestParseLevel(t *testing.T) {
	cases := []string{"debug", "DEBUG", "warn", "warning", "error", "info", "", "bogus"}
	for _, input := range cases {
		_ = parseLevel(input)
	}
}
