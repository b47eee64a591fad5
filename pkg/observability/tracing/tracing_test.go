package tracing

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fluxorio/isowrap/pkg/isowrap"
)

type pingObject struct{}

func (pingObject) Ping() string { return "pong" }

func TestStdoutProvider_SpansPerTransaction(t *testing.T) {
	var buf bytes.Buffer
	p, err := NewStdoutProvider(&buf)
	if err != nil {
		t.Fatalf("NewStdoutProvider() error = %v", err)
	}

	w, err := isowrap.New(&pingObject{}, isowrap.WithTracer(p.Tracer()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := w.Call("Ping"); err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	w.AsyncStop().Join()

	if err := p.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "isowrap.call") {
		t.Errorf("exported spans missing isowrap.call: %s", out)
	}
	if !strings.Contains(out, "isowrap.method") || !strings.Contains(out, "Ping") {
		t.Errorf("span attributes missing method: %s", out)
	}
}
