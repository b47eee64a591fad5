package remote

import (
	"errors"
	"strings"
	"testing"
	"time"

	natssrv "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/fluxorio/isowrap/pkg/isowrap"
)

func runTestNATSServer(t *testing.T) *natssrv.Server {
	t.Helper()

	opts := &natssrv.Options{
		Port: -1,
	}
	s, err := natssrv.NewServer(opts)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	go s.Start()
	if !s.ReadyForConnections(5 * time.Second) {
		s.Shutdown()
		t.Fatalf("nats server not ready")
	}
	t.Cleanup(func() {
		s.Shutdown()
	})
	return s
}

func connect(t *testing.T, url string) *nats.Conn {
	t.Helper()
	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("nats.Connect: %v", err)
	}
	t.Cleanup(nc.Close)
	return nc
}

type ledger struct {
	balance float64
}

func (l *ledger) Deposit(amount float64) float64 {
	l.balance += amount
	return l.balance
}

func (l *ledger) Describe(args []interface{}, kwargs map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"args":   args,
		"kwargs": kwargs,
	}
}

func (l *ledger) Fail() error {
	return errors.New("insufficient funds")
}

func newServedWrapper(t *testing.T, nc *nats.Conn, subject string) *isowrap.Wrapper {
	t.Helper()

	w, err := isowrap.New(&ledger{}, isowrap.WithThreads(2))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { w.AsyncStop().Join() })

	srv, err := Serve(nc, subject, w)
	if err != nil {
		t.Fatalf("Serve() error = %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })
	return w
}

func TestRemote_CallRoundTrip(t *testing.T) {
	s := runTestNATSServer(t)
	nc := connect(t, s.ClientURL())
	newServedWrapper(t, nc, "isowrap.test.ledger")

	client := NewClient(nc, "isowrap.test.ledger", 2*time.Second)

	v, err := client.Call("Deposit", 10.5)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	// JSON numbers decode as float64.
	if v.(float64) != 10.5 {
		t.Errorf("Deposit = %v, want 10.5", v)
	}

	v, err = client.Call("Deposit", 4.5)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if v.(float64) != 15 {
		t.Errorf("Deposit = %v, want 15", v)
	}
}

func TestRemote_KwargsCross(t *testing.T) {
	s := runTestNATSServer(t)
	nc := connect(t, s.ClientURL())
	newServedWrapper(t, nc, "isowrap.test.kwargs")

	client := NewClient(nc, "isowrap.test.kwargs", 2*time.Second)

	v, err := client.CallWith("Describe", []interface{}{"a"}, map[string]interface{}{"k": "v"})
	if err != nil {
		t.Fatalf("CallWith() error = %v", err)
	}
	m := v.(map[string]interface{})
	if m["kwargs"].(map[string]interface{})["k"] != "v" {
		t.Errorf("Describe = %#v", m)
	}
}

func TestRemote_ErrorComesBackAsCallError(t *testing.T) {
	s := runTestNATSServer(t)
	nc := connect(t, s.ClientURL())
	newServedWrapper(t, nc, "isowrap.test.fail")

	client := NewClient(nc, "isowrap.test.fail", 2*time.Second)

	_, err := client.Call("Fail")
	var ce *isowrap.CallError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %T(%v), want *CallError", err, err)
	}
	if !strings.Contains(ce.Message, "insufficient funds") {
		t.Errorf("Message = %q", ce.Message)
	}
}

func TestRemote_UnknownMethod(t *testing.T) {
	s := runTestNATSServer(t)
	nc := connect(t, s.ClientURL())
	newServedWrapper(t, nc, "isowrap.test.unknown")

	client := NewClient(nc, "isowrap.test.unknown", 2*time.Second)

	_, err := client.Call("Missing")
	if err == nil || !strings.Contains(err.Error(), "Missing") {
		t.Errorf("Call(Missing) error = %v", err)
	}
}

func TestRemote_RefusedAfterShutdown(t *testing.T) {
	s := runTestNATSServer(t)
	nc := connect(t, s.ClientURL())
	w := newServedWrapper(t, nc, "isowrap.test.closed")

	w.AsyncStop().Join()

	client := NewClient(nc, "isowrap.test.closed", 2*time.Second)
	_, err := client.Call("Deposit", 1.0)
	if err == nil || !strings.Contains(err.Error(), "shutting down") {
		t.Errorf("Call() after shutdown error = %v, want shutdown refusal", err)
	}
}
