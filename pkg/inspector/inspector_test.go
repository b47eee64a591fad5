package inspector

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/fluxorio/isowrap/pkg/isowrap"
)

type worker struct{}

func (worker) Work() string { return "done" }

func startInspector(t *testing.T) (*Inspector, string) {
	t.Helper()

	i := New()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	go func() { _ = i.Serve(ln) }()
	t.Cleanup(func() { _ = i.Shutdown() })

	return i, fmt.Sprintf("http://%s", ln.Addr())
}

func getJSON(t *testing.T, url string, target interface{}) int {
	t.Helper()

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		if err := json.Unmarshal(body, target); err != nil {
			t.Fatalf("decode body %q: %v", body, err)
		}
	}
	return resp.StatusCode
}

func TestInspector_StatusAll(t *testing.T) {
	i, base := startInspector(t)

	w, err := isowrap.New(&worker{}, isowrap.WithName("builder"), isowrap.WithThreads(2))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { w.AsyncStop().Join() }()
	i.Register(w)

	if _, err := w.Call("Work"); err != nil {
		t.Fatalf("Call() error = %v", err)
	}

	var all map[string]isowrap.Stats
	if code := getJSON(t, base+"/status", &all); code != http.StatusOK {
		t.Fatalf("GET /status = %d", code)
	}

	st, ok := all["builder"]
	if !ok {
		t.Fatalf("wrapper missing from status: %v", all)
	}
	if st.State != "running" || st.Threads != 2 || st.CallsCompleted == 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestInspector_StatusSingle(t *testing.T) {
	i, base := startInspector(t)

	w, err := isowrap.New(&worker{}, isowrap.WithName("solo"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { w.AsyncStop().Join() }()
	i.Register(w)

	var st isowrap.Stats
	if code := getJSON(t, base+"/status?wrapper=solo", &st); code != http.StatusOK {
		t.Fatalf("GET /status?wrapper=solo = %d", code)
	}
	if st.State != "running" {
		t.Errorf("stats = %+v", st)
	}

	if code := getJSON(t, base+"/status?wrapper=nobody", &st); code != http.StatusNotFound {
		t.Errorf("GET unknown wrapper = %d, want 404", code)
	}
}

func TestInspector_UnknownPath(t *testing.T) {
	_, base := startInspector(t)

	var v interface{}
	if code := getJSON(t, base+"/nope", &v); code != http.StatusNotFound {
		t.Errorf("GET /nope = %d, want 404", code)
	}
}

func TestInspector_Unregister(t *testing.T) {
	i, base := startInspector(t)

	w, err := isowrap.New(&worker{}, isowrap.WithName("gone"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { w.AsyncStop().Join() }()

	i.Register(w)
	i.Unregister("gone")

	var st isowrap.Stats
	if code := getJSON(t, base+"/status?wrapper=gone", &st); code != http.StatusNotFound {
		t.Errorf("GET unregistered wrapper = %d, want 404", code)
	}
}
