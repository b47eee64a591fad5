package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fluxorio/isowrap/pkg/isowrap"
)

const sampleYAML = `
name: billing
threads: 4
logging: true
default:
  move_data: true
  move_results: false
methods:
  Transfer:
    move_arguments: true
  Report:
    execute_blocks_in_place: true
`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadWrapper_YAML(t *testing.T) {
	path := writeTemp(t, "wrapper.yaml", sampleYAML)

	c, err := LoadWrapper(path, "")
	if err != nil {
		t.Fatalf("LoadWrapper() error = %v", err)
	}

	if c.Name != "billing" || c.Threads != 4 || !c.Logging {
		t.Errorf("loaded = %+v", c)
	}
	if c.Default.MoveData == nil || !*c.Default.MoveData {
		t.Error("default move_data not loaded")
	}
	if c.Default.MoveResults == nil || *c.Default.MoveResults {
		t.Error("default move_results override not loaded")
	}
	if c.Methods["Transfer"].MoveArguments == nil || !*c.Methods["Transfer"].MoveArguments {
		t.Error("method move_arguments not loaded")
	}
	if !c.Methods["Report"].ExecuteBlocksInPlace {
		t.Error("method execute_blocks_in_place not loaded")
	}
}

func TestLoadWrapper_JSON(t *testing.T) {
	path := writeTemp(t, "wrapper.json", `{"name":"j","threads":2}`)

	c, err := LoadWrapper(path, "")
	if err != nil {
		t.Fatalf("LoadWrapper() error = %v", err)
	}
	if c.Name != "j" || c.Threads != 2 {
		t.Errorf("loaded = %+v", c)
	}
}

func TestLoadWrapper_EnvOverrides(t *testing.T) {
	path := writeTemp(t, "wrapper.yaml", sampleYAML)

	t.Setenv("ISOWRAP_THREADS", "8")
	t.Setenv("ISOWRAP_LOGGING", "false")
	t.Setenv("ISOWRAP_DEFAULT_MOVEDATA", "false")

	c, err := LoadWrapper(path, "")
	if err != nil {
		t.Fatalf("LoadWrapper() error = %v", err)
	}
	if c.Threads != 8 {
		t.Errorf("Threads = %d, want 8 (env override)", c.Threads)
	}
	if c.Logging {
		t.Error("Logging override not applied")
	}
	if c.Default.MoveData == nil || *c.Default.MoveData {
		t.Error("nested pointer-bool override not applied")
	}
}

type counterObject struct{ n int }

func (c *counterObject) Incr() int { c.n++; return c.n }

func TestWrapper_OptionsBuildWorkingWrapper(t *testing.T) {
	path := writeTemp(t, "wrapper.yaml", sampleYAML)

	c, err := LoadWrapper(path, "")
	if err != nil {
		t.Fatalf("LoadWrapper() error = %v", err)
	}

	w, err := isowrap.New(&counterObject{}, c.Options()...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { w.AsyncStop().Join() }()

	if w.Name() != "billing" || w.Threads() != 4 {
		t.Errorf("wrapper = %s/%d", w.Name(), w.Threads())
	}

	// A per-method policy stands alone; flags it leaves unset resolve
	// against its own move_data, not the wrapper default.
	p := w.MethodSettings("Transfer")
	if !p.MoveArguments || p.MoveBlockArguments {
		t.Errorf("Transfer policy = %+v", p)
	}
	dp := w.MethodSettings("anything")
	if !dp.MoveArguments || dp.MoveResults {
		t.Errorf("default policy = %+v", dp)
	}

	if _, err := w.Call("Incr"); err != nil {
		t.Errorf("Call() error = %v", err)
	}
}
