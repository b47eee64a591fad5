package diagnostics

import (
	"path/filepath"
	"testing"

	"github.com/fluxorio/isowrap/pkg/isowrap"
)

// Compile-time check: Journal satisfies the drop-journal contract.
var _ isowrap.DropJournal = (*Journal)(nil)

func TestJournal_RecordAndQuery(t *testing.T) {
	j, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer j.Close()

	j.RecordDrop("w1", "txn1", "Echo", "mailbox is closed")
	j.RecordDrop("w1", "txn2", "Slow", "mailbox is closed")
	j.RecordDrop("w2", "txn3", "Other", "mailbox is closed")

	drops, err := j.Drops("w1")
	if err != nil {
		t.Fatalf("Drops() error = %v", err)
	}
	if len(drops) != 2 {
		t.Fatalf("Drops() returned %d rows, want 2", len(drops))
	}
	if drops[0].Transaction != "txn1" || drops[1].Transaction != "txn2" {
		t.Errorf("drops out of order: %+v", drops)
	}
	if drops[0].Method != "Echo" || drops[0].Reason != "mailbox is closed" {
		t.Errorf("drop fields = %+v", drops[0])
	}
	if drops[0].RecordedAt.IsZero() {
		t.Error("RecordedAt not recorded")
	}
}

func TestJournal_FileBacked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drops.db")

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	j.RecordDrop("w", "t", "M", "r")
	if err := j.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Reopen: rows persist.
	j2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer j2.Close()

	drops, err := j2.Drops("w")
	if err != nil {
		t.Fatalf("Drops() error = %v", err)
	}
	if len(drops) != 1 {
		t.Errorf("Drops() after reopen = %d rows, want 1", len(drops))
	}
}

func TestJournal_EmptyResult(t *testing.T) {
	j, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer j.Close()

	drops, err := j.Drops("nobody")
	if err != nil {
		t.Fatalf("Drops() error = %v", err)
	}
	if len(drops) != 0 {
		t.Errorf("Drops() = %d rows, want 0", len(drops))
	}
}
