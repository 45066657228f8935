package output

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jobstr/harvester/internal/fault"
	"github.com/jobstr/harvester/internal/note"
	"github.com/jobstr/harvester/internal/note/notetest"
)

func TestWrite_IndentedArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.json")
	w := NewWriter(path)

	if err := w.Write([]note.Record{notetest.Record(1), notetest.Record(2)}); err != nil {
		t.Fatalf("write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.HasPrefix(string(data), "[\n  {\n    \"content\"") {
		t.Errorf("expected two-space indented array, got:\n%s", data)
	}

	var raw []map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, obj := range raw {
		for _, field := range []string{"content", "pubkey", "created_at", "sig", "tags", "id"} {
			if _, ok := obj[field]; !ok {
				t.Errorf("missing field %q", field)
			}
		}
		if len(obj) != 6 {
			t.Errorf("expected exactly 6 fields, got %d", len(obj))
		}
	}
}

func TestWrite_EmptyIsArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.json")
	if err := NewWriter(path).Write(nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, _ := os.ReadFile(path)
	if strings.TrimSpace(string(data)) != "[]" {
		t.Errorf("expected [], got %q", data)
	}
}

func TestWrite_ReplacesPreviousContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.json")
	w := NewWriter(path)

	if err := w.Write([]note.Record{notetest.Record(1), notetest.Record(2)}); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := w.Write([]note.Record{notetest.Record(3)}); err != nil {
		t.Fatalf("second write: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 || got[0].ID != notetest.ID(3) {
		t.Fatalf("expected only record 3, got %+v", got)
	}
}

func TestWrite_FailureLeavesPreviousFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "output.json")
	w := NewWriter(path)
	if err := w.Write([]note.Record{notetest.Record(1)}); err != nil {
		t.Fatalf("write: %v", err)
	}
	before, _ := os.ReadFile(path)

	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	// the temp file cannot be created in a read-only directory
	if err := os.Chmod(dir, 0o555); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	defer os.Chmod(dir, 0o755)

	err := w.Write([]note.Record{notetest.Record(2)})
	if !fault.Is(err, fault.KindIO) {
		t.Fatalf("expected io error, got %v", err)
	}
	after, _ := os.ReadFile(path)
	if string(before) != string(after) {
		t.Error("previous output was modified by a failed write")
	}
}

func TestLoad_Missing(t *testing.T) {
	got, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty set, got %d", len(got))
	}
}

func TestLoad_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.json")
	os.WriteFile(path, []byte(`[{"content":"x"}]`), 0o644)

	_, err := Load(path)
	if !fault.Is(err, fault.KindDeserialization) {
		t.Fatalf("expected deserialization error, got %v", err)
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode("merge"); err != nil || m != ModeMerge {
		t.Errorf("merge: got %q, %v", m, err)
	}
	if _, err := ParseMode("append"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
