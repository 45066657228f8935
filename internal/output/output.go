// Package output persists harvested notes as an indented JSON array.
package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jobstr/harvester/internal/fault"
	"github.com/jobstr/harvester/internal/note"
)

// Mode selects how a cycle's records relate to the file already on disk.
type Mode string

const (
	// ModeReplace overwrites the file with the current cycle only.
	ModeReplace Mode = "replace"
	// ModeMerge folds the previous file's records into the current set.
	ModeMerge Mode = "merge"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeReplace, ModeMerge:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown output mode %q (valid: replace, merge)", s)
}

// Writer replaces a single JSON file atomically.
type Writer struct {
	path string
}

// NewWriter returns a Writer for path.
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Path returns the output file path.
func (w *Writer) Path() string { return w.path }

// Write serializes records and atomically replaces the output file. On
// failure the previous file is left as it was.
func (w *Writer) Write(records []note.Record) error {
	if records == nil {
		records = []note.Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fault.Wrap(fault.KindIO, "encode output", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(w.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(w.path)+".*.tmp")
	if err != nil {
		return fault.Wrap(fault.KindIO, "write "+w.path, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fault.Wrap(fault.KindIO, "write "+w.path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fault.Wrap(fault.KindIO, "sync "+w.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fault.Wrap(fault.KindIO, "close "+w.path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fault.Wrap(fault.KindIO, "chmod "+w.path, err)
	}
	if err := os.Rename(tmpName, w.path); err != nil {
		return fault.Wrap(fault.KindIO, "rename "+w.path, err)
	}
	committed = true
	return nil
}

// Load reads records previously written to path. A missing file is an
// empty set.
func Load(path string) ([]note.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fault.Wrap(fault.KindIO, "read "+path, err)
	}
	records, err := note.ParseList(data)
	if err != nil {
		return nil, fault.Wrap(fault.KindDeserialization, "load "+path, err)
	}
	return records, nil
}
