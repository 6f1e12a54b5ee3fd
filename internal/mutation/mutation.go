// Package mutation implements the mutant-schema in-place edit described in
// spec §4.3: a span's bytes are overwritten with an equal-length run of
// whitespace (preserving line breaks), so every other span's byte offset
// stays valid. The edit is reversible and the reversal is journaled to
// disk before the edit is applied, so a crash mid-trial can always be
// recovered on the next startup (see internal/scheduler).
package mutation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/necessist/necessist/internal/model"
)

// Record is a reversal record: the file, byte range, and original bytes
// that a mutation replaced. Persisting Original lets Revert restore the
// exact prior contents even if the process restarts mid-trial.
type Record struct {
	ID       string `json:"id"`
	File     string `json:"file"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Original []byte `json:"original"`
}

// Journal is the on-disk reversal log living under <root>/.necessist/journal.
// Its invariant: every entry present in the journal describes a mutation
// that has not yet been reversed. On clean shutdown the journal is empty.
type Journal struct {
	dir string
}

// OpenJournal opens (creating if necessary) the journal directory under
// root. Recovery on startup must call Pending and Revert every returned
// record *before* acquiring the root lock (spec §4.3, §9).
func OpenJournal(root model.Path) (*Journal, error) {
	dir := filepath.Join(string(root), ".necessist", "journal")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	return &Journal{dir: dir}, nil
}

// Pending lists reversal records left over from an interrupted run.
func (j *Journal) Pending() ([]Record, error) {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		return nil, fmt.Errorf("read journal dir: %w", err)
	}

	var records []Record

	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		raw, err := os.ReadFile(filepath.Join(j.dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read journal entry %s: %w", e.Name(), err)
		}

		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode journal entry %s: %w", e.Name(), err)
		}

		records = append(records, rec)
	}

	return records, nil
}

// Apply mutates file in place, replacing [start, end) with whitespace of
// equal length (preserving the original's newlines so line numbers of
// every later span stay correct), after first flushing a reversal record
// to disk. It returns the record so the caller can Revert it later.
func (j *Journal) Apply(file model.Path, start, end int) (Record, error) {
	content, err := os.ReadFile(string(file))
	if err != nil {
		return Record{}, fmt.Errorf("read %s: %w", file, err)
	}

	if start < 0 || end > len(content) || start > end {
		return Record{}, fmt.Errorf("mutation range [%d,%d) out of bounds for %s (len %d)", start, end, file, len(content))
	}

	original := append([]byte(nil), content[start:end]...)

	rec := Record{
		ID:       uuid.NewString(),
		File:     string(file),
		Start:    start,
		End:      end,
		Original: original,
	}

	if err := j.write(rec); err != nil {
		return Record{}, err
	}

	blanked := blank(original)
	mutated := append([]byte(nil), content[:start]...)
	mutated = append(mutated, blanked...)
	mutated = append(mutated, content[end:]...)

	if err := os.WriteFile(string(file), mutated, 0o600); err != nil {
		// The journal entry survives so a later Revert (or startup
		// recovery) can still restore the file.
		return rec, fmt.Errorf("write mutated %s: %w", file, err)
	}

	return rec, nil
}

// blank replaces every byte with a space except newlines, which are kept
// so downstream line numbers do not shift.
func blank(original []byte) []byte {
	out := make([]byte, len(original))

	for i, b := range original {
		if b == '\n' {
			out[i] = '\n'
		} else {
			out[i] = ' '
		}
	}

	return out
}

// Revert restores rec.File's [Start,End) to Original and removes the
// journal entry. Revert is idempotent: reverting an already-reverted (or
// never-applied) record rewrites the same bytes and returns nil, since a
// journal entry that is already gone is not an error.
func (j *Journal) Revert(rec Record) error {
	content, err := os.ReadFile(rec.File)
	if err != nil {
		return fmt.Errorf("read %s for revert: %w", rec.File, err)
	}

	if rec.End > len(content) {
		return fmt.Errorf("revert range [%d,%d) out of bounds for %s (len %d)", rec.Start, rec.End, rec.File, len(content))
	}

	restored := append([]byte(nil), content[:rec.Start]...)
	restored = append(restored, rec.Original...)
	restored = append(restored, content[rec.End:]...)

	if err := os.WriteFile(rec.File, restored, 0o600); err != nil {
		return fmt.Errorf("write restored %s: %w", rec.File, err)
	}

	return j.remove(rec.ID)
}

func (j *Journal) write(rec Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode journal entry: %w", err)
	}

	path := filepath.Join(j.dir, rec.ID+".json")

	// Write to a temp file and rename, so a crash mid-write never leaves
	// a half-written journal entry that Pending would fail to decode.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write journal entry: %w", err)
	}

	return os.Rename(tmp, path)
}

func (j *Journal) remove(id string) error {
	err := os.Remove(filepath.Join(j.dir, id+".json"))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove journal entry %s: %w", id, err)
	}

	return nil
}

// Empty reports whether the journal has no pending entries, the invariant
// that must hold before the root lock is acquired on startup (spec §9).
func (j *Journal) Empty() (bool, error) {
	records, err := j.Pending()
	if err != nil {
		return false, err
	}

	return len(records) == 0, nil
}
