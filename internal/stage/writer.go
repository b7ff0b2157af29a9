package stage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"fundsync/internal/hashing"
	"fundsync/platform/logger"
)

// Writer appends canonical-shaped batches to stage artifacts under a root
// directory, laid out as <root>/<stage>/<date>/<name>.csv. Appending may
// produce duplicate rows across batches; the loader's hash-based upsert
// restores idempotence downstream.
type Writer struct {
	root string
	log  *logger.Logger
}

func NewWriter(root string, log *logger.Logger) *Writer {
	return &Writer{root: root, log: log}
}

// ArtifactPath returns the artifact location for a stage, date and name.
// An empty date yields a flat stage directory.
func (w *Writer) ArtifactPath(stage, date, name string) string {
	if date == "" {
		return filepath.Join(w.root, stage, name+".csv")
	}
	return filepath.Join(w.root, stage, date, name+".csv")
}

// Append fingerprints each row and appends the batch to the artifact,
// writing a header only when the file does not exist yet. Rows already
// carrying a fingerprint keep it: master rows hash their identity fields
// only, and appending must not widen that to the lifecycle columns.
// Returns the number of rows written.
func (w *Writer) Append(stage, date, name string, t *Table) (int, error) {
	if !t.HasColumn(hashing.FieldRowHash) {
		Fingerprint(t)
	} else {
		for _, row := range t.Rows {
			if row[hashing.FieldRowHash] == "" {
				row[hashing.FieldRowHash] = hashing.HashRecord(t.Columns, row)
			}
		}
	}

	path := w.ArtifactPath(stage, date, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("create stage dir: %w", err)
	}

	info, statErr := os.Stat(path)
	writeHeader := statErr != nil || info.Size() == 0

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open artifact %s: %w", path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if writeHeader {
		if err := cw.Write(t.Columns); err != nil {
			return 0, fmt.Errorf("write header: %w", err)
		}
	}
	for _, row := range t.Rows {
		record := make([]string, len(t.Columns))
		for i, col := range t.Columns {
			record[i] = row[col]
		}
		if err := cw.Write(record); err != nil {
			return 0, fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("flush artifact %s: %w", path, err)
	}
	return len(t.Rows), nil
}

// Fingerprint computes the content hash for every row over the payload
// columns in table order and stores it in the row_hash column.
func Fingerprint(t *Table) {
	if !t.HasColumn(hashing.FieldRowHash) {
		t.Columns = append(t.Columns, hashing.FieldRowHash)
	}
	for _, row := range t.Rows {
		row[hashing.FieldRowHash] = hashing.HashRecord(t.Columns, row)
	}
}
