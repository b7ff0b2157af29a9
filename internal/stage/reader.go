package stage

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadCSV reads a producer CSV into a Table. Header names are lowercased
// and trimmed. Files are expected in UTF-8; a UTF-8 BOM is stripped, and
// invalid UTF-8 falls back to Windows-874 then Windows-1252 decoding so a
// mis-exported file still ingests instead of failing the stage.
func ReadCSV(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	raw = bytes.TrimPrefix(raw, utf8BOM)

	if !utf8.Valid(raw) {
		decoded, decErr := charmap.Windows874.NewDecoder().Bytes(raw)
		if decErr != nil || !utf8.Valid(decoded) {
			decoded, decErr = charmap.Windows1252.NewDecoder().Bytes(raw)
			if decErr != nil {
				return nil, fmt.Errorf("decode %s: %w", path, decErr)
			}
		}
		raw = decoded
	}

	reader := csv.NewReader(bytes.NewReader(raw))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return &Table{}, nil
	}

	columns := make([]string, len(records[0]))
	for i, name := range records[0] {
		columns[i] = strings.ToLower(strings.TrimSpace(name))
	}

	table := &Table{Columns: columns, Rows: make([]map[string]string, 0, len(records)-1)}
	for _, record := range records[1:] {
		row := make(map[string]string, len(columns))
		for i, col := range columns {
			if i < len(record) {
				row[col] = strings.TrimSpace(record[i])
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}
