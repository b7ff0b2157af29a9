// Package stage handles the filesystem side of the pipeline: reading
// producer CSVs, normalizing them into canonical shape, and writing
// per-stage artifacts. Idempotence lives in the loader, not here; a stage
// may contain duplicate rows across batches.
package stage

// Table is an in-memory tabular artifact. Row order is preserved from the
// source read order; consumers must key on natural keys, not position.
type Table struct {
	Columns []string
	Rows    []map[string]string
}

// Get returns the value of a column in a row, empty when absent.
func (t *Table) Get(row int, col string) string {
	if row < 0 || row >= len(t.Rows) {
		return ""
	}
	return t.Rows[row][col]
}

// HasColumn reports whether the table carries the named column.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// SetColumn writes the same value into every row, adding the column if
// missing.
func (t *Table) SetColumn(name, value string) {
	if !t.HasColumn(name) {
		t.Columns = append(t.Columns, name)
	}
	for _, row := range t.Rows {
		row[name] = value
	}
}

// Project reorders the table to exactly the expected column set, adding
// empty columns the source lacked and dropping everything else.
func (t *Table) Project(expected []string) {
	t.Columns = append([]string(nil), expected...)
	for i, row := range t.Rows {
		projected := make(map[string]string, len(expected))
		for _, col := range expected {
			projected[col] = row[col]
		}
		t.Rows[i] = projected
	}
}

// Append adds the rows of other, assuming compatible column sets.
func (t *Table) Append(other *Table) {
	for _, col := range other.Columns {
		if !t.HasColumn(col) {
			t.Columns = append(t.Columns, col)
		}
	}
	t.Rows = append(t.Rows, other.Rows...)
}
