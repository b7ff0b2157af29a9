package stage

import (
	"fmt"
	"strings"

	"fundsync/platform/validator"
)

// Row statuses in a validation report. Expected conditions are statuses,
// not errors: a blank row is skipped, a row missing its key is failed, and
// the batch keeps going either way.
const (
	RowOK      = "success"
	RowSkipped = "skipped"
	RowFailed  = "failed"
)

type RowResult struct {
	Index  int
	Status string
	Reason string
}

// Report aggregates per-row validation outcomes for one artifact.
type Report struct {
	Total    int
	OK       int
	Skipped  int
	Failed   int
	Failures []RowResult
}

type naturalKey struct {
	Ticker    string `validate:"required"`
	AssetType string `validate:"required,uppercase"`
	Source    string `validate:"required"`
}

// Validate checks that every row carries a complete natural key. Rows that
// are entirely empty are skipped; rows with a partial key are failed and
// reported, capped at the first twenty for diagnostics.
func Validate(t *Table, v *validator.Validator) Report {
	report := Report{Total: len(t.Rows)}
	for i, row := range t.Rows {
		if blankRow(row) {
			report.Skipped++
			continue
		}
		key := naturalKey{
			Ticker:    row["ticker"],
			AssetType: row["asset_type"],
			Source:    row["source"],
		}
		if err := v.Struct(key); err != nil {
			report.Failed++
			if len(report.Failures) < 20 {
				report.Failures = append(report.Failures, RowResult{
					Index:  i,
					Status: RowFailed,
					Reason: fmt.Sprintf("incomplete natural key: %v", err),
				})
			}
			continue
		}
		report.OK++
	}
	return report
}

func blankRow(row map[string]string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
