package stage

import (
	"strconv"
	"strings"

	"fundsync/internal/coerce"
)

// outlierLimit is the magnitude above which deviation and return columns
// are assumed to be pre-multiplied by 100 by the source.
const outlierLimit = 999.99

// CleanSpec declares the normalization rules for one artifact family.
type CleanSpec struct {
	// Rename maps source column names to canonical ones before any other
	// processing.
	Rename map[string]string
	// PercentCols are parsed as numbers with percent signs and separators
	// stripped.
	PercentCols []string
	// NumericCols are parsed as plain numbers (separators stripped).
	NumericCols []string
	// RatioCols hold fee-like fractions; percent-form values (> 1) are
	// divided by 100.
	RatioCols []string
	// OutlierCols are rescaled by 1/100 when their magnitude exceeds
	// the outlier limit.
	OutlierCols []string
	// DefaultAssetType fills a missing or empty asset_type column.
	DefaultAssetType string
}

// Clean normalizes a raw producer table in place: canonical renames, the
// source label, uppercased asset types, and numeric normalization.
// Unparseable values become empty cells, never errors.
func Clean(t *Table, source string, spec CleanSpec) {
	for i, col := range t.Columns {
		if renamed, ok := spec.Rename[col]; ok {
			t.Columns[i] = renamed
			for _, row := range t.Rows {
				if v, present := row[col]; present {
					row[renamed] = v
					delete(row, col)
				}
			}
		}
	}

	if !t.HasColumn("source") {
		t.SetColumn("source", source)
	} else {
		for _, row := range t.Rows {
			if strings.TrimSpace(row["source"]) == "" {
				row["source"] = source
			}
		}
	}

	assetType := spec.DefaultAssetType
	if assetType == "" {
		assetType = "ETF"
	}
	if !t.HasColumn("asset_type") {
		t.SetColumn("asset_type", assetType)
	} else {
		for _, row := range t.Rows {
			v := strings.ToUpper(strings.TrimSpace(row["asset_type"]))
			if v == "" {
				v = assetType
			}
			row["asset_type"] = v
		}
	}

	normalizeNumeric(t, spec.PercentCols)
	normalizeNumeric(t, spec.NumericCols)

	for _, col := range spec.RatioCols {
		rescale(t, col, coerce.ScaleRatio)
	}
	for _, col := range spec.OutlierCols {
		rescale(t, col, func(v float64) float64 {
			return coerce.RescaleOutlier(v, outlierLimit)
		})
	}
}

func normalizeNumeric(t *Table, cols []string) {
	for _, col := range cols {
		if !t.HasColumn(col) {
			continue
		}
		for _, row := range t.Rows {
			if coerce.IsNull(row[col]) {
				row[col] = ""
				continue
			}
			if v, ok := coerce.Number(row[col]); ok {
				row[col] = formatNumber(v)
			} else {
				row[col] = ""
			}
		}
	}
}

func rescale(t *Table, col string, fn func(float64) float64) {
	if !t.HasColumn(col) {
		return
	}
	for _, row := range t.Rows {
		if v, ok := coerce.Number(row[col]); ok {
			row[col] = formatNumber(fn(v))
		}
	}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
