// Package hashing computes deterministic content fingerprints for tabular
// records. The fingerprint is the basis for the hash-based upsert: two
// payload-identical rows must always hash identically, across runs and
// across sources.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Excluded fields never participate in the fingerprint: the fingerprint
// column itself and the update timestamp would otherwise make the hash
// unstable across re-ingestions.
const (
	FieldRowHash   = "row_hash"
	FieldUpdatedAt = "updated_at"
)

// RowHash returns the hex SHA-256 digest over the string-normalized
// concatenation of the given values, in order. Nil values contribute an
// empty string so a missing field and an empty field hash identically.
func RowHash(values ...any) string {
	var b strings.Builder
	for _, v := range values {
		b.WriteString(Normalize(v))
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// HashRecord fingerprints a row using the given column order, skipping the
// fingerprint and update-timestamp columns. Column order must match between
// producer and verifier.
func HashRecord(columns []string, row map[string]string) string {
	values := make([]any, 0, len(columns))
	for _, col := range columns {
		if col == FieldRowHash || col == FieldUpdatedAt {
			continue
		}
		values = append(values, row[col])
	}
	return RowHash(values...)
}

// Normalize converts a value to its canonical string form: nil becomes the
// empty string, everything else is rendered and trimmed.
func Normalize(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case *string:
		if val == nil {
			return ""
		}
		return strings.TrimSpace(*val)
	case time.Time:
		return val.Format("2006-01-02")
	case *time.Time:
		if val == nil {
			return ""
		}
		return val.Format("2006-01-02")
	case float64:
		return trimFloat(val)
	case *float64:
		if val == nil {
			return ""
		}
		return trimFloat(*val)
	case *int64:
		if val == nil {
			return ""
		}
		return fmt.Sprintf("%d", *val)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", val))
	}
}

// trimFloat renders a float without a trailing ".0" so 10 and 10.0 hash
// the same way regardless of which form the source emitted.
func trimFloat(f float64) string {
	s := fmt.Sprintf("%g", f)
	return s
}
