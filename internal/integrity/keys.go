package integrity

import (
	"strings"
	"time"

	"fundsync/internal/coerce"
	"fundsync/internal/stage"
)

// EntityKey is the natural key of one entity row.
type EntityKey struct {
	Ticker    string
	AssetType string
	Source    string
}

// ObservationKey is an entity key plus the observation date.
type ObservationKey struct {
	EntityKey
	AsOfDate time.Time
}

// EntityKeys extracts the normalized, deduplicated key set from a
// master-list artifact. Tickers and asset types are uppercased, sources
// trimmed; rows with an incomplete key are dropped.
func EntityKeys(t *stage.Table) []EntityKey {
	seen := make(map[EntityKey]bool, len(t.Rows))
	keys := make([]EntityKey, 0, len(t.Rows))
	for _, row := range t.Rows {
		k := EntityKey{
			Ticker:    strings.ToUpper(strings.TrimSpace(row["ticker"])),
			AssetType: strings.ToUpper(strings.TrimSpace(row["asset_type"])),
			Source:    strings.TrimSpace(row["source"]),
		}
		if k.Ticker == "" || k.AssetType == "" || k.Source == "" {
			continue
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	return keys
}

// ObservationKeys extracts the normalized, deduplicated (key, date) set
// from a NAV artifact. Rows with an unparseable date are dropped.
func ObservationKeys(t *stage.Table) []ObservationKey {
	seen := make(map[ObservationKey]bool, len(t.Rows))
	keys := make([]ObservationKey, 0, len(t.Rows))
	for _, row := range t.Rows {
		asOf, ok := coerce.ParseDate(row["as_of_date"])
		if !ok {
			continue
		}
		k := ObservationKey{
			EntityKey: EntityKey{
				Ticker:    strings.ToUpper(strings.TrimSpace(row["ticker"])),
				AssetType: strings.ToUpper(strings.TrimSpace(row["asset_type"])),
				Source:    strings.TrimSpace(row["source"]),
			},
			AsOfDate: asOf,
		}
		if k.Ticker == "" || k.AssetType == "" || k.Source == "" {
			continue
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	return keys
}
