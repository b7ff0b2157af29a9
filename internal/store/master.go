package store

import (
	"context"
	"fmt"
	"strings"

	"fundsync/internal/coerce"
	"fundsync/internal/hashing"
	"fundsync/internal/stage"
)

// Entity lifecycle statuses. Transitions are owned by the lifecycle pass;
// the master load only ever writes the initial status.
const (
	StatusNew      = "new"
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// PrepareMaster normalizes a master-list artifact for loading: trims the
// natural key, defaults a missing source, assigns the initial status, and
// stamps first_seen/last_seen. The master fingerprint covers the key and
// name only, so the daily last_seen advance never looks like a payload
// change.
func PrepareMaster(t *stage.Table, today string) {
	for _, col := range []string{"status", "first_seen", "last_seen", hashing.FieldRowHash} {
		if !t.HasColumn(col) {
			t.Columns = append(t.Columns, col)
		}
	}
	for _, row := range t.Rows {
		row["ticker"] = strings.TrimSpace(row["ticker"])
		row["asset_type"] = strings.TrimSpace(row["asset_type"])
		if strings.TrimSpace(row["source"]) == "" {
			row["source"] = "Unknown"
		}
		if strings.TrimSpace(row["status"]) == "" {
			row["status"] = StatusNew
		}
		if coerce.IsNull(row["first_seen"]) {
			if !coerce.IsNull(row["date_added"]) {
				row["first_seen"] = row["date_added"]
			} else {
				row["first_seen"] = today
			}
		}
		row["last_seen"] = today
		row[hashing.FieldRowHash] = hashing.RowHash(
			row["ticker"], row["asset_type"], row["source"], row["name"],
		)
	}
}

// masterUpsertSQL advances last_seen on every observation but leaves the
// stored status alone; status transitions belong to the lifecycle pass.
// updated_at moves only when the fingerprint changed.
const masterUpsertSQL = `INSERT INTO stg_security_master
(ticker, asset_type, source, name, status, row_hash, first_seen, last_seen, updated_at)
VALUES %s
ON CONFLICT (ticker, asset_type, source) DO UPDATE SET
name = EXCLUDED.name,
row_hash = EXCLUDED.row_hash,
last_seen = EXCLUDED.last_seen,
updated_at = CASE
WHEN stg_security_master.row_hash IS DISTINCT FROM EXCLUDED.row_hash THEN NOW()
ELSE stg_security_master.updated_at
END
RETURNING (xmax = 0)`

var masterColumns = []string{
	"ticker", "asset_type", "source", "name", "status",
	hashing.FieldRowHash, "first_seen", "last_seen",
}

// LoadMaster upserts a prepared master-list artifact into the entity
// table, batched like every other load.
func (l *Loader) LoadMaster(ctx context.Context, t *stage.Table) (Result, error) {
	spec := Tables["stg_security_master"]
	rows := dedupeByKey(spec, t.Rows)

	var total Result
	for start := 0; start < len(rows); start += l.batchSize {
		end := min(start+l.batchSize, len(rows))
		batch := rows[start:end]

		args := make([]any, 0, len(batch)*len(masterColumns))
		for _, row := range batch {
			for _, col := range masterColumns {
				v, ok := coerce.Value(row[col], spec.TypeOf(col))
				if !ok {
					args = append(args, nil)
					continue
				}
				args = append(args, v)
			}
		}

		query := fmt.Sprintf(masterUpsertSQL, valuePlaceholders(len(batch), len(masterColumns)))
		dbRows, err := l.pool.Query(ctx, query, args...)
		if err != nil {
			total.Failed += len(batch)
			l.log.DatabaseError("load stg_security_master", err)
			return total, fmt.Errorf("load master batch %d-%d: %w", start, end, err)
		}

		var res Result
		for dbRows.Next() {
			var inserted bool
			if err := dbRows.Scan(&inserted); err != nil {
				dbRows.Close()
				return total.Add(res), err
			}
			if inserted {
				res.Inserted++
			} else {
				res.Updated++
			}
		}
		err = dbRows.Err()
		dbRows.Close()
		if err != nil {
			return total.Add(res), err
		}
		res.Skipped = len(batch) - res.Inserted - res.Updated
		total = total.Add(res)
	}
	l.log.LoadSummary("stg_security_master", total.Inserted, total.Updated, total.Skipped, total.Failed)
	return total, nil
}
