package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"fundsync/internal/coerce"
	"fundsync/internal/hashing"
	"fundsync/internal/stage"
	"fundsync/platform/logger"
)

// defaultBatchSize bounds one database round trip; large artifacts load as
// a sequence of independent transactions.
const defaultBatchSize = 1000

// Result counts one load's outcome. Skipped rows hit an existing natural
// key with an identical fingerprint and were left untouched.
type Result struct {
	Inserted int
	Updated  int
	Skipped  int
	Failed   int
}

func (r Result) Add(other Result) Result {
	return Result{
		Inserted: r.Inserted + other.Inserted,
		Updated:  r.Updated + other.Updated,
		Skipped:  r.Skipped + other.Skipped,
		Failed:   r.Failed + other.Failed,
	}
}

// Loader upserts stage artifacts into canonical tables. The content
// fingerprint is the conflict arbiter: a natural-key collision updates the
// payload only when the fingerprint changed, so re-loading the same
// artifact is a storage no-op.
type Loader struct {
	pool      *pgxpool.Pool
	log       *logger.Logger
	batchSize int
}

func NewLoader(pool *pgxpool.Pool, log *logger.Logger) *Loader {
	return &Loader{pool: pool, log: log, batchSize: defaultBatchSize}
}

// Load upserts every row of the artifact into the table described by spec.
// Batches commit independently: a failing batch aborts only itself, prior
// batches stay committed, and the error surfaces to the orchestrator.
func (l *Loader) Load(ctx context.Context, spec TableSpec, t *stage.Table) (Result, error) {
	rows := dedupeByKey(spec, t.Rows)

	var total Result
	for start := 0; start < len(rows); start += l.batchSize {
		end := min(start+l.batchSize, len(rows))
		batch := rows[start:end]

		res, err := l.upsertBatch(ctx, spec, batch)
		total = total.Add(res)
		if err != nil {
			total.Failed += len(batch)
			l.log.DatabaseError("load "+spec.Name, err)
			return total, fmt.Errorf("load %s batch %d-%d: %w", spec.Name, start, end, err)
		}
	}
	l.log.LoadSummary(spec.Name, total.Inserted, total.Updated, total.Skipped, total.Failed)
	return total, nil
}

func (l *Loader) upsertBatch(ctx context.Context, spec TableSpec, batch []map[string]string) (Result, error) {
	cols := spec.InsertColumns()
	sql := upsertSQL(spec)
	args := make([]any, 0, len(batch)*len(cols))
	for _, row := range batch {
		for _, col := range cols {
			v, ok := coerce.Value(row[col], spec.TypeOf(col))
			if !ok {
				args = append(args, nil)
				continue
			}
			args = append(args, v)
		}
	}

	query := fmt.Sprintf(sql, valuePlaceholders(len(batch), len(cols)))
	dbRows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return Result{}, err
	}
	defer dbRows.Close()

	var res Result
	for dbRows.Next() {
		var inserted bool
		if err := dbRows.Scan(&inserted); err != nil {
			return res, err
		}
		if inserted {
			res.Inserted++
		} else {
			res.Updated++
		}
	}
	if err := dbRows.Err(); err != nil {
		return res, err
	}
	res.Skipped = len(batch) - res.Inserted - res.Updated
	return res, nil
}

// upsertSQL renders the hash-gated upsert for a table, with a %s slot for
// the VALUES placeholder matrix. xmax = 0 distinguishes a fresh insert
// from an in-place update in the RETURNING set.
func upsertSQL(spec TableSpec) string {
	cols := spec.InsertColumns()

	var sets []string
	for _, col := range cols {
		if contains(spec.Key, col) {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}
	sets = append(sets, "updated_at = NOW()")

	return fmt.Sprintf(
		`INSERT INTO %s (%s, updated_at) VALUES %%s
ON CONFLICT (%s) DO UPDATE SET %s
WHERE %s.%s IS DISTINCT FROM EXCLUDED.%s
RETURNING (xmax = 0)`,
		spec.Name,
		strings.Join(cols, ", "),
		strings.Join(spec.Key, ", "),
		strings.Join(sets, ", "),
		spec.Name, hashing.FieldRowHash, hashing.FieldRowHash,
	)
}

// valuePlaceholders renders n row tuples of width plus a trailing NOW()
// for updated_at: ($1, ..., $w, NOW()), (...).
func valuePlaceholders(n, width int) string {
	var b strings.Builder
	arg := 1
	for row := 0; row < n; row++ {
		if row > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for col := 0; col < width; col++ {
			if col > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", arg)
			arg++
		}
		b.WriteString(", NOW())")
	}
	return b.String()
}

// dedupeByKey keeps the last occurrence per natural key so a single batch
// never updates the same row twice in one statement.
func dedupeByKey(spec TableSpec, rows []map[string]string) []map[string]string {
	seen := make(map[string]int, len(rows))
	out := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		var key strings.Builder
		for _, col := range spec.Key {
			key.WriteString(strings.TrimSpace(row[col]))
			key.WriteByte('\x1f')
		}
		if idx, dup := seen[key.String()]; dup {
			out[idx] = row
			continue
		}
		seen[key.String()] = len(out)
		out = append(out, row)
	}
	return out
}

func contains(cols []string, name string) bool {
	for _, c := range cols {
		if c == name {
			return true
		}
	}
	return false
}
