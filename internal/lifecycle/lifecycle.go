// Package lifecycle advances entity statuses from observation recency.
// One pass moves each entity at most once: new entities promote, entities
// unseen past the grace period deactivate, and a deactivated entity seen
// again in the current extract reactivates explicitly.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"fundsync/internal/store"
	"fundsync/platform/logger"
)

// DefaultGraceDays is the observation grace period: weekends, holidays and
// short source outages must not flip an entity inactive.
const DefaultGraceDays = 7

// PassResult counts the transitions of one lifecycle pass.
type PassResult struct {
	Promoted    int // new -> active
	Deactivated int // active|new -> inactive
	Reactivated int // inactive -> active
}

type Manager struct {
	pool      *pgxpool.Pool
	log       *logger.Logger
	graceDays int
}

func New(pool *pgxpool.Pool, log *logger.Logger, graceDays int) *Manager {
	if graceDays <= 0 {
		graceDays = DefaultGraceDays
	}
	return &Manager{pool: pool, log: log, graceDays: graceDays}
}

// Cutoff returns the staleness boundary for a pass date: entities with
// last_seen strictly before it are considered gone.
func (m *Manager) Cutoff(today time.Time) time.Time {
	return today.AddDate(0, 0, -m.graceDays)
}

// Run executes one lifecycle pass in a single transaction. Transition
// order guarantees each entity moves at most once: stale entities (new or
// active) deactivate first, the remaining new entities promote, and only
// inactive entities observed on the pass date reactivate.
func (m *Manager) Run(ctx context.Context, today time.Time) (PassResult, error) {
	cutoff := m.Cutoff(today)

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return PassResult{}, fmt.Errorf("begin lifecycle pass: %w", err)
	}
	defer tx.Rollback(ctx)

	var res PassResult

	tag, err := tx.Exec(ctx, `
		UPDATE stg_security_master
		SET status = $1, updated_at = NOW()
		WHERE status IN ($2, $3)
		  AND (last_seen IS NULL OR last_seen < $4)`,
		store.StatusInactive, store.StatusActive, store.StatusNew, cutoff)
	if err != nil {
		return res, fmt.Errorf("deactivate stale entities: %w", err)
	}
	res.Deactivated = int(tag.RowsAffected())

	tag, err = tx.Exec(ctx, `
		UPDATE stg_security_master
		SET status = $1, updated_at = NOW()
		WHERE status = $2`,
		store.StatusActive, store.StatusNew)
	if err != nil {
		return res, fmt.Errorf("promote new entities: %w", err)
	}
	res.Promoted = int(tag.RowsAffected())

	tag, err = tx.Exec(ctx, `
		UPDATE stg_security_master
		SET status = $1, updated_at = NOW()
		WHERE status = $2 AND last_seen >= $3`,
		store.StatusActive, store.StatusInactive, today)
	if err != nil {
		return res, fmt.Errorf("reactivate observed entities: %w", err)
	}
	res.Reactivated = int(tag.RowsAffected())

	if err := tx.Commit(ctx); err != nil {
		return res, fmt.Errorf("commit lifecycle pass: %w", err)
	}

	m.log.Info("lifecycle pass complete",
		"cutoff", cutoff.Format("2006-01-02"),
		"promoted", res.Promoted,
		"deactivated", res.Deactivated,
		"reactivated", res.Reactivated,
	)
	return res, nil
}
