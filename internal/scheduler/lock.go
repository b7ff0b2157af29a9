package scheduler

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// runLockKey guards against overlapping pipeline runs: a run that is
// still ingesting must never race a second run's upserts and lifecycle
// pass.
const runLockKey = "fundsync:pipeline:run-lock"

// runLockTTL outlives any sane run so a crashed holder eventually frees
// the lock on its own.
const runLockTTL = 6 * time.Hour

// RunLock is a best-effort distributed mutex over Redis.
type RunLock struct {
	client *redis.Client
}

func NewRunLock(redisURL string) (*RunLock, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RunLock{client: redis.NewClient(opt)}, nil
}

// Acquire takes the run lock for this run ID. Returns false when another
// run holds it.
func (l *RunLock) Acquire(ctx context.Context, runID string) (bool, error) {
	return l.client.SetNX(ctx, runLockKey, runID, runLockTTL).Result()
}

// Release frees the lock if this run still owns it.
func (l *RunLock) Release(ctx context.Context, runID string) error {
	const script = `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		end
		return 0`
	return l.client.Eval(ctx, script, []string{runLockKey}, runID).Err()
}

func (l *RunLock) Close() error { return l.client.Close() }
