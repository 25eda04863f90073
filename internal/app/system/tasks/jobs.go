// internal/app/system/tasks/jobs.go
package tasks

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Job names.
const (
	SessionCleanupName         = "session-cleanup"
	InactiveSessionCleanupName = "inactive-session-cleanup"
	ScopeSweepName             = "livelog-scope-sweep"
)

// ExpiredSessionDeleter removes expired session records.
// *sessions.Store implements it.
type ExpiredSessionDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// InactiveSessionCloser closes idle sessions and returns their scope keys.
// *sessions.Store implements it.
type InactiveSessionCloser interface {
	CloseInactive(ctx context.Context, threshold time.Duration) ([]string, error)
}

// SessionScopeClearer drops a session's log scope. *livelog.Router
// implements it.
type SessionScopeClearer interface {
	ClearSession(session string) bool
}

// ScopeSweeper removes idle log scopes. *livelog.Router implements it.
type ScopeSweeper interface {
	SweepIdle(ttl time.Duration) int
}

// SessionCleanupJob creates a job that removes expired sessions from the database.
func SessionCleanupJob(store ExpiredSessionDeleter, logger *zap.Logger) Job {
	return Job{
		Name:     SessionCleanupName,
		Interval: 1 * time.Hour,
		Run: func(ctx context.Context) error {
			deleted, err := store.DeleteExpired(ctx)
			if err != nil {
				return err
			}
			if deleted > 0 {
				logger.Info("cleaned up expired sessions", zap.Int64("deleted", deleted))
			}
			return nil
		},
	}
}

// InactiveSessionCleanupJob creates a job that closes sessions inactive for
// longer than threshold and drops their log scopes with them. Closed
// sessions stay in the database (end_reason "inactive") until they expire.
func InactiveSessionCleanupJob(store InactiveSessionCloser, scopes SessionScopeClearer, threshold time.Duration, logger *zap.Logger) Job {
	return Job{
		Name:     InactiveSessionCleanupName,
		Interval: 5 * time.Minute,
		Run: func(ctx context.Context) error {
			keys, err := store.CloseInactive(ctx, threshold)
			if err != nil {
				return err
			}
			cleared := 0
			for _, key := range keys {
				if scopes != nil && scopes.ClearSession(key) {
					cleared++
				}
			}
			if len(keys) > 0 {
				logger.Info("closed inactive sessions",
					zap.Int("count", len(keys)),
					zap.Int("scopes_cleared", cleared),
					zap.Duration("threshold", threshold))
			}
			return nil
		},
	}
}

// ScopeSweepJob creates a job that drops user and session log scopes that
// have had no connections for longer than ttl. A non-positive interval
// or ttl disables it.
func ScopeSweepJob(sweeper ScopeSweeper, ttl, interval time.Duration, logger *zap.Logger) Job {
	if ttl <= 0 {
		interval = 0
	}
	return Job{
		Name:     ScopeSweepName,
		Interval: interval,
		Run: func(_ context.Context) error {
			if removed := sweeper.SweepIdle(ttl); removed > 0 {
				logger.Info("swept idle log scopes",
					zap.Int("removed", removed),
					zap.Duration("ttl", ttl))
			}
			return nil
		},
	}
}
