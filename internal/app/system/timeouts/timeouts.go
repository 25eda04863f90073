// Package timeouts provides centralized timeout values for handler and
// background operations that touch MongoDB.
package timeouts

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Default timeout values (used if Configure is not called).
const (
	DefaultPing  = 2 * time.Second
	DefaultShort = 5 * time.Second
	DefaultLong  = 30 * time.Second
)

var (
	mu    sync.RWMutex
	ping  = DefaultPing
	short = DefaultShort
	long  = DefaultLong
)

// Ping returns the timeout for health checks.
func Ping() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return ping
}

// Short returns the timeout for single-document reads and writes.
func Short() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return short
}

// Long returns the timeout for background jobs and index builds.
func Long() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return long
}

// Config holds timeout configuration values. Zero fields are ignored.
type Config struct {
	Ping  time.Duration
	Short time.Duration
	Long  time.Duration
}

// Configure sets custom timeout values.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	if cfg.Ping > 0 {
		ping = cfg.Ping
	}
	if cfg.Short > 0 {
		short = cfg.Short
	}
	if cfg.Long > 0 {
		long = cfg.Long
	}
}

// Reset restores all timeouts to defaults.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	ping, short, long = DefaultPing, DefaultShort, DefaultLong
}

// ConfigureFromEnv reads STRATALOG_TIMEOUT_PING, _SHORT and _LONG and
// returns how many were applied.
func ConfigureFromEnv() int {
	var cfg Config
	configured := 0
	for name, dst := range map[string]*time.Duration{
		"STRATALOG_TIMEOUT_PING":  &cfg.Ping,
		"STRATALOG_TIMEOUT_SHORT": &cfg.Short,
		"STRATALOG_TIMEOUT_LONG":  &cfg.Long,
	} {
		if v := os.Getenv(name); v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				*dst = d
				configured++
			}
		}
	}
	Configure(cfg)
	return configured
}

// Current returns the current timeout configuration.
func Current() Config {
	mu.RLock()
	defer mu.RUnlock()
	return Config{Ping: ping, Short: short, Long: long}
}

// WithTimeout creates a context with timeout that logs a warning when the
// operation ran out of time.
func WithTimeout(parent context.Context, timeout time.Duration, log *zap.Logger, operation string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	return ctx, func() {
		if ctx.Err() == context.DeadlineExceeded && log != nil {
			log.Warn("operation timed out",
				zap.String("operation", operation),
				zap.Duration("timeout", timeout))
		}
		cancel()
	}
}
