// internal/app/store/ratelimit/store.go
package ratelimit

import (
	"context"
	"time"

	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Policy bounds failed sign-in attempts per login id.
type Policy struct {
	MaxAttempts int           // failures allowed inside Window before lockout
	Window      time.Duration // counting window, restarted by the first failure after it lapses
	Lockout     time.Duration // how long a locked login id stays locked
}

// DefaultPolicy is five failures in fifteen minutes, then a fifteen minute lock.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 5, Window: 15 * time.Minute, Lockout: 15 * time.Minute}
}

// Attempt tracks failed sign-in attempts for one login id.
type Attempt struct {
	LoginID      string     `bson:"_id"`           // folded login id
	AttemptCount int        `bson:"attempt_count"` // failures in current window
	WindowStart  time.Time  `bson:"window_start"`
	LockedUntil  *time.Time `bson:"locked_until,omitempty"`
	LastAttempt  time.Time  `bson:"last_attempt"` // TTL index drops stale records
}

// Decision is the outcome of a check or a recorded failure.
type Decision struct {
	Allowed     bool
	Remaining   int       // attempts left before lockout, 0 when locked
	LockedUntil time.Time // zero unless locked
}

// Store manages rate limit tracking for sign-in attempts.
type Store struct {
	c      *mongo.Collection
	policy Policy
	now    func() time.Time
}

// New creates a rate limit Store. Non-positive policy fields take their
// DefaultPolicy values.
func New(db *mongo.Database, policy Policy) *Store {
	d := DefaultPolicy()
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = d.MaxAttempts
	}
	if policy.Window <= 0 {
		policy.Window = d.Window
	}
	if policy.Lockout <= 0 {
		policy.Lockout = d.Lockout
	}
	return &Store{
		c:      db.Collection("rate_limits"),
		policy: policy,
		now:    time.Now,
	}
}

// Policy returns the policy in effect.
func (s *Store) Policy() Policy { return s.policy }

// Check reports whether loginID may attempt to sign in now.
func (s *Store) Check(ctx context.Context, loginID string) (Decision, error) {
	a, err := s.get(ctx, loginID)
	if err != nil {
		return Decision{}, err
	}
	return s.decide(a, s.now()), nil
}

// RecordFailure counts a failed attempt and locks the login id once the
// policy is exceeded.
func (s *Store) RecordFailure(ctx context.Context, loginID string) (Decision, error) {
	now := s.now()
	a, err := s.get(ctx, loginID)
	if err != nil {
		return Decision{}, err
	}
	if a == nil {
		a = &Attempt{LoginID: text.Fold(loginID), WindowStart: now}
	}

	if now.After(a.WindowStart.Add(s.policy.Window)) {
		a.AttemptCount = 0
		a.WindowStart = now
		a.LockedUntil = nil
	}
	a.AttemptCount++
	a.LastAttempt = now
	if a.AttemptCount >= s.policy.MaxAttempts {
		until := now.Add(s.policy.Lockout)
		a.LockedUntil = &until
	}

	_, err = s.c.ReplaceOne(ctx, bson.M{"_id": a.LoginID}, a, options.Replace().SetUpsert(true))
	if err != nil {
		return Decision{}, err
	}
	return s.decide(a, now), nil
}

// Clear forgets loginID's failures. Called after a successful sign-in.
func (s *Store) Clear(ctx context.Context, loginID string) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"_id": text.Fold(loginID)})
	return err
}

func (s *Store) get(ctx context.Context, loginID string) (*Attempt, error) {
	var a Attempt
	err := s.c.FindOne(ctx, bson.M{"_id": text.Fold(loginID)}).Decode(&a)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) decide(a *Attempt, now time.Time) Decision {
	if a == nil {
		return Decision{Allowed: true, Remaining: s.policy.MaxAttempts}
	}
	if a.LockedUntil != nil && now.Before(*a.LockedUntil) {
		return Decision{LockedUntil: *a.LockedUntil}
	}
	if now.After(a.WindowStart.Add(s.policy.Window)) {
		return Decision{Allowed: true, Remaining: s.policy.MaxAttempts}
	}
	remaining := s.policy.MaxAttempts - a.AttemptCount
	if remaining <= 0 {
		if a.LockedUntil != nil {
			// Lock lapsed inside the window.
			return Decision{Allowed: true, Remaining: 1}
		}
		return Decision{}
	}
	return Decision{Allowed: true, Remaining: remaining}
}
