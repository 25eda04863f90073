// internal/app/store/sessions/store.go
package sessions

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Session end reasons
const (
	EndReasonLogout   = "logout"
	EndReasonExpired  = "expired"
	EndReasonInactive = "inactive"
)

// Session is a signed-in browser session. ScopeKey is the session key the
// browser's log scope is registered under, so closing a session can also
// drop its scope.
type Session struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Token     string             `bson:"token"`
	UserID    primitive.ObjectID `bson:"user_id"`
	LoginID   string             `bson:"login_id"`
	ScopeKey  string             `bson:"scope_key,omitempty"`
	IPAddress string             `bson:"ip_address,omitempty"`
	UserAgent string             `bson:"user_agent,omitempty"`

	LoginAt      time.Time  `bson:"login_at"`
	LogoutAt     *time.Time `bson:"logout_at,omitempty"`
	LastActivity time.Time  `bson:"last_activity"`
	EndReason    string     `bson:"end_reason,omitempty"`
	DurationSecs int64      `bson:"duration_secs,omitempty"`

	ExpiresAt time.Time `bson:"expires_at"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// Store manages session records in MongoDB. The cookie remains the source
// of truth for identity; these records track lifetime and activity.
type Store struct {
	c *mongo.Collection
}

// New creates a new session Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("sessions")}
}

// Create inserts a new session.
func (s *Store) Create(ctx context.Context, session Session) error {
	if session.ID.IsZero() {
		session.ID = primitive.NewObjectID()
	}
	now := time.Now()
	session.CreatedAt = now
	session.UpdatedAt = now
	if session.LoginAt.IsZero() {
		session.LoginAt = now
	}
	if session.LastActivity.IsZero() {
		session.LastActivity = now
	}
	_, err := s.c.InsertOne(ctx, session)
	return err
}

// GetByToken retrieves an active session by token. Returns
// mongo.ErrNoDocuments if it has been closed or has expired.
func (s *Store) GetByToken(ctx context.Context, token string) (*Session, error) {
	var session Session
	err := s.c.FindOne(ctx, bson.M{
		"token":      token,
		"logout_at":  nil,
		"expires_at": bson.M{"$gt": time.Now()},
	}).Decode(&session)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Touch records activity on an open session, such as a websocket connect.
// It reports whether an open session was found.
func (s *Store) Touch(ctx context.Context, token string) (bool, error) {
	now := time.Now()
	res, err := s.c.UpdateOne(ctx,
		bson.M{"token": token, "logout_at": nil},
		bson.M{"$set": bson.M{"last_activity": now, "updated_at": now}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

// Close ends a session with a reason and records its duration. The record
// is kept until its TTL expires.
func (s *Store) Close(ctx context.Context, token string, reason string) error {
	var session Session
	if err := s.c.FindOne(ctx, bson.M{"token": token}).Decode(&session); err != nil {
		return err
	}

	now := time.Now()
	_, err := s.c.UpdateOne(ctx, bson.M{"token": token}, bson.M{
		"$set": bson.M{
			"logout_at":     now,
			"end_reason":    reason,
			"duration_secs": int64(now.Sub(session.LoginAt).Seconds()),
			"updated_at":    now,
		},
	})
	return err
}

// CloseInactive closes open sessions with no activity within threshold
// and returns the scope keys of the sessions it closed.
func (s *Store) CloseInactive(ctx context.Context, threshold time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-threshold)
	filter := bson.M{
		"logout_at":     nil,
		"last_activity": bson.M{"$lt": cutoff},
	}

	opts := options.Find().SetProjection(bson.M{"_id": 1, "scope_key": 1})
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var stale []Session
	if err := cur.All(ctx, &stale); err != nil {
		return nil, err
	}
	if len(stale) == 0 {
		return nil, nil
	}

	ids := make([]primitive.ObjectID, 0, len(stale))
	keys := make([]string, 0, len(stale))
	for _, sess := range stale {
		ids = append(ids, sess.ID)
		if sess.ScopeKey != "" {
			keys = append(keys, sess.ScopeKey)
		}
	}

	now := time.Now()
	_, err = s.c.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}, "logout_at": nil},
		bson.M{"$set": bson.M{
			"logout_at":  now,
			"end_reason": EndReasonInactive,
			"updated_at": now,
		}},
	)
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// DeleteExpired removes sessions whose expiry has passed. The TTL index
// does the same eventually; this runs on the cleanup schedule.
func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lt": time.Now()}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// CountActive returns the number of open, unexpired sessions.
func (s *Store) CountActive(ctx context.Context) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{
		"logout_at":  nil,
		"expires_at": bson.M{"$gt": time.Now()},
	})
}
