// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// collectionIndexes is the desired index set for one collection.
type collectionIndexes struct {
	collection string
	models     []mongo.IndexModel
}

// Desired returns every index the application relies on, by collection.
func desired() []collectionIndexes {
	return []collectionIndexes{
		{collection: "users", models: []mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "login_id_ci", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("uniq_users_login_id_ci"),
			},
			{
				Keys:    bson.D{{Key: "role", Value: 1}, {Key: "status", Value: 1}},
				Options: options.Index().SetName("idx_users_role_status"),
			},
		}},
		{collection: "sessions", models: []mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "token", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("idx_session_token"),
			},
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}},
				Options: options.Index().SetName("idx_session_user"),
			},
			{
				Keys:    bson.D{{Key: "scope_key", Value: 1}},
				Options: options.Index().SetSparse(true).SetName("idx_session_scope_key"),
			},
			{
				Keys:    bson.D{{Key: "expires_at", Value: 1}},
				Options: options.Index().SetExpireAfterSeconds(0).SetName("idx_session_ttl"),
			},
			{
				Keys:    bson.D{{Key: "logout_at", Value: 1}, {Key: "last_activity", Value: -1}},
				Options: options.Index().SetName("idx_session_active"),
			},
		}},
		{collection: "rate_limits", models: []mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "last_attempt", Value: 1}},
				Options: options.Index().SetExpireAfterSeconds(86400).SetName("idx_ratelimit_ttl"),
			},
		}},
	}
}

/*
EnsureAll is called at startup. It is idempotent. Errors are aggregated
so every problem is visible and startup can fail fast.
*/
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string
	for _, ci := range desired() {
		if err := ensureIndexSet(ctx, db.Collection(ci.collection), ci.models); err != nil {
			problems = append(problems, ci.collection+": "+err.Error())
		}
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

type existingIndex struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique *bool  `bson:"unique,omitempty"`
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

func boolValue(b *bool) bool {
	return b != nil && *b
}

func isDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == 11000 {
		return true
	}
	return strings.Contains(err.Error(), "E11000")
}

func listExisting(ctx context.Context, coll *mongo.Collection) map[string]existingIndex {
	existing := map[string]existingIndex{}
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		// A missing collection has no indexes yet.
		return existing
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var idx existingIndex
		if err := cur.Decode(&idx); err != nil {
			zap.L().Warn("failed to decode existing index",
				zap.String("collection", coll.Name()),
				zap.Error(err))
			continue
		}
		existing[keySig(idx.Key)] = idx
	}
	return existing
}

// ensureIndexSet reconciles the desired indexes for one collection. An
// index with the same keys is reused when its uniqueness matches and is
// dropped and recreated when it does not.
func ensureIndexSet(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) error {
	var errs []string
	existing := listExisting(ctx, coll)

	for _, m := range models {
		var name string
		var unique *bool
		if m.Options != nil {
			if m.Options.Name != nil {
				name = *m.Options.Name
			}
			unique = m.Options.Unique
		}
		sig := keySig(m.Keys.(bson.D))
		start := time.Now()

		if ex, ok := existing[sig]; ok {
			if boolValue(unique) == boolValue(ex.Unique) {
				zap.L().Debug("reusing existing index",
					zap.String("collection", coll.Name()),
					zap.String("name", ex.Name),
					zap.String("keys", sig))
				continue
			}
			if _, err := coll.Indexes().DropOne(ctx, ex.Name); err != nil {
				errs = append(errs, fmt.Sprintf("%s(%s): drop failed: %v", coll.Name(), name, err))
				continue
			}
		}

		if _, err := coll.Indexes().CreateOne(ctx, m); err != nil {
			if isDuplicateKeyErr(err) && boolValue(unique) {
				errs = append(errs, fmt.Sprintf("%s(%s): cannot create unique index (duplicates present)", coll.Name(), name))
			} else {
				errs = append(errs, fmt.Sprintf("%s(%s): %v", coll.Name(), name, err))
			}
			zap.L().Warn("index ensure failed",
				zap.String("collection", coll.Name()),
				zap.String("name", name),
				zap.String("keys", sig),
				zap.Error(err))
			continue
		}
		zap.L().Info("index ensured",
			zap.String("collection", coll.Name()),
			zap.String("name", name),
			zap.String("keys", sig),
			zap.Bool("unique", boolValue(unique)),
			zap.String("took", time.Since(start).String()))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
