// Package testutil provides test helpers: a per-test MongoDB database and
// request builders for handler tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/stratalog/internal/app/system/indexes"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	// DefaultTestDBURI is used unless STRATALOG_TEST_MONGO_URI is set.
	DefaultTestDBURI = "mongodb://localhost:27017"
	// TestDBName prefixes every per-test database name.
	TestDBName = "stratalog_test"
)

var (
	clientOnce sync.Once
	client     *mongo.Client
	clientErr  error
)

func testDBURI() string {
	if uri := os.Getenv("STRATALOG_TEST_MONGO_URI"); uri != "" {
		return uri
	}
	return DefaultTestDBURI
}

// getClient returns the MongoDB client shared by every test in the binary.
func getClient() (*mongo.Client, error) {
	clientOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		clientOpts := options.Client().
			ApplyURI(testDBURI()).
			SetMaxPoolSize(100).
			SetMaxConnIdleTime(30 * time.Second).
			SetServerSelectionTimeout(10 * time.Second)

		client, clientErr = mongo.Connect(ctx, clientOpts)
		if clientErr != nil {
			return
		}
		clientErr = client.Ping(ctx, nil)
	})
	return client, clientErr
}

// SetupTestDB returns a fresh database, named after the test, with the
// production indexes applied. It is dropped when the test completes.
func SetupTestDB(t *testing.T) *mongo.Database {
	t.Helper()

	client, err := getClient()
	if err != nil {
		t.Fatalf("failed to connect to test MongoDB: %v", err)
	}

	db := client.Database(fmt.Sprintf("%s_%s", TestDBName, sanitizeTestName(t.Name())))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Drop(ctx); err != nil {
		t.Fatalf("failed to drop test database: %v", err)
	}
	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("failed to create indexes: %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := db.Drop(ctx); err != nil {
			t.Logf("warning: failed to drop test database on cleanup: %v", err)
		}
	})

	return db
}

// sanitizeTestName maps a test name onto characters valid in a database
// name. MongoDB caps names at 63 bytes and the prefix takes 15.
func sanitizeTestName(name string) string {
	const maxLen = 48
	result := make([]byte, 0, len(name))
	for i := 0; i < len(name) && len(result) < maxLen; i++ {
		c := name[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			result = append(result, c)
		} else {
			result = append(result, '_')
		}
	}
	return string(result)
}

// TestContext returns a context with a reasonable timeout for test operations.
func TestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}
