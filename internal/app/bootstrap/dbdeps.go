// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/dalemusser/stratalog/internal/app/system/livelog"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database and backend dependencies for this WAFFLE app.
//
// This struct is created in ConnectDB and passed to subsequent lifecycle
// hooks: EnsureSchema, Startup, BuildHandler, and Shutdown. The Shutdown
// hook is responsible for closing these connections gracefully.
type DBDeps struct {
	// MongoDB client and database
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database

	// LogRouter owns every live log scope. It is shared by the websocket
	// endpoint, the ingestion API, login/logout and the background jobs.
	LogRouter *livelog.Router
}
