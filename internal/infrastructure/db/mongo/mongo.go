package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

const connectTimeout = 10 * time.Second

// Config locates the activity audit database.
type Config struct {
	URI      string
	Database string
	Timeout  time.Duration
}

// Connect opens a client and pings it. Activity writes are fire-and-forget
// audit entries, so the database handle is acknowledged by the primary only
// and reads may go to secondaries.
func Connect(ctx context.Context, cfg Config) (*mongo.Client, *mongo.Database, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = connectTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(cfg.URI).
		SetAppName("framez-core").
		SetServerSelectionTimeout(timeout).
		SetRetryWrites(true))
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.PrimaryPreferred()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("mongo ping: %w", err)
	}

	db := client.Database(cfg.Database, options.Database().
		SetWriteConcern(writeconcern.W1()).
		SetReadPreference(readpref.SecondaryPreferred()))
	return client, db, nil
}
