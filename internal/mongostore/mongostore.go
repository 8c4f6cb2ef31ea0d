// Package mongostore keeps the workflow cache and the adaptation history in MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	workflowCollection   = "workflow_cache"
	adaptationCollection = "adaptation_records"

	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second
)

// Connect connects to the MongoDB deployment at uri and verifies the primary is reachable.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, pingTimeout)
	defer pingCancel()
	if err = client.Ping(pingCtx, readpref.Primary()); err != nil {
		return nil, errors.Join(fmt.Errorf("ping mongo: %w", err), Disconnect(client))
	}
	return client, nil
}

// Disconnect closes the client's connections.
func Disconnect(client *mongo.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect mongo: %w", err)
	}
	return nil
}

// EnsureIndexes creates the indexes the stores query by. It is idempotent.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	if _, err := db.Collection(workflowCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bsonKeys("expiresAt"),
		Options: options.Index().SetName("expires_at"),
	}); err != nil {
		return fmt.Errorf("create workflow cache index: %w", err)
	}
	if _, err := db.Collection(adaptationCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bsonKeys("sessionId", "createdAt"),
		Options: options.Index().SetName("session_created"),
	}); err != nil {
		return fmt.Errorf("create adaptation records index: %w", err)
	}
	return nil
}

// bsonKeys builds an ascending index key on fields.
func bsonKeys(fields ...string) bson.D {
	keys := make(bson.D, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, bson.E{Key: f, Value: 1})
	}
	return keys
}
