package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/myrjola/ruckplan/internal/plan"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// WorkflowStore is a [plan.WorkflowStore] keeping one document per session.
type WorkflowStore struct {
	collection *mongo.Collection
	logger     *slog.Logger
}

type workflowDocument struct {
	SessionID string    `bson:"_id"`
	Payload   []byte    `bson:"payload"`
	ExpiresAt time.Time `bson:"expiresAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// NewWorkflowStore creates a workflow store on db.
func NewWorkflowStore(db *mongo.Database, logger *slog.Logger) *WorkflowStore {
	return &WorkflowStore{
		collection: db.Collection(workflowCollection),
		logger:     logger,
	}
}

// Put replaces the payload of the session in a single document write.
func (s *WorkflowStore) Put(ctx context.Context, sessionID string, payload []byte, expiresAt time.Time) error {
	doc := workflowDocument{
		SessionID: sessionID,
		Payload:   payload,
		ExpiresAt: expiresAt.UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if _, err := s.collection.ReplaceOne(ctx, bson.M{"_id": sessionID}, doc,
		options.Replace().SetUpsert(true)); err != nil {
		return fmt.Errorf("upsert workflow: %w", err)
	}
	return nil
}

// Get returns the payload of the session or [plan.ErrNotFound].
func (s *WorkflowStore) Get(ctx context.Context, sessionID string) ([]byte, error) {
	var doc workflowDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, plan.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find workflow: %w", err)
	}
	return doc.Payload, nil
}

// Delete removes the payload of the session.
func (s *WorkflowStore) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": sessionID}); err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	return nil
}

// DeleteExpired removes payloads that expired before the given time.
func (s *WorkflowStore) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	result, err := s.collection.DeleteMany(ctx, bson.M{"expiresAt": bson.M{"$lt": before.UTC()}})
	if err != nil {
		return 0, fmt.Errorf("delete expired workflows: %w", err)
	}
	if result.DeletedCount > 0 {
		s.logger.LogAttrs(ctx, slog.LevelDebug, "pruned expired workflows", slog.Int64("count", result.DeletedCount))
	}
	return int(result.DeletedCount), nil
}
