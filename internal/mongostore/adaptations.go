package mongostore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/myrjola/ruckplan/internal/plan"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AdaptationStore is a [plan.AdaptationStore] with one document per record.
type AdaptationStore struct {
	collection *mongo.Collection
	logger     *slog.Logger
}

type metricsDocument struct {
	Consistency         float64   `bson:"consistency"`
	AverageEffort       float64   `bson:"averageEffort"`
	ProgressTrend       float64   `bson:"progressTrend"`
	CompletionTimeRatio float64   `bson:"completionTimeRatio,omitempty"`
	HeartRateRecovery   float64   `bson:"heartRateRecovery,omitempty"`
	MissedWorkouts      int       `bson:"missedWorkouts,omitempty"`
	FeedbackRating      int       `bson:"feedbackRating,omitempty"`
	RecordedAt          time.Time `bson:"recordedAt"`
}

type adaptationDocument struct {
	ID                 string          `bson:"_id"`
	SessionID          string          `bson:"sessionId"`
	Reason             string          `bson:"reason"`
	Metrics            metricsDocument `bson:"metrics"`
	PreviousWorkflowID string          `bson:"previousWorkflowId,omitempty"`
	CreatedAt          time.Time       `bson:"createdAt"`
}

func toAdaptationDocument(r plan.AdaptationRecord) adaptationDocument {
	m := r.Metrics
	return adaptationDocument{
		ID:        r.ID,
		SessionID: r.SessionID,
		Reason:    string(r.Reason),
		Metrics: metricsDocument{
			Consistency:         m.Consistency,
			AverageEffort:       m.AverageEffort,
			ProgressTrend:       m.ProgressTrend,
			CompletionTimeRatio: m.CompletionTimeRatio,
			HeartRateRecovery:   m.HeartRateRecovery,
			MissedWorkouts:      m.MissedWorkouts,
			FeedbackRating:      m.FeedbackRating,
			RecordedAt:          m.RecordedAt.UTC(),
		},
		PreviousWorkflowID: r.PreviousWorkflowID,
		CreatedAt:          r.CreatedAt.UTC(),
	}
}

func (d adaptationDocument) record() plan.AdaptationRecord {
	m := d.Metrics
	return plan.AdaptationRecord{
		ID:        d.ID,
		SessionID: d.SessionID,
		Reason:    plan.RegenerationReason(d.Reason),
		Metrics: plan.PerformanceMetrics{
			Consistency:         m.Consistency,
			AverageEffort:       m.AverageEffort,
			ProgressTrend:       m.ProgressTrend,
			CompletionTimeRatio: m.CompletionTimeRatio,
			HeartRateRecovery:   m.HeartRateRecovery,
			MissedWorkouts:      m.MissedWorkouts,
			FeedbackRating:      m.FeedbackRating,
			RecordedAt:          m.RecordedAt,
		},
		PreviousWorkflowID: d.PreviousWorkflowID,
		CreatedAt:          d.CreatedAt,
	}
}

// NewAdaptationStore creates an adaptation store on db.
func NewAdaptationStore(db *mongo.Database, logger *slog.Logger) *AdaptationStore {
	return &AdaptationStore{
		collection: db.Collection(adaptationCollection),
		logger:     logger,
	}
}

// Append inserts the record. Inserting a record ID twice fails.
func (s *AdaptationStore) Append(ctx context.Context, record plan.AdaptationRecord) error {
	if _, err := s.collection.InsertOne(ctx, toAdaptationDocument(record)); err != nil {
		return fmt.Errorf("insert adaptation record: %w", err)
	}
	s.logger.LogAttrs(ctx, slog.LevelDebug, "appended adaptation record",
		slog.String("record_id", record.ID), slog.String("reason", string(record.Reason)))
	return nil
}

// List returns the records of a session oldest first.
func (s *AdaptationStore) List(ctx context.Context, sessionID string) (_ []plan.AdaptationRecord, err error) {
	cursor, err := s.collection.Find(ctx, bson.M{"sessionId": sessionID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find adaptation records: %w", err)
	}
	defer func() {
		if closeErr := cursor.Close(ctx); closeErr != nil && err == nil {
			err = fmt.Errorf("close cursor: %w", closeErr)
		}
	}()

	var docs []adaptationDocument
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode adaptation records: %w", err)
	}
	records := make([]plan.AdaptationRecord, 0, len(docs))
	for _, d := range docs {
		records = append(records, d.record())
	}
	return records, nil
}
