package feedback

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/Simplici0/fieldquote/internal/reconcile"
)

// LogSink writes one log line per record. It is used when no MongoDB is configured.
type LogSink struct {
	Logger *zap.Logger
}

// Publish logs each record.
func (s LogSink) Publish(_ context.Context, records []reconcile.PerformanceRecord) error {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, r := range records {
		logger.Info("performance record",
			zap.String("id", r.ID),
			zap.String("job_id", r.JobID),
			zap.String("service_type", string(r.ServiceType)),
			zap.Float64("estimated_cost", r.Estimate.Cost),
			zap.Float64("actual_cost", r.Actual.Cost),
		)
	}
	return nil
}

const performanceCollection = "performance_records"

// MongoSink upserts records into the collection the recalculation batch reads.
type MongoSink struct {
	client   *mongo.Client
	dbName   string
	collName string
}

// NewMongoSink connects and pings MongoDB.
func NewMongoSink(ctx context.Context, uri, dbName string) (*MongoSink, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &MongoSink{
		client:   client,
		dbName:   dbName,
		collName: performanceCollection,
	}, nil
}

type recordDocument struct {
	ID          string              `bson:"_id"`
	JobID       string              `bson:"job_id"`
	ServiceType string              `bson:"service_type"`
	LoadoutID   string              `bson:"loadout_id,omitempty"`
	Estimate    reconcile.Estimates `bson:"estimate"`
	Actual      reconcile.Actuals   `bson:"actual"`
	Variance    reconcile.Variances `bson:"variance"`
	CreatedAt   time.Time           `bson:"created_at"`
}

func toDocument(r reconcile.PerformanceRecord) recordDocument {
	return recordDocument{
		ID:          r.ID,
		JobID:       r.JobID,
		ServiceType: string(r.ServiceType),
		LoadoutID:   r.LoadoutID,
		Estimate:    r.Estimate,
		Actual:      r.Actual,
		Variance:    r.Variance,
		CreatedAt:   r.CreatedAt,
	}
}

// Publish replaces each record by id, so re-exports are idempotent.
func (s *MongoSink) Publish(ctx context.Context, records []reconcile.PerformanceRecord) error {
	if len(records) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(records))
	for _, r := range records {
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": r.ID}).
			SetReplacement(toDocument(r)).
			SetUpsert(true))
	}

	collection := s.client.Database(s.dbName).Collection(s.collName)
	if _, err := collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("failed to upsert performance records: %w", err)
	}
	return nil
}

// Close closes the MongoDB connection.
func (s *MongoSink) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
