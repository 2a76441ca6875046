package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ayush/research-catalog/backend/internal/models"
)

// MongoStore persists engagement records in MongoDB, one document per
// artifact keyed by artifact id.
type MongoStore struct {
	col *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{col: db.Collection("engagement")}
}

// SaveRecord replaces the stored record, inserting it if absent.
func (s *MongoStore) SaveRecord(ctx context.Context, rec models.EngagementRecord) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := s.col.ReplaceOne(ctx, bson.M{"_id": rec.ArtifactID}, rec, opts); err != nil {
		return fmt.Errorf("mongo save engagement %s: %w", rec.ArtifactID, err)
	}
	return nil
}

func (s *MongoStore) DeleteRecord(ctx context.Context, artifactID string) error {
	if _, err := s.col.DeleteOne(ctx, bson.M{"_id": artifactID}); err != nil {
		return fmt.Errorf("mongo delete engagement %s: %w", artifactID, err)
	}
	return nil
}

// ListRecords loads every stored record.
func (s *MongoStore) ListRecords(ctx context.Context) ([]models.EngagementRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := s.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo list engagement: %w", err)
	}
	defer cur.Close(ctx)

	var recs []models.EngagementRecord
	if err := cur.All(ctx, &recs); err != nil {
		return nil, fmt.Errorf("mongo decode engagement: %w", err)
	}
	return recs, nil
}
