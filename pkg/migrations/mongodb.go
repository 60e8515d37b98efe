package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureMongoCollection creates the indexes the mongodb sink queries by.
// The collection itself is created on first insert.
func EnsureMongoCollection(ctx context.Context, db *mongo.Database, name string) error {
	collection := db.Collection(name)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetName("idx_" + name + "_id").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "source_id", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_" + name + "_source_timestamp"),
		},
		{
			Keys:    bson.D{{Key: "pipeline_id", Value: 1}, {Key: "stored_at", Value: -1}},
			Options: options.Index().SetName("idx_" + name + "_pipeline_stored_at"),
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("failed to create indexes on %s: %w", name, err)
	}
	return nil
}
