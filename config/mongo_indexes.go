package config

import (
	"context"
	"errors"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const JournalCollection = "processing_journal"

// MongoDatabase returns the configured database on MongoClient.
func MongoDatabase() *mongo.Database {
	dbName := os.Getenv("MONGO_DB")
	if dbName == "" {
		dbName = "vibematch"
	}
	return MongoClient.Database(dbName)
}

func EnsureMongoIndexes() error {
	if MongoClient == nil {
		return errors.New("MongoClient is nil; call InitMongo() first")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	journal := MongoDatabase().Collection(JournalCollection)
	_, err := journal.Indexes().CreateMany(ctx, []mongo.IndexModel{
		// TTL index: expire at ExpiresAt (must be Date)
		{
			Keys: bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().
				SetName("ttl_expires_at").
				SetExpireAfterSeconds(0),
		},
		{
			Keys:    bson.D{{Key: "profile_id", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("by_profile_ts"),
		},
		{
			Keys:    bson.D{{Key: "outcome", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("by_outcome_ts"),
		},
	})
	return err
}
