package history

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRecorder inserts one document per pull into a collection.
type MongoRecorder struct {
	coll *mongo.Collection
}

// NewMongoRecorder connects to uri and returns a Recorder writing into
// database.pulls. Callers should arrange to disconnect the underlying
// client on shutdown; MongoRecorder does not own the client's lifetime
// beyond the collection handle it keeps.
func NewMongoRecorder(ctx context.Context, uri, database string) (*MongoRecorder, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &MongoRecorder{coll: client.Database(database).Collection("pulls")}, nil
}

func (r *MongoRecorder) Record(ctx context.Context, rec PullRecord) error {
	_, err := r.coll.InsertOne(ctx, rec)
	if err != nil {
		return fmt.Errorf("insert pull record: %w", err)
	}
	return nil
}

var _ Recorder = (*MongoRecorder)(nil)
