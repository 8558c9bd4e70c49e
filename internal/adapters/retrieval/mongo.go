package retrieval

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

type (
	emailCollection interface {
		Aggregate(ctx context.Context, pipeline any) (cursor, error)
		Find(ctx context.Context, filter any, limit int64) (cursor, error)
		InsertMany(ctx context.Context, docs []any) (int, error)
		UpdateOne(ctx context.Context, filter, update any) error
	}

	cursor interface {
		Next(ctx context.Context) bool
		Decode(val any) error
		Err() error
		Close(ctx context.Context) error
	}
)

// ConnectMongo opens a client and verifies the primary is reachable
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri).SetConnectTimeout(10 * time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	return client, nil
}

// WrapCollection adapts a driver collection for EmailIndex
func WrapCollection(coll *mongo.Collection) emailCollection {
	return mongoCollection{coll: coll}
}

type mongoCollection struct {
	coll *mongo.Collection
}

func (c mongoCollection) Aggregate(ctx context.Context, pipeline any) (cursor, error) {
	cur, err := c.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	return cur, nil
}

func (c mongoCollection) Find(ctx context.Context, filter any, limit int64) (cursor, error) {
	cur, err := c.coll.Find(ctx, filter, options.Find().SetLimit(limit))
	if err != nil {
		return nil, err
	}
	return cur, nil
}

func (c mongoCollection) InsertMany(ctx context.Context, docs []any) (int, error) {
	res, err := c.coll.InsertMany(ctx, docs)
	if err != nil {
		return 0, err
	}
	return len(res.InsertedIDs), nil
}

func (c mongoCollection) UpdateOne(ctx context.Context, filter, update any) error {
	_, err := c.coll.UpdateOne(ctx, filter, update)
	return err
}
