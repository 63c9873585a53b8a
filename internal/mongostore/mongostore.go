// Package mongostore keeps snapshots in a MongoDB collection, one document
// per key.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/storage"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type snapshotDoc struct {
	Key       string    `bson:"_id"`
	Payload   string    `bson:"payload"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// Store implements storage.Store on a collection
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// Connect opens a client and pings the server
func Connect(ctx context.Context, uri, database, collection string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	return &Store{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}, nil
}

// Ping checks the server
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var doc snapshotDoc
	err := s.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo find %s: %w", key, err)
	}
	return []byte(doc.Payload), nil
}

func (s *Store) Set(ctx context.Context, key string, data []byte) error {
	update := bson.M{
		"$set": bson.M{
			"payload":   string(data),
			"updatedAt": time.Now(),
		},
	}
	opts := options.Update().SetUpsert(true)

	if _, err := s.collection.UpdateOne(ctx, bson.M{"_id": key}, update, opts); err != nil {
		return fmt.Errorf("mongo upsert %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.collection.DeleteOne(ctx, bson.M{"_id": key})
	return err
}

// AppendRecord runs read-modify-write inside a session transaction when the
// deployment supports it, and falls back to a plain read-modify-write.
func (s *Store) AppendRecord(ctx context.Context, key string, version int, record []byte) error {
	appendFn := func(ctx context.Context) error {
		existing, err := s.Get(ctx, key)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		updated, err := storage.AppendToEnvelope(existing, version, record)
		if err != nil {
			return err
		}
		return s.Set(ctx, key, updated)
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return appendFn(ctx)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, appendFn(sc)
	})
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Code == illegalOperation {
		// Standalone servers reject transactions.
		return appendFn(ctx)
	}
	return err
}

// Code returned by standalone servers for transactions
const illegalOperation = 20

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
