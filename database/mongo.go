package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names used by the Mongo backend.
const (
	UsersCollection       = "users"
	RedeemCodesCollection = "redeem_codes"
)

// Connect establishes connection to MongoDB with proper configuration
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(100).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(30 * time.Second).
		SetServerSelectionTimeout(5 * time.Second). // Fail fast if server unavailable
		SetSocketTimeout(15 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	// Verify connection with ping
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	log.Info("✅ Connected to MongoDB with connection pool configured")
	return client, nil
}

// Disconnect closes the MongoDB connection gracefully
func Disconnect(client *mongo.Client) error {
	if client == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return client.Disconnect(ctx)
}

// mongoDoc wraps a record with its key and a revision counter used for
// optimistic updates.
type mongoDoc[T any] struct {
	Key   string `bson:"_id"`
	Rev   int64  `bson:"rev"`
	Value T      `bson:"value"`
}

// Mongo is a Table stored in one MongoDB collection.
type Mongo[T any] struct {
	coll *mongo.Collection
}

// NewMongo returns a table over coll.
func NewMongo[T any](coll *mongo.Collection) *Mongo[T] {
	return &Mongo[T]{coll: coll}
}

func (m *Mongo[T]) find(ctx context.Context, key string) (mongoDoc[T], bool, error) {
	var doc mongoDoc[T]
	err := m.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return doc, false, nil
	}
	if err != nil {
		return doc, false, fmt.Errorf("failed to find %s/%s: %w", m.coll.Name(), key, err)
	}
	return doc, true, nil
}

func (m *Mongo[T]) Get(ctx context.Context, key string) (T, bool, error) {
	doc, ok, err := m.find(ctx, key)
	return doc.Value, ok, err
}

func (m *Mongo[T]) Put(ctx context.Context, key string, value T) error {
	_, err := m.coll.UpdateOne(ctx,
		bson.M{"_id": key},
		bson.M{
			"$set": bson.M{"value": value},
			"$inc": bson.M{"rev": 1},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to put %s/%s: %w", m.coll.Name(), key, err)
	}
	return nil
}

func (m *Mongo[T]) Update(ctx context.Context, key string, fn UpdateFunc[T]) (T, error) {
	var zero T
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		doc, exists, err := m.find(ctx, key)
		if err != nil {
			return zero, err
		}

		next, err := fn(doc.Value, exists)
		if errors.Is(err, ErrSkipWrite) {
			return doc.Value, nil
		}
		if err != nil {
			return zero, err
		}

		if !exists {
			_, err := m.coll.InsertOne(ctx, mongoDoc[T]{Key: key, Rev: 1, Value: next})
			if mongo.IsDuplicateKeyError(err) {
				continue
			}
			if err != nil {
				return zero, fmt.Errorf("failed to insert %s/%s: %w", m.coll.Name(), key, err)
			}
			return next, nil
		}

		res, err := m.coll.ReplaceOne(ctx,
			bson.M{"_id": key, "rev": doc.Rev},
			mongoDoc[T]{Key: key, Rev: doc.Rev + 1, Value: next},
		)
		if err != nil {
			return zero, fmt.Errorf("failed to replace %s/%s: %w", m.coll.Name(), key, err)
		}
		if res.MatchedCount == 1 {
			return next, nil
		}
	}

	log.WithFields(log.Fields{"collection": m.coll.Name(), "key": key}).Warn("⚠️ Mongo update kept conflicting")
	return zero, ErrConflict
}

func (m *Mongo[T]) Keys(ctx context.Context) ([]string, error) {
	raw, err := m.coll.Distinct(ctx, "_id", bson.D{})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", m.coll.Name(), err)
	}
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		if s, ok := k.(string); ok {
			keys = append(keys, s)
		}
	}
	return keys, nil
}

var _ Table[struct{}] = (*Mongo[struct{}])(nil)
