// Package mongo implements session.Storage on a MongoDB collection.
//
// Documents hold the data as JSON text next to an expires_at date. A TTL
// index lets the server sweep expired documents in the background; reads
// check the expiry themselves because the TTL monitor runs about once a minute.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/sessions/core/session"
)

// DefaultCollection is the collection used when none is configured.
const DefaultCollection = "sessions"

type document struct {
	ID        string    `bson:"_id"`
	Data      string    `bson:"data"`
	ExpiresAt time.Time `bson:"expires_at"`
}

// Storage is a MongoDB-backed session.Storage.
// The client is owned by the caller; Close does not disconnect it.
type Storage struct {
	coll *mongo.Collection
}

var (
	_ session.Storage        = (*Storage)(nil)
	_ session.ExpiredCleaner = (*Storage)(nil)
)

// Option configures Storage.
type Option func(*settings)

type settings struct {
	collection string
}

// WithCollection sets the collection holding session documents.
func WithCollection(name string) Option {
	return func(o *settings) {
		if name != "" {
			o.collection = name
		}
	}
}

// New creates a storage in db and ensures the TTL index exists.
func New(ctx context.Context, db *mongo.Database, opts ...Option) (*Storage, error) {
	o := settings{collection: DefaultCollection}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Storage{coll: db.Collection(o.collection)}
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return nil, errors.Join(session.ErrStorage, fmt.Errorf("creating ttl index: %w", err))
	}
	return s, nil
}

func byID(id string) bson.D {
	return bson.D{{Key: "_id", Value: id}}
}

// Get returns the stored data, or nil when absent. Expired documents are deleted.
func (s *Storage) Get(ctx context.Context, id string) (session.Data, error) {
	var doc document
	if err := s.coll.FindOne(ctx, byID(id)).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, errors.Join(session.ErrStorage, err)
	}

	now := time.Now()
	if (session.Record{ExpiresAt: doc.ExpiresAt}).IsExpired(now) {
		filter := bson.D{
			{Key: "_id", Value: id},
			{Key: "expires_at", Value: bson.D{{Key: "$lte", Value: now}}},
		}
		if _, err := s.coll.DeleteOne(ctx, filter); err != nil {
			return nil, errors.Join(session.ErrStorage, err)
		}
		return nil, nil
	}

	data, err := session.DecodeData([]byte(doc.Data))
	if err != nil {
		return nil, errors.Join(session.ErrStorage, err)
	}
	if data == nil {
		data = session.Data{}
	}
	return data, nil
}

// Set upserts the document for id with expiry now+ttl.
func (s *Storage) Set(ctx context.Context, id string, data session.Data, ttl time.Duration) error {
	raw, err := session.EncodeData(data)
	if err != nil {
		return err
	}

	doc := document{
		ID:        id,
		Data:      string(raw),
		ExpiresAt: session.NewRecord(nil, ttl).ExpiresAt,
	}
	if _, err := s.coll.ReplaceOne(ctx, byID(id), doc, options.Replace().SetUpsert(true)); err != nil {
		return errors.Join(session.ErrStorage, err)
	}
	return nil
}

// Remove deletes the document for id.
func (s *Storage) Remove(ctx context.Context, id string) error {
	if _, err := s.coll.DeleteOne(ctx, byID(id)); err != nil {
		return errors.Join(session.ErrStorage, err)
	}
	return nil
}

// Reset deletes every session document.
func (s *Storage) Reset(ctx context.Context) error {
	if _, err := s.coll.DeleteMany(ctx, bson.D{}); err != nil {
		return errors.Join(session.ErrStorage, err)
	}
	return nil
}

// DeleteExpired removes documents whose expiry has passed without waiting
// for the TTL monitor.
func (s *Storage) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.coll.DeleteMany(ctx, bson.D{
		{Key: "expires_at", Value: bson.D{{Key: "$lte", Value: time.Now()}}},
	})
	if err != nil {
		return 0, errors.Join(session.ErrStorage, err)
	}
	return res.DeletedCount, nil
}

// Close is a no-op; the client belongs to the caller.
func (s *Storage) Close(context.Context) error {
	return nil
}
