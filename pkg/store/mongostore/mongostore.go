// Package mongostore mirrors generated metadata records into MongoDB, one
// document per (collection, index), so a collection can be queried by trait
// without scanning the output directory.
package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matzehuels/nftgen/pkg/metadata"
)

// Defaults for unset Config fields.
const (
	DefaultDatabase   = "nftgen"
	DefaultCollection = "metadata"
)

// Config locates the Mongo collection.
type Config struct {
	URI        string
	Database   string
	Collection string
}

// Document is the stored shape of one record.
type Document struct {
	Collection string          `bson:"collection"`
	Index      int             `bson:"index"`
	Record     metadata.Record `bson:"record"`
	UpdatedAt  time.Time       `bson:"updated_at"`
}

// Store upserts records into one Mongo collection. Records are keyed by
// the collection name they were generated under.
type Store struct {
	client     *mongo.Client
	coll       *mongo.Collection
	collection string
}

// Open connects, pings, and ensures the unique (collection, index) index.
// name is the NFT collection name used to scope documents.
func Open(ctx context.Context, cfg Config, name string) (*Store, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo uri is required")
	}
	if cfg.Database == "" {
		cfg.Database = DefaultDatabase
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	coll := client.Database(cfg.Database).Collection(cfg.Collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "collection", Value: 1}, {Key: "index", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("create mongo index: %w", err)
	}
	return &Store{client: client, coll: coll, collection: name}, nil
}

func (s *Store) filter(index int) bson.D {
	return bson.D{{Key: "collection", Value: s.collection}, {Key: "index", Value: index}}
}

// Publish upserts the record for index.
func (s *Store) Publish(ctx context.Context, index int, rec metadata.Record) error {
	doc := Document{
		Collection: s.collection,
		Index:      index,
		Record:     rec,
		UpdatedAt:  time.Now().UTC(),
	}
	_, err := s.coll.ReplaceOne(ctx, s.filter(index), doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert record %d: %w", index, err)
	}
	return nil
}

// PublishAll upserts every entry, stopping at the first failure.
func (s *Store) PublishAll(ctx context.Context, entries []metadata.Entry) error {
	for _, e := range entries {
		if err := s.Publish(ctx, e.Index, e.Record); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the stored record for index.
func (s *Store) Get(ctx context.Context, index int) (metadata.Record, bool, error) {
	var doc Document
	err := s.coll.FindOne(ctx, s.filter(index)).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return metadata.Record{}, false, nil
	}
	if err != nil {
		return metadata.Record{}, false, err
	}
	return doc.Record, true, nil
}

// Count returns the number of records stored for this collection.
func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.coll.CountDocuments(ctx, bson.D{{Key: "collection", Value: s.collection}})
}

// Drop deletes every record of this collection.
func (s *Store) Drop(ctx context.Context) error {
	_, err := s.coll.DeleteMany(ctx, bson.D{{Key: "collection", Value: s.collection}})
	return err
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
