// Package mongo stores blobs as MongoDB documents keyed by blob key.
// Conditional writes filter on the stored revision counter.
package mongo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"cabincore/internal/blob/core"
)

// Config selects the MongoDB deployment and collection.
type Config struct {
	URI        string
	Database   string
	Collection string
}

type record struct {
	Key         string            `bson:"_id"`
	Revision    int64             `bson:"revision"`
	Payload     []byte            `bson:"payload"`
	ContentType string            `bson:"content_type,omitempty"`
	Metadata    map[string]string `bson:"metadata,omitempty"`
	UpdatedAt   time.Time         `bson:"updated_at"`
}

func (r record) info() core.Info {
	rev := strconv.FormatInt(r.Revision, 10)
	return core.Info{
		Key:          r.Key,
		Size:         int64(len(r.Payload)),
		ContentType:  r.ContentType,
		ETag:         rev,
		Revision:     rev,
		Metadata:     core.CloneMetadata(r.Metadata),
		LastModified: r.UpdatedAt,
	}
}

// Store implements core.Store on a MongoDB collection.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// New connects to MongoDB and verifies the deployment is reachable.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URI == "" {
		cfg.URI = "mongodb://localhost:27017"
	}
	if cfg.Database == "" {
		cfg.Database = "cabincore"
	}
	if cfg.Collection == "" {
		cfg.Collection = "blobs"
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &Store{client: client, coll: client.Database(cfg.Database).Collection(cfg.Collection)}, nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error { return s.client.Disconnect(ctx) }

func (s *Store) Driver() core.Driver { return core.DriverMongo }

func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	payload, err := io.ReadAll(r)
	if err != nil {
		return core.Info{}, err
	}
	rec := record{
		Key:         key,
		Payload:     payload,
		ContentType: opts.ContentType,
		Metadata:    core.CloneMetadata(opts.Metadata),
		UpdatedAt:   time.Now().UTC().Truncate(time.Millisecond),
	}
	switch {
	case opts.IfNoneMatch:
		rec.Revision = 1
		if _, err := s.coll.InsertOne(ctx, rec); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return core.Info{}, fmt.Errorf("put %s: %w", key, core.ErrRevisionMismatch)
			}
			return core.Info{}, fmt.Errorf("put %s: %w", key, err)
		}
	case opts.IfMatch != "":
		expected, perr := strconv.ParseInt(opts.IfMatch, 10, 64)
		if perr != nil {
			return core.Info{}, fmt.Errorf("put %s: %w", key, core.ErrRevisionMismatch)
		}
		rec.Revision = expected + 1
		res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": key, "revision": expected}, rec)
		if err != nil {
			return core.Info{}, fmt.Errorf("put %s: %w", key, err)
		}
		if res.MatchedCount == 0 {
			return core.Info{}, fmt.Errorf("put %s: %w", key, core.ErrRevisionMismatch)
		}
	default:
		var current record
		err := s.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&current)
		if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
			return core.Info{}, fmt.Errorf("put %s: %w", key, err)
		}
		rec.Revision = current.Revision + 1
		if _, err := s.coll.ReplaceOne(ctx, bson.M{"_id": key}, rec, options.Replace().SetUpsert(true)); err != nil {
			return core.Info{}, fmt.Errorf("put %s: %w", key, err)
		}
	}
	return rec.info(), nil
}

func (s *Store) find(ctx context.Context, key string) (record, error) {
	var rec record
	err := s.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return record{}, fmt.Errorf("blob %s: %w", key, core.ErrNotFound)
	}
	if err != nil {
		return record{}, fmt.Errorf("get %s: %w", key, err)
	}
	return rec, nil
}

func (s *Store) Get(ctx context.Context, key string) (core.Info, io.ReadCloser, error) {
	rec, err := s.find(ctx, key)
	if err != nil {
		return core.Info{}, nil, err
	}
	return rec.info(), io.NopCloser(bytes.NewReader(rec.Payload)), nil
}

func (s *Store) Head(ctx context.Context, key string) (core.Info, error) {
	rec, err := s.find(ctx, key)
	if err != nil {
		return core.Info{}, err
	}
	return rec.info(), nil
}

func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": key})
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", key, err)
	}
	return res.DeletedCount > 0, nil
}
