// Package redis stores blobs as Redis hashes. Conditional writes use
// WATCH/MULTI so a concurrent writer aborts the transaction.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"cabincore/internal/blob/core"
)

const (
	fieldRevision    = "revision"
	fieldPayload     = "payload"
	fieldContentType = "content_type"
	fieldMetadata    = "metadata"
	fieldUpdatedAt   = "updated_at"
)

// Config selects the Redis server and key namespace.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Store implements core.Store on a Redis server.
type Store struct {
	client *redis.Client
	prefix string
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "cabincore:blob:"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewWithClient(client, cfg.Prefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

// Close releases the client connection pool.
func (s *Store) Close() error { return s.client.Close() }

func (s *Store) Driver() core.Driver { return core.DriverRedis }

func (s *Store) redisKey(key string) string { return s.prefix + key }

func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	payload, err := io.ReadAll(r)
	if err != nil {
		return core.Info{}, err
	}
	md, err := json.Marshal(opts.Metadata)
	if err != nil {
		return core.Info{}, err
	}
	rk := s.redisKey(key)
	now := time.Now().UTC()
	var next string
	txf := func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, rk, fieldRevision).Result()
		exists := true
		if errors.Is(err, redis.Nil) {
			exists = false
			current = ""
		} else if err != nil {
			return err
		}
		if err := core.CheckPrecondition(exists, current, opts); err != nil {
			return err
		}
		next = core.NextRevision(current)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, rk, map[string]any{
				fieldRevision:    next,
				fieldPayload:     payload,
				fieldContentType: opts.ContentType,
				fieldMetadata:    string(md),
				fieldUpdatedAt:   now.Format(time.RFC3339Nano),
			})
			return nil
		})
		return err
	}
	if err := s.client.Watch(ctx, txf, rk); err != nil {
		if errors.Is(err, redis.TxFailedErr) || errors.Is(err, core.ErrRevisionMismatch) {
			return core.Info{}, fmt.Errorf("put %s: %w", key, core.ErrRevisionMismatch)
		}
		return core.Info{}, fmt.Errorf("put %s: %w", key, err)
	}
	return core.Info{
		Key:          key,
		Size:         int64(len(payload)),
		ContentType:  opts.ContentType,
		ETag:         next,
		Revision:     next,
		Metadata:     core.CloneMetadata(opts.Metadata),
		LastModified: now,
	}, nil
}

func (s *Store) Get(ctx context.Context, key string) (core.Info, io.ReadCloser, error) {
	fields, err := s.client.HGetAll(ctx, s.redisKey(key)).Result()
	if err != nil {
		return core.Info{}, nil, fmt.Errorf("get %s: %w", key, err)
	}
	info, err := decodeInfo(key, fields)
	if err != nil {
		return core.Info{}, nil, err
	}
	return info, io.NopCloser(strings.NewReader(fields[fieldPayload])), nil
}

func (s *Store) Head(ctx context.Context, key string) (core.Info, error) {
	fields, err := s.client.HGetAll(ctx, s.redisKey(key)).Result()
	if err != nil {
		return core.Info{}, fmt.Errorf("head %s: %w", key, err)
	}
	return decodeInfo(key, fields)
}

func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Del(ctx, s.redisKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", key, err)
	}
	return n > 0, nil
}

func decodeInfo(key string, fields map[string]string) (core.Info, error) {
	rev, ok := fields[fieldRevision]
	if !ok {
		return core.Info{}, fmt.Errorf("blob %s: %w", key, core.ErrNotFound)
	}
	var md map[string]string
	if raw := fields[fieldMetadata]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &md); err != nil {
			return core.Info{}, fmt.Errorf("decode metadata %s: %w", key, err)
		}
	}
	modified, _ := time.Parse(time.RFC3339Nano, fields[fieldUpdatedAt])
	if _, err := strconv.ParseUint(rev, 10, 64); err != nil {
		return core.Info{}, fmt.Errorf("blob %s: corrupt revision %q", key, rev)
	}
	return core.Info{
		Key:          key,
		Size:         int64(len(fields[fieldPayload])),
		ContentType:  fields[fieldContentType],
		ETag:         rev,
		Revision:     rev,
		Metadata:     md,
		LastModified: modified,
	}, nil
}
