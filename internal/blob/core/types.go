// Package core defines core abstractions for blob storage backends
// used internally by higher-level services.
package core

import (
	"context"
	"errors"
	"io"
	"strconv"
	"time"
)

// Driver identifies a concrete blob storage backend implementation.
type Driver string

const (
	// DriverFilesystem represents the local filesystem implementation.
	DriverFilesystem Driver = "fs" // local filesystem (default, dev)
	// DriverS3 represents an S3 / MinIO compatible implementation.
	DriverS3 Driver = "s3"
	// DriverMemory represents an in-memory implementation typically used in tests.
	DriverMemory Driver = "memory"
	// DriverSQLite stores blobs as rows of an embedded SQLite database.
	DriverSQLite Driver = "sqlite"
	// DriverPostgres stores blobs as rows of a PostgreSQL table.
	DriverPostgres Driver = "postgres"
	// DriverRedis stores blobs as Redis hashes.
	DriverRedis Driver = "redis"
	// DriverMongo stores blobs as MongoDB documents.
	DriverMongo Driver = "mongo"
)

// PutOptions specifies optional parameters for Put.
//
// IfMatch makes the write conditional on the current revision of the key and
// IfNoneMatch makes it create-only. A write whose condition does not hold
// fails with ErrRevisionMismatch and leaves the stored blob untouched.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
	IfMatch     string
	IfNoneMatch bool
}

// Info describes a stored blob.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Revision     string            `json:"revision"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store provides a thin S3-like abstraction used by higher layers.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	Delete(ctx context.Context, key string) (bool, error)
	Driver() Driver
}

var (
	// ErrNotFound is returned when a key holds no blob.
	ErrNotFound = errors.New("blobstore: not found")
	// ErrRevisionMismatch is returned when a conditional write loses.
	ErrRevisionMismatch = errors.New("blobstore: revision mismatch")
	// ErrUnsupported is returned when an optional capability is not available.
	ErrUnsupported = errors.New("blobstore: unsupported operation")
)

// CheckPrecondition validates opts against the current revision of a key.
// exists reports whether the key is present. Drivers with counter revisions
// call it while holding their write lock or transaction.
func CheckPrecondition(exists bool, current string, opts PutOptions) error {
	if opts.IfNoneMatch && exists {
		return ErrRevisionMismatch
	}
	if opts.IfMatch != "" && (!exists || current != opts.IfMatch) {
		return ErrRevisionMismatch
	}
	return nil
}

// NextRevision returns the successor of a counter revision. An empty or
// malformed revision restarts the sequence at 1.
func NextRevision(current string) string {
	n, err := strconv.ParseUint(current, 10, 64)
	if err != nil {
		return "1"
	}
	return strconv.FormatUint(n+1, 10)
}

// CloneMetadata copies a metadata map.
func CloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
