package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"cabincore/internal/infra/blob/fs"
	"cabincore/internal/infra/blob/memory"
	"cabincore/internal/infra/blob/mongo"
	"cabincore/internal/infra/blob/postgres"
	"cabincore/internal/infra/blob/redis"
	"cabincore/internal/infra/blob/s3"
	"cabincore/internal/infra/blob/sqlite"
)

// Open selects a blob.Store implementation using environment variables.
//
//	CABINCORE_BLOB_DRIVER: fs|s3|memory|sqlite|postgres|redis|mongo (default fs)
//	CABINCORE_BLOB_FS_ROOT: directory root when driver=fs (default ./blobdata)
//	CABINCORE_SQLITE_PATH: database file when driver=sqlite (default cabincore.db)
//	CABINCORE_POSTGRES_DSN: connection string when driver=postgres
//	CABINCORE_REDIS_ADDR / CABINCORE_REDIS_PASSWORD / CABINCORE_REDIS_DB: when driver=redis
//	CABINCORE_MONGO_URI / CABINCORE_MONGO_DB: when driver=mongo
//	(S3 specific variables documented in internal/infra/blob/s3)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("CABINCORE_BLOB_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return fs.New(os.Getenv("CABINCORE_BLOB_FS_ROOT"))
	case DriverS3:
		return s3.OpenFromEnv(ctx)
	case DriverMemory:
		return memory.New(), nil
	case DriverSQLite:
		return sqlite.New(ctx, os.Getenv("CABINCORE_SQLITE_PATH"))
	case DriverPostgres:
		return postgres.New(ctx, os.Getenv("CABINCORE_POSTGRES_DSN"))
	case DriverRedis:
		db := 0
		if raw := os.Getenv("CABINCORE_REDIS_DB"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid CABINCORE_REDIS_DB %q: %w", raw, err)
			}
			db = n
		}
		return redis.New(ctx, redis.Config{
			Addr:     os.Getenv("CABINCORE_REDIS_ADDR"),
			Password: os.Getenv("CABINCORE_REDIS_PASSWORD"),
			DB:       db,
		})
	case DriverMongo:
		return mongo.New(ctx, mongo.Config{
			URI:      os.Getenv("CABINCORE_MONGO_URI"),
			Database: os.Getenv("CABINCORE_MONGO_DB"),
		})
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

// NewMemory returns a process-local store, used by tests and by the CLI for
// dry runs.
func NewMemory() Store { return memory.New() }

// Close releases the connections held by store, if any.
func Close(ctx context.Context, store Store) error {
	switch c := store.(type) {
	case interface{ Close(context.Context) error }:
		return c.Close(ctx)
	case io.Closer:
		return c.Close()
	default:
		return nil
	}
}
