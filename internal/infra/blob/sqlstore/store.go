// Package sqlstore implements core.Store on top of database/sql. Each blob is
// one row; the revision column is a counter advanced by every write, and
// conditional writes are single statements guarded on that column.
package sqlstore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"cabincore/internal/blob/core"
)

// Dialect captures the few differences between SQL engines.
type Dialect struct {
	Driver      core.Driver
	PayloadType string
	// Numbered placeholders ($1, $2...) instead of ?.
	Numbered bool
}

// Store persists blobs in a single table.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// New wraps db and ensures the blobs table exists.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	s := &Store{db: db, dialect: dialect}
	ddl := `CREATE TABLE IF NOT EXISTS blobs (
		blob_key TEXT PRIMARY KEY,
		revision BIGINT NOT NULL,
		content_type TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT '{}',
		payload ` + dialect.PayloadType + ` NOT NULL,
		updated_at TEXT NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("ensure blobs table: %w", err)
	}
	return s, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Driver() core.Driver { return s.dialect.Driver }

func (s *Store) rebind(query string) string {
	if !s.dialect.Numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	payload, err := io.ReadAll(r)
	if err != nil {
		return core.Info{}, err
	}
	md, err := json.Marshal(opts.Metadata)
	if err != nil {
		return core.Info{}, err
	}
	now := time.Now().UTC()
	stamp := now.Format(time.RFC3339Nano)

	var row *sql.Row
	switch {
	case opts.IfNoneMatch:
		row = s.db.QueryRowContext(ctx, s.rebind(`INSERT INTO blobs (blob_key, revision, content_type, metadata, payload, updated_at)
			VALUES (?, 1, ?, ?, ?, ?)
			ON CONFLICT (blob_key) DO NOTHING
			RETURNING revision`), key, opts.ContentType, string(md), payload, stamp)
	case opts.IfMatch != "":
		expected, perr := strconv.ParseInt(opts.IfMatch, 10, 64)
		if perr != nil {
			return core.Info{}, fmt.Errorf("put %s: %w", key, core.ErrRevisionMismatch)
		}
		row = s.db.QueryRowContext(ctx, s.rebind(`UPDATE blobs
			SET revision = revision + 1, content_type = ?, metadata = ?, payload = ?, updated_at = ?
			WHERE blob_key = ? AND revision = ?
			RETURNING revision`), opts.ContentType, string(md), payload, stamp, key, expected)
	default:
		row = s.db.QueryRowContext(ctx, s.rebind(`INSERT INTO blobs (blob_key, revision, content_type, metadata, payload, updated_at)
			VALUES (?, 1, ?, ?, ?, ?)
			ON CONFLICT (blob_key) DO UPDATE SET
				revision = blobs.revision + 1,
				content_type = excluded.content_type,
				metadata = excluded.metadata,
				payload = excluded.payload,
				updated_at = excluded.updated_at
			RETURNING revision`), key, opts.ContentType, string(md), payload, stamp)
	}
	var revision int64
	if err := row.Scan(&revision); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Info{}, fmt.Errorf("put %s: %w", key, core.ErrRevisionMismatch)
		}
		return core.Info{}, fmt.Errorf("put %s: %w", key, err)
	}
	rev := strconv.FormatInt(revision, 10)
	return core.Info{
		Key:          key,
		Size:         int64(len(payload)),
		ContentType:  opts.ContentType,
		ETag:         rev,
		Revision:     rev,
		Metadata:     core.CloneMetadata(opts.Metadata),
		LastModified: now,
	}, nil
}

func (s *Store) Get(ctx context.Context, key string) (core.Info, io.ReadCloser, error) {
	info, payload, err := s.load(ctx, key, true)
	if err != nil {
		return core.Info{}, nil, err
	}
	return info, io.NopCloser(bytes.NewReader(payload)), nil
}

func (s *Store) Head(ctx context.Context, key string) (core.Info, error) {
	info, _, err := s.load(ctx, key, false)
	return info, err
}

func (s *Store) load(ctx context.Context, key string, withPayload bool) (core.Info, []byte, error) {
	var (
		revision    int64
		contentType string
		metadata    string
		updatedAt   string
		size        int64
		payload     []byte
	)
	var err error
	if withPayload {
		err = s.db.QueryRowContext(ctx, s.rebind(`SELECT revision, content_type, metadata, updated_at, payload FROM blobs WHERE blob_key = ?`), key).
			Scan(&revision, &contentType, &metadata, &updatedAt, &payload)
		size = int64(len(payload))
	} else {
		err = s.db.QueryRowContext(ctx, s.rebind(`SELECT revision, content_type, metadata, updated_at, LENGTH(payload) FROM blobs WHERE blob_key = ?`), key).
			Scan(&revision, &contentType, &metadata, &updatedAt, &size)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return core.Info{}, nil, fmt.Errorf("blob %s: %w", key, core.ErrNotFound)
	}
	if err != nil {
		return core.Info{}, nil, fmt.Errorf("select blob %s: %w", key, err)
	}
	var md map[string]string
	if err := json.Unmarshal([]byte(metadata), &md); err != nil {
		return core.Info{}, nil, fmt.Errorf("decode metadata %s: %w", key, err)
	}
	modified, _ := time.Parse(time.RFC3339Nano, updatedAt)
	rev := strconv.FormatInt(revision, 10)
	return core.Info{
		Key:          key,
		Size:         size,
		ContentType:  contentType,
		ETag:         rev,
		Revision:     rev,
		Metadata:     md,
		LastModified: modified,
	}, payload, nil
}

func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM blobs WHERE blob_key = ?`), key)
	if err != nil {
		return false, fmt.Errorf("delete blob %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
