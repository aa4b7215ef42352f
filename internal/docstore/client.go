// Package docstore reads and writes the shared event document as one JSON
// blob. Every write replaces the whole document and is conditional on the
// revision that was read.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"cabincore/internal/blob"
	"cabincore/pkg/domain"
)

// DefaultKey is the blob key of the shared document.
const DefaultKey = "database.json"

const contentTypeJSON = "application/json"

// Snapshot is a decoded document together with the revision it was read at.
// Degraded marks a seed returned in place of a document that could not be
// read; it carries no revision and must never be written back.
type Snapshot struct {
	Document domain.Document
	Revision string
	Degraded bool
}

// Client owns the blob key of the shared document.
type Client struct {
	store    blob.Store
	key      string
	fallback bool
	logger   *slog.Logger
	nowFn    func() time.Time
}

// Option customises a Client.
type Option func(*Client)

// WithKey overrides the blob key.
func WithKey(key string) Option {
	return func(c *Client) {
		if key != "" {
			c.key = key
		}
	}
}

// WithReadFallback controls whether FetchDocument degrades to the seed
// document when the store cannot be read. Enabled by default.
func WithReadFallback(enabled bool) Option {
	return func(c *Client) { c.fallback = enabled }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the time source used for seed timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.nowFn = now
		}
	}
}

// New constructs a client over store.
func New(store blob.Store, opts ...Option) *Client {
	c := &Client{
		store:    store,
		key:      DefaultKey,
		fallback: true,
		logger:   slog.Default(),
		nowFn:    func() time.Time { return time.Now().UTC().Round(0) },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key returns the blob key of the document.
func (c *Client) Key() string { return c.key }

// Driver reports the backing blob driver.
func (c *Client) Driver() blob.Driver { return c.store.Driver() }

// FetchDocument returns the current document for display. When the store
// fails and read fallback is enabled, the seed document is returned with
// Degraded set instead of an error.
func (c *Client) FetchDocument(ctx context.Context) (Snapshot, error) {
	snap, err := c.FetchStrict(ctx)
	if err == nil {
		return snap, nil
	}
	if !c.fallback || ctx.Err() != nil {
		return Snapshot{}, err
	}
	c.logger.WarnContext(ctx, "document read failed, serving seed", "key", c.key, "error", err)
	return Snapshot{Document: domain.SeedDocument(c.nowFn()), Degraded: true}, nil
}

// FetchStrict returns the current document or an error. An absent or empty
// document is initialised with the seed using a create-only write.
func (c *Client) FetchStrict(ctx context.Context) (Snapshot, error) {
	for attempt := 0; attempt < 3; attempt++ {
		info, rc, err := c.store.Get(ctx, c.key)
		if errors.Is(err, blob.ErrNotFound) {
			snap, serr := c.seed(ctx, blob.PutOptions{ContentType: contentTypeJSON, IfNoneMatch: true})
			if errors.Is(serr, blob.ErrRevisionMismatch) {
				continue
			}
			return snap, serr
		}
		if err != nil {
			return Snapshot{}, fmt.Errorf("read %s: %w", c.key, err)
		}
		raw, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return Snapshot{}, fmt.Errorf("read %s: %w", c.key, err)
		}
		if len(bytes.TrimSpace(raw)) == 0 {
			snap, serr := c.seed(ctx, blob.PutOptions{ContentType: contentTypeJSON, IfMatch: info.Revision})
			if errors.Is(serr, blob.ErrRevisionMismatch) {
				continue
			}
			return snap, serr
		}
		doc, err := Decode(raw)
		if err != nil {
			return Snapshot{}, fmt.Errorf("decode %s: %w", c.key, err)
		}
		return Snapshot{Document: doc, Revision: info.Revision}, nil
	}
	return Snapshot{}, fmt.Errorf("initialise %s: %w", c.key, blob.ErrRevisionMismatch)
}

func (c *Client) seed(ctx context.Context, opts blob.PutOptions) (Snapshot, error) {
	doc := domain.SeedDocument(c.nowFn())
	raw, err := Encode(doc)
	if err != nil {
		return Snapshot{}, err
	}
	info, err := c.store.Put(ctx, c.key, bytes.NewReader(raw), opts)
	if err != nil {
		return Snapshot{}, fmt.Errorf("seed %s: %w", c.key, err)
	}
	c.logger.InfoContext(ctx, "seeded shared document", "key", c.key, "driver", c.store.Driver(), "revision", info.Revision)
	return Snapshot{Document: doc, Revision: info.Revision}, nil
}

// ReplaceDocument writes doc in full if the stored revision still equals
// expected. A lost race returns an error wrapping blob.ErrRevisionMismatch.
func (c *Client) ReplaceDocument(ctx context.Context, doc domain.Document, expected string) (Snapshot, error) {
	if expected == "" {
		return Snapshot{}, fmt.Errorf("replace %s: missing expected revision", c.key)
	}
	doc.Normalize()
	raw, err := Encode(doc)
	if err != nil {
		return Snapshot{}, err
	}
	info, err := c.store.Put(ctx, c.key, bytes.NewReader(raw), blob.PutOptions{ContentType: contentTypeJSON, IfMatch: expected})
	if err != nil {
		return Snapshot{}, fmt.Errorf("replace %s: %w", c.key, err)
	}
	return Snapshot{Document: doc, Revision: info.Revision}, nil
}

// Encode renders a document as indented JSON.
func Encode(doc domain.Document) ([]byte, error) {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return raw, nil
}

// Decode parses a stored document, treating missing collections as empty.
func Decode(raw []byte) (domain.Document, error) {
	var doc domain.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.Document{}, err
	}
	doc.Normalize()
	return doc, nil
}
