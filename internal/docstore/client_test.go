package docstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"cabincore/internal/blob"
	"cabincore/pkg/domain"
)

var fixedNow = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

func newClient(store blob.Store, opts ...Option) *Client {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(store, opts...)
}

func TestFetchSeedsAbsentDocument(t *testing.T) {
	store := blob.NewMemory()
	c := newClient(store)
	snap, err := c.FetchStrict(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if snap.Degraded || snap.Revision == "" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if len(snap.Document.Users) != 1 || snap.Document.Users[0].ID != domain.SeedAdminID {
		t.Fatalf("expected seed admin, got %+v", snap.Document.Users)
	}
	info, rc, err := store.Get(context.Background(), DefaultKey)
	if err != nil {
		t.Fatalf("seed not persisted: %v", err)
	}
	defer func() { _ = rc.Close() }()
	raw, _ := io.ReadAll(rc)
	if !strings.Contains(string(raw), "\n  \"users\"") {
		t.Fatalf("expected indented JSON, got %s", raw)
	}
	if info.ContentType != "application/json" {
		t.Fatalf("unexpected content type %q", info.ContentType)
	}
}

func TestFetchSeedsEmptyDocument(t *testing.T) {
	store := blob.NewMemory()
	if _, err := store.Put(context.Background(), DefaultKey, strings.NewReader("  \n"), blob.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	snap, err := newClient(store).FetchStrict(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(snap.Document.Users) != 1 {
		t.Fatalf("expected seeded document, got %+v", snap.Document)
	}
}

func TestFetchNormalizesMissingCollections(t *testing.T) {
	store := blob.NewMemory()
	if _, err := store.Put(context.Background(), "custom.json", strings.NewReader(`{"users":[]}`), blob.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	c := newClient(store, WithKey("custom.json"))
	snap, err := c.FetchDocument(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if snap.Document.CarRides == nil || snap.Document.Bookings == nil {
		t.Fatalf("expected normalized collections")
	}
	if c.Key() != "custom.json" || c.Driver() != blob.DriverMemory {
		t.Fatalf("unexpected client config")
	}
}

func TestReplaceDocumentIsConditional(t *testing.T) {
	ctx := context.Background()
	c := newClient(blob.NewMemory())
	snap, err := c.FetchStrict(ctx)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	doc := snap.Document.Clone()
	doc.Activities = append(doc.Activities, domain.Activity{ID: "a1", Title: "Slittino", UserID: domain.SeedAdminID, CreatedAt: fixedNow})
	next, err := c.ReplaceDocument(ctx, doc, snap.Revision)
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if next.Revision == snap.Revision {
		t.Fatalf("revision must advance")
	}
	if _, err := c.ReplaceDocument(ctx, doc, snap.Revision); !errors.Is(err, blob.ErrRevisionMismatch) {
		t.Fatalf("expected mismatch for stale revision, got %v", err)
	}
	if _, err := c.ReplaceDocument(ctx, doc, ""); err == nil {
		t.Fatalf("expected error for missing revision")
	}
	reread, err := c.FetchStrict(ctx)
	if err != nil {
		t.Fatalf("reread: %v", err)
	}
	if len(reread.Document.Activities) != 1 || reread.Document.Activities[0].Likes == nil {
		t.Fatalf("unexpected stored activities %+v", reread.Document.Activities)
	}
}

type brokenStore struct {
	blob.Store
	getErr error
	body   string
}

func (b brokenStore) Get(context.Context, string) (blob.Info, io.ReadCloser, error) {
	if b.getErr != nil {
		return blob.Info{}, nil, b.getErr
	}
	return blob.Info{Revision: "1"}, io.NopCloser(bytes.NewReader([]byte(b.body))), nil
}

func TestFetchDocumentFallsBackToSeed(t *testing.T) {
	store := brokenStore{Store: blob.NewMemory(), getErr: errors.New("network down")}
	c := newClient(store)
	snap, err := c.FetchDocument(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !snap.Degraded || snap.Revision != "" || len(snap.Document.Users) != 1 {
		t.Fatalf("expected degraded seed, got %+v", snap)
	}
	if _, err := c.FetchStrict(context.Background()); err == nil {
		t.Fatalf("strict fetch must surface the error")
	}
}

func TestFetchDocumentWithoutFallback(t *testing.T) {
	store := brokenStore{Store: blob.NewMemory(), body: "{not json"}
	c := newClient(store, WithReadFallback(false))
	if _, err := c.FetchDocument(context.Background()); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestEncodeDecode(t *testing.T) {
	doc := domain.SeedDocument(fixedNow)
	raw, err := Encode(doc)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.Users[0].CreatedAt.Equal(fixedNow) {
		t.Fatalf("timestamp mismatch %v", decoded.Users[0].CreatedAt)
	}
}
