package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"cabincore/internal/blob/blobtest"
	"cabincore/internal/blob/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(context.Background(), filepath.Join(t.TempDir(), "nested", "blobs.db"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreContract(t *testing.T) {
	store := newTestStore(t)
	if store.Driver() != core.DriverSQLite {
		t.Fatalf("unexpected driver %s", store.Driver())
	}
	blobtest.RunContract(t, store, "")
}

func TestMetadataAndReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "blobs.db")
	store, err := New(ctx, path)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := store.Put(ctx, "k", strings.NewReader("payload"), core.PutOptions{ContentType: "text/plain", Metadata: map[string]string{"owner": "test"}}); err != nil {
		t.Fatalf("put: %v", err)
	}
	_ = store.Close()

	reopened, err := New(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	head, err := reopened.Head(ctx, "k")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if head.Revision != "1" || head.Size != int64(len("payload")) || head.ContentType != "text/plain" || head.Metadata["owner"] != "test" {
		t.Fatalf("unexpected head %+v", head)
	}
	if reopened.Path() != path {
		t.Fatalf("unexpected path %q", reopened.Path())
	}
}

func TestMalformedRevisionIsMismatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if _, err := store.Put(ctx, "k", strings.NewReader("x"), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "k", strings.NewReader("y"), core.PutOptions{IfMatch: "etag-not-a-number"}); err == nil {
		t.Fatalf("expected mismatch")
	}
}
