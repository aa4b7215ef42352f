package fs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cabincore/internal/blob/blobtest"
	"cabincore/internal/blob/core"
)

func TestStoreContract(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	blobtest.RunContract(t, store, "nested/")
}

func TestSanitizeKey(t *testing.T) {
	for _, key := range []string{"", "  ", "../x", "/abs", "a/../../b"} {
		if _, err := sanitizeKey(key); err == nil {
			t.Fatalf("expected %q to be rejected", key)
		}
	}
	if got, err := sanitizeKey("a//b.json"); err != nil || got != "a/b.json" {
		t.Fatalf("unexpected clean key %q %v", got, err)
	}
}

func TestRevisionSurvivesReopen(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	store, err := New(root)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	info, err := store.Put(ctx, "database.json", strings.NewReader("{}"), core.PutOptions{IfNoneMatch: true})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	reopened, err := New(root)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	head, err := reopened.Head(ctx, "database.json")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if head.Revision != info.Revision || head.ETag != info.ETag {
		t.Fatalf("expected persisted revision %q, got %+v", info.Revision, head)
	}
	if _, err := os.Stat(filepath.Join(root, "database.json.meta")); err != nil {
		t.Fatalf("expected sidecar: %v", err)
	}
	if reopened.Driver() != core.DriverFilesystem {
		t.Fatalf("unexpected driver")
	}
}

func TestCorruptSidecar(t *testing.T) {
	root := t.TempDir()
	store, err := New(root)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "k"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "k.meta"), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := store.Get(context.Background(), "k"); err == nil {
		t.Fatalf("expected decode error")
	}
	if _, err := store.Put(context.Background(), "k", strings.NewReader("y"), core.PutOptions{}); err == nil {
		t.Fatalf("expected put to surface corrupt sidecar")
	}
}
