// Package blobtest holds the behavioural contract every blob driver must
// satisfy. Driver packages call RunContract from their own tests.
package blobtest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"cabincore/internal/blob/core"
)

// RunContract exercises store against the conditional-write contract. The
// store should be empty; keys are namespaced by prefix so shared backends can
// be reused between runs.
func RunContract(t *testing.T, store core.Store, prefix string) {
	t.Helper()
	ctx := context.Background()
	key := prefix + "doc.json"
	t.Cleanup(func() { _, _ = store.Delete(context.Background(), key) })

	t.Run("missing", func(t *testing.T) {
		if _, _, err := store.Get(ctx, key); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected ErrNotFound from get, got %v", err)
		}
		if _, err := store.Head(ctx, key); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected ErrNotFound from head, got %v", err)
		}
		if ok, err := store.Delete(ctx, key); err != nil || ok {
			t.Fatalf("expected delete false, got %v %v", ok, err)
		}
	})

	var first core.Info
	t.Run("create only", func(t *testing.T) {
		var err error
		first, err = store.Put(ctx, key, strings.NewReader(`{"v":1}`), core.PutOptions{ContentType: "application/json", IfNoneMatch: true})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if first.Revision == "" {
			t.Fatalf("expected revision on create")
		}
		if _, err := store.Put(ctx, key, strings.NewReader(`{"v":0}`), core.PutOptions{IfNoneMatch: true}); !errors.Is(err, core.ErrRevisionMismatch) {
			t.Fatalf("expected mismatch on second create, got %v", err)
		}
		assertBody(t, store, key, `{"v":1}`, first.Revision)
	})

	t.Run("compare and swap", func(t *testing.T) {
		second, err := store.Put(ctx, key, strings.NewReader(`{"v":2}`), core.PutOptions{ContentType: "application/json", IfMatch: first.Revision})
		if err != nil {
			t.Fatalf("cas: %v", err)
		}
		if second.Revision == first.Revision {
			t.Fatalf("revision must change on write")
		}
		if _, err := store.Put(ctx, key, strings.NewReader(`{"v":3}`), core.PutOptions{IfMatch: first.Revision}); !errors.Is(err, core.ErrRevisionMismatch) {
			t.Fatalf("expected mismatch for stale revision, got %v", err)
		}
		assertBody(t, store, key, `{"v":2}`, second.Revision)
		head, err := store.Head(ctx, key)
		if err != nil {
			t.Fatalf("head: %v", err)
		}
		if head.Revision != second.Revision || head.Size != int64(len(`{"v":2}`)) {
			t.Fatalf("unexpected head %+v", head)
		}
	})

	t.Run("concurrent writers", func(t *testing.T) {
		info, err := store.Head(ctx, key)
		if err != nil {
			t.Fatalf("head: %v", err)
		}
		const writers = 4
		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.Put(ctx, key, strings.NewReader(`{"v":"race"}`), core.PutOptions{IfMatch: info.Revision})
				if err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		if wins != 1 {
			t.Fatalf("expected exactly one conditional writer to win, got %d", wins)
		}
	})

	t.Run("unconditional and delete", func(t *testing.T) {
		if _, err := store.Put(ctx, key, strings.NewReader(`{"v":4}`), core.PutOptions{}); err != nil {
			t.Fatalf("unconditional put: %v", err)
		}
		if _, err := store.Put(ctx, prefix+"absent.json", strings.NewReader(`{}`), core.PutOptions{IfMatch: "1"}); !errors.Is(err, core.ErrRevisionMismatch) {
			t.Fatalf("expected mismatch for absent key with revision, got %v", err)
		}
		ok, err := store.Delete(ctx, key)
		if err != nil || !ok {
			t.Fatalf("delete: %v %v", ok, err)
		}
		if _, _, err := store.Get(ctx, key); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected not found after delete, got %v", err)
		}
	})
}

func assertBody(t *testing.T, store core.Store, key, want, revision string) {
	t.Helper()
	info, rc, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = rc.Close() }()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rc); err != nil {
		t.Fatalf("read: %v", err)
	}
	if buf.String() != want {
		t.Fatalf("body = %q, want %q", buf.String(), want)
	}
	if info.Revision != revision {
		t.Fatalf("revision = %q, want %q", info.Revision, revision)
	}
}
