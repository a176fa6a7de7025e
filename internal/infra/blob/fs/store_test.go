package fs

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"featurecore/internal/blob/core"
)

func newTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "registry"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestPutGetHead(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	info, err := store.Put(ctx, "data/registry.json", strings.NewReader("hello"), core.PutOptions{ContentType: "application/json"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "data/registry.json" || info.Size != 5 || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	replaced, err := store.Put(ctx, "data/registry.json", strings.NewReader("bye"), core.PutOptions{})
	if err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if replaced.ETag == info.ETag || replaced.Size != 3 {
		t.Fatalf("expected new content, got %+v", replaced)
	}
	head, err := store.Head(ctx, "data/registry.json")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	got, rc, err := store.Get(ctx, "data/registry.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	if err := rc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if string(body) != "bye" || got.ETag != head.ETag {
		t.Fatalf("get and head disagree")
	}
	entries, _ := os.ReadDir(filepath.Join(store.Root(), "data"))
	if len(entries) != 1 {
		t.Fatalf("temp and lock files must not linger: %v", entries)
	}
}

func TestConditionalPut(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	created, err := store.Put(ctx, "registry.json", strings.NewReader("v1"), core.PutOptions{IfAbsent: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Put(ctx, "registry.json", strings.NewReader("v1b"), core.PutOptions{IfAbsent: true}); !errors.Is(err, core.ErrPreconditionFailed) {
		t.Fatalf("expected precondition failure, got %v", err)
	}
	if _, err := store.Put(ctx, "registry.json", strings.NewReader("v2"), core.PutOptions{IfMatch: created.ETag}); err != nil {
		t.Fatalf("matching update: %v", err)
	}
	if _, err := store.Put(ctx, "registry.json", strings.NewReader("v3"), core.PutOptions{IfMatch: created.ETag}); !errors.Is(err, core.ErrPreconditionFailed) {
		t.Fatalf("expected stale etag to fail, got %v", err)
	}
	_, rc, _ := store.Get(ctx, "registry.json")
	defer func() { _ = rc.Close() }()
	if body, _ := io.ReadAll(rc); string(body) != "v2" {
		t.Fatalf("failed write replaced content: %q", body)
	}
}

func TestPutWaitsForLock(t *testing.T) {
	store := newTempStore(t)
	lock := filepath.Join(store.Root(), "registry.json"+lockSuffix)
	if err := os.WriteFile(lock, nil, 0o644); err != nil {
		t.Fatalf("lock: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := store.Put(ctx, "registry.json", strings.NewReader("x"), core.PutOptions{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected to wait on held lock, got %v", err)
	}

	stale := time.Now().Add(-2 * staleLock)
	if err := os.Chtimes(lock, stale, stale); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	if _, err := store.Put(context.Background(), "registry.json", strings.NewReader("x"), core.PutOptions{}); err != nil {
		t.Fatalf("stale lock must be broken: %v", err)
	}
}

func TestRejectsUnsafeKeys(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	for _, key := range []string{"", "../escape", "/abs", "registry.json.lock"} {
		if _, err := store.Put(ctx, key, strings.NewReader(""), core.PutOptions{}); err == nil {
			t.Fatalf("expected error for key %q", key)
		}
	}
	if _, _, err := store.Get(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if store.Driver() != core.DriverFilesystem {
		t.Fatalf("unexpected driver")
	}
}
