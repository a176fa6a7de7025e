package blob

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestOpenLocalPath(t *testing.T) {
	dir := t.TempDir()
	store, key, err := Open(context.Background(), filepath.Join(dir, "data", "registry.json"), Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if key != "registry.json" || store.Driver() != DriverFilesystem {
		t.Fatalf("unexpected store %s key %q", store.Driver(), key)
	}
	if _, _, err := store.Get(context.Background(), key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOpenMemoryIsShared(t *testing.T) {
	ctx := context.Background()
	a, key, err := Open(ctx, "memory://factory-test", Options{})
	if err != nil || key != DefaultKey {
		t.Fatalf("open: %v %q", err, key)
	}
	if _, err := a.Put(ctx, key, bytes.NewReader([]byte("x")), PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	b, _, _ := Open(ctx, "memory://factory-test", Options{})
	if _, err := b.Head(ctx, key); err != nil {
		t.Fatalf("expected shared store: %v", err)
	}
	c, _, _ := Open(ctx, "memory://other", Options{})
	if _, err := c.Head(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected separate store, got %v", err)
	}
}

func TestOpenS3(t *testing.T) {
	store, key, err := Open(context.Background(), "s3://bucket/feature/registry.json", Options{S3: S3Config{Endpoint: "http://localhost:9000"}})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if key != "feature/registry.json" || store.Driver() != DriverS3 {
		t.Fatalf("unexpected store %s key %q", store.Driver(), key)
	}
	if _, key, _ := Open(context.Background(), "s3://bucket", Options{}); key != DefaultKey {
		t.Fatalf("expected default key, got %q", key)
	}
}

func TestOpenEmpty(t *testing.T) {
	if _, _, err := Open(context.Background(), "", Options{}); err == nil {
		t.Fatalf("expected error")
	}
}
