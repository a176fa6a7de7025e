package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"featurecore/pkg/domain"
)

func openStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := NewStore(context.Background(), path, nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	return s
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "registry.db")
	s := openStore(t, path)
	if s.Path() != path {
		t.Fatalf("unexpected path %q", s.Path())
	}
	_, err := s.RunInTransaction(ctx, "proj", func(tx domain.Transaction) error {
		if _, err := tx.Create(domain.RegistryEntry{Category: domain.CategoryEntity, Name: "driver", Spec: json.RawMessage(`{"join_keys":["driver_id"]}`)}); err != nil {
			return err
		}
		_, err := tx.Create(domain.RegistryEntry{
			Category:     domain.CategoryFeatureView,
			Name:         "driver_stats",
			Spec:         json.RawMessage(`{"entities":["driver"]}`),
			References:   []domain.Key{{Category: domain.CategoryEntity, Name: "driver"}},
			DefiningFile: "example.hcl",
		})
		return err
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened := openStore(t, path)
	defer func() { _ = reopened.Close() }()
	projects, err := reopened.Projects(ctx)
	if err != nil || len(projects) != 1 || projects[0].UID == "" {
		t.Fatalf("projects: %v %+v", err, projects)
	}
	err = reopened.View(ctx, "proj", func(v domain.TransactionView) error {
		fv, ok := v.Find(domain.Key{Category: domain.CategoryFeatureView, Name: "driver_stats"})
		if !ok {
			t.Fatalf("expected feature view after reopen")
		}
		if len(fv.References) != 1 || fv.DefiningFile != "example.hcl" || fv.Version != 1 || string(fv.Spec) != `{"entities":["driver"]}` {
			t.Fatalf("unexpected entry %+v", fv)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}

	_, err = reopened.RunInTransaction(ctx, "proj", func(tx domain.Transaction) error {
		for _, e := range tx.Snapshot().List("") {
			if err := tx.Delete(e.Key()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("teardown: %v", err)
	}
	var count int
	if err := reopened.DB().QueryRow(`SELECT COUNT(*) FROM projects`).Scan(&count); err != nil || count != 0 {
		t.Fatalf("expected project row removed, count=%d err=%v", count, err)
	}
}

func TestStoreAbortedTransactionWritesNothing(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "registry.db"))
	defer func() { _ = s.Close() }()
	_, err := s.RunInTransaction(ctx, "proj", func(tx domain.Transaction) error {
		if _, err := tx.Create(domain.RegistryEntry{Category: domain.CategoryEntity, Name: "driver", Spec: json.RawMessage(`{}`)}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	if err == nil {
		t.Fatalf("expected abort")
	}
	var count int
	if err := s.DB().QueryRow(`SELECT COUNT(*) FROM registry_entries`).Scan(&count); err != nil || count != 0 {
		t.Fatalf("expected no rows, count=%d err=%v", count, err)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "registry.db"))
	defer func() { _ = s.Close() }()
	if err := Migrate(s.DB()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}
