package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"featurecore/pkg/domain"
)

// DSNEnv names a Postgres database used by the integration test. The test
// drops and recreates the registry tables.
const DSNEnv = "FEATURECORE_TEST_POSTGRES_DSN"

func TestNewStoreOpenFailure(t *testing.T) {
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return nil, errors.New("no driver") })
	defer restore()
	_, err := NewStore(context.Background(), "", nil)
	if err == nil || !strings.Contains(err.Error(), "open postgres") {
		t.Fatalf("expected open error, got %v", err)
	}
}

func TestNewStorePingFailure(t *testing.T) {
	_, err := NewStore(context.Background(), "postgres://user@127.0.0.1:1/none?sslmode=disable&connect_timeout=1", nil)
	if err == nil || !strings.Contains(err.Error(), "ping postgres") {
		t.Fatalf("expected ping error, got %v", err)
	}
}

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv(DSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", DSNEnv)
	}
	ctx := context.Background()
	s, err := NewStore(ctx, dsn, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer func() { _ = s.Close() }()
	const project = "featurecore_integration"
	cleanup := func() {
		_, _ = s.RunInTransaction(ctx, project, func(tx domain.Transaction) error {
			for _, e := range tx.Snapshot().List("") {
				if err := tx.Delete(e.Key()); err != nil {
					return err
				}
			}
			return nil
		})
	}
	cleanup()
	defer cleanup()

	_, err = s.RunInTransaction(ctx, project, func(tx domain.Transaction) error {
		_, err := tx.Create(domain.RegistryEntry{Category: domain.CategoryEntity, Name: "driver", Spec: json.RawMessage(`{}`)})
		return err
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	reopened, err := NewStore(ctx, dsn, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	err = reopened.View(ctx, project, func(v domain.TransactionView) error {
		if _, ok := v.FindFold(domain.CategoryEntity, "DRIVER"); !ok {
			t.Fatalf("expected persisted entity")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}
