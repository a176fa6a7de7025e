package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"featurecore/pkg/domain"
)

// failingStore rejects every transaction.
type failingStore struct {
	err error
}

func (f failingStore) RunInTransaction(context.Context, string, func(Transaction) error) (Result, error) {
	return Result{}, f.err
}

func (f failingStore) View(context.Context, string, func(TransactionView) error) error { return f.err }

func (f failingStore) Projects(context.Context) ([]domain.Project, error) { return nil, f.err }

func (f failingStore) Close() error { return nil }

func declaredChangeset(t *testing.T, project string, objs ...domain.Object) Changeset {
	t.Helper()
	cs, err := Diff(context.Background(), setOf(objs...), domain.NewSnapshot(domain.Project{Name: project}, nil))
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	return cs
}

func TestApplyChangesetCommits(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	driver := newEntity("driver", "a.hcl")
	src := newSource("stats", "a.hcl")
	view := newView("stats_view", "a.hcl", src, driver)

	summary, err := ApplyChangeset(ctx, store, declaredChangeset(t, "p", driver, src, view))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	want := "Created entity driver\nCreated data source stats\nCreated feature view stats_view"
	if summary.String() != want {
		t.Fatalf("unexpected summary %q", summary.String())
	}
	snap := mustSnapshot(t, store, "p")
	if snap.Len() != 3 || snap.Project.UID == "" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	// A case-only rename plus a removal.
	cs, err := Diff(ctx, setOf(newEntity("DRIVER", "a.hcl"), src), snap)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	summary, err = ApplyChangeset(ctx, store, cs)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := summary.Lines(); len(got) != 2 || got[0] != "Updated entity DRIVER" || got[1] != "Deleted feature view stats_view" {
		t.Fatalf("unexpected lines %v", got)
	}
	snap = mustSnapshot(t, store, "p")
	e, ok := snap.FindFold(domain.CategoryEntity, "driver")
	if !ok || e.Name != "DRIVER" || e.Version != 2 {
		t.Fatalf("unexpected renamed entry %+v", e)
	}
}

func TestApplyChangesetEmptyIsNoop(t *testing.T) {
	summary, err := ApplyChangeset(context.Background(), failingStore{err: errors.New("unused")}, Changeset{Project: "p"})
	if err != nil {
		t.Fatalf("empty changeset must not touch the store: %v", err)
	}
	if summary.String() != NoChangesMessage {
		t.Fatalf("unexpected summary %q", summary.String())
	}
}

func TestApplyChangesetStorageFailure(t *testing.T) {
	boom := errors.New("disk full")
	_, err := ApplyChangeset(context.Background(), failingStore{err: boom}, declaredChangeset(t, "p", newEntity("driver", "a.hcl")))
	var storageErr *domain.StorageError
	if !errors.As(err, &storageErr) || storageErr.Op != "apply" || !errors.Is(err, boom) {
		t.Fatalf("expected apply storage error, got %v", err)
	}
	_, err = ReadSnapshot(context.Background(), failingStore{err: boom}, "p")
	if !errors.As(err, &storageErr) || storageErr.Op != "read" {
		t.Fatalf("expected read storage error, got %v", err)
	}
}

func TestApplyChangesetIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	if _, err := ApplyChangeset(ctx, store, declaredChangeset(t, "p", newEntity("driver", "a.hcl"))); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// One create collides with the stored entry, so neither is committed.
	cs := declaredChangeset(t, "p", newEntity("customer", "a.hcl"), newEntity("Driver", "b.hcl"))
	_, err := ApplyChangeset(ctx, store, cs)
	if err == nil || !errors.Is(err, domain.ErrEntryExists) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if !strings.Contains(err.Error(), "registry apply") {
		t.Fatalf("expected storage error prefix, got %v", err)
	}
	if snap := mustSnapshot(t, store, "p"); snap.Len() != 1 {
		t.Fatalf("failed apply must not commit, got %d entries", snap.Len())
	}
}
