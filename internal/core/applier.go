package core

import (
	"context"
	"fmt"
	"strings"

	"featurecore/internal/ctxlog"
	"featurecore/pkg/domain"
)

// NoChangesMessage is the summary of an empty changeset.
const NoChangesMessage = "No changes to registry"

// AppliedSummary describes a committed changeset.
type AppliedSummary struct {
	Project string
	Changes []domain.Change
	Result  Result
}

// Lines returns one human-readable line per change: creates, then updates,
// then deletes.
func (s AppliedSummary) Lines() []string {
	lines := make([]string, 0, len(s.Changes))
	for _, c := range s.Changes {
		lines = append(lines, fmt.Sprintf("%s %s %s", c.Action.Past(), c.Category.DisplayName(), c.Key().Name))
	}
	return lines
}

func (s AppliedSummary) String() string {
	if len(s.Changes) == 0 {
		return NoChangesMessage
	}
	return strings.Join(s.Lines(), "\n")
}

// ReadSnapshot loads the stored entries and project record of project.
func ReadSnapshot(ctx context.Context, store RegistryStore, project string) (Snapshot, error) {
	var entries []RegistryEntry
	if err := store.View(ctx, project, func(v TransactionView) error {
		entries = v.List("")
		return nil
	}); err != nil {
		return Snapshot{}, &domain.StorageError{Op: "read", Err: err}
	}
	record := domain.Project{Name: project}
	projects, err := store.Projects(ctx)
	if err != nil {
		return Snapshot{}, &domain.StorageError{Op: "read", Err: err}
	}
	for _, p := range projects {
		if p.Name == project {
			record = p
			break
		}
	}
	return domain.NewSnapshot(record, entries), nil
}

// ApplyChangeset commits cs in a single store transaction. Deletes run
// first so a case-only rename never collides with its previous name. On
// failure nothing is committed and a StorageError is returned.
func ApplyChangeset(ctx context.Context, store RegistryStore, cs Changeset) (AppliedSummary, error) {
	summary := AppliedSummary{Project: cs.Project}
	if cs.IsEmpty() {
		return summary, nil
	}
	res, err := store.RunInTransaction(ctx, cs.Project, func(tx Transaction) error {
		for _, e := range cs.ToDelete {
			if err := tx.Delete(e.Key()); err != nil {
				return fmt.Errorf("delete %s %s: %w", e.Category.DisplayName(), e.Name, err)
			}
		}
		for _, e := range cs.ToCreate {
			if _, err := tx.Create(e); err != nil {
				return fmt.Errorf("create %s %s: %w", e.Category.DisplayName(), e.Name, err)
			}
		}
		for _, u := range cs.ToUpdate {
			after := u.After
			_, err := tx.Update(u.Before.Key(), func(e *RegistryEntry) error {
				e.Name = after.Name
				e.Spec = after.Spec
				e.References = after.References
				e.DefiningFile = after.DefiningFile
				return nil
			})
			if err != nil {
				return fmt.Errorf("update %s %s: %w", after.Category.DisplayName(), after.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return AppliedSummary{Project: cs.Project, Result: res}, &domain.StorageError{Op: "apply", Err: err}
	}
	summary.Changes = cs.Changes()
	summary.Result = res
	ctxlog.FromContext(ctx).Debug("applied changeset", "project", cs.Project, "changes", len(summary.Changes))
	return summary, nil
}
