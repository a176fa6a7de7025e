package core

import (
	"context"
	"sort"
	"strings"

	"featurecore/internal/ctxlog"
	"featurecore/pkg/domain"
)

// Diff computes the changeset that turns snap into the projection of set.
// Declared objects are matched to stored entries by case-insensitive name
// within their category. A matched entry is updated when its spec or its
// exact name differs; unmatched stored entries are deleted.
func Diff(ctx context.Context, set *DeclaredSet, snap Snapshot) (Changeset, error) {
	cs := Changeset{Project: snap.Project.Name}
	for _, cat := range domain.Categories() {
		stored := snap.List(cat)
		byFolded := make(map[string]RegistryEntry, len(stored))
		for _, e := range stored {
			folded := strings.ToLower(e.Name)
			if _, dup := byFolded[folded]; !dup {
				byFolded[folded] = e
			}
		}
		matched := make(map[Key]bool, len(stored))
		for _, obj := range set.Category(cat) {
			declared, err := domain.NewRegistryEntry(obj)
			if err != nil {
				return Changeset{}, err
			}
			current, ok := byFolded[strings.ToLower(declared.Name)]
			if !ok {
				cs.ToCreate = append(cs.ToCreate, declared)
				continue
			}
			matched[current.Key()] = true
			if current.SameContent(declared) {
				continue
			}
			next := current.Clone()
			next.Name = declared.Name
			next.Spec = declared.Spec
			next.References = declared.References
			next.DefiningFile = declared.DefiningFile
			cs.ToUpdate = append(cs.ToUpdate, domain.EntryUpdate{Before: current, After: next})
		}
		for _, e := range stored {
			if !matched[e.Key()] {
				cs.ToDelete = append(cs.ToDelete, e)
			}
		}
	}
	sortChangeset(&cs)
	ctxlog.FromContext(ctx).Debug("computed changeset",
		"project", cs.Project, "create", len(cs.ToCreate), "update", len(cs.ToUpdate), "delete", len(cs.ToDelete))
	return cs, nil
}

// TeardownChangeset deletes every entry of the snapshot.
func TeardownChangeset(snap Snapshot) Changeset {
	cs := Changeset{Project: snap.Project.Name, ToDelete: snap.Sorted()}
	sortChangeset(&cs)
	return cs
}

func sortChangeset(cs *Changeset) {
	domain.SortEntries(cs.ToCreate)
	sort.SliceStable(cs.ToUpdate, func(i, j int) bool {
		a, b := cs.ToUpdate[i].After, cs.ToUpdate[j].After
		if a.Category != b.Category {
			return a.Category.Rank() < b.Category.Rank()
		}
		return a.Name < b.Name
	})
	sort.SliceStable(cs.ToDelete, func(i, j int) bool {
		a, b := cs.ToDelete[i], cs.ToDelete[j]
		if a.Category != b.Category {
			return a.Category.Rank() > b.Category.Rank()
		}
		return a.Name < b.Name
	})
}
