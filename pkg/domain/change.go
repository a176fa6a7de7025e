package domain

// Action is the kind of registry mutation.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Past returns the past-tense verb used in apply summaries.
func (a Action) Past() string {
	switch a {
	case ActionCreate:
		return "Created"
	case ActionUpdate:
		return "Updated"
	case ActionDelete:
		return "Deleted"
	}
	return string(a)
}

// Change records a single mutation within a transaction. Before is zero for
// creates and After is zero for deletes.
type Change struct {
	Category Category
	Action   Action
	Before   RegistryEntry
	After    RegistryEntry
}

// Key returns the key the change is addressed by after it is applied.
func (c Change) Key() Key {
	if c.Action == ActionDelete {
		return c.Before.Key()
	}
	return c.After.Key()
}

// EntryUpdate pairs the stored entry with its replacement.
type EntryUpdate struct {
	Before RegistryEntry
	After  RegistryEntry
}

// Changeset is the ordered set of registry mutations for one project.
// Creates and updates are in dependency order; deletes in reverse.
type Changeset struct {
	Project  string
	ToCreate []RegistryEntry
	ToUpdate []EntryUpdate
	ToDelete []RegistryEntry
}

// IsEmpty reports whether applying the changeset would be a no-op.
func (c Changeset) IsEmpty() bool {
	return c.Len() == 0
}

// Len returns the total number of mutations.
func (c Changeset) Len() int {
	return len(c.ToCreate) + len(c.ToUpdate) + len(c.ToDelete)
}

// Changes flattens the changeset into creates, updates, then deletes.
func (c Changeset) Changes() []Change {
	out := make([]Change, 0, c.Len())
	for _, e := range c.ToCreate {
		out = append(out, Change{Category: e.Category, Action: ActionCreate, After: e})
	}
	for _, u := range c.ToUpdate {
		out = append(out, Change{Category: u.After.Category, Action: ActionUpdate, Before: u.Before, After: u.After})
	}
	for _, e := range c.ToDelete {
		out = append(out, Change{Category: e.Category, Action: ActionDelete, Before: e})
	}
	return out
}
