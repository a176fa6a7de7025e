package domain

import "context"

// Transaction exposes the registry mutations a persistence implementation
// must support within an atomic scope. All operations address a single
// project chosen when the transaction starts.
type Transaction interface {
	Snapshot() TransactionView
	Create(RegistryEntry) (RegistryEntry, error)
	Update(key Key, mutator func(*RegistryEntry) error) (RegistryEntry, error)
	Delete(key Key) error
}

// TransactionView provides read-only access to a project's entries. List
// with an empty category returns every entry.
type TransactionView interface {
	Project() string
	List(category Category) []RegistryEntry
	Find(key Key) (RegistryEntry, bool)
	FindFold(category Category, name string) (RegistryEntry, bool)
}

// RegistryStore is the abstraction over durable registry backends.
// RunInTransaction either commits every mutation made by fn or none of them.
type RegistryStore interface {
	RunInTransaction(ctx context.Context, project string, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, project string, fn func(TransactionView) error) error
	Projects(ctx context.Context) ([]Project, error)
	Close() error
}
