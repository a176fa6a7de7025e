// Package memory provides an in-memory implementation of the registry store
// used for tests and as the working state of the durable backends.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"featurecore/pkg/domain"

	"github.com/google/uuid"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.RegistryStore = (*Store)(nil)

type (
	// RegistryEntry aliases domain.RegistryEntry.
	RegistryEntry = domain.RegistryEntry
	// Key aliases domain.Key.
	Key = domain.Key
	// Project aliases domain.Project.
	Project = domain.Project
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

// ProjectState is the serialisable state of one project.
type ProjectState struct {
	Project Project         `json:"project"`
	Entries []RegistryEntry `json:"entries"`
}

// CommitHook receives the complete prospective state before a transaction
// is made visible. Returning an error aborts the transaction.
type CommitHook func(ctx context.Context, project string, next []ProjectState) error

type projectState struct {
	project Project
	entries map[Key]RegistryEntry
}

func newProjectState(name string) *projectState {
	return &projectState{project: Project{Name: name}, entries: make(map[Key]RegistryEntry)}
}

func (p *projectState) clone() *projectState {
	cp := &projectState{project: p.project, entries: make(map[Key]RegistryEntry, len(p.entries))}
	for k, e := range p.entries {
		cp.entries[k] = e.Clone()
	}
	return cp
}

func (p *projectState) export() ProjectState {
	out := ProjectState{Project: p.project, Entries: make([]RegistryEntry, 0, len(p.entries))}
	for _, e := range p.entries {
		out.Entries = append(out.Entries, e.Clone())
	}
	domain.SortEntries(out.Entries)
	return out
}

// Store is an in-memory registry keyed by project.
type Store struct {
	mu       sync.RWMutex
	projects map[string]*projectState
	engine   *RulesEngine
	nowFn    func() time.Time
	hook     CommitHook
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the time source used for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// WithCommitHook registers a hook run before every committing transaction.
func WithCommitHook(hook CommitHook) Option {
	return func(s *Store) { s.hook = hook }
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		projects: make(map[string]*projectState),
		engine:   engine,
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() []ProjectState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return exportProjects(s.projects)
}

// ImportState replaces the store state with the provided projects.
func (s *Store) ImportState(states []ProjectState) {
	projects := make(map[string]*projectState, len(states))
	for _, ps := range states {
		p := newProjectState(ps.Project.Name)
		p.project = ps.Project
		for _, e := range ps.Entries {
			p.entries[e.Key()] = e.Clone()
		}
		projects[ps.Project.Name] = p
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects = projects
}

// RulesEngine exposes the configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	return s.engine
}

func exportProjects(projects map[string]*projectState) []ProjectState {
	out := make([]ProjectState, 0, len(projects))
	for _, p := range projects {
		out = append(out, p.export())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Project.Name < out[j].Project.Name })
	return out
}

// RunInTransaction executes fn against a copy of the project state. Rules
// are evaluated over the resulting state; the copy replaces the live state
// only when fn, the rules and the commit hook all succeed.
func (s *Store) RunInTransaction(ctx context.Context, project string, fn func(tx Transaction) error) (Result, error) {
	if project == "" {
		return Result{}, errors.New("project name required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.projects[project]
	if !ok {
		current = newProjectState(project)
	}
	tx := &transaction{state: current.clone(), now: s.nowFn()}
	if err := fn(tx); err != nil {
		return Result{}, err
	}

	view := newTransactionView(tx.state)
	result, err := s.engine.Evaluate(ctx, view, tx.changes)
	if err != nil {
		return Result{}, err
	}
	if result.HasBlocking() {
		return result, domain.RuleViolationError{Result: result}
	}
	if len(tx.changes) == 0 {
		return result, nil
	}

	next := make(map[string]*projectState, len(s.projects)+1)
	for name, p := range s.projects {
		next[name] = p
	}
	if len(tx.state.entries) == 0 {
		delete(next, project)
	} else {
		if tx.state.project.UID == "" {
			tx.state.project.UID = uuid.NewString()
			tx.state.project.CreatedAt = tx.now
		}
		tx.state.project.LastUpdated = tx.now
		next[project] = tx.state
	}
	if s.hook != nil {
		if err := s.hook(ctx, project, exportProjects(next)); err != nil {
			return Result{}, err
		}
	}
	s.projects = next
	return result, nil
}

// View executes fn against a read-only snapshot of a project.
func (s *Store) View(_ context.Context, project string, fn func(TransactionView) error) error {
	s.mu.RLock()
	p, ok := s.projects[project]
	if ok {
		p = p.clone()
	} else {
		p = newProjectState(project)
	}
	s.mu.RUnlock()
	return fn(newTransactionView(p))
}

// Projects lists the projects holding at least one entry.
func (s *Store) Projects(_ context.Context) ([]Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p.project)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Close releases resources held by the store.
func (s *Store) Close() error { return nil }

type transaction struct {
	state   *projectState
	changes []Change
	now     time.Time
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(tx.state)
}

func (tx *transaction) findFold(key Key, skip Key) (RegistryEntry, bool) {
	folded := key.Folded()
	for k, e := range tx.state.entries {
		if k != skip && k.Folded() == folded {
			return e, true
		}
	}
	return RegistryEntry{}, false
}

// Create inserts a new entry. Names must be unique per category, compared
// case-insensitively.
func (tx *transaction) Create(entry RegistryEntry) (RegistryEntry, error) {
	if !entry.Category.Valid() || entry.Name == "" {
		return RegistryEntry{}, fmt.Errorf("invalid registry key %s", entry.Key())
	}
	if existing, ok := tx.findFold(entry.Key(), Key{}); ok {
		return RegistryEntry{}, fmt.Errorf("%s conflicts with %s: %w", entry.Key(), existing.Key(), domain.ErrEntryExists)
	}
	entry = entry.Clone()
	if entry.UID == "" {
		entry.UID = uuid.NewString()
	}
	entry.Version = 1
	entry.CreatedAt = tx.now
	entry.UpdatedAt = tx.now
	tx.state.entries[entry.Key()] = entry
	tx.recordChange(Change{Category: entry.Category, Action: domain.ActionCreate, After: entry.Clone()})
	return entry.Clone(), nil
}

// Update applies mutator to the stored entry. The mutator may rename the
// entry but cannot move it to another category or change its identity.
func (tx *transaction) Update(key Key, mutator func(*RegistryEntry) error) (RegistryEntry, error) {
	current, ok := tx.state.entries[key]
	if !ok {
		return RegistryEntry{}, fmt.Errorf("%s: %w", key, domain.ErrEntryNotFound)
	}
	before := current.Clone()
	updated := current.Clone()
	if err := mutator(&updated); err != nil {
		return RegistryEntry{}, err
	}
	if updated.Category != key.Category {
		return RegistryEntry{}, fmt.Errorf("update of %s cannot change category to %s", key, updated.Category)
	}
	if updated.Name == "" {
		return RegistryEntry{}, fmt.Errorf("update of %s cannot clear the name", key)
	}
	if existing, ok := tx.findFold(updated.Key(), key); ok {
		return RegistryEntry{}, fmt.Errorf("%s conflicts with %s: %w", updated.Key(), existing.Key(), domain.ErrEntryExists)
	}
	updated.UID = before.UID
	updated.CreatedAt = before.CreatedAt
	updated.Version = before.Version + 1
	updated.UpdatedAt = tx.now
	delete(tx.state.entries, key)
	tx.state.entries[updated.Key()] = updated
	tx.recordChange(Change{Category: updated.Category, Action: domain.ActionUpdate, Before: before, After: updated.Clone()})
	return updated.Clone(), nil
}

// Delete removes the entry stored under key.
func (tx *transaction) Delete(key Key) error {
	current, ok := tx.state.entries[key]
	if !ok {
		return fmt.Errorf("%s: %w", key, domain.ErrEntryNotFound)
	}
	delete(tx.state.entries, key)
	tx.recordChange(Change{Category: key.Category, Action: domain.ActionDelete, Before: current.Clone()})
	return nil
}

// transactionView exposes a read-only snapshot of the transactional state to rules.
type transactionView struct {
	state *projectState
}

func newTransactionView(state *projectState) TransactionView {
	return transactionView{state: state}
}

func (v transactionView) Project() string { return v.state.project.Name }

func (v transactionView) List(category domain.Category) []RegistryEntry {
	var out []RegistryEntry
	for _, e := range v.state.entries {
		if category == "" || e.Category == category {
			out = append(out, e.Clone())
		}
	}
	domain.SortEntries(out)
	return out
}

func (v transactionView) Find(key Key) (RegistryEntry, bool) {
	e, ok := v.state.entries[key]
	if !ok {
		return RegistryEntry{}, false
	}
	return e.Clone(), true
}

func (v transactionView) FindFold(category domain.Category, name string) (RegistryEntry, bool) {
	if e, ok := v.Find(Key{Category: category, Name: name}); ok {
		return e, true
	}
	folded := Key{Category: category, Name: name}.Folded()
	for k, e := range v.state.entries {
		if k.Folded() == folded {
			return e.Clone(), true
		}
	}
	return RegistryEntry{}, false
}
