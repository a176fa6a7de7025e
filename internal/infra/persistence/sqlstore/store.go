// Package sqlstore persists the registry into relational tables. It is
// shared by the sqlite and postgres backends, which differ only in driver,
// placeholder syntax and migrations.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"featurecore/internal/infra/persistence/memory"
	"featurecore/pkg/domain"
)

var _ domain.RegistryStore = (*Store)(nil)

// Dialect captures the SQL differences between backends.
type Dialect struct {
	Name string
	// Numbered placeholders ($1, $2) instead of "?".
	Numbered bool
}

var (
	// SQLite uses "?" placeholders.
	SQLite = Dialect{Name: "sqlite"}
	// Postgres uses "$n" placeholders.
	Postgres = Dialect{Name: "postgres", Numbered: true}
)

// Rebind rewrites "?" placeholders for the dialect.
func (d Dialect) Rebind(query string) string {
	if !d.Numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Store keeps the working state in memory and rewrites the committed
// project's rows inside one SQL transaction before the commit becomes
// visible. Tables are re-read before every operation.
type Store struct {
	*memory.Store
	db      *sql.DB
	dialect Dialect
	mu      sync.Mutex
}

// New wraps an open, migrated database.
func New(ctx context.Context, db *sql.DB, dialect Dialect, engine *domain.RulesEngine) (*Store, error) {
	s := &Store{db: db, dialect: dialect}
	s.Store = memory.NewStore(engine, memory.WithCommitHook(s.write))
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// DB exposes the underlying sql.DB.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect returns the SQL dialect in use.
func (s *Store) Dialect() Dialect { return s.dialect }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT name, uid, created_at, last_updated FROM projects ORDER BY name`)
	if err != nil {
		return fmt.Errorf("select projects: %w", err)
	}
	byName := map[string]*memory.ProjectState{}
	var order []string
	for rows.Next() {
		var p domain.Project
		var created, updated string
		if err := rows.Scan(&p.Name, &p.UID, &created, &updated); err != nil {
			_ = rows.Close()
			return fmt.Errorf("scan project: %w", err)
		}
		if p.CreatedAt, err = parseTime(created); err != nil {
			_ = rows.Close()
			return err
		}
		if p.LastUpdated, err = parseTime(updated); err != nil {
			_ = rows.Close()
			return err
		}
		byName[p.Name] = &memory.ProjectState{Project: p}
		order = append(order, p.Name)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return fmt.Errorf("iterate projects: %w", err)
	}
	_ = rows.Close()

	rows, err = s.db.QueryContext(ctx, `SELECT project, category, name, uid, version, spec, refs, defining_file, created_at, updated_at FROM registry_entries`)
	if err != nil {
		return fmt.Errorf("select entries: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var (
			project, category, spec, refs, created, updated string
			e                                               domain.RegistryEntry
		)
		if err := rows.Scan(&project, &category, &e.Name, &e.UID, &e.Version, &spec, &refs, &e.DefiningFile, &created, &updated); err != nil {
			return fmt.Errorf("scan entry: %w", err)
		}
		cat, err := domain.ParseCategory(category)
		if err != nil {
			return fmt.Errorf("entry %s/%s: %w", project, e.Name, err)
		}
		e.Category = cat
		e.Spec = json.RawMessage(spec)
		if refs != "" {
			if err := json.Unmarshal([]byte(refs), &e.References); err != nil {
				return fmt.Errorf("decode references of %s: %w", e.Key(), err)
			}
		}
		if e.CreatedAt, err = parseTime(created); err != nil {
			return err
		}
		if e.UpdatedAt, err = parseTime(updated); err != nil {
			return err
		}
		ps, ok := byName[project]
		if !ok {
			return fmt.Errorf("entry %s references unknown project %q", e.Key(), project)
		}
		ps.Entries = append(ps.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate entries: %w", err)
	}
	states := make([]memory.ProjectState, 0, len(order))
	for _, name := range order {
		states = append(states, *byName[name])
	}
	s.ImportState(states)
	return nil
}

func (s *Store) write(ctx context.Context, project string, next []memory.ProjectState) (retErr error) {
	var state *memory.ProjectState
	for i := range next {
		if next[i].Project.Name == project {
			state = &next[i]
			break
		}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, s.dialect.Rebind(`DELETE FROM registry_entries WHERE project = ?`), project); err != nil {
		return fmt.Errorf("clear entries: %w", err)
	}
	if state == nil {
		if _, err := tx.ExecContext(ctx, s.dialect.Rebind(`DELETE FROM projects WHERE name = ?`), project); err != nil {
			return fmt.Errorf("delete project: %w", err)
		}
		return tx.Commit()
	}
	p := state.Project
	if _, err := tx.ExecContext(ctx, s.dialect.Rebind(`INSERT INTO projects(name, uid, created_at, last_updated) VALUES(?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET uid = excluded.uid, last_updated = excluded.last_updated`),
		p.Name, p.UID, formatTime(p.CreatedAt), formatTime(p.LastUpdated)); err != nil {
		return fmt.Errorf("upsert project: %w", err)
	}
	insert := s.dialect.Rebind(`INSERT INTO registry_entries(project, category, name, name_folded, uid, version, spec, refs, defining_file, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	for _, e := range state.Entries {
		refs := ""
		if len(e.References) > 0 {
			data, err := json.Marshal(e.References)
			if err != nil {
				return fmt.Errorf("encode references of %s: %w", e.Key(), err)
			}
			refs = string(data)
		}
		if _, err := tx.ExecContext(ctx, insert,
			project, string(e.Category), e.Name, strings.ToLower(e.Name), e.UID, e.Version,
			string(e.Spec), refs, e.DefiningFile, formatTime(e.CreatedAt), formatTime(e.UpdatedAt)); err != nil {
			return fmt.Errorf("insert %s: %w", e.Key(), err)
		}
	}
	return tx.Commit()
}

// RunInTransaction reloads the tables, then runs fn against them.
func (s *Store) RunInTransaction(ctx context.Context, project string, fn func(domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(ctx); err != nil {
		return domain.Result{}, err
	}
	return s.Store.RunInTransaction(ctx, project, fn)
}

// View reloads the tables, then runs fn against a project snapshot.
func (s *Store) View(ctx context.Context, project string, fn func(domain.TransactionView) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(ctx); err != nil {
		return err
	}
	return s.Store.View(ctx, project, fn)
}

// Projects reloads the tables and lists their projects.
func (s *Store) Projects(ctx context.Context) ([]domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s.Store.Projects(ctx)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", v, err)
	}
	return t, nil
}
