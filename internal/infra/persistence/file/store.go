// Package file persists the registry as a single JSON document in a blob
// store: a local file, an S3 object or process memory.
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"featurecore/internal/blob"
	"featurecore/internal/infra/persistence/memory"
	"featurecore/pkg/domain"
)

var _ domain.RegistryStore = (*Store)(nil)

// FormatVersion is the registry document version written by this package.
const FormatVersion = 1

type document struct {
	Version  int                   `json:"version"`
	Projects []memory.ProjectState `json:"projects"`
}

// Store keeps the working state in memory and writes the whole document
// back to the blob before each commit becomes visible. The document is
// re-read before every operation and written conditionally on the ETag that
// was read, so a commit racing another process fails with
// domain.ErrRegistryChanged instead of overwriting it.
type Store struct {
	*memory.Store
	blobs blob.Store
	key   string

	mu     sync.Mutex
	etag   string
	exists bool
}

// Open loads the registry document stored under key.
func Open(ctx context.Context, blobs blob.Store, key string, engine *domain.RulesEngine) (*Store, error) {
	s := &Store{blobs: blobs, key: key}
	s.Store = memory.NewStore(engine, memory.WithCommitHook(s.write))
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Key returns the blob key of the registry document.
func (s *Store) Key() string { return s.key }

func (s *Store) load(ctx context.Context) error {
	info, rc, err := s.blobs.Get(ctx, s.key)
	if errors.Is(err, blob.ErrNotFound) {
		s.etag, s.exists = "", false
		s.ImportState(nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read registry: %w", err)
	}
	defer func() { _ = rc.Close() }()
	s.etag, s.exists = info.ETag, true
	data, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("read registry: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		s.ImportState(nil)
		return nil
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode registry %s: %w", s.key, err)
	}
	if doc.Version > FormatVersion {
		return fmt.Errorf("registry %s has format version %d, newer than supported %d", s.key, doc.Version, FormatVersion)
	}
	for i := range doc.Projects {
		for j := range doc.Projects[i].Entries {
			e := &doc.Projects[i].Entries[j]
			e.Spec = domain.CompactSpec(e.Spec)
		}
	}
	s.ImportState(doc.Projects)
	return nil
}

func (s *Store) write(ctx context.Context, _ string, next []memory.ProjectState) error {
	data, err := json.MarshalIndent(document{Version: FormatVersion, Projects: next}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	info, err := s.blobs.Put(ctx, s.key, bytes.NewReader(data), blob.PutOptions{
		ContentType: "application/json",
		IfMatch:     s.etag,
		IfAbsent:    !s.exists,
	})
	if errors.Is(err, blob.ErrPreconditionFailed) {
		return fmt.Errorf("write registry %s: %w", s.key, domain.ErrRegistryChanged)
	}
	if err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	s.etag, s.exists = info.ETag, true
	return nil
}

// RunInTransaction reloads the document, then runs fn against it.
func (s *Store) RunInTransaction(ctx context.Context, project string, fn func(domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(ctx); err != nil {
		return domain.Result{}, err
	}
	return s.Store.RunInTransaction(ctx, project, fn)
}

// View reloads the document, then runs fn against a project snapshot.
func (s *Store) View(ctx context.Context, project string, fn func(domain.TransactionView) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(ctx); err != nil {
		return err
	}
	return s.Store.View(ctx, project, fn)
}

// Projects reloads the document and lists its projects.
func (s *Store) Projects(ctx context.Context) ([]domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s.Store.Projects(ctx)
}
