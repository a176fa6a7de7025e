package core

import (
	"context"
	"fmt"
	"strings"

	"featurecore/internal/blob"
	"featurecore/internal/infra/persistence/file"
	"featurecore/internal/infra/persistence/postgres"
	"featurecore/internal/infra/persistence/sqlite"
	"featurecore/pkg/domain"
)

// StorageDriver identifies a concrete registry backend.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // process memory (tests / ephemeral)
	StorageFile     StorageDriver = "file"     // JSON document on a local path or s3://
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageOptions selects and configures a registry backend.
type StorageOptions struct {
	Driver StorageDriver
	// Location is a file path, s3:// URL, sqlite path, postgres DSN or
	// memory store name depending on Driver.
	Location string
	S3       blob.S3Config
}

// DetectDriver maps a configured registry type and path to a driver:
//
//	sql + sqlite:///path       sqlite
//	sql + postgresql://...     postgres
//	memory                     memory
//	file or empty              file (local path or s3://)
func DetectDriver(registryType, path string) (StorageDriver, string, error) {
	switch strings.ToLower(registryType) {
	case "sql":
		switch {
		case strings.HasPrefix(path, "sqlite:///"):
			return StorageSQLite, strings.TrimPrefix(path, "sqlite:///"), nil
		case strings.HasPrefix(path, "postgresql://"), strings.HasPrefix(path, "postgres://"):
			return StoragePostgres, path, nil
		}
		return "", "", fmt.Errorf("unsupported sql registry path %q", path)
	case "memory":
		return StorageMemory, path, nil
	case "", "file", "local", "s3":
		if path == "" {
			return "", "", fmt.Errorf("registry path required")
		}
		return StorageFile, path, nil
	}
	return "", "", fmt.Errorf("unknown registry type %q", registryType)
}

// OpenRegistryStore opens the backend described by opts.
func OpenRegistryStore(ctx context.Context, opts StorageOptions, engine *RulesEngine) (RegistryStore, error) {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	store, err := openRegistryStore(ctx, opts, engine)
	if err != nil {
		return nil, &domain.StorageError{Op: "open", Err: err}
	}
	return store, nil
}

func openRegistryStore(ctx context.Context, opts StorageOptions, engine *RulesEngine) (RegistryStore, error) {
	switch opts.Driver {
	case StorageMemory:
		return file.Open(ctx, blob.NamedMemory(opts.Location), blob.DefaultKey, engine)
	case StorageFile:
		blobs, key, err := blob.Open(ctx, opts.Location, blob.Options{S3: opts.S3})
		if err != nil {
			return nil, err
		}
		return file.Open(ctx, blobs, key, engine)
	case StorageSQLite:
		return sqlite.NewStore(ctx, opts.Location, engine)
	case StoragePostgres:
		return postgres.NewStore(ctx, opts.Location, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}
