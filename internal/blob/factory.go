package blob

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"featurecore/internal/infra/blob/fs"
)

// DefaultKey names the registry object when a location has no key part.
const DefaultKey = "registry.json"

// Options carries backend settings that are not part of a location.
type Options struct {
	S3 S3Config
}

// Open resolves a registry location into a store and the key of the
// registry object within it:
//
//	s3://bucket/path/registry.json  S3 bucket, key path/registry.json
//	memory://name                   process-wide memory store
//	data/registry.json              local directory data, key registry.json
func Open(ctx context.Context, location string, opts Options) (Store, string, error) {
	switch {
	case strings.HasPrefix(location, "s3://"):
		u, err := url.Parse(location)
		if err != nil {
			return nil, "", fmt.Errorf("parse registry location %q: %w", location, err)
		}
		key := strings.TrimPrefix(u.Path, "/")
		if key == "" {
			key = DefaultKey
		}
		cfg := opts.S3
		cfg.Bucket = u.Host
		store, err := NewS3(ctx, cfg)
		if err != nil {
			return nil, "", err
		}
		return store, key, nil
	case strings.HasPrefix(location, "memory://"):
		name := strings.TrimPrefix(location, "memory://")
		return NamedMemory(name), DefaultKey, nil
	case location == "":
		return nil, "", fmt.Errorf("empty registry location")
	default:
		dir, key := filepath.Split(filepath.Clean(location))
		if dir == "" {
			dir = "."
		}
		store, err := fs.New(dir)
		if err != nil {
			return nil, "", err
		}
		return store, key, nil
	}
}
