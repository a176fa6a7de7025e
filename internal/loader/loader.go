// Package loader reads a repository of HCL declaration modules and resolves
// every file's namespace into declared objects.
//
// Each *.hcl file under the repository root is a module named by its
// relative path without extension, with "/" replaced by ".". A module
// declares objects with labelled blocks and can bind objects declared in
// other modules with import blocks:
//
//	import "example" {
//	  symbols = [driver_hourly_stats_view]
//	}
//
//	feature_service "driver_locations_service" {
//	  features = [driver_hourly_stats_view]
//	}
//
// An imported binding refers to the very object declared in the source
// module and therefore shares its identity.
package loader

import (
	"context"
	"path/filepath"
	"runtime"
	"sort"

	"featurecore/internal/ctxlog"
	"featurecore/pkg/domain"

	"golang.org/x/sync/errgroup"
)

// IgnoreFileName lists glob patterns of paths excluded from loading.
const IgnoreFileName = ".featureignore"

// Binding is one entry of a file namespace. Local is false when the object
// was imported from another module.
type Binding struct {
	Symbol string
	Object domain.Object
	Local  bool
}

// Result maps each loaded file, relative to the root and slash separated, to
// its ordered namespace: local declarations in source order, then imports.
type Result struct {
	Root  string
	Files map[string][]Binding
}

// Paths returns the loaded files in lexicographic order.
func (r Result) Paths() []string {
	paths := make([]string, 0, len(r.Files))
	for p := range r.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Loader parses declaration modules. The zero value is not usable; call New.
type Loader struct {
	parallelism int
}

// Option customises a Loader.
type Option func(*Loader)

// WithParallelism bounds the number of files parsed concurrently.
func WithParallelism(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.parallelism = n
		}
	}
}

// New constructs a loader.
func New(opts ...Option) *Loader {
	l := &Loader{parallelism: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load discovers, parses and resolves every module under root. Parsing runs
// concurrently; resolution starts only once every file parsed, so the
// returned result is always complete.
func (l *Loader) Load(ctx context.Context, root string) (Result, error) {
	logger := ctxlog.FromContext(ctx)

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return Result{}, &domain.LoadError{File: root, Err: err}
	}
	files, err := findModules(absRoot)
	if err != nil {
		return Result{}, err
	}
	logger.Debug("discovered declaration files", "root", absRoot, "count", len(files))

	modules := make([]*module, len(files))
	errs := make([]error, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.parallelism)
	for i, rel := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			modules[i], errs[i] = parseModule(filepath.Join(absRoot, filepath.FromSlash(rel)), rel)
			return nil
		})
	}
	_ = g.Wait()
	// Report the first failure in path order so messages are reproducible.
	for _, err := range errs {
		if err != nil {
			return Result{}, err
		}
	}

	r := newResolver(modules)
	for _, mod := range modules {
		if err := r.resolve(mod); err != nil {
			return Result{}, err
		}
	}

	result := Result{Root: absRoot, Files: make(map[string][]Binding, len(modules))}
	objects := 0
	for _, mod := range modules {
		result.Files[mod.path] = mod.bindings
		objects += len(mod.decls)
	}
	logger.Debug("resolved declaration modules", "modules", len(modules), "declarations", objects)
	return result, nil
}
