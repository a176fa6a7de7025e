package loader

import (
	"fmt"
	"strings"

	"featurecore/pkg/domain"
)

type resolveState int

const (
	unresolved resolveState = iota
	resolving
	resolved
)

type resolver struct {
	modules map[string]*module
	stack   []string
}

func newResolver(mods []*module) *resolver {
	r := &resolver{modules: make(map[string]*module, len(mods))}
	for _, m := range mods {
		r.modules[m.name] = m
	}
	return r
}

// resolve builds the namespace of mod, resolving its imports first, and then
// links the references of its local declarations.
func (r *resolver) resolve(mod *module) error {
	switch mod.state {
	case resolved:
		return nil
	case resolving:
		cycle := append(append([]string(nil), r.stack...), mod.name)
		return &domain.LoadError{File: mod.path, Err: fmt.Errorf("import cycle: %s", strings.Join(cycle, " -> "))}
	}
	mod.state = resolving
	r.stack = append(r.stack, mod.name)
	defer func() { r.stack = r.stack[:len(r.stack)-1] }()

	scope := make(map[string]domain.Object, len(mod.decls))
	for _, d := range mod.decls {
		if prev, dup := scope[d.symbol]; dup {
			return &domain.LoadError{
				File: mod.path,
				Line: d.rng.Start.Line,
				Err:  fmt.Errorf("symbol %q already declared at line %d", d.symbol, prev.Metadata().Line),
			}
		}
		scope[d.symbol] = d.object
		mod.bindings = append(mod.bindings, Binding{Symbol: d.symbol, Object: d.object, Local: true})
	}

	for _, imp := range mod.imports {
		target, ok := r.modules[imp.module]
		if !ok {
			return &domain.LoadError{File: mod.path, Line: imp.rng.Start.Line, Err: fmt.Errorf("module %q not found", imp.module)}
		}
		if err := r.resolve(target); err != nil {
			return err
		}
		for _, sym := range imp.symbols {
			obj, ok := target.scope[sym.name]
			if !ok {
				return &domain.LoadError{File: mod.path, Line: sym.rng.Start.Line, Err: fmt.Errorf("module %q has no symbol %q", imp.module, sym.name)}
			}
			if prev, bound := scope[sym.name]; bound {
				if prev.Metadata().ID == obj.Metadata().ID {
					continue
				}
				return &domain.LoadError{File: mod.path, Line: sym.rng.Start.Line, Err: fmt.Errorf("import of %q conflicts with an existing symbol", sym.name)}
			}
			scope[sym.name] = obj
			mod.bindings = append(mod.bindings, Binding{Symbol: sym.name, Object: obj, Local: false})
		}
	}
	mod.scope = scope

	for _, d := range mod.decls {
		if err := link(mod, d); err != nil {
			return err
		}
	}
	mod.state = resolved
	return nil
}

// link binds a declaration's symbol references to objects of the expected
// category.
func link(mod *module, d *declaration) error {
	from := domain.KeyOf(d.object)
	lookup := func(ref symbolRef, want domain.Category) (domain.Object, error) {
		obj, ok := mod.scope[ref.name]
		if !ok {
			return nil, &domain.ReferenceError{From: from, File: fmt.Sprintf("%s:%d", mod.path, ref.rng.Start.Line), Symbol: ref.name, Reason: "symbol is not declared or imported"}
		}
		if got := obj.Metadata().Category; got != want {
			return nil, &domain.ReferenceError{
				From:   from,
				File:   fmt.Sprintf("%s:%d", mod.path, ref.rng.Start.Line),
				Symbol: ref.name,
				Reason: fmt.Sprintf("expected %s, found %s", want.DisplayName(), got.DisplayName()),
			}
		}
		return obj, nil
	}

	switch obj := d.object.(type) {
	case *domain.FeatureView:
		for _, ref := range d.entities {
			e, err := lookup(ref, domain.CategoryEntity)
			if err != nil {
				return err
			}
			obj.Entities = append(obj.Entities, e.(*domain.Entity))
		}
		if d.source != nil {
			s, err := lookup(*d.source, domain.CategoryDataSource)
			if err != nil {
				return err
			}
			obj.Source = s.(*domain.DataSource)
		}
	case *domain.FeatureService:
		for _, ref := range d.features {
			fv, err := lookup(ref, domain.CategoryFeatureView)
			if err != nil {
				return err
			}
			obj.Features = append(obj.Features, fv.(*domain.FeatureView))
		}
	}
	return nil
}
