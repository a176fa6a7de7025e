package core

import (
	"go/types"
	"slices"
	"testing"

	"golang.org/x/tools/go/packages"
)

// registryBackends are the packages allowed to implement
// domain.RegistryStore. internal/core itself carries test doubles.
var registryBackends = []string{
	"featurecore/internal/core",
	"featurecore/internal/infra/persistence/file",
	"featurecore/internal/infra/persistence/memory",
	"featurecore/internal/infra/persistence/postgres",
	"featurecore/internal/infra/persistence/sqlite",
	"featurecore/internal/infra/persistence/sqlstore",
}

func TestRegistryStoreImplementedOnlyByBackends(t *testing.T) {
	pkgs, err := packages.Load(&packages.Config{Mode: packages.NeedName | packages.NeedTypes, Tests: true}, "featurecore/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	iface := lookupInterface(t, pkgs, "featurecore/pkg/domain", "RegistryStore")

	var stray []string
	for _, p := range pkgs {
		if p.Types == nil || slices.Contains(registryBackends, p.PkgPath) {
			continue
		}
		scope := p.Types.Scope()
		for _, name := range scope.Names() {
			named, ok := scope.Lookup(name).Type().(*types.Named)
			if !ok {
				continue
			}
			if _, isStruct := named.Underlying().(*types.Struct); !isStruct {
				continue
			}
			if types.Implements(types.NewPointer(named), iface) {
				stray = append(stray, p.PkgPath+"."+name)
			}
		}
	}
	if len(stray) > 0 {
		t.Fatalf("RegistryStore implemented outside the persistence backends (add new backends to registryBackends): %v", stray)
	}
}

func lookupInterface(t *testing.T, pkgs []*packages.Package, pkgPath, name string) *types.Interface {
	t.Helper()
	for _, p := range pkgs {
		if p.PkgPath != pkgPath || p.Types == nil {
			continue
		}
		obj := p.Types.Scope().Lookup(name)
		if obj == nil {
			break
		}
		if iface, ok := obj.Type().Underlying().(*types.Interface); ok {
			return iface
		}
	}
	t.Fatalf("%s.%s is not an interface in the loaded packages", pkgPath, name)
	return nil
}
