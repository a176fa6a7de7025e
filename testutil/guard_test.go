package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPredicates(t *testing.T) {
	cases := []struct {
		pred func(string) bool
		in   string
		want bool
	}{
		{InternalImport, "featurecore/internal/core", true},
		{InternalImport, "featurecore/pkg/domain", false},
		{BackendImport, "featurecore/internal/infra/persistence/file", true},
		{BackendImport, "featurecore/internal/blob", false},
		{FrontendImport, "featurecore/internal/cli", true},
		{FrontendImport, "featurecore/cmd/featurectl", true},
		{FrontendImport, "featurecore/internal/loader", false},
		{ThirdPartyImport, "github.com/spf13/cobra", true},
		{ThirdPartyImport, "encoding/json", false},
		{ThirdPartyImport, "featurecore/pkg/domain", false},
	}
	for _, c := range cases {
		if got := c.pred(c.in); got != c.want {
			t.Fatalf("predicate(%q)=%v want %v", c.in, got, c.want)
		}
	}
	if !AnyOf(InternalImport, ThirdPartyImport)("gopkg.in/yaml.v3") || AnyOf()("x") {
		t.Fatalf("AnyOf must combine predicates")
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"a.go":      "package tmp\nimport (\n\t\"fmt\"\n\t\"featurecore/internal/cli\"\n)\nvar _ = fmt.Sprint\n",
		"a_test.go": "package tmp\nimport \"featurecore/internal/infra/blob/s3\"\n",
	}
	for name, src := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	viols, err := directImportViolations(dir, AnyOf(FrontendImport, BackendImport))
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || !strings.HasPrefix(viols[0], "featurecore/internal/cli (in a.go)") {
		t.Fatalf("unexpected violations %v", viols)
	}
	AssertNoDirectImports(t, dir, ThirdPartyImport, "stdlib only")
}

func TestAssertNoTransitiveDependency(t *testing.T) {
	old := goListDeps
	defer func() { goListDeps = old }()
	goListDeps = func(string) ([]byte, error) {
		return []byte("fmt\nfeaturecore/pkg/domain\n\n"), nil
	}
	AssertNoTransitiveDependency(t, "featurecore/pkg/domain", InternalImport, "domain is a leaf")
}
