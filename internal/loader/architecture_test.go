package loader

import (
	"testing"

	"featurecore/testutil"
)

func TestLoaderDoesNotImportRegistry(t *testing.T) {
	forbidden := func(path string) bool {
		return testutil.BackendImport(path) || testutil.FrontendImport(path) || path == testutil.Module+"/internal/core"
	}
	testutil.AssertNoDirectImports(t, ".", forbidden, "loading must not depend on registry state")
}
