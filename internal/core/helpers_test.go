package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"featurecore/internal/infra/persistence/memory"
	"featurecore/internal/loader"
	"featurecore/pkg/domain"
)

func meta(cat domain.Category, name, file string) domain.ObjectMeta {
	return domain.ObjectMeta{ID: domain.NewIdentity(), Category: cat, Name: name, Symbol: name, DefiningFile: file, Line: 1}
}

func newEntity(name, file string) *domain.Entity {
	return &domain.Entity{ObjectMeta: meta(domain.CategoryEntity, name, file)}
}

func newSource(name, file string) *domain.DataSource {
	return &domain.DataSource{ObjectMeta: meta(domain.CategoryDataSource, name, file), Path: "data/" + name + ".parquet"}
}

func newView(name, file string, source *domain.DataSource, entities ...*domain.Entity) *domain.FeatureView {
	return &domain.FeatureView{ObjectMeta: meta(domain.CategoryFeatureView, name, file), Source: source, Entities: entities, Online: true}
}

func newService(name, file string, views ...*domain.FeatureView) *domain.FeatureService {
	return &domain.FeatureService{ObjectMeta: meta(domain.CategoryFeatureService, name, file), Features: views}
}

func setOf(objs ...domain.Object) *DeclaredSet {
	set := NewDeclaredSet()
	for _, o := range objs {
		set.Add(o)
	}
	return set
}

func local(objs ...domain.Object) []loader.Binding {
	out := make([]loader.Binding, 0, len(objs))
	for _, o := range objs {
		out = append(out, loader.Binding{Symbol: o.Metadata().Symbol, Object: o, Local: true})
	}
	return out
}

func imported(objs ...domain.Object) []loader.Binding {
	out := local(objs...)
	for i := range out {
		out[i].Local = false
	}
	return out
}

func newMemoryStore() *memory.Store {
	return memory.NewStore(NewDefaultRulesEngine())
}

func writeRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return root
}

func mustSnapshot(t *testing.T, store RegistryStore, project string) Snapshot {
	t.Helper()
	snap, err := ReadSnapshot(context.Background(), store, project)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	return snap
}
