package core

import (
	"context"
	"testing"

	"featurecore/internal/loader"
	"featurecore/pkg/domain"
)

func TestDiscoverDeduplicatesByIdentity(t *testing.T) {
	driver := newEntity("driver", "example.hcl")
	stats := newSource("driver_stats", "example.hcl")
	view := newView("driver_hourly_stats", "example.hcl", stats, driver)
	svc := newService("driver_locations_service", "example_2.hcl", view)

	res := loader.Result{Files: map[string][]loader.Binding{
		"example.hcl":   local(driver, stats, view),
		"example_2.hcl": append(local(svc), imported(view)...),
		"example_3.hcl": imported(view, driver),
	}}
	set := Discover(context.Background(), res)
	if set.Len() != 4 {
		t.Fatalf("expected 4 objects, got %d", set.Len())
	}
	if got := set.Category(domain.CategoryFeatureView); len(got) != 1 || got[0] != view {
		t.Fatalf("imported view must appear once, got %v", got)
	}
	objs := set.Objects()
	for i, want := range []domain.Object{driver, stats, view, svc} {
		if objs[i] != want {
			t.Fatalf("object %d out of dependency order", i)
		}
	}
	counts := set.Counts()
	if counts[domain.CategoryEntity] != 1 || counts[domain.CategoryFeatureService] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
}

func TestDiscoverKeepsDistinctIdentitiesWithEqualNames(t *testing.T) {
	a := newView("driver_hourly_stats", "a.hcl", nil)
	b := newView("driver_hourly_stats", "b.hcl", nil)
	res := loader.Result{Files: map[string][]loader.Binding{
		"b.hcl": local(b),
		"a.hcl": local(a),
	}}
	set := Discover(context.Background(), res)
	got := set.Category(domain.CategoryFeatureView)
	if len(got) != 2 {
		t.Fatalf("expected both views, got %d", len(got))
	}
	if got[0] != a || got[1] != b {
		t.Fatalf("files must be visited in path order")
	}
	if !set.Contains(a) || set.Contains(newView("driver_hourly_stats", "a.hcl", nil)) {
		t.Fatalf("membership must follow identity")
	}
}
