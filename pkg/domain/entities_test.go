package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func newTestView(name string) (*Entity, *DataSource, *FeatureView) {
	driver := &Entity{ObjectMeta: ObjectMeta{ID: NewIdentity(), Category: CategoryEntity, Name: "driver"}}
	source := &DataSource{
		ObjectMeta:     ObjectMeta{ID: NewIdentity(), Category: CategoryDataSource, Name: "driver_stats"},
		Path:           "data/driver_stats.parquet",
		TimestampField: "event_timestamp",
	}
	view := &FeatureView{
		ObjectMeta: ObjectMeta{ID: NewIdentity(), Category: CategoryFeatureView, Name: name},
		Entities:   []*Entity{driver},
		Source:     source,
		TTL:        24 * time.Hour,
		Online:     true,
		Schema:     []Field{{Name: "conv_rate", Dtype: "Float32"}},
	}
	return driver, source, view
}

func TestCategoryOrderAndNames(t *testing.T) {
	cats := Categories()
	if len(cats) != 4 || cats[0] != CategoryEntity || cats[3] != CategoryFeatureService {
		t.Fatalf("unexpected category order %v", cats)
	}
	if CategoryDataSource.DisplayName() != "data source" {
		t.Fatalf("unexpected display name %q", CategoryDataSource.DisplayName())
	}
	if CategoryEntity.PluralName() != "entities" || CategoryFeatureView.PluralName() != "feature views" {
		t.Fatalf("unexpected plural names")
	}
	if _, err := ParseCategory("bogus"); err == nil {
		t.Fatalf("expected unknown category error")
	}
	if c, err := ParseCategory("feature_service"); err != nil || c != CategoryFeatureService {
		t.Fatalf("parse feature_service: %v %v", c, err)
	}
}

func TestIdentitiesAreDistinctForIdenticalContent(t *testing.T) {
	_, _, a := newTestView("driver_hourly_stats")
	_, _, b := newTestView("driver_hourly_stats")
	if a.ID == b.ID {
		t.Fatalf("expected distinct identities for separate constructions")
	}
	specA, _ := json.Marshal(a.Spec())
	specB, _ := json.Marshal(b.Spec())
	if string(specA) != string(specB) {
		t.Fatalf("expected identical specs, got %s vs %s", specA, specB)
	}
}

func TestFeatureViewSpecUsesReferenceNames(t *testing.T) {
	_, _, view := newTestView("driver_hourly_stats")
	spec, ok := view.Spec().(FeatureViewSpec)
	if !ok {
		t.Fatalf("unexpected spec type %T", view.Spec())
	}
	if spec.Source != "driver_stats" || len(spec.Entities) != 1 || spec.Entities[0] != "driver" {
		t.Fatalf("unexpected references in spec: %+v", spec)
	}
	if spec.TTL != "24h0m0s" {
		t.Fatalf("unexpected ttl %q", spec.TTL)
	}
	refs := view.References()
	if len(refs) != 2 || refs[0].Metadata().Category != CategoryEntity || refs[1].Metadata().Category != CategoryDataSource {
		t.Fatalf("unexpected references %+v", refs)
	}
}

func TestEntityDefaultsJoinKeyToName(t *testing.T) {
	e := &Entity{ObjectMeta: ObjectMeta{Category: CategoryEntity, Name: "driver"}}
	spec := e.Spec().(EntitySpec)
	if len(spec.JoinKeys) != 1 || spec.JoinKeys[0] != "driver" {
		t.Fatalf("expected default join key, got %v", spec.JoinKeys)
	}
}

func TestNewRegistryEntryProjection(t *testing.T) {
	_, _, view := newTestView("driver_hourly_stats")
	svc := &FeatureService{
		ObjectMeta: ObjectMeta{ID: NewIdentity(), Category: CategoryFeatureService, Name: "driver_locations_service", DefiningFile: "services.hcl"},
		Features:   []*FeatureView{view},
	}
	entry, err := NewRegistryEntry(svc)
	if err != nil {
		t.Fatalf("project entry: %v", err)
	}
	if entry.Key() != (Key{Category: CategoryFeatureService, Name: "driver_locations_service"}) {
		t.Fatalf("unexpected key %v", entry.Key())
	}
	if len(entry.References) != 1 || entry.References[0].Name != "driver_hourly_stats" {
		t.Fatalf("unexpected references %v", entry.References)
	}
	if !strings.Contains(string(entry.Spec), `"features":["driver_hourly_stats"]`) {
		t.Fatalf("unexpected spec %s", entry.Spec)
	}
	if entry.DefiningFile != "services.hcl" {
		t.Fatalf("defining file not carried: %q", entry.DefiningFile)
	}
}

func TestSortObjectsByCategoryThenName(t *testing.T) {
	driver, source, view := newTestView("b_view")
	_, _, other := newTestView("a_view")
	objs := []Object{view, other, source, driver}
	SortObjects(objs)
	got := []string{}
	for _, o := range objs {
		got = append(got, o.Metadata().Name)
	}
	want := []string{"driver", "driver_stats", "a_view", "b_view"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected order %v", got)
		}
	}
}
