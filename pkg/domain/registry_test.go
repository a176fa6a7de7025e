package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestSnapshotLookupsAreCaseInsensitive(t *testing.T) {
	snap := NewSnapshot(Project{Name: "foo"}, []RegistryEntry{
		{Category: CategoryFeatureView, Name: "Driver_Hourly_Stats", Spec: json.RawMessage(`{}`)},
		{Category: CategoryEntity, Name: "driver", Spec: json.RawMessage(`{}`)},
	})
	if _, ok := snap.FindFold(CategoryFeatureView, "driver_hourly_stats"); !ok {
		t.Fatalf("expected case-insensitive match")
	}
	if _, ok := snap.FindFold(CategoryEntity, "driver_hourly_stats"); ok {
		t.Fatalf("lookups must stay within category")
	}
	sorted := snap.Sorted()
	if sorted[0].Category != CategoryEntity {
		t.Fatalf("expected entities first, got %v", sorted[0].Key())
	}
	if len(snap.List(CategoryFeatureView)) != 1 {
		t.Fatalf("expected one feature view")
	}
}

func TestRegistryEntryCloneIsDeep(t *testing.T) {
	orig := RegistryEntry{Category: CategoryEntity, Name: "driver", Spec: json.RawMessage(`{"a":1}`), References: []Key{{Category: CategoryEntity, Name: "x"}}}
	cp := orig.Clone()
	cp.Spec[2] = 'b'
	cp.References[0].Name = "y"
	if string(orig.Spec) != `{"a":1}` || orig.References[0].Name != "x" {
		t.Fatalf("clone shares storage with original")
	}
}

func TestSameContentIgnoresBookkeeping(t *testing.T) {
	a := RegistryEntry{UID: "1", Version: 1, Category: CategoryEntity, Name: "driver", Spec: json.RawMessage(`{}`)}
	b := RegistryEntry{UID: "2", Version: 7, Category: CategoryEntity, Name: "driver", Spec: json.RawMessage(`{}`), DefiningFile: "x.hcl"}
	if !a.SameContent(b) {
		t.Fatalf("expected same content")
	}
	b.Name = "Driver"
	if a.SameContent(b) {
		t.Fatalf("rename must count as a content change")
	}
}

func TestSameContentIgnoresSpecFormatting(t *testing.T) {
	fresh := RegistryEntry{Category: CategoryEntity, Name: "driver", Spec: json.RawMessage(`{"join_keys":["driver_id"],"ttl":0}`)}
	stored := fresh
	stored.Spec = json.RawMessage("{\n  \"join_keys\": [\n    \"driver_id\"\n  ],\n  \"ttl\": 0\n}")
	if !fresh.SameContent(stored) {
		t.Fatalf("indented spec must compare equal to its compact form")
	}
	stored.Spec = json.RawMessage(`{"join_keys":["customer_id"],"ttl":0}`)
	if fresh.SameContent(stored) {
		t.Fatalf("different specs must differ")
	}
	if got := string(CompactSpec(json.RawMessage("{ \"a\" : 1 }"))); got != `{"a":1}` {
		t.Fatalf("unexpected compact spec %q", got)
	}
	if got := string(CompactSpec(json.RawMessage("not json"))); got != "not json" {
		t.Fatalf("invalid specs must pass through, got %q", got)
	}
}

func TestChangesetFlattening(t *testing.T) {
	cs := Changeset{
		ToCreate: []RegistryEntry{{Category: CategoryEntity, Name: "a"}},
		ToUpdate: []EntryUpdate{{Before: RegistryEntry{Category: CategoryEntity, Name: "B"}, After: RegistryEntry{Category: CategoryEntity, Name: "b"}}},
		ToDelete: []RegistryEntry{{Category: CategoryFeatureView, Name: "c"}},
	}
	changes := cs.Changes()
	if cs.IsEmpty() || cs.Len() != 3 || len(changes) != 3 {
		t.Fatalf("unexpected changeset size")
	}
	if changes[1].Key().Name != "b" || changes[2].Key().Name != "c" {
		t.Fatalf("unexpected change keys %v %v", changes[1].Key(), changes[2].Key())
	}
	if ActionDelete.Past() != "Deleted" {
		t.Fatalf("unexpected verb")
	}
}

func TestErrorTaxonomyUnwraps(t *testing.T) {
	inner := errors.New("disk full")
	var storageErr *StorageError
	if err := error(&StorageError{Op: "apply", Err: inner}); !errors.As(err, &storageErr) || !errors.Is(err, inner) {
		t.Fatalf("storage error must unwrap")
	}
	loadErr := &LoadError{File: "example.hcl", Line: 3, Err: inner}
	if !strings.Contains(loadErr.Error(), "example.hcl:3") || !errors.Is(loadErr, inner) {
		t.Fatalf("unexpected load error %q", loadErr.Error())
	}
	dup := &DuplicateNameError{Category: CategoryDataSource, Name: "driver_stats"}
	if dup.Error() != "Multiple data sources share the same case-insensitive name driver_stats." {
		t.Fatalf("unexpected default duplicate message %q", dup.Error())
	}
	ref := &ReferenceError{From: Key{Category: CategoryFeatureView, Name: "v"}, Symbol: "missing", Reason: "not declared"}
	if !strings.Contains(ref.Error(), `feature view v references "missing"`) {
		t.Fatalf("unexpected reference error %q", ref.Error())
	}
}
