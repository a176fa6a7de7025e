package domain

import (
	"context"
	"errors"
	"slices"
	"testing"
)

func TestRuleViolationErrorListsBlockingMessages(t *testing.T) {
	var res Result
	res.Merge(Result{})
	res.Merge(Result{Violations: []Violation{{Rule: "naming", Severity: SeverityWarn, Message: "feature view has no owner"}}})
	if res.HasBlocking() {
		t.Fatalf("warnings must not block")
	}
	res.Merge(Result{Violations: []Violation{
		{Rule: "name-uniqueness", Severity: SeverityBlock, Message: "entity Driver exists", Key: Key{Category: CategoryEntity, Name: "Driver"}},
		{Rule: "references", Severity: SeverityBlock, Message: "feature view v references a missing source"},
	}})
	if !res.HasBlocking() || len(res.Violations) != 3 {
		t.Fatalf("unexpected result %+v", res)
	}

	cases := map[string]struct {
		result Result
		want   string
	}{
		"blocking": {res, "transaction blocked by rules: entity Driver exists; feature view v references a missing source"},
		"warnings": {Result{Violations: res.Violations[:1]}, "transaction blocked by rules"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if got := (RuleViolationError{Result: tc.result}).Error(); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

type recordingRule struct {
	name     string
	severity Severity
	err      error
	seen     *[]string
}

func (r recordingRule) Name() string { return r.name }

func (r recordingRule) Evaluate(_ context.Context, _ TransactionView, changes []Change) (Result, error) {
	*r.seen = append(*r.seen, r.name)
	if r.err != nil {
		return Result{}, r.err
	}
	var res Result
	for _, c := range changes {
		res.Violations = append(res.Violations, Violation{Rule: r.name, Severity: r.severity, Key: c.Key()})
	}
	return res, nil
}

type emptyView struct{}

func (emptyView) Project() string                                 { return "" }
func (emptyView) List(Category) []RegistryEntry                   { return nil }
func (emptyView) Find(Key) (RegistryEntry, bool)                  { return RegistryEntry{}, false }
func (emptyView) FindFold(Category, string) (RegistryEntry, bool) { return RegistryEntry{}, false }

func TestRulesEngineRunsRulesInOrder(t *testing.T) {
	var seen []string
	engine := NewRulesEngine()
	engine.Register(recordingRule{name: "first", severity: SeverityWarn, seen: &seen})
	engine.Register(recordingRule{name: "second", severity: SeverityBlock, seen: &seen})

	changes := []Change{{Category: CategoryEntity, Action: ActionCreate, After: RegistryEntry{Category: CategoryEntity, Name: "driver"}}}
	res, err := engine.Evaluate(context.Background(), emptyView{}, changes)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !slices.Equal(seen, []string{"first", "second"}) || !slices.Equal(engine.Rules(), seen) {
		t.Fatalf("unexpected evaluation order %v / %v", seen, engine.Rules())
	}
	if len(res.Violations) != 2 || res.Violations[1].Key.Name != "driver" || !res.HasBlocking() {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRulesEngineStopsOnError(t *testing.T) {
	var seen []string
	boom := errors.New("boom")
	engine := NewRulesEngine()
	engine.Register(recordingRule{name: "broken", err: boom, seen: &seen})
	engine.Register(recordingRule{name: "never", seen: &seen})
	if _, err := engine.Evaluate(context.Background(), emptyView{}, nil); !errors.Is(err, boom) {
		t.Fatalf("expected rule error, got %v", err)
	}
	if len(seen) != 1 {
		t.Fatalf("evaluation must stop at the failing rule, ran %v", seen)
	}
}
