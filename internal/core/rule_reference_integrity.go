package core

import (
	"context"
	"fmt"

	"featurecore/pkg/domain"
)

// ReferenceIntegrityRule blocks a transaction that leaves an entry
// referencing a missing entry.
func ReferenceIntegrityRule() domain.Rule {
	return referenceIntegrityRule{}
}

type referenceIntegrityRule struct{}

func (referenceIntegrityRule) Name() string { return "reference_integrity" }

func (referenceIntegrityRule) Evaluate(_ context.Context, view domain.TransactionView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, e := range view.List("") {
		for _, ref := range e.References {
			if _, ok := view.Find(ref); ok {
				continue
			}
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "reference_integrity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("%s %s references missing %s %s", e.Category.DisplayName(), e.Name, ref.Category.DisplayName(), ref.Name),
				Key:      e.Key(),
			})
		}
	}
	return res, nil
}
