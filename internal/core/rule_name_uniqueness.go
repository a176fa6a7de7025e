package core

import (
	"context"
	"fmt"
	"strings"

	"featurecore/pkg/domain"
)

// NameUniquenessRule blocks a transaction that leaves two entries of one
// category whose names differ only in case.
func NameUniquenessRule() domain.Rule {
	return nameUniquenessRule{}
}

type nameUniquenessRule struct{}

func (nameUniquenessRule) Name() string { return "name_uniqueness" }

func (nameUniquenessRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	if len(changes) == 0 {
		return res, nil
	}
	for _, cat := range domain.Categories() {
		seen := make(map[string]string)
		for _, e := range view.List(cat) {
			folded := strings.ToLower(e.Name)
			if prev, dup := seen[folded]; dup {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "name_uniqueness",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("%s names %q and %q differ only in case", cat.DisplayName(), prev, e.Name),
					Key:      e.Key(),
				})
				continue
			}
			seen[folded] = e.Name
		}
	}
	return res, nil
}
