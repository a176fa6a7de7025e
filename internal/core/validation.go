package core

import (
	"context"
	"fmt"
	"strings"

	"featurecore/pkg/domain"
)

// Messages holds the user-facing duplicate name messages. Each is a format
// string receiving the lowercased name.
type Messages struct {
	FeatureView    string
	DataSource     string
	Entity         string
	FeatureService string
}

// DefaultMessages returns the stock messages.
func DefaultMessages() Messages {
	return Messages{
		FeatureView: "More than one feature view with name %s found. " +
			"Please ensure that all feature view names are case-insensitively unique. " +
			"It may be necessary to ignore certain files in your feature repository by using a .featureignore file.",
		DataSource:     "Multiple data sources share the same case-insensitive name %s.",
		Entity:         "Multiple entities share the same case-insensitive name %s.",
		FeatureService: "Multiple feature services share the same case-insensitive name %s.",
	}
}

func (m Messages) forCategory(cat domain.Category) string {
	var tmpl string
	switch cat {
	case domain.CategoryFeatureView:
		tmpl = m.FeatureView
	case domain.CategoryDataSource:
		tmpl = m.DataSource
	case domain.CategoryEntity:
		tmpl = m.Entity
	case domain.CategoryFeatureService:
		tmpl = m.FeatureService
	}
	if tmpl == "" {
		return DefaultMessages().forCategory(cat)
	}
	return tmpl
}

// validationOrder is the order categories are checked in; the first
// violation wins.
var validationOrder = []domain.Category{
	domain.CategoryFeatureView,
	domain.CategoryDataSource,
	domain.CategoryEntity,
	domain.CategoryFeatureService,
}

// Validator checks a declared set before it is diffed.
type Validator struct {
	messages Messages
}

// NewValidator returns a validator using msgs; empty messages fall back to
// the defaults.
func NewValidator(msgs Messages) *Validator {
	return &Validator{messages: msgs}
}

// Validate runs the uniqueness check, then the reference check.
func (v *Validator) Validate(_ context.Context, set *DeclaredSet) error {
	if err := v.CheckUniqueness(set); err != nil {
		return err
	}
	return v.CheckReferences(set)
}

// CheckUniqueness reports the first category holding two distinct objects
// whose names are equal ignoring case.
func (v *Validator) CheckUniqueness(set *DeclaredSet) error {
	for _, cat := range validationOrder {
		groups := make(map[string][]Object)
		var order []string
		for _, obj := range set.Category(cat) {
			folded := strings.ToLower(obj.Metadata().Name)
			if _, seen := groups[folded]; !seen {
				order = append(order, folded)
			}
			groups[folded] = append(groups[folded], obj)
		}
		for _, folded := range order {
			group := groups[folded]
			if len(group) < 2 {
				continue
			}
			files := make([]string, 0, len(group))
			for _, obj := range group {
				files = append(files, obj.Metadata().Location())
			}
			name := group[0].Metadata().Name
			msg := fmt.Sprintf(v.messages.forCategory(cat), name)
			msg += " Conflicting definitions: " + strings.Join(files, ", ") + "."
			return &domain.DuplicateNameError{Category: cat, Name: name, Files: files, Message: msg}
		}
	}
	return nil
}

// CheckReferences ensures every referenced object is itself declared.
func (v *Validator) CheckReferences(set *DeclaredSet) error {
	for _, obj := range set.Objects() {
		for _, ref := range obj.References() {
			if set.Contains(ref) {
				continue
			}
			m := ref.Metadata()
			return &domain.ReferenceError{
				From:   domain.KeyOf(obj),
				File:   obj.Metadata().Location(),
				Symbol: m.Symbol,
				Reason: fmt.Sprintf("%s %s is not declared in the repository", m.Category.DisplayName(), m.Name),
			}
		}
	}
	return nil
}
