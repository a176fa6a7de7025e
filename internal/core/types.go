// Package core reconciles discovered feature definitions with the registry:
// discovery, uniqueness validation, diffing and transactional apply.
package core

import "featurecore/pkg/domain"

type (
	// Object aliases domain.Object.
	Object = domain.Object
	// Key aliases domain.Key.
	Key = domain.Key
	// RegistryEntry aliases domain.RegistryEntry.
	RegistryEntry = domain.RegistryEntry
	// Changeset aliases domain.Changeset.
	Changeset = domain.Changeset
	// Snapshot aliases domain.Snapshot.
	Snapshot = domain.Snapshot
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// Rule aliases domain.Rule.
	Rule = domain.Rule
	// RulesEngine aliases domain.RulesEngine.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView.
	TransactionView = domain.TransactionView
	// RegistryStore aliases domain.RegistryStore.
	RegistryStore = domain.RegistryStore
)
