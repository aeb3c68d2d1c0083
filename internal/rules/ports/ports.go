// Package ports declares the store, remote data source and evaluation engine
// interfaces the rules services depend on. Implementations live in
// rules/store, rules/remote and the external CertLogic engine binding. The
// definitions live in the rules package itself (rules/interfaces.go) so the
// rules services can reference them without an import cycle; this package
// re-exports them as aliases.
package ports

import (
	"certpass/internal/rules"
)

// RuleStore is the local rule table for one rule kind (business or booster).
// Replace must be as close to transactional as the backend allows: the final
// state is exactly the kept entries plus the added ones, with no orphaned or
// duplicated identifiers.
type RuleStore = rules.RuleStore

// ValueSetStore is the local value set table.
type ValueSetStore = rules.ValueSetStore

// CountryStore is the local country list. Countries have no hashes; sync is
// a plain replacement.
type CountryStore = rules.CountryStore

// UpdateStore records the last successful sync per kind.
type UpdateStore = rules.UpdateStore

// RulesRemote is the distribution backend for business rules.
type RulesRemote = rules.RulesRemote

// ValueSetsRemote is the distribution backend for value sets.
type ValueSetsRemote = rules.ValueSetsRemote

// BoosterRulesRemote is the distribution backend for booster rules, hosted
// separately from the business rules.
type BoosterRulesRemote = rules.BoosterRulesRemote

// CountriesRemote is the distribution backend for the country list.
type CountriesRemote = rules.CountriesRemote

// Evaluator is the injected declarative rule engine. The expression, the
// certificate field projection and the value set mappings go in; a verdict
// comes out. Implementations are swappable without touching selection or
// orchestration.
type Evaluator = rules.Evaluator
