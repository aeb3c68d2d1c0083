// The store, remote data source and evaluation engine interfaces the rules
// services depend on. Implementations live in rules/store, rules/remote and
// the external CertLogic engine binding. rules/ports re-exports these as
// aliases for consumers outside the package.
package rules

import (
	"context"
	"encoding/json"
	"time"

	"certpass/internal/dgc"
)

// RuleStore is the local rule table for one rule kind (business or booster).
// Replace must be as close to transactional as the backend allows: the final
// state is exactly the kept entries plus the added ones, with no orphaned or
// duplicated identifiers.
type RuleStore interface {
	All(ctx context.Context) ([]Rule, error)
	Replace(ctx context.Context, keep []string, add []Rule) error
}

// ValueSetStore is the local value set table.
type ValueSetStore interface {
	All(ctx context.Context) ([]ValueSet, error)
	Replace(ctx context.Context, keep []string, add []ValueSet) error
}

// CountryStore is the local country list. Countries have no hashes; sync is
// a plain replacement.
type CountryStore interface {
	All(ctx context.Context) ([]string, error)
	ReplaceAll(ctx context.Context, countries []string) error
}

// UpdateStore records the last successful sync per kind.
type UpdateStore interface {
	MarkUpdated(ctx context.Context, kind string, at time.Time) error
	LastUpdated(ctx context.Context, kind string) (time.Time, bool, error)
}

// RulesRemote is the distribution backend for business rules.
type RulesRemote interface {
	RuleIdentifiers(ctx context.Context) ([]RuleIdentifier, error)
	Rule(ctx context.Context, country, hash string) (Rule, error)
}

// ValueSetsRemote is the distribution backend for value sets.
type ValueSetsRemote interface {
	ValueSetIdentifiers(ctx context.Context) ([]ValueSetIdentifier, error)
	ValueSet(ctx context.Context, hash string) (ValueSet, error)
}

// BoosterRulesRemote is the distribution backend for booster rules, hosted
// separately from the business rules.
type BoosterRulesRemote interface {
	BoosterRuleIdentifiers(ctx context.Context) ([]RuleIdentifier, error)
	BoosterRule(ctx context.Context, hash string) (Rule, error)
}

// CountriesRemote is the distribution backend for the country list.
type CountriesRemote interface {
	Countries(ctx context.Context) ([]string, error)
}

// Evaluator is the injected declarative rule engine. The expression, the
// certificate field projection and the value set mappings go in; a verdict
// comes out. Implementations are swappable without touching selection or
// orchestration.
type Evaluator interface {
	Evaluate(
		ctx context.Context,
		expression json.RawMessage,
		certificate dgc.CovCertificate,
		valueSets map[string]json.RawMessage,
	) (Verdict, error)
}
