package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"certpass/internal/dgc"
)

//go:generate mockgen -destination=mocks/mocks.go -package=mocks certpass/internal/rules/ports Evaluator

// Validator selects the applicable rules for a certificate and aggregates
// the verdicts of the injected evaluation engine. All selected rules are
// evaluated; nothing short-circuits on the first failure, since callers
// display per-rule diagnostics.
type Validator struct {
	rules     RuleStore
	valueSets ValueSetStore
	evaluator Evaluator
	logger    *slog.Logger
}

type ValidatorOption func(*Validator)

func WithValidatorLogger(logger *slog.Logger) ValidatorOption {
	return func(v *Validator) { v.logger = logger }
}

func NewValidator(ruleStore RuleStore, valueSetStore ValueSetStore, evaluator Evaluator, opts ...ValidatorOption) (*Validator, error) {
	if ruleStore == nil || valueSetStore == nil {
		return nil, fmt.Errorf("rule and value set stores are required")
	}
	if evaluator == nil {
		return nil, fmt.Errorf("evaluator is required")
	}

	v := &Validator{rules: ruleStore, valueSets: valueSetStore, evaluator: evaluator}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Validate evaluates every applicable acceptance rule for the given country
// and point in time. An empty result means no rule applied; the caller
// decides what that implies (see CheckVerdict).
func (v *Validator) Validate(ctx context.Context, cert dgc.CovCertificate, countryCode string, asOf time.Time) ([]ValidationResult, error) {
	entry := cert.DGCEntry()
	if entry == nil {
		return nil, fmt.Errorf("certificate carries no dgc entry")
	}

	selected, err := v.selectRules(ctx, countryCode, asOf, entry.Kind())
	if err != nil {
		return nil, err
	}

	valueSets, err := v.valueSetMappings(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]ValidationResult, 0, len(selected))
	for _, rule := range selected {
		verdict, err := v.evaluator.Evaluate(ctx, rule.Expression, cert, valueSets)
		if err != nil {
			// An engine failure on one rule is an open question for the
			// verifier, not a pass and not a hard abort.
			if v.logger != nil {
				v.logger.WarnContext(ctx, "rule evaluation failed",
					"rule", rule.Identifier,
					"error", err,
				)
			}
			verdict = VerdictOpen
		}
		results = append(results, ValidationResult{Rule: rule, Verdict: verdict})
	}
	return results, nil
}

func (v *Validator) selectRules(ctx context.Context, countryCode string, asOf time.Time, kind dgc.EntryKind) ([]Rule, error) {
	all, err := v.rules.All(ctx)
	if err != nil {
		return nil, err
	}

	selected := make([]Rule, 0, len(all))
	for _, rule := range all {
		if rule.Type != RuleTypeAcceptance {
			continue
		}
		if !strings.EqualFold(rule.Country, countryCode) {
			continue
		}
		if !rule.CertificateType.Matches(kind) {
			continue
		}
		if !rule.AppliesAt(asOf) {
			continue
		}
		selected = append(selected, rule)
	}

	sort.Slice(selected, func(i, j int) bool {
		return selected[i].Identifier < selected[j].Identifier
	})
	return selected, nil
}

func (v *Validator) valueSetMappings(ctx context.Context) (map[string]json.RawMessage, error) {
	sets, err := v.valueSets.All(ctx)
	if err != nil {
		return nil, err
	}
	mappings := make(map[string]json.RawMessage, len(sets))
	for _, set := range sets {
		mappings[set.ID] = set.Values
	}
	return mappings, nil
}
