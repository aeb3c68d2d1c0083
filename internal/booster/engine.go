package booster

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"certpass/internal/dgc"
	"certpass/internal/rules"
	"certpass/internal/rules/ports"
	"certpass/pkg/dgcerrors"
)

// Engine recomputes booster notifications for every stored certificate
// group. It is safe to run repeatedly; a rule that already fired for a
// group does not reset the seen flags again.
type Engine struct {
	groups    GroupStore
	rules     ports.RuleStore
	valueSets ports.ValueSetStore
	evaluator ports.Evaluator
	logger    *slog.Logger
	now       func() time.Time
}

type EngineOption func(*Engine)

func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func NewEngine(groups GroupStore, ruleStore ports.RuleStore, valueSetStore ports.ValueSetStore, evaluator ports.Evaluator, opts ...EngineOption) (*Engine, error) {
	if groups == nil || ruleStore == nil || valueSetStore == nil {
		return nil, fmt.Errorf("group, rule and value set stores are required")
	}
	if evaluator == nil {
		return nil, fmt.Errorf("evaluator is required")
	}

	e := &Engine{
		groups:    groups,
		rules:     ruleStore,
		valueSets: valueSetStore,
		evaluator: evaluator,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run evaluates booster rules for every group and persists the resulting
// notification state. Per-group failures are logged and skipped so one bad
// group cannot starve the rest.
func (e *Engine) Run(ctx context.Context) error {
	groups, err := e.groups.All(ctx)
	if err != nil {
		return dgcerrors.Wrap(err, dgcerrors.CodeInternal, "load certificate groups")
	}

	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.checkGroup(ctx, group); err != nil {
			e.logger.WarnContext(ctx, "booster check failed",
				"group", group.ID,
				"error", err,
			)
		}
	}
	return nil
}

func (e *Engine) checkGroup(ctx context.Context, group Group) error {
	notification, err := e.evaluateGroup(ctx, group)
	if err != nil {
		return err
	}

	return e.groups.UpdateState(ctx, group.ID, func(g *Group) {
		g.Notification = notification
		if notification.Result == ResultPassed && !g.HasSeenRule(notification.RuleID) {
			g.SeenRuleIDs = append(g.SeenRuleIDs, notification.RuleID)
			g.HasSeenNotification = false
			g.HasSeenDetailNotification = false
		}
	})
}

// evaluateGroup builds the merged certificate for a group and runs the
// booster rules against it. A group without a vaccination record cannot be
// booster-eligible and fails without touching the rule engine.
func (e *Engine) evaluateGroup(ctx context.Context, group Group) (Notification, error) {
	merged, ok := mergedCertificate(group)
	if !ok {
		return Notification{Result: ResultFailed}, nil
	}

	selected, err := e.boosterRules(ctx)
	if err != nil {
		return Notification{}, err
	}
	valueSets, err := e.valueSetMappings(ctx)
	if err != nil {
		return Notification{}, err
	}

	for _, rule := range selected {
		verdict, err := e.evaluator.Evaluate(ctx, rule.Expression, merged, valueSets)
		if err != nil {
			e.logger.WarnContext(ctx, "booster rule evaluation failed",
				"rule", rule.Identifier,
				"error", err,
			)
			continue
		}
		if verdict == rules.VerdictPassed {
			return Notification{
				Result:        ResultPassed,
				DescriptionEN: rule.DescriptionFor(LangEnglish),
				DescriptionDE: rule.DescriptionFor(LangGerman),
				RuleID:        rule.Identifier,
			}, nil
		}
	}
	return Notification{Result: ResultFailed}, nil
}

// mergedCertificate combines the group's latest vaccination certificate
// with its latest recovery record, so recovery-aware booster rules see
// both histories on one document.
func mergedCertificate(group Group) (dgc.CovCertificate, bool) {
	vaccCert, ok := group.LatestVaccination()
	if !ok {
		return dgc.CovCertificate{}, false
	}

	recCert, ok := group.LatestRecovery()
	if !ok {
		return vaccCert, true
	}
	recovery, _ := recCert.Recovery()

	merged := vaccCert
	merged.Recoveries = []dgc.Recovery{recovery}
	return merged, true
}

func (e *Engine) boosterRules(ctx context.Context) ([]rules.Rule, error) {
	all, err := e.rules.All(ctx)
	if err != nil {
		return nil, err
	}
	asOf := e.now()

	selected := make([]rules.Rule, 0, len(all))
	for _, rule := range all {
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

func (e *Engine) valueSetMappings(ctx context.Context) (map[string]json.RawMessage, error) {
	sets, err := e.valueSets.All(ctx)
	if err != nil {
		return nil, err
	}
	mappings := make(map[string]json.RawMessage, len(sets))
	for _, set := range sets {
		mappings[set.ID] = set.Values
	}
	return mappings, nil
}
