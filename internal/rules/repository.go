package rules

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	gosync "sync"
	"time"

	"certpass/internal/rules/sync"
	"certpass/pkg/dgcerrors"
)

// Sync kinds, used for last-updated bookkeeping and metrics labels.
const (
	KindRules        = "rules"
	KindValueSets    = "valuesets"
	KindBoosterRules = "boosterrules"
	KindCountries    = "countries"
	KindTrustList    = "trustlist"
)

// RulesRepository keeps the local business rule table in sync with the
// distribution backend. Load is safe to call concurrently; overlapping runs
// for the same kind serialize on the commit lock.
type RulesRepository struct {
	remote  RulesRemote
	store   RuleStore
	updates UpdateStore
	logger  *slog.Logger
	limit   int
	now     func() time.Time

	mu gosync.Mutex
}

type RepositoryOption func(*repositoryConfig)

type repositoryConfig struct {
	logger *slog.Logger
	limit  int
	now    func() time.Time
}

func WithLogger(logger *slog.Logger) RepositoryOption {
	return func(c *repositoryConfig) { c.logger = logger }
}

// WithFetchLimit bounds parallel body fetches.
func WithFetchLimit(limit int) RepositoryOption {
	return func(c *repositoryConfig) { c.limit = limit }
}

// WithClock overrides the last-updated timestamp source, for tests.
func WithClock(now func() time.Time) RepositoryOption {
	return func(c *repositoryConfig) { c.now = now }
}

func applyOptions(opts []RepositoryOption) repositoryConfig {
	cfg := repositoryConfig{limit: sync.DefaultFetchLimit, now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func NewRulesRepository(remote RulesRemote, store RuleStore, updates UpdateStore, opts ...RepositoryOption) (*RulesRepository, error) {
	if remote == nil || store == nil {
		return nil, fmt.Errorf("rules remote and store are required")
	}
	cfg := applyOptions(opts)
	return &RulesRepository{
		remote:  remote,
		store:   store,
		updates: updates,
		logger:  cfg.logger,
		limit:   cfg.limit,
		now:     cfg.now,
	}, nil
}

// All returns the local rule table.
func (r *RulesRepository) All(ctx context.Context) ([]Rule, error) {
	return r.store.All(ctx)
}

// Prepopulate seeds the local table from bundled rules. Intended for first
// start before any sync has succeeded.
func (r *RulesRepository) Prepopulate(ctx context.Context, bundled []Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Replace(ctx, nil, bundled)
}

// Load performs one incremental sync run. A manifest fetch failure aborts
// with no local mutation; individual body fetch failures drop that entry.
func (r *RulesRepository) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	identifiers, err := r.remote.RuleIdentifiers(ctx)
	if err != nil {
		return dgcerrors.Wrap(err, dgcerrors.CodeSync, "fetch rule identifiers")
	}
	remote := sync.GroupByKey(identifiers, r.logger, KindRules)

	local, err := r.store.All(ctx)
	if err != nil {
		return dgcerrors.Wrap(err, dgcerrors.CodeSync, "read local rules")
	}
	plan := sync.Diff(remote, sync.GroupByKey(local, r.logger, KindRules))

	fetched, err := sync.FetchBodies(ctx, plan, r.limit,
		func(ctx context.Context, id RuleIdentifier) (Rule, error) {
			rule, err := r.remote.Rule(ctx, strings.ToLower(id.Country), id.Hash)
			if err != nil {
				return Rule{}, err
			}
			rule.Hash = id.Hash
			return rule, nil
		},
		r.logger, KindRules)
	if err != nil {
		return dgcerrors.Wrap(err, dgcerrors.CodeSync, "fetch rule bodies")
	}

	if err := r.store.Replace(ctx, plan.Keep, fetched); err != nil {
		return dgcerrors.Wrap(err, dgcerrors.CodeSync, "replace local rules")
	}
	return r.markUpdated(ctx, KindRules)
}

func (r *RulesRepository) markUpdated(ctx context.Context, kind string) error {
	if r.updates == nil {
		return nil
	}
	if err := r.updates.MarkUpdated(ctx, kind, r.now()); err != nil {
		return dgcerrors.Wrap(err, dgcerrors.CodeSync, "mark "+kind+" updated")
	}
	return nil
}

// ValueSetsRepository keeps the local value set table in sync.
type ValueSetsRepository struct {
	remote  ValueSetsRemote
	store   ValueSetStore
	updates UpdateStore
	logger  *slog.Logger
	limit   int
	now     func() time.Time

	mu gosync.Mutex
}

func NewValueSetsRepository(remote ValueSetsRemote, store ValueSetStore, updates UpdateStore, opts ...RepositoryOption) (*ValueSetsRepository, error) {
	if remote == nil || store == nil {
		return nil, fmt.Errorf("value sets remote and store are required")
	}
	cfg := applyOptions(opts)
	return &ValueSetsRepository{
		remote:  remote,
		store:   store,
		updates: updates,
		logger:  cfg.logger,
		limit:   cfg.limit,
		now:     cfg.now,
	}, nil
}

func (r *ValueSetsRepository) All(ctx context.Context) ([]ValueSet, error) {
	return r.store.All(ctx)
}

func (r *ValueSetsRepository) Prepopulate(ctx context.Context, bundled []ValueSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Replace(ctx, nil, bundled)
}

func (r *ValueSetsRepository) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	identifiers, err := r.remote.ValueSetIdentifiers(ctx)
	if err != nil {
		return dgcerrors.Wrap(err, dgcerrors.CodeSync, "fetch value set identifiers")
	}
	remote := sync.GroupByKey(identifiers, r.logger, KindValueSets)

	local, err := r.store.All(ctx)
	if err != nil {
		return dgcerrors.Wrap(err, dgcerrors.CodeSync, "read local value sets")
	}
	plan := sync.Diff(remote, sync.GroupByKey(local, r.logger, KindValueSets))

	fetched, err := sync.FetchBodies(ctx, plan, r.limit,
		func(ctx context.Context, id ValueSetIdentifier) (ValueSet, error) {
			vs, err := r.remote.ValueSet(ctx, id.Hash)
			if err != nil {
				return ValueSet{}, err
			}
			vs.Hash = id.Hash
			return vs, nil
		},
		r.logger, KindValueSets)
	if err != nil {
		return dgcerrors.Wrap(err, dgcerrors.CodeSync, "fetch value set bodies")
	}

	if err := r.store.Replace(ctx, plan.Keep, fetched); err != nil {
		return dgcerrors.Wrap(err, dgcerrors.CodeSync, "replace local value sets")
	}
	if r.updates == nil {
		return nil
	}
	if err := r.updates.MarkUpdated(ctx, KindValueSets, r.now()); err != nil {
		return dgcerrors.Wrap(err, dgcerrors.CodeSync, "mark valuesets updated")
	}
	return nil
}

// BoosterRulesRepository keeps the local booster rule table in sync. Booster
// rules live on a distinct host and carry no country in their identity.
type BoosterRulesRepository struct {
	remote  BoosterRulesRemote
	store   RuleStore
	updates UpdateStore
	logger  *slog.Logger
	limit   int
	now     func() time.Time

	mu gosync.Mutex
}

func NewBoosterRulesRepository(remote BoosterRulesRemote, store RuleStore, updates UpdateStore, opts ...RepositoryOption) (*BoosterRulesRepository, error) {
	if remote == nil || store == nil {
		return nil, fmt.Errorf("booster rules remote and store are required")
	}
	cfg := applyOptions(opts)
	return &BoosterRulesRepository{
		remote:  remote,
		store:   store,
		updates: updates,
		logger:  cfg.logger,
		limit:   cfg.limit,
		now:     cfg.now,
	}, nil
}

func (r *BoosterRulesRepository) All(ctx context.Context) ([]Rule, error) {
	return r.store.All(ctx)
}

func (r *BoosterRulesRepository) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	identifiers, err := r.remote.BoosterRuleIdentifiers(ctx)
	if err != nil {
		return dgcerrors.Wrap(err, dgcerrors.CodeSync, "fetch booster rule identifiers")
	}
	remote := sync.GroupByKey(identifiers, r.logger, KindBoosterRules)

	local, err := r.store.All(ctx)
	if err != nil {
		return dgcerrors.Wrap(err, dgcerrors.CodeSync, "read local booster rules")
	}
	plan := sync.Diff(remote, sync.GroupByKey(local, r.logger, KindBoosterRules))

	fetched, err := sync.FetchBodies(ctx, plan, r.limit,
		func(ctx context.Context, id RuleIdentifier) (Rule, error) {
			rule, err := r.remote.BoosterRule(ctx, id.Hash)
			if err != nil {
				return Rule{}, err
			}
			rule.Hash = id.Hash
			rule.Country = ""
			return rule, nil
		},
		r.logger, KindBoosterRules)
	if err != nil {
		return dgcerrors.Wrap(err, dgcerrors.CodeSync, "fetch booster rule bodies")
	}

	if err := r.store.Replace(ctx, plan.Keep, fetched); err != nil {
		return dgcerrors.Wrap(err, dgcerrors.CodeSync, "replace local booster rules")
	}
	if r.updates == nil {
		return nil
	}
	if err := r.updates.MarkUpdated(ctx, KindBoosterRules, r.now()); err != nil {
		return dgcerrors.Wrap(err, dgcerrors.CodeSync, "mark boosterrules updated")
	}
	return nil
}

// CountriesRepository keeps the country list in sync. The listing has no
// hashes, so each run is a plain replacement.
type CountriesRepository struct {
	remote  CountriesRemote
	store   CountryStore
	updates UpdateStore
	now     func() time.Time

	mu gosync.Mutex
}

func NewCountriesRepository(remote CountriesRemote, store CountryStore, updates UpdateStore, opts ...RepositoryOption) (*CountriesRepository, error) {
	if remote == nil || store == nil {
		return nil, fmt.Errorf("countries remote and store are required")
	}
	cfg := applyOptions(opts)
	return &CountriesRepository{remote: remote, store: store, updates: updates, now: cfg.now}, nil
}

func (r *CountriesRepository) All(ctx context.Context) ([]string, error) {
	return r.store.All(ctx)
}

func (r *CountriesRepository) Prepopulate(ctx context.Context, countries []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.ReplaceAll(ctx, countries)
}

func (r *CountriesRepository) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	countries, err := r.remote.Countries(ctx)
	if err != nil {
		return dgcerrors.Wrap(err, dgcerrors.CodeSync, "fetch countries")
	}
	if err := r.store.ReplaceAll(ctx, countries); err != nil {
		return dgcerrors.Wrap(err, dgcerrors.CodeSync, "replace local countries")
	}
	if r.updates == nil {
		return nil
	}
	if err := r.updates.MarkUpdated(ctx, KindCountries, r.now()); err != nil {
		return dgcerrors.Wrap(err, dgcerrors.CodeSync, "mark countries updated")
	}
	return nil
}
