package rules_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certpass/internal/rules"
	"certpass/internal/rules/store"
	"certpass/pkg/dgcerrors"
)

type seedFixture struct {
	dir           string
	ruleStore     *store.MemoryRuleStore
	valueSetStore *store.MemoryValueSetStore
	countryStore  *store.MemoryCountryStore
	rulesRepo     *rules.RulesRepository
	valueSetsRepo *rules.ValueSetsRepository
	countriesRepo *rules.CountriesRepository
}

func newSeedFixture(t *testing.T) *seedFixture {
	t.Helper()
	f := &seedFixture{
		dir:           t.TempDir(),
		ruleStore:     store.NewMemoryRuleStore(),
		valueSetStore: store.NewMemoryValueSetStore(),
		countryStore:  store.NewMemoryCountryStore(),
	}

	var err error
	f.rulesRepo, err = rules.NewRulesRepository(&fakeRulesRemote{}, f.ruleStore, nil)
	require.NoError(t, err)
	f.valueSetsRepo, err = rules.NewValueSetsRepository(&fakeValueSetsRemote{}, f.valueSetStore, nil)
	require.NoError(t, err)
	f.countriesRepo, err = rules.NewCountriesRepository(&fakeCountriesRemote{}, f.countryStore, nil)
	require.NoError(t, err)
	return f
}

func (f *seedFixture) write(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, name), []byte(content), 0o644))
}

func (f *seedFixture) seed(ctx context.Context) error {
	return rules.SeedFromDir(ctx, f.dir, f.rulesRepo, f.valueSetsRepo, f.countriesRepo, discardLogger())
}

func TestSeedFromDirPopulatesEmptyTables(t *testing.T) {
	f := newSeedFixture(t)
	f.write(t, "rules.json", `[
		{"identifier": "RR-DE-0001", "country": "DE", "type": "Acceptance", "certificateType": "General", "hash": "h1", "logic": true}
	]`)
	f.write(t, "valuesets.json", `[
		{"valueSetId": "vaccines-covid-19-names", "valueSetValues": ["EU/1/20/1528"], "hash": "h1"}
	]`)
	f.write(t, "countries.json", `["AT", "DE"]`)

	require.NoError(t, f.seed(context.Background()))

	assert.Equal(t, []string{"DE/RR-DE-0001"}, ruleKeys(t, f.ruleStore))

	sets, err := f.valueSetStore.All(context.Background())
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Equal(t, "vaccines-covid-19-names", sets[0].ID)

	countries, err := f.countryStore.All(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"AT", "DE"}, countries)
}

func TestSeedFromDirLeavesPopulatedTablesUntouched(t *testing.T) {
	f := newSeedFixture(t)
	require.NoError(t, f.ruleStore.Replace(context.Background(), nil, []rules.Rule{
		businessRule("RR-DE-0002", "DE", "synced"),
	}))
	f.write(t, "rules.json", `[
		{"identifier": "RR-DE-0001", "country": "DE", "type": "Acceptance", "certificateType": "General", "hash": "h1", "logic": true}
	]`)

	require.NoError(t, f.seed(context.Background()))

	// The synced rule survives; the bundled one is not applied.
	assert.Equal(t, []string{"DE/RR-DE-0002"}, ruleKeys(t, f.ruleStore))
}

func TestSeedFromDirSkipsMissingFiles(t *testing.T) {
	f := newSeedFixture(t)

	require.NoError(t, f.seed(context.Background()))

	assert.Empty(t, ruleKeys(t, f.ruleStore))
	countries, err := f.countryStore.All(context.Background())
	require.NoError(t, err)
	assert.Empty(t, countries)
}

func TestSeedFromDirRejectsMalformedFile(t *testing.T) {
	f := newSeedFixture(t)
	f.write(t, "countries.json", `{"not": "a list"`)

	err := f.seed(context.Background())
	require.Error(t, err)
	assert.Equal(t, dgcerrors.CodeDecode, dgcerrors.GetCode(err))
}
