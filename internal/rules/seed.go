package rules

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"certpass/pkg/dgcerrors"
)

// Bundled asset file names recognized inside a seed directory.
const (
	seedRulesFile     = "rules.json"
	seedValueSetsFile = "valuesets.json"
	seedCountriesFile = "countries.json"
)

// SeedFromDir prepopulates the local tables from bundled JSON assets so a
// fresh deployment can verify certificates before the first sync completes.
// Missing files are skipped, and a table that already holds data is left
// untouched so bundled assets never clobber synced state.
func SeedFromDir(ctx context.Context, dir string, rulesRepo *RulesRepository, valueSetsRepo *ValueSetsRepository, countriesRepo *CountriesRepository, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	var bundledRules []Rule
	ok, err := readSeedFile(filepath.Join(dir, seedRulesFile), &bundledRules)
	if err != nil {
		return err
	}
	if ok {
		existing, err := rulesRepo.All(ctx)
		if err != nil {
			return dgcerrors.Wrap(err, dgcerrors.CodeSync, "read local rules")
		}
		if len(existing) == 0 {
			if err := rulesRepo.Prepopulate(ctx, bundledRules); err != nil {
				return err
			}
			logger.Info("seeded bundled rules", "count", len(bundledRules))
		}
	}

	var bundledSets []ValueSet
	ok, err = readSeedFile(filepath.Join(dir, seedValueSetsFile), &bundledSets)
	if err != nil {
		return err
	}
	if ok {
		existing, err := valueSetsRepo.All(ctx)
		if err != nil {
			return dgcerrors.Wrap(err, dgcerrors.CodeSync, "read local value sets")
		}
		if len(existing) == 0 {
			if err := valueSetsRepo.Prepopulate(ctx, bundledSets); err != nil {
				return err
			}
			logger.Info("seeded bundled value sets", "count", len(bundledSets))
		}
	}

	var bundledCountries []string
	ok, err = readSeedFile(filepath.Join(dir, seedCountriesFile), &bundledCountries)
	if err != nil {
		return err
	}
	if ok {
		existing, err := countriesRepo.All(ctx)
		if err != nil {
			return dgcerrors.Wrap(err, dgcerrors.CodeSync, "read local countries")
		}
		if len(existing) == 0 {
			if err := countriesRepo.Prepopulate(ctx, bundledCountries); err != nil {
				return err
			}
			logger.Info("seeded bundled countries", "count", len(bundledCountries))
		}
	}

	return nil
}

// readSeedFile reports whether the file exists and, if so, decodes it into v.
func readSeedFile(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, dgcerrors.Wrap(err, dgcerrors.CodeInternal, "read seed file "+filepath.Base(path))
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, dgcerrors.Wrap(err, dgcerrors.CodeDecode, "parse seed file "+filepath.Base(path))
	}
	return true, nil
}
