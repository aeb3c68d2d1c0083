// Package sync implements the generic incremental diff synchronization used
// for business rules, booster rules, value sets and country lists: compare
// the remote identifier/hash manifest against the local table, fetch only
// the bodies that are new or changed, and commit one atomic replacement.
package sync

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultFetchLimit bounds parallel body fetches per sync run.
const DefaultFetchLimit = 8

// Entry is anything with a sync identity and a content fingerprint. Both
// remote manifest entries and local table rows implement it.
type Entry interface {
	Key() string
	ContentHash() string
}

// Plan is the computed difference between the remote manifest and the local
// table.
type Plan[R Entry] struct {
	// Fetch holds the manifest entries whose bodies must be downloaded:
	// the added set plus the changed set.
	Fetch []R
	// Keep holds the keys of unchanged local entries that survive the
	// replacement.
	Keep []string
	// Removed holds keys present locally but no longer on the remote.
	Removed []string
}

// GroupByKey collapses a listing to one entry per identifier, keeping the
// first occurrence. A source returning duplicate identifiers is an anomaly;
// it is logged rather than silently resolved by arbitrary order.
func GroupByKey[T Entry](items []T, logger *slog.Logger, kind string) map[string]T {
	grouped := make(map[string]T, len(items))
	for _, item := range items {
		if _, dup := grouped[item.Key()]; dup {
			if logger != nil {
				logger.Warn("duplicate identifier in listing, keeping first",
					"kind", kind,
					"identifier", item.Key(),
				)
			}
			continue
		}
		grouped[item.Key()] = item
	}
	return grouped
}

// Diff computes added/removed/changed between the remote manifest and the
// local entries. Added and changed end up in Fetch; unchanged keys in Keep.
func Diff[R Entry, L Entry](remote map[string]R, local map[string]L) Plan[R] {
	var plan Plan[R]

	for key, identifier := range remote {
		existing, ok := local[key]
		switch {
		case !ok:
			plan.Fetch = append(plan.Fetch, identifier)
		case existing.ContentHash() != identifier.ContentHash():
			plan.Fetch = append(plan.Fetch, identifier)
		default:
			plan.Keep = append(plan.Keep, key)
		}
	}
	for key := range local {
		if _, ok := remote[key]; !ok {
			plan.Removed = append(plan.Removed, key)
		}
	}

	// Deterministic order keeps logs and tests stable.
	sort.Slice(plan.Fetch, func(i, j int) bool { return plan.Fetch[i].Key() < plan.Fetch[j].Key() })
	sort.Strings(plan.Keep)
	sort.Strings(plan.Removed)
	return plan
}

// FetchBodies downloads the bodies for the planned entries with bounded
// parallelism. An individual fetch failure drops that entry from the update
// instead of aborting the whole sync; only context cancellation stops the
// run early.
func FetchBodies[R Entry, B any](
	ctx context.Context,
	plan Plan[R],
	limit int,
	fetch func(ctx context.Context, identifier R) (B, error),
	logger *slog.Logger,
	kind string,
) ([]B, error) {
	if limit <= 0 {
		limit = DefaultFetchLimit
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	var mu sync.Mutex
	bodies := make([]B, 0, len(plan.Fetch))

	for _, identifier := range plan.Fetch {
		g.Go(func() error {
			body, err := fetch(ctx, identifier)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if logger != nil {
					logger.Warn("body fetch failed, dropping entry from update",
						"kind", kind,
						"identifier", identifier.Key(),
						"error", err,
					)
				}
				return nil
			}
			mu.Lock()
			bodies = append(bodies, body)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return bodies, nil
}
