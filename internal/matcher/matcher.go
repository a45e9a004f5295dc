// Package matcher resolves flood geometries to intersecting postcodes across
// the sharded spatial store.
package matcher

import (
	"context"
	"log/slog"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/sync/errgroup"

	"github.com/DevenJnando/flood-notifications-producer/internal/domain"
)

// Store is the sharded spatial store the matcher fans out over.
type Store interface {
	ShardKeys(ctx context.Context) ([]domain.ShardDescriptor, error)
	AreasIntersecting(ctx context.Context, shard domain.ShardDescriptor, geom *geojson.Geometry) ([]domain.AreaMatch, error)
	DistrictsIntersecting(ctx context.Context, areaCode string, geom *geojson.Geometry) ([]domain.DistrictMatch, error)
	PostcodesIntersecting(ctx context.Context, areaCode, district string, geom *geojson.Geometry) ([]domain.PostcodeMatch, error)
}

// Matcher runs the three-level area, district, postcode match for one flood.
type Matcher struct {
	store       Store
	logger      *slog.Logger
	concurrency int
}

// New creates a Matcher. Concurrency bounds the geometry parts walked in
// parallel per flood.
func New(store Store, logger *slog.Logger, concurrency int) *Matcher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Matcher{store: store, logger: logger, concurrency: concurrency}
}

// Match resolves every postcode intersecting any of the flood's geometry
// parts. Geometry parts fan out concurrently; within a part, shards are
// walked one at a time and a per-part exhausted-district set keeps each
// distinct district from being queried more than once against that part.
//
// A failed query contributes nothing but never aborts sibling shards, areas
// or districts; the result is marked incomplete instead so callers do not
// cache a partial postcode set as authoritative. Only a shard map failure is
// fatal, since without the shard list nothing can be matched at all.
func (m *Matcher) Match(ctx context.Context, floodAreaID string, parts []orb.Geometry) domain.MatchResult {
	result := domain.MatchResult{FloodAreaID: floodAreaID}

	shards, err := m.store.ShardKeys(ctx)
	if err != nil {
		result.Incomplete = true
		result.Errs = append(result.Errs, err)
		return result
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)

	for _, part := range parts {
		g.Go(func() error {
			matches, errs := m.matchPart(gctx, shards, part)
			mu.Lock()
			defer mu.Unlock()
			result.Postcodes = append(result.Postcodes, matches...)
			result.Errs = append(result.Errs, errs...)
			return nil
		})
	}
	// Workers never return errors; failures are collected per query.
	_ = g.Wait()

	result.Incomplete = len(result.Errs) > 0
	result.Postcodes = dedupeByPostcode(result.Postcodes)

	m.logger.Debug("spatial match complete",
		"flood_area_id", floodAreaID,
		"geometry_parts", len(parts),
		"postcodes", len(result.Postcodes),
		"incomplete", result.Incomplete,
	)
	return result
}

// matchPart walks area, district, postcode for one geometry part across all
// shards.
func (m *Matcher) matchPart(ctx context.Context, shards []domain.ShardDescriptor, part orb.Geometry) ([]domain.PostcodeMatch, []error) {
	geom := geojson.NewGeometry(part)
	exhausted := make(map[string]struct{})

	var matches []domain.PostcodeMatch
	var errs []error

	for _, shard := range shards {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			return matches, errs
		}

		areas, err := m.store.AreasIntersecting(ctx, shard, geom)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		for _, area := range areas {
			if area.AreaCode == "" {
				continue
			}

			districts, err := m.store.DistrictsIntersecting(ctx, area.AreaCode, geom)
			if err != nil {
				errs = append(errs, err)
				continue
			}

			for _, district := range districts {
				if district.Name == "" {
					continue
				}
				if _, done := exhausted[district.Name]; done {
					continue
				}
				exhausted[district.Name] = struct{}{}

				areaCode := domain.DistrictAreaCode(district.Name)
				postcodes, err := m.store.PostcodesIntersecting(ctx, areaCode, district.Name, geom)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				matches = append(matches, postcodes...)
			}
		}
	}
	return matches, errs
}

// dedupeByPostcode collapses duplicates from overlapping geometry parts or
// districts; identity is the postcode code, first match wins.
func dedupeByPostcode(matches []domain.PostcodeMatch) []domain.PostcodeMatch {
	seen := make(map[string]struct{}, len(matches))
	out := make([]domain.PostcodeMatch, 0, len(matches))
	for _, match := range matches {
		if _, ok := seen[match.Postcode]; ok {
			continue
		}
		seen[match.Postcode] = struct{}{}
		out = append(out, match)
	}
	return out
}
