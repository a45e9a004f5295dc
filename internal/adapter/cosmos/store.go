// Package cosmos adapts the horizontally sharded Cosmos DB postcode store.
//
// Each shard is one Cosmos database owning a disjoint slice of the postal
// geography. A shard named "ne-postcodes-0" exposes an area container under
// the "ne" prefix; district and full-postcode containers hang off the area
// code instead, so district matches route across shard boundaries.
package cosmos

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"
	"github.com/paulmach/orb/geojson"

	"github.com/DevenJnando/flood-notifications-producer/internal/config"
	"github.com/DevenJnando/flood-notifications-producer/internal/domain"
	"github.com/DevenJnando/flood-notifications-producer/internal/observability"
)

// Store queries the shard map and the per-shard spatial containers.
// It is safe for concurrent use; the underlying client is read-only here.
type Store struct {
	client  *azcosmos.Client
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewStore creates a spatial store client against the configured endpoint.
func NewStore(cfg *config.Config, cred azcore.TokenCredential, logger *slog.Logger, metrics *observability.Metrics) (*Store, error) {
	client, err := azcosmos.NewClient(cfg.CosmosEndpoint, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("create cosmos client: %w", err)
	}
	return &Store{client: client, cfg: cfg, logger: logger, metrics: metrics}, nil
}

// ShardKeys lists every shard of the postcode store from the shard map.
// Topology may change between runs, so results are never cached.
func (s *Store) ShardKeys(ctx context.Context) ([]domain.ShardDescriptor, error) {
	container, err := s.client.NewContainer(s.cfg.ShardMapDatabase, s.cfg.ShardMapContainer)
	if err != nil {
		return nil, s.queryErr("shardmap", s.cfg.ShardMapDatabase, "", err)
	}

	pager := container.NewQueryItemsPager(shardMapQuery, azcosmos.NewPartitionKey(), nil)
	var shards []domain.ShardDescriptor
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, s.queryErr("shardmap", s.cfg.ShardMapDatabase, "", err)
		}
		for _, raw := range page.Items {
			var shard domain.ShardDescriptor
			if err := json.Unmarshal(raw, &shard); err != nil {
				return nil, s.queryErr("shardmap", s.cfg.ShardMapDatabase, "", err)
			}
			shard.PartitionKey = shardPrefix(shard.DatabaseName)
			shards = append(shards, shard)
		}
	}
	s.metrics.SpatialQueries.WithLabelValues("shardmap", "success").Inc()
	return shards, nil
}

// AreasIntersecting returns every postcode area in the shard whose geometry
// intersects geom. The area container is partition-scoped on the shard prefix.
func (s *Store) AreasIntersecting(ctx context.Context, shard domain.ShardDescriptor, geom *geojson.Geometry) ([]domain.AreaMatch, error) {
	containerName := shard.PartitionKey + s.cfg.AreaContainerSuffix
	container, err := s.client.NewContainer(shard.DatabaseName, containerName)
	if err != nil {
		return nil, s.queryErr("area", shard.DatabaseName, "", err)
	}

	opts := &azcosmos.QueryOptions{
		QueryParameters: []azcosmos.QueryParameter{{Name: "@geometry", Value: geom}},
	}
	pager := container.NewQueryItemsPager(areaIntersectsQuery, azcosmos.NewPartitionKeyString(shard.PartitionKey), opts)

	var matches []domain.AreaMatch
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, s.queryErr("area", shard.DatabaseName, "", err)
		}
		for _, raw := range page.Items {
			var doc spatialDocument
			if err := json.Unmarshal(raw, &doc); err != nil {
				return nil, s.queryErr("area", shard.DatabaseName, "", err)
			}
			match := domain.AreaMatch{AreaCode: doc.AreaCode}
			if len(doc.Features) > 0 {
				match.Geometry = geojson.NewGeometry(doc.Features[0].Geometry)
			}
			matches = append(matches, match)
		}
	}
	s.metrics.SpatialQueries.WithLabelValues("area", "success").Inc()
	return matches, nil
}

// DistrictsIntersecting returns every district of an area whose geometry
// intersects geom. District containers span partitions, so the query is
// cross-partition.
func (s *Store) DistrictsIntersecting(ctx context.Context, areaCode string, geom *geojson.Geometry) ([]domain.DistrictMatch, error) {
	database := areaCode + s.cfg.PostcodeDatabaseSuffix
	container, err := s.client.NewContainer(database, areaCode+s.cfg.DistrictContainerSuffix)
	if err != nil {
		return nil, s.queryErr("district", database, areaCode, err)
	}

	opts := &azcosmos.QueryOptions{
		QueryParameters: []azcosmos.QueryParameter{{Name: "@geometry", Value: geom}},
	}
	pager := container.NewQueryItemsPager(districtIntersectsQuery, azcosmos.NewPartitionKey(), opts)

	var matches []domain.DistrictMatch
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, s.queryErr("district", database, areaCode, err)
		}
		for _, raw := range page.Items {
			var doc spatialDocument
			if err := json.Unmarshal(raw, &doc); err != nil {
				return nil, s.queryErr("district", database, areaCode, err)
			}
			matches = append(matches, domain.DistrictMatch{Name: doc.District})
		}
	}
	s.metrics.SpatialQueries.WithLabelValues("district", "success").Inc()
	return matches, nil
}

// PostcodesIntersecting returns every full postcode of a district whose
// geometry intersects geom, partition-scoped on the district name.
func (s *Store) PostcodesIntersecting(ctx context.Context, areaCode, district string, geom *geojson.Geometry) ([]domain.PostcodeMatch, error) {
	database := areaCode + s.cfg.PostcodeDatabaseSuffix
	container, err := s.client.NewContainer(database, areaCode+s.cfg.FullPostcodeContainerSuffix)
	if err != nil {
		return nil, s.queryErr("postcode", database, district, err)
	}

	opts := &azcosmos.QueryOptions{
		QueryParameters: []azcosmos.QueryParameter{{Name: "@geometry", Value: geom}},
	}
	pager := container.NewQueryItemsPager(districtIntersectsQuery, azcosmos.NewPartitionKeyString(district), opts)

	var matches []domain.PostcodeMatch
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, s.queryErr("postcode", database, district, err)
		}
		for _, raw := range page.Items {
			var doc spatialDocument
			if err := json.Unmarshal(raw, &doc); err != nil {
				return nil, s.queryErr("postcode", database, district, err)
			}
			if len(doc.Features) == 0 {
				continue
			}
			feature := doc.Features[0]
			matches = append(matches, domain.PostcodeMatch{
				Postcode: feature.Properties.MustString("postcodes", ""),
				Feature:  feature,
			})
		}
	}
	s.metrics.SpatialQueries.WithLabelValues("postcode", "success").Inc()
	return matches, nil
}

func (s *Store) queryErr(level, database, scope string, err error) error {
	s.metrics.SpatialQueries.WithLabelValues(level, "error").Inc()
	s.logger.Warn("spatial query failed", "level", level, "database", database, "scope", scope, "error", err)
	return &domain.SpatialQueryError{Level: level, Database: database, Scope: scope, Err: err}
}

// spatialDocument is the projection shared by all three query levels.
type spatialDocument struct {
	ID       string             `json:"id"`
	AreaCode string             `json:"areaCode,omitempty"`
	District string             `json:"district,omitempty"`
	Features []*geojson.Feature `json:"features"`
}

// shardPrefix is the partition-key prefix of a shard database name:
// everything before the first dash.
func shardPrefix(databaseName string) string {
	prefix, _, _ := strings.Cut(databaseName, "-")
	return prefix
}
