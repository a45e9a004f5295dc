// Package cache tracks per-flood severity and postcode state in Redis so
// unchanged warnings are not reprocessed between runs.
//
// Availability wins over correctness here: when the backing store is
// unreachable every operation degrades to "not cached" or a no-op, and the
// pipeline redundantly re-resolves floods rather than failing the run.
package cache

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/DevenJnando/flood-notifications-producer/internal/domain"
	"github.com/DevenJnando/flood-notifications-producer/internal/observability"
)

// TTL is how long a flood's cached state lives once its warning is no longer
// in force. Entries for active warnings persist indefinitely.
const TTL = 86400 * time.Second

// Commands is the slice of the Redis API the cache depends on. *redis.Client
// satisfies it; tests use an in-memory fake.
type Commands interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	SAdd(ctx context.Context, key string, members ...any) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Persist(ctx context.Context, key string) *redis.BoolCmd
}

// Cache is the flood state cache. Each flood id owns two keys: a severity
// hash (fields severity, severityLevel) and a postcode set. The two keys
// move between expiring and persistent together.
type Cache struct {
	client          Commands
	severitySuffix  string
	postcodesSuffix string
	logger          *slog.Logger
	metrics         *observability.Metrics
}

// New creates a Cache over the given Redis commands. A nil client yields a
// permanently degraded cache that reports nothing as cached.
func New(client Commands, severitySuffix, postcodesSuffix string, logger *slog.Logger, metrics *observability.Metrics) *Cache {
	return &Cache{
		client:          client,
		severitySuffix:  severitySuffix,
		postcodesSuffix: postcodesSuffix,
		logger:          logger,
		metrics:         metrics,
	}
}

func (c *Cache) severityKey(floodAreaID string) string {
	return floodAreaID + c.severitySuffix
}

func (c *Cache) postcodesKey(floodAreaID string) string {
	return floodAreaID + c.postcodesSuffix
}

// SeverityCached reports whether a severity entry exists for the flood.
func (c *Cache) SeverityCached(ctx context.Context, floodAreaID string) bool {
	return c.exists(ctx, "severity", c.severityKey(floodAreaID))
}

// PostcodesCached reports whether a postcode entry exists for the flood.
func (c *Cache) PostcodesCached(ctx context.Context, floodAreaID string) bool {
	return c.exists(ctx, "postcodes", c.postcodesKey(floodAreaID))
}

func (c *Cache) exists(ctx context.Context, kind, key string) bool {
	if c.client == nil {
		c.metrics.CacheUnavailable.Inc()
		return false
	}
	n, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		c.degraded(err)
		return false
	}
	if n == 0 {
		c.metrics.CacheLookups.WithLabelValues(kind, "miss").Inc()
		return false
	}
	c.metrics.CacheLookups.WithLabelValues(kind, "hit").Inc()
	return true
}

// SeverityChanged compares the supplied severity against the cached entry.
// With no cached entry it reports true and writes nothing; the caller must
// resolve the flood fresh and cache it. On a genuine change the new severity
// is written as a side effect and the expiry policy updates: leaving
// "no longer in force" persists both keys, entering it expires both.
func (c *Cache) SeverityChanged(ctx context.Context, floodAreaID string, level domain.SeverityLevel, message string) bool {
	if c.client == nil {
		c.metrics.CacheUnavailable.Inc()
		return true
	}
	cached, err := c.client.HGetAll(ctx, c.severityKey(floodAreaID)).Result()
	if err != nil {
		c.degraded(err)
		return true
	}
	if len(cached) == 0 {
		return true
	}

	cachedLevel, _ := strconv.Atoi(cached["severityLevel"])
	if domain.SeverityLevel(cachedLevel) == level && cached["severity"] == message {
		return false
	}

	c.CacheSeverity(ctx, floodAreaID, level, message)
	if domain.SeverityLevel(cachedLevel) == domain.NoLongerInForce {
		c.persistBoth(ctx, floodAreaID)
	}
	if level == domain.NoLongerInForce {
		c.expireBoth(ctx, floodAreaID)
	}
	return true
}

// CacheSeverity unconditionally writes the flood's severity entry.
func (c *Cache) CacheSeverity(ctx context.Context, floodAreaID string, level domain.SeverityLevel, message string) {
	if c.client == nil {
		c.metrics.CacheUnavailable.Inc()
		return
	}
	err := c.client.HSet(ctx, c.severityKey(floodAreaID),
		"severity", message,
		"severityLevel", int(level),
	).Err()
	if err != nil {
		c.degraded(err)
	}
}

// CachePostcodes unconditionally writes the flood's postcode set.
func (c *Cache) CachePostcodes(ctx context.Context, floodAreaID string, postcodes []string) {
	if c.client == nil || len(postcodes) == 0 {
		if c.client == nil {
			c.metrics.CacheUnavailable.Inc()
		}
		return
	}
	members := make([]any, len(postcodes))
	for i, p := range postcodes {
		members[i] = p
	}
	if err := c.client.SAdd(ctx, c.postcodesKey(floodAreaID), members...).Err(); err != nil {
		c.degraded(err)
	}
}

// Postcodes returns the cached postcode set for a flood, nil when absent or
// the cache is down.
func (c *Cache) Postcodes(ctx context.Context, floodAreaID string) []string {
	if c.client == nil {
		c.metrics.CacheUnavailable.Inc()
		return nil
	}
	postcodes, err := c.client.SMembers(ctx, c.postcodesKey(floodAreaID)).Result()
	if err != nil {
		c.degraded(err)
		return nil
	}
	return postcodes
}

// PartitionBatch splits an incoming batch into floods never seen before,
// which need full resolution, and floods whose cached severity changed,
// paired with their previously cached postcode set.
//
// A severity change alone does not trigger postcode re-resolution: the cached
// set is carried forward because flood-area geometry is stable between runs.
// Unchanged floods appear in neither list and are dropped from processing.
func (c *Cache) PartitionBatch(ctx context.Context, floods []domain.FloodWarning) ([]domain.FloodWarning, []domain.FloodWithPostcodes) {
	var uncached []domain.FloodWarning
	var outdated []domain.FloodWithPostcodes

	for _, flood := range floods {
		if !c.SeverityCached(ctx, flood.FloodAreaID) {
			uncached = append(uncached, flood)
			continue
		}
		if !c.SeverityChanged(ctx, flood.FloodAreaID, flood.SeverityLevel, flood.Severity) {
			continue
		}
		outdated = append(outdated, domain.FloodWithPostcodes{
			Flood:     flood,
			Postcodes: c.Postcodes(ctx, flood.FloodAreaID),
		})
	}
	return uncached, outdated
}

func (c *Cache) expireBoth(ctx context.Context, floodAreaID string) {
	if err := c.client.Expire(ctx, c.severityKey(floodAreaID), TTL).Err(); err != nil {
		c.degraded(err)
	}
	if err := c.client.Expire(ctx, c.postcodesKey(floodAreaID), TTL).Err(); err != nil {
		c.degraded(err)
	}
}

func (c *Cache) persistBoth(ctx context.Context, floodAreaID string) {
	if err := c.client.Persist(ctx, c.severityKey(floodAreaID)).Err(); err != nil {
		c.degraded(err)
	}
	if err := c.client.Persist(ctx, c.postcodesKey(floodAreaID)).Err(); err != nil {
		c.degraded(err)
	}
}

func (c *Cache) degraded(err error) {
	c.metrics.CacheUnavailable.Inc()
	c.logger.Warn("flood state cache unavailable", "error", err)
}
