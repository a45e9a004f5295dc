package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DevenJnando/flood-notifications-producer/internal/domain"
	"github.com/DevenJnando/flood-notifications-producer/internal/observability"
)

// fakeRedis implements Commands in memory and records expiry transitions.
type fakeRedis struct {
	hashes    map[string]map[string]string
	sets      map[string][]string
	expired   map[string]time.Duration
	persisted map[string]bool
	err       error // when set, every command fails
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		hashes:    make(map[string]map[string]string),
		sets:      make(map[string][]string),
		expired:   make(map[string]time.Duration),
		persisted: make(map[string]bool),
	}
}

func (f *fakeRedis) Exists(_ context.Context, keys ...string) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	var n int64
	for _, key := range keys {
		if _, ok := f.hashes[key]; ok {
			n++
		} else if _, ok := f.sets[key]; ok {
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) HSet(_ context.Context, key string, values ...any) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	hash, ok := f.hashes[key]
	if !ok {
		hash = make(map[string]string)
		f.hashes[key] = hash
	}
	for i := 0; i+1 < len(values); i += 2 {
		hash[fmt.Sprint(values[i])] = fmt.Sprint(values[i+1])
	}
	return redis.NewIntResult(int64(len(values) / 2), nil)
}

func (f *fakeRedis) HGetAll(_ context.Context, key string) *redis.MapStringStringCmd {
	if f.err != nil {
		return redis.NewMapStringStringResult(nil, f.err)
	}
	return redis.NewMapStringStringResult(f.hashes[key], nil)
}

func (f *fakeRedis) SAdd(_ context.Context, key string, members ...any) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	for _, member := range members {
		f.sets[key] = append(f.sets[key], fmt.Sprint(member))
	}
	return redis.NewIntResult(int64(len(members)), nil)
}

func (f *fakeRedis) SMembers(_ context.Context, key string) *redis.StringSliceCmd {
	if f.err != nil {
		return redis.NewStringSliceResult(nil, f.err)
	}
	return redis.NewStringSliceResult(f.sets[key], nil)
}

func (f *fakeRedis) Expire(_ context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	f.expired[key] = expiration
	delete(f.persisted, key)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Persist(_ context.Context, key string) *redis.BoolCmd {
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	f.persisted[key] = true
	delete(f.expired, key)
	return redis.NewBoolResult(true, nil)
}

func newTestCache(client Commands) *Cache {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(client, ":severity", ":postcodes", logger, observability.NewMetricsForTesting())
}

func TestSeverityChanged(t *testing.T) {
	ctx := context.Background()

	t.Run("nothing cached treats as changed without writing", func(t *testing.T) {
		fake := newFakeRedis()
		c := newTestCache(fake)

		assert.True(t, c.SeverityChanged(ctx, "064FWF4660", domain.FloodAlert, "Flood Alert"))
		assert.Empty(t, fake.hashes)
	})

	t.Run("identical severity is unchanged", func(t *testing.T) {
		fake := newFakeRedis()
		c := newTestCache(fake)
		c.CacheSeverity(ctx, "064FWF4660", domain.FloodAlert, "Flood Alert")

		assert.False(t, c.SeverityChanged(ctx, "064FWF4660", domain.FloodAlert, "Flood Alert"))
		assert.Equal(t, "3", fake.hashes["064FWF4660:severity"]["severityLevel"])
	})

	t.Run("message change alone is a change", func(t *testing.T) {
		fake := newFakeRedis()
		c := newTestCache(fake)
		c.CacheSeverity(ctx, "064FWF4660", domain.FloodAlert, "Flood Alert")

		assert.True(t, c.SeverityChanged(ctx, "064FWF4660", domain.FloodAlert, "River levels rising"))
		assert.Equal(t, "River levels rising", fake.hashes["064FWF4660:severity"]["severity"])
	})

	t.Run("moving to no-longer-in-force expires both keys", func(t *testing.T) {
		fake := newFakeRedis()
		c := newTestCache(fake)
		c.CacheSeverity(ctx, "011FWFNC50A", domain.FloodAlert, "Flood Alert")
		c.CachePostcodes(ctx, "011FWFNC50A", []string{"NE1 4EE"})

		changed := c.SeverityChanged(ctx, "011FWFNC50A", domain.NoLongerInForce, "Warning no longer in force")

		require.True(t, changed)
		assert.Equal(t, "4", fake.hashes["011FWFNC50A:severity"]["severityLevel"])
		assert.Equal(t, "Warning no longer in force", fake.hashes["011FWFNC50A:severity"]["severity"])
		assert.Equal(t, TTL, fake.expired["011FWFNC50A:severity"])
		assert.Equal(t, TTL, fake.expired["011FWFNC50A:postcodes"])
	})

	t.Run("moving away from no-longer-in-force persists both keys", func(t *testing.T) {
		fake := newFakeRedis()
		c := newTestCache(fake)
		c.CacheSeverity(ctx, "011FWFNC50A", domain.NoLongerInForce, "Warning no longer in force")
		c.CachePostcodes(ctx, "011FWFNC50A", []string{"NE1 4EE"})
		fake.expired["011FWFNC50A:severity"] = TTL
		fake.expired["011FWFNC50A:postcodes"] = TTL

		changed := c.SeverityChanged(ctx, "011FWFNC50A", domain.FloodWarningLevel, "Flood Warning")

		require.True(t, changed)
		assert.True(t, fake.persisted["011FWFNC50A:severity"])
		assert.True(t, fake.persisted["011FWFNC50A:postcodes"])
		assert.NotContains(t, fake.expired, "011FWFNC50A:severity")
		assert.NotContains(t, fake.expired, "011FWFNC50A:postcodes")
	})
}

func TestCachePostcodes(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	c := newTestCache(fake)

	c.CachePostcodes(ctx, "064FWF4660", []string{"NE1 4EE", "NE2 1AB"})

	assert.True(t, c.PostcodesCached(ctx, "064FWF4660"))
	assert.ElementsMatch(t, []string{"NE1 4EE", "NE2 1AB"}, c.Postcodes(ctx, "064FWF4660"))
}

func TestCachePostcodes_EmptySetWritesNothing(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	c := newTestCache(fake)

	c.CachePostcodes(ctx, "064FWF4660", nil)

	assert.False(t, c.PostcodesCached(ctx, "064FWF4660"))
}

func TestPartitionBatch(t *testing.T) {
	ctx := context.Background()

	flood := func(id string, level domain.SeverityLevel, severity string) domain.FloodWarning {
		return domain.FloodWarning{FloodAreaID: id, SeverityLevel: level, Severity: severity}
	}

	t.Run("unseen and unchanged floods", func(t *testing.T) {
		fake := newFakeRedis()
		c := newTestCache(fake)
		c.CacheSeverity(ctx, "064FWF4660", domain.FloodAlert, "Flood Alert")

		uncached, outdated := c.PartitionBatch(ctx, []domain.FloodWarning{
			flood("28A739E", domain.FloodWarningLevel, "Flood Warning"),
			flood("064FWF4660", domain.FloodAlert, "Flood Alert"),
		})

		require.Len(t, uncached, 1)
		assert.Equal(t, "28A739E", uncached[0].FloodAreaID)
		assert.Empty(t, outdated, "unchanged cached flood must be dropped")
	})

	t.Run("changed flood carries its cached postcode set", func(t *testing.T) {
		fake := newFakeRedis()
		c := newTestCache(fake)
		c.CacheSeverity(ctx, "064FWF4660", domain.FloodAlert, "Flood Alert")
		c.CachePostcodes(ctx, "064FWF4660", []string{"NE1 4EE"})

		uncached, outdated := c.PartitionBatch(ctx, []domain.FloodWarning{
			flood("064FWF4660", domain.SevereFloodWarning, "Severe Flood Warning"),
		})

		assert.Empty(t, uncached)
		require.Len(t, outdated, 1)
		assert.Equal(t, "064FWF4660", outdated[0].Flood.FloodAreaID)
		assert.Equal(t, []string{"NE1 4EE"}, outdated[0].Postcodes)
	})
}

func TestDegradedCache(t *testing.T) {
	ctx := context.Background()

	t.Run("backing store errors", func(t *testing.T) {
		fake := newFakeRedis()
		fake.err = errors.New("connection refused")
		c := newTestCache(fake)

		assert.False(t, c.SeverityCached(ctx, "064FWF4660"))
		assert.False(t, c.PostcodesCached(ctx, "064FWF4660"))
		assert.True(t, c.SeverityChanged(ctx, "064FWF4660", domain.FloodAlert, "Flood Alert"))
		assert.Nil(t, c.Postcodes(ctx, "064FWF4660"))

		// Writes are silent no-ops.
		c.CacheSeverity(ctx, "064FWF4660", domain.FloodAlert, "Flood Alert")
		c.CachePostcodes(ctx, "064FWF4660", []string{"NE1 4EE"})

		uncached, outdated := c.PartitionBatch(ctx, []domain.FloodWarning{
			{FloodAreaID: "064FWF4660", SeverityLevel: domain.FloodAlert, Severity: "Flood Alert"},
		})
		assert.Len(t, uncached, 1, "degraded cache treats every flood as unseen")
		assert.Empty(t, outdated)
	})

	t.Run("nil client", func(t *testing.T) {
		c := newTestCache(nil)

		assert.False(t, c.SeverityCached(ctx, "064FWF4660"))
		assert.True(t, c.SeverityChanged(ctx, "064FWF4660", domain.FloodAlert, "Flood Alert"))
		c.CacheSeverity(ctx, "064FWF4660", domain.FloodAlert, "Flood Alert")
		c.CachePostcodes(ctx, "064FWF4660", []string{"NE1 4EE"})
		assert.Nil(t, c.Postcodes(ctx, "064FWF4660"))
	})
}
