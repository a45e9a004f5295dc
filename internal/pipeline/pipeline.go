// Package pipeline orchestrates one flood update run: fetch, partition,
// resolve, merge, dispatch.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/sync/errgroup"

	"github.com/DevenJnando/flood-notifications-producer/internal/domain"
	"github.com/DevenJnando/flood-notifications-producer/internal/observability"
)

// PolygonFetcher resolves a warning's polygon URL to its GeoJSON document.
type PolygonFetcher interface {
	FloodGeometry(ctx context.Context, flood *domain.FloodWarning) (*geojson.FeatureCollection, error)
}

// StateCache is the per-flood dedup state used to split a batch and to write
// back resolved results.
type StateCache interface {
	PartitionBatch(ctx context.Context, floods []domain.FloodWarning) ([]domain.FloodWarning, []domain.FloodWithPostcodes)
	CacheSeverity(ctx context.Context, floodAreaID string, level domain.SeverityLevel, message string)
	CachePostcodes(ctx context.Context, floodAreaID string, postcodes []string)
}

// Subdivider splits a flood area document into queryable geometry parts.
type Subdivider interface {
	FromFeatureCollection(fc *geojson.FeatureCollection) ([]orb.Geometry, error)
}

// Matcher resolves geometry parts to intersecting postcodes.
type Matcher interface {
	Match(ctx context.Context, floodAreaID string, parts []orb.Geometry) domain.MatchResult
}

// SubscriberDirectory looks up subscribers registered to any of a set of
// postcodes.
type SubscriberDirectory interface {
	SubscribersByPostcodes(ctx context.Context, postcodes []string) ([]domain.Subscriber, error)
}

// Producer publishes one run's notification jobs. Its connection lives for
// one dispatch; the pipeline closes it before the run returns.
type Producer interface {
	PrepareConsumers(ctx context.Context, taskCount int) error
	NotifyAll(ctx context.Context, notifications []domain.Notification) error
	Close() error
}

// ProducerFactory dials a fresh producer for one dispatch.
type ProducerFactory func(ctx context.Context) (Producer, error)

// Pipeline wires the stages of the flood-to-postcode resolution and dispatch
// flow.
type Pipeline struct {
	fetcher     PolygonFetcher
	cache       StateCache
	subdivider  Subdivider
	matcher     Matcher
	subscribers SubscriberDirectory
	newProducer ProducerFactory
	logger      *slog.Logger
	metrics     *observability.Metrics
	concurrency int
	ready       atomic.Bool
}

// New creates a Pipeline with the given stages and observability.
// Concurrency bounds the floods fetched and resolved in parallel.
func New(
	fetcher PolygonFetcher,
	cache StateCache,
	subdivider Subdivider,
	matcher Matcher,
	subscribers SubscriberDirectory,
	newProducer ProducerFactory,
	logger *slog.Logger,
	metrics *observability.Metrics,
	concurrency int,
) *Pipeline {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pipeline{
		fetcher:     fetcher,
		cache:       cache,
		subdivider:  subdivider,
		matcher:     matcher,
		subscribers: subscribers,
		newProducer: newProducer,
		logger:      logger,
		metrics:     metrics,
		concurrency: concurrency,
	}
}

// CheckReadiness returns nil once the pipeline has completed at least one
// run, or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a run yet")
	}
	return nil
}

// Process runs one update batch through the pipeline. The returned result
// list is always valid, possibly partial; per-item failures are reported as
// ResolveError records alongside it. Re-running the same unchanged batch
// after a successful run yields an empty result list.
func (p *Pipeline) Process(ctx context.Context, update domain.FloodUpdate) ([]domain.FloodWithPostcodes, []domain.ResolveError) {
	start := time.Now()
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	var errs []domain.ResolveError

	fetched, fetchErrs := p.fetchGeometries(ctx, update.Items)
	errs = append(errs, fetchErrs...)

	uncached, outdated := p.cache.PartitionBatch(ctx, fetched)
	unchanged := len(fetched) - len(uncached) - len(outdated)
	if unchanged > 0 {
		p.metrics.FloodsUnchanged.Add(float64(unchanged))
	}

	resolved, resolveErrs := p.resolve(ctx, uncached)
	errs = append(errs, resolveErrs...)

	// Changed-but-cached floods re-notify with their previously cached
	// postcode set; only never-seen floods are resolved fresh.
	results := make([]domain.FloodWithPostcodes, 0, len(outdated)+len(resolved))
	results = append(results, outdated...)
	results = append(results, resolved...)

	if len(results) > 0 {
		errs = append(errs, p.dispatch(ctx, results)...)
	}

	for range results {
		p.metrics.FloodsProcessed.Inc()
	}
	p.metrics.ResolveErrors.Add(float64(len(errs)))
	p.metrics.RunDuration.Observe(time.Since(start).Seconds())
	p.ready.Store(true)

	p.logger.Info("flood update processed",
		"items", len(update.Items),
		"uncached", len(uncached),
		"changed_cached", len(outdated),
		"unchanged", unchanged,
		"results", len(results),
		"errors", len(errs),
	)
	return results, errs
}

// fetchGeometries resolves every item's polygon document. Items whose fetch
// fails are dropped from the batch with an error record; siblings continue.
func (p *Pipeline) fetchGeometries(ctx context.Context, items []domain.FloodWarning) ([]domain.FloodWarning, []domain.ResolveError) {
	fetched := make([]domain.FloodWarning, len(items))
	fetchErrs := make([]error, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i := range items {
		g.Go(func() error {
			flood := items[i]
			fc, err := p.fetcher.FloodGeometry(gctx, &flood)
			if err != nil {
				fetchErrs[i] = err
				return nil
			}
			flood.Geometry = fc
			fetched[i] = flood
			return nil
		})
	}
	_ = g.Wait()

	var ok []domain.FloodWarning
	var errs []domain.ResolveError
	for i, flood := range items {
		if fetchErrs[i] != nil {
			errs = append(errs, domain.ResolveError{
				FloodAreaID: flood.FloodAreaID,
				Stage:       "fetch",
				Err:         fetchErrs[i],
			})
			continue
		}
		ok = append(ok, fetched[i])
	}
	return ok, errs
}

// resolve runs subdivision and spatial matching for every never-seen flood.
// Severity is cached before resolution so a crash mid-run cannot cause
// duplicate notification when the same trigger retries. Postcode sets are
// cached only when resolution was complete.
func (p *Pipeline) resolve(ctx context.Context, uncached []domain.FloodWarning) ([]domain.FloodWithPostcodes, []domain.ResolveError) {
	var mu sync.Mutex
	var results []domain.FloodWithPostcodes
	var errs []domain.ResolveError

	record := func(result *domain.FloodWithPostcodes, itemErrs ...domain.ResolveError) {
		mu.Lock()
		defer mu.Unlock()
		if result != nil {
			results = append(results, *result)
		}
		errs = append(errs, itemErrs...)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for _, flood := range uncached {
		g.Go(func() error {
			p.cache.CacheSeverity(gctx, flood.FloodAreaID, flood.SeverityLevel, flood.Severity)

			parts, err := p.subdivider.FromFeatureCollection(flood.Geometry)
			if err != nil {
				record(nil, domain.ResolveError{
					FloodAreaID: flood.FloodAreaID,
					Stage:       "subdivide",
					Err:         &domain.GeometryDecodeError{FloodAreaID: flood.FloodAreaID, Err: err},
				})
				return nil
			}

			match := p.matcher.Match(gctx, flood.FloodAreaID, parts)
			postcodes := match.PostcodeSet()
			p.metrics.PostcodesPerFlood.Observe(float64(len(postcodes)))

			var itemErrs []domain.ResolveError
			if match.Incomplete {
				// An incomplete set still notifies, but is never written
				// back, so the next run resolves this flood again.
				for _, qerr := range match.Errs {
					itemErrs = append(itemErrs, domain.ResolveError{
						FloodAreaID: flood.FloodAreaID,
						Stage:       "match",
						Err:         qerr,
					})
				}
			} else {
				p.cache.CachePostcodes(gctx, flood.FloodAreaID, postcodes)
			}

			record(&domain.FloodWithPostcodes{Flood: flood, Postcodes: postcodes}, itemErrs...)
			return nil
		})
	}
	_ = g.Wait()

	return results, errs
}

// dispatch assembles notifications and hands them to a run-scoped producer.
func (p *Pipeline) dispatch(ctx context.Context, results []domain.FloodWithPostcodes) []domain.ResolveError {
	var errs []domain.ResolveError
	var notifications []domain.Notification
	var taskCount int

	for _, result := range results {
		subscribers, err := p.subscribers.SubscribersByPostcodes(ctx, result.Postcodes)
		if err != nil {
			errs = append(errs, domain.ResolveError{
				FloodAreaID: result.Flood.FloodAreaID,
				Stage:       "dispatch",
				Err:         err,
			})
			continue
		}
		if len(subscribers) == 0 {
			continue
		}
		notifications = append(notifications, domain.Notification{
			Flood:       result.Flood,
			Subscribers: subscribers,
		})
		taskCount += len(subscribers)
	}

	if len(notifications) == 0 {
		return errs
	}

	producer, err := p.newProducer(ctx)
	if err != nil {
		errs = append(errs, domain.ResolveError{Stage: "dispatch", Err: err})
		return errs
	}
	defer func() {
		if err := producer.Close(); err != nil {
			p.logger.Warn("producer close failed", "error", err)
		}
	}()

	if err := producer.PrepareConsumers(ctx, taskCount); err != nil {
		errs = append(errs, domain.ResolveError{Stage: "dispatch", Err: err})
		return errs
	}
	if err := producer.NotifyAll(ctx, notifications); err != nil {
		errs = append(errs, domain.ResolveError{Stage: "dispatch", Err: err})
	}
	return errs
}
