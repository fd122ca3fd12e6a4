package services

import (
	"context"
	"time"

	"github.com/calificaprofe/calificaprofe-api/config"
	"github.com/calificaprofe/calificaprofe-api/internal/cache"
	"github.com/calificaprofe/calificaprofe-api/internal/models"
	"github.com/calificaprofe/calificaprofe-api/internal/repository"
	"github.com/calificaprofe/calificaprofe-api/pkg/logger"
	"github.com/calificaprofe/calificaprofe-api/pkg/metrics"
	"github.com/calificaprofe/calificaprofe-api/pkg/retry"
	"go.uber.org/zap"
)

const (
	listingOperation = "teacher_listing"
	filtersOperation = "teacher_filters"
)

// ListingOptions tunes the listing service
type ListingOptions struct {
	// Plan bounds every remote query
	Plan retry.Plan
	// RevalidateAfter is how long the remote query may run before a cached
	// page is served in its place
	RevalidateAfter time.Duration
	DefaultPageSize int
	Now             func() time.Time
}

// ListingOptionsFromConfig builds ListingOptions from configuration
func ListingOptionsFromConfig(cfg config.ListingConfig) ListingOptions {
	return ListingOptions{
		Plan: retry.Plan{
			MaxAttempts: cfg.MaxAttempts,
			Timeout:     retry.LinearTimeout(cfg.TimeoutBase, cfg.TimeoutStep),
			Backoff:     retry.LinearBackoff(cfg.BackoffStep),
		},
		RevalidateAfter: cfg.RevalidateAfter,
		DefaultPageSize: cfg.DefaultPageSize,
	}
}

type listingPage struct {
	rows  []models.TeacherSummary
	total int
}

// ListingService serves the teacher listing with stale-while-revalidate:
// the remote query races a short timer, a cached page is served when the
// timer wins, and the fresh page follows once the query completes.
type ListingService struct {
	source repository.TeacherDataSource
	cache  *cache.ListingCache
	opts   ListingOptions
}

// NewListingService creates a ListingService
func NewListingService(source repository.TeacherDataSource, listingCache *cache.ListingCache, opts ListingOptions) *ListingService {
	if opts.Plan.MaxAttempts < 1 {
		opts.Plan = retry.ListingPlan()
	}
	if opts.Plan.Retryable == nil {
		opts.Plan.Retryable = func(err error) bool { return !repository.IsDefinitive(err) }
	}
	if opts.DefaultPageSize < 1 {
		opts.DefaultPageSize = models.DefaultPageSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger.Debug("Listing fetch plan",
		zap.Int("max_attempts", opts.Plan.MaxAttempts),
		zap.Durations("backoffs", retry.Backoffs(opts.Plan)),
		zap.Duration("revalidate_after", opts.RevalidateAfter))
	return &ListingService{source: source, cache: listingCache, opts: opts}
}

// GetListing returns the first renderable snapshot for q.
//
// When the snapshot came from the cache while the remote query is still
// running, Loading is set and the returned channel delivers the fresh
// snapshot if the query succeeds. The channel is always closed eventually.
//
// When the remote query fails and there is no cached page, an empty
// snapshot is returned together with the error.
func (s *ListingService) GetListing(ctx context.Context, q models.ListingQuery) (*models.ListingSnapshot, <-chan models.ListingSnapshot, error) {
	q = q.Normalize(s.opts.DefaultPageSize)
	key := q.CacheKey()

	// The query outlives the request and refreshes the cache on its own, so a
	// slow answer is kept even when nobody is waiting for it
	remote := retry.Go(context.WithoutCancel(ctx), func(c context.Context) (listingPage, error) {
		page, err := retry.Do(c, listingOperation, s.opts.Plan, func(c context.Context) (listingPage, error) {
			rows, total, err := s.source.Query(c, q)
			return listingPage{rows: rows, total: total}, err
		})
		if err == nil {
			s.cache.Write(c, key, page.rows, page.total)
		}
		return page, err
	})

	revalidate, stop := retry.After[listingPage](s.opts.RevalidateAfter)
	defer stop()

	winner, res, err := retry.Race(ctx, remote, revalidate)
	switch winner {
	case 0:
		snap, err := s.settle(ctx, key, res, err)
		return snap, closed(), err

	case 1:
		entry, ok := s.cache.Read(ctx, key)
		if !ok || s.cache.IsStale(entry) {
			logger.Debug("No fresh cached listing, waiting for remote", zap.String("key", key))
			res, err := remote.Await(ctx)
			snap, err := s.settle(ctx, key, res, err)
			return snap, closed(), err
		}

		snap := s.cachedSnapshot(entry)
		snap.Loading = true
		metrics.ListingServed.WithLabelValues(string(models.SourceCache)).Inc()
		logger.Info("Serving cached listing while revalidating",
			zap.String("key", key),
			zap.Int("rows", len(snap.Rows)))

		updates := make(chan models.ListingSnapshot, 1)
		go func() {
			defer close(updates)
			res, err := remote.Await(context.Background())
			if err != nil {
				logger.Warn("Listing revalidation failed, keeping cached page",
					zap.String("key", key),
					zap.Error(err))
				return
			}
			metrics.ListingServed.WithLabelValues(string(models.SourceRemote)).Inc()
			updates <- s.remoteSnapshot(res)
		}()
		return &snap, updates, nil

	default:
		return nil, closed(), err
	}
}

// settle turns the remote outcome into the snapshot to serve, falling back to
// any cached page (fresh or not) when the query failed. A successful page has
// already been written by the query itself.
func (s *ListingService) settle(ctx context.Context, key string, res listingPage, err error) (*models.ListingSnapshot, error) {
	if err == nil {
		snap := s.remoteSnapshot(res)
		metrics.ListingServed.WithLabelValues(string(models.SourceRemote)).Inc()
		return &snap, nil
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if entry, ok := s.cache.Read(ctx, key); ok {
		logger.Warn("Listing query failed, serving cached page",
			zap.String("key", key),
			zap.Time("written_at", entry.Written()),
			zap.Error(err))
		snap := s.cachedSnapshot(entry)
		metrics.ListingServed.WithLabelValues(string(models.SourceCache)).Inc()
		return &snap, nil
	}

	logger.Error("Listing query failed with no cached page", zap.String("key", key), zap.Error(err))
	snap := models.EmptySnapshot(s.opts.Now())
	metrics.ListingServed.WithLabelValues(string(models.SourceEmpty)).Inc()
	return &snap, err
}

func (s *ListingService) remoteSnapshot(res listingPage) models.ListingSnapshot {
	rows := res.rows
	if rows == nil {
		rows = []models.TeacherSummary{}
	}
	return models.ListingSnapshot{
		Rows:       rows,
		TotalCount: res.total,
		Source:     models.SourceRemote,
		FetchedAt:  s.opts.Now(),
	}
}

func (s *ListingService) cachedSnapshot(entry *models.CachedListing) models.ListingSnapshot {
	return models.ListingSnapshot{
		Rows:       entry.Rows,
		TotalCount: entry.TotalCount,
		Source:     models.SourceCache,
		Stale:      s.cache.IsStale(entry),
		FetchedAt:  entry.Written(),
	}
}

// GetDistinctFilters returns the filter option sets. A fresh cached copy is
// served without a query; on failure a stale copy is better than nothing.
func (s *ListingService) GetDistinctFilters(ctx context.Context) (models.FilterOptions, error) {
	entry, ok := s.cache.ReadFilters(ctx)
	if ok && !s.cache.FiltersStale(entry) {
		return entry.Options, nil
	}

	opts, err := retry.Do(ctx, filtersOperation, s.opts.Plan, s.source.DistinctFilters)
	if err != nil {
		if ok {
			logger.Warn("Filter options query failed, serving cached options", zap.Error(err))
			return entry.Options, nil
		}
		return models.FilterOptions{Universities: []string{}, Subjects: []string{}, Teachers: []string{}}, err
	}

	opts = models.FilterOptions{
		Universities: models.SortedUnique(opts.Universities),
		Subjects:     models.SortedUnique(opts.Subjects),
		Teachers:     models.SortedUnique(opts.Teachers),
	}
	s.cache.WriteFilters(ctx, opts)
	return opts, nil
}

// Invalidate drops the cached page for q and the cached filter options
func (s *ListingService) Invalidate(ctx context.Context, q models.ListingQuery) {
	q = q.Normalize(s.opts.DefaultPageSize)
	s.cache.Delete(ctx, q.CacheKey())
	s.cache.DeleteFilters(ctx)
}

func closed() <-chan models.ListingSnapshot {
	ch := make(chan models.ListingSnapshot)
	close(ch)
	return ch
}
