package reports

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// RepositoryPort abstracts the aggregation queries.
type RepositoryPort interface {
	DailySummary(ctx context.Context, q SummaryQuery) (DailySummary, error)
	ActiveLocationIDs(ctx context.Context, tenantID int64, day time.Time) ([]int64, error)
	TenantIDs(ctx context.Context, day time.Time) ([]int64, error)
}

// Service serves cached daily summaries.
type Service struct {
	repo   RepositoryPort
	cache  *Cache
	logger *slog.Logger
}

// NewService constructs Service.
func NewService(repo RepositoryPort, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger}
}

// DailySummary returns the summary for one location and day, cached under a
// versioned key. Loads straight from the database on cache miss.
func (s *Service) DailySummary(ctx context.Context, q SummaryQuery) (DailySummary, error) {
	key, err := s.cache.BuildKey(ctx, "reports", "daily",
		fmt.Sprintf("%d", q.TenantID), fmt.Sprintf("%d", q.LocationID), q.Date.UTC().Format("2006-01-02"))
	if err != nil {
		return DailySummary{}, err
	}
	var summary DailySummary
	err = s.cache.FetchJSON(ctx, key, &summary, func(ctx context.Context) (any, error) {
		return s.repo.DailySummary(ctx, q)
	})
	if err != nil {
		return DailySummary{}, err
	}
	return summary, nil
}

// Invalidate bumps the cache version after sale completion or void.
func (s *Service) Invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("bump reports cache", slog.Any("error", err))
	}
}

// WarmDay preloads summaries for every active tenant and location on the
// day, a few locations at a time. Aggregations are read-only, so partial
// failures just log and skip.
func (s *Service) WarmDay(ctx context.Context, day time.Time) (int, error) {
	tenants, err := s.repo.TenantIDs(ctx, day)
	if err != nil {
		return 0, err
	}
	var warmed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, tenantID := range tenants {
		locations, err := s.repo.ActiveLocationIDs(ctx, tenantID, day)
		if err != nil {
			return int(warmed.Load()), err
		}
		for _, locationID := range locations {
			tenantID, locationID := tenantID, locationID
			g.Go(func() error {
				if _, err := s.DailySummary(gctx, SummaryQuery{TenantID: tenantID, LocationID: locationID, Date: day}); err != nil {
					s.logger.Warn("warm daily summary",
						slog.Int64("tenant_id", tenantID),
						slog.Int64("location_id", locationID),
						slog.Any("error", err))
					return nil
				}
				warmed.Add(1)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return int(warmed.Load()), err
	}
	return int(warmed.Load()), nil
}
