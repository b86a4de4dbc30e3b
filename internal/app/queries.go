package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"pnr_quality/internal/adapters/observability"
	"pnr_quality/internal/domain"
	"pnr_quality/internal/quality"
)

var ErrInvalidArgument = errors.New("invalid argument")

// Page is one window of scored PNRs; Total counts every match.
type Page struct {
	Items  []quality.ScoredPNR `json:"items"`
	Total  int                 `json:"total"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
}

type QueryService struct {
	repo     domain.PNRRepository
	cache    domain.Cache
	cacheTTL time.Duration
	scorer   *quality.Scorer
	workers  int
	sf       singleflight.Group
}

func NewQueryService(r domain.PNRRepository, c domain.Cache, ttl time.Duration, sc *quality.Scorer, workers int) *QueryService {
	if sc == nil {
		sc = quality.NewScorer(nil)
	}
	return &QueryService{repo: r, cache: c, cacheTTL: ttl, scorer: sc, workers: workers}
}

func (s *QueryService) Stats(ctx context.Context, f domain.PNRFilter) (quality.Stats, error) {
	key := cacheKey(s.generation(ctx), "stats", f)
	return memoize(ctx, s, key, func(ctx context.Context) (quality.Stats, error) {
		items, err := s.snapshot(ctx, f)
		if err != nil {
			return quality.Stats{}, err
		}
		return quality.ComputeStats(items), nil
	})
}

// Groups aggregates by office, delivery system or creation period. Offices
// or delivery systems named in the filter appear even when they hold no PNR.
func (s *QueryService) Groups(ctx context.Context, f domain.PNRFilter, by string) ([]quality.GroupSummary, error) {
	gk, err := quality.ParseGroupKey(by)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	var include []string
	switch gk {
	case quality.GroupOffice:
		include = f.Offices
	case quality.GroupDeliverySystem:
		include = f.DeliverySystems
	}

	key := cacheKey(s.generation(ctx), "groups", f, string(gk))
	return memoize(ctx, s, key, func(ctx context.Context) ([]quality.GroupSummary, error) {
		items, err := s.snapshot(ctx, f)
		if err != nil {
			return nil, err
		}
		return quality.Aggregate(items, gk, include...), nil
	})
}

func (s *QueryService) GetPNR(ctx context.Context, controlNumber string) (quality.ScoredPNR, error) {
	key := fmt.Sprintf("pnr:%s:%s", s.generation(ctx), controlNumber)
	var out quality.ScoredPNR
	if s.cache != nil {
		if ok, _ := s.cache.Get(ctx, key, &out); ok {
			return out, nil
		}
	}
	p, err := s.repo.GetPNR(ctx, controlNumber)
	if err != nil {
		return quality.ScoredPNR{}, err
	}
	out = quality.ScoredPNR{PNR: p, Result: s.scorer.Score(p)}
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, out, int(s.cacheTTL.Seconds()))
	}
	return out, nil
}

// ListPNRs scores the filtered snapshot and returns one page, optionally
// narrowed to PNRs carrying a quality flag.
func (s *QueryService) ListPNRs(ctx context.Context, f domain.PNRFilter, flag string, limit, offset int) (Page, error) {
	match, ok := flagFilter(flag)
	if !ok {
		return Page{}, fmt.Errorf("%w: unknown flag %q", ErrInvalidArgument, flag)
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	items, err := s.snapshot(ctx, f)
	if err != nil {
		return Page{}, err
	}

	pg := Page{Items: []quality.ScoredPNR{}, Limit: limit, Offset: offset}
	for _, it := range items {
		if !match(it) {
			continue
		}
		if pg.Total >= offset && len(pg.Items) < limit {
			pg.Items = append(pg.Items, it)
		}
		pg.Total++
	}
	return pg, nil
}

func (s *QueryService) Classify(contactType, detail string) quality.Classification {
	return quality.Classify(contactType, detail)
}

func (s *QueryService) LatestImport(ctx context.Context) (domain.ImportRun, error) {
	return s.repo.LatestImport(ctx)
}

func (s *QueryService) snapshot(ctx context.Context, f domain.PNRFilter) ([]quality.ScoredPNR, error) {
	pnrs, err := s.repo.ListPNRs(ctx, f)
	if err != nil {
		return nil, err
	}
	items, err := s.scorer.ScoreAll(ctx, pnrs, s.workers)
	if err != nil {
		return nil, err
	}
	sum := 0
	for _, it := range items {
		sum += it.Score
	}
	observability.ObserveSnapshot(len(items), quality.Mean(sum, len(items)))
	return items, nil
}

// generation is "0" until the first import or when the cache is unreachable.
func (s *QueryService) generation(ctx context.Context) string {
	if s.cache == nil {
		return "0"
	}
	var gen string
	if ok, err := s.cache.Get(ctx, generationKey, &gen); err != nil || !ok || gen == "" {
		return "0"
	}
	return gen
}

// memoize is cache-aside with concurrent misses for one key collapsed.
func memoize[T any](ctx context.Context, s *QueryService, key string, compute func(context.Context) (T, error)) (T, error) {
	var out T
	if s.cache != nil {
		if ok, _ := s.cache.Get(ctx, key, &out); ok {
			return out, nil
		}
	}
	v, err, _ := s.sf.Do(key, func() (any, error) {
		res, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			_ = s.cache.Set(ctx, key, res, int(s.cacheTTL.Seconds()))
		}
		return res, nil
	})
	if err != nil {
		return out, err
	}
	return v.(T), nil
}
