// Package reports aggregates the dashboard statistics: headline counts,
// status/branch/product distributions and the 12-month intake trend.
package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"loan-triage/internal/branch"
	apperrors "loan-triage/internal/common/errors"
	"loan-triage/internal/common/logger"
	"loan-triage/internal/loans"
	"loan-triage/internal/models"
	"loan-triage/internal/store"
)

const (
	cacheTTL        = 60 * time.Second
	fallbackProduct = "Unspecified"
)

// Stats is the headline counter row on the dashboard.
type Stats struct {
	Today      int64 `json:"today"`
	ThisWeek   int64 `json:"thisWeek"`
	ThisMonth  int64 `json:"thisMonth"`
	LastMonth  int64 `json:"lastMonth"`
	ThisYear   int64 `json:"thisYear"`
	Pending    int64 `json:"pending"`
	InProgress int64 `json:"inProgress"`
	Approved   int64 `json:"approved"`
	Rejected   int64 `json:"rejected"`
}

// MonthlyGrowth is the percentage change of this month's intake against last
// month's. A first month with intake reads as 100.
func (s Stats) MonthlyGrowth() float64 {
	if s.LastMonth == 0 {
		if s.ThisMonth > 0 {
			return 100
		}
		return 0
	}
	return float64(s.ThisMonth-s.LastMonth) / float64(s.LastMonth) * 100
}

// ProductCount is a grouped count by requested loan product.
type ProductCount struct {
	Product string `json:"product"`
	Count   int64  `json:"count"`
}

// MonthCount is one point of the intake trend.
type MonthCount struct {
	Month string `json:"month"` // YYYY-MM
	Count int64  `json:"count"`
}

// Dashboard is the full aggregation payload.
type Dashboard struct {
	Stats               Stats               `json:"stats"`
	MonthlyGrowth       float64             `json:"monthlyGrowth"`
	StatusDistribution  []store.StatusCount `json:"statusDistribution"`
	BranchDistribution  []store.BranchCount `json:"branchDistribution"`
	ProductDistribution []ProductCount      `json:"productDistribution"`
	MonthlyTrend        []MonthCount        `json:"monthlyTrend"`
}

type Service struct {
	store  *store.Store
	cache  *redis.Client
	logger logger.Logger
}

// NewService builds the reports service. cache may be nil; aggregations then
// hit the database on every call.
func NewService(st *store.Store, cache *redis.Client, log logger.Logger) *Service {
	return &Service{
		store:  st,
		cache:  cache,
		logger: log.WithFields(map[string]interface{}{"component": "reports"}),
	}
}

// scopeBranches maps an actor to the report scope: nil means unrestricted,
// an empty non-nil slice means the actor can see nothing.
func scopeBranches(actor loans.Actor) []string {
	switch actor.Role {
	case models.RoleAdmin, models.RoleAdminEditor:
		return nil
	default:
		set := branch.ParseSet(actor.Branches)
		if branch.HasWildcard(set) {
			return nil
		}
		if set == nil {
			// No branches granted: an empty non-nil scope matches nothing.
			return []string{}
		}
		return set
	}
}

// Stats returns the headline counters, cached for a minute per scope.
func (s *Service) Stats(ctx context.Context, actor loans.Actor) (*Stats, error) {
	scoped := scopeBranches(actor)
	if scoped != nil && len(scoped) == 0 {
		return &Stats{}, nil
	}

	key := cacheKey("stats", scoped)
	var cached Stats
	if s.readCache(ctx, key, &cached) {
		return &cached, nil
	}

	stats, err := s.computeStats(ctx, scoped)
	if err != nil {
		return nil, err
	}
	s.writeCache(ctx, key, stats)
	return stats, nil
}

func (s *Service) computeStats(ctx context.Context, scoped []string) (*Stats, error) {
	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	weekAgo := now.AddDate(0, 0, -7)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	yearStart := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC)

	var (
		stats Stats
		err   error
	)
	if stats.Today, err = s.store.CountCreatedSince(ctx, today, scoped); err != nil {
		return nil, apperrors.NewInternal("count today", err)
	}
	if stats.ThisWeek, err = s.store.CountCreatedSince(ctx, weekAgo, scoped); err != nil {
		return nil, apperrors.NewInternal("count this week", err)
	}
	if stats.ThisMonth, err = s.store.CountCreatedSince(ctx, monthStart, scoped); err != nil {
		return nil, apperrors.NewInternal("count this month", err)
	}
	if stats.LastMonth, err = s.store.CountCreatedBetween(ctx, monthStart.AddDate(0, -1, 0), monthStart.Add(-time.Nanosecond), scoped); err != nil {
		return nil, apperrors.NewInternal("count last month", err)
	}
	if stats.ThisYear, err = s.store.CountCreatedSince(ctx, yearStart, scoped); err != nil {
		return nil, apperrors.NewInternal("count this year", err)
	}
	if stats.Pending, err = s.store.CountByStatus(ctx, models.StatusPending, scoped); err != nil {
		return nil, apperrors.NewInternal("count pending", err)
	}
	if stats.InProgress, err = s.store.CountByStatus(ctx, models.StatusInProgress, scoped); err != nil {
		return nil, apperrors.NewInternal("count in progress", err)
	}
	if stats.Approved, err = s.store.CountByStatus(ctx, models.StatusApproved, scoped); err != nil {
		return nil, apperrors.NewInternal("count approved", err)
	}
	if stats.Rejected, err = s.store.CountByStatus(ctx, models.StatusRejected, scoped); err != nil {
		return nil, apperrors.NewInternal("count rejected", err)
	}
	return &stats, nil
}

// Dashboard returns the full aggregation payload, cached per scope.
func (s *Service) Dashboard(ctx context.Context, actor loans.Actor) (*Dashboard, error) {
	scoped := scopeBranches(actor)
	if scoped != nil && len(scoped) == 0 {
		return &Dashboard{
			StatusDistribution:  []store.StatusCount{},
			BranchDistribution:  []store.BranchCount{},
			ProductDistribution: []ProductCount{},
			MonthlyTrend:        emptyTrend(time.Now().UTC()),
		}, nil
	}

	key := cacheKey("dashboard", scoped)
	var cached Dashboard
	if s.readCache(ctx, key, &cached) {
		return &cached, nil
	}

	now := time.Now().UTC()
	yearAgo := now.AddDate(-1, 0, 0)

	stats, err := s.computeStats(ctx, scoped)
	if err != nil {
		return nil, err
	}

	statusDist, err := s.store.StatusDistribution(ctx, yearAgo, scoped)
	if err != nil {
		return nil, apperrors.NewInternal("status distribution", err)
	}
	// Branch volumes are a cross-branch view; scoped callers get none rather
	// than other branches' numbers.
	branchDist := []store.BranchCount{}
	if scoped == nil {
		branchDist, err = s.store.BranchDistribution(ctx, yearAgo)
		if err != nil {
			return nil, apperrors.NewInternal("branch distribution", err)
		}
	}
	productDist, err := s.productDistribution(ctx, yearAgo, scoped)
	if err != nil {
		return nil, err
	}
	trend, err := s.monthlyTrend(ctx, now, scoped)
	if err != nil {
		return nil, err
	}

	dash := &Dashboard{
		Stats:               *stats,
		MonthlyGrowth:       stats.MonthlyGrowth(),
		StatusDistribution:  statusDist,
		BranchDistribution:  branchDist,
		ProductDistribution: productDist,
		MonthlyTrend:        trend,
	}
	if dash.StatusDistribution == nil {
		dash.StatusDistribution = []store.StatusCount{}
	}
	if dash.BranchDistribution == nil {
		dash.BranchDistribution = []store.BranchCount{}
	}

	s.writeCache(ctx, key, dash)
	return dash, nil
}

func (s *Service) productDistribution(ctx context.Context, since time.Time, scoped []string) ([]ProductCount, error) {
	details, err := s.store.DetailsSince(ctx, since, scoped)
	if err != nil {
		return nil, apperrors.NewInternal("product distribution", err)
	}

	counts := map[string]int64{}
	for _, d := range details {
		counts[d.Product(fallbackProduct)]++
	}

	out := make([]ProductCount, 0, len(counts))
	for product, count := range counts {
		out = append(out, ProductCount{Product: product, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Product < out[j].Product
	})
	return out, nil
}

// monthlyTrend covers the last 12 calendar months, oldest first, including
// zero months.
func (s *Service) monthlyTrend(ctx context.Context, now time.Time, scoped []string) ([]MonthCount, error) {
	out := make([]MonthCount, 0, 12)
	for i := 11; i >= 0; i-- {
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -i, 0)
		end := start.AddDate(0, 1, 0).Add(-time.Nanosecond)
		count, err := s.store.CountCreatedBetween(ctx, start, end, scoped)
		if err != nil {
			return nil, apperrors.NewInternal("monthly trend", err)
		}
		out = append(out, MonthCount{Month: start.Format("2006-01"), Count: count})
	}
	return out, nil
}

func emptyTrend(now time.Time) []MonthCount {
	out := make([]MonthCount, 0, 12)
	for i := 11; i >= 0; i-- {
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -i, 0)
		out = append(out, MonthCount{Month: start.Format("2006-01")})
	}
	return out
}

func cacheKey(kind string, scoped []string) string {
	if scoped == nil {
		return fmt.Sprintf("reports:%s:all", kind)
	}
	return fmt.Sprintf("reports:%s:%s", kind, strings.Join(scoped, "|"))
}

func (s *Service) readCache(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}
	raw, err := s.cache.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, dest) == nil
}

func (s *Service) writeCache(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, cacheTTL).Err(); err != nil {
		s.logger.Debug("report cache write failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
}
