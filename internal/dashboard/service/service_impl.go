package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/gosimple/slug"
	"github.com/smallbiznis/orderdesk/internal/cache"
	"github.com/smallbiznis/orderdesk/internal/clock"
	"github.com/smallbiznis/orderdesk/internal/config"
	"github.com/smallbiznis/orderdesk/internal/dashboard/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Repo      domain.Repository
	SLAConfig *config.SLAConfigHolder `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	repo      domain.Repository
	slaConfig *config.SLAConfigHolder
	summary   *cache.Slot[domain.Summary]
}

func New(p Params) *Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("dashboard.service"),
		clock:     p.Clock,
		repo:      p.Repo,
		slaConfig: p.SLAConfig,
		summary:   cache.NewSlot[domain.Summary](p.Clock, p.SLAConfig.Get().CacheTTL()),
	}
}

// Summary serves the cached aggregate; data_freshness is recomputed per read.
func (s *Service) Summary(ctx context.Context) (domain.Summary, error) {
	s.summary.SetTTL(s.slaConfig.Get().CacheTTL())
	summary, err := s.summary.Get(ctx, s.compute)
	if err != nil {
		return domain.Summary{}, err
	}
	summary.DataFreshness = int64(s.clock.Now().Sub(summary.LastUpdated) / time.Second)
	return summary, nil
}

func (s *Service) Invalidate() {
	s.summary.Invalidate()
}

func (s *Service) compute(ctx context.Context) (domain.Summary, error) {
	now := s.clock.Now()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	yesterdayStart := todayStart.AddDate(0, 0, -1)

	kpis, err := s.kpis(ctx, now, yesterdayStart, todayStart)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("kpis: %w", err)
	}
	charts, err := s.charts(ctx, now, yesterdayStart, todayStart)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("charts: %w", err)
	}
	recent, err := s.recentOrders(ctx)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("recent orders: %w", err)
	}

	escalations, err := s.repo.OpenEscalationCounts(ctx, s.db)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("alerts: %w", err)
	}

	s.log.Debug("dashboard summary computed")
	return domain.Summary{
		KPIs:         kpis.cards,
		Charts:       charts,
		RecentOrders: recent,
		Alerts: domain.AlertSummary{
			CriticalCount:       escalations.Critical,
			WarningsCount:       escalations.Warnings,
			ApproachingSLACount: kpis.counts.NearBreaches,
		},
		LastUpdated: now,
		CacheTTL:    int64(s.summary.TTL() / time.Second),
	}, nil
}

type kpiResult struct {
	cards  domain.KPIs
	counts domain.KPICounts
}

func (s *Service) kpis(ctx context.Context, now, yesterdayStart, todayStart time.Time) (kpiResult, error) {
	counts, err := s.repo.KPICounts(ctx, s.db, yesterdayStart, todayStart)
	if err != nil {
		return kpiResult{}, err
	}
	revenueToday, err := s.repo.Revenue(ctx, s.db, todayStart, now.Add(time.Nanosecond))
	if err != nil {
		return kpiResult{}, err
	}
	revenueYesterday, err := s.repo.Revenue(ctx, s.db, yesterdayStart, todayStart)
	if err != nil {
		return kpiResult{}, err
	}
	avgSeconds, err := s.repo.AverageElapsedSeconds(ctx, s.db)
	if err != nil {
		return kpiResult{}, err
	}

	fulfillment := 0.0
	if counts.Total > 0 {
		fulfillment = float64(counts.Delivered) / float64(counts.Total) * 100
	}

	processing := float64(counts.Processing)
	breaches := float64(counts.Breaches)
	active := float64(counts.Active)

	return kpiResult{
		counts: counts,
		cards: domain.KPIs{
			OrdersProcessing: domain.KPICard{
				Title:       "Orders Processing",
				Value:       counts.Processing,
				Change:      calculateChange(processing, float64(counts.YesterdayProcessing)),
				Trend:       getTrend(processing, float64(counts.YesterdayProcessing), false),
				Format:      domain.FormatNumber,
				Icon:        "package",
				Description: "Currently being processed",
			},
			SLABreaches: domain.KPICard{
				Title:       "SLA Breaches",
				Value:       counts.Breaches,
				Change:      calculateChange(breaches, float64(counts.YesterdayBreaches)),
				Trend:       getTrend(breaches, float64(counts.YesterdayBreaches), true),
				Format:      domain.FormatNumber,
				Icon:        "alert-triangle",
				Description: "Orders exceeding SLA",
			},
			RevenueToday: domain.KPICard{
				Title:       "Revenue Today",
				Value:       round2(revenueToday),
				Change:      calculateChange(revenueToday, revenueYesterday),
				Trend:       getTrend(revenueToday, revenueYesterday, false),
				Format:      domain.FormatCurrency,
				Icon:        "dollar-sign",
				Description: "Total revenue for today",
			},
			AvgProcessingTime: domain.KPICard{
				Title:       "Avg Processing Time",
				Value:       fmt.Sprintf("%dm", int64(math.Round(avgSeconds/60))),
				Trend:       domain.TrendStable,
				Format:      domain.FormatTime,
				Icon:        "clock",
				Description: "Average order processing time",
			},
			ActiveOrders: domain.KPICard{
				Title:       "Active Orders",
				Value:       counts.Active,
				Change:      calculateChange(active, float64(counts.YesterdayActive)),
				Trend:       getTrend(active, float64(counts.YesterdayActive), false),
				Format:      domain.FormatNumber,
				Icon:        "shopping-cart",
				Description: "Pending and processing orders",
			},
			FulfillmentRate: domain.KPICard{
				Title:       "Fulfillment Rate",
				Value:       math.Round(fulfillment),
				Trend:       domain.TrendStable,
				Format:      domain.FormatPercentage,
				Icon:        "trending-up",
				Description: "Orders successfully delivered",
			},
		},
	}, nil
}

func (s *Service) charts(ctx context.Context, now, yesterdayStart, todayStart time.Time) (domain.Charts, error) {
	var charts domain.Charts

	since := todayStart.AddDate(0, 0, -(domain.DailyOrdersDays - 1))
	dates, err := s.repo.ListOrderDates(ctx, s.db, since)
	if err != nil {
		return charts, err
	}
	charts.DailyOrders = dailyBuckets(dates, since, domain.DailyOrdersDays)
	charts.HourlySummary = hourlyBuckets(dates, todayStart)

	statuses, err := s.repo.CountBySLAStatus(ctx, s.db)
	if err != nil {
		return charts, err
	}
	charts.SLACompliance = make([]domain.ChartPoint, 0, len(statuses))
	for _, row := range statuses {
		charts.SLACompliance = append(charts.SLACompliance, domain.ChartPoint{Name: row.Status, Value: float64(row.Total)})
	}

	elapsed, err := s.repo.ListDeliveredElapsed(ctx, s.db, domain.ProcessingSample)
	if err != nil {
		return charts, err
	}
	charts.ProcessingTimes = processingHistogram(elapsed)

	channels, err := s.repo.ChannelStats(ctx, s.db, yesterdayStart, todayStart)
	if err != nil {
		return charts, err
	}
	charts.ChannelPerformance = make([]domain.ChannelPerformance, 0, len(channels))
	for _, row := range channels {
		compliance := 100.0
		if row.Orders > 0 {
			compliance = round2(float64(row.Orders-row.Breaches) / float64(row.Orders) * 100)
		}
		charts.ChannelPerformance = append(charts.ChannelPerformance, domain.ChannelPerformance{
			Channel:           row.Channel,
			Orders:            row.Orders,
			Revenue:           round2(row.Revenue),
			AvgProcessingTime: math.Round(row.AvgElapsedSeconds / 60),
			SLAComplianceRate: compliance,
			GrowthRate:        calculateChange(float64(row.TodayOrders), float64(row.YesterdayOrders)),
		})
	}

	branches := s.slaConfig.Get().TrackedBranches
	branchRows, err := s.repo.BranchStats(ctx, s.db, branches)
	if err != nil {
		return charts, err
	}
	charts.FulfillmentByBranch = branchFulfillment(branches, branchRows)

	products, err := s.repo.TopProducts(ctx, s.db, domain.TopProductsLimit)
	if err != nil {
		return charts, err
	}
	charts.TopProducts = make([]domain.ChartPoint, 0, len(products))
	for _, row := range products {
		charts.TopProducts = append(charts.TopProducts, domain.ChartPoint{
			Name:     row.ProductName,
			Value:    round2(row.Revenue),
			Metadata: map[string]any{"quantity": row.Quantity},
		})
	}

	categories, err := s.repo.RevenueByCategory(ctx, s.db)
	if err != nil {
		return charts, err
	}
	charts.RevenueByCategory = make([]domain.ChartPoint, 0, len(categories))
	for _, row := range categories {
		charts.RevenueByCategory = append(charts.RevenueByCategory, domain.ChartPoint{
			Name:     row.Category,
			Value:    round2(row.Revenue),
			Category: row.Category,
		})
	}

	return charts, nil
}

func (s *Service) recentOrders(ctx context.Context) ([]domain.RecentOrder, error) {
	items, err := s.repo.RecentOrders(ctx, s.db, domain.RecentOrdersLimit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.RecentOrder, 0, len(items))
	for _, item := range items {
		out = append(out, domain.RecentOrder{
			ID:           item.ID.String(),
			OrderNo:      item.OrderNo,
			CustomerName: item.CustomerName,
			TotalAmount:  item.TotalAmount,
			Status:       string(item.Status),
			SLAStatus:    string(item.SLAStatus),
			ElapsedTime:  item.SLAElapsedSeconds,
			Priority:     string(item.Priority),
			CreatedAt:    item.CreatedAt,
		})
	}
	return out, nil
}

// branchFulfillment keeps the configured branch order and reports branches
// without orders as zero rows.
func branchFulfillment(branches []string, rows []domain.BranchRow) []domain.BranchFulfillment {
	byName := make(map[string]domain.BranchRow, len(rows))
	for _, row := range rows {
		byName[row.StoreName] = row
	}
	out := make([]domain.BranchFulfillment, 0, len(branches))
	for _, branch := range branches {
		row := byName[branch]
		rate := 0.0
		if row.Orders > 0 {
			rate = round2(float64(row.Fulfilled) / float64(row.Orders) * 100)
		}
		out = append(out, domain.BranchFulfillment{
			Branch:    branch,
			Key:       slug.Make(branch),
			Orders:    row.Orders,
			Fulfilled: row.Fulfilled,
			Rate:      rate,
			AvgTime:   math.Round(row.AvgElapsedSeconds / 60),
		})
	}
	return out
}

func dailyBuckets(dates []time.Time, since time.Time, days int) []domain.ChartPoint {
	counts := make(map[string]int, days)
	for _, d := range dates {
		counts[d.In(since.Location()).Format(time.DateOnly)]++
	}
	out := make([]domain.ChartPoint, 0, days)
	for i := 0; i < days; i++ {
		day := since.AddDate(0, 0, i).Format(time.DateOnly)
		out = append(out, domain.ChartPoint{Name: day, Value: float64(counts[day]), Date: day})
	}
	return out
}

func hourlyBuckets(dates []time.Time, todayStart time.Time) []domain.ChartPoint {
	var counts [24]int
	seen := false
	for _, d := range dates {
		d = d.In(todayStart.Location())
		if d.Before(todayStart) {
			continue
		}
		counts[d.Hour()]++
		seen = true
	}
	out := []domain.ChartPoint{}
	if !seen {
		return out
	}
	for hour, n := range counts {
		if n == 0 {
			continue
		}
		out = append(out, domain.ChartPoint{Name: fmt.Sprintf("%d:00", hour), Value: float64(n)})
	}
	return out
}

var processingBands = []struct {
	name  string
	limit int64
}{
	{"0-5m", 5 * 60},
	{"5-10m", 10 * 60},
	{"10-15m", 15 * 60},
	{"15-20m", 20 * 60},
	{"20+m", math.MaxInt64},
}

func processingHistogram(elapsedSeconds []int64) []domain.ChartPoint {
	counts := make([]int, len(processingBands))
	for _, v := range elapsedSeconds {
		for i, band := range processingBands {
			if v < band.limit {
				counts[i]++
				break
			}
		}
	}
	out := make([]domain.ChartPoint, 0, len(processingBands))
	for i, band := range processingBands {
		out = append(out, domain.ChartPoint{Name: band.name, Value: float64(counts[i])})
	}
	return out
}

// calculateChange is the whole-percent change from previous to current.
func calculateChange(current, previous float64) float64 {
	if previous == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return math.Round((current - previous) / previous * 100)
}

// getTrend reports stable within 5% of previous. inverse flips the direction
// for metrics where growth is bad.
func getTrend(current, previous float64, inverse bool) domain.Trend {
	diff := current - previous
	if math.Abs(diff) < domain.StableTrendFraction*previous {
		return domain.TrendStable
	}
	if diff == 0 {
		return domain.TrendStable
	}
	up := diff > 0
	if inverse {
		up = !up
	}
	if up {
		return domain.TrendUp
	}
	return domain.TrendDown
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
