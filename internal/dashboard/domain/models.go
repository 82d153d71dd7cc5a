package domain

import "time"

type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

type KPIFormat string

const (
	FormatNumber     KPIFormat = "number"
	FormatCurrency   KPIFormat = "currency"
	FormatPercentage KPIFormat = "percentage"
	FormatTime       KPIFormat = "time"
)

// KPICard is one tile on the executive dashboard. Value is numeric except
// for durations, which are rendered as strings such as "12m".
type KPICard struct {
	Title       string    `json:"title"`
	Value       any       `json:"value"`
	Change      float64   `json:"change"`
	Trend       Trend     `json:"trend"`
	Format      KPIFormat `json:"format"`
	Icon        string    `json:"icon"`
	Description string    `json:"description,omitempty"`
}

type KPIs struct {
	OrdersProcessing  KPICard `json:"orders_processing"`
	SLABreaches       KPICard `json:"sla_breaches"`
	RevenueToday      KPICard `json:"revenue_today"`
	AvgProcessingTime KPICard `json:"avg_processing_time"`
	ActiveOrders      KPICard `json:"active_orders"`
	FulfillmentRate   KPICard `json:"fulfillment_rate"`
}

type ChartPoint struct {
	Name     string         `json:"name"`
	Value    float64        `json:"value"`
	Date     string         `json:"date,omitempty"`
	Category string         `json:"category,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type ChannelPerformance struct {
	Channel           string  `json:"channel"`
	Orders            int64   `json:"orders"`
	Revenue           float64 `json:"revenue"`
	AvgProcessingTime float64 `json:"avg_processing_time"`
	SLAComplianceRate float64 `json:"sla_compliance_rate"`
	GrowthRate        float64 `json:"growth_rate"`
}

type BranchFulfillment struct {
	Branch    string  `json:"branch"`
	Key       string  `json:"key"`
	Orders    int64   `json:"orders"`
	Fulfilled int64   `json:"fulfilled"`
	Rate      float64 `json:"rate"`
	AvgTime   float64 `json:"avg_time"`
}

type Charts struct {
	DailyOrders         []ChartPoint         `json:"daily_orders"`
	HourlySummary       []ChartPoint         `json:"hourly_summary"`
	SLACompliance       []ChartPoint         `json:"sla_compliance"`
	ProcessingTimes     []ChartPoint         `json:"processing_times"`
	ChannelPerformance  []ChannelPerformance `json:"channel_performance"`
	FulfillmentByBranch []BranchFulfillment  `json:"fulfillment_by_branch"`
	TopProducts         []ChartPoint         `json:"top_products"`
	RevenueByCategory   []ChartPoint         `json:"revenue_by_category"`
}

type RecentOrder struct {
	ID           string    `json:"id"`
	OrderNo      string    `json:"order_no"`
	CustomerName string    `json:"customer_name"`
	TotalAmount  float64   `json:"total_amount"`
	Status       string    `json:"status"`
	SLAStatus    string    `json:"sla_status"`
	ElapsedTime  int64     `json:"elapsed_time"`
	Priority     string    `json:"priority"`
	CreatedAt    time.Time `json:"created_at"`
}

type AlertSummary struct {
	CriticalCount       int64 `json:"critical_count"`
	WarningsCount       int64 `json:"warnings_count"`
	ApproachingSLACount int64 `json:"approaching_sla_count"`
}

type Summary struct {
	KPIs          KPIs          `json:"kpis"`
	Charts        Charts        `json:"charts"`
	RecentOrders  []RecentOrder `json:"recent_orders"`
	Alerts        AlertSummary  `json:"alerts"`
	LastUpdated   time.Time     `json:"last_updated"`
	DataFreshness int64         `json:"data_freshness"`
	CacheTTL      int64         `json:"cache_ttl"`
}
