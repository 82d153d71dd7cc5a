package domain

import "context"

type Service interface {
	Summary(ctx context.Context) (Summary, error)
	Invalidate()
}

const (
	RecentOrdersLimit   = 10
	TopProductsLimit    = 10
	DailyOrdersDays     = 7
	ProcessingSample    = 1000
	StableTrendFraction = 0.05
)
