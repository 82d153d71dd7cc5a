package sla

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var orderDate = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestEvaluate(t *testing.T) {
	cases := []struct {
		name          string
		elapsed       time.Duration
		target        int64
		wantStatus    Status
		wantRemaining int64
	}{
		{name: "fresh order", elapsed: 10 * time.Second, target: 300, wantStatus: StatusCompliant, wantRemaining: 290},
		{name: "breached after 400s", elapsed: 400 * time.Second, target: 300, wantStatus: StatusBreach, wantRemaining: -100},
		{name: "near breach after 250s", elapsed: 250 * time.Second, target: 300, wantStatus: StatusNearBreach, wantRemaining: 50},
		{name: "near breach lower edge", elapsed: 240 * time.Second, target: 300, wantStatus: StatusNearBreach, wantRemaining: 60},
		{name: "just outside near breach", elapsed: 239 * time.Second, target: 300, wantStatus: StatusCompliant, wantRemaining: 61},
		{name: "elapsed equals target", elapsed: 300 * time.Second, target: 300, wantStatus: StatusCompliant, wantRemaining: 0},
		{name: "one second past target", elapsed: 301 * time.Second, target: 300, wantStatus: StatusBreach, wantRemaining: -1},
		{name: "zero target", elapsed: 0, target: 0, wantStatus: StatusBreach, wantRemaining: 0},
		{name: "negative target", elapsed: time.Second, target: -5, wantStatus: StatusBreach, wantRemaining: -6},
		{name: "sub-second elapsed floors", elapsed: 1500 * time.Millisecond, target: 300, wantStatus: StatusCompliant, wantRemaining: 299},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Evaluate(orderDate, tc.target, orderDate.Add(tc.elapsed))
			assert.Equal(t, tc.wantStatus, res.Status)
			assert.Equal(t, tc.wantRemaining, res.RemainingSeconds)
		})
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	now := orderDate.Add(250 * time.Second)
	assert.Equal(t, Evaluate(orderDate, 300, now), Evaluate(orderDate, 300, now))
}

func TestEvaluatorCustomRatio(t *testing.T) {
	e := NewEvaluator(0.5)
	res := e.Evaluate(orderDate, 300, orderDate.Add(200*time.Second))
	assert.Equal(t, StatusNearBreach, res.Status)

	fallback := NewEvaluator(1.5)
	res = fallback.Evaluate(orderDate, 300, orderDate.Add(200*time.Second))
	assert.Equal(t, StatusCompliant, res.Status)
}

func TestBreachPercentageAndSeverity(t *testing.T) {
	res := Evaluate(orderDate, 300, orderDate.Add(400*time.Second))
	assert.Equal(t, int64(133), res.BreachPercentage())
	assert.Equal(t, SeverityHigh, BreachSeverity(res.BreachPercentage()))
	assert.Equal(t, int64(0), res.DisplayRemainingSeconds())

	assert.Equal(t, SeverityCritical, BreachSeverity(BreachPercentage(600, 300)))
	assert.Equal(t, int64(0), BreachPercentage(10, 0))
}

func TestMinutes(t *testing.T) {
	assert.Equal(t, int64(5), Minutes(300))
	assert.Equal(t, int64(7), Minutes(400))
	assert.Equal(t, int64(0), Minutes(20))
}
