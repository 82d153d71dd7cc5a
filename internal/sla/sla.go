// Package sla classifies how far an order has progressed through its
// fulfillment window.
package sla

import (
	"math"
	"time"
)

type Status string

const (
	StatusCompliant  Status = "COMPLIANT"
	StatusNearBreach Status = "NEAR_BREACH"
	StatusBreach     Status = "BREACH"
)

const DefaultNearBreachRatio = 0.2

type Severity string

const (
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Result holds every figure in seconds.
type Result struct {
	ElapsedSeconds   int64
	TargetSeconds    int64
	RemainingSeconds int64
	Status           Status
}

// Evaluator classifies orders against a near-breach ratio.
type Evaluator struct {
	nearBreachRatio float64
}

func NewEvaluator(nearBreachRatio float64) Evaluator {
	if nearBreachRatio <= 0 || nearBreachRatio >= 1 {
		nearBreachRatio = DefaultNearBreachRatio
	}
	return Evaluator{nearBreachRatio: nearBreachRatio}
}

// Evaluate uses the default near-breach ratio.
func Evaluate(orderDate time.Time, targetSeconds int64, now time.Time) Result {
	return NewEvaluator(DefaultNearBreachRatio).Evaluate(orderDate, targetSeconds, now)
}

// Evaluate computes elapsed time since orderDate and classifies it.
// elapsed == target is still COMPLIANT; only elapsed > target breaches.
// A non-positive target is treated as already breached.
func (e Evaluator) Evaluate(orderDate time.Time, targetSeconds int64, now time.Time) Result {
	elapsed := int64(math.Floor(now.Sub(orderDate).Seconds()))
	res := Result{
		ElapsedSeconds:   elapsed,
		TargetSeconds:    targetSeconds,
		RemainingSeconds: targetSeconds - elapsed,
	}

	switch {
	case targetSeconds <= 0:
		res.Status = StatusBreach
	case elapsed > targetSeconds:
		res.Status = StatusBreach
	case res.RemainingSeconds > 0 && float64(res.RemainingSeconds) <= e.nearBreachRatio*float64(targetSeconds):
		res.Status = StatusNearBreach
	default:
		res.Status = StatusCompliant
	}
	return res
}

// DisplayRemainingSeconds never goes below zero.
func (r Result) DisplayRemainingSeconds() int64 {
	if r.RemainingSeconds < 0 {
		return 0
	}
	return r.RemainingSeconds
}

func (r Result) BreachPercentage() int64 {
	return BreachPercentage(r.ElapsedSeconds, r.TargetSeconds)
}

// BreachPercentage is elapsed as a rounded percentage of target, 0 when target <= 0.
func BreachPercentage(elapsedSeconds, targetSeconds int64) int64 {
	if targetSeconds <= 0 {
		return 0
	}
	return int64(math.Round(float64(elapsedSeconds) / float64(targetSeconds) * 100))
}

// BreachSeverity escalates to CRITICAL once an order has used double its window.
func BreachSeverity(percentage int64) Severity {
	if percentage >= 200 {
		return SeverityCritical
	}
	return SeverityHigh
}

// Minutes converts seconds to whole minutes for display.
func Minutes(seconds int64) int64 {
	return int64(math.Round(float64(seconds) / 60))
}

func IsValidStatus(s string) bool {
	switch Status(s) {
	case StatusCompliant, StatusNearBreach, StatusBreach:
		return true
	}
	return false
}
