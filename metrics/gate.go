package metrics

import (
	"fmt"

	"github.com/zapmyco/home-agent-eval/model"
)

// Violation is one threshold the run did not clear.
type Violation struct {
	Metric    string  `json:"metric"`
	Threshold float64 `json:"threshold"`
	Actual    float64 `json:"actual"`
}

// GateResult is the pass/fail decision over every configured threshold.
type GateResult struct {
	Passed     bool        `json:"passed"`
	Violations []Violation `json:"violations,omitempty"`
}

// EvaluateGate checks the aggregated results against the configured
// thresholds. Rate bounds are minimums, time bounds are maximums, and a
// value exactly at its bound passes. Violations come back in a fixed
// order: overall rate, per-category minimums in first-seen category
// order, then timing bounds.
func EvaluateGate(res *Results, th model.Thresholds) GateResult {
	gate := GateResult{Passed: true}

	if th.OverallSuccessRate != nil && res.Summary.SuccessRate < *th.OverallSuccessRate {
		gate.fail(Violation{
			Metric:    "overall_success_rate",
			Threshold: *th.OverallSuccessRate,
			Actual:    res.Summary.SuccessRate,
		})
	}
	if th.CategoryMinimum != nil {
		for _, g := range res.Categories {
			if g.SuccessRate < *th.CategoryMinimum {
				gate.fail(Violation{
					Metric:    fmt.Sprintf("category_minimum[%s]", g.Name),
					Threshold: *th.CategoryMinimum,
					Actual:    g.SuccessRate,
				})
			}
		}
	}
	if res.ResponseTimes != nil && res.ResponseTimes.Count > 0 {
		if th.ResponseTimeAvg != nil && res.ResponseTimes.Avg > *th.ResponseTimeAvg {
			gate.fail(Violation{
				Metric:    "response_time_avg",
				Threshold: *th.ResponseTimeAvg,
				Actual:    res.ResponseTimes.Avg,
			})
		}
		if th.ResponseTimeP95 != nil && res.ResponseTimes.P95 > *th.ResponseTimeP95 {
			gate.fail(Violation{
				Metric:    "response_time_p95",
				Threshold: *th.ResponseTimeP95,
				Actual:    res.ResponseTimes.P95,
			})
		}
	}
	return gate
}

func (g *GateResult) fail(v Violation) {
	g.Passed = false
	g.Violations = append(g.Violations, v)
}
