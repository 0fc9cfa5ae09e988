package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapmyco/home-agent-eval/model"
)

func ptr(v float64) *float64 { return &v }

func gateResults() *Results {
	return &Results{
		Summary: Summary{Total: 10, Passed: 8, Failed: 2, SuccessRate: 80.0},
		Categories: []GroupStat{
			{Name: "light", Total: 5, Passed: 5, SuccessRate: 100.0},
			{Name: "climate", Total: 5, Passed: 3, SuccessRate: 60.0},
		},
		ResponseTimes: &ResponseTimes{Count: 10, Avg: 4.91, P95: 5.382},
	}
}

func TestEvaluateGatePasses(t *testing.T) {
	gate := EvaluateGate(gateResults(), model.Thresholds{
		OverallSuccessRate: ptr(75.0),
		ResponseTimeAvg:    ptr(5.0),
		ResponseTimeP95:    ptr(6.0),
	})

	assert.True(t, gate.Passed)
	assert.Empty(t, gate.Violations)
}

func TestEvaluateGateInclusiveBounds(t *testing.T) {
	res := gateResults()

	t.Run("rate exactly at minimum passes", func(t *testing.T) {
		gate := EvaluateGate(res, model.Thresholds{OverallSuccessRate: ptr(80.0)})
		assert.True(t, gate.Passed)
	})

	t.Run("time exactly at maximum passes", func(t *testing.T) {
		gate := EvaluateGate(res, model.Thresholds{
			ResponseTimeAvg: ptr(4.91),
			ResponseTimeP95: ptr(5.382),
		})
		assert.True(t, gate.Passed)
	})

	t.Run("rate just below minimum fails", func(t *testing.T) {
		gate := EvaluateGate(res, model.Thresholds{OverallSuccessRate: ptr(80.01)})
		assert.False(t, gate.Passed)
	})

	t.Run("time just above maximum fails", func(t *testing.T) {
		gate := EvaluateGate(res, model.Thresholds{ResponseTimeAvg: ptr(4.9)})
		assert.False(t, gate.Passed)
	})
}

func TestEvaluateGateCategoryMinimum(t *testing.T) {
	gate := EvaluateGate(gateResults(), model.Thresholds{CategoryMinimum: ptr(70.0)})

	assert.False(t, gate.Passed)
	require.Len(t, gate.Violations, 1)
	assert.Equal(t, "category_minimum[climate]", gate.Violations[0].Metric)
	assert.Equal(t, 70.0, gate.Violations[0].Threshold)
	assert.Equal(t, 60.0, gate.Violations[0].Actual)
}

func TestEvaluateGateViolationOrder(t *testing.T) {
	gate := EvaluateGate(gateResults(), model.Thresholds{
		OverallSuccessRate: ptr(90.0),
		CategoryMinimum:    ptr(99.0),
		ResponseTimeAvg:    ptr(1.0),
		ResponseTimeP95:    ptr(1.0),
	})

	assert.False(t, gate.Passed)
	require.Len(t, gate.Violations, 4)
	assert.Equal(t, "overall_success_rate", gate.Violations[0].Metric)
	assert.Equal(t, "category_minimum[climate]", gate.Violations[1].Metric)
	assert.Equal(t, "response_time_avg", gate.Violations[2].Metric)
	assert.Equal(t, "response_time_p95", gate.Violations[3].Metric)
}

func TestEvaluateGateNoThresholds(t *testing.T) {
	gate := EvaluateGate(gateResults(), model.Thresholds{})
	assert.True(t, gate.Passed)
}

func TestEvaluateGateSkipsTimingWithoutSamples(t *testing.T) {
	res := gateResults()
	res.ResponseTimes = nil

	gate := EvaluateGate(res, model.Thresholds{ResponseTimeAvg: ptr(0.001)})
	assert.True(t, gate.Passed)
}
