package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapmyco/home-agent-eval/model"
)

func record(id, category, difficulty string, tags []string, status model.Status, hasError bool, duration float64) model.TestRecord {
	return model.TestRecord{
		TestID:     id,
		Category:   category,
		Difficulty: difficulty,
		Tags:       tags,
		Status:     status,
		HasError:   hasError,
		Duration:   duration,
	}
}

func accumulate(t *testing.T, records ...model.TestRecord) *Accumulator {
	t.Helper()
	acc := NewAccumulator(len(records))
	for i, rec := range records {
		require.NoError(t, acc.Record(i, rec))
	}
	return acc
}

func TestFinalizeSummaryBuckets(t *testing.T) {
	acc := accumulate(t,
		record("a", "light", "easy", nil, model.StatusPassed, false, 1.0),
		record("b", "light", "easy", nil, model.StatusFailed, false, 1.0),
		// Invocation failure: errors bucket.
		record("c", "climate", "hard", nil, model.StatusError, true, 2.0),
		// Comparison failure: counts as failed.
		record("d", "climate", "hard", nil, model.StatusError, false, 2.0),
	)

	res, records, err := acc.Finalize(model.MetricsConfig{})
	require.NoError(t, err)
	require.Len(t, records, 4)

	assert.Equal(t, 4, res.Summary.Total)
	assert.Equal(t, 1, res.Summary.Passed)
	assert.Equal(t, 2, res.Summary.Failed)
	assert.Equal(t, 1, res.Summary.Errors)
	assert.Equal(t, 25.0, res.Summary.SuccessRate)
	assert.Equal(t, res.Summary.Total, res.Summary.Passed+res.Summary.Failed+res.Summary.Errors)
}

func TestFinalizeGroupOrderAndTotals(t *testing.T) {
	acc := accumulate(t,
		record("a", "light", "easy", []string{"light", "basic"}, model.StatusPassed, false, 1.0),
		record("b", "climate", "hard", []string{"climate"}, model.StatusFailed, false, 1.0),
		record("c", "light", "medium", []string{"light"}, model.StatusPassed, false, 1.0),
	)

	res, _, err := acc.Finalize(model.MetricsConfig{})
	require.NoError(t, err)

	// Categories keep first-seen order.
	require.Len(t, res.Categories, 2)
	assert.Equal(t, "light", res.Categories[0].Name)
	assert.Equal(t, "climate", res.Categories[1].Name)
	assert.Equal(t, 2, res.Categories[0].Total)
	assert.Equal(t, 100.0, res.Categories[0].SuccessRate)
	assert.Equal(t, 0.0, res.Categories[1].SuccessRate)

	// Category totals re-add to the run total.
	sum := 0
	for _, g := range res.Categories {
		sum += g.Total
	}
	assert.Equal(t, res.Summary.Total, sum)

	// Difficulties come out easy < medium < hard.
	require.Len(t, res.Difficulties, 3)
	assert.Equal(t, "easy", res.Difficulties[0].Name)
	assert.Equal(t, "medium", res.Difficulties[1].Name)
	assert.Equal(t, "hard", res.Difficulties[2].Name)

	// A record counts once per tag it carries.
	require.Len(t, res.Tags, 3)
	assert.Equal(t, "light", res.Tags[0].Name)
	assert.Equal(t, 2, res.Tags[0].Total)
}

func TestFinalizeResponseTimes(t *testing.T) {
	acc := accumulate(t,
		record("a", "c", "easy", nil, model.StatusPassed, false, 5.024),
		record("b", "c", "easy", nil, model.StatusFailed, false, 4.324),
		record("c", "c", "easy", nil, model.StatusPassed, false, 5.382),
		// Invocation errors are excluded from timing stats.
		record("d", "c", "easy", nil, model.StatusError, true, 60.0),
	)

	res, _, err := acc.Finalize(model.MetricsConfig{})
	require.NoError(t, err)
	require.NotNil(t, res.ResponseTimes)

	rt := res.ResponseTimes
	assert.Equal(t, 3, rt.Count)
	assert.Equal(t, 4.324, rt.Min)
	assert.Equal(t, 5.382, rt.Max)
	assert.Equal(t, 4.910, rt.Avg)
	assert.Equal(t, 5.024, rt.Median)
	assert.Equal(t, 5.382, rt.P90)
	assert.Equal(t, 5.382, rt.P95)
}

func TestPercentileNearestRank(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	assert.Equal(t, 1.0, percentile(sorted, 0.0))
	assert.Equal(t, 5.0, percentile(sorted, 0.5))
	assert.Equal(t, 9.0, percentile(sorted, 0.90))
	assert.Equal(t, 10.0, percentile(sorted, 0.95))
	assert.Equal(t, 10.0, percentile(sorted, 1.0))

	// Monotonic in p.
	prev := 0.0
	for p := 0.0; p <= 1.0; p += 0.05 {
		v := percentile(sorted, p)
		assert.GreaterOrEqual(t, v, prev)
		prev = v
	}

	// Single sample: every percentile is that sample.
	single := []float64{3.3}
	assert.Equal(t, 3.3, percentile(single, 0.5))
	assert.Equal(t, 3.3, percentile(single, 0.95))
}

func TestFinalizeConsistencyFaults(t *testing.T) {
	t.Run("unfilled slot", func(t *testing.T) {
		acc := NewAccumulator(2)
		require.NoError(t, acc.Record(0, record("a", "c", "", nil, model.StatusPassed, false, 1.0)))
		_, _, err := acc.Finalize(model.MetricsConfig{})
		assert.ErrorIs(t, err, model.ErrInternal)
	})

	t.Run("double write", func(t *testing.T) {
		acc := NewAccumulator(1)
		require.NoError(t, acc.Record(0, record("a", "c", "", nil, model.StatusPassed, false, 1.0)))
		err := acc.Record(0, record("a", "c", "", nil, model.StatusPassed, false, 1.0))
		assert.ErrorIs(t, err, model.ErrInternal)
	})

	t.Run("index out of range", func(t *testing.T) {
		acc := NewAccumulator(1)
		err := acc.Record(5, record("a", "c", "", nil, model.StatusPassed, false, 1.0))
		assert.ErrorIs(t, err, model.ErrInternal)
	})

	t.Run("negative duration", func(t *testing.T) {
		acc := accumulate(t, record("a", "c", "", nil, model.StatusPassed, false, -0.5))
		_, _, err := acc.Finalize(model.MetricsConfig{})
		assert.ErrorIs(t, err, model.ErrInternal)
	})
}

func TestValidateConfig(t *testing.T) {
	t.Run("unknown enabled metric", func(t *testing.T) {
		err := ValidateConfig(model.MetricsConfig{EnabledMetrics: []string{"success_vibes"}})
		assert.ErrorIs(t, err, model.ErrConfig)
	})

	t.Run("unknown custom type", func(t *testing.T) {
		err := ValidateConfig(model.MetricsConfig{CustomMetrics: []model.CustomMetric{
			{Name: "m", Type: "harmonic_mean"},
		}})
		assert.ErrorIs(t, err, model.ErrConfig)
	})

	t.Run("average_field without field", func(t *testing.T) {
		err := ValidateConfig(model.MetricsConfig{CustomMetrics: []model.CustomMetric{
			{Name: "m", Type: CustomAverageField},
		}})
		assert.ErrorIs(t, err, model.ErrConfig)
	})

	t.Run("valid", func(t *testing.T) {
		err := ValidateConfig(model.MetricsConfig{
			EnabledMetrics: []string{MetricOverallSuccessRate, MetricResponseTimes},
			CustomMetrics: []model.CustomMetric{
				{Name: "slow", Type: CustomAverageField, Field: "duration"},
				{Name: "errs", Type: CustomFilterCount, FilterField: "has_error", FilterValue: true},
			},
		})
		assert.NoError(t, err)
	})
}

func TestEvaluateCustomMetrics(t *testing.T) {
	records := []model.TestRecord{
		record("a", "light", "easy", nil, model.StatusPassed, false, 2.0),
		record("b", "light", "easy", nil, model.StatusFailed, false, 4.0),
		record("c", "climate", "hard", nil, model.StatusError, true, 6.0),
	}

	out, err := EvaluateCustom(records, []model.CustomMetric{
		{Name: "error_count", Type: CustomFilterCount, FilterField: "has_error", FilterValue: true},
		{Name: "passed_count", Type: CustomFilterCount, FilterField: "status", FilterValue: "passed"},
		{Name: "avg_duration", Type: CustomAverageField, Field: "duration"},
		{Name: "missing_field", Type: CustomAverageField, Field: "no.such.field"},
	})
	require.NoError(t, err)

	errCount := out["error_count"].(map[string]any)
	assert.Equal(t, 1, errCount["count"])
	assert.Equal(t, 3, errCount["total"])
	assert.Equal(t, 33.33, errCount["percentage"])

	passedCount := out["passed_count"].(map[string]any)
	assert.Equal(t, 1, passedCount["count"])

	avg := out["avg_duration"].(map[string]any)
	assert.Equal(t, 3, avg["count"])
	assert.Equal(t, 4.0, avg["average"])
	assert.Equal(t, 2.0, avg["min"])
	assert.Equal(t, 6.0, avg["max"])

	missing := out["missing_field"].(map[string]any)
	assert.Equal(t, 0, missing["count"])
}

func TestEnabledSetFiltersMetrics(t *testing.T) {
	acc := accumulate(t, record("a", "c", "easy", nil, model.StatusPassed, false, 1.0))

	res, _, err := acc.Finalize(model.MetricsConfig{
		EnabledMetrics: []string{MetricOverallSuccessRate},
	})
	require.NoError(t, err)
	assert.Nil(t, res.ResponseTimes)
	assert.Equal(t, []string{MetricOverallSuccessRate}, res.Enabled)
}
