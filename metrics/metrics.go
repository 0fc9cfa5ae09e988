// Package metrics turns per-test records into the aggregate numbers the
// report carries: overall counts, grouped success rates, timing
// statistics and user-defined custom metrics.
package metrics

import (
	"math"
	"sort"
	"sync"

	"github.com/life4/genesis/slices"

	"github.com/zapmyco/home-agent-eval/model"
)

// Metric names accepted in enabled_metrics.
const (
	MetricOverallSuccessRate     = "overall_success_rate"
	MetricCategorySuccessRates   = "category_success_rates"
	MetricTagSuccessRates        = "tag_success_rates"
	MetricDifficultySuccessRates = "difficulty_success_rates"
	MetricResponseTimes          = "response_times"
)

var knownMetrics = map[string]struct{}{
	MetricOverallSuccessRate:     {},
	MetricCategorySuccessRates:   {},
	MetricTagSuccessRates:        {},
	MetricDifficultySuccessRates: {},
	MetricResponseTimes:          {},
}

// Summary is the overall pass/fail/error tally.
type Summary struct {
	Total       int     `json:"total"`
	Passed      int     `json:"passed"`
	Failed      int     `json:"failed"`
	Errors      int     `json:"errors"`
	SuccessRate float64 `json:"success_rate"`
}

// GroupStat is the tally for one category, tag or difficulty value.
type GroupStat struct {
	Name        string  `json:"name"`
	Total       int     `json:"total"`
	Passed      int     `json:"passed"`
	Failed      int     `json:"failed"`
	Errors      int     `json:"errors"`
	SuccessRate float64 `json:"success_rate"`
}

// ResponseTimes are nearest-rank timing statistics over the durations of
// every test whose invocation completed, in seconds.
type ResponseTimes struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Avg    float64 `json:"avg"`
	Median float64 `json:"median"`
	P90    float64 `json:"p90"`
	P95    float64 `json:"p95"`
}

// Results is everything the aggregation pass produces.
type Results struct {
	Summary       Summary
	Categories    []GroupStat
	Tags          []GroupStat
	Difficulties  []GroupStat
	ResponseTimes *ResponseTimes
	Custom        map[string]any
	Enabled       []string
}

// EnabledSet resolves the enabled_metrics list; an empty list enables
// every built-in metric.
func EnabledSet(cfg model.MetricsConfig) map[string]struct{} {
	if len(cfg.EnabledMetrics) == 0 {
		return knownMetrics
	}
	set := make(map[string]struct{}, len(cfg.EnabledMetrics))
	for _, name := range cfg.EnabledMetrics {
		set[name] = struct{}{}
	}
	return set
}

// ValidateConfig rejects unknown enabled metric names and unregistered
// custom metric types before any invocation runs.
func ValidateConfig(cfg model.MetricsConfig) error {
	for _, name := range cfg.EnabledMetrics {
		if _, ok := knownMetrics[name]; !ok {
			return model.ConfigErrorf("unknown metric %q in enabled_metrics", name)
		}
	}
	for _, cm := range cfg.CustomMetrics {
		if _, ok := customRegistry[cm.Type]; !ok {
			return model.ConfigErrorf("custom metric %q has unknown type %q", cm.Name, cm.Type)
		}
		if cm.Type == CustomAverageField && cm.Field == "" {
			return model.ConfigErrorf("custom metric %q needs a field", cm.Name)
		}
		if cm.Type == CustomFilterCount && cm.FilterField == "" {
			return model.ConfigErrorf("custom metric %q needs a filter_field", cm.Name)
		}
	}
	return nil
}

// Accumulator collects test records concurrently while preserving
// fixture order. Each worker writes the slot matching its fixture index.
type Accumulator struct {
	mu      sync.Mutex
	records []model.TestRecord
	filled  []bool
}

func NewAccumulator(size int) *Accumulator {
	return &Accumulator{
		records: make([]model.TestRecord, size),
		filled:  make([]bool, size),
	}
}

// Record stores the outcome for the fixture at the given index.
func (a *Accumulator) Record(index int, rec model.TestRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if index < 0 || index >= len(a.records) {
		return model.InternalErrorf("record index %d out of range [0,%d)", index, len(a.records))
	}
	if a.filled[index] {
		return model.InternalErrorf("record index %d written twice", index)
	}
	a.records[index] = rec
	a.filled[index] = true
	return nil
}

// Finalize verifies the accumulated records and computes every enabled
// metric. Records come back in fixture order.
func (a *Accumulator) Finalize(cfg model.MetricsConfig) (*Results, []model.TestRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i, ok := range a.filled {
		if !ok {
			return nil, nil, model.InternalErrorf("no record for fixture index %d", i)
		}
	}
	for i, rec := range a.records {
		if rec.Duration < 0 {
			return nil, nil, model.InternalErrorf("fixture index %d has negative duration %.3f", i, rec.Duration)
		}
	}

	enabled := EnabledSet(cfg)
	res := &Results{Enabled: sortedNames(enabled)}
	res.Summary = summarize(a.records)
	res.Categories = groupBy(a.records, func(r model.TestRecord) []string { return []string{r.Category} })
	res.Tags = groupBy(a.records, func(r model.TestRecord) []string { return r.Tags })
	res.Difficulties = groupBy(a.records, func(r model.TestRecord) []string {
		if r.Difficulty == "" {
			return nil
		}
		return []string{r.Difficulty}
	})
	sortDifficulties(res.Difficulties)

	// Category totals must re-add to the overall total; tags cannot
	// (multi-valued) and difficulty may be absent on some fixtures.
	if sum := sumTotals(res.Categories); sum != res.Summary.Total {
		return nil, nil, model.InternalErrorf("category totals %d do not add up to %d", sum, res.Summary.Total)
	}

	if _, ok := enabled[MetricResponseTimes]; ok {
		res.ResponseTimes = responseTimes(a.records)
	}

	custom, err := EvaluateCustom(a.records, cfg.CustomMetrics)
	if err != nil {
		return nil, nil, err
	}
	res.Custom = custom

	out := make([]model.TestRecord, len(a.records))
	copy(out, a.records)
	return res, out, nil
}

func summarize(records []model.TestRecord) Summary {
	s := Summary{Total: len(records)}
	for _, r := range records {
		switch bucket(r) {
		case model.StatusPassed:
			s.Passed++
		case model.StatusFailed:
			s.Failed++
		default:
			s.Errors++
		}
	}
	s.SuccessRate = rate(s.Passed, s.Total)
	return s
}

// bucket maps a record status to its counting bucket: invocation errors
// count as errors, comparison errors count as failed.
func bucket(r model.TestRecord) model.Status {
	switch {
	case r.Status == model.StatusPassed:
		return model.StatusPassed
	case r.Status == model.StatusError && r.HasError:
		return model.StatusError
	default:
		return model.StatusFailed
	}
}

// groupBy tallies records per group key in first-seen order.
func groupBy(records []model.TestRecord, keys func(model.TestRecord) []string) []GroupStat {
	index := make(map[string]int)
	var stats []GroupStat
	for _, r := range records {
		for _, key := range keys(r) {
			i, ok := index[key]
			if !ok {
				i = len(stats)
				index[key] = i
				stats = append(stats, GroupStat{Name: key})
			}
			stats[i].Total++
			switch bucket(r) {
			case model.StatusPassed:
				stats[i].Passed++
			case model.StatusFailed:
				stats[i].Failed++
			default:
				stats[i].Errors++
			}
		}
	}
	for i := range stats {
		stats[i].SuccessRate = rate(stats[i].Passed, stats[i].Total)
	}
	return stats
}

var difficultyRank = map[string]int{"easy": 0, "medium": 1, "hard": 2}

func sortDifficulties(stats []GroupStat) {
	sort.SliceStable(stats, func(i, j int) bool {
		ri, iKnown := difficultyRank[stats[i].Name]
		rj, jKnown := difficultyRank[stats[j].Name]
		if iKnown != jKnown {
			return iKnown
		}
		if iKnown && jKnown {
			return ri < rj
		}
		return false
	})
}

func responseTimes(records []model.TestRecord) *ResponseTimes {
	completed := slices.Filter(records, func(r model.TestRecord) bool { return !r.HasError })
	durations := slices.Map(completed, func(r model.TestRecord) float64 { return r.Duration })
	if len(durations) == 0 {
		return &ResponseTimes{}
	}
	sort.Float64s(durations)
	sum := 0.0
	for _, d := range durations {
		sum += d
	}
	return &ResponseTimes{
		Count:  len(durations),
		Min:    round3(durations[0]),
		Max:    round3(durations[len(durations)-1]),
		Avg:    round3(sum / float64(len(durations))),
		Median: round3(percentile(durations, 0.50)),
		P90:    round3(percentile(durations, 0.90)),
		P95:    round3(percentile(durations, 0.95)),
	}
}

// percentile is nearest-rank over an ascending-sorted sample: the value
// at 1-based index ceil(p*n), clamped to [1, n].
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p * float64(len(sorted))))
	if idx < 1 {
		idx = 1
	}
	if idx > len(sorted) {
		idx = len(sorted)
	}
	return sorted[idx-1]
}

func sumTotals(stats []GroupStat) int {
	sum := 0
	for _, s := range stats {
		sum += s.Total
	}
	return sum
}

func rate(passed, total int) float64 {
	if total == 0 {
		return 0
	}
	return round2(100 * float64(passed) / float64(total))
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }

func sortedNames(set map[string]struct{}) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
