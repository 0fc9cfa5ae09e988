// Package report assembles the final evaluation report and serializes it
// deterministically: two runs over the same fixtures with the same
// outcomes produce byte-identical JSON apart from the timestamp and run
// id fields.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/life4/genesis/slices"

	"github.com/zapmyco/home-agent-eval/logger"
	"github.com/zapmyco/home-agent-eval/metrics"
	"github.com/zapmyco/home-agent-eval/model"
)

// chartTagLimit caps the tag chart at the most frequent tags.
const chartTagLimit = 10

var jsonCfg = sonic.Config{
	SortMapKeys: true,
}.Froze()

// AgentInfo identifies the agent under evaluation.
type AgentInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// ChartSeries is one parallel label/value projection for rendering.
type ChartSeries struct {
	Labels       []string  `json:"labels"`
	SuccessRates []float64 `json:"success_rates"`
	Counts       []int     `json:"counts"`
}

// ChartData carries the grouped results re-projected for charting.
type ChartData struct {
	Categories   ChartSeries `json:"categories"`
	Difficulties ChartSeries `json:"difficulties"`
	Tags         ChartSeries `json:"tags"`
}

// Report is the full evaluation output document.
type Report struct {
	Title             string              `json:"title"`
	RunID             string              `json:"run_id"`
	Timestamp         string              `json:"timestamp"`
	Agent             AgentInfo           `json:"agent"`
	Duration          string              `json:"duration"`
	Summary           metrics.Summary     `json:"summary"`
	Metrics           map[string]any      `json:"metrics"`
	CategoryResults   []metrics.GroupStat `json:"category_results"`
	TagResults        []metrics.GroupStat `json:"tag_results,omitempty"`
	DifficultyResults []metrics.GroupStat `json:"difficulty_results,omitempty"`
	ChartData         ChartData           `json:"chart_data"`
	Gate              metrics.GateResult  `json:"gate"`
	TestDetails       []model.TestRecord  `json:"test_details"`
}

// Meta holds the run identity fields that vary between otherwise
// identical runs. Tests pin them to fixed values.
type Meta struct {
	RunID     string
	Timestamp time.Time
	Agent     AgentInfo
	WallClock time.Duration
}

// Assemble builds the report from aggregation output. Records must
// already be in fixture order; the report preserves that order.
func Assemble(meta Meta, res *metrics.Results, gate metrics.GateResult, records []model.TestRecord) *Report {
	enabled := make(map[string]struct{}, len(res.Enabled))
	for _, name := range res.Enabled {
		enabled[name] = struct{}{}
	}

	metricsMap := make(map[string]any)
	if _, ok := enabled[metrics.MetricOverallSuccessRate]; ok {
		metricsMap[metrics.MetricOverallSuccessRate] = res.Summary.SuccessRate
	}
	if _, ok := enabled[metrics.MetricCategorySuccessRates]; ok {
		metricsMap[metrics.MetricCategorySuccessRates] = rateMap(res.Categories)
	}
	if _, ok := enabled[metrics.MetricTagSuccessRates]; ok {
		metricsMap[metrics.MetricTagSuccessRates] = rateMap(res.Tags)
	}
	if _, ok := enabled[metrics.MetricDifficultySuccessRates]; ok {
		metricsMap[metrics.MetricDifficultySuccessRates] = rateMap(res.Difficulties)
	}
	if res.ResponseTimes != nil {
		metricsMap[metrics.MetricResponseTimes] = res.ResponseTimes
	}
	for name, val := range res.Custom {
		metricsMap[name] = val
	}

	return &Report{
		Title:             fmt.Sprintf("%s Evaluation Report", meta.Agent.Name),
		RunID:             meta.RunID,
		Timestamp:         meta.Timestamp.UTC().Format(time.RFC3339),
		Agent:             meta.Agent,
		Duration:          formatDuration(meta.WallClock),
		Summary:           res.Summary,
		Metrics:           metricsMap,
		CategoryResults:   res.Categories,
		TagResults:        res.Tags,
		DifficultyResults: res.Difficulties,
		ChartData:         buildChartData(res),
		Gate:              gate,
		TestDetails:       records,
	}
}

// Marshal serializes the report with sorted object keys so the output is
// stable across runs.
func (r *Report) Marshal() ([]byte, error) {
	data, err := jsonCfg.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, model.InternalErrorf("encoding report: %v", err)
	}
	return data, nil
}

// Write marshals the report and writes it to outputPath, creating parent
// directories as needed.
func (r *Report) Write(outputPath string) error {
	data, err := r.Marshal()
	if err != nil {
		return err
	}
	dir := filepath.Dir(outputPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(outputPath, data, logger.FilePermission); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}
	logger.Logger.Info("Report written", "path", outputPath, "size", len(data))
	return nil
}

func buildChartData(res *metrics.Results) ChartData {
	return ChartData{
		Categories:   toSeries(res.Categories),
		Difficulties: toSeries(res.Difficulties),
		Tags:         toSeries(topTags(res.Tags)),
	}
}

func toSeries(stats []metrics.GroupStat) ChartSeries {
	return ChartSeries{
		Labels:       slices.Map(stats, func(g metrics.GroupStat) string { return g.Name }),
		SuccessRates: slices.Map(stats, func(g metrics.GroupStat) float64 { return g.SuccessRate }),
		Counts:       slices.Map(stats, func(g metrics.GroupStat) int { return g.Total }),
	}
}

// topTags keeps the most frequent tags, stable on first-seen order for
// equal counts.
func topTags(tags []metrics.GroupStat) []metrics.GroupStat {
	if len(tags) <= chartTagLimit {
		return tags
	}
	sorted := make([]metrics.GroupStat, len(tags))
	copy(sorted, tags)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Total > sorted[j].Total })
	return sorted[:chartTagLimit]
}

func rateMap(stats []metrics.GroupStat) map[string]float64 {
	out := make(map[string]float64, len(stats))
	for _, g := range stats {
		out[g.Name] = g.SuccessRate
	}
	return out
}

func formatDuration(d time.Duration) string {
	secs := d.Seconds()
	switch {
	case secs < 60:
		return fmt.Sprintf("%.1fs", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm %ds", int(secs)/60, int(secs)%60)
	default:
		return fmt.Sprintf("%dh %dm", int(secs)/3600, int(secs)%3600/60)
	}
}

// PrintSummary writes the console summary after a run.
func PrintSummary(r *Report) {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("[Summary] Evaluation Summary")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("  Agent:         %s\n", r.Agent.Name)
	fmt.Printf("  Total Tests:   %d\n", r.Summary.Total)
	fmt.Printf("  Passed:        %d (%.2f%%)\n", r.Summary.Passed, r.Summary.SuccessRate)
	fmt.Printf("  Failed:        %d\n", r.Summary.Failed)
	fmt.Printf("  Errors:        %d\n", r.Summary.Errors)
	fmt.Printf("  Duration:      %s\n", r.Duration)
	for _, g := range r.CategoryResults {
		fmt.Printf("  [%s] %d/%d passed (%.2f%%)\n", g.Name, g.Passed, g.Total, g.SuccessRate)
	}
	if !r.Gate.Passed {
		fmt.Println(strings.Repeat("-", 80))
		fmt.Println("  Threshold violations:")
		for _, v := range r.Gate.Violations {
			fmt.Printf("    %s: threshold %.2f, actual %.2f\n", v.Metric, v.Threshold, v.Actual)
		}
	}
	fmt.Println(strings.Repeat("=", 80))

	logger.Logger.Info("Evaluation summary",
		"total", r.Summary.Total,
		"passed", r.Summary.Passed,
		"failed", r.Summary.Failed,
		"errors", r.Summary.Errors,
		"success_rate", fmt.Sprintf("%.2f%%", r.Summary.SuccessRate),
		"gate_passed", r.Gate.Passed)
}
