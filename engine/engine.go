// Package engine drives an evaluation run: it loads fixtures and config,
// invokes the agent per test with bounded concurrency, compares the
// responses, aggregates metrics, applies thresholds and writes the
// report.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/zapmyco/home-agent-eval/agent"
	"github.com/zapmyco/home-agent-eval/compare"
	"github.com/zapmyco/home-agent-eval/logger"
	"github.com/zapmyco/home-agent-eval/metrics"
	"github.com/zapmyco/home-agent-eval/model"
	"github.com/zapmyco/home-agent-eval/report"
)

const (
	DefaultTimeout    = 60 * time.Second
	DefaultMaxWorkers = 4
	retryDelay        = 1 * time.Second
)

// Options is the fully-resolved run configuration.
type Options struct {
	FixturePath string
	DatasetsDir string
	MetricsPath string
	AgentPath   string
	OutputPath  string
	Parallel    bool
	MaxWorkers  int
	Timeout     time.Duration
	Retries     int
	Verbose     bool

	// Invoker overrides the configured agent transport when non-nil.
	Invoker agent.Invoker
}

// Run executes a full evaluation. It returns whether the threshold gate
// passed; a non-nil error means the run aborted and no verdict exists.
func Run(ctx context.Context, opts Options) (bool, error) {
	started := time.Now()

	cases, err := loadCases(opts)
	if err != nil {
		return false, err
	}

	metricsCfg := &model.MetricsConfig{}
	if opts.MetricsPath != "" {
		metricsCfg, err = model.ParseMetricsConfig(opts.MetricsPath)
		if err != nil {
			return false, err
		}
	}
	if err := metrics.ValidateConfig(*metricsCfg); err != nil {
		return false, err
	}

	agentCfg := &model.AgentConfig{Name: "agent", Mode: model.AgentModeMock}
	if opts.AgentPath != "" {
		agentCfg, err = model.ParseAgentConfig(opts.AgentPath)
		if err != nil {
			return false, err
		}
	}

	invoker := opts.Invoker
	if invoker == nil {
		invoker, err = agent.NewInvoker(ctx, agentCfg)
		if err != nil {
			return false, err
		}
		defer agent.CloseInvoker(invoker)
	}

	logger.Logger.Info("Starting evaluation",
		"agent", agentCfg.Name,
		"tests", len(cases),
		"parallel", opts.Parallel,
		"workers", workerCount(opts),
	)

	acc := metrics.NewAccumulator(len(cases))
	if err := runAll(ctx, opts, invoker, cases, acc); err != nil {
		return false, err
	}

	results, records, err := acc.Finalize(*metricsCfg)
	if err != nil {
		return false, err
	}

	gate := metrics.EvaluateGate(results, metricsCfg.Thresholds)

	rep := report.Assemble(report.Meta{
		RunID:     uuid.NewString(),
		Timestamp: time.Now(),
		Agent:     report.AgentInfo{Name: agentCfg.Name, Version: agentCfg.Version},
		WallClock: time.Since(started),
	}, results, gate, records)

	if opts.OutputPath != "" {
		if err := rep.Write(opts.OutputPath); err != nil {
			return false, err
		}
	}
	report.PrintSummary(rep)

	return gate.Passed, nil
}

func loadCases(opts Options) ([]model.TestCase, error) {
	switch {
	case opts.FixturePath != "":
		return model.LoadTestCases(opts.FixturePath)
	case opts.DatasetsDir != "":
		return model.LoadTestCaseDir(opts.DatasetsDir)
	default:
		return nil, model.ConfigErrorf("no fixture file or dataset directory given")
	}
}

func workerCount(opts Options) int {
	if !opts.Parallel {
		return 1
	}
	if opts.MaxWorkers > 0 {
		return opts.MaxWorkers
	}
	return DefaultMaxWorkers
}

// runAll executes every test case with at most workerCount in flight.
// Each worker writes its fixture slot in the accumulator, so completion
// order never reorders the report.
func runAll(ctx context.Context, opts Options, invoker agent.Invoker, cases []model.TestCase, acc *metrics.Accumulator) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workerCount(opts))

	for i, tc := range cases {
		g.Go(func() error {
			rec := runOne(gctx, opts, invoker, tc)
			return acc.Record(i, rec)
		})
	}
	return g.Wait()
}

func runOne(ctx context.Context, opts Options, invoker agent.Invoker, tc model.TestCase) model.TestRecord {
	inv := invoke(ctx, opts, invoker, tc)
	if inv.HasError {
		logger.Logger.Warn("Invocation failed",
			"test_id", tc.ID,
			"error", inv.Error,
			"duration", fmt.Sprintf("%.3fs", inv.Duration))
		return model.NewTestRecord(tc, inv, nil)
	}

	verdict := compare.Evaluate(tc, inv.Payload)
	if opts.Verbose {
		logger.Logger.Debug("Test evaluated",
			"test_id", tc.ID,
			"verdict", verdict.Status,
			"duration", fmt.Sprintf("%.3fs", inv.Duration))
	}
	return model.NewTestRecord(tc, inv, &verdict)
}

// invoke calls the agent for one test, with a deadline per attempt. The
// default is a single attempt; opts.Retries adds extra ones. Duration is
// wall time across all attempts, so a timed-out test reports the elapsed
// time at cancellation.
func invoke(ctx context.Context, opts Options, invoker agent.Invoker, tc model.TestCase) model.InvocationResult {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	attempts := opts.Retries + 1
	if attempts < 1 {
		attempts = 1
	}
	started := time.Now()

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		payload, err := invoker.Invoke(callCtx, tc.Input.Text, tc.MockContext)
		cancel()
		if err == nil {
			return model.InvocationResult{
				TestID:   tc.ID,
				Payload:  payload,
				Duration: time.Since(started).Seconds(),
				Retries:  attempt,
			}
		}
		lastErr = err
		if attempt < attempts-1 {
			logger.Logger.Warn("Retrying invocation",
				"test_id", tc.ID,
				"attempt", attempt+1,
				"error", err)
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
			}
		}
	}

	return model.InvocationResult{
		TestID:   tc.ID,
		Duration: time.Since(started).Seconds(),
		Retries:  attempts - 1,
		HasError: true,
		Error:    lastErr.Error(),
	}
}

// IsConfigError reports whether the run failed before any invocation.
func IsConfigError(err error) bool {
	return errors.Is(err, model.ErrConfig)
}

// ParseTimeout parses a duration string, falling back to the default.
func ParseTimeout(timeoutStr string) time.Duration {
	if timeoutStr == "" {
		return DefaultTimeout
	}
	dur, err := time.ParseDuration(timeoutStr)
	if err != nil || dur < 0 {
		logger.Logger.Warn("Invalid timeout, using default",
			"timeout", timeoutStr,
			"default", DefaultTimeout)
		return DefaultTimeout
	}
	return dur
}
