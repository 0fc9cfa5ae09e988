package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/zapmyco/home-agent-eval/engine"
	"github.com/zapmyco/home-agent-eval/generator"
	"github.com/zapmyco/home-agent-eval/logger"
	"github.com/zapmyco/home-agent-eval/model"
	"github.com/zapmyco/home-agent-eval/version"
)

const (
	AppName = "home-agent-eval"
)

func main() {
	fixturePath := flag.String("f", "", "Path to the fixture file (JSON/JSONL)")
	datasetsDir := flag.String("d", "", "Path to a directory of fixture files")
	metricsPath := flag.String("m", "", "Path to the metrics configuration file (YAML)")
	agentPath := flag.String("a", "", "Path to the agent configuration file (YAML)")
	configPath := flag.String("c", "", "Path to the run configuration file (YAML)")
	outputPath := flag.String("o", "report.json", "Path to the output JSON report file")
	logPath := flag.String("l", "", "Path to the log file (if not set, logs to stdout)")
	parallel := flag.Bool("parallel", false, "Run tests concurrently")
	workers := flag.Int("workers", 0, "Maximum concurrent tests (implies -parallel)")
	timeout := flag.String("timeout", "", "Per-test invocation timeout, e.g. 60s")
	retries := flag.Int("retries", 0, "Extra invocation attempts per test")
	verbose := flag.Bool("verbose", false, "Enable verbose logging")
	showVersion := flag.Bool("v", false, "Show version and exit")
	genPath := flag.String("g", "", "Path to a generator config: generate fixtures instead of running")
	genOut := flag.String("out", "datasets", "Output directory for generated fixtures")
	genDryRun := flag.Bool("dry-run", false, "Print generated fixtures to stdout instead of writing")

	flag.Parse()

	fmt.Printf("Version: %s\nCommit: %s\nBuildDate: %s\n",
		version.Version, version.Commit, version.BuildDate)
	if *showVersion {
		return
	}

	logWriter, logFile, err := logger.SetupLogWriter(*logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to setup logging: %v\n", err)
		os.Exit(1)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	logger.SetupLogger(logWriter, *verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *genPath != "" {
		if err := generator.Run(*genPath, *genOut, *genDryRun); err != nil {
			logger.Logger.Error("Fixture generation failed", "error", err)
			os.Exit(1)
		}
		return
	}

	opts := engine.Options{
		FixturePath: *fixturePath,
		DatasetsDir: *datasetsDir,
		MetricsPath: *metricsPath,
		AgentPath:   *agentPath,
		OutputPath:  *outputPath,
		Parallel:    *parallel || *workers > 1,
		MaxWorkers:  *workers,
		Timeout:     engine.ParseTimeout(*timeout),
		Retries:     *retries,
		Verbose:     *verbose,
	}

	if *configPath != "" {
		cfg, err := model.ParseEvalConfig(*configPath)
		if err != nil {
			logger.Logger.Error("Invalid run configuration", "error", err)
			os.Exit(1)
		}
		applyConfig(&opts, cfg)
	}

	if opts.FixturePath == "" && opts.DatasetsDir == "" {
		fmt.Fprintf(os.Stderr, "Error: -f <fixture-file> or -d <dataset-dir> is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	logger.Logger.Info("Starting application",
		"app", AppName,
		"fixtures", opts.FixturePath,
		"datasets", opts.DatasetsDir,
		"output", opts.OutputPath,
		"logfile", *logPath,
		"verbose", *verbose)

	passed, err := engine.Run(ctx, opts)
	if err != nil {
		logger.Logger.Error("Evaluation aborted", "error", err)
		os.Exit(1)
	}
	if !passed {
		logger.Logger.Error("Evaluation finished below thresholds")
		os.Exit(1)
	}
}

// applyConfig fills options the command line left at their defaults.
func applyConfig(opts *engine.Options, cfg *model.EvalConfig) {
	if opts.FixturePath == "" {
		opts.FixturePath = cfg.TestFile
	}
	if opts.DatasetsDir == "" {
		opts.DatasetsDir = cfg.DatasetsDir
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = cfg.MetricsFile
	}
	if opts.AgentPath == "" {
		opts.AgentPath = cfg.AgentFile
	}
	if cfg.OutputPath != "" && opts.OutputPath == "report.json" {
		opts.OutputPath = cfg.OutputPath
	}
	if cfg.Parallel {
		opts.Parallel = true
	}
	if opts.MaxWorkers == 0 && cfg.MaxWorkers > 0 {
		opts.MaxWorkers = cfg.MaxWorkers
	}
	if opts.Retries == 0 && cfg.Retries > 0 {
		opts.Retries = cfg.Retries
	}
	if cfg.Timeout != "" && opts.Timeout == engine.DefaultTimeout {
		opts.Timeout = engine.ParseTimeout(cfg.Timeout)
	}
	if cfg.Verbose {
		opts.Verbose = true
	}
}
