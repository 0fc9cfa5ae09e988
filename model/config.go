package model

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// EvalConfig is the optional run configuration file. Command-line flags
// override any field set here.
type EvalConfig struct {
	TestFile    string            `yaml:"test_file"`
	DatasetsDir string            `yaml:"datasets_dir"`
	MetricsFile string            `yaml:"metrics_file"`
	AgentFile   string            `yaml:"agent_file"`
	OutputPath  string            `yaml:"output_path"`
	LogPath     string            `yaml:"log_path"`
	Timeout     string            `yaml:"timeout"`
	Parallel    bool              `yaml:"parallel"`
	MaxWorkers  int               `yaml:"max_workers"`
	Retries     int               `yaml:"retries"`
	Verbose     bool              `yaml:"verbose"`
	Variables   map[string]string `yaml:"variables,omitempty"`
}

// Thresholds gates report emission on aggregate quality. Rate thresholds
// pass when the measured value is >= the bound, time thresholds when the
// measured value is <= the bound; both bounds are inclusive.
type Thresholds struct {
	OverallSuccessRate *float64 `yaml:"overall_success_rate" json:"overall_success_rate,omitempty"`
	CategoryMinimum    *float64 `yaml:"category_minimum" json:"category_minimum,omitempty"`
	ResponseTimeAvg    *float64 `yaml:"response_time_avg" json:"response_time_avg,omitempty"`
	ResponseTimeP95    *float64 `yaml:"response_time_p95" json:"response_time_p95,omitempty"`
}

// CustomMetric declares one user-defined aggregate. Type selects the
// computation; the remaining fields parameterize it.
type CustomMetric struct {
	Name        string `yaml:"name" json:"name"`
	Type        string `yaml:"type" json:"type"`
	FilterField string `yaml:"filter_field,omitempty" json:"filter_field,omitempty"`
	FilterValue any    `yaml:"filter_value,omitempty" json:"filter_value,omitempty"`
	Field       string `yaml:"field,omitempty" json:"field,omitempty"`
}

// MetricsConfig selects which aggregates to compute and which thresholds
// gate the run. An empty EnabledMetrics list enables everything.
type MetricsConfig struct {
	EnabledMetrics []string       `yaml:"enabled_metrics"`
	Thresholds     Thresholds     `yaml:"thresholds"`
	CustomMetrics  []CustomMetric `yaml:"custom_metrics"`
}

// Provider is one LLM backend definition.
type Provider struct {
	Name     string       `yaml:"name"`
	Type     ProviderType `yaml:"type"`
	Token    string       `yaml:"token"`
	Secret   string       `yaml:"secret"`
	Model    string       `yaml:"model"`
	BaseURL  string       `yaml:"baseUrl"`
	Version  string       `yaml:"version"`
	Location string       `yaml:"location"`
	AuthType string       `yaml:"auth_type"` // For AZURE: "api_key" (default) or "entra_id"
}

type ProviderType string

const (
	ProviderGroq            ProviderType = "GROQ"
	ProviderGoogle          ProviderType = "GOOGLE"
	ProviderAnthropic       ProviderType = "ANTHROPIC"
	ProviderAmazonAnthropic ProviderType = "AMAZON-ANTHROPIC"
	ProviderOpenAI          ProviderType = "OPENAI"
	ProviderAzure           ProviderType = "AZURE"
)

// AgentMode selects how the agent under test is reached.
type AgentMode string

const (
	AgentModeMock AgentMode = "mock"
	AgentModeLLM  AgentMode = "llm"
	AgentModeMCP  AgentMode = "mcp"
)

// AgentConfig describes the agent under evaluation.
type AgentConfig struct {
	Name         string            `yaml:"name"`
	Version      string            `yaml:"version"`
	Mode         AgentMode         `yaml:"mode"`
	Provider     string            `yaml:"provider"`
	SystemPrompt string            `yaml:"system_prompt"`
	Command      string            `yaml:"command"` // stdio MCP server launch command
	Tool         string            `yaml:"tool"`    // MCP tool to call, default process_request
	Providers    []Provider        `yaml:"providers"`
	Variables    map[string]string `yaml:"variables,omitempty"`
}

func ParseEvalConfig(filename string) (*EvalConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, ConfigErrorf("reading run config: %v", err)
	}
	var cfg EvalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, ConfigErrorf("%s: %v", filename, err)
	}
	return &cfg, nil
}

func ParseMetricsConfig(filename string) (*MetricsConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, ConfigErrorf("reading metrics config: %v", err)
	}
	var cfg MetricsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, ConfigErrorf("%s: %v", filename, err)
	}
	for i, cm := range cfg.CustomMetrics {
		if strings.TrimSpace(cm.Name) == "" {
			return nil, ConfigErrorf("%s: custom metric %d has no name", filename, i)
		}
		if strings.TrimSpace(cm.Type) == "" {
			return nil, ConfigErrorf("%s: custom metric %q has no type", filename, cm.Name)
		}
	}
	return &cfg, nil
}

func ParseAgentConfig(filename string) (*AgentConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, ConfigErrorf("reading agent config: %v", err)
	}
	var cfg AgentConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, ConfigErrorf("%s: %v", filename, err)
	}
	if cfg.Mode == "" {
		cfg.Mode = AgentModeMock
	}
	switch cfg.Mode {
	case AgentModeMock:
	case AgentModeLLM:
		if cfg.Provider == "" {
			return nil, ConfigErrorf("%s: llm mode requires a provider name", filename)
		}
		if _, err := cfg.FindProvider(cfg.Provider); err != nil {
			return nil, ConfigErrorf("%s: %v", filename, err)
		}
	case AgentModeMCP:
		if strings.TrimSpace(cfg.Command) == "" {
			return nil, ConfigErrorf("%s: mcp mode requires a launch command", filename)
		}
	default:
		return nil, ConfigErrorf("%s: unknown agent mode %q", filename, cfg.Mode)
	}
	return &cfg, nil
}

// FindProvider returns the named provider definition.
func (c *AgentConfig) FindProvider(name string) (Provider, error) {
	for _, p := range c.Providers {
		if p.Name == name {
			return p, nil
		}
	}
	return Provider{}, fmt.Errorf("provider %q not defined", name)
}
