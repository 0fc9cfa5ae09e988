package model

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadTestCasesJSON(t *testing.T) {
	path := writeFixture(t, "cases.json", `[
		{
			"test_id": "light_on_001",
			"category": "light_control",
			"difficulty": "easy",
			"tags": ["light", "basic"],
			"input": {"text": "turn on the living room light"},
			"expected_output": [
				{"name": "call_service", "arguments": {"domain": "light", "service": "turn_on"}}
			]
		}
	]`)

	cases, err := LoadTestCases(path)
	require.NoError(t, err)
	require.Len(t, cases, 1)

	tc := cases[0]
	assert.Equal(t, "light_on_001", tc.ID)
	assert.Equal(t, "light_control", tc.Category)
	require.Len(t, tc.Expected, 1)
	assert.Equal(t, "call_service", tc.Expected[0].Name)
	assert.Equal(t, "light", tc.Expected[0].Arguments["domain"])
}

func TestLoadTestCasesJSONL(t *testing.T) {
	path := writeFixture(t, "cases.jsonl",
		`{"test_id": "a", "category": "c1", "input": {"text": "q1"}, "expected_output": [{"name": "t1"}]}

{"test_id": "b", "category": "c2", "input": {"text": "q2"}, "expected_output": [{"name": "t2"}]}
`)

	cases, err := LoadTestCases(path)
	require.NoError(t, err)
	require.Len(t, cases, 2)
	assert.Equal(t, "a", cases[0].ID)
	assert.Equal(t, "b", cases[1].ID)
}

func TestLoadTestCasesLegacyEnvelope(t *testing.T) {
	path := writeFixture(t, "legacy.json", `{
		"test_id": "legacy_001",
		"category": "climate",
		"input": {"text": "set temperature to 26"},
		"expected_output": {
			"choices": [
				{"message": {"tool_calls": [
					{"function": {"name": "call_service", "arguments": "{\"domain\": \"climate\", \"temperature\": 26}"}}
				]}},
				{"message": {"tool_calls": [
					{"function": {"name": "set_temperature", "arguments": {"temperature": 26}}}
				]}}
			]
		}
	}`)

	cases, err := LoadTestCases(path)
	require.NoError(t, err)
	require.Len(t, cases, 1)

	variants := cases[0].Expected
	require.Len(t, variants, 2)
	assert.Equal(t, "call_service", variants[0].Name)
	assert.Equal(t, "climate", variants[0].Arguments["domain"])
	assert.Equal(t, float64(26), variants[0].Arguments["temperature"])
	assert.Equal(t, "set_temperature", variants[1].Name)
}

func TestLoadTestCasesValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "missing expected_output",
			content: `[{"test_id": "x", "category": "c", "input": {"text": "q"}}]`,
		},
		{
			name:    "missing test_id",
			content: `[{"category": "c", "input": {"text": "q"}, "expected_output": [{"name": "t"}]}]`,
		},
		{
			name:    "missing input text",
			content: `[{"test_id": "x", "category": "c", "input": {"text": ""}, "expected_output": [{"name": "t"}]}]`,
		},
		{
			name:    "variant without tool name",
			content: `[{"test_id": "x", "category": "c", "input": {"text": "q"}, "expected_output": [{"arguments": {}}]}]`,
		},
		{
			name: "duplicate test ids",
			content: `[
				{"test_id": "x", "category": "c", "input": {"text": "q"}, "expected_output": [{"name": "t"}]},
				{"test_id": "x", "category": "c", "input": {"text": "q"}, "expected_output": [{"name": "t"}]}
			]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFixture(t, "bad.json", tt.content)
			_, err := LoadTestCases(path)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfig), "expected a config error, got: %v", err)
		})
	}
}

func TestLoadTestCasesUnsupportedFormat(t *testing.T) {
	path := writeFixture(t, "cases.yaml", "not json")
	_, err := LoadTestCases(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestLoadTestCaseDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.jsonl"),
		[]byte(`{"test_id": "second", "category": "c", "input": {"text": "q"}, "expected_output": [{"name": "t"}]}`+"\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"),
		[]byte(`[{"test_id": "first", "category": "c", "input": {"text": "q"}, "expected_output": [{"name": "t"}]}]`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	cases, err := LoadTestCaseDir(dir)
	require.NoError(t, err)
	require.Len(t, cases, 2)

	// Lexical file order decides fixture order across files.
	assert.Equal(t, "first", cases[0].ID)
	assert.Equal(t, "second", cases[1].ID)
}

func TestParseMetricsConfig(t *testing.T) {
	path := writeFixture(t, "metrics.yaml", `
enabled_metrics:
  - overall_success_rate
  - response_times
thresholds:
  overall_success_rate: 80.0
  category_minimum: 70.0
custom_metrics:
  - name: timeout_count
    type: filter_count
    filter_field: has_error
    filter_value: true
`)

	cfg, err := ParseMetricsConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"overall_success_rate", "response_times"}, cfg.EnabledMetrics)
	require.NotNil(t, cfg.Thresholds.OverallSuccessRate)
	assert.Equal(t, 80.0, *cfg.Thresholds.OverallSuccessRate)
	require.NotNil(t, cfg.Thresholds.CategoryMinimum)
	assert.Equal(t, 70.0, *cfg.Thresholds.CategoryMinimum)
	assert.Nil(t, cfg.Thresholds.ResponseTimeAvg)
	require.Len(t, cfg.CustomMetrics, 1)
	assert.Equal(t, "filter_count", cfg.CustomMetrics[0].Type)
}

func TestParseMetricsConfigRejectsAnonymousCustomMetric(t *testing.T) {
	path := writeFixture(t, "metrics.yaml", `
custom_metrics:
  - type: filter_count
    filter_field: status
`)
	_, err := ParseMetricsConfig(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestParseAgentConfig(t *testing.T) {
	path := writeFixture(t, "agent.yaml", `
name: zapmyco
mode: llm
provider: main
providers:
  - name: main
    type: OPENAI
    token: test-token
    model: gpt-4o-mini
`)

	cfg, err := ParseAgentConfig(path)
	require.NoError(t, err)
	assert.Equal(t, AgentModeLLM, cfg.Mode)

	p, err := cfg.FindProvider("main")
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, p.Type)
}

func TestParseAgentConfigValidation(t *testing.T) {
	t.Run("llm without provider", func(t *testing.T) {
		path := writeFixture(t, "agent.yaml", "name: a\nmode: llm\n")
		_, err := ParseAgentConfig(path)
		assert.ErrorIs(t, err, ErrConfig)
	})

	t.Run("mcp without command", func(t *testing.T) {
		path := writeFixture(t, "agent.yaml", "name: a\nmode: mcp\n")
		_, err := ParseAgentConfig(path)
		assert.ErrorIs(t, err, ErrConfig)
	})

	t.Run("unknown mode", func(t *testing.T) {
		path := writeFixture(t, "agent.yaml", "name: a\nmode: telepathy\n")
		_, err := ParseAgentConfig(path)
		assert.ErrorIs(t, err, ErrConfig)
	})

	t.Run("mode defaults to mock", func(t *testing.T) {
		path := writeFixture(t, "agent.yaml", "name: a\n")
		cfg, err := ParseAgentConfig(path)
		require.NoError(t, err)
		assert.Equal(t, AgentModeMock, cfg.Mode)
	})
}

func TestRenderTemplate(t *testing.T) {
	out := RenderTemplate("Bearer {{TOKEN}}", map[string]string{"TOKEN": "abc"})
	assert.Equal(t, "Bearer abc", out)

	// Broken templates fall back to the raw input.
	out = RenderTemplate("{{#broken", nil)
	assert.Equal(t, "{{#broken", out)
}
