package model

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
)

// TestInput is the natural-language command handed to the agent.
type TestInput struct {
	Text string `json:"text"`
}

// ExpectedCall is one acceptable tool invocation for a test case. A case
// with several variants passes when the agent matches any one of them.
type ExpectedCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// TestCase is a single evaluation fixture.
type TestCase struct {
	ID          string         `json:"test_id"`
	Category    string         `json:"category"`
	Description string         `json:"description,omitempty"`
	Difficulty  string         `json:"difficulty,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Input       TestInput      `json:"input"`
	MockContext map[string]any `json:"mock_context,omitempty"`
	Expected    []ExpectedCall `json:"expected_output"`
}

// looseCall accepts both the flat {name, arguments} shape and the
// completion-style {function: {name, arguments}} wrapper, with arguments
// given either inline or as an encoded JSON string.
type looseCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Function  *struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

func (c looseCall) normalize() (ExpectedCall, error) {
	name, rawArgs := c.Name, c.Arguments
	if c.Function != nil {
		name, rawArgs = c.Function.Name, c.Function.Arguments
	}
	args, err := decodeArguments(rawArgs)
	if err != nil {
		return ExpectedCall{}, err
	}
	return ExpectedCall{Name: name, Arguments: args}, nil
}

func decodeArguments(raw json.RawMessage) (map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] == '"' {
		var encoded string
		if err := sonic.Unmarshal(trimmed, &encoded); err != nil {
			return nil, fmt.Errorf("decoding argument string: %w", err)
		}
		trimmed = []byte(encoded)
	}
	var args map[string]any
	if err := sonic.Unmarshal(trimmed, &args); err != nil {
		return nil, fmt.Errorf("decoding arguments: %w", err)
	}
	return args, nil
}

// UnmarshalJSON normalizes expected_output into a flat variant list.
// Accepted forms are a variant array and the legacy completion envelope
// where each choices[i].message.tool_calls[0] is one variant.
func (t *TestCase) UnmarshalJSON(data []byte) error {
	type plain TestCase
	aux := struct {
		*plain
		Expected json.RawMessage `json:"expected_output"`
	}{plain: (*plain)(t)}
	if err := sonic.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(bytes.TrimSpace(aux.Expected)) == 0 {
		t.Expected = nil
		return nil
	}
	variants, err := normalizeExpected(aux.Expected)
	if err != nil {
		return err
	}
	t.Expected = variants
	return nil
}

func normalizeExpected(raw json.RawMessage) ([]ExpectedCall, error) {
	trimmed := bytes.TrimSpace(raw)
	switch trimmed[0] {
	case '[':
		var loose []looseCall
		if err := sonic.Unmarshal(trimmed, &loose); err != nil {
			return nil, fmt.Errorf("expected_output: %w", err)
		}
		variants := make([]ExpectedCall, 0, len(loose))
		for _, c := range loose {
			v, err := c.normalize()
			if err != nil {
				return nil, fmt.Errorf("expected_output: %w", err)
			}
			variants = append(variants, v)
		}
		return variants, nil
	case '{':
		var envelope struct {
			Choices []struct {
				Message struct {
					ToolCalls []looseCall `json:"tool_calls"`
				} `json:"message"`
			} `json:"choices"`
		}
		if err := sonic.Unmarshal(trimmed, &envelope); err != nil {
			return nil, fmt.Errorf("expected_output: %w", err)
		}
		if len(envelope.Choices) == 0 {
			return nil, fmt.Errorf("expected_output: envelope has no choices")
		}
		variants := make([]ExpectedCall, 0, len(envelope.Choices))
		for i, choice := range envelope.Choices {
			if len(choice.Message.ToolCalls) == 0 {
				return nil, fmt.Errorf("expected_output: choice %d has no tool calls", i)
			}
			v, err := choice.Message.ToolCalls[0].normalize()
			if err != nil {
				return nil, fmt.Errorf("expected_output: choice %d: %w", i, err)
			}
			variants = append(variants, v)
		}
		return variants, nil
	default:
		return nil, fmt.Errorf("expected_output: unsupported shape")
	}
}

func (t TestCase) validate(source string, index int) error {
	where := fmt.Sprintf("%s entry %d", source, index)
	if t.ID != "" {
		where = fmt.Sprintf("%s (%s)", where, t.ID)
	}
	if t.ID == "" {
		return ConfigErrorf("%s: missing test_id", where)
	}
	if strings.TrimSpace(t.Input.Text) == "" {
		return ConfigErrorf("%s: missing input.text", where)
	}
	if len(t.Expected) == 0 {
		return ConfigErrorf("%s: missing expected_output", where)
	}
	for i, v := range t.Expected {
		if v.Name == "" {
			return ConfigErrorf("%s: expected_output variant %d has no tool name", where, i)
		}
	}
	return nil
}

// LoadTestCases reads fixtures from a .json file (one case or an array)
// or a .jsonl file (one case per non-empty line) and validates them.
func LoadTestCases(path string) ([]TestCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ConfigErrorf("reading fixtures: %v", err)
	}
	var cases []TestCase
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		cases, err = parseJSONCases(data)
	case ".jsonl":
		cases, err = parseJSONLCases(data)
	default:
		return nil, ConfigErrorf("%s: unsupported fixture format %q", path, filepath.Ext(path))
	}
	if err != nil {
		return nil, ConfigErrorf("%s: %v", path, err)
	}
	if err := ValidateTestCases(path, cases); err != nil {
		return nil, err
	}
	return cases, nil
}

func parseJSONCases(data []byte) ([]TestCase, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty document")
	}
	if trimmed[0] == '{' {
		var single TestCase
		if err := sonic.Unmarshal(trimmed, &single); err != nil {
			return nil, err
		}
		return []TestCase{single}, nil
	}
	var cases []TestCase
	if err := sonic.Unmarshal(trimmed, &cases); err != nil {
		return nil, err
	}
	return cases, nil
}

func parseJSONLCases(data []byte) ([]TestCase, error) {
	var cases []TestCase
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var tc TestCase
		if err := sonic.Unmarshal(text, &tc); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		cases = append(cases, tc)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cases, nil
}

// LoadTestCaseDir loads every fixture file under dir in lexical order.
func LoadTestCaseDir(dir string) ([]TestCase, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, ConfigErrorf("reading dataset directory: %v", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".json", ".jsonl":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		return nil, ConfigErrorf("%s: no fixture files found", dir)
	}
	var cases []TestCase
	for _, p := range paths {
		fileCases, err := LoadTestCases(p)
		if err != nil {
			return nil, err
		}
		cases = append(cases, fileCases...)
	}
	if err := ValidateTestCases(dir, cases); err != nil {
		return nil, err
	}
	return cases, nil
}

// ValidateTestCases checks each case and rejects duplicate test ids.
func ValidateTestCases(source string, cases []TestCase) error {
	if len(cases) == 0 {
		return ConfigErrorf("%s: no test cases", source)
	}
	seen := make(map[string]struct{}, len(cases))
	for i, tc := range cases {
		if err := tc.validate(source, i); err != nil {
			return err
		}
		if _, dup := seen[tc.ID]; dup {
			return ConfigErrorf("%s: duplicate test_id %q", source, tc.ID)
		}
		seen[tc.ID] = struct{}{}
	}
	return nil
}
