// Package compare decides whether an agent response satisfies a test
// case's expected tool calls. Comparison is structural and tolerant:
// extra argument fields in the response are ignored, numbers compare by
// value across representations, and a case with several expected
// variants passes when any one of them matches.
package compare

import (
	"fmt"
	"sort"

	"github.com/bytedance/sonic"

	"github.com/zapmyco/home-agent-eval/model"
)

// ToolCall is one structured invocation extracted from a response payload.
type ToolCall struct {
	Name      string
	Arguments map[string]any
}

// ExtractToolCalls pulls the tool-call list out of a response payload.
// Both the flat {tool_calls: [...]} shape and the completion envelope
// {choices: [{message: {tool_calls: [...]}}]} are accepted. A payload
// whose calls cannot be interpreted is an error; a payload with no tool
// calls at all returns an empty slice.
func ExtractToolCalls(payload map[string]any) ([]ToolCall, error) {
	raw, ok := payload["tool_calls"]
	if !ok {
		raw = toolCallsFromEnvelope(payload)
	}
	if raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("tool_calls is not a list")
	}
	calls := make([]ToolCall, 0, len(list))
	for i, entry := range list {
		call, err := parseToolCall(entry)
		if err != nil {
			return nil, fmt.Errorf("tool call %d: %w", i, err)
		}
		calls = append(calls, call)
	}
	return calls, nil
}

func toolCallsFromEnvelope(payload map[string]any) any {
	choices, ok := payload["choices"].([]any)
	if !ok || len(choices) == 0 {
		return nil
	}
	choice, ok := choices[0].(map[string]any)
	if !ok {
		return nil
	}
	message, ok := choice["message"].(map[string]any)
	if !ok {
		return nil
	}
	return message["tool_calls"]
}

func parseToolCall(entry any) (ToolCall, error) {
	m, ok := entry.(map[string]any)
	if !ok {
		return ToolCall{}, fmt.Errorf("not an object")
	}
	if fn, ok := m["function"].(map[string]any); ok {
		m = fn
	}
	name, _ := m["name"].(string)
	if name == "" {
		return ToolCall{}, fmt.Errorf("missing tool name")
	}
	args, err := parseArguments(m["arguments"])
	if err != nil {
		return ToolCall{}, err
	}
	return ToolCall{Name: name, Arguments: args}, nil
}

func parseArguments(raw any) (map[string]any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return v, nil
	case string:
		var args map[string]any
		if err := sonic.Unmarshal([]byte(v), &args); err != nil {
			return nil, fmt.Errorf("decoding arguments: %w", err)
		}
		return args, nil
	default:
		return nil, fmt.Errorf("arguments have unsupported type %T", raw)
	}
}

// Evaluate compares a response payload against the test case's expected
// variants and returns a verdict. The first tool call in the response is
// the one judged. On a mismatch the diff reflects the expected variant
// with the fewest divergent fields.
func Evaluate(tc model.TestCase, payload map[string]any) model.Verdict {
	verdict := model.Verdict{TestID: tc.ID}

	calls, err := ExtractToolCalls(payload)
	if err != nil {
		verdict.Status = model.VerdictError
		verdict.Detail = err.Error()
		return verdict
	}
	if len(calls) == 0 {
		verdict.Status = model.VerdictMismatch
		verdict.Detail = "response contains no tool calls"
		verdict.Diff = []model.FieldDiff{{
			Field:    "name",
			Expected: tc.Expected[0].Name,
			Actual:   nil,
		}}
		return verdict
	}

	actual := calls[0]
	var best []model.FieldDiff
	for _, variant := range tc.Expected {
		diffs := diffCall(variant, actual)
		if len(diffs) == 0 {
			verdict.Status = model.VerdictMatch
			return verdict
		}
		if best == nil || len(diffs) < len(best) {
			best = diffs
		}
	}
	verdict.Status = model.VerdictMismatch
	verdict.Diff = best
	return verdict
}

// diffCall returns the divergent fields between one expected variant and
// the actual call, in deterministic (sorted-key) order.
func diffCall(expected model.ExpectedCall, actual ToolCall) []model.FieldDiff {
	var diffs []model.FieldDiff
	if expected.Name != actual.Name {
		diffs = append(diffs, model.FieldDiff{
			Field:    "name",
			Expected: expected.Name,
			Actual:   actual.Name,
		})
	}
	diffMap("", expected.Arguments, actual.Arguments, &diffs)
	return diffs
}

func diffMap(path string, expected, actual map[string]any, diffs *[]model.FieldDiff) {
	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		childPath := k
		if path != "" {
			childPath = path + "." + k
		}
		actualVal, present := actual[k]
		if !present {
			*diffs = append(*diffs, model.FieldDiff{
				Field:    childPath,
				Expected: expected[k],
				Actual:   nil,
			})
			continue
		}
		diffValue(childPath, expected[k], actualVal, diffs)
	}
}

func diffValue(path string, expected, actual any, diffs *[]model.FieldDiff) {
	// A string actual against a structured expectation may be an encoded
	// JSON value; decode it before judging.
	if s, ok := actual.(string); ok {
		if _, expectString := expected.(string); !expectString {
			var decoded any
			if err := sonic.Unmarshal([]byte(s), &decoded); err == nil {
				actual = decoded
			}
		}
	}

	switch exp := expected.(type) {
	case nil:
		if actual != nil {
			*diffs = append(*diffs, model.FieldDiff{Field: path, Expected: nil, Actual: actual})
		}
	case map[string]any:
		actMap, ok := actual.(map[string]any)
		if !ok {
			*diffs = append(*diffs, model.FieldDiff{Field: path, Expected: exp, Actual: actual})
			return
		}
		diffMap(path, exp, actMap, diffs)
	case []any:
		actList, ok := actual.([]any)
		if !ok || len(actList) != len(exp) {
			*diffs = append(*diffs, model.FieldDiff{Field: path, Expected: exp, Actual: actual})
			return
		}
		for i, item := range exp {
			diffValue(fmt.Sprintf("%s[%d]", path, i), item, actList[i], diffs)
		}
	case bool:
		actBool, ok := actual.(bool)
		if !ok || actBool != exp {
			*diffs = append(*diffs, model.FieldDiff{Field: path, Expected: exp, Actual: actual})
		}
	case string:
		actStr, ok := actual.(string)
		if !ok || actStr != exp {
			*diffs = append(*diffs, model.FieldDiff{Field: path, Expected: exp, Actual: actual})
		}
	default:
		expNum, expIsNum := asNumber(expected)
		actNum, actIsNum := asNumber(actual)
		if expIsNum && actIsNum {
			if expNum != actNum {
				*diffs = append(*diffs, model.FieldDiff{Field: path, Expected: expected, Actual: actual})
			}
			return
		}
		if fmt.Sprintf("%v", expected) != fmt.Sprintf("%v", actual) {
			*diffs = append(*diffs, model.FieldDiff{Field: path, Expected: expected, Actual: actual})
		}
	}
}

// asNumber normalizes the numeric representations produced by JSON and
// YAML decoding to a common value.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case interface{ Float64() (float64, error) }:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
