package agent

import (
	"context"
	"regexp"
	"strconv"
	"strings"
)

// MockInvoker is a deterministic rule-based stand-in for the real agent.
// It reads the fixture's mock_context device states, finds the entity the
// command refers to and emits the matching call_service invocation. It
// exists for offline runs and harness tests; it never reaches a network.
type MockInvoker struct{}

func NewMockInvoker() *MockInvoker {
	return &MockInvoker{}
}

var temperatureRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:度|°|degrees?)`)

func (m *MockInvoker) Invoke(_ context.Context, query string, mockContext map[string]any) (map[string]any, error) {
	entity := findEntity(query, mockContext)
	if entity == "" {
		return toolCallPayload("I could not find a matching device.", nil), nil
	}

	domain := entity
	if i := strings.Index(entity, "."); i > 0 {
		domain = entity[:i]
	}

	lower := strings.ToLower(query)
	args := map[string]any{
		"domain":       domain,
		"service_data": map[string]any{"entity_id": entity},
	}

	switch {
	case domain == "climate" && temperatureRe.MatchString(query):
		temp, _ := strconv.ParseFloat(temperatureRe.FindStringSubmatch(query)[1], 64)
		args["service"] = "set_temperature"
		args["service_data"] = map[string]any{"entity_id": entity, "temperature": temp}
	case containsAny(lower, "turn off", "switch off", "关闭", "关"):
		args["service"] = "turn_off"
	case containsAny(lower, "turn on", "switch on", "打开", "开"):
		args["service"] = "turn_on"
	case containsAny(lower, "toggle", "切换"):
		args["service"] = "toggle"
	default:
		return toolCallPayload("I did not understand the command.", nil), nil
	}

	return toolCallPayload("", []map[string]any{toolCall("call_service", args)}), nil
}

// findEntity matches the query against the entity ids and friendly names
// in the device states, falling back to the sole device when only one is
// listed.
func findEntity(query string, mockContext map[string]any) string {
	states, _ := mockContext["device_states"].([]any)
	lower := strings.ToLower(query)
	for _, raw := range states {
		state, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		entityID, _ := state["entity_id"].(string)
		if entityID == "" {
			continue
		}
		object := entityID
		if i := strings.Index(entityID, "."); i >= 0 {
			object = entityID[i+1:]
		}
		if strings.Contains(lower, strings.ReplaceAll(object, "_", " ")) || strings.Contains(lower, object) {
			return entityID
		}
		if attrs, ok := state["attributes"].(map[string]any); ok {
			if name, _ := attrs["friendly_name"].(string); name != "" && strings.Contains(query, name) {
				return entityID
			}
		}
	}
	if len(states) == 1 {
		if state, ok := states[0].(map[string]any); ok {
			id, _ := state["entity_id"].(string)
			return id
		}
	}
	return ""
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
