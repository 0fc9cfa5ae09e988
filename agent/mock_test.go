package agent

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapmyco/home-agent-eval/compare"
	"github.com/zapmyco/home-agent-eval/logger"
	"github.com/zapmyco/home-agent-eval/model"
)

func TestMain(m *testing.M) {
	logger.SetupLogger(io.Discard, false)
	os.Exit(m.Run())
}

func deviceContext(entities ...string) map[string]any {
	states := make([]any, 0, len(entities))
	for _, e := range entities {
		name := e
		if i := strings.Index(e, "."); i >= 0 {
			name = e[i+1:]
		}
		states = append(states, map[string]any{
			"entity_id": e,
			"state":     "off",
			"attributes": map[string]any{
				"friendly_name": strings.ReplaceAll(name, "_", " "),
			},
		})
	}
	return map[string]any{"device_states": states}
}

func firstCall(t *testing.T, payload map[string]any) compare.ToolCall {
	t.Helper()
	calls, err := compare.ExtractToolCalls(payload)
	require.NoError(t, err)
	require.NotEmpty(t, calls)
	return calls[0]
}

func TestMockInvokerTurnOn(t *testing.T) {
	inv := NewMockInvoker()
	payload, err := inv.Invoke(context.Background(), "turn on the living room light",
		deviceContext("light.living_room", "switch.kitchen"))
	require.NoError(t, err)

	call := firstCall(t, payload)
	assert.Equal(t, "call_service", call.Name)
	assert.Equal(t, "light", call.Arguments["domain"])
	assert.Equal(t, "turn_on", call.Arguments["service"])
	data := call.Arguments["service_data"].(map[string]any)
	assert.Equal(t, "light.living_room", data["entity_id"])
}

func TestMockInvokerTurnOff(t *testing.T) {
	inv := NewMockInvoker()
	payload, err := inv.Invoke(context.Background(), "switch off the kitchen",
		deviceContext("light.living_room", "switch.kitchen"))
	require.NoError(t, err)

	call := firstCall(t, payload)
	assert.Equal(t, "turn_off", call.Arguments["service"])
	data := call.Arguments["service_data"].(map[string]any)
	assert.Equal(t, "switch.kitchen", data["entity_id"])
}

func TestMockInvokerSetTemperature(t *testing.T) {
	inv := NewMockInvoker()
	payload, err := inv.Invoke(context.Background(), "set the living room to 26 degrees",
		deviceContext("climate.living_room"))
	require.NoError(t, err)

	call := firstCall(t, payload)
	assert.Equal(t, "climate", call.Arguments["domain"])
	assert.Equal(t, "set_temperature", call.Arguments["service"])
	data := call.Arguments["service_data"].(map[string]any)
	assert.Equal(t, 26.0, data["temperature"])
}

func TestMockInvokerUnknownDevice(t *testing.T) {
	inv := NewMockInvoker()
	payload, err := inv.Invoke(context.Background(), "turn on the sauna",
		deviceContext("light.living_room", "switch.kitchen"))
	require.NoError(t, err)

	calls, err := compare.ExtractToolCalls(payload)
	require.NoError(t, err)
	assert.Empty(t, calls)
}

func TestMockInvokerDeterministic(t *testing.T) {
	inv := NewMockInvoker()
	ctx := deviceContext("light.bedroom")

	first, err := inv.Invoke(context.Background(), "turn on the bedroom light", ctx)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := inv.Invoke(context.Background(), "turn on the bedroom light", ctx)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestNewInvokerModes(t *testing.T) {
	t.Run("mock", func(t *testing.T) {
		inv, err := NewInvoker(context.Background(), &model.AgentConfig{Name: "a", Mode: model.AgentModeMock})
		require.NoError(t, err)
		assert.IsType(t, &MockInvoker{}, inv)
	})

	t.Run("unknown mode", func(t *testing.T) {
		_, err := NewInvoker(context.Background(), &model.AgentConfig{Name: "a", Mode: "quantum"})
		assert.ErrorIs(t, err, model.ErrConfig)
	})
}
