package agent

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/tmc/langchaingo/llms"

	"github.com/zapmyco/home-agent-eval/logger"
	"github.com/zapmyco/home-agent-eval/model"
)

const defaultSystemPrompt = `You are a smart home assistant. Translate the user's command into a
single call_service tool call against the devices listed in the context.
Do not invent entities that are not in the context.`

// LLMInvoker asks a tool-calling model to translate commands directly.
type LLMInvoker struct {
	llm    llms.Model
	system string
}

func NewLLMInvoker(ctx context.Context, cfg *model.AgentConfig) (*LLMInvoker, error) {
	provider, err := cfg.FindProvider(cfg.Provider)
	if err != nil {
		return nil, model.ConfigErrorf("agent %q: %v", cfg.Name, err)
	}
	llmModel, err := CreateProvider(ctx, provider)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider %q: %w", provider.Name, err)
	}
	system := cfg.SystemPrompt
	if system == "" {
		system = defaultSystemPrompt
	}
	logger.Logger.Info("LLM invoker ready", "provider", provider.Name, "model", provider.Model)
	return &LLMInvoker{llm: llmModel, system: system}, nil
}

// deviceControlTools is the toolset offered to the model.
var deviceControlTools = []llms.Tool{
	{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        "call_service",
			Description: "Call a home automation service on one or more entities",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"domain": map[string]any{
						"type":        "string",
						"description": "Service domain, e.g. light, switch, climate",
					},
					"service": map[string]any{
						"type":        "string",
						"description": "Service to call, e.g. turn_on, set_temperature",
					},
					"service_data": map[string]any{
						"type":        "object",
						"description": "Service payload including entity_id",
					},
				},
				"required": []string{"domain", "service"},
			},
		},
	},
}

func (l *LLMInvoker) Invoke(ctx context.Context, query string, mockContext map[string]any) (map[string]any, error) {
	msgs := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, l.system),
	}
	if len(mockContext) > 0 {
		contextJSON, err := sonic.MarshalString(mockContext)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal device context: %w", err)
		}
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem,
			"Current device context:\n"+contextJSON))
	}
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, query))

	resp, err := l.llm.GenerateContent(ctx, msgs, llms.WithTools(deviceControlTools))
	if err != nil {
		return nil, fmt.Errorf("LLM generation error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("LLM returned no choices")
	}

	choice := resp.Choices[0]
	calls := make([]map[string]any, 0, len(choice.ToolCalls))
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		// Arguments stay as the raw JSON string; the comparator decodes.
		calls = append(calls, map[string]any{
			"name":      tc.FunctionCall.Name,
			"arguments": tc.FunctionCall.Arguments,
		})
	}
	return toolCallPayload(choice.Content, calls), nil
}
