// Package agent reaches the conversational agent under evaluation and
// returns its raw response payload. Three transports exist: a
// deterministic in-process mock, a tool-calling LLM via langchaingo, and
// a stdio MCP server.
package agent

import (
	"context"

	"github.com/zapmyco/home-agent-eval/logger"
	"github.com/zapmyco/home-agent-eval/model"
)

// Invoker produces the agent's raw response for one natural-language
// command. The payload shape is whatever the agent emits; interpretation
// is the comparator's job.
type Invoker interface {
	Invoke(ctx context.Context, query string, mockContext map[string]any) (map[string]any, error)
}

// Closer is implemented by invokers holding external resources.
type Closer interface {
	Close() error
}

// NewInvoker builds the invoker selected by the agent config.
func NewInvoker(ctx context.Context, cfg *model.AgentConfig) (Invoker, error) {
	cfg.ExpandConfig()
	logger.Logger.Info("Creating agent invoker", "agent", cfg.Name, "mode", cfg.Mode)
	switch cfg.Mode {
	case model.AgentModeMock, "":
		return NewMockInvoker(), nil
	case model.AgentModeLLM:
		return NewLLMInvoker(ctx, cfg)
	case model.AgentModeMCP:
		return NewMCPInvoker(ctx, cfg)
	default:
		return nil, model.ConfigErrorf("unknown agent mode %q", cfg.Mode)
	}
}

// CloseInvoker closes the invoker when it holds external resources.
func CloseInvoker(inv Invoker) {
	if c, ok := inv.(Closer); ok {
		if err := c.Close(); err != nil {
			logger.Logger.Warn("Error closing invoker", "error", err)
		}
	}
}

// toolCallPayload is the flat response shape every invoker normalizes to.
func toolCallPayload(content string, calls []map[string]any) map[string]any {
	payload := map[string]any{
		"content": content,
	}
	list := make([]any, len(calls))
	for i, c := range calls {
		list[i] = any(c)
	}
	payload["tool_calls"] = list
	return payload
}

func toolCall(name string, args map[string]any) map[string]any {
	return map[string]any{
		"name":      name,
		"arguments": args,
	}
}
