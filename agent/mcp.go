package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/zapmyco/home-agent-eval/logger"
	"github.com/zapmyco/home-agent-eval/model"
	"github.com/zapmyco/home-agent-eval/version"
)

const (
	mcpClientName       = "home-agent-eval"
	defaultMCPTool      = "process_request"
	mcpInitTimeout      = 30 * time.Second
	processStartupDelay = 500 * time.Millisecond
)

// MCPInvoker talks to an agent exposed as a stdio MCP server. Each test
// becomes one tool call carrying the command and its device context; the
// tool's text content is the agent's response payload.
type MCPInvoker struct {
	client mcpclient.MCPClient
	tool   string
}

func NewMCPInvoker(ctx context.Context, cfg *model.AgentConfig) (*MCPInvoker, error) {
	commandParts := strings.Fields(cfg.Command)
	if len(commandParts) == 0 {
		return nil, model.ConfigErrorf("agent %q: command is empty", cfg.Name)
	}
	command := commandParts[0]
	var args []string
	if len(commandParts) > 1 {
		args = commandParts[1:]
	}

	logger.Logger.Debug("Creating stdio client", "command", command, "args", args)
	var env []string
	client, err := mcpclient.NewStdioMCPClient(command, env, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to create stdio client: %w", err)
	}
	time.Sleep(processStartupDelay)

	initCtx, cancel := context.WithTimeout(ctx, mcpInitTimeout)
	defer cancel()

	initRequest := mcp.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{
		Name:    mcpClientName,
		Version: version.Version,
	}
	initRequest.Params.Capabilities = mcp.ClientCapabilities{}

	response, err := client.Initialize(initCtx, initRequest)
	if err != nil {
		closeClient(client)
		return nil, fmt.Errorf("initialize request failed: %w", err)
	}
	logger.Logger.Info("Agent MCP server initialized",
		"server_name", response.ServerInfo.Name,
		"server_version", response.ServerInfo.Version,
		"protocol_version", response.ProtocolVersion,
	)

	tool := cfg.Tool
	if tool == "" {
		tool = defaultMCPTool
	}
	return &MCPInvoker{client: client, tool: tool}, nil
}

func (m *MCPInvoker) Invoke(ctx context.Context, query string, mockContext map[string]any) (map[string]any, error) {
	arguments := map[string]any{
		"query": query,
	}
	if len(mockContext) > 0 {
		arguments["context"] = mockContext
	}

	result, err := m.client.CallTool(ctx, mcp.CallToolRequest{
		Request: mcp.Request{
			Method: "tools/call",
		},
		Params: struct {
			Name      string    `json:"name"`
			Arguments any       `json:"arguments,omitempty"`
			Meta      *mcp.Meta `json:"_meta,omitempty"`
		}{
			Name:      m.tool,
			Arguments: arguments,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call MCP tool '%s': %w", m.tool, err)
	}
	if result.IsError {
		return nil, fmt.Errorf("MCP tool '%s' returned an error", m.tool)
	}
	if len(result.Content) == 0 {
		return nil, fmt.Errorf("MCP tool '%s' returned no content", m.tool)
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return nil, fmt.Errorf("MCP tool '%s' returned non-text content", m.tool)
	}
	var payload map[string]any
	if err := sonic.Unmarshal([]byte(text.Text), &payload); err != nil {
		return nil, fmt.Errorf("failed to decode MCP tool result: %w", err)
	}
	return payload, nil
}

func (m *MCPInvoker) Close() error {
	return closeClient(m.client)
}

func closeClient(client mcpclient.MCPClient) error {
	if closer, ok := client.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
