package mcpclient

import (
	"context"
	"fmt"
	"time"

	"magg/pkg/logging"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// DefaultStdioInitTimeout bounds subprocess startup plus the MCP handshake
// when the caller's context carries no deadline of its own.
const DefaultStdioInitTimeout = 10 * time.Second

// StdioClient dials a backend spawned as a local subprocess communicating
// over stdin/stdout. It performs no path-existence
// validation: failure surfaces only when the process exits or refuses the
// handshake, since some commands (module invocations, package runners) have
// no filesystem path to check.
type StdioClient struct {
	baseClient
	command string
	args    []string
	env     map[string]string
	cwd     string
}

// NewStdioClient creates a stdio-based client for the given launch spec.
func NewStdioClient(command string, args []string, env map[string]string, cwd string) *StdioClient {
	return &StdioClient{command: command, args: args, env: env, cwd: cwd}
}

// Initialize starts the subprocess and performs the MCP handshake.
func (c *StdioClient) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	logging.Debug("mcpclient", "starting stdio backend: %s %v", c.command, c.args)

	var envStrings []string
	for k, v := range c.env {
		envStrings = append(envStrings, fmt.Sprintf("%s=%s", k, v))
	}

	mcpClient, err := client.NewStdioMCPClient(c.command, envStrings, c.args...)
	if err != nil {
		return &SpawnError{Command: c.command, Err: err}
	}

	if c.onNotify != nil {
		mcpClient.OnNotification(c.onNotify)
	}

	initCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		initCtx, cancel = context.WithTimeout(ctx, DefaultStdioInitTimeout)
		defer cancel()
	}

	_, err = mcpClient.Initialize(initCtx, mcp.InitializeRequest{
		Params: struct {
			ProtocolVersion string                 `json:"protocolVersion"`
			Capabilities    mcp.ClientCapabilities `json:"capabilities"`
			ClientInfo      mcp.Implementation     `json:"clientInfo"`
		}{
			ProtocolVersion: protocolVersion,
			ClientInfo:      clientInfo(),
			Capabilities:    mcp.ClientCapabilities{},
		},
	})
	if err != nil {
		_ = mcpClient.Close()
		return &HandshakeError{Target: c.command, Err: err}
	}

	c.client = mcpClient
	c.connected = true
	return nil
}

func (c *StdioClient) Close() error { return c.closeClient() }

func (c *StdioClient) ListTools(ctx context.Context) ([]mcp.Tool, error) { return c.listTools(ctx) }

func (c *StdioClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	return c.callTool(ctx, name, args)
}

func (c *StdioClient) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	return c.listResources(ctx)
}

func (c *StdioClient) ListResourceTemplates(ctx context.Context) ([]mcp.ResourceTemplate, error) {
	return c.listResourceTemplates(ctx)
}

func (c *StdioClient) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	return c.readResource(ctx, uri)
}

func (c *StdioClient) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	return c.listPrompts(ctx)
}

func (c *StdioClient) GetPrompt(ctx context.Context, name string, args map[string]interface{}) (*mcp.GetPromptResult, error) {
	return c.getPrompt(ctx, name, args)
}

func (c *StdioClient) Ping(ctx context.Context) error { return c.ping(ctx) }
