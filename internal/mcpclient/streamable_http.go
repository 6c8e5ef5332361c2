package mcpclient

import (
	"context"
	"net/http"
	"strings"
	"time"

	"magg/pkg/logging"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// StreamableHTTPClient dials a remote backend over the streamable-HTTP
// transport, the default for any http(s) uri that does not end in "/sse"
// or "/sse/".
type StreamableHTTPClient struct {
	baseClient
	url            string
	headers        map[string]string
	sseReadTimeout time.Duration
}

// NewStreamableHTTPClient creates a streamable-HTTP client with optional
// custom headers and an optional SSE read timeout (the sse_read_timeout
// transport option). The timeout is stored on the client; Initialize does
// not apply it to the transport.
func NewStreamableHTTPClient(url string, headers map[string]string, sseReadTimeout time.Duration) *StreamableHTTPClient {
	if headers == nil {
		headers = make(map[string]string)
	}
	return &StreamableHTTPClient{url: url, headers: headers, sseReadTimeout: sseReadTimeout}
}

func (c *StreamableHTTPClient) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	logging.Debug("mcpclient", "dialing streamable-http backend %s", c.url)

	var opts []transport.StreamableHTTPCOption
	if len(c.headers) > 0 {
		opts = append(opts, transport.WithHTTPHeaders(c.headers))
	}
	// c.sseReadTimeout is recorded but not yet wired: the installed
	// transport.StreamableHTTPCOption set has no stable per-client
	// read-timeout knob to attach it to.

	mcpClient, err := client.NewStreamableHttpClient(c.url, opts...)
	if err != nil {
		return &ConnectError{URL: c.url, Err: err}
	}

	if c.onNotify != nil {
		mcpClient.OnNotification(c.onNotify)
	}

	_, err = mcpClient.Initialize(ctx, mcp.InitializeRequest{
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
		if authErr := checkForAuthRequiredError(err, c.url); authErr != nil {
			return authErr
		}
		return &HandshakeError{Target: c.url, Err: err}
	}

	c.client = mcpClient
	c.connected = true
	return nil
}

// checkForAuthRequiredError inspects an initialize/start error for a 401
// response and, if found, returns an AuthRequiredError carrying whatever
// WWW-Authenticate hints could be recovered. mcp-go surfaces this as a
// plain formatted error rather than a typed one, so detection is
// string-based and best-effort.
func checkForAuthRequiredError(err error, url string) *AuthRequiredError {
	if err == nil {
		return nil
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "401") && !strings.Contains(errStr, http.StatusText(http.StatusUnauthorized)) {
		return nil
	}

	info := &AuthRequiredError{URL: url, Err: err}
	if idx := strings.Index(errStr, "Bearer"); idx >= 0 {
		header := errStr[idx:]
		if end := strings.IndexByte(header, '\n'); end > 0 {
			header = header[:end]
		}
		info.Realm, info.Scope = parseBearerChallenge(header)
	}
	return info
}

// parseBearerChallenge extracts realm= and scope= parameters from a Bearer
// WWW-Authenticate challenge string.
func parseBearerChallenge(header string) (realm, scope string) {
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if v, ok := strings.CutPrefix(part, "realm="); ok {
			realm = strings.Trim(v, `"`)
		}
		if v, ok := strings.CutPrefix(part, "scope="); ok {
			scope = strings.Trim(v, `"`)
		}
	}
	return realm, scope
}

func (c *StreamableHTTPClient) Close() error { return c.closeClient() }

func (c *StreamableHTTPClient) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	return c.listTools(ctx)
}

func (c *StreamableHTTPClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	return c.callTool(ctx, name, args)
}

func (c *StreamableHTTPClient) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	return c.listResources(ctx)
}

func (c *StreamableHTTPClient) ListResourceTemplates(ctx context.Context) ([]mcp.ResourceTemplate, error) {
	return c.listResourceTemplates(ctx)
}

func (c *StreamableHTTPClient) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	return c.readResource(ctx, uri)
}

func (c *StreamableHTTPClient) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	return c.listPrompts(ctx)
}

func (c *StreamableHTTPClient) GetPrompt(ctx context.Context, name string, args map[string]interface{}) (*mcp.GetPromptResult, error) {
	return c.getPrompt(ctx, name, args)
}

func (c *StreamableHTTPClient) Ping(ctx context.Context) error { return c.ping(ctx) }
