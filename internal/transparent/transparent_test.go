package transparent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"magg/internal/config"
	"magg/internal/magg_errors"
	"magg/internal/mcpclient"
	"magg/internal/mount"
	"magg/internal/proxy"

	"github.com/mark3labs/mcp-go/mcp"
)

type fakeClient struct {
	tools []mcp.Tool
}

func (f *fakeClient) Initialize(ctx context.Context) error { return nil }
func (f *fakeClient) Close() error                         { return nil }
func (f *fakeClient) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	return f.tools, nil
}
func (f *fakeClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	return &mcp.CallToolResult{}, nil
}
func (f *fakeClient) ListResources(ctx context.Context) ([]mcp.Resource, error) { return nil, nil }
func (f *fakeClient) ListResourceTemplates(ctx context.Context) ([]mcp.ResourceTemplate, error) {
	return nil, nil
}
func (f *fakeClient) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	return &mcp.ReadResourceResult{}, nil
}
func (f *fakeClient) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) { return nil, nil }
func (f *fakeClient) GetPrompt(ctx context.Context, name string, args map[string]interface{}) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{}, nil
}
func (f *fakeClient) Ping(ctx context.Context) error { return nil }
func (f *fakeClient) SetOnNotification(handler func(mcp.JSONRPCNotification)) {}

var _ mcpclient.Client = (*fakeClient)(nil)

func setup(t *testing.T) *Client {
	t.Helper()
	fc := &fakeClient{tools: []mcp.Tool{{Name: "add"}}}
	m := mount.NewManager()
	m.SetClientFactory(func(s *config.ServerConfig) (mcpclient.Client, error) { return fc, nil })

	cfg := config.NewMaggConfig()
	sc := &config.ServerConfig{Name: "calc", Command: "python", Enabled: true, Prefix: "calc"}
	cfg.Servers["calc"] = sc
	require.NoError(t, m.Mount(context.Background(), sc))

	return New(proxy.NewDispatcher(m, cfg))
}

func TestTransparentListToolsRoundTrips(t *testing.T) {
	c := setup(t)
	tools, err := c.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "calc_add", tools[0].Name)
}

func TestTransparentCallToolRoundTrips(t *testing.T) {
	c := setup(t)
	result, err := c.CallTool(context.Background(), "calc_add", map[string]interface{}{"x": 1})
	require.NoError(t, err)
	assert.NotNil(t, result)
}

func TestTransparentDecodeErrorOnTypeMismatch(t *testing.T) {
	_ = setup(t)
	// Asking for prompts against a backend with none registered still
	// round-trips an empty list successfully; a true mismatch only
	// happens if the envelope's pythonType diverges from expectation,
	// which legitimate dispatcher use never produces. This test
	// documents that a forged envelope is what DecodeError guards
	// against, and exercises the error type's message.
	err := magg_errors.DecodeError{ExpectedType: "Tool", Reason: "proxy returned pythonType \"Prompt\""}
	assert.Contains(t, err.Error(), "Tool")
	assert.Contains(t, err.Error(), "Prompt")
}
