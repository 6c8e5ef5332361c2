package proxy

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"magg/internal/config"
	"magg/internal/mcpclient"
	"magg/internal/mount"

	"github.com/mark3labs/mcp-go/mcp"
)

type fakeClient struct {
	tools            []mcp.Tool
	prompts          []mcp.Prompt
	resourceContents []mcp.ResourceContents
}

func (f *fakeClient) Initialize(ctx context.Context) error { return nil }
func (f *fakeClient) Close() error                         { return nil }
func (f *fakeClient) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	return f.tools, nil
}
func (f *fakeClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	return &mcp.CallToolResult{Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "8"}}}, nil
}
func (f *fakeClient) ListResources(ctx context.Context) ([]mcp.Resource, error) { return nil, nil }
func (f *fakeClient) ListResourceTemplates(ctx context.Context) ([]mcp.ResourceTemplate, error) {
	return nil, nil
}
func (f *fakeClient) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	return &mcp.ReadResourceResult{Contents: f.resourceContents}, nil
}
func (f *fakeClient) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) { return f.prompts, nil }
func (f *fakeClient) GetPrompt(ctx context.Context, name string, args map[string]interface{}) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{Description: "greeting"}, nil
}
func (f *fakeClient) Ping(ctx context.Context) error { return nil }
func (f *fakeClient) SetOnNotification(handler func(mcp.JSONRPCNotification)) {}

var _ mcpclient.Client = (*fakeClient)(nil)

func setup(t *testing.T) (*Dispatcher, *fakeClient) {
	t.Helper()
	fc := &fakeClient{tools: []mcp.Tool{{Name: "add"}}, prompts: []mcp.Prompt{{Name: "greet"}}}
	m := mount.NewManager()
	m.SetClientFactory(func(s *config.ServerConfig) (mcpclient.Client, error) { return fc, nil })

	cfg := config.NewMaggConfig()
	sc := &config.ServerConfig{Name: "calc", Command: "python", Enabled: true, Prefix: "calc"}
	cfg.Servers["calc"] = sc
	require.NoError(t, m.Mount(context.Background(), sc))

	return NewDispatcher(m, cfg), fc
}

func TestValidateList(t *testing.T) {
	assert.NoError(t, Validate(ActionList, TypeTool, "", nil))
	assert.Error(t, Validate(ActionList, TypeTool, "calc_add", nil))
	assert.Error(t, Validate(ActionList, TypeTool, "", map[string]any{"x": 1}))
}

func TestValidateInfo(t *testing.T) {
	assert.NoError(t, Validate(ActionInfo, TypeTool, "calc_add", nil))
	assert.Error(t, Validate(ActionInfo, TypeTool, "", nil))
	assert.Error(t, Validate(ActionInfo, TypeTool, "calc_add", map[string]any{"x": 1}))
}

func TestValidateCall(t *testing.T) {
	assert.NoError(t, Validate(ActionCall, TypeTool, "calc_add", map[string]any{"x": 1}))
	assert.Error(t, Validate(ActionCall, TypeTool, "", nil))
}

func TestValidateRejectsUnknownEnums(t *testing.T) {
	assert.Error(t, Validate("bogus", TypeTool, "", nil))
	assert.Error(t, Validate(ActionList, "bogus", "", nil))
}

func TestDispatchListTools(t *testing.T) {
	d, _ := setup(t)
	content, err := d.Dispatch(context.Background(), ActionList, TypeTool, "", nil)
	require.NoError(t, err)
	require.Len(t, content, 1)

	res, ok := content[0].(mcp.EmbeddedResource)
	require.True(t, ok)
	text, ok := res.Resource.(mcp.TextResourceContents)
	require.True(t, ok)

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(text.Text), &env))
	assert.Equal(t, "Tool", env.PythonType)
	assert.True(t, env.Many)

	var tools []mcp.Tool
	require.NoError(t, json.Unmarshal(env.Data, &tools))
	require.Len(t, tools, 1)
	assert.Equal(t, "calc_add", tools[0].Name)
}

func TestDispatchInfoUnknownPathErrors(t *testing.T) {
	d, _ := setup(t)
	_, err := d.Dispatch(context.Background(), ActionInfo, TypeTool, "calc_missing", nil)
	assert.Error(t, err)
}

func TestDispatchInfoKnownTool(t *testing.T) {
	d, _ := setup(t)
	content, err := d.Dispatch(context.Background(), ActionInfo, TypeTool, "calc_add", nil)
	require.NoError(t, err)
	require.Len(t, content, 1)

	res, ok := content[0].(mcp.EmbeddedResource)
	require.True(t, ok)
	text, ok := res.Resource.(mcp.TextResourceContents)
	require.True(t, ok)

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(text.Text), &env))
	assert.False(t, env.Many)
	assert.Equal(t, "calc_add", env.ProxyPath)
}

func TestDispatchCallUnresolvedPrefix(t *testing.T) {
	d, _ := setup(t)
	_, err := d.Dispatch(context.Background(), ActionCall, TypeTool, "nope_tool", map[string]any{})
	assert.Error(t, err)
}

func TestDispatchCallTool(t *testing.T) {
	d, _ := setup(t)
	content, err := d.Dispatch(context.Background(), ActionCall, TypeTool, "calc_add", map[string]any{"x": 1})
	require.NoError(t, err)
	require.Len(t, content, 1)

	text, ok := content[0].(mcp.TextContent)
	require.True(t, ok)
	assert.Equal(t, "8", text.Text)
}

func TestDispatchCallResourceWrapsEachContentItem(t *testing.T) {
	d, fc := setup(t)
	fc.resourceContents = []mcp.ResourceContents{
		mcp.TextResourceContents{URI: "calc://a", Text: "one"},
		mcp.TextResourceContents{URI: "calc://b", Text: "two"},
	}

	content, err := d.Dispatch(context.Background(), ActionCall, TypeResource, "calc_data", nil)
	require.NoError(t, err)
	require.Len(t, content, 2)

	for i, rc := range fc.resourceContents {
		embedded, ok := content[i].(mcp.EmbeddedResource)
		require.True(t, ok)
		assert.Equal(t, rc, embedded.Resource)
	}
}

func TestDispatchCallPromptStaysEnveloped(t *testing.T) {
	d, _ := setup(t)
	content, err := d.Dispatch(context.Background(), ActionCall, TypePrompt, "calc_greet", nil)
	require.NoError(t, err)
	require.Len(t, content, 1)

	res, ok := content[0].(mcp.EmbeddedResource)
	require.True(t, ok)
	text, ok := res.Resource.(mcp.TextResourceContents)
	require.True(t, ok)

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(text.Text), &env))
	assert.Equal(t, ActionCall, env.ProxyAction)
	assert.Equal(t, TypePrompt, env.ProxyType)
}
