package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"magg/internal/config"
	"magg/internal/mcpclient"
	"magg/internal/mount"

	"github.com/mark3labs/mcp-go/mcp"
)

type fakeClient struct {
	delay  time.Duration
	closed bool
}

func (f *fakeClient) Initialize(ctx context.Context) error { return nil }
func (f *fakeClient) Close() error                         { f.closed = true; return nil }
func (f *fakeClient) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, nil
}
func (f *fakeClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	return nil, nil
}
func (f *fakeClient) ListResources(ctx context.Context) ([]mcp.Resource, error) { return nil, nil }
func (f *fakeClient) ListResourceTemplates(ctx context.Context) ([]mcp.ResourceTemplate, error) {
	return nil, nil
}
func (f *fakeClient) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	return nil, nil
}
func (f *fakeClient) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) { return nil, nil }
func (f *fakeClient) GetPrompt(ctx context.Context, name string, args map[string]interface{}) (*mcp.GetPromptResult, error) {
	return nil, nil
}
func (f *fakeClient) Ping(ctx context.Context) error { return nil }
func (f *fakeClient) SetOnNotification(handler func(mcp.JSONRPCNotification)) {}

var _ mcpclient.Client = (*fakeClient)(nil)

func setup(t *testing.T, delay time.Duration) (*mount.Manager, *config.MaggConfig, *fakeClient) {
	t.Helper()
	fc := &fakeClient{delay: delay}
	m := mount.NewManager()
	m.SetClientFactory(func(s *config.ServerConfig) (mcpclient.Client, error) { return fc, nil })

	cfg := config.NewMaggConfig()
	sc := &config.ServerConfig{Name: "calc", Command: "python", Enabled: true}
	cfg.Servers["calc"] = sc
	require.NoError(t, m.Mount(context.Background(), sc))

	return m, cfg, fc
}

func TestCheckReportOnlyNeverMutates(t *testing.T) {
	m, cfg, _ := setup(t, 0)
	c := NewChecker(m, cfg, nil)

	reports := c.Check(context.Background(), ActionReport, time.Second)
	require.Len(t, reports, 1)
	assert.Equal(t, mount.HealthHealthy, reports[0].State)
	assert.Empty(t, reports[0].Remediation)

	_, ok := m.Get("calc")
	assert.True(t, ok)
}

func TestCheckRemountsUnresponsiveBackend(t *testing.T) {
	m, cfg, _ := setup(t, 50*time.Millisecond)
	c := NewChecker(m, cfg, nil)

	reports := c.Check(context.Background(), ActionRemount, 5*time.Millisecond)
	require.Len(t, reports, 1)
	assert.Equal(t, mount.HealthUnresponsive, reports[0].State)
	assert.Equal(t, "remounted", reports[0].Remediation)

	_, ok := m.Get("calc")
	assert.True(t, ok)
}

func TestCheckDisablesAndPersists(t *testing.T) {
	m, cfg, _ := setup(t, 50*time.Millisecond)
	var saved *config.MaggConfig
	c := NewChecker(m, cfg, func(c *config.MaggConfig) error { saved = c; return nil })

	reports := c.Check(context.Background(), ActionDisable, 5*time.Millisecond)
	require.Len(t, reports, 1)
	assert.Equal(t, "disabled", reports[0].Remediation)
	assert.False(t, cfg.Servers["calc"].Enabled)
	assert.NotNil(t, saved)

	_, ok := m.Get("calc")
	assert.False(t, ok)
}

func TestCheckUnmountLeavesConfigEnabled(t *testing.T) {
	m, cfg, _ := setup(t, 50*time.Millisecond)
	c := NewChecker(m, cfg, nil)

	reports := c.Check(context.Background(), ActionUnmount, 5*time.Millisecond)
	require.Len(t, reports, 1)
	assert.Equal(t, "unmounted", reports[0].Remediation)
	assert.True(t, cfg.Servers["calc"].Enabled)
}
