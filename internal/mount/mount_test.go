package mount

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"magg/internal/config"
	"magg/internal/mcpclient"

	"github.com/mark3labs/mcp-go/mcp"
)

type fakeClient struct {
	initErr   error
	listErr   error
	tools     []mcp.Tool
	closed    bool
	initDelay time.Duration
}

func (f *fakeClient) Initialize(ctx context.Context) error { return f.initErr }
func (f *fakeClient) Close() error                         { f.closed = true; return nil }
func (f *fakeClient) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	if f.initDelay > 0 {
		select {
		case <-time.After(f.initDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.tools, f.listErr
}
func (f *fakeClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	return nil, errors.New("not implemented")
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

func newTestManager(fc *fakeClient) *Manager {
	m := NewManager()
	m.newClient = func(s *config.ServerConfig) (mcpclient.Client, error) {
		return fc, nil
	}
	return m
}

func TestMountSkipsDisabled(t *testing.T) {
	m := newTestManager(&fakeClient{})
	err := m.Mount(context.Background(), &config.ServerConfig{Name: "x", Enabled: false})
	require.NoError(t, err)
	_, ok := m.Get("x")
	assert.False(t, ok)
}

func TestMountIsIdempotent(t *testing.T) {
	fc := &fakeClient{}
	m := newTestManager(fc)
	sc := &config.ServerConfig{Name: "calc", Command: "python", Enabled: true}
	require.NoError(t, m.Mount(context.Background(), sc))
	require.NoError(t, m.Mount(context.Background(), sc))
	assert.Len(t, m.All(), 1)
}

func TestMountDerivesPrefixWhenUnset(t *testing.T) {
	fc := &fakeClient{}
	m := newTestManager(fc)
	sc := &config.ServerConfig{Name: "Calc-Server!", Command: "python", Enabled: true}
	require.NoError(t, m.Mount(context.Background(), sc))
	ms, ok := m.Get("Calc-Server!")
	require.True(t, ok)
	assert.Equal(t, "calcserver", ms.Prefix)
}

func TestUnmountTolerant(t *testing.T) {
	m := newTestManager(&fakeClient{})
	assert.NoError(t, m.Unmount("nonexistent"))
}

func TestUnmountClosesClient(t *testing.T) {
	fc := &fakeClient{}
	m := newTestManager(fc)
	sc := &config.ServerConfig{Name: "calc", Command: "python", Enabled: true}
	require.NoError(t, m.Mount(context.Background(), sc))
	require.NoError(t, m.Unmount("calc"))
	assert.True(t, fc.closed)
	_, ok := m.Get("calc")
	assert.False(t, ok)
}

func TestMountAllContinuesPastFailure(t *testing.T) {
	m := NewManager()
	calls := 0
	m.newClient = func(s *config.ServerConfig) (mcpclient.Client, error) {
		calls++
		if s.Name == "bad" {
			return nil, errors.New("boom")
		}
		return &fakeClient{}, nil
	}
	cfg := config.NewMaggConfig()
	cfg.Servers["good"] = &config.ServerConfig{Name: "good", Command: "python", Enabled: true}
	cfg.Servers["bad"] = &config.ServerConfig{Name: "bad", Command: "python", Enabled: true}

	results := m.MountAll(context.Background(), cfg)
	assert.Len(t, results, 2)

	var gotGood, gotBad bool
	for _, r := range results {
		if r.Name == "good" {
			gotGood = r.Mounted
		}
		if r.Name == "bad" {
			gotBad = !r.Mounted
		}
	}
	assert.True(t, gotGood)
	assert.True(t, gotBad)
}

func TestProbeClassifiesHealthy(t *testing.T) {
	fc := &fakeClient{tools: []mcp.Tool{{Name: "a"}}}
	m := newTestManager(fc)
	sc := &config.ServerConfig{Name: "calc", Command: "python", Enabled: true}
	require.NoError(t, m.Mount(context.Background(), sc))

	state, err := m.Probe(context.Background(), "calc", time.Second)
	require.NoError(t, err)
	assert.Equal(t, HealthHealthy, state)
}

func TestProbeClassifiesUnresponsive(t *testing.T) {
	fc := &fakeClient{initDelay: 50 * time.Millisecond}
	m := newTestManager(fc)
	sc := &config.ServerConfig{Name: "calc", Command: "python", Enabled: true}
	require.NoError(t, m.Mount(context.Background(), sc))

	state, err := m.Probe(context.Background(), "calc", 5*time.Millisecond)
	assert.Error(t, err)
	assert.Equal(t, HealthUnresponsive, state)
}

func TestHandleConfigChangeUnmountsThenMounts(t *testing.T) {
	fc := &fakeClient{}
	m := newTestManager(fc)
	old := &config.ServerConfig{Name: "calc", Command: "python", Enabled: true, Prefix: "shared"}
	require.NoError(t, m.Mount(context.Background(), old))

	newCfg := &config.ServerConfig{Name: "calc2", Command: "python", Enabled: true, Prefix: "shared"}
	change := &config.ConfigChange{
		ServerChanges: []config.ServerChange{
			{Name: "calc", Action: config.ActionRemove, OldConfig: old},
			{Name: "calc2", Action: config.ActionAdd, NewConfig: newCfg},
		},
	}

	results := m.HandleConfigChange(context.Background(), change)
	require.Len(t, results, 1)
	assert.True(t, results[0].Mounted)

	_, oldMounted := m.Get("calc")
	assert.False(t, oldMounted)
	ms, newMounted := m.Get("calc2")
	require.True(t, newMounted)
	assert.Equal(t, "shared", ms.Prefix)
}

func TestPrefixesReportsCollisions(t *testing.T) {
	m := NewManager()
	m.newClient = func(s *config.ServerConfig) (mcpclient.Client, error) { return &fakeClient{}, nil }
	require.NoError(t, m.Mount(context.Background(), &config.ServerConfig{Name: "a", Command: "python", Enabled: true, Prefix: "shared"}))
	require.NoError(t, m.Mount(context.Background(), &config.ServerConfig{Name: "b", Command: "python", Enabled: true, Prefix: "shared"}))

	prefixes := m.Prefixes()
	assert.ElementsMatch(t, []string{"a", "b"}, prefixes["shared"])
}
