// Package transparent implements a transparent-mode client wrapper: a
// mcpclient.Client whose list/call operations are served entirely through
// the proxy tool's envelope rather than a backend's native MCP calls,
// decoding the embedded JSON payload back into typed Go values.
package transparent

import (
	"context"
	"encoding/json"
	"fmt"

	"magg/internal/magg_errors"
	"magg/internal/mcpclient"
	"magg/internal/proxy"

	"github.com/mark3labs/mcp-go/mcp"
)

// Client dispatches every call through a proxy.Dispatcher, decoding the
// resulting envelope back into the concrete mcp-go type a caller of
// mcpclient.Client expects. Used to drive Magg's own capabilities (and to
// test the proxy tool end-to-end) through the identical code path a real
// downstream client exercises when it calls the `proxy` tool directly.
type Client struct {
	dispatcher *proxy.Dispatcher
}

// New builds a transparent client over dispatcher.
func New(dispatcher *proxy.Dispatcher) *Client {
	return &Client{dispatcher: dispatcher}
}

var _ mcpclient.Client = (*Client)(nil)

func (c *Client) Initialize(ctx context.Context) error { return nil }
func (c *Client) Close() error                         { return nil }
func (c *Client) Ping(ctx context.Context) error       { return nil }

// SetOnNotification is a no-op: the transparent client is a loopback over
// the proxy tool, not a real backend session, so it never observes backend
// notifications directly.
func (c *Client) SetOnNotification(handler func(mcp.JSONRPCNotification)) {}

func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	var tools []mcp.Tool
	if err := c.listInto(ctx, proxy.TypeTool, "Tool", &tools); err != nil {
		return nil, err
	}
	return tools, nil
}

// CallTool dispatches through the proxy tool's call action. Unlike list/info,
// a tool call's result is the backend's real content list, not a JSON
// envelope, so it is reassembled directly rather than decoded.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	content, err := c.dispatcher.Dispatch(ctx, proxy.ActionCall, proxy.TypeTool, name, args)
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{Content: content}, nil
}

func (c *Client) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	var resources []mcp.Resource
	if err := c.listInto(ctx, proxy.TypeResource, "Resource", &resources); err != nil {
		return nil, err
	}
	return resources, nil
}

// ListResourceTemplates is not representable through the proxy envelope:
// the list action combines resources and resource templates into a single
// payload tagged pythonType "Resource" (proxy.Dispatcher's list), so there
// is no way to recover just the template subset without re-decoding every
// element speculatively. Callers needing templates should go through the
// mount manager directly.
func (c *Client) ListResourceTemplates(ctx context.Context) ([]mcp.ResourceTemplate, error) {
	return nil, nil
}

// ReadResource dispatches through the proxy tool's call action. A resource
// call's result is one embedded-resource content item per ResourceContents,
// so the original ReadResourceResult is reassembled by unwrapping each
// item's Resource field rather than decoded from an envelope.
func (c *Client) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	content, err := c.dispatcher.Dispatch(ctx, proxy.ActionCall, proxy.TypeResource, uri, nil)
	if err != nil {
		return nil, err
	}
	contents := make([]mcp.ResourceContents, 0, len(content))
	for _, item := range content {
		embedded, ok := item.(mcp.EmbeddedResource)
		if !ok {
			return nil, magg_errors.DecodeError{ExpectedType: "ReadResourceResult", Reason: fmt.Sprintf("proxy returned content of type %T", item)}
		}
		contents = append(contents, embedded.Resource)
	}
	return &mcp.ReadResourceResult{Contents: contents}, nil
}

func (c *Client) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	var prompts []mcp.Prompt
	if err := c.listInto(ctx, proxy.TypePrompt, "Prompt", &prompts); err != nil {
		return nil, err
	}
	return prompts, nil
}

// GetPrompt dispatches through the proxy tool's call action. Unlike tool and
// resource calls, a prompt call stays enveloped, since GetPromptResult has
// no natural content-list representation.
func (c *Client) GetPrompt(ctx context.Context, name string, args map[string]interface{}) (*mcp.GetPromptResult, error) {
	var result mcp.GetPromptResult
	if err := c.callInto(ctx, proxy.TypePrompt, name, args, "GetPromptResult", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) listInto(ctx context.Context, capType proxy.CapabilityType, expectPythonType string, out any) error {
	content, err := c.dispatcher.Dispatch(ctx, proxy.ActionList, capType, "", nil)
	if err != nil {
		return err
	}
	env, err := decodeEnvelope(content)
	if err != nil {
		return err
	}
	if env.PythonType != expectPythonType {
		return magg_errors.DecodeError{ExpectedType: expectPythonType, Reason: fmt.Sprintf("proxy returned pythonType %q", env.PythonType)}
	}
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return magg_errors.DecodeError{ExpectedType: expectPythonType, Reason: err.Error()}
	}
	return nil
}

func (c *Client) callInto(ctx context.Context, capType proxy.CapabilityType, path string, args map[string]interface{}, expectPythonType string, out any) error {
	content, err := c.dispatcher.Dispatch(ctx, proxy.ActionCall, capType, path, args)
	if err != nil {
		return err
	}
	env, err := decodeEnvelope(content)
	if err != nil {
		return err
	}
	if env.PythonType != expectPythonType {
		return magg_errors.DecodeError{ExpectedType: expectPythonType, Reason: fmt.Sprintf("proxy returned pythonType %q", env.PythonType)}
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return magg_errors.DecodeError{ExpectedType: expectPythonType, Reason: err.Error()}
	}
	return nil
}

// decodeEnvelope unwraps the single embedded-resource content item list/info
// (and a prompt call) reply with and parses its JSON envelope.
func decodeEnvelope(content []mcp.Content) (*proxy.Envelope, error) {
	if len(content) != 1 {
		return nil, magg_errors.DecodeError{ExpectedType: "Envelope", Reason: fmt.Sprintf("expected a single enveloped content item, got %d", len(content))}
	}
	res, ok := content[0].(mcp.EmbeddedResource)
	if !ok {
		return nil, magg_errors.DecodeError{ExpectedType: "Envelope", Reason: fmt.Sprintf("proxy returned content of type %T", content[0])}
	}
	text, ok := res.Resource.(mcp.TextResourceContents)
	if !ok {
		return nil, magg_errors.DecodeError{ExpectedType: "Envelope", Reason: "proxy result was not a text resource"}
	}
	var env proxy.Envelope
	if err := json.Unmarshal([]byte(text.Text), &env); err != nil {
		return nil, magg_errors.DecodeError{ExpectedType: "Envelope", Reason: err.Error()}
	}
	return &env, nil
}
