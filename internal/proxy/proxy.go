// Package proxy implements the generic `proxy(action,type,path,args)`
// tool: a single entry point that lets a client introspect and
// invoke any backend capability through the same mount table and namespace
// scheme that serves real clients, without the client needing advance
// knowledge of the prefix scheme.
package proxy

import (
	"context"
	"encoding/json"
	"fmt"

	"magg/internal/config"
	"magg/internal/mount"

	"github.com/mark3labs/mcp-go/mcp"
)

// Action is one of the three proxy verbs.
type Action string

const (
	ActionList Action = "list"
	ActionInfo Action = "info"
	ActionCall Action = "call"
)

// CapabilityType is one of the three kinds of capability the proxy tool
// operates on.
type CapabilityType string

const (
	TypeTool     CapabilityType = "tool"
	TypeResource CapabilityType = "resource"
	TypePrompt   CapabilityType = "prompt"
)

// ValidationError reports a malformed proxy tool invocation.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// Envelope is the JSON structure embedded as the text of the
// TextResourceContents returned by list/info actions. mcp-go's
// mcp.Annotations is a closed struct (Audience/Priority only) and cannot
// carry magg's {pythonType, many, proxyAction, proxyType, proxyPath}
// metadata, so the envelope is carried in-band in the payload instead. A
// transparent client decodes this envelope to reconstruct a typed result
// (internal/transparent).
type Envelope struct {
	PythonType  string          `json:"pythonType"`
	Many        bool            `json:"many"`
	ProxyAction Action          `json:"proxyAction"`
	ProxyType   CapabilityType  `json:"proxyType"`
	ProxyPath   string          `json:"proxyPath,omitempty"`
	Data        json.RawMessage `json:"data"`
}

// Dispatcher implements the proxy tool's three actions against a live mount
// table. It is the same mount table and namespace scheme a real client's
// requests are dispatched through, so a test against a Dispatcher is a true
// end-to-end test.
type Dispatcher struct {
	mounts *mount.Manager
	cfg    *config.MaggConfig
}

// NewDispatcher builds a Dispatcher over mounts, namespacing with cfg's
// configured separator.
func NewDispatcher(mounts *mount.Manager, cfg *config.MaggConfig) *Dispatcher {
	return &Dispatcher{mounts: mounts, cfg: cfg}
}

func (d *Dispatcher) sep() string {
	if d.cfg.PrefixSep == "" {
		return config.DefaultPrefixSep
	}
	return d.cfg.PrefixSep
}

// Validate checks the proxy tool's parameter invariants without performing
// any dispatch: list forbids path and args; info requires path and forbids
// args; call requires path and permits args.
func Validate(action Action, capType CapabilityType, path string, args map[string]any) error {
	switch action {
	case ActionList, ActionInfo, ActionCall:
	default:
		return &ValidationError{Reason: fmt.Sprintf("invalid proxy action %q", action)}
	}
	switch capType {
	case TypeTool, TypeResource, TypePrompt:
	default:
		return &ValidationError{Reason: fmt.Sprintf("invalid proxy type %q", capType)}
	}

	switch action {
	case ActionList:
		if path != "" {
			return &ValidationError{Reason: "parameter 'path' should not be provided for action 'list'"}
		}
		if len(args) > 0 {
			return &ValidationError{Reason: "parameter 'args' should not be provided for action 'list'"}
		}
	case ActionInfo:
		if path == "" {
			return &ValidationError{Reason: "parameter 'path' is required for action 'info'"}
		}
		if len(args) > 0 {
			return &ValidationError{Reason: "parameter 'args' should not be provided for action 'info'"}
		}
	case ActionCall:
		if path == "" {
			return &ValidationError{Reason: "parameter 'path' is required for action 'call'"}
		}
	}
	return nil
}

// Dispatch validates and executes a single proxy tool invocation. list and
// info always reply with a single embedded-resource envelope; call's shape
// depends on capType: tool and resource calls reply with the backend's real
// content list, prompt calls reply with a single envelope.
func (d *Dispatcher) Dispatch(ctx context.Context, action Action, capType CapabilityType, path string, args map[string]any) ([]mcp.Content, error) {
	if err := Validate(action, capType, path, args); err != nil {
		return nil, err
	}

	switch action {
	case ActionList:
		res, err := d.list(ctx, capType)
		if err != nil {
			return nil, err
		}
		return []mcp.Content{res}, nil
	case ActionInfo:
		res, err := d.info(ctx, capType, path)
		if err != nil {
			return nil, err
		}
		return []mcp.Content{res}, nil
	case ActionCall:
		return d.call(ctx, capType, path, args)
	default:
		return nil, &ValidationError{Reason: fmt.Sprintf("unknown action %q", action)}
	}
}

func (d *Dispatcher) list(ctx context.Context, capType CapabilityType) (mcp.EmbeddedResource, error) {
	var (
		payload    any
		pythonType string
	)

	switch capType {
	case TypeTool:
		tools, err := d.mounts.ListTools(ctx, d.sep())
		if err != nil {
			return mcp.EmbeddedResource{}, err
		}
		payload, pythonType = tools, "Tool"

	case TypeResource:
		resources, err := d.mounts.ListResources(ctx, d.sep())
		if err != nil {
			return mcp.EmbeddedResource{}, err
		}
		templates, err := d.mounts.ListResourceTemplates(ctx)
		if err != nil {
			return mcp.EmbeddedResource{}, err
		}
		combined := make([]any, 0, len(resources)+len(templates))
		for _, r := range resources {
			combined = append(combined, r)
		}
		for _, t := range templates {
			combined = append(combined, t)
		}
		payload, pythonType = combined, "Resource"

	case TypePrompt:
		prompts, err := d.mounts.ListPrompts(ctx, d.sep())
		if err != nil {
			return mcp.EmbeddedResource{}, err
		}
		payload, pythonType = prompts, "Prompt"
	}

	return embed(payload, pythonType, true, ActionList, capType, "")
}

func (d *Dispatcher) info(ctx context.Context, capType CapabilityType, path string) (mcp.EmbeddedResource, error) {
	switch capType {
	case TypeTool:
		tools, err := d.mounts.ListTools(ctx, d.sep())
		if err != nil {
			return mcp.EmbeddedResource{}, err
		}
		for _, t := range tools {
			if t.Name == path {
				return embed(t, "Tool", false, ActionInfo, capType, path)
			}
		}
		return mcp.EmbeddedResource{}, fmt.Errorf("tool %q not found", path)

	case TypeResource:
		resources, err := d.mounts.ListResources(ctx, d.sep())
		if err != nil {
			return mcp.EmbeddedResource{}, err
		}
		for _, r := range resources {
			if r.URI == path {
				return embed(r, "Resource", false, ActionInfo, capType, path)
			}
		}
		return mcp.EmbeddedResource{}, fmt.Errorf("resource %q not found", path)

	case TypePrompt:
		prompts, err := d.mounts.ListPrompts(ctx, d.sep())
		if err != nil {
			return mcp.EmbeddedResource{}, err
		}
		for _, p := range prompts {
			if p.Name == path {
				return embed(p, "Prompt", false, ActionInfo, capType, path)
			}
		}
		return mcp.EmbeddedResource{}, fmt.Errorf("prompt %q not found", path)
	}

	return mcp.EmbeddedResource{}, fmt.Errorf("unknown capability type %q", capType)
}

// call dispatches action=call with a per-type result shape: a
// tool call returns its backend's content list verbatim (every item already
// satisfies mcp.Content), a resource call re-packages each returned
// ResourceContents as its own embedded-resource content item, and a prompt
// call — which produces a GetPromptResult rather than a content list — is
// serialized into the same single-envelope shape list/info use.
func (d *Dispatcher) call(ctx context.Context, capType CapabilityType, path string, args map[string]any) ([]mcp.Content, error) {
	prefix, rest, ok := d.mounts.ResolvePrefixed(path, d.sep())
	if !ok {
		return nil, fmt.Errorf("no mounted server owns prefix for %q", path)
	}
	client, ok := d.mounts.ClientForPrefix(prefix)
	if !ok {
		return nil, fmt.Errorf("server for prefix %q is not mounted", prefix)
	}

	switch capType {
	case TypeTool:
		result, err := client.CallTool(ctx, rest, args)
		if err != nil {
			return nil, err
		}
		return result.Content, nil

	case TypeResource:
		result, err := client.ReadResource(ctx, rest)
		if err != nil {
			return nil, err
		}
		content := make([]mcp.Content, 0, len(result.Contents))
		for _, rc := range result.Contents {
			content = append(content, mcp.EmbeddedResource{Type: "resource", Resource: rc})
		}
		return content, nil

	case TypePrompt:
		if args == nil {
			args = map[string]any{}
		}
		result, err := client.GetPrompt(ctx, rest, args)
		if err != nil {
			return nil, err
		}
		res, err := embed(result, "GetPromptResult", false, ActionCall, capType, path)
		if err != nil {
			return nil, err
		}
		return []mcp.Content{res}, nil
	}

	return nil, fmt.Errorf("unknown capability type %q", capType)
}

func embed(obj any, pythonType string, many bool, action Action, capType CapabilityType, path string) (mcp.EmbeddedResource, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return mcp.EmbeddedResource{}, fmt.Errorf("encode proxy result: %w", err)
	}

	env := Envelope{
		PythonType:  pythonType,
		Many:        many,
		ProxyAction: action,
		ProxyType:   capType,
		ProxyPath:   path,
		Data:        data,
	}
	envelopeJSON, err := json.Marshal(env)
	if err != nil {
		return mcp.EmbeddedResource{}, fmt.Errorf("encode proxy envelope: %w", err)
	}

	uri := fmt.Sprintf("proxy:%s/%s", action, capType)
	if path != "" {
		uri += "/" + path
	}

	return mcp.EmbeddedResource{
		Type: "resource",
		Resource: mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(envelopeJSON),
		},
	}, nil
}
