package front

import (
	"context"
	"fmt"
	"time"

	"magg/internal/config"
	"magg/internal/health"
	"magg/internal/magg_errors"
	"magg/internal/mount"
	"magg/internal/proxy"
	"magg/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// buildTools assembles every management tool under Magg's self-prefix,
// plus the one special unprefixed tool: proxy, the generic
// action/type/path/args entry point.
func (s *Server) buildTools() []server.ServerTool {
	return []server.ServerTool{
		{
			Tool: mcp.Tool{
				Name:        "proxy",
				Description: "Generic aggregation entry point: list/info/call against tool, resource, or prompt capabilities of every mounted backend.",
				InputSchema: proxySchema(),
			},
			Handler: s.handleProxy,
		},
		s.tool("add_server", "Validate a new server configuration, mount it if enabled, and persist it.", addServerSchema(), s.handleAddServer),
		s.tool("remove_server", "Unmount a server if mounted, drop it from the configuration, and persist.", nameArgSchema("name", "Server name to remove"), s.handleRemoveServer),
		s.tool("list_servers", "Enumerate configured servers with their runtime mount state.", emptySchema(), s.handleListServers),
		s.tool("enable_server", "Enable a disabled server: mount it and persist.", nameArgSchema("name", "Server name to enable"), s.handleEnableServer),
		s.tool("disable_server", "Disable an enabled server: unmount it and persist.", nameArgSchema("name", "Server name to disable"), s.handleDisableServer),
		s.tool("status", "Report aggregate counts across configured and mounted servers.", emptySchema(), s.handleStatus),
		s.tool("check", "Probe every mounted backend's health, optionally applying a remediation action.", checkSchema(), s.handleCheck),
		s.tool("reload_config", "Manually trigger a configuration reload from disk.", emptySchema(), s.handleReloadConfig),
		s.tool("load_kit", "Load a kit by name, merging its servers into the configuration.", nameArgSchema("name", "Kit name to load"), s.handleLoadKit),
		s.tool("unload_kit", "Unload a kit by name, removing servers it solely owns.", nameArgSchema("name", "Kit name to unload"), s.handleUnloadKit),
		s.tool("list_kits", "Enumerate every known kit, loaded or merely discoverable.", emptySchema(), s.handleListKits),
		s.tool("kit_info", "Describe a single kit's contents and load state.", nameArgSchema("name", "Kit name to describe"), s.handleKitInfo),
		s.tool("search_servers", "Search public MCP catalogs for candidate servers (external collaborator).", emptySchema(), s.handleUnimplemented("search_servers")),
		s.tool("smart_configure", "Suggest a ServerConfig for a natural-language request via an LLM collaborator.", emptySchema(), s.handleUnimplemented("smart_configure")),
		s.tool("analyze_servers", "Analyze mounted servers' capabilities via an LLM collaborator.", emptySchema(), s.handleUnimplemented("analyze_servers")),
	}
}

func (s *Server) tool(name, description string, schema mcp.ToolInputSchema, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)) server.ServerTool {
	return server.ServerTool{
		Tool: mcp.Tool{
			Name:        s.prefixed(name),
			Description: description,
			InputSchema: schema,
		},
		Handler: handler,
	}
}

func emptySchema() mcp.ToolInputSchema {
	return mcp.ToolInputSchema{Type: "object", Properties: map[string]interface{}{}}
}

func nameArgSchema(argName, description string) mcp.ToolInputSchema {
	return mcp.ToolInputSchema{
		Type: "object",
		Properties: map[string]interface{}{
			argName: map[string]interface{}{"type": "string", "description": description},
		},
		Required: []string{argName},
	}
}

func checkSchema() mcp.ToolInputSchema {
	return mcp.ToolInputSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"action":  map[string]interface{}{"type": "string", "description": "report, remount, unmount, or disable", "default": "report"},
			"timeout": map[string]interface{}{"type": "number", "description": "per-probe timeout in seconds", "default": 5},
		},
	}
}

func proxySchema() mcp.ToolInputSchema {
	return mcp.ToolInputSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"action": map[string]interface{}{"type": "string", "description": "list, info, or call", "enum": []string{"list", "info", "call"}},
			"type":    map[string]interface{}{"type": "string", "description": "tool, resource, or prompt", "enum": []string{"tool", "resource", "prompt"}},
			"path":    map[string]interface{}{"type": "string", "description": "prefixed capability name or URI; required for info/call"},
			"args":    map[string]interface{}{"type": "object", "description": "arguments for action 'call'"},
		},
		Required: []string{"action", "type"},
	}
}

func addServerSchema() mcp.ToolInputSchema {
	return mcp.ToolInputSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"name":    map[string]interface{}{"type": "string", "description": "unique server name"},
			"source":  map[string]interface{}{"type": "string", "description": "human-readable source/origin of this server"},
			"command": map[string]interface{}{"type": "string", "description": "command to spawn for a stdio server"},
			"args":    map[string]interface{}{"type": "array", "description": "arguments for command", "items": map[string]interface{}{"type": "string"}},
			"uri":     map[string]interface{}{"type": "string", "description": "endpoint URI for a remote server"},
			"prefix":  map[string]interface{}{"type": "string", "description": "namespace prefix; derived from name if omitted"},
			"enabled": map[string]interface{}{"type": "boolean", "description": "mount immediately", "default": true},
		},
		Required: []string{"name", "source"},
	}
}

func stringArg(args map[string]interface{}, key string) string {
	v, _ := args[key].(string)
	return v
}

func (s *Server) requireWritable(op string) *mcp.CallToolResult {
	if s.cfg.ReadOnly {
		return mcp.NewToolResultError(magg_errors.ReadOnlyError{Operation: op}.Error())
	}
	return nil
}

func (s *Server) handleUnimplemented(name string) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultError(fmt.Sprintf("%s delegates to an external collaborator not implemented by this core", name)), nil
	}
}

func (s *Server) handleProxy(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]interface{})

	var callArgs map[string]any
	if raw, ok := args["args"].(map[string]interface{}); ok {
		callArgs = raw
	}

	content, err := s.dispatcher.Dispatch(
		ctx,
		proxy.Action(stringArg(args, "action")),
		proxy.CapabilityType(stringArg(args, "type")),
		stringArg(args, "path"),
		callArgs,
	)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return &mcp.CallToolResult{Content: content}, nil
}

func (s *Server) handleAddServer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if errResult := s.requireWritable("add_server"); errResult != nil {
		return errResult, nil
	}
	args, _ := req.Params.Arguments.(map[string]interface{})

	sc := &config.ServerConfig{
		Name:    stringArg(args, "name"),
		Source:  stringArg(args, "source"),
		Prefix:  stringArg(args, "prefix"),
		Command: stringArg(args, "command"),
		URI:     stringArg(args, "uri"),
		Enabled: true,
	}
	if rawEnabled, ok := args["enabled"].(bool); ok {
		sc.Enabled = rawEnabled
	}
	if rawArgs, ok := args["args"].([]interface{}); ok {
		for _, a := range rawArgs {
			if str, ok := a.(string); ok {
				sc.Args = append(sc.Args, str)
			}
		}
	}

	if err := config.ValidateServerConfig(sc, s.sep()); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, exists := s.cfg.Servers[sc.Name]; exists {
		return mcp.NewToolResultError(fmt.Sprintf("server %q already exists", sc.Name)), nil
	}

	// Duplicate prefixes are tolerated: the collision is reported back to the
	// caller (and in status), never treated as a configuration error.
	var prefixNote string
	if owners := s.mounts.Prefixes()[sc.Prefix]; len(owners) > 0 {
		prefixNote = fmt.Sprintf("prefix %q already used by %v", sc.Prefix, owners)
		if s.cfg.WarnOnDuplicatePrefix {
			logging.Warn("front", "add_server %s: %s", sc.Name, prefixNote)
		}
	}

	s.cfg.Servers[sc.Name] = sc

	var mountErr error
	if sc.Enabled {
		mountErr = s.mounts.Mount(ctx, sc)
	}
	s.reloader.IgnoreNextChange()
	if err := s.save(); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("server added but failed to persist: %v", err)), nil
	}

	s.Sync(ctx)
	out := map[string]any{"server": sc}
	if prefixNote != "" {
		out["prefix_collision"] = prefixNote
	}
	if mountErr != nil {
		out["errors"] = []string{mountErr.Error()}
	}
	return textResult(out), nil
}

func (s *Server) handleRemoveServer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if errResult := s.requireWritable("remove_server"); errResult != nil {
		return errResult, nil
	}
	args, _ := req.Params.Arguments.(map[string]interface{})
	name := stringArg(args, "name")

	if _, exists := s.cfg.Servers[name]; !exists {
		return mcp.NewToolResultError(magg_errors.NotFoundError{Kind: "server", Name: name}.Error()), nil
	}

	_ = s.mounts.Unmount(name)
	delete(s.cfg.Servers, name)

	s.reloader.IgnoreNextChange()
	if err := s.save(); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("server removed but failed to persist: %v", err)), nil
	}
	s.Sync(ctx)
	return textResult(map[string]any{"removed": name}), nil
}

func (s *Server) handleListServers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	type serverView struct {
		Name    string          `json:"name"`
		Enabled bool            `json:"enabled"`
		Prefix  string          `json:"prefix"`
		Mounted bool            `json:"mounted"`
		Health  mount.HealthState `json:"health,omitempty"`
		Kits    []string        `json:"kits,omitempty"`
	}

	var out []serverView
	for name, sc := range s.cfg.Servers {
		view := serverView{Name: name, Enabled: sc.Enabled, Prefix: sc.Prefix, Kits: sc.Kits}
		if ms, ok := s.mounts.Get(name); ok {
			view.Mounted = true
			state, _ := ms.Health()
			view.Health = state
		}
		out = append(out, view)
	}
	return textResult(map[string]any{"servers": out}), nil
}

func (s *Server) handleEnableServer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if errResult := s.requireWritable("enable_server"); errResult != nil {
		return errResult, nil
	}
	args, _ := req.Params.Arguments.(map[string]interface{})
	name := stringArg(args, "name")

	sc, exists := s.cfg.Servers[name]
	if !exists {
		return mcp.NewToolResultError(magg_errors.NotFoundError{Kind: "server", Name: name}.Error()), nil
	}
	sc.Enabled = true
	mountErr := s.mounts.Mount(ctx, sc)

	s.reloader.IgnoreNextChange()
	if err := s.save(); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("server enabled but failed to persist: %v", err)), nil
	}
	s.Sync(ctx)
	out := map[string]any{"name": name, "enabled": true}
	if mountErr != nil {
		out["errors"] = []string{mountErr.Error()}
	}
	return textResult(out), nil
}

func (s *Server) handleDisableServer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if errResult := s.requireWritable("disable_server"); errResult != nil {
		return errResult, nil
	}
	args, _ := req.Params.Arguments.(map[string]interface{})
	name := stringArg(args, "name")

	sc, exists := s.cfg.Servers[name]
	if !exists {
		return mcp.NewToolResultError(magg_errors.NotFoundError{Kind: "server", Name: name}.Error()), nil
	}
	sc.Enabled = false
	_ = s.mounts.Unmount(name)

	s.reloader.IgnoreNextChange()
	if err := s.save(); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("server disabled but failed to persist: %v", err)), nil
	}
	s.Sync(ctx)
	return textResult(map[string]any{"name": name, "enabled": false}), nil
}

func (s *Server) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	mounted := s.mounts.All()
	var enabled, disabled, tools int
	for _, sc := range s.cfg.Servers {
		if sc.Enabled {
			enabled++
		} else {
			disabled++
		}
	}
	allTools, _ := s.mounts.ListTools(ctx, s.sep())
	tools = len(allTools)

	return textResult(map[string]any{
		"total_servers":   len(s.cfg.Servers),
		"enabled_servers": enabled,
		"disabled_servers": disabled,
		"mounted_servers": len(mounted),
		"tools":           tools,
		"prefixes":        s.mounts.Prefixes(),
	}), nil
}

func (s *Server) handleCheck(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]interface{})
	action := health.ActionReport
	if raw := stringArg(args, "action"); raw != "" {
		action = health.Action(raw)
	}
	// An explicit 0 is honored: every probe expires immediately and the
	// backend classifies unresponsive without blocking.
	timeout := 5 * time.Second
	if raw, ok := args["timeout"].(float64); ok && raw >= 0 {
		timeout = time.Duration(raw * float64(time.Second))
	}

	reports := s.checker.Check(ctx, action, timeout)
	return textResult(map[string]any{"reports": reports}), nil
}

// handleReloadConfig triggers the same reload pipeline the file watcher
// runs automatically: Reload diffs, validates, and — via the watcher's
// callback (Server.ApplyReloadChange) — applies the change to the mount
// table and resyncs the registered tool/resource set, so no further work is
// needed here beyond reporting what changed.
func (s *Server) handleReloadConfig(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	change, err := s.reloader.Reload(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if change == nil || !change.HasChanges() {
		return textResult(map[string]any{"changed": false}), nil
	}
	return textResult(map[string]any{"changed": true, "summary": change.Summarize()}), nil
}

func (s *Server) handleLoadKit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if errResult := s.requireWritable("load_kit"); errResult != nil {
		return errResult, nil
	}
	args, _ := req.Params.Arguments.(map[string]interface{})
	name := stringArg(args, "name")

	if err := s.kits.Load(name, s.cfg); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	for serverName, sc := range s.cfg.Servers {
		if !sc.Enabled {
			continue
		}
		if _, mounted := s.mounts.Get(serverName); mounted {
			continue
		}
		_ = s.mounts.Mount(ctx, sc)
	}
	s.reloader.IgnoreNextChange()
	if err := s.save(); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("kit loaded but failed to persist: %v", err)), nil
	}
	s.Sync(ctx)
	return textResult(map[string]any{"loaded": name}), nil
}

func (s *Server) handleUnloadKit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if errResult := s.requireWritable("unload_kit"); errResult != nil {
		return errResult, nil
	}
	args, _ := req.Params.Arguments.(map[string]interface{})
	name := stringArg(args, "name")

	before := make(map[string]bool, len(s.cfg.Servers))
	for n := range s.cfg.Servers {
		before[n] = true
	}

	if err := s.kits.Unload(name, s.cfg); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	for n := range before {
		if _, stillThere := s.cfg.Servers[n]; !stillThere {
			_ = s.mounts.Unmount(n)
		}
	}

	s.reloader.IgnoreNextChange()
	if err := s.save(); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("kit unloaded but failed to persist: %v", err)), nil
	}
	s.Sync(ctx)
	return textResult(map[string]any{"unloaded": name}), nil
}

func (s *Server) handleListKits(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return textResult(map[string]any{"kits": s.kits.ListAll()}), nil
}

func (s *Server) handleKitInfo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]interface{})
	name := stringArg(args, "name")

	listing, ok := s.kits.Info(name)
	if !ok {
		return mcp.NewToolResultError(magg_errors.NotFoundError{Kind: "kit", Name: name}.Error()), nil
	}
	return textResult(listing), nil
}
