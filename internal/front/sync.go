package front

import (
	"context"

	"magg/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Sync brings the front-end MCP server's registered tools and resources up
// to date with the live mount table and configuration: the union of every
// mounted backend's tools under "<prefix><sep><name>", plus one resource
// per currently configured server/kit.
// Callers invoke this after any operation that can change the mount table or
// the server/kit set: initial Start, add/remove/enable/disable_server,
// load/unload_kit, and a successful reload_config.
func (s *Server) Sync(ctx context.Context) {
	s.syncBackendTools(ctx)
	s.syncEntityResources(ctx)
}

func (s *Server) syncBackendTools(ctx context.Context) {
	tools, err := s.mounts.ListTools(ctx, s.sep())
	if err != nil {
		logging.Warn("front", "sync: listing backend tools failed: %v", err)
		return
	}

	current := make(map[string]mcp.Tool, len(tools))
	for _, t := range tools {
		current[t.Name] = t
	}

	s.mu.Lock()
	previous := s.forwardedTools
	s.mu.Unlock()

	var toRemove []string
	for name := range previous {
		if _, stillPresent := current[name]; !stillPresent {
			toRemove = append(toRemove, name)
		}
	}

	var toAdd []server.ServerTool
	for name, tool := range current {
		if _, already := previous[name]; already {
			continue
		}
		toAdd = append(toAdd, server.ServerTool{
			Tool:    tool,
			Handler: s.forwardToolHandler(name),
		})
	}

	if len(toRemove) > 0 {
		s.mcpServer.DeleteTools(toRemove...)
	}
	if len(toAdd) > 0 {
		s.mcpServer.AddTools(toAdd...)
	}

	next := make(map[string]mcp.Tool, len(current))
	for name, t := range current {
		next[name] = t
	}
	s.mu.Lock()
	s.forwardedTools = next
	s.mu.Unlock()
}

// forwardToolHandler resolves the owning backend by prefix at call time
// (never at registration time) so a remount that changes which client owns a
// prefix is observed on the next call rather than baked into a stale closure.
func (s *Server) forwardToolHandler(prefixedName string) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		prefix, rest, ok := s.mounts.ResolvePrefixed(prefixedName, s.sep())
		if !ok {
			return mcp.NewToolResultError("backend for " + prefixedName + " is no longer mounted"), nil
		}
		client, ok := s.mounts.ClientForPrefix(prefix)
		if !ok {
			return mcp.NewToolResultError("backend for " + prefixedName + " is no longer mounted"), nil
		}
		args, _ := req.Params.Arguments.(map[string]interface{})
		result, err := client.CallTool(ctx, rest, args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return result, nil
	}
}

func (s *Server) syncEntityResources(ctx context.Context) {
	current := make(map[string]func(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error))
	for name := range s.cfg.Servers {
		current[s.resourceURI("server/"+name)] = s.handleServerResource(name)
	}
	for _, listing := range s.kits.ListAll() {
		current[s.resourceURI("kit/"+listing.Name)] = s.handleKitResource(listing.Name)
	}

	s.mu.Lock()
	previous := s.entityResources
	s.mu.Unlock()

	for uri := range previous {
		if _, stillPresent := current[uri]; !stillPresent {
			s.mcpServer.RemoveResource(uri)
		}
	}

	var toAdd []server.ServerResource
	for uri, handler := range current {
		if _, already := previous[uri]; already {
			continue
		}
		toAdd = append(toAdd, server.ServerResource{
			Resource: mcp.Resource{URI: uri, MIMEType: "application/json"},
			Handler:  handler,
		})
	}
	if len(toAdd) > 0 {
		s.mcpServer.AddResources(toAdd...)
	}

	next := make(map[string]struct{}, len(current))
	for uri := range current {
		next[uri] = struct{}{}
	}
	s.mu.Lock()
	s.entityResources = next
	s.mu.Unlock()
}
