package front

import (
	"context"
	"encoding/json"
	"fmt"

	"magg/internal/mount"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// buildResources assembles magg's own static resources. The per-name
// variants (server/{name}, kit/{name}) are not registered here: mcp-go
// resources are concrete URIs, not RFC 6570 templates, so one resource per
// currently-known server/kit is registered instead and kept in sync with
// the configuration by syncEntityResources (see sync.go).
func (s *Server) buildResources() []server.ServerResource {
	return []server.ServerResource{
		{
			Resource: mcp.Resource{
				URI:         s.resourceURI("servers/all"),
				Name:        "All configured servers",
				Description: "JSON projection of every configured server and its runtime mount state.",
				MIMEType:    "application/json",
			},
			Handler: s.handleServersAllResource,
		},
		{
			Resource: mcp.Resource{
				URI:         s.resourceURI("kits/all"),
				Name:        "All known kits",
				Description: "JSON projection of every discoverable and loaded kit.",
				MIMEType:    "application/json",
			},
			Handler: s.handleKitsAllResource,
		},
	}
}

func (s *Server) resourceURI(suffix string) string {
	selfPrefix := s.cfg.SelfPrefix
	if selfPrefix == "" {
		selfPrefix = "magg"
	}
	return fmt.Sprintf("%s://%s", selfPrefix, suffix)
}

func (s *Server) handleServersAllResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	type serverView struct {
		Name    string            `json:"name"`
		Enabled bool              `json:"enabled"`
		Prefix  string            `json:"prefix"`
		Mounted bool              `json:"mounted"`
		Health  mount.HealthState `json:"health,omitempty"`
		Kits    []string          `json:"kits,omitempty"`
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
	return jsonResourceContents(req.Params.URI, out)
}

func (s *Server) handleKitsAllResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResourceContents(req.Params.URI, s.kits.ListAll())
}

func (s *Server) handleServerResource(name string) func(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		sc, ok := s.cfg.Servers[name]
		if !ok {
			return nil, fmt.Errorf("server %q not found", name)
		}
		view := map[string]any{"config": sc}
		if ms, mounted := s.mounts.Get(name); mounted {
			state, at := ms.Health()
			view["mounted"] = true
			view["health"] = state
			view["last_probe_at"] = at
		} else {
			view["mounted"] = false
		}
		return jsonResourceContents(req.Params.URI, view)
	}
}

func (s *Server) handleKitResource(name string) func(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		listing, ok := s.kits.Info(name)
		if !ok {
			return nil, fmt.Errorf("kit %q not found", name)
		}
		return jsonResourceContents(req.Params.URI, listing)
	}
}

func jsonResourceContents(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: uri, MIMEType: "application/json", Text: string(data)},
	}, nil
}
