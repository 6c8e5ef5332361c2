// Package front implements Magg's own MCP server: the transport listeners
// a downstream client connects to, and the management tool/resource
// registrations layered over the mount manager, kit manager, reload engine,
// and health checker.
package front

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"magg/internal/config"
	"magg/internal/health"
	"magg/internal/kit"
	"magg/internal/mount"
	"magg/internal/proxy"
	"magg/internal/reload"
	"magg/internal/router"
	"magg/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Transport selects which MCP wire transport the front server listens on.
type Transport string

const (
	TransportStdio           Transport = "stdio"
	TransportSSE             Transport = "sse"
	TransportStreamableHTTP  Transport = "streamable-http"
)

// Options configures Server.Start.
type Options struct {
	Transport Transport
	Host      string
	Port      int
}

// Server is Magg's front end: the piece a downstream MCP client dials.
// It owns no business logic of its own — every tool handler below
// delegates to mounts/kits/reloader/checker, mirroring the aggregator's
// split between transport plumbing and domain logic.
type Server struct {
	cfg     *config.MaggConfig
	cfgPath string
	mounts  *mount.Manager
	kits    *kit.Manager
	reloader *reload.Watcher
	checker *health.Checker
	coord   *router.Coordinator
	dispatcher *proxy.Dispatcher

	mcpServer *mcpserver.MCPServer

	mu                   sync.Mutex
	stdioServer          *mcpserver.StdioServer
	sseServer            *mcpserver.SSEServer
	streamableHTTPServer *mcpserver.StreamableHTTPServer
	httpServer           *http.Server

	forwardedTools  map[string]mcp.Tool
	entityResources map[string]struct{}
}

// New builds a front server wired to the given runtime components. Mutating
// tools persist cfg to cfgPath through the server's save method
// (config.SaveConfig).
func New(cfg *config.MaggConfig, cfgPath string, mounts *mount.Manager, kits *kit.Manager, reloader *reload.Watcher, checker *health.Checker, coord *router.Coordinator) *Server {
	return &Server{
		cfg:             cfg,
		cfgPath:         cfgPath,
		mounts:          mounts,
		kits:            kits,
		reloader:        reloader,
		checker:         checker,
		coord:           coord,
		dispatcher:      proxy.NewDispatcher(mounts, cfg),
		forwardedTools:  map[string]mcp.Tool{},
		entityResources: map[string]struct{}{},
	}
}

// ApplyReloadChange is the reload engine's callback: it applies a validated
// ConfigChange to the mount table and then brings the registered tool/
// resource set back in sync. Wired as the reload.Watcher's Callback, so both
// file-triggered (automatic) reloads and the manual reload_config tool reach
// it through Watcher.Reload (see handleReloadConfig).
func (s *Server) ApplyReloadChange(ctx context.Context, change *config.ConfigChange) error {
	s.mounts.HandleConfigChange(ctx, change)
	s.Sync(ctx)
	return nil
}

func (s *Server) save() error {
	return config.SaveConfig(s.cfgPath, s.cfg)
}

func (s *Server) sep() string {
	if s.cfg.PrefixSep == "" {
		return config.DefaultPrefixSep
	}
	return s.cfg.PrefixSep
}

func (s *Server) prefixed(name string) string {
	selfPrefix := s.cfg.SelfPrefix
	if selfPrefix == "" {
		selfPrefix = "magg"
	}
	return selfPrefix + s.sep() + name
}

// Start builds the MCP server, registers every tool and resource, and
// begins listening on the configured transport. It does not block; callers
// wait on ctx cancellation themselves.
func (s *Server) Start(ctx context.Context, opts Options) error {
	s.mu.Lock()
	if s.mcpServer != nil {
		s.mu.Unlock()
		return fmt.Errorf("front server already started")
	}

	mcpSrv := mcpserver.NewMCPServer(
		"magg",
		"0.1.0",
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithPromptCapabilities(true),
	)
	s.mcpServer = mcpSrv
	mcpSrv.AddTools(s.buildTools()...)
	mcpSrv.AddResources(s.buildResources()...)

	if s.coord != nil {
		s.coord.Router().Register(s.forwardNotification, "")
	}

	addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)

	switch opts.Transport {
	case TransportSSE:
		baseURL := fmt.Sprintf("http://%s", addr)
		s.sseServer = mcpserver.NewSSEServer(
			mcpSrv,
			mcpserver.WithBaseURL(baseURL),
			mcpserver.WithSSEEndpoint("/sse"),
			mcpserver.WithMessageEndpoint("/message"),
			mcpserver.WithKeepAlive(true),
			mcpserver.WithKeepAliveInterval(30*time.Second),
		)
		httpSrv := &http.Server{Addr: addr, Handler: s.sseServer}
		s.httpServer = httpSrv
		go func() {
			logging.Info("front", "starting SSE transport on %s", addr)
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logging.Error("front", err, "SSE server error")
			}
		}()

	case TransportStdio:
		s.stdioServer = mcpserver.NewStdioServer(mcpSrv)
		stdioServer := s.stdioServer
		go func() {
			logging.Info("front", "starting stdio transport")
			if err := stdioServer.Listen(ctx, os.Stdin, os.Stdout); err != nil {
				logging.Error("front", err, "stdio server error")
			}
		}()

	case TransportStreamableHTTP:
		fallthrough
	default:
		s.streamableHTTPServer = mcpserver.NewStreamableHTTPServer(mcpSrv)
		httpSrv := &http.Server{Addr: addr, Handler: s.streamableHTTPServer}
		s.httpServer = httpSrv
		go func() {
			logging.Info("front", "starting streamable-http transport on %s", addr)
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logging.Error("front", err, "streamable-http server error")
			}
		}()
	}

	s.mu.Unlock()
	s.Sync(ctx)
	return nil
}

// Stop shuts down the HTTP listener (stdio has no listener to close; it
// exits when its ctx is cancelled).
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// forwardNotification is the global router subscriber installed in Start: it
// turns a routed ServerNotification back into an MCP notification and sends
// it to every client currently connected to Magg's own front end, completing
// the backend-to-client forwarding loop.
func (s *Server) forwardNotification(ctx context.Context, n router.ServerNotification) error {
	var params map[string]any
	if data, err := json.Marshal(n.Payload); err == nil {
		_ = json.Unmarshal(data, &params)
	}
	s.mcpServer.SendNotificationToAllClients(notificationMethod(n.Kind), params)
	return nil
}

func notificationMethod(kind router.NotificationKind) string {
	switch kind {
	case router.KindToolListChanged:
		return "notifications/tools/list_changed"
	case router.KindResourceListChanged:
		return "notifications/resources/list_changed"
	case router.KindPromptListChanged:
		return "notifications/prompts/list_changed"
	case router.KindProgress:
		return "notifications/progress"
	default:
		return "notifications/message"
	}
}

func textResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(data))
}
