package router

import (
	"context"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// Coordinator classifies backend notifications by MCP kind, wraps each in a
// ServerNotification, and routes it. It also keeps a best-effort "changes
// seen from server X" set purely for debugging/status surfaces — this set
// is never consulted for correctness.
type Coordinator struct {
	router *Router

	mu   sync.Mutex
	seen map[NotificationKind]map[string]struct{}
}

// NewCoordinator builds a Coordinator delivering through router.
func NewCoordinator(router *Router) *Coordinator {
	return &Coordinator{
		router: router,
		seen:   make(map[NotificationKind]map[string]struct{}),
	}
}

// Dispatch records and forwards a single, already classified backend
// notification. kind and payload are supplied by HandleNotification, which
// the backend handler installed per mount calls (see internal/mount); this
// method does no decoding of its own.
func (c *Coordinator) Dispatch(ctx context.Context, serverName string, kind NotificationKind, payload any) {
	c.mu.Lock()
	if c.seen[kind] == nil {
		c.seen[kind] = make(map[string]struct{})
	}
	c.seen[kind][serverName] = struct{}{}
	c.mu.Unlock()

	n := ServerNotification{
		ServerName: serverName,
		Kind:       kind,
		Payload:    payload,
		ReceivedAt: time.Now(),
	}
	c.router.Route(ctx, n, serverName)
}

// classifyNotification maps a raw JSON-RPC notification method to the MCP
// kind the coordinator tags it with. Anything unrecognized (e.g. a log
// message) falls back to KindLog.
func classifyNotification(method string) NotificationKind {
	switch method {
	case "notifications/tools/list_changed":
		return KindToolListChanged
	case "notifications/resources/list_changed":
		return KindResourceListChanged
	case "notifications/prompts/list_changed":
		return KindPromptListChanged
	case "notifications/progress":
		return KindProgress
	default:
		return KindLog
	}
}

// HandleNotification is the installation point for backend notification
// handlers: one is wired per mounted backend (see internal/mount), and each
// calls this method with every notification its client session receives. It
// classifies the notification by MCP method and forwards it into Dispatch
// tagged with the backend that produced it.
func (c *Coordinator) HandleNotification(ctx context.Context, serverName string, n mcp.JSONRPCNotification) {
	c.Dispatch(ctx, serverName, classifyNotification(n.Method), n.Params)
}

// Router returns the underlying Router, so a subscriber (internal/front)
// forwarding routed notifications on to Magg's own downstream clients can
// register against it directly.
func (c *Coordinator) Router() *Router {
	return c.router
}

// SeenFrom returns, for debugging, the set of server names that have
// produced at least one notification of kind.
func (c *Coordinator) SeenFrom(kind NotificationKind) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	servers := c.seen[kind]
	out := make([]string, 0, len(servers))
	for name := range servers {
		out = append(out, name)
	}
	return out
}
