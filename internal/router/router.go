// Package router implements the bidirectional message router:
// it decouples the notifications emitted by many mounted backends from the
// clients subscribed to Magg's own notification stream.
package router

import (
	"context"
	"sync"
	"time"

	"magg/pkg/logging"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// NotificationKind classifies a forwarded backend notification by MCP kind.
type NotificationKind string

const (
	KindToolListChanged     NotificationKind = "tool_list_changed"
	KindResourceListChanged NotificationKind = "resource_list_changed"
	KindPromptListChanged   NotificationKind = "prompt_list_changed"
	KindProgress            NotificationKind = "progress"
	KindLog                 NotificationKind = "log"
)

// ServerNotification is the envelope a backend notification is wrapped in
// before routing, tagging it with which backend produced it. Payload carries
// whatever notification params the backend's client session decoded (the
// notification's mcp.NotificationParams, as Coordinator passes it); the router
// itself is payload-agnostic and never inspects it.
type ServerNotification struct {
	ServerName string
	Kind       NotificationKind
	Payload    any
	ReceivedAt time.Time
}

// Handler receives routed notifications. A handler's failure is isolated:
// it never affects delivery to any other handler.
type Handler func(ctx context.Context, n ServerNotification) error

// Token identifies a registered handler so it can be unregistered later. Its
// id is a random uuid rather than a slice index: subscribers come and go
// concurrently (a downstream client disconnecting while a notification is
// mid-route), and an index-based token would be invalidated by any other
// concurrent unregistration shifting the slice underneath it.
type Token struct {
	serverID string
	id       uuid.UUID
}

// Router maintains per-server and global subscriber tables, keyed by Token,
// under a single guard. Route delivers to a snapshot of subscribers taken
// under that guard, released before delivery so slow handlers never hold up
// registration.
type Router struct {
	mu        sync.Mutex
	perServer map[string]map[uuid.UUID]Handler
	global    map[uuid.UUID]Handler
}

// New constructs an empty Router.
func New() *Router {
	return &Router{
		perServer: make(map[string]map[uuid.UUID]Handler),
		global:    make(map[uuid.UUID]Handler),
	}
}

// Register adds handler as a subscriber. If serverID is empty, the handler
// receives notifications from every backend; otherwise only from that one.
// The token is discarded; callers needing to unregister should use
// RegisterWithToken instead.
func (r *Router) Register(handler Handler, serverID string) {
	r.RegisterWithToken(handler, serverID)
}

// RegisterWithToken registers handler and returns a Token that Unregister
// accepts to remove exactly this registration.
func (r *Router) RegisterWithToken(handler Handler, serverID string) Token {
	id := uuid.New()
	r.mu.Lock()
	defer r.mu.Unlock()
	if serverID == "" {
		r.global[id] = handler
		return Token{id: id}
	}
	if r.perServer[serverID] == nil {
		r.perServer[serverID] = make(map[uuid.UUID]Handler)
	}
	r.perServer[serverID][id] = handler
	return Token{serverID: serverID, id: id}
}

// Unregister drops the handler identified by tok. Safe to call concurrently
// with Route; in-flight deliveries to the handler are not cancelled, but no
// further notification will reach it once this returns.
func (r *Router) Unregister(tok Token) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tok.serverID == "" {
		delete(r.global, tok.id)
		return
	}
	handlers := r.perServer[tok.serverID]
	delete(handlers, tok.id)
	if len(handlers) == 0 {
		delete(r.perServer, tok.serverID)
	}
}

// Route snapshots the union of global subscribers and the subscribers for
// serverID (if non-empty) under the guard, releases it, then delivers to
// each concurrently. One handler's error is logged and does not affect
// delivery to any other handler, nor is it returned to the caller — this
// is a fire-and-forget fan-out.
func (r *Router) Route(ctx context.Context, n ServerNotification, serverID string) {
	r.mu.Lock()
	handlers := make([]Handler, 0, len(r.global))
	for _, h := range r.global {
		handlers = append(handlers, h)
	}
	if serverID != "" {
		for _, h := range r.perServer[serverID] {
			handlers = append(handlers, h)
		}
	}
	r.mu.Unlock()

	if len(handlers) == 0 {
		return
	}

	// A bare errgroup.Group, not WithContext: cancel-on-first-error would
	// abort sibling deliveries, so handler errors are logged here and never
	// returned from the closures.
	var g errgroup.Group
	for _, h := range handlers {
		h := h
		g.Go(func() error {
			if err := h(ctx, n); err != nil {
				logging.Warn("router", "notification handler error for server %s: %v", n.ServerName, err)
			}
			return nil
		})
	}
	_ = g.Wait()
}
