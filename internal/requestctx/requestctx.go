// Package requestctx carries the per-request ambient context: the request id
// assigned at ingress, the actor id set once authentication succeeds, and the
// request start time. The carrier rides on context.Context, so its lifetime
// is exactly the handling of one inbound request and concurrent requests can
// never observe each other's values.
package requestctx

import (
	"context"
	"sync"
	"time"
)

type ctxKey struct{}

type Context struct {
	RequestID string
	StartTime time.Time

	mu      sync.Mutex
	actorID string
}

func New(requestID string) *Context {
	return &Context{RequestID: requestID, StartTime: time.Now().UTC()}
}

// SetActorID binds the authenticated principal to the current request. It is
// called at most once per request, after credential verification.
func (c *Context) SetActorID(id string) {
	c.mu.Lock()
	c.actorID = id
	c.mu.Unlock()
}

func (c *Context) ActorID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.actorID
}

func (c *Context) Elapsed() time.Duration {
	return time.Since(c.StartTime)
}

func With(ctx context.Context, rc *Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, rc)
}

// From returns the ambient request context, or ok=false outside any request
// scope (background jobs, tests that did not bind one).
func From(ctx context.Context) (*Context, bool) {
	rc, ok := ctx.Value(ctxKey{}).(*Context)
	return rc, ok
}

// RequestID is a convenience accessor; it returns "" outside request scope.
func RequestID(ctx context.Context) string {
	if rc, ok := From(ctx); ok {
		return rc.RequestID
	}
	return ""
}

// ActorID is a convenience accessor; it returns "" outside request scope or
// before authentication ran.
func ActorID(ctx context.Context) string {
	if rc, ok := From(ctx); ok {
		return rc.ActorID()
	}
	return ""
}
