// Package kit holds small transport helpers shared by the HTTP and MCP
// surfaces: the Endpoint abstraction, middleware chaining, request-scoped
// context accessors, and MCP tool registration.
package kit

import "context"

// Endpoint is a transport-agnostic handler. HTTP routes and MCP tools both
// decode into a typed request, call an Endpoint, and encode the response.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint with cross-cutting behaviour.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares so the first argument is the outermost wrapper.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
