package tracelens

import "net/http"

// RouteRegistrar registers additional routes on the shared HTTP mux.
// Extra routes share the mux, middleware chain and OTel instrumentation with
// the built-in routes. The function is called once during New() after all
// built-in routes are registered.
type RouteRegistrar func(mux *http.ServeMux)

// Middleware wraps the root HTTP handler.
// Applied outermost (before routing), so it sees all requests including /health.
// Multiple middlewares are applied in registration order (first-registered = outermost).
type Middleware func(http.Handler) http.Handler
