// Package server provides HTTP routing, middleware, and the handlers tfx serves.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # OAuth Callback Handler
//
// [OAuthHandler] completes the Google authorization code flow for `tfx auth login`. It validates the
// state parameter, exchanges the code through an [Exchanger] and sends the result through a channel.
// Only the first callback is processed.
//
// The listener runs on the host and port of remote.redirect_uri (127.0.0.1:8383 by default) and shuts
// down once the token is stored.
//
// # Pipeline Endpoints
//
// `tfx run --metrics` serves [NewPipelineRouter] on server.host:server.port:
//
//	GET /metrics   prometheus exposition
//	GET /healthz   database reachability and scheduler state
//	GET /status    counts by state, media records, failures (JSON)
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
