// Package server exposes the applytrack workflows over HTTP.
//
// # Endpoints
//
//	POST   /api/applications/send   send an application via the owner's Gmail
//	POST   /api/inbox/sync          correlate recent mail with applications
//	GET    /api/google/connect      consent URL for linking a mailbox
//	GET    /api/google/callback     OAuth redirect target
//	GET    /api/accounts            linked mailboxes, never tokens
//	DELETE /api/accounts/{id}       unlink a mailbox
//	/mcp                            optional MCP streamable HTTP transport
//
// Every /api route except the callback requires an HS256 bearer token whose
// subject is the owner. The callback is reached by a browser redirect and
// identifies the owner through the signed state parameter instead.
//
// Errors are answered as {"error": ..., "code": ...} with the status
// apperr.HTTPStatus assigns.
//
// HealthChecker serves /healthz, /readyz and /healthz/detailed. The
// MetricsServer serves Prometheus metrics on a separate listener.
package server
