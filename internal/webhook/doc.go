// Package webhook serves the gated webhook endpoint.
//
// POST /webhook is wrapped by runauth.GinGate, so the handler only runs for
// callers holding a verified platform identity token. The package also
// exposes liveness, health and Prometheus endpoints, and carries the
// recovery, request ID and access log middleware the router uses.
package webhook
