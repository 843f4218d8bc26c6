// Package api implements the dcsense HTTP API.
//
// Every route is mounted under /api and, apart from health and metrics,
// takes a JSON POST body. Sensitive routes carry the caller's session ticket
// in that body:
//
//	{"ticket": {"username": "alice", "ticket": "...", "expires": "2026-03-08T09:00:00.000Z"}}
//
// # Guards
//
// Protected routes are wrapped in a chi middleware chain. requireSession
// validates the ticket at a fixed access level and stores the user in the
// request context; requireControllerAccess and requireFacilityAccess then
// apply the ownership predicate for the {controller} or {facility} URL
// parameter. A failed session check always short-circuits before any
// ownership or existence lookup, so unauthenticated callers cannot probe
// which facilities exist.
//
// # Errors
//
// Domain errors are translated in one place (writeDomainError) into a
// structured body {"error": {"code", "message"}}. Authentication failures
// additionally carry logged_in so clients can tell an expired session from
// a missing permission. Storage failures are logged with the request ID and
// reported as a bare internal_error.
//
// # Rate limiting
//
// Register and login are rate limited per client IP with a token bucket
// when security.rate_limit.enabled is set.
package api
