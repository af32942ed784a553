// Package api implements the HTTP status API and WebSocket event stream of
// the natsfixture command.
//
// This package provides:
//   - REST endpoints listing fixture instances and their launch history
//   - Start and stop routes for individual instances
//   - A WebSocket hub that relays lifecycle events as they happen
//   - JWT bearer authentication for the start and stop routes
//   - Middleware stack (request ID, logging, recovery)
//
// # Security
//
// Read routes are open. When api.jwt_secret is set, the start and stop routes
// and the WebSocket stream require an HS256 token issued by IssueToken
// (the "natsfixture token" command prints one). WebSocket clients pass it as
// the token query parameter.
//
// # Event stream
//
// Clients subscribe to channels named "fixture.<event type>", for example
// "fixture.started", or to "*" for everything:
//
//	{"type":"subscribe","id":"1","payload":{"channels":["fixture.started"]}}
package api
