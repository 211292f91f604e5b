// Package api provides the HTTP surface of the Random Pick Server.
//
// WebSocket upgrade requests are routed to the websocket Listener whatever
// their path. Plain requests get a small JSON API:
//
// Endpoints:
//   - GET /api/health - Liveness check
//   - GET /api/stats - Connection and message counters
//   - POST /api/pick - Pick one element of a JSON array body
//
// Any other plain request to / or /ws is answered with 426 Upgrade Required,
// everything else with 404.
//
// Pick:
//
//	POST /api/pick
//	["rock","paper","scissors"]
//
//	200 {"choice":"paper"}
//
// Error Handling:
//
// Errors are returned as JSON with appropriate HTTP status codes:
//
//	{
//	  "error": "error message"
//	}
//
// A body that is not a JSON array gets 400, an empty array gets 422.
package api
