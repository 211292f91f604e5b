// Package websocket provides the WebSocket transport for the Random Pick Server.
//
// The websocket package implements:
//   - The Listener, which upgrades HTTP requests into WebSocket connections
//   - The per-connection Handler, which answers each options message
//   - The Hub, a registry of live connections used for stats and shutdown
//
// Message Protocol:
//
// Every inbound text frame carries a JSON array of options. The server
// replies with exactly one text frame holding one of those options, chosen
// uniformly at random:
//   - Incoming: ["rock","paper","scissors"]
//   - Outgoing: "scissors"
//
// Faults close only the connection that caused them, without a response:
//   - Not a JSON array: close 1007 (invalid payload data)
//   - Empty array: close 1008 (policy violation)
//   - Binary frame: close 1003 (unsupported data)
//   - Frame larger than the read limit: close 1009 (message too big)
//
// Usage:
//
//	hub := websocket.NewHub()
//	go hub.Run(ctx)
//
//	listener := websocket.NewListener(hub, picker.NewUniform(), websocket.DefaultOptions())
//	http.Handle("/", listener)
//
// Connection Lifecycle:
//
// 1. Client sends an upgrade request (any path, any origin)
// 2. Listener completes the handshake and registers a Handler with the hub
// 3. Handler reads frames one at a time and queues one response per frame
// 4. A single writer goroutine sends responses in order, plus keepalive pings
// 5. Close from either side, a fault, or a transport error ends both goroutines
//
// Concurrency:
//
// Each connection gets its own reader and writer goroutine and shares no
// mutable state with any other connection. A slow or stalled peer only
// blocks its own goroutines. The Listener returns as soon as the handshake
// completes.
package websocket
