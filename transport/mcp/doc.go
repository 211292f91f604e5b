// Package mcp provides a Model Context Protocol server for the Random Pick Server.
//
// The mcp package implements a thin MCP server whose tools proxy to the
// HTTP API, so agents can use the same selection policy that WebSocket
// clients get.
//
// MCP Tools:
//   - pick_option: pick one element of an options array uniformly at random
//   - server_stats: report connection and message counters
//
// Transport Modes:
//   - Stdio: direct stdio communication for local MCP clients
//   - HTTP: POST /mcp on the main server
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:3000")
//	server.ServeStdio(client.GetMCPServer())
package mcp
