package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/wricardo/mcp-training/randompick/transport/websocket"
)

// Largest JSON-RPC message accepted on the HTTP endpoint.
const maxMessageSize = 1 << 20

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Random Pick Server",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Random Pick Server - MCP Interface

This is a thin client that proxies all requests to the HTTP API server.

Give pick_option a list of candidate values (strings, numbers, objects, anything
JSON) and it returns exactly one of them, chosen uniformly at random. Every call
is an independent draw.

AVAILABLE TOOLS:
- pick_option: Pick one option from a non-empty list
- server_stats: Live WebSocket connections and message counters`),
	)

	c.registerTools()
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "pick_option",
		Description: "Pick one option uniformly at random from a non-empty list",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"options": map[string]interface{}{
					"type":        "array",
					"description": "Candidate values; one of them is returned unchanged",
					"minItems":    1,
				},
			},
			Required: []string{"options"},
		},
	}, c.handlePickOption)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "server_stats",
		Description: "Get WebSocket connection and message counters",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleServerStats)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// ServeHTTP answers one JSON-RPC message per POST request.
func (c *Client) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMessageSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Request too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Failed to read request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	response := c.mcpServer.HandleMessage(r.Context(), body)

	w.Header().Set("Content-Type", "application/json")
	responseData, err := json.Marshal(response)
	if err != nil {
		http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
		return
	}
	w.Write(responseData)
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	url := c.baseURL + path

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

// Tool handlers

func (c *Client) handlePickOption(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	options, ok := args["options"].([]interface{})
	if !ok {
		return mcp.NewToolResultError("options must be an array"), nil
	}

	var response struct {
		Choice json.RawMessage `json:"choice"`
	}
	if err := c.apiCall(ctx, "POST", "/api/pick", options, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Selected: %s", response.Choice)), nil
}

func (c *Client) handleServerStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var stats websocket.Stats
	if err := c.apiCall(ctx, "GET", "/api/stats", nil, &stats); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatStats(&stats)), nil
}

func formatStats(stats *websocket.Stats) string {
	var b strings.Builder
	b.WriteString("Random Pick Server stats\n")
	fmt.Fprintf(&b, "Active connections: %d\n", stats.Active)
	fmt.Fprintf(&b, "Accepted connections: %d\n", stats.Accepted)
	fmt.Fprintf(&b, "Handshake failures: %d\n", stats.HandshakeFailures)
	fmt.Fprintf(&b, "Messages received: %d\n", stats.Messages)
	fmt.Fprintf(&b, "Selections sent: %d\n", stats.Selections)
	fmt.Fprintf(&b, "Faults: decode=%d empty=%d frame=%d transport=%d\n",
		stats.DecodeFaults, stats.EmptyFaults, stats.FrameFaults, stats.TransportErrors)
	return b.String()
}
