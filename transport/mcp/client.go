package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wricardo/teleop-relay/transport/websocket"
)

// Client is a thin MCP client that proxies to the relay's REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Teleop Relay",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Teleop Relay - MCP Interface

Read-only view of a relay hub that forwards WebSocket traffic between a robot
and its controller.

AVAILABLE TOOLS:
- hub_status: Which endpoints are connected, since when, and how many relay loops run
- round_trip_times: Latest ping/pong round-trip time per direction`),
	)

	c.registerTools()
}

func (c *Client) registerTools() {
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "hub_status",
		Description: "Show the connection state of every relay endpoint",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleHubStatus)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "round_trip_times",
		Description: "Show the latest round-trip time measured on each ping bridge direction",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleRoundTripTimes)
}

// GetMCPServer returns the underlying MCP server
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

func (c *Client) apiCall(ctx context.Context, method, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling relay API: %w", err)
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

func (c *Client) handleHubStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var st websocket.Status
	if err := c.apiCall(ctx, "GET", "/api/status", &st); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatStatus(&st)), nil
}

func (c *Client) handleRoundTripTimes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var st websocket.Status
	if err := c.apiCall(ctx, "GET", "/api/status", &st); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatRoundTrips(st.RoundTrips)), nil
}

// Formatting helpers

func formatStatus(st *websocket.Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Relay loops running: %d\n", st.Tasks)
	b.WriteString("Endpoints:\n")
	for _, s := range st.Slots {
		if !s.Bound {
			fmt.Fprintf(&b, "  %-16s disconnected\n", s.Role)
			continue
		}
		line := fmt.Sprintf("  %-16s connected peer=%s remote=%s", s.Role, s.PeerID, s.RemoteAddr)
		if s.Since != nil {
			line += fmt.Sprintf(" for %s", time.Since(*s.Since).Round(time.Second))
		}
		b.WriteString(line + "\n")
	}
	if len(st.RoundTrips) > 0 {
		b.WriteString(formatRoundTrips(st.RoundTrips))
	}
	return b.String()
}

func formatRoundTrips(rts []websocket.RoundTrip) string {
	if len(rts) == 0 {
		return "No round trips measured yet\n"
	}
	var b strings.Builder
	b.WriteString("Round trips:\n")
	for _, rt := range rts {
		fmt.Fprintf(&b, "  %s: %.1fms (at %s)\n", rt.Label, rt.RTTMillis, rt.MeasuredAt.Format(time.RFC3339))
	}
	return b.String()
}
