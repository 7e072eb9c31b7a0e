// Package mcp exposes the relay's status API as Model Context Protocol tools.
//
// The client holds no state of its own: every tool call is a GET against the
// relay's REST API, rendered as text for the agent.
//
// MCP Tools:
//   - hub_status: endpoint occupancy, peer IDs and running relay loops
//   - round_trip_times: latest ping/pong RTT per ping bridge direction
//
// Transport Modes:
//   - Stdio: `relay mcp --server http://host:5000`
//   - HTTP: mounted at POST /mcp by the serve command
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:5000")
//	server.ServeStdio(client.GetMCPServer())
package mcp
