// Package api provides the HTTP surface of the relay server.
//
// Endpoints:
//
// Relay (WebSocket upgrade required, 400 otherwise):
//   - /robot, /receive - robot endpoint
//   - /oculus, /send - controller endpoint
//   - /robot/ping, /oculus/ping - latency bridge endpoints
//
// Read-only API:
//   - GET /health - plain "Healthy", polled by drive clients before dialing
//   - GET /api/status - slot occupancy, running loops and latest RTTs
//   - GET /metrics - Prometheus exposition
//
// Any other path answers 404 with a JSON error body:
//
//	{"error": "not found"}
//
// Usage:
//
//	srv := api.NewServer(hub, collector, logger)
//	http.ListenAndServe(":5000", srv)
package api
