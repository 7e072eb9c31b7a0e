package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/wricardo/teleop-relay/transport/websocket"
)

func TestNewClient(t *testing.T) {
	client := NewClient("http://localhost:5000/")

	if client == nil {
		t.Fatal("Expected client to be created")
	}
	if client.baseURL != "http://localhost:5000" {
		t.Errorf("Expected trailing slash to be trimmed, got %s", client.baseURL)
	}
	if client.httpClient == nil {
		t.Error("Expected HTTP client to be initialized")
	}
	if client.GetMCPServer() == nil {
		t.Error("Expected MCP server to be initialized")
	}
}

func statusServer(t *testing.T, st websocket.Status) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" || r.URL.Path != "/api/status" {
			t.Errorf("Expected GET /api/status, got %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(st)
	}))
	t.Cleanup(server.Close)
	return server
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil {
		t.Fatal("Expected result, got nil")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatal("Expected text content in result")
	}
	return text.Text
}

func TestClient_hubStatus(t *testing.T) {
	since := time.Now().Add(-time.Minute)
	server := statusServer(t, websocket.Status{
		Slots: []websocket.SlotStatus{
			{Role: "robot", Bound: true, PeerID: "3f9c", RemoteAddr: "10.0.0.7:51000", Since: &since},
			{Role: "controller"},
		},
		Tasks:      1,
		RoundTrips: []websocket.RoundTrip{},
	})

	client := NewClient(server.URL)
	result, err := client.handleHubStatus(context.Background(), mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: "hub_status"},
	})
	if err != nil {
		t.Fatalf("hub_status failed: %v", err)
	}

	text := resultText(t, result)
	for _, want := range []string{
		"Relay loops running: 1",
		"robot",
		"peer=3f9c",
		"remote=10.0.0.7:51000",
		"controller",
		"disconnected",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in output, got: %s", want, text)
		}
	}
}

func TestClient_roundTripTimes(t *testing.T) {
	server := statusServer(t, websocket.Status{
		RoundTrips: []websocket.RoundTrip{
			{Label: "robot-ping → oculus-ping", RTTMillis: 42.5, MeasuredAt: time.Now()},
		},
	})

	client := NewClient(server.URL)
	result, err := client.handleRoundTripTimes(context.Background(), mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: "round_trip_times"},
	})
	if err != nil {
		t.Fatalf("round_trip_times failed: %v", err)
	}

	text := resultText(t, result)
	if !strings.Contains(text, "robot-ping → oculus-ping: 42.5ms") {
		t.Errorf("Expected RTT line in output, got: %s", text)
	}
}

func TestClient_roundTripTimesEmpty(t *testing.T) {
	server := statusServer(t, websocket.Status{})

	client := NewClient(server.URL)
	result, err := client.handleRoundTripTimes(context.Background(), mcp.CallToolRequest{})
	if err != nil {
		t.Fatalf("round_trip_times failed: %v", err)
	}

	if text := resultText(t, result); !strings.Contains(text, "No round trips measured yet") {
		t.Errorf("Unexpected output: %s", text)
	}
}

func TestClient_apiCall_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Internal Server Error"))
	}))
	defer server.Close()

	client := NewClient(server.URL)

	err := client.apiCall(context.Background(), "GET", "/api/status", nil)
	if err == nil {
		t.Fatal("Expected error for HTTP 500 response")
	}
	if !strings.Contains(err.Error(), "API error") {
		t.Errorf("Expected 'API error' in error message, got: %v", err)
	}
}

func TestClient_apiCall_ErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"not found"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)

	err := client.apiCall(context.Background(), "GET", "/api/status", nil)
	if err == nil || err.Error() != "not found" {
		t.Errorf("Expected 'not found' error, got: %v", err)
	}
}

func TestClient_toolReportsUnreachableServer(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewClient(url)
	result, err := client.handleHubStatus(context.Background(), mcp.CallToolRequest{})
	if err != nil {
		t.Fatalf("Handler must report failures in the result, got error: %v", err)
	}
	if !result.IsError {
		t.Error("Expected an error result")
	}
}
