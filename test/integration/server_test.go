// Package integration runs the gateway end to end: real WebSocket
// connections against the HTTP server, the dispatcher and the memory store.
package integration

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/Tyrowin/chatgateway/test/testhelpers"
)

// TestHealthEndpointIntegration verifies that the health endpoint reports the
// registry counts as JSON.
func TestHealthEndpointIntegration(t *testing.T) {
	gw := testhelpers.StartGateway(t)
	gw.Dial(t, "tok-alice")
	gw.Dial(t, "tok-alice")
	gw.Dial(t, "tok-bob")

	testhelpers.WaitFor(t, "three registered connections", func() bool {
		return gw.Registry.Stats().Connections == 3
	})

	for _, path := range []string{"/", "/health"} {
		resp := testhelpers.MakeRequest(t, http.MethodGet, gw.URL+path)
		testhelpers.AssertStatusCode(t, resp, http.StatusOK)
		testhelpers.AssertContentType(t, resp, "application/json")

		var body struct {
			Status      string `json:"status"`
			Connections int    `json:"connections"`
			Users       int    `json:"users"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("Failed to decode health response: %v", err)
		}
		_ = resp.Body.Close()

		if body.Status != "ok" || body.Connections != 3 || body.Users != 2 {
			t.Errorf("Unexpected health response for %s: %+v", path, body)
		}
	}
}

// TestWebSocketEndpointRejectsPlainRequests verifies the method and upgrade
// checks of the WebSocket endpoint.
func TestWebSocketEndpointRejectsPlainRequests(t *testing.T) {
	gw := testhelpers.StartGateway(t)

	tests := []struct {
		method string
		want   int
	}{
		{http.MethodPost, http.StatusMethodNotAllowed},
		{http.MethodPut, http.StatusMethodNotAllowed},
		{http.MethodGet, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			resp := testhelpers.MakeRequest(t, tt.method, gw.URL+"/ws")
			defer func() { _ = resp.Body.Close() }()
			testhelpers.AssertStatusCode(t, resp, tt.want)
		})
	}
}

// TestUnknownPathIsNotFound verifies that only the root and /health serve the
// health check.
func TestUnknownPathIsNotFound(t *testing.T) {
	gw := testhelpers.StartGateway(t)

	resp := testhelpers.MakeRequest(t, http.MethodGet, gw.URL+"/nope")
	defer func() { _ = resp.Body.Close() }()
	testhelpers.AssertStatusCode(t, resp, http.StatusNotFound)
}
