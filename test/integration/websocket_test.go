package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/chatgateway/internal/config"
	"github.com/Tyrowin/chatgateway/internal/protocol"
	"github.com/Tyrowin/chatgateway/test/testhelpers"
)

// TestHandshakeTokenSources verifies every place an upgrade request may carry
// its token.
func TestHandshakeTokenSources(t *testing.T) {
	gw := testhelpers.StartGateway(t)

	tests := []struct {
		name   string
		url    string
		header http.Header
	}{
		{name: "query", url: gw.WSURL + "?token=tok-alice"},
		{name: "bearer", url: gw.WSURL, header: http.Header{"Authorization": {"Bearer tok-alice"}}},
		{name: "cookie", url: gw.WSURL, header: http.Header{"Cookie": {"token=tok-alice"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws, _, err := testhelpers.DialWebSocket(tt.url, tt.header)
			if err != nil {
				t.Fatalf("Failed to connect: %v", err)
			}
			conn := testhelpers.Wrap(t, ws)
			conn.Send(protocol.EventPresenceGet, map[string]any{"user_ids": []string{"alice"}})

			var list protocol.PresenceList
			conn.ExpectInto(protocol.EventPresenceList, &list)
			if list["alice"] != "online" {
				t.Errorf("Expected alice online, got %q", list["alice"])
			}
			conn.Close()
		})
	}
}

// TestHandshakeRejectsInvalidToken verifies that a bad token is refused
// before the upgrade.
func TestHandshakeRejectsInvalidToken(t *testing.T) {
	gw := testhelpers.StartGateway(t)

	conn, resp, err := testhelpers.DialWebSocket(gw.WSURL+"?token=forged", nil)
	if err == nil {
		_ = conn.Close()
		t.Fatal("Expected the handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("Expected status %d, got %v", http.StatusUnauthorized, resp)
	}
	if n := gw.Registry.Stats().Connections; n != 0 {
		t.Errorf("Expected no registered connection, got %d", n)
	}
}

// TestAuthFrame verifies authentication through the first frame.
func TestAuthFrame(t *testing.T) {
	gw := testhelpers.StartGateway(t)
	bob := gw.Dial(t, "tok-bob")

	alice := gw.Dial(t, "")
	alice.Send(protocol.EventAuth, map[string]string{"token": "tok-alice"})

	var update protocol.PresenceUpdate
	bob.ExpectInto(protocol.EventPresenceUpdate, &update)
	if update.UserID != "alice" || update.Status != "online" {
		t.Errorf("Unexpected presence update: %+v", update)
	}

	alice.Send(protocol.EventChannelJoin, map[string]string{"channel_id": testhelpers.Channel})
	alice.Send(protocol.EventMessageSend, map[string]string{"channel_id": testhelpers.Channel, "content": "hi"})

	var msg protocol.MessageNew
	alice.ExpectInto(protocol.EventMessageNew, &msg)
	if msg.SenderID != "alice" || msg.Sender.DisplayName != "Alice" {
		t.Errorf("Unexpected message: %+v", msg)
	}
}

// TestUnauthenticatedConnectionIsClosed covers the frames that end an
// unauthenticated connection.
func TestUnauthenticatedConnectionIsClosed(t *testing.T) {
	gw := testhelpers.StartGateway(t)

	t.Run("event before auth", func(t *testing.T) {
		conn := gw.Dial(t, "")
		conn.Send(protocol.EventChannelJoin, map[string]string{"channel_id": testhelpers.Channel})
		if code := conn.ExpectClosed(); code != websocket.ClosePolicyViolation {
			t.Errorf("Expected close code %d, got %d", websocket.ClosePolicyViolation, code)
		}
	})

	t.Run("bad token in auth frame", func(t *testing.T) {
		conn := gw.Dial(t, "")
		conn.Send(protocol.EventAuth, map[string]string{"token": "forged"})
		if code := conn.ExpectClosed(); code != websocket.ClosePolicyViolation {
			t.Errorf("Expected close code %d, got %d", websocket.ClosePolicyViolation, code)
		}
	})

	t.Run("malformed frame", func(t *testing.T) {
		conn := gw.Dial(t, "")
		if err := conn.WS().WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
			t.Fatalf("Failed to send: %v", err)
		}
		if code := conn.ExpectClosed(); code != websocket.ClosePolicyViolation {
			t.Errorf("Expected close code %d, got %d", websocket.ClosePolicyViolation, code)
		}
	})

	testhelpers.WaitFor(t, "sessions to be released", func() bool {
		return gw.Registry.Stats().Connections == 0
	})
}

// TestHandshakeTimeout verifies that a connection that never authenticates
// is closed.
func TestHandshakeTimeout(t *testing.T) {
	gw := testhelpers.StartGateway(t, func(cfg *config.Config) {
		cfg.HandshakeTimeout = 100 * time.Millisecond
	})

	conn := gw.Dial(t, "")
	if code := conn.ExpectClosed(); code != websocket.ClosePolicyViolation {
		t.Errorf("Expected close code %d, got %d", websocket.ClosePolicyViolation, code)
	}
}

// TestAuthenticatedConnectionSurvivesHandshakeTimeout verifies that the
// handshake timer does not touch an authenticated connection.
func TestAuthenticatedConnectionSurvivesHandshakeTimeout(t *testing.T) {
	gw := testhelpers.StartGateway(t, func(cfg *config.Config) {
		cfg.HandshakeTimeout = 50 * time.Millisecond
	})

	conn := gw.Dial(t, "")
	conn.Send(protocol.EventAuth, map[string]string{"token": "tok-alice"})
	conn.Sync("alice")

	time.Sleep(150 * time.Millisecond)
	conn.Sync("alice")
}

// TestInvalidEventsAreSilent verifies that malformed and unknown events on an
// authenticated connection produce no response and leave it open.
func TestInvalidEventsAreSilent(t *testing.T) {
	gw := testhelpers.StartGateway(t)
	alice := gw.Dial(t, "tok-alice")

	alice.Send("does:not_exist", map[string]string{})
	alice.Send(protocol.EventMessageSend, map[string]string{"content": "no channel"})
	if err := alice.WS().WriteMessage(websocket.TextMessage, []byte("{broken")); err != nil {
		t.Fatalf("Failed to send: %v", err)
	}
	alice.Send(protocol.EventChannelJoin, map[string]string{"channel_id": testhelpers.Channel})
	alice.Send(protocol.EventMessageSend, map[string]string{"channel_id": testhelpers.Channel, "content": "still here"})

	var msg protocol.MessageNew
	alice.ExpectInto(protocol.EventMessageNew, &msg)
	if msg.Content != "still here" {
		t.Errorf("Expected the valid message, got %q", msg.Content)
	}
}
