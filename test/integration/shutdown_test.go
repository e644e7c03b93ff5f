package integration

import (
	"context"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/chatgateway/internal/store"
	"github.com/Tyrowin/chatgateway/test/testhelpers"
)

// TestGracefulShutdownWithClients verifies that shutdown closes every live
// connection, unregisters it and records the users as offline.
func TestGracefulShutdownWithClients(t *testing.T) {
	gw := testhelpers.StartGateway(t)

	clients := []*testhelpers.Conn{
		gw.Dial(t, "tok-alice"),
		gw.Dial(t, "tok-alice"),
		gw.Dial(t, "tok-bob"),
		gw.Dial(t, "tok-carol"),
	}
	testhelpers.WaitFor(t, "clients to register", func() bool {
		return gw.Registry.Stats().Connections == len(clients)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := gw.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	for i, c := range clients {
		if code := c.ExpectClosed(); code != websocket.CloseNormalClosure && code != websocket.CloseAbnormalClosure {
			t.Errorf("Client %d: unexpected close code %d", i, code)
		}
	}

	if stats := gw.Registry.Stats(); stats.Connections != 0 || stats.Users != 0 {
		t.Errorf("Expected an empty registry after shutdown, got %+v", stats)
	}

	statuses, err := gw.Store.GetStatuses(ctx, []string{"alice", "bob", "carol"})
	if err != nil {
		t.Fatalf("GetStatuses failed: %v", err)
	}
	for user, status := range statuses {
		if status != store.StatusOffline {
			t.Errorf("Expected %s offline, got %q", user, status)
		}
	}
}

// TestShutdownRefusesNewConnections verifies that no connection is accepted
// once shutdown has started.
func TestShutdownRefusesNewConnections(t *testing.T) {
	gw := testhelpers.StartGateway(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := gw.Server.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	conn, _, err := testhelpers.DialWebSocket(gw.WSURL+"?token=tok-alice", nil)
	if err == nil {
		c := testhelpers.Wrap(t, conn)
		if code := c.ExpectClosed(); code != websocket.CloseGoingAway {
			t.Errorf("Expected close code %d, got %d", websocket.CloseGoingAway, code)
		}
	}
	testhelpers.WaitFor(t, "alice to stay offline", func() bool {
		return !gw.Registry.IsOnline("alice")
	})
}
