// Package testhelpers provides common utilities for the gateway's end-to-end tests.
//
// StartGateway runs the full connection stack over httptest with the memory
// store, and Conn wraps a client connection with helpers that read frames
// one at a time even when the server batches several into one message.
package testhelpers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/neilotoole/slogt"

	"github.com/Tyrowin/chatgateway/internal/config"
	"github.com/Tyrowin/chatgateway/internal/dispatch"
	"github.com/Tyrowin/chatgateway/internal/hub"
	"github.com/Tyrowin/chatgateway/internal/identity"
	"github.com/Tyrowin/chatgateway/internal/presence"
	"github.com/Tyrowin/chatgateway/internal/protocol"
	"github.com/Tyrowin/chatgateway/internal/registry"
	"github.com/Tyrowin/chatgateway/internal/sanitize"
	"github.com/Tyrowin/chatgateway/internal/server"
	"github.com/Tyrowin/chatgateway/internal/store/memory"
)

// Origin is the browser origin every helper connection presents.
const Origin = "http://localhost:8080"

// ReadTimeout bounds every wait for a frame.
const ReadTimeout = 2 * time.Second

// Users seeded into every gateway. The token of each is "tok-" + id.
var Users = []string{"alice", "bob", "carol"}

// Channel is the seeded channel; alice and bob are members, carol is not.
const Channel = "general"

// Gateway is a running gateway backed by the memory store.
type Gateway struct {
	URL      string
	WSURL    string
	Config   config.Config
	Store    *memory.Store
	Registry *registry.Registry
	Server   *server.Server
	HTTP     *httptest.Server

	shutdownOnce sync.Once
}

// StartGateway starts a gateway and registers its shutdown with t.Cleanup.
// mutate may adjust the configuration before the server is built.
func StartGateway(t *testing.T, mutate ...func(*config.Config)) *Gateway {
	t.Helper()

	cfg := config.Default()
	cfg.Store = config.StoreMemory
	cfg.AllowedOrigins = []string{Origin}
	cfg.HandshakeTimeout = time.Second
	for _, fn := range mutate {
		fn(&cfg)
	}
	cfg = cfg.Sanitize()

	log := slogt.New(t)
	st := memory.New()
	for _, u := range Users {
		st.AddSession("tok-"+u, identity.User{ID: u, DisplayName: strings.ToUpper(u[:1]) + u[1:]})
	}
	st.AddMember(Channel, "alice")
	st.AddMember(Channel, "bob")

	reg := registry.New()
	h := hub.New(reg, log)
	d := dispatch.New(context.Background(), dispatch.Deps{
		Registry:   reg,
		Router:     h,
		Presence:   presence.New(h, reg, st, log),
		Identities: st,
		Messages:   st,
		Sanitizer:  sanitize.New(),
		Logger:     log,
		OpTimeout:  cfg.StoreTimeout,
	})
	srv := server.New(cfg, server.Deps{Registry: reg, Hub: h, Dispatcher: d, Logger: log})

	ts := httptest.NewServer(srv.Handler())
	g := &Gateway{
		URL:      ts.URL,
		WSURL:    "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws",
		Config:   cfg,
		Store:    st,
		Registry: reg,
		Server:   srv,
		HTTP:     ts,
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = g.Shutdown(ctx)
	})
	return g
}

// Shutdown stops the gateway. It is safe to call more than once.
func (g *Gateway) Shutdown(ctx context.Context) error {
	var err error
	g.shutdownOnce.Do(func() {
		err = g.Server.Shutdown(ctx)
		g.HTTP.Close()
	})
	return err
}

// Conn is a test client connection. A background reader splits batched
// messages into frames so that timeouts never break the connection.
type Conn struct {
	t      *testing.T
	ws     *websocket.Conn
	frames chan protocol.Frame
	done   chan struct{}
	err    error
}

func newConn(t *testing.T, ws *websocket.Conn) *Conn {
	c := &Conn{
		t:      t,
		ws:     ws,
		frames: make(chan protocol.Frame, 1024),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	t.Cleanup(func() { _ = ws.Close() })
	return c
}

func (c *Conn) readLoop() {
	defer close(c.done)
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			c.err = err
			return
		}
		for _, line := range bytes.Split(raw, []byte{'\n'}) {
			var f protocol.Frame
			if err := json.Unmarshal(line, &f); err != nil {
				c.err = err
				return
			}
			c.frames <- f
		}
	}
}

// Dial opens a connection that authenticates with token in the query string.
// An empty token opens an unauthenticated connection.
func (g *Gateway) Dial(t *testing.T, token string) *Conn {
	t.Helper()
	url := g.WSURL
	if token != "" {
		url += "?token=" + token
	}
	ws, resp, err := DialWebSocket(url, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("Failed to connect with token %q (status %d): %v", token, status, err)
	}
	return newConn(t, ws)
}

// Wrap adopts a connection dialed with DialWebSocket.
func Wrap(t *testing.T, ws *websocket.Conn) *Conn {
	return newConn(t, ws)
}

// DialWebSocket dials url with the helper origin plus header. The response
// body, if any, is closed.
func DialWebSocket(url string, header http.Header) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	h := http.Header{}
	h.Set("Origin", Origin)
	for k, vs := range header {
		h[k] = vs
	}
	conn, resp, err := dialer.Dial(url, h)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// WS returns the underlying connection.
func (c *Conn) WS() *websocket.Conn {
	return c.ws
}

// Send writes one frame.
func (c *Conn) Send(event string, data any) {
	c.t.Helper()
	raw, err := protocol.EncodeFrame(event, data)
	if err != nil {
		c.t.Fatalf("Failed to encode %s: %v", event, err)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, raw); err != nil {
		c.t.Fatalf("Failed to send %s: %v", event, err)
	}
}

// Next returns the next frame, waiting at most timeout. Once the connection
// is closed it returns the read error, a *websocket.CloseError when the
// server sent a close frame.
func (c *Conn) Next(timeout time.Duration) (protocol.Frame, error) {
	select {
	case f := <-c.frames:
		return f, nil
	default:
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case f := <-c.frames:
		return f, nil
	case <-c.done:
		select {
		case f := <-c.frames:
			return f, nil
		default:
			return protocol.Frame{}, c.err
		}
	case <-timer.C:
		return protocol.Frame{}, errTimeout
	}
}

// Expect skips frames until one named event arrives and returns its payload.
func (c *Conn) Expect(event string) json.RawMessage {
	c.t.Helper()
	deadline := time.Now().Add(ReadTimeout)
	for {
		f, err := c.Next(time.Until(deadline))
		if err != nil {
			c.t.Fatalf("Waiting for %s: %v", event, err)
		}
		if f.Event == event {
			return f.Data
		}
	}
}

// ExpectInto is Expect decoding the payload into v.
func (c *Conn) ExpectInto(event string, v any) {
	c.t.Helper()
	if err := json.Unmarshal(c.Expect(event), v); err != nil {
		c.t.Fatalf("Decoding %s: %v", event, err)
	}
}

// ExpectNone fails if a frame named event arrives within wait.
func (c *Conn) ExpectNone(event string, wait time.Duration) {
	c.t.Helper()
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		f, err := c.Next(time.Until(deadline))
		if err != nil {
			if isTimeout(err) {
				return
			}
			c.t.Fatalf("Reading while expecting no %s: %v", event, err)
		}
		if f.Event == event {
			c.t.Fatalf("Unexpected %s: %s", event, f.Data)
		}
	}
}

// Sync sends a presence query for the connection's own user and waits for
// the answer. Frames the server queued for this connection before the query
// are read before it returns.
func (c *Conn) Sync(userID string) {
	c.t.Helper()
	c.Send(protocol.EventPresenceGet, map[string]any{"user_ids": []string{userID}})
	c.Expect(protocol.EventPresenceList)
}

// ExpectClosed waits for the server to close the connection and returns the
// close code.
func (c *Conn) ExpectClosed() int {
	c.t.Helper()
	deadline := time.Now().Add(ReadTimeout)
	for {
		_, err := c.Next(time.Until(deadline))
		if err == nil {
			continue
		}
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			return ce.Code
		}
		if isTimeout(err) {
			c.t.Fatal("Connection was not closed")
		}
		return websocket.CloseAbnormalClosure
	}
}

// Close sends a normal close frame and closes the connection.
func (c *Conn) Close() {
	_ = c.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = c.ws.Close()
}

var errTimeout = errors.New("timed out waiting for a frame")

func isTimeout(err error) bool {
	return errors.Is(err, errTimeout)
}

// WaitFor polls cond until it holds or ReadTimeout passes.
func WaitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(ReadTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}

	return resp
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if contentType != expected {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}
