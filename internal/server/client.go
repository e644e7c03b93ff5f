package server

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/chatgateway/internal/config"
	"github.com/Tyrowin/chatgateway/internal/dispatch"
	"github.com/Tyrowin/chatgateway/internal/hub"
	"github.com/Tyrowin/chatgateway/internal/registry"
)

// Client is one WebSocket connection. Its read pump feeds inbound frames to
// the connection's session; its write pump drains the outbound queue that
// the hub fills through Enqueue.
type Client struct {
	id         registry.ConnectionID
	conn       *websocket.Conn
	session    *dispatch.Session
	addr       string
	cfg        config.Config
	log        *slog.Logger
	limiter    *rateLimiter
	disconnect func(registry.ConnectionID)

	send chan []byte
	done chan struct{}

	mu         sync.Mutex
	closed     bool
	closeFrame []byte
	authTimer  *time.Timer
}

var _ hub.Sink = (*Client)(nil)

func newClient(id registry.ConnectionID, conn *websocket.Conn, session *dispatch.Session, addr string, s *Server) *Client {
	if conn != nil {
		conn.SetReadLimit(s.cfg.MaxMessageSize)
	}
	return &Client{
		id:         id,
		conn:       conn,
		session:    session,
		addr:       addr,
		cfg:        s.cfg,
		log:        s.log.With(slog.String("conn", string(id))),
		limiter:    newRateLimiter(s.cfg.RateLimit),
		disconnect: s.dispatcher.Disconnect,
		send:       make(chan []byte, s.cfg.SendBuffer),
		done:       make(chan struct{}),
		closeFrame: websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	}
}

// Enqueue implements hub.Sink. It never blocks: a full queue is reported to
// the hub, which evicts the connection.
func (c *Client) Enqueue(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return hub.ErrConnectionClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return hub.ErrSendBufferFull
	}
}

// Close implements hub.Sink. The write pump sends a close frame and closes
// the socket.
func (c *Client) Close() {
	c.closeWith(websocket.CloseNormalClosure, "")
}

func (c *Client) closeWith(code int, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.closeFrame = websocket.FormatCloseMessage(code, text)
	if c.authTimer != nil {
		c.authTimer.Stop()
	}
	close(c.done)
}

// start launches both pumps on goroutines the hub waits for during shutdown.
// A connection that did not authenticate during the upgrade gets
// HandshakeTimeout to send its auth frame.
func (c *Client) start(h *hub.Hub) {
	if c.session.State() == dispatch.StateUnauthenticated {
		c.mu.Lock()
		c.authTimer = time.AfterFunc(c.cfg.HandshakeTimeout, c.expireHandshake)
		c.mu.Unlock()
	}
	h.Go(c.writePump)
	h.Go(c.readPump)
}

func (c *Client) expireHandshake() {
	if c.session.State() != dispatch.StateUnauthenticated {
		return
	}
	c.log.Info("authentication timed out", slog.String("addr", c.addr))
	c.closeWith(websocket.ClosePolicyViolation, "authentication required")
}

// setupReadConnection configures read deadlines and the pong handler.
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait)); err != nil {
		c.log.Warn("set read deadline", slog.Any("error", err))
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})
}

// logReadError logs why the read loop ended, at a level matching how
// surprising the cause is.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("frame exceeded maximum size", slog.Int64("limit", c.cfg.MaxMessageSize))
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		c.log.Debug("client disconnected", slog.String("addr", c.addr))
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Debug("connection closed", slog.String("addr", c.addr), slog.Any("error", err))
	default:
		c.log.Warn("websocket read error", slog.String("addr", c.addr), slog.Any("error", err))
	}
}

// checkRateLimit reports whether the next frame may be processed. Excess
// frames are dropped without closing the connection.
func (c *Client) checkRateLimit() bool {
	if c.limiter.allow() {
		return true
	}
	c.log.Debug("rate limit exceeded; dropping frame",
		slog.Int("burst", c.cfg.RateLimit.Burst),
		slog.Duration("refill", c.cfg.RateLimit.RefillInterval))
	return false
}

func (c *Client) readPump() {
	defer func() {
		c.disconnect(c.id)
		c.Close()
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		if !c.checkRateLimit() {
			continue
		}

		if err := c.session.Handle(raw); err != nil {
			c.log.Info("closing connection", slog.Any("error", err))
			if errors.Is(err, dispatch.ErrUnauthenticated) {
				c.closeWith(websocket.ClosePolicyViolation, "authentication failed")
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case frame := <-c.send:
		return c.writeFrames(frame)
	case <-ticker.C:
		return c.writeControl(websocket.PingMessage, nil)
	case <-c.done:
		c.mu.Lock()
		frame := c.closeFrame
		c.mu.Unlock()
		c.writeControl(websocket.CloseMessage, frame)
		return false
	}
}

func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Warn("close connection", slog.Any("error", err))
	}
}

// writeFrames writes frame and whatever else is already queued as one text
// message, one frame per line.
func (c *Client) writeFrames(frame []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
		c.log.Warn("set write deadline", slog.Any("error", err))
		return false
	}
	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		c.logWriteError(err)
		return false
	}
	if _, err := w.Write(frame); err != nil {
		c.logWriteError(err)
		return false
	}

	n := len(c.send)
	for range n {
		if _, err := w.Write(newline); err != nil {
			c.logWriteError(err)
			return false
		}
		if _, err := w.Write(<-c.send); err != nil {
			c.logWriteError(err)
			return false
		}
	}

	if err := w.Close(); err != nil {
		c.logWriteError(err)
		return false
	}
	return true
}

func (c *Client) writeControl(messageType int, data []byte) bool {
	err := c.conn.WriteControl(messageType, data, time.Now().Add(c.cfg.WriteWait))
	if err != nil {
		c.logWriteError(err)
		return false
	}
	return true
}

func (c *Client) logWriteError(err error) {
	if isExpectedCloseError(err) {
		return
	}
	c.log.Warn("websocket write error", slog.String("addr", c.addr), slog.Any("error", err))
}

var newline = []byte{'\n'}
