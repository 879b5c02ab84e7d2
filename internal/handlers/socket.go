// Package handlers owns the WebSocket endpoint: handshake admission,
// the per-socket read/write pumps, and dispatch of client messages into
// the hub and the analysis responder.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"chess-gateway/internal/analysis"
	"chess-gateway/internal/auth"
	"chess-gateway/internal/hub"
	"chess-gateway/internal/ipc"
	"chess-gateway/internal/middleware"
	"chess-gateway/internal/models"
)

const (
	// maxMessageSize closes the socket with 1009 when exceeded.
	maxMessageSize = 1024
	// largeMessageSize is where messages get logged but still processed.
	largeMessageSize = 512

	// idleTimeout closes silent sockets with 1001.
	idleTimeout = 15 * time.Second

	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second

	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The session cookie is the trust anchor, not the origin.
		return true
	},
}

var socketIDs atomic.Uint64

var (
	errSocketClosed   = errors.New("socket closed")
	errSendBufferFull = errors.New("send buffer full")
)

// SocketHandler upgrades and services client connections.
type SocketHandler struct {
	log      *zap.Logger
	hub      *hub.Hub
	limiter  *middleware.RateLimiter
	sessions *auth.Worker
	maxConns int
}

func NewSocketHandler(log *zap.Logger, h *hub.Hub, limiter *middleware.RateLimiter, sessions *auth.Worker, maxConns int) *SocketHandler {
	return &SocketHandler{
		log:      log,
		hub:      h,
		limiter:  limiter,
		sessions: sessions,
		maxConns: maxConns,
	}
}

type client struct {
	id   models.SocketID
	conn *websocket.Conn

	send chan []byte
	done chan struct{}

	closeOnce sync.Once
	doneOnce  sync.Once
}

func (c *client) ID() models.SocketID { return c.id }

// Send enqueues without blocking. A full buffer means the peer is backed
// up; the message is dropped and the caller logs it.
func (c *client) Send(msg []byte) error {
	select {
	case <-c.done:
		return errSocketClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return errSendBufferFull
	}
}

// Close sends a close frame with the given code and tears the socket down.
// Safe to call from any goroutine, any number of times.
func (c *client) Close(code int) {
	c.closeOnce.Do(func() {
		deadline := time.Now().Add(writeWait)
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, ""), deadline)
		c.conn.Close()
	})
}

func (c *client) finish() {
	c.doneOnce.Do(func() { close(c.done) })
}

// ServeWS is the catch-all WebSocket endpoint.
func (h *SocketHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	if int(h.hub.Connections()) >= h.maxConns {
		http.Error(w, "connection limit reached", http.StatusServiceUnavailable)
		return
	}

	flag, hasFlag := h.parseFlag(r)
	sid, hasCookie := auth.SessionID(r)
	ip := middleware.GetClientIP(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Info("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		id:   models.SocketID(socketIDs.Inc()),
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}

	h.hub.Register(c, flag, hasFlag, hasCookie)
	if hasCookie {
		h.sessions.Enqueue(auth.Lookup{Socket: c.id, SessionID: sid})
	}

	go c.writePump()
	go h.readPump(c, ip)
}

func (h *SocketHandler) parseFlag(r *http.Request) (models.Flag, bool) {
	raw := r.URL.Query().Get("flag")
	if raw == "" {
		return 0, false
	}
	flag, err := models.ParseFlag(raw)
	if err != nil {
		h.log.Info("ignoring unknown flag", zap.String("flag", raw))
		return 0, false
	}
	return flag, true
}

func (h *SocketHandler) readPump(c *client, ip string) {
	idle := time.AfterFunc(idleTimeout, func() {
		c.Close(websocket.CloseGoingAway)
	})

	defer func() {
		idle.Stop()
		c.finish()
		h.hub.Unregister(c.id)
		c.Close(websocket.CloseNormalClosure)
	}()

	// Past the limit, gorilla closes with 1009 on its own.
	c.conn.SetReadLimit(maxMessageSize)

	rateLimitLogged := false

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived) {
				h.log.Debug("read failed", zap.Uint64("socket", uint64(c.id)), zap.Error(err))
			}
			return
		}

		if !h.limiter.Allow(ip) {
			if !rateLimitLogged {
				h.log.Info("rate limiting socket",
					zap.Uint64("socket", uint64(c.id)), zap.String("ip", ip))
				rateLimitLogged = true
			}
			continue
		}

		idle.Reset(idleTimeout)

		if string(data) == ipc.PingShortcut {
			h.send(c, []byte(ipc.Pong))
			continue
		}

		if len(data) > largeMessageSize {
			h.log.Info("large client message",
				zap.Uint64("socket", uint64(c.id)), zap.Int("bytes", len(data)))
		}

		msg, err := ipc.ParseClientMsg(data)
		if err != nil {
			h.log.Info("protocol violation",
				zap.Uint64("socket", uint64(c.id)), zap.Error(err))
			c.Close(websocket.CloseProtocolError)
			return
		}

		h.dispatch(c, msg)
	}
}

func (h *SocketHandler) dispatch(c *client, msg ipc.ClientMsg) {
	switch msg.T {
	case ipc.TagPing:
		h.send(c, []byte(ipc.Pong))
		if msg.L != nil {
			h.hub.Lag(c.id, *msg.L)
		}

	case ipc.TagNotified:
		h.hub.Notified(c.id)

	case ipc.TagFollowingOnlines:
		h.hub.FollowingOnlines(c.id)

	case ipc.TagStartWatching:
		h.hub.StartWatching(c.id, h.parseGameIDs(c, msg.D))

	case ipc.TagMoveLatency:
		var on bool
		if err := unmarshal(msg.D, &on); err != nil {
			h.log.Info("bad moveLat payload", zap.Uint64("socket", uint64(c.id)), zap.Error(err))
			return
		}
		h.hub.SetMlatWatch(c.id, on)

	case ipc.TagOpening:
		var req analysis.GetOpening
		if err := unmarshal(msg.D, &req); err != nil {
			return
		}
		if resp := req.Respond(); resp != nil {
			h.send(c, ipc.Envelope("opening", resp))
		}

	case ipc.TagAnaDests:
		var req analysis.GetDests
		if err := unmarshal(msg.D, &req); err != nil {
			h.send(c, ipc.Envelope("destsFailure", nil))
			return
		}
		resp, err := req.Respond()
		if err != nil {
			h.send(c, ipc.Envelope("destsFailure", nil))
			return
		}
		h.send(c, ipc.Envelope("dests", resp))

	case ipc.TagAnaMove:
		var req analysis.PlayMove
		if err := unmarshal(msg.D, &req); err != nil {
			h.send(c, ipc.Envelope("stepFailure", nil))
			return
		}
		h.step(c, func() (*analysis.Node, error) { return req.Respond() })

	case ipc.TagAnaDrop:
		var req analysis.PlayDrop
		if err := unmarshal(msg.D, &req); err != nil {
			h.send(c, ipc.Envelope("stepFailure", nil))
			return
		}
		h.step(c, func() (*analysis.Node, error) { return req.Respond() })

	case ipc.TagEvalGet, ipc.TagEvalPut:
		// Cloud eval belongs to a separate subsystem; recognised, ignored.
	}
}

func (h *SocketHandler) step(c *client, respond func() (*analysis.Node, error)) {
	resp, err := respond()
	if err != nil {
		h.send(c, ipc.Envelope("stepFailure", nil))
		return
	}
	h.send(c, ipc.Envelope("node", resp))
}

func (h *SocketHandler) parseGameIDs(c *client, raw []byte) []models.GameID {
	var list string
	if err := unmarshal(raw, &list); err != nil {
		h.log.Info("bad startWatching payload", zap.Uint64("socket", uint64(c.id)), zap.Error(err))
		return nil
	}
	var games []models.GameID
	for _, f := range strings.Fields(list) {
		g, err := models.ParseGameID(f)
		if err != nil {
			h.log.Info("skipping bad game id",
				zap.Uint64("socket", uint64(c.id)), zap.String("game", f))
			continue
		}
		games = append(games, g)
	}
	return games
}

func (h *SocketHandler) send(c *client, msg []byte) {
	if err := c.Send(msg); err != nil {
		h.log.Debug("send failed", zap.Uint64("socket", uint64(c.id)), zap.Error(err))
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

func unmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return errors.New("missing payload")
	}
	return json.Unmarshal(raw, v)
}
