// Package hub owns the routing tables that connect client sockets to the
// backend: who is online, who watches which game, who subscribed to a flag
// channel, and who wants move-latency updates. All socket lifecycle events
// and all backend records flow through here.
package hub

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"chess-gateway/internal/ipc"
	"chess-gateway/internal/models"
)

// Sender delivers messages to one client socket. Send must not block; a
// backed-up peer fails the send instead.
type Sender interface {
	ID() models.SocketID
	Send(msg []byte) error
	Close(code int)
}

// Publisher queues records for the backend channel.
type Publisher interface {
	Push(msg string)
}

// AuthState tracks where a socket is in the session lookup.
type AuthState int

const (
	AuthRequested AuthState = iota
	AuthAuthenticated
	AuthAnonymous
)

const (
	// mlatUnknown is the sentinel before the first backend heartbeat.
	mlatUnknown = ^uint32(0)

	watchedGamesCap = 5000

	// watchingWarnAt is where a single socket's game list gets suspicious.
	watchingWarnAt = 20
)

type gameState struct {
	fen     string
	lastUCI string
}

type socketState struct {
	sender  Sender
	auth    AuthState
	uid     models.UserID
	flag    models.Flag
	hasFlag bool

	watching map[models.GameID]struct{}

	pendingNotified bool
	pendingFriends  bool
}

// Hub is safe for concurrent use. byID and byUser share one lock because
// auth transitions touch both and must be atomic; every other table has its
// own lock and is never acquired while another table lock is held.
type Hub struct {
	log *zap.Logger
	pub Publisher

	mu     sync.RWMutex
	byID   map[models.SocketID]*socketState
	byUser map[models.UserID]map[models.SocketID]Sender

	gameMu sync.RWMutex
	byGame map[models.GameID]map[models.SocketID]Sender

	flagMu sync.RWMutex
	byFlag [models.FlagCount]map[models.SocketID]Sender

	mlatMu       sync.RWMutex
	watchingMlat map[models.SocketID]Sender

	cacheMu sync.Mutex
	watched *lru.Cache[models.GameID, gameState]

	mlat  *atomic.Uint32
	conns *atomic.Int32

	onTick func()

	connGauge    prometheus.Gauge
	deliveries   prometheus.Counter
	sendFailures prometheus.Counter
}

// New builds an empty hub. Metrics are registered on reg; pass nil to skip
// registration (tests).
func New(log *zap.Logger, pub Publisher, reg prometheus.Registerer) *Hub {
	h := &Hub{
		log:          log,
		pub:          pub,
		byID:         make(map[models.SocketID]*socketState),
		byUser:       make(map[models.UserID]map[models.SocketID]Sender),
		byGame:       make(map[models.GameID]map[models.SocketID]Sender),
		watchingMlat: make(map[models.SocketID]Sender),
		mlat:         atomic.NewUint32(mlatUnknown),
		conns:        atomic.NewInt32(0),
		connGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_connections",
			Help: "Currently open WebSocket connections.",
		}),
		deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_deliveries_total",
			Help: "Messages delivered to client sockets.",
		}),
		sendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_send_failures_total",
			Help: "Client sends dropped because the socket was backed up.",
		}),
	}
	for f := range h.byFlag {
		h.byFlag[f] = make(map[models.SocketID]Sender)
	}
	h.watched, _ = lru.New[models.GameID, gameState](watchedGamesCap)
	if reg != nil {
		reg.MustRegister(h.connGauge, h.deliveries, h.sendFailures)
	}
	return h
}

// SetOnTick installs a hook invoked on every backend mlat heartbeat. Used to
// piggy-back rate limiter garbage collection.
func (h *Hub) SetOnTick(f func()) {
	h.onTick = f
}

// Register adds a freshly upgraded socket. awaitingAuth marks sockets whose
// cookie lookup is in flight; cookieless sockets start out Anonymous.
func (h *Hub) Register(s Sender, flag models.Flag, hasFlag, awaitingAuth bool) {
	h.conns.Inc()
	h.connGauge.Inc()

	st := &socketState{
		sender:   s,
		auth:     AuthAnonymous,
		flag:     flag,
		hasFlag:  hasFlag,
		watching: make(map[models.GameID]struct{}),
	}
	if awaitingAuth {
		st.auth = AuthRequested
	}

	h.mu.Lock()
	if _, dup := h.byID[s.ID()]; dup {
		h.mu.Unlock()
		h.log.Fatal("socket id registered twice", zap.Uint64("socket", uint64(s.ID())))
	}
	h.byID[s.ID()] = st
	h.mu.Unlock()

	if hasFlag {
		h.flagMu.Lock()
		h.byFlag[flag][s.ID()] = s
		h.flagMu.Unlock()
	}
}

// Authenticate resolves a pending session lookup. ok=false means the lookup
// missed and the socket settles as Anonymous. A socket that already closed is
// silently ignored.
func (h *Hub) Authenticate(id models.SocketID, uid models.UserID, ok bool) {
	h.mu.Lock()
	st, present := h.byID[id]
	if !present {
		h.mu.Unlock()
		return
	}

	notified, friends := st.pendingNotified, st.pendingFriends
	st.pendingNotified, st.pendingFriends = false, false

	if !ok {
		st.auth = AuthAnonymous
		h.mu.Unlock()
		if notified || friends {
			h.log.Info("dropping deferred intents for anonymous socket",
				zap.Uint64("socket", uint64(id)))
		}
		return
	}

	st.auth = AuthAuthenticated
	st.uid = uid
	set := h.byUser[uid]
	first := len(set) == 0
	if set == nil {
		set = make(map[models.SocketID]Sender)
		h.byUser[uid] = set
	}
	set[id] = st.sender
	h.mu.Unlock()

	if first {
		h.pub.Push(ipc.Connect{User: uid}.Encode())
	}
	if notified {
		h.pub.Push(ipc.Notified{User: uid}.Encode())
	}
	if friends {
		h.pub.Push(ipc.Friends{User: uid}.Encode())
	}
}

// Notified handles the client's "notified" intent: publish for authenticated
// sockets, defer while the lookup is in flight, drop for anonymous ones.
func (h *Hub) Notified(id models.SocketID) {
	h.intent(id,
		func(st *socketState) { st.pendingNotified = true },
		func(uid models.UserID) string { return ipc.Notified{User: uid}.Encode() })
}

// FollowingOnlines handles the "following_onlines" intent the same way.
func (h *Hub) FollowingOnlines(id models.SocketID) {
	h.intent(id,
		func(st *socketState) { st.pendingFriends = true },
		func(uid models.UserID) string { return ipc.Friends{User: uid}.Encode() })
}

func (h *Hub) intent(id models.SocketID, hold func(*socketState), encode func(models.UserID) string) {
	h.mu.Lock()
	st, present := h.byID[id]
	if !present {
		h.mu.Unlock()
		return
	}
	switch st.auth {
	case AuthRequested:
		hold(st)
		h.mu.Unlock()
	case AuthAuthenticated:
		uid := st.uid
		h.mu.Unlock()
		h.pub.Push(encode(uid))
	default:
		h.mu.Unlock()
	}
}

// Lag publishes a client-reported latency. Anonymous sockets are dropped.
func (h *Hub) Lag(id models.SocketID, millis uint32) {
	h.mu.RLock()
	st, present := h.byID[id]
	var uid models.UserID
	authed := present && st.auth == AuthAuthenticated
	if authed {
		uid = st.uid
	}
	h.mu.RUnlock()

	if authed {
		h.pub.Push(ipc.Lag{User: uid, Millis: millis}.Encode())
	}
}

// StartWatching subscribes the socket to the given games. On a fresh
// subscription a cached position is replayed immediately; watch/<g> is
// published only when this socket is the first watcher and the game was not
// already in the position cache. Re-watching a game is a no-op.
func (h *Hub) StartWatching(id models.SocketID, games []models.GameID) {
	for _, g := range games {
		h.mu.Lock()
		st, present := h.byID[id]
		if !present {
			h.mu.Unlock()
			return
		}
		_, already := st.watching[g]
		st.watching[g] = struct{}{}
		n := len(st.watching)
		sender := st.sender
		h.mu.Unlock()

		if !already {
			h.cacheMu.Lock()
			gs, cached := h.watched.Peek(g)
			h.cacheMu.Unlock()
			if cached {
				h.send(sender, ipc.FenMsg(g, gs.fen, gs.lastUCI))
			}

			h.gameMu.Lock()
			set := h.byGame[g]
			first := len(set) == 0
			if set == nil {
				set = make(map[models.SocketID]Sender)
				h.byGame[g] = set
			}
			set[id] = sender
			h.gameMu.Unlock()

			if first && !cached {
				h.pub.Push(ipc.Watch{Game: g}.Encode())
			}
		}

		if n > watchingWarnAt {
			h.log.Warn("socket watching many games",
				zap.Uint64("socket", uint64(id)), zap.Int("games", n))
		}
	}
}

// SetMlatWatch toggles move-latency updates for a socket. A fresh
// subscription is answered with the current snapshot right away, the unknown
// sentinel included; re-subscribing sends nothing.
func (h *Hub) SetMlatWatch(id models.SocketID, on bool) {
	if !on {
		h.mlatMu.Lock()
		delete(h.watchingMlat, id)
		h.mlatMu.Unlock()
		return
	}

	h.mu.RLock()
	st, present := h.byID[id]
	var sender Sender
	if present {
		sender = st.sender
	}
	h.mu.RUnlock()
	if sender == nil {
		return
	}

	h.mlatMu.Lock()
	_, already := h.watchingMlat[id]
	h.watchingMlat[id] = sender
	h.mlatMu.Unlock()

	if !already {
		h.send(sender, ipc.MlatMsg(h.mlat.Load()))
	}
}

// Mlat returns the last heartbeat value and whether one has been seen.
func (h *Hub) Mlat() (uint32, bool) {
	v := h.mlat.Load()
	return v, v != mlatUnknown
}

// Connections returns the current connection count, clamped at zero.
func (h *Hub) Connections() uint32 {
	n := h.conns.Load()
	if n < 0 {
		return 0
	}
	return uint32(n)
}

// Received dispatches one backend record into the routing tables. Called
// synchronously from the ingress worker, which preserves per-client order.
func (h *Hub) Received(msg ipc.SiteOut) {
	switch m := msg.(type) {
	case ipc.MoveLatency:
		h.mlat.Store(m.Millis)
		payload := ipc.MlatMsg(m.Millis)
		h.mlatMu.RLock()
		for _, s := range h.watchingMlat {
			h.send(s, payload)
		}
		h.mlatMu.RUnlock()
		h.pub.Push(ipc.Connections{Count: h.Connections()}.Encode())
		if h.onTick != nil {
			h.onTick()
		}

	case ipc.Move:
		h.cacheMu.Lock()
		h.watched.Add(m.Game, gameState{fen: m.Fen, lastUCI: m.LastUCI})
		h.cacheMu.Unlock()

		payload := ipc.FenMsg(m.Game, m.Fen, m.LastUCI)
		h.gameMu.RLock()
		for _, s := range h.byGame[m.Game] {
			h.send(s, payload)
		}
		h.gameMu.RUnlock()

	case ipc.TellUsers:
		h.mu.RLock()
		for _, uid := range m.Users {
			for _, s := range h.byUser[uid] {
				h.send(s, m.Payload)
			}
		}
		h.mu.RUnlock()

	case ipc.TellAll:
		h.mu.RLock()
		for _, st := range h.byID {
			h.send(st.sender, m.Payload)
		}
		h.mu.RUnlock()

	case ipc.TellFlag:
		h.flagMu.RLock()
		for _, s := range h.byFlag[m.Flag] {
			h.send(s, m.Payload)
		}
		h.flagMu.RUnlock()
	}
}

// Unregister tears down every routing entry for a closed socket. A socket
// missing from byID means the tables are corrupt, and the process aborts.
func (h *Hub) Unregister(id models.SocketID) {
	h.conns.Dec()
	h.connGauge.Dec()

	h.mu.Lock()
	st, present := h.byID[id]
	if !present {
		h.mu.Unlock()
		h.log.Fatal("unregister of unknown socket", zap.Uint64("socket", uint64(id)))
	}
	delete(h.byID, id)

	var gone models.UserID
	var announce bool
	if st.auth == AuthAuthenticated {
		set := h.byUser[st.uid]
		delete(set, id)
		if len(set) == 0 {
			delete(h.byUser, st.uid)
			gone, announce = st.uid, true
		}
	}
	h.mu.Unlock()

	if announce {
		h.pub.Push(ipc.Disconnect{User: gone}.Encode())
	}

	for g := range st.watching {
		h.gameMu.Lock()
		set := h.byGame[g]
		delete(set, id)
		empty := len(set) == 0
		if empty {
			delete(h.byGame, g)
		}
		h.gameMu.Unlock()

		if empty {
			h.pub.Push(ipc.Unwatch{Game: g}.Encode())
		}
	}

	if st.hasFlag {
		h.flagMu.Lock()
		delete(h.byFlag[st.flag], id)
		h.flagMu.Unlock()
	}

	h.mlatMu.Lock()
	delete(h.watchingMlat, id)
	h.mlatMu.Unlock()
}

func (h *Hub) send(s Sender, payload []byte) {
	if err := s.Send(payload); err != nil {
		h.sendFailures.Inc()
		h.log.Debug("send failed",
			zap.Uint64("socket", uint64(s.ID())), zap.Error(err))
		return
	}
	h.deliveries.Inc()
}
