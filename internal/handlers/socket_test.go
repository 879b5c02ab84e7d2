package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chess-gateway/internal/auth"
	"chess-gateway/internal/hub"
	"chess-gateway/internal/middleware"
)

type recordingPublisher struct {
	mu   sync.Mutex
	recs []string
}

func (p *recordingPublisher) Push(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recs = append(p.recs, msg)
}

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.recs...)
}

type gatewayFixture struct {
	srv *httptest.Server
	pub *recordingPublisher
}

func newGateway(t *testing.T, maxConns int) *gatewayFixture {
	t.Helper()

	log := zap.NewNop()
	pub := &recordingPublisher{}
	h := hub.New(log, pub, nil)
	limiter := middleware.NewRateLimiter(1000)
	t.Cleanup(limiter.Stop)

	// The worker is never started; cookieless sockets don't reach it.
	sessions := auth.NewWorker(log, nil, h.Authenticate)

	handler := NewSocketHandler(log, h, limiter, sessions, maxConns)
	srv := httptest.NewServer(http.HandlerFunc(handler.ServeWS))
	t.Cleanup(srv.Close)

	return &gatewayFixture{srv: srv, pub: pub}
}

func (g *gatewayFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(g.srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(data)
}

// ping waits for a pong, which proves all previously sent messages have
// been dispatched.
func ping(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("null")))
	assert.Equal(t, "0", readText(t, conn))
}

func TestNullPingShortcut(t *testing.T) {
	g := newGateway(t, 10)
	conn := g.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("null")))
	assert.Equal(t, "0", readText(t, conn))
}

func TestPingEnvelope(t *testing.T) {
	g := newGateway(t, 10)
	conn := g.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"t":"p"}`)))
	assert.Equal(t, "0", readText(t, conn))
}

func TestUnknownTagClosesWithProtocolError(t *testing.T) {
	g := newGateway(t, 10)
	conn := g.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"t":"resign"}`)))

	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseProtocolError, closeErr.Code)
}

func TestInvalidJSONClosesWithProtocolError(t *testing.T) {
	g := newGateway(t, 10)
	conn := g.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{broken")))

	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseProtocolError, closeErr.Code)
}

func TestOversizedMessageClosesWith1009(t *testing.T) {
	g := newGateway(t, 10)
	conn := g.dial(t)

	big := `{"t":"p","d":"` + strings.Repeat("x", 1200) + `"}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(big)))

	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseMessageTooBig, closeErr.Code)
}

func TestMaxSizedMessageAccepted(t *testing.T) {
	g := newGateway(t, 10)
	conn := g.dial(t)

	msg := `{"t":"p","d":"` + strings.Repeat("x", 1024-16) + `"}`
	require.Len(t, msg, 1024)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
	assert.Equal(t, "0", readText(t, conn))
}

func TestStartWatchingPublishesWatch(t *testing.T) {
	g := newGateway(t, 10)
	conn := g.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"t":"startWatching","d":"abcd1234"}`)))
	ping(t, conn)

	assert.Contains(t, g.pub.published(), "watch/abcd1234")
}

func TestAnaDestsOverSocket(t *testing.T) {
	g := newGateway(t, 10)
	conn := g.dial(t)

	req := `{"t":"anaDests","d":{"variant":"standard","fen":"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1","path":""}}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(req)))

	resp := readText(t, conn)
	assert.Contains(t, resp, `"t":"dests"`)
	assert.Contains(t, resp, `"Initial Position"`)
}

func TestAnaDestsFailureOverSocket(t *testing.T) {
	g := newGateway(t, 10)
	conn := g.dial(t)

	req := `{"t":"anaDests","d":{"variant":"standard","fen":"garbage","path":""}}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(req)))

	assert.JSONEq(t, `{"t":"destsFailure"}`, readText(t, conn))
}

func TestEvalTagsIgnored(t *testing.T) {
	g := newGateway(t, 10)
	conn := g.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"t":"evalGet","d":{}}`)))
	ping(t, conn)
}

func TestConnectionLimit(t *testing.T) {
	g := newGateway(t, 1)

	conn := g.dial(t)
	// A pong proves the first socket is fully registered.
	ping(t, conn)

	url := "ws" + strings.TrimPrefix(g.srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
