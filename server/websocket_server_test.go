package server

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spoc-ai/voicebridge/config"
	"github.com/spoc-ai/voicebridge/messages"
	"github.com/spoc-ai/voicebridge/session"
	"github.com/spoc-ai/voicebridge/upstream"
)

type stubUpstream struct {
	mu       sync.Mutex
	handlers upstream.Handlers
	closed   bool
}

func (u *stubUpstream) Bind(h upstream.Handlers) {
	u.mu.Lock()
	u.handlers = h
	u.mu.Unlock()
}

func (u *stubUpstream) Start(ctx context.Context) {}

func (u *stubUpstream) SendMediaChunk(mimeType, data string) error { return nil }

func (u *stubUpstream) SendText(text string) error { return nil }

func (u *stubUpstream) Close() error {
	u.mu.Lock()
	u.closed = true
	u.mu.Unlock()
	return nil
}

func (u *stubUpstream) ready() {
	u.mu.Lock()
	h := u.handlers
	u.mu.Unlock()
	if h.OnReady != nil {
		h.OnReady()
	}
}

func testServerConfig() *config.Config {
	return &config.Config{
		Port:           0,
		RedisURL:       "127.0.0.1:1",
		MaxSessions:    2,
		SessionTimeout: time.Minute,
		AllowedOrigins: []string{"*"},
		MaxFrameSize:   512 * 1024,
		AudioDir:       "testdata",
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *session.Manager, *stubUpstream) {
	t.Helper()
	up := &stubUpstream{}
	sm, err := session.NewManager(testServerConfig(), func(ctx context.Context) (session.Upstream, error) {
		return up, nil
	})
	require.NoError(t, err)
	t.Cleanup(sm.Shutdown)

	s := NewServer(testServerConfig(), sm, nil)
	ts := httptest.NewServer(s.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts, sm, up
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func TestHealthEndpoint(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body struct {
		Status   string `json:"status"`
		Sessions int    `json:"sessions"`
	}
	require.NoError(t, sonic.ConfigDefault.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Zero(t, body.Sessions)
}

func TestWebSocketSessionLifecycle(t *testing.T) {
	ts, _, up := newTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.NoError(t, err)
	defer conn.Close()

	// Upstream comes up; client gets the connected banner.
	require.Eventually(t, func() bool {
		up.mu.Lock()
		defer up.mu.Unlock()
		return up.handlers.OnReady != nil
	}, 2*time.Second, 5*time.Millisecond)
	up.ready()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := messages.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, messages.TypeConnected, env.Type)
}

func TestWebSocketSessionCapReported(t *testing.T) {
	ts, sm, _ := newTestServer(t)

	var conns []*websocket.Conn
	defer func() {
		for _, c := range conns {
			c.Close()
		}
	}()
	for i := 0; i < 2; i++ {
		c, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
		require.NoError(t, err)
		conns = append(conns, c)
		want := i + 1
		require.Eventually(t, func() bool { return sm.ActiveSessionCount() == want },
			2*time.Second, 5*time.Millisecond)
	}

	// Third connection exceeds MaxSessions; the server sends an error
	// envelope and closes.
	c, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.NoError(t, err)
	defer c.Close()

	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := c.ReadMessage()
	require.NoError(t, err)
	env, err := messages.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, messages.TypeError, env.Type)
	assert.NotEmpty(t, env.Error)
}

func TestChatEndpointUnavailableWithoutService(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := ts.Client().Post(ts.URL+"/api/chat", "application/json",
		strings.NewReader(`{"message":"hi"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 503, resp.StatusCode)
}

func TestChatEndpointRejectsGet(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/api/chat")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 405, resp.StatusCode)
}

func TestTTSEndpointUnavailableWithoutService(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := ts.Client().Post(ts.URL+"/api/tts", "application/json",
		strings.NewReader(`{"text":"hello"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 503, resp.StatusCode)
}
