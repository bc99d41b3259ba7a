package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edgelink/internal/edge"
	"edgelink/internal/protocol"
	"edgelink/internal/session"
)

type fakeController struct {
	mu     sync.Mutex
	status session.Status
	quits  int
}

func (c *fakeController) Status() session.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *fakeController) SetTargetEdge(e edge.Edge) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.TargetEdge = e
}

func (c *fakeController) Quit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quits++
}

func (c *fakeController) quitCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quits
}

func newTestServer(t *testing.T, token string) (*Server, *fakeController, *httptest.Server) {
	ctrl := &fakeController{status: session.Status{Mode: session.Idle, PeerConnected: true, TargetEdge: edge.Right}}
	s := NewServer(ctrl, token)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = s.Close()
	})
	return s, ctrl, ts
}

func TestStatusEndpoint(t *testing.T) {
	_, _, ts := newTestServer(t, "")

	resp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, map[string]interface{}{
		"mode":           "idle",
		"peer_connected": true,
		"target_edge":    "right",
	}, body)

	resp, err = http.Post(ts.URL+"/api/status", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestTokenAuth(t *testing.T) {
	_, _, ts := newTestServer(t, "secret")

	resp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/status", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

type wireMessage struct {
	Type    protocol.MessageType `json:"type"`
	Payload json.RawMessage      `json:"payload"`
}

func readMessage(t *testing.T, conn *websocket.Conn) wireMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg wireMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketFeed(t *testing.T) {
	s, _, ts := newTestServer(t, "")
	conn := dialWS(t, ts)

	msg := readMessage(t, conn)
	require.Equal(t, protocol.TypeMode, msg.Type)
	assert.JSONEq(t, `{"mode":"idle","target_edge":"right"}`, string(msg.Payload))
	msg = readMessage(t, conn)
	require.Equal(t, protocol.TypePeer, msg.Type)
	assert.JSONEq(t, `{"connected":true}`, string(msg.Payload))

	s.PeerDisconnected()
	msg = readMessage(t, conn)
	assert.Equal(t, protocol.TypePeer, msg.Type)
	assert.JSONEq(t, `{"connected":false}`, string(msg.Payload))

	s.SessionModeChanged(session.Forwarding)
	msg = readMessage(t, conn)
	assert.Equal(t, protocol.TypeMode, msg.Type)
	assert.JSONEq(t, `{"mode":"forwarding","target_edge":"right"}`, string(msg.Payload))
}

func TestWebSocketCommands(t *testing.T) {
	_, ctrl, ts := newTestServer(t, "")
	conn := dialWS(t, ts)
	readMessage(t, conn)
	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(protocol.Message{Type: protocol.TypeSetEdge, Payload: protocol.SetEdgePayload{Edge: "left"}}))
	msg := readMessage(t, conn)
	assert.Equal(t, protocol.TypeMode, msg.Type)
	assert.JSONEq(t, `{"mode":"idle","target_edge":"left"}`, string(msg.Payload))
	assert.Equal(t, edge.Left, ctrl.Status().TargetEdge)

	require.NoError(t, conn.WriteJSON(protocol.Message{Type: protocol.TypeSetEdge, Payload: protocol.SetEdgePayload{Edge: "diagonal"}}))
	msg = readMessage(t, conn)
	assert.Equal(t, protocol.TypeError, msg.Type)
	assert.Equal(t, edge.Left, ctrl.Status().TargetEdge)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{")))
	msg = readMessage(t, conn)
	assert.Equal(t, protocol.TypeError, msg.Type)

	require.NoError(t, conn.WriteJSON(protocol.Message{Type: protocol.TypeQuit}))
	require.Eventually(t, func() bool { return ctrl.quitCount() == 1 }, 2*time.Second, 5*time.Millisecond)
}
