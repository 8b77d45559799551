package transport

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"uisync/internal/broadcast"
	"uisync/internal/configuration"
	"uisync/internal/protocol"
)

// echoHandler joins rooms on "join", echoes "echo" back to the sender and
// publishes "shout" to a room.
type echoHandler struct {
	hub          *Hub
	connected    chan string
	disconnected chan string
}

func newEchoHandler(hub *Hub) *echoHandler {
	return &echoHandler{
		hub:          hub,
		connected:    make(chan string, 16),
		disconnected: make(chan string, 16),
	}
}

func (h *echoHandler) HandleConnect(connID string) {
	h.hub.Send(connID, broadcast.Event{Name: "hello"})
	h.connected <- connID
}

func (h *echoHandler) HandleFrame(connID string, frame protocol.Frame) {
	var room protocol.SiteRequest
	switch frame.Event {
	case "join":
		_ = json.Unmarshal(frame.Data, &room)
		h.hub.Join(room.Site, connID)
		h.hub.Send(connID, broadcast.Event{Name: "joined", Data: room})
	case "echo":
		h.hub.Send(connID, broadcast.Event{Name: "echoed", Data: frame.Data})
	case "shout":
		_ = json.Unmarshal(frame.Data, &room)
		h.hub.Publish(room.Site, broadcast.Event{Name: "shouted", Data: room}, "")
	}
}

func (h *echoHandler) HandleDisconnect(connID string) {
	h.disconnected <- connID
}

func testTransportConfig() *configuration.TransportConfigurationProperties {
	return &configuration.TransportConfigurationProperties{
		Address:       "127.0.0.1",
		Port:          0,
		Path:          "/ws",
		SendQueueSize: 16,
		WriteTimeout:  1000,
		MaxFrameBytes: 256,
	}
}

func startTestServer(t *testing.T, cfg *configuration.TransportConfigurationProperties) (*httptest.Server, *Hub, *echoHandler) {
	t.Helper()
	hub := NewHub()
	handler := newEchoHandler(hub)
	srv := httptest.NewServer(NewServer(cfg, hub, handler).Handler())
	t.Cleanup(srv.Close)
	return srv, hub, handler
}

func dial(t *testing.T, srv *httptest.Server, origin string) *websocket.Conn {
	t.Helper()
	ws, err := websocket.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", "", origin)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	require.Equal(t, "hello", receive(t, ws).Event)
	return ws
}

func send(t *testing.T, ws *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, websocket.JSON.Send(ws, protocol.Frame{Event: event, Data: raw}))
}

func receive(t *testing.T, ws *websocket.Conn) protocol.Frame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame protocol.Frame
	require.NoError(t, websocket.JSON.Receive(ws, &frame))
	return frame
}

func awaitID(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case id := <-ch:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for connection callback")
		return ""
	}
}

func TestServer_Liveness(t *testing.T) {
	srv, _, _ := startTestServer(t, testTransportConfig())

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "<p>UI Sync is online</p>", string(body))
	require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	missing, err := http.Get(srv.URL + "/nope")
	require.NoError(t, err)
	defer missing.Body.Close()
	require.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestServer_EchoRoundTrip(t *testing.T) {
	srv, _, handler := startTestServer(t, testTransportConfig())
	ws := dial(t, srv, "http://localhost/")
	require.NotEmpty(t, awaitID(t, handler.connected))

	send(t, ws, "echo", map[string]any{"k": 1})

	frame := receive(t, ws)
	require.Equal(t, "echoed", frame.Event)
	require.JSONEq(t, `{"k":1}`, string(frame.Data))
}

func TestServer_MalformedFrameKeepsConnection(t *testing.T) {
	srv, _, handler := startTestServer(t, testTransportConfig())
	ws := dial(t, srv, "http://localhost/")
	awaitID(t, handler.connected)

	require.NoError(t, websocket.Message.Send(ws, "not json"))

	frame := receive(t, ws)
	require.Equal(t, protocol.EventError, frame.Event)
	var payload protocol.Error
	require.NoError(t, json.Unmarshal(frame.Data, &payload))
	require.Equal(t, protocol.CodeMalformedPayload, payload.Code)

	send(t, ws, "echo", "still here")
	require.Equal(t, "echoed", receive(t, ws).Event)
}

func TestServer_OversizedFrameIsRejected(t *testing.T) {
	srv, _, handler := startTestServer(t, testTransportConfig())
	ws := dial(t, srv, "http://localhost/")
	awaitID(t, handler.connected)

	require.NoError(t, websocket.Message.Send(ws, strings.Repeat("x", 1024)))

	frame := receive(t, ws)
	require.Equal(t, protocol.EventError, frame.Event)
	var payload protocol.Error
	require.NoError(t, json.Unmarshal(frame.Data, &payload))
	require.Equal(t, protocol.CodeFrameTooLarge, payload.Code)

	send(t, ws, "echo", 1)
	require.Equal(t, "echoed", receive(t, ws).Event)
}

func TestServer_RoomPublishReachesMembersOnly(t *testing.T) {
	srv, _, handler := startTestServer(t, testTransportConfig())

	a := dial(t, srv, "http://localhost/")
	awaitID(t, handler.connected)
	b := dial(t, srv, "http://localhost/")
	awaitID(t, handler.connected)
	c := dial(t, srv, "http://localhost/")
	awaitID(t, handler.connected)

	for _, ws := range []*websocket.Conn{a, b} {
		send(t, ws, "join", protocol.SiteRequest{Site: "tst"})
		require.Equal(t, "joined", receive(t, ws).Event)
	}
	send(t, c, "join", protocol.SiteRequest{Site: "other"})
	require.Equal(t, "joined", receive(t, c).Event)

	send(t, a, "shout", protocol.SiteRequest{Site: "tst"})

	require.Equal(t, "shouted", receive(t, a).Event)
	require.Equal(t, "shouted", receive(t, b).Event)

	send(t, c, "echo", "probe")
	require.Equal(t, "echoed", receive(t, c).Event)
}

func TestServer_DisconnectUnregistersPeer(t *testing.T) {
	srv, hub, handler := startTestServer(t, testTransportConfig())
	ws := dial(t, srv, "http://localhost/")
	id := awaitID(t, handler.connected)

	send(t, ws, "join", protocol.SiteRequest{Site: "tst"})
	receive(t, ws)
	require.Equal(t, []string{id}, hub.members("tst"))

	require.NoError(t, ws.Close())

	require.Equal(t, id, awaitID(t, handler.disconnected))
	require.Eventually(t, func() bool { return hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	require.Empty(t, hub.members("tst"))
}

func TestServer_RejectsDisallowedOrigin(t *testing.T) {
	cfg := testTransportConfig()
	cfg.AllowedOrigins = []string{"http://allowed.example"}
	srv, _, _ := startTestServer(t, cfg)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, err := websocket.Dial(url, "", "http://evil.example")
	require.Error(t, err)

	ws, err := websocket.Dial(url, "", "http://allowed.example")
	require.NoError(t, err)
	_ = ws.Close()
}

func TestHub_SendToUnknownConnectionIsNoop(t *testing.T) {
	hub := NewHub()
	hub.Send("missing", broadcast.Event{Name: "x"})
	hub.Publish("room", broadcast.Event{Name: "x"}, "")
	hub.PublishAll(broadcast.Event{Name: "x"}, "")
	hub.Join("room", "missing")
	require.Empty(t, hub.members("room"))
	require.Zero(t, hub.Len())
}

func TestHub_BroadcastsWaitForGreeting(t *testing.T) {
	hub := NewHub()
	p := newPeer("c1", nil, 8, 0)
	hub.register(p)
	hub.Join("room", "c1")

	hub.PublishAll(broadcast.Event{Name: "early"}, "")
	hub.Publish("room", broadcast.Event{Name: "early"}, "")
	require.Empty(t, p.send)

	hub.Send("c1", broadcast.Event{Name: "greeting"})
	hub.PublishAll(broadcast.Event{Name: "late"}, "")
	hub.Publish("room", broadcast.Event{Name: "late"}, "")

	var got []string
	for len(p.send) > 0 {
		var f protocol.Frame
		require.NoError(t, json.Unmarshal(<-p.send, &f))
		got = append(got, f.Event)
	}
	require.Equal(t, []string{"greeting", "late", "late"}, got)

	hub.unregister("c1")
	require.Zero(t, hub.Len())
}
