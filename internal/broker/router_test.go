package broker

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/studiovibi/vibinet/internal/protocol"
)

func newTestServer(t *testing.T) (*httptest.Server, func()) {
	t.Helper()
	srv, err := New(Config{DataDir: t.TempDir()}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ts := httptest.NewServer(srv.httpSrv.Handler)
	return ts, ts.Close
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) protocol.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	e, err := protocol.Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	return e
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, e protocol.Envelope) {
	t.Helper()
	data, err := protocol.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
}

func TestGetTimeEchoesProbeAndReportsServerTime(t *testing.T) {
	ts, closeFn := newTestServer(t)
	defer closeFn()

	conn := dial(t, ts)
	defer conn.Close()

	sendEnvelope(t, conn, protocol.Envelope{Kind: protocol.KindGetTime, Time: 12345})
	reply := readEnvelope(t, conn)

	if reply.Kind != protocol.KindInfoTime {
		t.Fatalf("reply kind = %s, want info_time", reply.Kind)
	}
	if reply.Time != 12345 {
		t.Fatalf("reply.Time = %d, want echoed 12345", reply.Time)
	}
	if reply.ServerTime <= 0 {
		t.Fatalf("reply.ServerTime = %d, want the broker's current time", reply.ServerTime)
	}
}

func TestPostBroadcastsToWatcher(t *testing.T) {
	ts, closeFn := newTestServer(t)
	defer closeFn()

	poster := dial(t, ts)
	defer poster.Close()

	sendEnvelope(t, poster, protocol.Envelope{Kind: protocol.KindWatch, Room: "arena"})
	sendEnvelope(t, poster, protocol.Envelope{
		Kind: protocol.KindPost, Room: "arena", ClientTime: 10, Name: "a", Data: []byte("hi"),
	})

	echo := readEnvelope(t, poster)
	if echo.Kind != protocol.KindInfoPost {
		t.Fatalf("echo kind = %s, want info_post", echo.Kind)
	}
	if echo.Index != 0 || echo.Name != "a" || string(echo.Data) != "hi" {
		t.Fatalf("echo = %+v, want index 0, name a, data hi", echo)
	}
}

func TestLoadReplaysBacklogToRequester(t *testing.T) {
	ts, closeFn := newTestServer(t)
	defer closeFn()

	poster := dial(t, ts)
	defer poster.Close()
	sendEnvelope(t, poster, protocol.Envelope{Kind: protocol.KindWatch, Room: "arena"})
	sendEnvelope(t, poster, protocol.Envelope{Kind: protocol.KindPost, Room: "arena", Name: "a", Data: []byte("1")})
	readEnvelope(t, poster) // drain own echo

	sendEnvelope(t, poster, protocol.Envelope{Kind: protocol.KindPost, Room: "arena", Name: "b", Data: []byte("2")})
	readEnvelope(t, poster)

	late := dial(t, ts)
	defer late.Close()
	sendEnvelope(t, late, protocol.Envelope{Kind: protocol.KindLoad, Room: "arena", From: 0})

	first := readEnvelope(t, late)
	second := readEnvelope(t, late)
	if first.Index != 0 || second.Index != 1 {
		t.Fatalf("backlog indices = %d, %d, want 0, 1", first.Index, second.Index)
	}
}

func TestUnwatchStopsDelivery(t *testing.T) {
	ts, closeFn := newTestServer(t)
	defer closeFn()

	watcher := dial(t, ts)
	defer watcher.Close()
	sendEnvelope(t, watcher, protocol.Envelope{Kind: protocol.KindWatch, Room: "arena"})
	sendEnvelope(t, watcher, protocol.Envelope{Kind: protocol.KindUnwatch, Room: "arena"})

	poster := dial(t, ts)
	defer poster.Close()
	sendEnvelope(t, poster, protocol.Envelope{Kind: protocol.KindPost, Room: "arena", Name: "a", Data: []byte("1")})

	watcher.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := watcher.ReadMessage(); err == nil {
		t.Fatal("expected no message after unwatch, got one")
	}
}
