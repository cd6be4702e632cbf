package transport

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/studiovibi/vibinet/internal/clock"
	"github.com/studiovibi/vibinet/internal/protocol"
)

// WSTransport is the Transport implementation backed by a real broker
// connection. Its read/write-pump split and reconnect-free lifecycle is
// grounded in the juan10024-tictactoe-test Hub/Client pattern, adapted from
// a server-side fan-out hub into a single client connection.
type WSTransport struct {
	conn *websocket.Conn
	log  zerolog.Logger

	clock *clock.Clock

	writeMu sync.Mutex

	mu       sync.Mutex
	handlers map[string]Handler
	closed   bool

	done chan struct{}
}

// Dial opens a connection to a broker at url (e.g. "ws://host:port/ws") and
// starts its read pump and ping loop. The returned WSTransport is ready to
// Watch/Post once its clock syncs; register via OnSync to be notified.
func Dial(addr string, log zerolog.Logger) (*WSTransport, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("transport: parse broker url: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial broker: %w", err)
	}

	t := &WSTransport{
		conn:     conn,
		log:      log,
		clock:    clock.New(),
		handlers: make(map[string]Handler),
		done:     make(chan struct{}),
	}

	go t.readPump()
	go t.pingLoop()

	return t, nil
}

func (t *WSTransport) OnSync(cb func()) { t.clock.OnSync(cb) }

func (t *WSTransport) ServerTime() (int64, error) { return t.clock.ServerTime() }

func (t *WSTransport) Ping() (int64, bool) { return t.clock.Ping() }

func (t *WSTransport) Watch(room string, h Handler) error {
	t.mu.Lock()
	if _, dup := t.handlers[room]; dup {
		t.mu.Unlock()
		return ErrDuplicateHandler
	}
	t.handlers[room] = h
	t.mu.Unlock()

	return t.send(protocol.Envelope{Kind: protocol.KindWatch, Room: room})
}

func (t *WSTransport) Unwatch(room string) {
	t.mu.Lock()
	delete(t.handlers, room)
	t.mu.Unlock()

	_ = t.send(protocol.Envelope{Kind: protocol.KindUnwatch, Room: room})
}

func (t *WSTransport) Load(room string, from int64) error {
	return t.send(protocol.Envelope{Kind: protocol.KindLoad, Room: room, From: from})
}

// Post stamps the post with a client-generated opaque name and the current
// estimated server time, sends it, and returns the name synchronously; the
// caller treats the post as local until the broker's info_post echo arrives
// on the watch handler with an assigned index.
func (t *WSTransport) Post(room string, data []byte) (string, error) {
	clientTime, err := t.ServerTime()
	if err != nil {
		return "", err
	}
	name := uuid.NewString()

	err = t.send(protocol.Envelope{
		Kind:       protocol.KindPost,
		Room:       room,
		ClientTime: clientTime,
		Name:       name,
		Data:       data,
	})
	if err != nil {
		return "", err
	}
	return name, nil
}

func (t *WSTransport) send(e protocol.Envelope) error {
	data, err := protocol.Marshal(e)
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ErrNotOpen
	}

	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// pingLoop sends get_time probes at the Clock's preferred cadence until the
// connection closes.
func (t *WSTransport) pingLoop() {
	t.probe()

	ticker := time.NewTicker(clock.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.probe()
		case <-t.done:
			return
		}
	}
}

func (t *WSTransport) probe() {
	sentAt := t.clock.Probe()
	e := protocol.Envelope{Kind: protocol.KindGetTime, Time: sentAt, Version: protocol.ProtocolVersion}
	if err := t.send(e); err != nil {
		t.log.Debug().Err(err).Msg("probe send failed")
	}
}

// readPump decodes incoming envelopes and dispatches them: info_time to the
// Clock, info_post to the room's registered watch handler.
func (t *WSTransport) readPump() {
	defer t.shutdown()

	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			t.log.Debug().Err(err).Msg("broker read pump exiting")
			return
		}

		e, err := protocol.Unmarshal(data)
		if err != nil {
			t.log.Warn().Err(err).Msg("dropping malformed broker message")
			continue
		}

		switch e.Kind {
		case protocol.KindInfoTime:
			t.clock.Observe(e.Time, time.Now().UnixMilli(), e.ServerTime)
		case protocol.KindInfoPost:
			t.dispatch(e.ToPost())
		default:
			t.log.Debug().Str("kind", string(e.Kind)).Msg("ignoring unrecognized message kind")
		}
	}
}

func (t *WSTransport) dispatch(p protocol.Post) {
	t.mu.Lock()
	h, ok := t.handlers[p.Room]
	t.mu.Unlock()
	if ok {
		h(p)
	}
}

func (t *WSTransport) shutdown() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.mu.Unlock()
	close(t.done)
}

// Close terminates the connection and stops the ping/read pumps.
func (t *WSTransport) Close() error {
	t.shutdown()
	return t.conn.Close()
}
