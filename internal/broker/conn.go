package broker

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/studiovibi/vibinet/internal/protocol"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Conn is one connected client socket: a send buffer plus the pair of pumps
// that move bytes between it and the Hub. Mirrors juan10024-tictactoe-test's
// Client, minus the single-room assignment (watch/unwatch handle that here).
type Conn struct {
	srv  *Server
	conn *websocket.Conn
	send chan []byte
	log  zerolog.Logger
}

func serveConn(srv *Server, w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		srv.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &Conn{srv: srv, conn: ws, send: make(chan []byte, 256), log: srv.log}
	go c.writePump()
	go c.readPump()
}

func (c *Conn) readPump() {
	defer func() {
		c.srv.hub.unwatchAll(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Debug().Err(err).Msg("client read error")
			}
			return
		}

		e, err := protocol.Unmarshal(data)
		if err != nil {
			c.log.Warn().Err(err).Msg("dropping malformed client message")
			continue
		}
		c.srv.route(c, e)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// reply enqueues an envelope for delivery to this connection only.
func (c *Conn) reply(e protocol.Envelope) {
	data, err := protocol.Marshal(e)
	if err != nil {
		c.log.Error().Err(err).Msg("encode reply failed")
		return
	}
	select {
	case c.send <- data:
	default:
		c.log.Warn().Msg("client send buffer full, dropping reply")
	}
}
