// Package broker implements a minimal, real broker: the external counterpart
// the Transport Adapter and Engine assume is out there somewhere. One room's
// posts live in one append-only NDJSON file; a Hub fans out live posts to
// whichever connections are watching. Grounded in the teacher's
// internal/server (Config/DefaultConfig shape, mutex-guarded state) and
// juan10024-tictactoe-test's Hub/Client pattern.
package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/studiovibi/vibinet/internal/lobby"
)

// roomTTL is how long an advertised room stays listed without a refresh.
// Rooms aren't refreshed today (no heartbeat from vibinet rooms create), so
// this is generous; a future heartbeat can shrink it.
const roomTTL = 6 * time.Hour

// Config holds the broker's tunables.
type Config struct {
	Addr    string
	DataDir string
}

// DefaultConfig mirrors the teacher's server.DefaultConfig shape, adapted
// from a tick-rate/port game server to an HTTP listen address and an
// on-disk room-log directory.
func DefaultConfig() Config {
	return Config{Addr: ":7777", DataDir: "./data"}
}

// Server is the broker: an HTTP/WebSocket endpoint fanning client messages
// out to a Hub backed by a per-room NDJSON Store.
type Server struct {
	cfg   Config
	log   zerolog.Logger
	store *Store
	hub   *Hub
	rooms *lobby.RoomStore
	nowMS func() int64

	httpSrv *http.Server
}

// New constructs a Server. It does not open any room log files until a
// client first touches that room.
func New(cfg Config, log zerolog.Logger) (*Server, error) {
	store, err := NewStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:   cfg,
		log:   log,
		store: store,
		hub:   NewHub(),
		rooms: lobby.NewRoomStore(roomTTL),
		nowMS: func() int64 { return time.Now().UnixMilli() },
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveConn(s, w, r)
	})
	mux.HandleFunc("/rooms", s.handleRooms)
	s.httpSrv = &http.Server{Addr: cfg.Addr, Handler: mux}

	return s, nil
}

// handleRooms serves the discovery surface a client checks before dialing a
// room's websocket directly: GET lists active rooms, POST advertises a new
// one and returns its generated code.
func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(s.rooms.List()); err != nil {
			s.log.Error().Err(err).Msg("encode room list failed")
		}

	case http.MethodPost:
		var req struct {
			Name       string `json:"name"`
			MaxPlayers int    `json:"max_players"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}
		if req.MaxPlayers <= 0 {
			req.MaxPlayers = 8
		}

		room, err := s.rooms.Create(r.RemoteAddr, req.Name, req.MaxPlayers)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(room); err != nil {
			s.log.Error().Err(err).Msg("encode created room failed")
		}

	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// ListenAndServe blocks, serving WebSocket connections until Shutdown is
// called or the listener fails.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.cfg.Addr).Str("data_dir", s.cfg.DataDir).Msg("broker listening")
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
