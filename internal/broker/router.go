package broker

import (
	"github.com/google/uuid"

	"github.com/studiovibi/vibinet/internal/protocol"
)

// route dispatches one client-originated envelope per the broker's wire
// contract: get_time, post, load, watch, unwatch. Anything else is logged
// and ignored, matching the Engine side's forward-compatible handling of
// unrecognized kinds.
func (s *Server) route(c *Conn, e protocol.Envelope) {
	switch e.Kind {
	case protocol.KindGetTime:
		if e.Version != 0 && !protocol.Compatible(protocol.ProtocolVersion, e.Version) {
			s.log.Warn().Int("client_version", e.Version).Int("broker_version", protocol.ProtocolVersion).
				Msg("client protocol version below MinVersion")
		}
		c.reply(protocol.Envelope{
			Kind:       protocol.KindInfoTime,
			Time:       e.Time,
			ServerTime: s.nowMS(),
			Version:    protocol.ProtocolVersion,
		})

	case protocol.KindPost:
		s.handlePost(c, e)

	case protocol.KindLoad:
		s.handleLoad(c, e)

	case protocol.KindWatch:
		s.hub.watch(e.Room, c)

	case protocol.KindUnwatch:
		s.hub.unwatch(e.Room, c)

	default:
		s.log.Debug().Str("kind", string(e.Kind)).Msg("ignoring unrecognized client message")
	}
}

func (s *Server) handlePost(c *Conn, e protocol.Envelope) {
	rl, err := s.store.Room(e.Room)
	if err != nil {
		s.log.Error().Err(err).Str("room", e.Room).Msg("open room log failed")
		return
	}

	name := e.Name
	if name == "" {
		name = uuid.NewString()
	}

	p, err := rl.Append(s.nowMS(), e.ClientTime, name, e.Data)
	if err != nil {
		s.log.Error().Err(err).Str("room", e.Room).Msg("append post failed")
		return
	}

	s.log.Info().Str("room", e.Room).Int64("index", p.Index).Msg("post appended")
	s.hub.broadcast(e.Room, mustMarshal(protocol.FromPost(p)))
}

func (s *Server) handleLoad(c *Conn, e protocol.Envelope) {
	rl, err := s.store.Room(e.Room)
	if err != nil {
		s.log.Error().Err(err).Str("room", e.Room).Msg("open room log failed")
		return
	}
	for _, p := range rl.From(e.From) {
		c.reply(protocol.FromPost(p))
	}
}

func mustMarshal(e protocol.Envelope) []byte {
	data, err := protocol.Marshal(e)
	if err != nil {
		// Envelope is a plain data struct; a marshal failure here would mean
		// a programmer error (e.g. an unsupported field type), not a
		// runtime condition callers can recover from.
		panic(err)
	}
	return data
}
