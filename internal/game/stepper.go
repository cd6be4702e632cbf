package game

import (
	"github.com/studiovibi/vibinet/internal/collision"
	"github.com/studiovibi/vibinet/internal/protocol"
)

// Stepper adapts World into the on_tick/on_post/smooth triple
// engine.Engine[WorldState] needs. It holds no simulation state of its own
// between calls: each call rebuilds a fresh World from its input
// WorldState, applies exactly one change, and snapshots the result. That
// keeps on_tick/on_post pure functions of (state, tick) and (state, post) —
// the purity the Engine's snapshot cache depends on — even though World
// itself is built around a mutable ecs.World.
type Stepper struct {
	tileMap     *collision.TileMap
	localPlayer int
}

// NewStepper creates a Stepper over a fixed level; tileMap may be nil for a
// level-less world (no ground collision).
func NewStepper(tileMap *collision.TileMap, localPlayerID int) *Stepper {
	return &Stepper{tileMap: tileMap, localPlayer: localPlayerID}
}

func (s *Stepper) build(state WorldState) *World {
	w := NewWorld()
	if s.tileMap != nil {
		w.SetTileMap(s.tileMap)
	}
	w.Restore(state)
	return w
}

// OnTick advances state by exactly one tick. Matches engine.OnTick[WorldState].
func (s *Stepper) OnTick(state WorldState, tick int64) WorldState {
	w := s.build(state)
	w.Update()
	return w.Snapshot()
}

// OnPost decodes a post's game event and applies it without advancing
// physics — the next on_tick picks up the change. Matches
// engine.OnPost[WorldState].
func (s *Stepper) OnPost(state WorldState, p protocol.Post) WorldState {
	ev, err := protocol.DecodeGameEvent(p.Data)
	if err != nil {
		return state
	}

	w := s.build(state)
	switch ev.Kind {
	case protocol.EventJoin:
		w.SpawnPlayer(ev.PlayerID, ev.Name, ev.X, ev.Y)
	case protocol.EventIntent:
		w.SetPlayerIntent(ev.PlayerID, ev.Intent)
	}
	return w.Snapshot()
}

// Smooth blends a lagged-authoritative state with the freshest predicted
// one: the local player's own avatar always renders from the predicted
// state (the Engine never waits on round-trip confirmation of your own
// input), while every other player, enemy, and in-flight fist renders from
// the authoritative-lag state, since the Engine does not locally predict
// anyone else's input. Matches engine.Smooth[WorldState].
func (s *Stepper) Smooth(remoteState, localState WorldState) WorldState {
	out := WorldState{
		Tick:    localState.Tick,
		Enemies: remoteState.Enemies,
		Fists:   remoteState.Fists,
	}

	for _, p := range remoteState.Players {
		if p.ID != s.localPlayer {
			out.Players = append(out.Players, p)
		}
	}
	for _, p := range localState.Players {
		if p.ID == s.localPlayer {
			out.Players = append(out.Players, p)
		}
	}

	out.Checksum = out.computeChecksum()
	return out
}
