package game

import (
	"hash/fnv"

	"github.com/studiovibi/vibinet/internal/protocol"
)

// PlayerSnapshot captures one player entity's full simulated state, with no
// dependency on its ecs.Entity handle.
type PlayerSnapshot struct {
	ID       int
	Name     string
	Position Position
	Velocity Velocity
	Health   Health
	Grounded Grounded
	Attack   AttackState
}

// EnemySnapshot captures one enemy entity's full simulated state.
type EnemySnapshot struct {
	Kind     string
	Position Position
	Velocity Velocity
	Grounded Grounded
}

// FistSnapshot captures one in-flight punch entity's state.
type FistSnapshot struct {
	Position Position
	Velocity Velocity
	Fist     FistState
}

// WorldState is a complete, entity-handle-free value capturing everything
// World.Update can change. Unlike the ecs.World it is derived from, two
// WorldState values are fully independent: copying or retaining one never
// aliases another. This is what the snapshot cache needs (§4.3) and what
// on_tick/on_post (§4.5) are contracted to preserve.
type WorldState struct {
	Tick     uint64
	Players  []PlayerSnapshot
	Enemies  []EnemySnapshot
	Fists    []FistSnapshot
	// Intents is each player's held input bitmask, persisting across ticks
	// until a later intent event overwrites it. It lives in WorldState
	// rather than transient World state because the Stepper rebuilds a
	// fresh World from a WorldState on every call.
	Intents  map[int]protocol.Intent
	Checksum uint32
}

// Snapshot captures w's current state as an entity-handle-free value.
func (w *World) Snapshot() WorldState {
	state := WorldState{Tick: w.Tick, Intents: cloneIntents(w.intents)}

	query := w.snapPlayerFilter.Query()
	for query.Next() {
		pos, vel, health, grounded, attack, player := query.Get()
		state.Players = append(state.Players, PlayerSnapshot{
			ID:       player.ID,
			Name:     player.Name,
			Position: *pos,
			Velocity: *vel,
			Health:   *health,
			Grounded: *grounded,
			Attack:   *attack,
		})
	}
	query.Close()

	enemyQuery := w.enemyFilter.Query()
	for enemyQuery.Next() {
		pos, vel, enemy, grounded := enemyQuery.Get()
		state.Enemies = append(state.Enemies, EnemySnapshot{
			Kind:     enemy.Kind,
			Position: *pos,
			Velocity: *vel,
			Grounded: *grounded,
		})
	}
	enemyQuery.Close()

	fistQuery := w.fistFilter.Query()
	for fistQuery.Next() {
		pos, vel, fist := fistQuery.Get()
		state.Fists = append(state.Fists, FistSnapshot{
			Position: *pos,
			Velocity: *vel,
			Fist:     *fist,
		})
	}
	fistQuery.Close()

	state.Checksum = state.computeChecksum()
	return state
}

// Restore repopulates w (assumed freshly constructed) from state, spawning
// entities with the exact saved component values rather than the New*
// defaults.
func (w *World) Restore(state WorldState) {
	w.Tick = state.Tick
	w.intents = cloneIntents(state.Intents)

	for _, p := range state.Players {
		w.playerMap.NewEntity(
			p.Position,
			p.Velocity,
			Collider{Width: 1, Height: 1},
			Sprite{ID: "player", Color: 0xffffff},
			Player{ID: p.ID, Name: p.Name},
			p.Health,
			Gravity{Scale: 1},
			p.Grounded,
			p.Attack,
		)
	}

	for _, e := range state.Enemies {
		w.enemyMap.NewEntity(
			e.Position,
			e.Velocity,
			Collider{Width: 1, Height: 1},
			Sprite{ID: e.Kind, Color: 0xff4040},
			Enemy{Kind: e.Kind},
			e.Grounded,
		)
	}

	for _, f := range state.Fists {
		w.fistMap.NewEntity(f.Position, f.Velocity, f.Fist)
	}
}

// cloneIntents deep-copies an intent map so two WorldState values (or a
// WorldState and the World rebuilt from it) never alias the same map.
func cloneIntents(m map[int]protocol.Intent) map[int]protocol.Intent {
	out := make(map[int]protocol.Intent, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// computeChecksum hashes the fields that determine gameplay-visible state,
// for StatesMatch's fast path.
func (state *WorldState) computeChecksum() uint32 {
	h := fnv.New32a()

	var buf [8]byte
	putU64 := func(v uint64) {
		for i := range buf {
			buf[i] = byte(v >> (8 * i))
		}
		h.Write(buf[:])
	}

	putU64(state.Tick)
	for _, p := range state.Players {
		putU64(uint64(int64(p.Position.X * 1000)))
		putU64(uint64(int64(p.Position.Y * 1000)))
		putU64(uint64(p.Health.Current))
	}
	for _, e := range state.Enemies {
		putU64(uint64(int64(e.Position.X * 1000)))
		putU64(uint64(int64(e.Position.Y * 1000)))
	}
	putU64(uint64(len(state.Fists)))

	return h.Sum32()
}

// StatesMatch compares two world states for equivalence within tolerance,
// used by tests asserting cache/no-cache replay equivalence without
// requiring bit-for-bit identical floats.
func StatesMatch(a, b WorldState, tolerance float64) bool {
	if a.Checksum == b.Checksum {
		return true
	}
	if len(a.Players) != len(b.Players) || len(a.Enemies) != len(b.Enemies) || len(a.Fists) != len(b.Fists) {
		return false
	}
	for i := range a.Players {
		if !closeEnough(a.Players[i].Position, b.Players[i].Position, tolerance) {
			return false
		}
		if a.Players[i].Grounded.OnGround != b.Players[i].Grounded.OnGround {
			return false
		}
	}
	for i := range a.Enemies {
		if !closeEnough(a.Enemies[i].Position, b.Enemies[i].Position, tolerance) {
			return false
		}
	}
	return true
}

func closeEnough(a, b Position, tolerance float64) bool {
	dx, dy := a.X-b.X, a.Y-b.Y
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}
	return dx <= tolerance && dy <= tolerance
}
