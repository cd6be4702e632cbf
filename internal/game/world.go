package game

import (
	"github.com/mlange-42/ark/ecs"

	"github.com/studiovibi/vibinet/internal/collision"
	"github.com/studiovibi/vibinet/internal/protocol"
)

const gravityAccel = 0.6  // units/tick^2
const moveSpeed = 1.2     // units/tick
const jumpVelocity = 9.0  // initial upward speed applied on jump

// World holds the ark ECS world plus the component maps and filters used to
// spawn and query entities. Update is deterministic: given the same initial
// state and the same sequence of intents, it always produces the same
// result, which is what lets the engine's snapshot cache replay ticks.
type World struct {
	ecsWorld ecs.World
	Tick     uint64

	playerMap *ecs.Map9[Position, Velocity, Collider, Sprite, Player, Health, Gravity, Grounded, AttackState]
	enemyMap  *ecs.Map6[Position, Velocity, Collider, Sprite, Enemy, Grounded]
	fistMap   *ecs.Map3[Position, Velocity, FistState]

	physicsFilter    *ecs.Filter4[Position, Velocity, Collider, Grounded]
	playerFilter     *ecs.Filter2[Position, Player]
	attackFilter     *ecs.Filter6[Position, Velocity, Grounded, AttackState, Player, Collider]
	fistFilter       *ecs.Filter3[Position, Velocity, FistState]
	snapPlayerFilter *ecs.Filter6[Position, Velocity, Health, Grounded, AttackState, Player]
	enemyFilter      *ecs.Filter4[Position, Velocity, Enemy, Grounded]

	tileMap *collision.TileMap

	intents map[int]protocol.Intent
}

// NewWorld creates an empty world with no level geometry. Call SetTileMap to
// install one before Update resolves ground collision.
func NewWorld() *World {
	w := &World{
		ecsWorld: ecs.NewWorld(),
		intents:  make(map[int]protocol.Intent),
	}

	w.playerMap = ecs.NewMap9[Position, Velocity, Collider, Sprite, Player, Health, Gravity, Grounded, AttackState](&w.ecsWorld)
	w.enemyMap = ecs.NewMap6[Position, Velocity, Collider, Sprite, Enemy, Grounded](&w.ecsWorld)
	w.fistMap = ecs.NewMap3[Position, Velocity, FistState](&w.ecsWorld)

	w.physicsFilter = ecs.NewFilter4[Position, Velocity, Collider, Grounded](&w.ecsWorld)
	w.playerFilter = ecs.NewFilter2[Position, Player](&w.ecsWorld)
	w.attackFilter = ecs.NewFilter6[Position, Velocity, Grounded, AttackState, Player, Collider](&w.ecsWorld)
	w.fistFilter = ecs.NewFilter3[Position, Velocity, FistState](&w.ecsWorld)
	w.snapPlayerFilter = ecs.NewFilter6[Position, Velocity, Health, Grounded, AttackState, Player](&w.ecsWorld)
	w.enemyFilter = ecs.NewFilter4[Position, Velocity, Enemy, Grounded](&w.ecsWorld)

	return w
}

// SetTileMap installs the level geometry used for ground collision.
func (w *World) SetTileMap(tm *collision.TileMap) {
	w.tileMap = tm
}

// SpawnPlayer creates a player-controlled entity.
func (w *World) SpawnPlayer(id int, name string, x, y float64) {
	w.playerMap.NewEntity(
		Position{X: x, Y: y},
		Velocity{},
		Collider{Width: 1, Height: 1},
		Sprite{ID: "player", Color: 0xffffff},
		Player{ID: id, Name: name},
		Health{Current: 100, Max: 100},
		Gravity{Scale: 1},
		Grounded{},
		AttackState{FacingRight: true},
	)
}

// SpawnEnemy creates an enemy entity of the given kind.
func (w *World) SpawnEnemy(kind string, x, y float64) {
	w.enemyMap.NewEntity(
		Position{X: x, Y: y},
		Velocity{},
		Collider{Width: 1, Height: 1},
		Sprite{ID: kind, Color: 0xff4040},
		Enemy{Kind: kind},
		Grounded{},
	)
}

// SetPlayerIntent records the intent bitmask the owning player sent for the
// tick about to be simulated. It persists until overwritten, matching the
// "held until released" semantics the charge-release attack depends on.
func (w *World) SetPlayerIntent(playerID int, intent protocol.Intent) {
	w.intents[playerID] = intent
}

// Update advances the world by exactly one tick.
func (w *World) Update() {
	w.Tick++
	w.runPlayers()
	w.runFists()
	w.runPhysics()
}

// runPlayers applies each player's held intent: horizontal movement, jumps
// while grounded, and the charge-release attack state machine.
func (w *World) runPlayers() {
	query := w.attackFilter.Query()
	for query.Next() {
		pos, vel, grounded, attack, player, _ := query.Get()
		intent := w.intents[player.ID]

		vel.X = 0
		if intent&protocol.IntentLeft != 0 {
			vel.X -= MoveSpeed
			attack.FacingRight = false
		}
		if intent&protocol.IntentRight != 0 {
			vel.X += MoveSpeed
			attack.FacingRight = true
		}
		if intent&protocol.IntentJump != 0 && grounded.OnGround {
			vel.Y = -jumpVelocity
			grounded.OnGround = false
		}

		holding := intent&protocol.IntentAttack != 0

		switch {
		case attack.Attacking:
			attack.CooldownTicks++
			if attack.CooldownTicks >= AttackCooldown {
				attack.Attacking = false
				attack.CooldownTicks = 0
			}
		case attack.Charging:
			if holding {
				if attack.ChargeTicks < MaxChargeTicks {
					attack.ChargeTicks++
				}
				continue
			}
			w.throwFist(*pos, attack)
			attack.Charging = false
			attack.ChargeTicks = 0
			attack.Attacking = true
			attack.CooldownTicks = 0
		default:
			if holding {
				attack.Charging = true
				attack.ChargeTicks = 0
			}
		}
	}
	query.Close()
}

func (w *World) throwFist(origin Position, attack *AttackState) {
	progress := float64(attack.ChargeTicks) / float64(MaxChargeTicks)
	if progress > 1 {
		progress = 1
	}
	distance := MinFistDistance + (MaxFistDistance-MinFistDistance)*progress

	dir := 1.0
	if !attack.FacingRight {
		dir = -1.0
	}

	w.fistMap.NewEntity(
		Position{X: origin.X, Y: origin.Y},
		Velocity{X: FistSpeed * dir},
		FistState{MaxDistance: distance},
	)
}

func (w *World) runFists() {
	query := w.fistFilter.Query()
	var spent []ecs.Entity
	for query.Next() {
		pos, vel, fist := query.Get()
		pos.X += vel.X
		pos.Y += vel.Y
		fist.Traveled += FistSpeed
		if fist.Traveled >= fist.MaxDistance {
			spent = append(spent, query.Entity())
		}
	}
	query.Close()

	for _, e := range spent {
		w.ecsWorld.RemoveEntity(e)
	}
}

func (w *World) runPhysics() {
	query := w.physicsFilter.Query()
	for query.Next() {
		pos, vel, collider, grounded := query.Get()

		vel.Y += gravityAccel
		pos.X += vel.X
		pos.Y += vel.Y

		if w.tileMap != nil {
			w.resolveGround(pos, vel, collider, grounded)
		} else {
			grounded.OnGround = false
		}
	}
	query.Close()
}

// resolveGround clamps an entity to the tile directly beneath its feet when
// it is falling into solid ground, matching the teacher's tile-based
// resolution style rather than full AABB sweep.
func (w *World) resolveGround(pos *Position, vel *Velocity, collider *Collider, grounded *Grounded) {
	footY := pos.Y + collider.OffsetY + collider.Height
	tileX := int(pos.X + collider.OffsetX + collider.Width/2)
	tileY := int(footY)

	if vel.Y >= 0 && w.tileMap.IsSolid(tileX, tileY) {
		pos.Y = float64(tileY) - collider.Height - collider.OffsetY
		vel.Y = 0
		grounded.OnGround = true
	} else {
		grounded.OnGround = false
	}
}

// MoveSpeed is the horizontal speed (units/tick) intents apply when moving.
const MoveSpeed = moveSpeed

// FistSpriteID is the sprite ID a renderer should use for thrown punches.
// Fist entities carry no Sprite component of their own since they are
// short-lived and always look the same.
const FistSpriteID = "fist"
