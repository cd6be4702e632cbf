// Package engine orchestrates a clock, a transport, a post timeline, and an
// optional snapshot cache into the single object a host application drives:
// feed it ticks and player intent, ask it for the state to render.
package engine

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/studiovibi/vibinet/internal/protocol"
	"github.com/studiovibi/vibinet/internal/snapshot"
	"github.com/studiovibi/vibinet/internal/timeline"
	"github.com/studiovibi/vibinet/internal/transport"
)

// OnTick advances state by one tick, independent of any post. It must be a
// pure function: the same (state, tick) pair always yields the same result.
type OnTick[S any] func(state S, tick int64) S

// OnPost applies a single post's effect to state. Like OnTick, it must be
// pure — the Engine freely replays it from cached checkpoints.
type OnPost[S any] func(state S, p protocol.Post) S

// Smooth blends the lagged authoritative state with the freshest predicted
// state into what the host should render this frame.
type Smooth[S any] func(remoteState, localState S) S

// Config bundles the tunables New takes beyond the state/transport wiring.
type Config struct {
	TickRate       int
	ToleranceMS    int64
	CacheEnabled   bool
	SnapshotStride int64
	SnapshotCount  int
}

// DefaultConfig mirrors typical defaults: cache on, an 8-tick stride and a
// 256-entry window (2048 ticks, about 85 seconds of history at 24 ticks/s).
func DefaultConfig(tickRate int, toleranceMS int64) Config {
	return Config{
		TickRate:       tickRate,
		ToleranceMS:    toleranceMS,
		CacheEnabled:   true,
		SnapshotStride: 8,
		SnapshotCount:  256,
	}
}

// Engine is the per-room orchestrator: one instance owns one Transport
// watch registration and drives one Timeline/Cache pair. It assumes a
// single logical thread of control, exactly like the teacher's session
// loop — its own mutex exists only to guard against the Transport invoking
// callbacks from a different goroutine (its read pump), not to support
// concurrent callers.
type Engine[S any] struct {
	mu sync.Mutex

	room   string
	init   S
	onTick OnTick[S]
	onPost OnPost[S]
	smooth Smooth[S]

	cfg          timeline.Config
	cacheEnabled bool
	cache        *snapshot.Cache[S]
	tl           *timeline.Timeline

	transport transport.Transport
	state     atomic.Int32
	log       zerolog.Logger
}

// New constructs an Engine for room and immediately registers for the
// Transport's sync notification; the watch/load bootstrap happens
// asynchronously once the clock reports synced.
func New[S any](room string, init S, onTick OnTick[S], onPost OnPost[S], smooth Smooth[S], cfg Config, tr transport.Transport, log zerolog.Logger) *Engine[S] {
	tlCfg := timeline.Config{TickRate: cfg.TickRate, ToleranceMS: cfg.ToleranceMS}

	e := &Engine[S]{
		room:         room,
		init:         init,
		onTick:       onTick,
		onPost:       onPost,
		smooth:       smooth,
		cfg:          tlCfg,
		cacheEnabled: cfg.CacheEnabled,
		transport:    tr,
		log:          log,
	}
	e.state.Store(int32(StateSyncing))

	if cfg.CacheEnabled {
		e.cache = snapshot.New[S](cfg.SnapshotStride, cfg.SnapshotCount)
		e.tl = timeline.New(tlCfg, e.cache)
	} else {
		e.tl = timeline.New(tlCfg, nil)
	}

	tr.OnSync(e.bootstrap)
	return e
}

// bootstrap runs once, the moment the Transport's clock reports synced: it
// registers the room's watch handler and requests the full backlog.
func (e *Engine[S]) bootstrap() {
	e.mu.Lock()
	e.state.Store(int32(StateSynced))
	e.mu.Unlock()

	if err := e.transport.Watch(e.room, e.handlePost); err != nil {
		e.log.Error().Err(err).Str("room", e.room).Msg("watch registration failed")
		return
	}
	if err := e.transport.Load(e.room, 0); err != nil {
		e.log.Error().Err(err).Str("room", e.room).Msg("backlog load failed")
	}
}

// handlePost is the Transport's watch callback: reconcile against any live
// local post with the same name, then fold the authoritative post in.
func (e *Engine[S]) handlePost(p protocol.Post) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tl.Reconcile(p)
}

// State reports the Engine's current lifecycle phase.
func (e *Engine[S]) State() State {
	return State(e.state.Load())
}

// InitialTick returns the tick of the index-0 post, if seen yet.
func (e *Engine[S]) InitialTick() (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tl.InitialTick()
}

// InitialTime returns the official_time of the index-0 post, if seen yet.
func (e *Engine[S]) InitialTime() (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tl.InitialTime()
}

// PostCount returns the number of retained authoritative posts.
func (e *Engine[S]) PostCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tl.PostCount()
}

// ServerTime returns the Engine's estimate of the broker's current time.
func (e *Engine[S]) ServerTime() (int64, error) {
	ms, err := e.transport.ServerTime()
	if err != nil {
		return 0, ErrNotSynced
	}
	return ms, nil
}

// ServerTick is ServerTime converted to a tick via TimeToTick.
func (e *Engine[S]) ServerTick() (int64, error) {
	ms, err := e.ServerTime()
	if err != nil {
		return 0, err
	}
	return e.cfg.TimeToTick(ms), nil
}

// TimeToTick exposes the Engine's tick-rate conversion for host code.
func (e *Engine[S]) TimeToTick(ms int64) int64 {
	return e.cfg.TimeToTick(ms)
}

// ComputeStateAt returns the deterministic state at atTick.
func (e *Engine[S]) ComputeStateAt(atTick int64) S {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.computeStateAtLocked(atTick)
}

// ComputeCurrentState returns the state at the Engine's current server tick.
func (e *Engine[S]) ComputeCurrentState() (S, error) {
	tick, err := e.ServerTick()
	if err != nil {
		var zero S
		return zero, err
	}
	return e.ComputeStateAt(tick), nil
}

// ComputeRenderState blends a lagged authoritative state with the freshest
// predicted one, choosing the lag far enough in the past that the
// authoritative log for it is very likely complete.
func (e *Engine[S]) ComputeRenderState() (S, error) {
	currTick, err := e.ServerTick()
	if err != nil {
		var zero S
		return zero, err
	}

	tickMS := 1000.0 / float64(e.cfg.TickRate)
	tolTicks := ceilDiv(float64(e.cfg.ToleranceMS), tickMS)

	remoteLag := tolTicks
	if rtt, ok := e.transport.Ping(); ok {
		halfRTTTicks := ceilDiv(float64(rtt)/2, tickMS)
		if lag := halfRTTTicks + 1; lag > remoteLag {
			remoteLag = lag
		}
	}

	remoteTick := currTick - remoteLag
	if remoteTick < 0 {
		remoteTick = 0
	}

	e.mu.Lock()
	remoteState := e.computeStateAtLocked(remoteTick)
	localState := e.computeStateAtLocked(currTick)
	e.mu.Unlock()

	return e.smooth(remoteState, localState), nil
}

// Post optimistically publishes data and folds it into the Timeline as a
// local post, ahead of the broker's authoritative echo.
func (e *Engine[S]) Post(data []byte) (string, error) {
	if e.State() != StateSynced {
		return "", ErrNotSynced
	}

	name, err := e.transport.Post(e.room, data)
	if err != nil {
		return "", err
	}

	now, err := e.ServerTime()
	if err != nil {
		return "", err
	}

	lp := protocol.Post{
		Room:       e.room,
		Index:      protocol.LocalIndex,
		ServerTime: now,
		ClientTime: now,
		Name:       name,
		Data:       data,
	}

	e.mu.Lock()
	e.tl.AddLocalPost(lp)
	e.mu.Unlock()

	return name, nil
}

func (e *Engine[S]) computeStateAtLocked(atTick int64) S {
	initTick, ok := e.tl.InitialTick()
	if !ok || atTick < initTick {
		return e.init
	}
	baseTick := initTick - 1

	if !e.cacheEnabled {
		return e.replayRange(e.init, baseTick, atTick)
	}

	seed := func() (int64, S) { return baseTick, e.init }
	advance := func(prev S, prevTick, nextTick int64) S { return e.replayRange(prev, prevTick, nextTick) }
	if pruned := e.cache.EnsureThrough(atTick, seed, advance); pruned > 0 {
		e.tl.Prune(e.cache.StartTick())
	}

	if atTick < e.cache.StartTick() {
		snap, _ := e.cache.NearestAtOrBefore(e.cache.StartTick())
		return snap.State
	}

	snap, ok := e.cache.NearestAtOrBefore(atTick)
	if !ok {
		return e.init
	}
	if snap.Tick == atTick {
		return snap.State
	}
	return e.replayRange(snap.State, snap.Tick, atTick)
}

// replayRange applies on_tick then each tick's bucket of posts, in order,
// for every tick in (fromTick, toTick].
func (e *Engine[S]) replayRange(state S, fromTick, toTick int64) S {
	for tick := fromTick + 1; tick <= toTick; tick++ {
		state = e.onTick(state, tick)
		if b, ok := e.tl.Bucket(tick); ok {
			for _, p := range b.Applied() {
				state = e.onPost(state, p)
			}
		}
	}
	return state
}

func ceilDiv(a, b float64) int64 {
	return int64(math.Ceil(a / b))
}
