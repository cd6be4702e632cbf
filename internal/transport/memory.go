package transport

import (
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/studiovibi/vibinet/internal/clock"
	"github.com/studiovibi/vibinet/internal/protocol"
)

// Network is an in-memory broker simulator. It multiplexes any number of
// MemoryTransport clients over shared, append-only per-room post logs,
// reproducing the same delivery guarantees a real broker gives (arrival
// order not guaranteed relative to index, duplicates possible) without a
// real socket. It is grounded in the same style of deterministic in-memory
// fake used for consensus/replay testing across the retrieved pack
// (raft-style test transports).
type Network struct {
	mu    sync.Mutex
	rooms map[string][]protocol.Post // room -> log, position == index

	watchersMu sync.Mutex
	watchers   map[string][]*MemoryTransport

	nowMS func() int64
}

// NewNetwork creates an empty simulated broker. nowMS supplies the
// broker-side clock (server_time); pass nil to use wall-clock time.
func NewNetwork(nowMS func() int64) *Network {
	if nowMS == nil {
		nowMS = func() int64 { return time.Now().UnixMilli() }
	}
	return &Network{
		rooms:    make(map[string][]protocol.Post),
		watchers: make(map[string][]*MemoryTransport),
		nowMS:    nowMS,
	}
}

func (n *Network) addWatcher(room string, t *MemoryTransport) {
	n.watchersMu.Lock()
	defer n.watchersMu.Unlock()
	n.watchers[room] = append(n.watchers[room], t)
}

func (n *Network) removeWatcher(room string, t *MemoryTransport) {
	n.watchersMu.Lock()
	defer n.watchersMu.Unlock()
	list := n.watchers[room]
	for i, w := range list {
		if w == t {
			n.watchers[room] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Link represents simulated network conditions applied independently to
// each direction of a MemoryTransport: a base delay, jitter added on top,
// and a duplicate-delivery probability.
type Link struct {
	Delay      time.Duration
	Jitter     time.Duration
	DupRate    float64 // probability in [0,1] a delivery is duplicated
	rng        *rand.Rand
}

func (l Link) delay() time.Duration {
	if l.Jitter <= 0 {
		return l.Delay
	}
	return l.Delay + time.Duration(l.rng.Int63n(int64(l.Jitter)))
}

func (l Link) duplicates() bool {
	return l.rng != nil && l.DupRate > 0 && l.rng.Float64() < l.DupRate
}

// NewTransport creates a MemoryTransport attached to net, with the given
// simulated uplink (client->broker) and downlink (broker->client) link
// conditions. A fresh *rand.Rand seeded from seed drives jitter/dup
// decisions so runs are reproducible.
func (n *Network) NewTransport(uplink, downlink Link, seed int64) *MemoryTransport {
	rng := rand.New(rand.NewSource(seed))
	uplink.rng = rng
	downlink.rng = rng

	t := &MemoryTransport{
		net:      n,
		uplink:   uplink,
		downlink: downlink,
		clock:    clock.New(),
		handlers: make(map[string]Handler),
	}
	// The simulator assumes the broker connection is already open; fire a
	// synthetic probe immediately so Engines bootstrap without waiting.
	now := t.clock.Probe()
	t.clock.Observe(now, now, n.nowMS())
	return t
}

// MemoryTransport is a Transport implementation backed by a Network. It
// requires no real sockets and is intended for tests.
type MemoryTransport struct {
	net      *Network
	uplink   Link
	downlink Link
	clock    *clock.Clock

	mu       sync.Mutex
	handlers map[string]Handler
}

func (t *MemoryTransport) OnSync(cb func()) { t.clock.OnSync(cb) }

func (t *MemoryTransport) ServerTime() (int64, error) { return t.clock.ServerTime() }

func (t *MemoryTransport) Ping() (int64, bool) { return t.clock.Ping() }

func (t *MemoryTransport) Watch(room string, h Handler) error {
	t.mu.Lock()
	if _, dup := t.handlers[room]; dup {
		t.mu.Unlock()
		return ErrDuplicateHandler
	}
	t.handlers[room] = h
	t.mu.Unlock()

	t.net.addWatcher(room, t)
	return nil
}

func (t *MemoryTransport) Unwatch(room string) {
	t.mu.Lock()
	delete(t.handlers, room)
	t.mu.Unlock()

	t.net.removeWatcher(room, t)
}

func (t *MemoryTransport) deliver(room string, p protocol.Post) {
	deliverOnce := func() {
		t.mu.Lock()
		h, ok := t.handlers[room]
		t.mu.Unlock()
		if ok {
			h(p)
		}
	}
	delay := t.downlink.delay()
	time.AfterFunc(delay, deliverOnce)
	if t.downlink.duplicates() {
		time.AfterFunc(t.downlink.delay(), deliverOnce)
	}
}

// Load requests backlog from the broker; each existing entry at index >=
// from is delivered (with simulated downlink delay) through the room's
// watch handler.
func (t *MemoryTransport) Load(room string, from int64) error {
	go func() {
		time.Sleep(t.uplink.delay())
		t.net.mu.Lock()
		log := append([]protocol.Post(nil), t.net.rooms[room]...)
		t.net.mu.Unlock()

		for _, p := range log {
			if p.Index >= from {
				t.deliver(room, p)
			}
		}
	}()
	return nil
}

// Post appends data to the room's log (after simulated uplink delay) and
// returns the generated name synchronously.
func (t *MemoryTransport) Post(room string, data []byte) (string, error) {
	name := uuid.NewString()
	clientTime, err := t.ServerTime()
	if err != nil {
		return "", err
	}

	go func() {
		time.Sleep(t.uplink.delay())

		t.net.mu.Lock()
		log := t.net.rooms[room]
		index := int64(len(log))
		p := protocol.Post{
			Room:       room,
			Index:      index,
			ServerTime: t.net.nowMS(),
			ClientTime: clientTime,
			Name:       name,
			Data:       data,
		}
		t.net.rooms[room] = append(log, p)
		t.net.mu.Unlock()

		t.broadcast(room, p)
	}()

	return name, nil
}

// broadcast delivers p to every transport currently watching room,
// including the poster itself (the echo the Engine dedupes/reconciles).
func (t *MemoryTransport) broadcast(room string, p protocol.Post) {
	t.net.watchersMu.Lock()
	watchers := append([]*MemoryTransport(nil), t.net.watchers[room]...)
	t.net.watchersMu.Unlock()
	for _, w := range watchers {
		w.deliver(room, p)
	}
}
