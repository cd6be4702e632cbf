// Package clock estimates the offset between the local clock and the
// broker's authoritative clock via periodic ping exchanges.
package clock

import (
	"errors"
	"math"
	"sync"
	"time"
)

// ErrNotSynced is returned by ServerTime before the first successful probe
// round-trip completes.
var ErrNotSynced = errors.New("clock: not synced")

// PingInterval is how often a driver (the Transport implementation) should
// call Probe to send a fresh get_time request.
const PingInterval = 2 * time.Second

// Clock tracks the offset between local time and broker time. It does not
// own a socket; a Transport implementation calls Probe before sending
// get_time and Observe when the matching info_time arrives.
//
// The zero value is not ready to use; construct with New.
type Clock struct {
	mu sync.Mutex

	nowFunc func() int64

	synced      bool
	offsetMS    int64
	lowestPing  int64
	lastPing    int64
	haveAnyPing bool

	onSync []func()
}

// Option configures a Clock at construction time.
type Option func(*Clock)

// WithNowFunc overrides the local-time source, for deterministic tests.
func WithNowFunc(f func() int64) Option {
	return func(c *Clock) { c.nowFunc = f }
}

// New creates an unsynced Clock.
func New(opts ...Option) *Clock {
	c := &Clock{
		nowFunc:    func() int64 { return time.Now().UnixMilli() },
		lowestPing: math.MaxInt64,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Probe records a probe's send time, for the caller to stamp on its
// outgoing get_time message.
func (c *Clock) Probe() (sentAt int64) {
	return c.nowFunc()
}

// Observe processes an info_time reply: sentAt is the local time the probe
// was sent (from Probe), recvAt is the local time the reply arrived, and
// serverTime is the broker's reported time at send.
func (c *Clock) Observe(sentAt, recvAt, serverTime int64) {
	rtt := recvAt - sentAt
	if rtt < 0 {
		rtt = 0
	}

	c.mu.Lock()
	var toFire []func()
	if rtt < c.lowestPing {
		c.lowestPing = rtt
		c.offsetMS = serverTime - (sentAt+recvAt)/2
	}
	c.lastPing = rtt
	c.haveAnyPing = true

	if !c.synced {
		c.synced = true
		toFire = c.onSync
		c.onSync = nil
	}
	c.mu.Unlock()

	for _, cb := range toFire {
		cb()
	}
}

// OnSync registers cb to run exactly once after the first successful
// probe. If the clock is already synced, cb fires immediately (inline).
func (c *Clock) OnSync(cb func()) {
	c.mu.Lock()
	if c.synced {
		c.mu.Unlock()
		cb()
		return
	}
	c.onSync = append(c.onSync, cb)
	c.mu.Unlock()
}

// Synced reports whether at least one probe round-trip has completed.
func (c *Clock) Synced() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.synced
}

// ServerTime returns the estimated current broker time, or ErrNotSynced
// before the first successful probe.
func (c *Clock) ServerTime() (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.synced {
		return 0, ErrNotSynced
	}
	return c.nowFunc() + c.offsetMS, nil
}

// Ping returns the last observed RTT in milliseconds and true, or
// (0, false) if no probe has completed yet.
func (c *Clock) Ping() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.haveAnyPing {
		return 0, false
	}
	return c.lastPing, true
}
