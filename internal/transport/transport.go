// Package transport defines the Transport Adapter the Engine consumes
// and provides two implementations: a real WebSocket client
// (WSTransport) and an in-memory simulator (MemoryTransport) for tests.
package transport

import (
	"errors"

	"github.com/studiovibi/vibinet/internal/protocol"
)

// ErrNotOpen is returned by Post when the transport is not ready to send.
var ErrNotOpen = errors.New("transport: not open")

// ErrDuplicateHandler is returned by Watch when a handler is already
// registered for the room.
var ErrDuplicateHandler = errors.New("transport: room already has a watch handler")

// Handler receives posts delivered for a watched room, live or backfilled.
type Handler func(protocol.Post)

// Transport is the contract the Engine depends on. Exactly one handler
// may be registered per room at a time.
type Transport interface {
	// OnSync invokes cb exactly once after the clock reports synced.
	OnSync(cb func())

	// Watch subscribes to live remote posts for room. Fails with
	// ErrDuplicateHandler if room already has a handler registered.
	Watch(room string, h Handler) error

	// Unwatch removes the handler registered for room, if any.
	Unwatch(room string)

	// Load requests backlog for room starting at index from; arrivals flow
	// through the room's watch handler as if live.
	Load(room string, from int64) error

	// Post generates a fresh opaque name, sends the post, and returns the
	// name synchronously. Fails with ErrNotOpen if not ready.
	Post(room string, data []byte) (name string, err error)

	// ServerTime delegates to the underlying Clock.
	ServerTime() (int64, error)

	// Ping delegates to the underlying Clock: last RTT in ms, or
	// (0, false) if no probe has completed yet.
	Ping() (int64, bool)
}
