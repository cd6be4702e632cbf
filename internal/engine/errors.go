package engine

import "errors"

// ErrNotSynced is returned by Post and ServerTime before the Engine's clock
// has completed its first probe round-trip.
var ErrNotSynced = errors.New("engine: not synced")
