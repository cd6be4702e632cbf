package snapshot

import "testing"

func advanceSum(prev int, prevTick, nextTick int64) int {
	return prev + int(nextTick-prevTick)
}

func TestEnsureThroughBuildsStrideAlignedChain(t *testing.T) {
	c := New[int](8, 256)
	seed := func() (int64, int) { return 0, 0 }

	c.EnsureThrough(20, seed, advanceSum)

	// floor(20/8)*8 = 16, so snapshots at 0, 8, 16.
	last, ok := c.LastTick()
	if !ok || last != 16 {
		t.Fatalf("LastTick = %d,%v want 16,true", last, ok)
	}
	if c.Size() != 3 {
		t.Fatalf("Size = %d, want 3", c.Size())
	}
	snap, ok := c.NearestAtOrBefore(16)
	if !ok || snap.State != 16 {
		t.Fatalf("state at 16 = %d,%v want 16,true", snap.State, ok)
	}
}

func TestNearestAtOrBefore(t *testing.T) {
	c := New[int](8, 256)
	c.EnsureThrough(30, func() (int64, int) { return 0, 0 }, advanceSum)

	snap, ok := c.NearestAtOrBefore(10)
	if !ok || snap.Tick != 8 {
		t.Fatalf("nearest <=10 = tick %d,%v want 8,true", snap.Tick, ok)
	}

	_, ok = c.NearestAtOrBefore(-1)
	if ok {
		t.Fatal("expected no snapshot before tick 0")
	}
}

func TestCapacityEviction(t *testing.T) {
	c := New[int](8, 4) // window = 32 ticks
	c.EnsureThrough(200, func() (int64, int) { return 0, 0 }, advanceSum)

	if c.Size() != 4 {
		t.Fatalf("Size = %d, want 4 (capacity)", c.Size())
	}
	// ticks run 0,8,...,200 in steps of 8 -> last retained should sit at 200,
	// and StartTick should be 200 - 3*8 = 176.
	last, _ := c.LastTick()
	if last != 200 {
		t.Fatalf("LastTick = %d, want 200", last)
	}
	if c.StartTick() != 176 {
		t.Fatalf("StartTick = %d, want 176", c.StartTick())
	}
}

func TestInvalidateFromClearsTailOnly(t *testing.T) {
	c := New[int](8, 256)
	c.EnsureThrough(40, func() (int64, int) { return 0, 0 }, advanceSum)

	c.InvalidateFrom(24) // drop snapshots at 24, 32, 40

	last, ok := c.LastTick()
	if !ok || last != 16 {
		t.Fatalf("LastTick after invalidate = %d,%v want 16,true", last, ok)
	}
}

func TestInvalidateFromAtOrBeforeStartClearsAll(t *testing.T) {
	c := New[int](8, 256)
	c.EnsureThrough(40, func() (int64, int) { return 0, 0 }, advanceSum)

	c.InvalidateFrom(0)
	if c.Size() != 0 {
		t.Fatalf("Size = %d, want 0", c.Size())
	}
}

func TestInvalidateFromPastLastIsNoop(t *testing.T) {
	c := New[int](8, 256)
	c.EnsureThrough(16, func() (int64, int) { return 0, 0 }, advanceSum)

	sizeBefore := c.Size()
	c.InvalidateFrom(1000)
	if c.Size() != sizeBefore {
		t.Fatalf("Size changed on no-op invalidate: %d -> %d", sizeBefore, c.Size())
	}
}

func TestEnsureThroughRebuildsAfterFullInvalidate(t *testing.T) {
	c := New[int](8, 256)
	c.EnsureThrough(40, func() (int64, int) { return 0, 0 }, advanceSum)
	c.InvalidateFrom(0) // empties the cache entirely

	reseeded := false
	c.EnsureThrough(40, func() (int64, int) {
		reseeded = true
		return 0, 100 // a new post changed the baseline at tick 0
	}, advanceSum)

	if !reseeded {
		t.Fatal("expected seed() to be called after full invalidation")
	}
	snap, ok := c.NearestAtOrBefore(40)
	if !ok || snap.State != 140 {
		t.Fatalf("state at 40 = %d,%v want 140,true", snap.State, ok)
	}
}

func TestCacheEquivalenceWithFullReplay(t *testing.T) {
	c := New[int](8, 256)
	c.EnsureThrough(53, func() (int64, int) { return 0, 0 }, advanceSum)
	snap, ok := c.NearestAtOrBefore(53)
	if !ok {
		t.Fatal("expected a snapshot")
	}
	// full replay from 0 to snap.Tick using the same advance function
	full := advanceSum(0, 0, snap.Tick)
	if full != snap.State {
		t.Fatalf("cached state %d != full replay %d", snap.State, full)
	}
}
