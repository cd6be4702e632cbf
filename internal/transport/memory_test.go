package transport

import (
	"sync"
	"testing"
	"time"

	"github.com/studiovibi/vibinet/internal/protocol"
)

func noDelay() Link { return Link{} }

func TestMemoryTransportSyncsImmediately(t *testing.T) {
	net := NewNetwork(nil)
	tr := net.NewTransport(noDelay(), noDelay(), 1)

	synced := make(chan struct{})
	tr.OnSync(func() { close(synced) })

	select {
	case <-synced:
	case <-time.After(time.Second):
		t.Fatal("clock never synced")
	}
	if _, err := tr.ServerTime(); err != nil {
		t.Fatalf("ServerTime() error = %v", err)
	}
}

func TestMemoryTransportPostDeliversToWatchers(t *testing.T) {
	net := NewNetwork(nil)
	poster := net.NewTransport(noDelay(), noDelay(), 1)
	watcher := net.NewTransport(noDelay(), noDelay(), 2)

	var mu sync.Mutex
	var got []protocol.Post
	received := make(chan struct{}, 4)

	err := watcher.Watch("room1", func(p protocol.Post) {
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
		received <- struct{}{}
	})
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	name, err := poster.Post("room1", []byte("hello"))
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if name == "" {
		t.Fatal("expected non-empty post name")
	}

	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("post never delivered to watcher")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("len(got) = %d, want 1", len(got))
	}
	if got[0].Name != name {
		t.Fatalf("delivered name = %q, want %q", got[0].Name, name)
	}
	if got[0].Index != 0 {
		t.Fatalf("delivered index = %d, want 0", got[0].Index)
	}
}

func TestMemoryTransportWatchDuplicateRejected(t *testing.T) {
	net := NewNetwork(nil)
	tr := net.NewTransport(noDelay(), noDelay(), 1)

	if err := tr.Watch("room1", func(protocol.Post) {}); err != nil {
		t.Fatalf("first Watch() error = %v", err)
	}
	if err := tr.Watch("room1", func(protocol.Post) {}); err != ErrDuplicateHandler {
		t.Fatalf("second Watch() error = %v, want ErrDuplicateHandler", err)
	}
}

func TestMemoryTransportLoadReplaysBacklog(t *testing.T) {
	net := NewNetwork(nil)
	poster := net.NewTransport(noDelay(), noDelay(), 1)

	if _, err := poster.Post("room1", []byte("a")); err != nil {
		t.Fatal(err)
	}
	if _, err := poster.Post("room1", []byte("b")); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond) // let both posts land in the log

	late := net.NewTransport(noDelay(), noDelay(), 3)
	received := make(chan protocol.Post, 4)
	if err := late.Watch("room1", func(p protocol.Post) { received <- p }); err != nil {
		t.Fatal(err)
	}
	if err := late.Load("room1", 0); err != nil {
		t.Fatal(err)
	}

	seen := map[int64]bool{}
	for i := 0; i < 2; i++ {
		select {
		case p := <-received:
			seen[p.Index] = true
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for backlog entry %d", i)
		}
	}
	if !seen[0] || !seen[1] {
		t.Fatalf("missing backlog entries: %v", seen)
	}
}

func TestMemoryTransportUnwatchStopsDelivery(t *testing.T) {
	net := NewNetwork(nil)
	poster := net.NewTransport(noDelay(), noDelay(), 1)
	watcher := net.NewTransport(noDelay(), noDelay(), 2)

	received := make(chan protocol.Post, 4)
	if err := watcher.Watch("room1", func(p protocol.Post) { received <- p }); err != nil {
		t.Fatal(err)
	}
	watcher.Unwatch("room1")

	if _, err := poster.Post("room1", []byte("x")); err != nil {
		t.Fatal(err)
	}

	select {
	case p := <-received:
		t.Fatalf("unexpected delivery after Unwatch: %v", p)
	case <-time.After(100 * time.Millisecond):
	}
}
