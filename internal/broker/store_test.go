package broker

import (
	"testing"
)

func TestRoomLogAppendAssignsDenseIndex(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	rl, err := store.Room("arena")
	if err != nil {
		t.Fatalf("Room() error = %v", err)
	}

	p0, err := rl.Append(100, 90, "a", []byte("x"))
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	p1, err := rl.Append(200, 190, "b", []byte("y"))
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	if p0.Index != 0 || p1.Index != 1 {
		t.Fatalf("indices = %d, %d, want 0, 1", p0.Index, p1.Index)
	}
	if rl.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", rl.Len())
	}
}

func TestRoomLogFromFiltersByIndex(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewStore(dir)
	rl, _ := store.Room("arena")

	for i, name := range []string{"a", "b", "c"} {
		if _, err := rl.Append(int64(i), int64(i), name, nil); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	got := rl.From(1)
	if len(got) != 2 || got[0].Name != "b" || got[1].Name != "c" {
		t.Fatalf("From(1) = %+v, want [b c]", got)
	}

	if got := rl.From(10); got != nil {
		t.Fatalf("From(10) = %+v, want nil", got)
	}
}

func TestRoomLogSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewStore(dir)
	rl, _ := store.Room("arena")
	if _, err := rl.Append(1, 1, "a", []byte("payload")); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	reopened, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	rl2, err := reopened.Room("arena")
	if err != nil {
		t.Fatalf("Room() error = %v", err)
	}

	got := rl2.From(0)
	if len(got) != 1 || got[0].Name != "a" || string(got[0].Data) != "payload" {
		t.Fatalf("From(0) after reopen = %+v", got)
	}
}
