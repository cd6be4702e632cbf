package broker

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/studiovibi/vibinet/internal/protocol"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// logLine is the on-disk shape of one room-log entry. Line position in the
// file equals the post's index.
type logLine struct {
	ServerTime int64  `json:"server_time"`
	ClientTime int64  `json:"client_time"`
	Name       string `json:"name"`
	Data       []byte `json:"data"`
}

// Store owns one append-only NDJSON file per room under dir.
type Store struct {
	dir string

	mu    sync.Mutex
	rooms map[string]*RoomLog
}

// NewStore creates dir if needed and returns a Store rooted there.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("broker: create data dir: %w", err)
	}
	return &Store{dir: dir, rooms: make(map[string]*RoomLog)}, nil
}

// Room returns the RoomLog for name, opening (and replaying) its file from
// disk on first access and caching it for subsequent calls.
func (s *Store) Room(name string) (*RoomLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rl, ok := s.rooms[name]; ok {
		return rl, nil
	}

	rl, err := openRoomLog(filepath.Join(s.dir, name+".ndjson"), name)
	if err != nil {
		return nil, err
	}
	s.rooms[name] = rl
	return rl, nil
}

// RoomLog is one room's append-only post log, kept on disk and mirrored in
// memory so Load/From queries never re-read the file.
type RoomLog struct {
	mu      sync.Mutex
	room    string
	file    *os.File
	entries []protocol.Post
}

func openRoomLog(path, room string) (*RoomLog, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("broker: open room log %s: %w", room, err)
	}

	rl := &RoomLog{room: room, file: f}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var idx int64
	for scanner.Scan() {
		var line logLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			return nil, fmt.Errorf("broker: corrupt room log %s at line %d: %w", room, idx, err)
		}
		rl.entries = append(rl.entries, protocol.Post{
			Room:       room,
			Index:      idx,
			ServerTime: line.ServerTime,
			ClientTime: line.ClientTime,
			Name:       line.Name,
			Data:       line.Data,
		})
		idx++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("broker: scan room log %s: %w", room, err)
	}

	return rl, nil
}

// Append assigns the next dense index, persists the line, and returns the
// resulting authoritative Post.
func (rl *RoomLog) Append(serverTime, clientTime int64, name string, data []byte) (protocol.Post, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	line := logLine{ServerTime: serverTime, ClientTime: clientTime, Name: name, Data: data}
	enc, err := json.Marshal(line)
	if err != nil {
		return protocol.Post{}, err
	}
	enc = append(enc, '\n')
	if _, err := rl.file.Write(enc); err != nil {
		return protocol.Post{}, fmt.Errorf("broker: append to room log %s: %w", rl.room, err)
	}

	p := protocol.Post{
		Room:       rl.room,
		Index:      int64(len(rl.entries)),
		ServerTime: serverTime,
		ClientTime: clientTime,
		Name:       name,
		Data:       data,
	}
	rl.entries = append(rl.entries, p)
	return p, nil
}

// From returns every retained post with Index >= from, in index order. A
// from past the end of the log yields nil, not an error — the broker has
// nothing stale to complain about, only nothing left to send.
func (rl *RoomLog) From(from int64) []protocol.Post {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if from < 0 {
		from = 0
	}
	if from >= int64(len(rl.entries)) {
		return nil
	}
	out := make([]protocol.Post, len(rl.entries)-int(from))
	copy(out, rl.entries[from:])
	return out
}

// Len returns the number of retained posts (the index the next Append will
// receive).
func (rl *RoomLog) Len() int64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return int64(len(rl.entries))
}
