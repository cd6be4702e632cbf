// Package timeline canonicalizes the authoritative application order of
// posts at each tick and supports dedup and local/remote reconciliation.
package timeline

import (
	"sort"

	"github.com/studiovibi/vibinet/internal/protocol"
)

// Config derives the deterministic OfficialTime/OfficialTick of a post.
type Config struct {
	TickRate    int   // ticks per second
	ToleranceMS int64 // max ms a client clock is trusted to lead the broker
}

// OfficialTime applies the rule:
//
//	official_time = client_time if client_time > server_time - tolerance
//	                else server_time - tolerance
func (c Config) OfficialTime(p protocol.Post) int64 {
	floor := p.ServerTime - c.ToleranceMS
	if p.ClientTime > floor {
		return p.ClientTime
	}
	return floor
}

// OfficialTick converts a post's OfficialTime to a tick via
// floor(time*tick_rate/1000).
func (c Config) OfficialTick(p protocol.Post) int64 {
	return floorDiv(c.OfficialTime(p)*int64(c.TickRate), 1000)
}

// TimeToTick converts an arbitrary ms timestamp to a tick using the same
// rounding rule as OfficialTick.
func (c Config) TimeToTick(ms int64) int64 {
	return floorDiv(ms*int64(c.TickRate), 1000)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// Cache is the narrow slice of the snapshot cache the Timeline needs: the
// current retained window's lower edge, and a way to invalidate checkpoints
// made stale by a late-arriving post. snapshot.Cache[S] satisfies this for
// any S.
type Cache interface {
	StartTick() int64
	InvalidateFrom(tick int64)
}

// Bucket groups the posts that apply at a single tick: remote first (sorted
// by ascending index), then local in insertion order. The concatenation
// Remote++Local is the canonical application order.
type Bucket struct {
	Remote []protocol.Post
	Local  []protocol.Post
}

// Applied returns the full ordered sequence of posts to apply at this tick.
func (b Bucket) Applied() []protocol.Post {
	out := make([]protocol.Post, 0, len(b.Remote)+len(b.Local))
	out = append(out, b.Remote...)
	out = append(out, b.Local...)
	return out
}

// Timeline is the dedup/ordering store for a single room.
type Timeline struct {
	cfg   Config
	cache Cache

	remotePosts map[int64]protocol.Post  // index -> post
	localPosts  map[string]protocol.Post // name -> local post
	buckets     map[int64]*Bucket

	initialTickSet bool
	initialTick    int64
	initialTime    int64
}

// New creates an empty Timeline. cache may be nil (e.g. when the engine's
// cache is disabled); in that case no window pruning happens here and
// invalidation is a no-op.
func New(cfg Config, cache Cache) *Timeline {
	return &Timeline{
		cfg:         cfg,
		cache:       cache,
		remotePosts: make(map[int64]protocol.Post),
		localPosts:  make(map[string]protocol.Post),
		buckets:     make(map[int64]*Bucket),
	}
}

// InitialTick returns the tick of index-0 post, and whether it has arrived.
func (tl *Timeline) InitialTick() (int64, bool) {
	return tl.initialTick, tl.initialTickSet
}

// InitialTime returns the official_time of the index-0 post.
func (tl *Timeline) InitialTime() (int64, bool) {
	return tl.initialTime, tl.initialTickSet
}

// PostCount returns the number of retained authoritative (remote) posts.
func (tl *Timeline) PostCount() int {
	return len(tl.remotePosts)
}

// OfficialTick exposes the configured tick derivation for callers (e.g. the
// Engine) that need it without reaching into Config directly.
func (tl *Timeline) OfficialTick(p protocol.Post) int64 {
	return tl.cfg.OfficialTick(p)
}

func (tl *Timeline) startTick() int64 {
	if tl.cache == nil {
		return 0
	}
	return tl.cache.StartTick()
}

func (tl *Timeline) invalidateFrom(tick int64) {
	if tl.cache != nil {
		tl.cache.InvalidateFrom(tick)
	}
}

func (tl *Timeline) bucket(tick int64) *Bucket {
	b, ok := tl.buckets[tick]
	if !ok {
		b = &Bucket{}
		tl.buckets[tick] = b
	}
	return b
}

// Bucket returns the bucket at tick, if any posts have landed there.
func (tl *Timeline) Bucket(tick int64) (Bucket, bool) {
	b, ok := tl.buckets[tick]
	if !ok {
		return Bucket{}, false
	}
	return *b, true
}

// AddRemotePost records an authoritative post from the broker, latching the
// initial tick on first arrival of index 0, deduping by index, and dropping
// anything that falls before the retained window.
func (tl *Timeline) AddRemotePost(p protocol.Post) {
	tick := tl.cfg.OfficialTick(p)

	if p.Index == 0 && !tl.initialTickSet {
		tl.initialTime = tl.cfg.OfficialTime(p)
		tl.initialTick = tick
		tl.initialTickSet = true
	}

	if tl.cache != nil && tick < tl.startTick() {
		return // BeforeWindow: dropped silently
	}
	if _, dup := tl.remotePosts[p.Index]; dup {
		return // duplicate index: idempotent no-op
	}

	tl.remotePosts[p.Index] = p
	b := tl.bucket(tick)
	b.Remote = insertSortedByIndex(b.Remote, p)

	tl.invalidateFrom(tick)
}

// AddLocalPost records an optimistic, not-yet-authoritative post. A re-post
// under the same name replaces the prior entry rather than duplicating it.
func (tl *Timeline) AddLocalPost(lp protocol.Post) {
	tl.RemoveLocalPost(lp.Name)

	tick := tl.cfg.OfficialTick(lp)
	if tl.cache != nil && tick < tl.startTick() {
		return
	}

	tl.localPosts[lp.Name] = lp
	b := tl.bucket(tick)
	b.Local = append(b.Local, lp)

	tl.invalidateFrom(tick)
}

// RemoveLocalPost removes a previously-added local post by name, if present,
// and invalidates its tick.
func (tl *Timeline) RemoveLocalPost(name string) {
	p, ok := tl.localPosts[name]
	if !ok {
		return
	}
	delete(tl.localPosts, name)

	tick := tl.cfg.OfficialTick(p)
	if b, ok := tl.buckets[tick]; ok {
		b.Local = removeByName(b.Local, name)
	}
	tl.invalidateFrom(tick)
}

// Reconcile handles remote arrival of a post that may echo a live local
// post: the local copy is removed first so the authoritative event replaces
// rather than duplicates the prediction.
func (tl *Timeline) Reconcile(p protocol.Post) {
	if p.Name != "" {
		if _, ok := tl.localPosts[p.Name]; ok {
			tl.RemoveLocalPost(p.Name)
		}
	}
	tl.AddRemotePost(p)
}

// Prune drops every retained post (and bucket) whose official tick is
// strictly before beforeTick, called after the snapshot cache's window
// slides forward.
func (tl *Timeline) Prune(beforeTick int64) {
	for idx, p := range tl.remotePosts {
		if tl.cfg.OfficialTick(p) < beforeTick {
			delete(tl.remotePosts, idx)
		}
	}
	for name, p := range tl.localPosts {
		if tl.cfg.OfficialTick(p) < beforeTick {
			delete(tl.localPosts, name)
		}
	}
	for tick := range tl.buckets {
		if tick < beforeTick {
			delete(tl.buckets, tick)
		}
	}
}

// insertSortedByIndex inserts p into a slice kept sorted by ascending
// Index, using binary search rather than a full sort after every insert.
func insertSortedByIndex(posts []protocol.Post, p protocol.Post) []protocol.Post {
	i := sort.Search(len(posts), func(i int) bool { return posts[i].Index >= p.Index })
	posts = append(posts, protocol.Post{})
	copy(posts[i+1:], posts[i:])
	posts[i] = p
	return posts
}

func removeByName(posts []protocol.Post, name string) []protocol.Post {
	out := posts[:0]
	for _, p := range posts {
		if p.Name != name {
			out = append(out, p)
		}
	}
	return out
}
