package protocol

// Intent represents a player input action as a bitmask. It is the payload
// the demo game encodes into a Post's Data and decodes back in on_post.
type Intent uint8

const (
	IntentNone   Intent = 0
	IntentLeft   Intent = 1 << 0
	IntentRight  Intent = 1 << 1
	IntentJump   Intent = 1 << 2
	IntentAttack Intent = 1 << 3
	IntentUse    Intent = 1 << 4
)

// EntityID uniquely identifies an entity within the demo game's world.
type EntityID uint64

// InputFrame is one tick's worth of locally captured intent, buffered by
// internal/input before being flushed into posts.
type InputFrame struct {
	Tick    uint64 `json:"tick"`
	Intents Intent `json:"intents"`
}

// GameEventKind discriminates the demo game's two post payloads.
type GameEventKind string

const (
	EventJoin   GameEventKind = "join"
	EventIntent GameEventKind = "intent"
)

// GameEvent is the Post.Data shape the demo game posts: either a player
// joining at a spawn point, or a held-intent change. on_post decodes this
// and dispatches on Kind to update the matching entity.
type GameEvent struct {
	Kind     GameEventKind `json:"kind"`
	PlayerID int           `json:"player_id"`
	Name     string        `json:"name,omitempty"`
	X        float64       `json:"x,omitempty"`
	Y        float64       `json:"y,omitempty"`
	Intent   Intent        `json:"intent,omitempty"`
}

// EncodeJoin marshals a join GameEvent for Engine.Post.
func EncodeJoin(playerID int, name string, x, y float64) []byte {
	return mustMarshalEvent(GameEvent{Kind: EventJoin, PlayerID: playerID, Name: name, X: x, Y: y})
}

// EncodeIntent marshals an intent-change GameEvent for Engine.Post.
func EncodeIntent(playerID int, intent Intent) []byte {
	return mustMarshalEvent(GameEvent{Kind: EventIntent, PlayerID: playerID, Intent: intent})
}

func mustMarshalEvent(e GameEvent) []byte {
	data, err := json.Marshal(e)
	if err != nil {
		// GameEvent is a plain data struct; only a programmer error (an
		// unsupported field type) could make this fail.
		panic(err)
	}
	return data
}

// DecodeGameEvent unmarshals a Post's Data back into a GameEvent.
func DecodeGameEvent(data []byte) (GameEvent, error) {
	var e GameEvent
	err := json.Unmarshal(data, &e)
	return e, err
}
