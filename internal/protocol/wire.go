package protocol

import jsoniter "github.com/json-iterator/go"

// json is configured to match encoding/json's behavior exactly; jsoniter is
// used purely for its faster Marshal/Unmarshal path on the hot post-ingest
// loop (the broker's log replay and the transport's message pump).
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Kind identifies the message variant carried over the wire, tagged by the
// "$" field.
type Kind string

const (
	KindGetTime  Kind = "get_time"
	KindInfoTime Kind = "info_time"
	KindPost     Kind = "post"
	KindInfoPost Kind = "info_post"
	KindLoad     Kind = "load"
	KindWatch    Kind = "watch"
	KindUnwatch  Kind = "unwatch"
)

// Envelope is the single wire struct covering every message kind the broker
// and Engine exchange. Unused fields are omitted on the wire via omitempty.
type Envelope struct {
	Kind       Kind   `json:"$"`
	Time       int64  `json:"time,omitempty"`
	Room       string `json:"room,omitempty"`
	From       int64  `json:"from,omitempty"`
	Index      int64  `json:"index,omitempty"`
	ServerTime int64  `json:"server_time,omitempty"`
	ClientTime int64  `json:"client_time,omitempty"`
	Name       string `json:"name,omitempty"`
	Data       []byte `json:"data,omitempty"`
	// Version carries ProtocolVersion on the get_time/info_time handshake
	// so either side can log (not reject) a skewed peer via Compatible.
	Version int `json:"version,omitempty"`
}

// Marshal encodes an Envelope for transmission.
func Marshal(e Envelope) ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal decodes a wire message into an Envelope. An unrecognized Kind is
// not an error here — callers are expected to ignore it, preserving forward
// compatibility with future message kinds.
func Unmarshal(data []byte) (Envelope, error) {
	var e Envelope
	err := json.Unmarshal(data, &e)
	return e, err
}

// ToPost converts an info_post Envelope into a Post.
func (e Envelope) ToPost() Post {
	return Post{
		Room:       e.Room,
		Index:      e.Index,
		ServerTime: e.ServerTime,
		ClientTime: e.ClientTime,
		Name:       e.Name,
		Data:       e.Data,
	}
}

// FromPost builds an info_post Envelope from a Post.
func FromPost(p Post) Envelope {
	return Envelope{
		Kind:       KindInfoPost,
		Room:       p.Room,
		Index:      p.Index,
		ServerTime: p.ServerTime,
		ClientTime: p.ClientTime,
		Name:       p.Name,
		Data:       p.Data,
	}
}
