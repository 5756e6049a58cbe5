// Package protocol defines the event vocabulary exchanged over the signaling socket.
//
// Every frame is an Envelope: {"event": "<name>", "data": {...}}.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dkeye/voicechat/internal/core"
	"github.com/dkeye/voicechat/internal/domain"
)

// Client -> server.
const (
	EventJoinRoom       = "join_room"
	EventLeaveRoom      = "leave_room"
	EventGetHistory     = "get_history"
	EventMessage        = "message"
	EventPrivateMessage = "private_message"
	EventSpeaking       = "speaking"
	EventJoinVoice      = "join_voice_channel"
	EventLeaveVoice     = "leave_voice_channel"
	EventVoiceOffer     = "voice_offer"
	EventVoiceAnswer    = "voice_answer"
	EventICECandidate   = "ice_candidate"
	EventHeartbeat      = "heartbeat"
)

// Server -> client. message, private_message, speaking and the three
// signaling events reuse the client-side names above.
const (
	EventConnected       = "connected"
	EventHeartbeatAck    = "heartbeat_ack"
	EventHistory         = "history"
	EventOnlineUsers     = "online_users"
	EventVoiceJoined     = "voice_joined"
	EventVoiceError      = "voice_error"
	EventUserJoinedVoice = "user_joined_voice"
	EventUserLeftVoice   = "user_left_voice"
	EventError           = "error"
)

type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode wraps data into an envelope frame.
func Encode(event string, data any) (core.Frame, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", event, err)
		}
		raw = b
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// MustEncode is Encode for payloads built from plain structs that cannot fail to marshal.
func MustEncode(event string, data any) core.Frame {
	f, err := Encode(event, data)
	if err != nil {
		panic(err)
	}
	return f
}

func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, err
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("missing event name")
	}
	return env, nil
}

// DecodeData unmarshals the envelope payload into dst. An absent payload is an error.
func (e Envelope) DecodeData(dst any) error {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return fmt.Errorf("%s: missing data", e.Event)
	}
	return json.Unmarshal(e.Data, dst)
}

// --- client -> server payloads ---

type JoinRoom struct {
	Room string `json:"room"`
}

type SendMessage struct {
	Text string `json:"text"`
}

type SendPrivate struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

type SetSpeaking struct {
	Speaking bool `json:"speaking"`
}

type JoinVoice struct {
	ChannelID string `json:"channelId"`
}

// Outbound signaling from a client. Exactly one of Offer, Answer, Candidate is
// set depending on the event.
type SignalOut struct {
	Offer              json.RawMessage `json:"offer,omitempty"`
	Answer             json.RawMessage `json:"answer,omitempty"`
	Candidate          json.RawMessage `json:"candidate,omitempty"`
	TargetConnectionID string          `json:"targetConnectionId"`
}

// --- server -> client payloads ---

type Connected struct {
	ConnectionID string      `json:"connectionId"`
	DisplayName  string      `json:"displayName"`
	Role         domain.Role `json:"role"`
}

type ChatMessage struct {
	ID        string             `json:"id,omitempty"`
	Author    string             `json:"author"`
	Room      domain.RoomID      `json:"room"`
	Text      string             `json:"text"`
	Type      domain.MessageType `json:"type"`
	Timestamp time.Time          `json:"timestamp"`
}

// PrivateMessage carries the addressee. Target is null in the sender's own copy.
type PrivateMessage struct {
	ChatMessage
	Target *string `json:"target"`
}

type Speaking struct {
	DisplayName string `json:"displayName"`
	Speaking    bool   `json:"speaking"`
}

type VoicePeer struct {
	ConnectionID string `json:"connectionId"`
	DisplayName  string `json:"displayName"`
}

type VoiceJoined struct {
	ChannelID    string      `json:"channelId"`
	Participants []VoicePeer `json:"participants"`
}

type VoiceError struct {
	Message string `json:"message"`
}

// SignalIn is a relayed negotiation envelope annotated with the sender.
type SignalIn struct {
	Offer           json.RawMessage `json:"offer,omitempty"`
	Answer          json.RawMessage `json:"answer,omitempty"`
	Candidate       json.RawMessage `json:"candidate,omitempty"`
	From            string          `json:"from"`
	FromDisplayName string          `json:"fromDisplayName"`
}

type Error struct {
	Message   string   `json:"message"`
	Code      string   `json:"code"`
	Reachable []string `json:"reachable,omitempty"`
}

// FromMessage converts a stored message into its wire shape.
func FromMessage(m domain.Message) ChatMessage {
	return ChatMessage{
		ID:        m.ID,
		Author:    m.Author,
		Room:      m.RoomID,
		Text:      m.Text,
		Type:      m.Type,
		Timestamp: m.Timestamp,
	}
}

// HistoryItem is a replayed message; Target is only set on private entries.
type HistoryItem struct {
	ChatMessage
	Target string `json:"target,omitempty"`
}
