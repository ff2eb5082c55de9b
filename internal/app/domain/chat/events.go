package chat

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// Kind identifies a realtime event variant.
type Kind string

const (
	EventMessageSent       Kind = "message_sent"
	EventMessageDelivered  Kind = "message_delivered"
	EventMessageRead       Kind = "message_read"
	EventMessageEdited     Kind = "message_edited"
	EventMessageDeleted    Kind = "message_deleted"
	EventUserTyping        Kind = "user_typing"
	EventUserOnline        Kind = "user_online"
	EventUserOffline       Kind = "user_offline"
	EventChatCreated       Kind = "chat_created"
	EventChatUpdated       Kind = "chat_updated"
	EventParticipantJoined Kind = "participant_joined"
	EventParticipantLeft   Kind = "participant_left"
)

// Event is one decoded realtime event. The set of implementations is closed:
// every wire event maps to exactly one variant below, and anything else is a
// decode error rather than an untyped payload.
type Event interface {
	Kind() Kind
}

// MessageEvent carries a full message (message_sent, message_edited).
type MessageEvent struct {
	EventKind Kind
	Message   Message
}

func (e MessageEvent) Kind() Kind { return e.EventKind }

// MessageRefEvent carries a message reference
// (message_delivered, message_read, message_deleted).
type MessageRefEvent struct {
	EventKind  Kind
	MessageID  string
	ChatRoomID string
}

func (e MessageRefEvent) Kind() Kind { return e.EventKind }

// TypingEvent reports a participant starting or stopping typing.
type TypingEvent struct {
	ChatRoomID string
	UserID     string
	IsTyping   bool
}

func (e TypingEvent) Kind() Kind { return EventUserTyping }

// PresenceEvent reports a user going online or offline.
type PresenceEvent struct {
	EventKind Kind
	UserID    string
}

func (e PresenceEvent) Kind() Kind { return e.EventKind }

// RoomEvent carries a full room (chat_created, chat_updated).
type RoomEvent struct {
	EventKind Kind
	Room      Room
}

func (e RoomEvent) Kind() Kind { return e.EventKind }

// ParticipantEvent reports membership changes.
type ParticipantEvent struct {
	EventKind  Kind
	ChatRoomID string
	UserID     string
}

func (e ParticipantEvent) Kind() Kind { return e.EventKind }

// Envelope is the wire shape of every realtime event.
type Envelope struct {
	Event     Kind            `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// DecodeEvent validates a raw inbound frame and returns the typed variant.
// Malformed frames are rejected here so handlers only ever see valid events.
func DecodeEvent(raw []byte) (Event, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("chat: invalid event frame")
	}
	kind := Kind(gjson.GetBytes(raw, "event").String())
	if kind == "" {
		return nil, fmt.Errorf("chat: event frame missing event kind")
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("chat: decode envelope: %w", err)
	}

	switch kind {
	case EventMessageSent, EventMessageEdited:
		var msg Message
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return nil, fmt.Errorf("chat: decode %s payload: %w", kind, err)
		}
		if msg.ID == "" || msg.ChatRoomID == "" {
			return nil, fmt.Errorf("chat: %s payload missing message id or room id", kind)
		}
		return MessageEvent{EventKind: kind, Message: msg}, nil

	case EventMessageDelivered, EventMessageRead, EventMessageDeleted:
		var ref struct {
			MessageID  string `json:"messageId"`
			ChatRoomID string `json:"chatRoomId"`
		}
		if err := json.Unmarshal(env.Data, &ref); err != nil {
			return nil, fmt.Errorf("chat: decode %s payload: %w", kind, err)
		}
		if ref.MessageID == "" {
			return nil, fmt.Errorf("chat: %s payload missing message id", kind)
		}
		return MessageRefEvent{EventKind: kind, MessageID: ref.MessageID, ChatRoomID: ref.ChatRoomID}, nil

	case EventUserTyping:
		var p struct {
			ChatRoomID string `json:"chatRoomId"`
			UserID     string `json:"userId"`
			IsTyping   bool   `json:"isTyping"`
		}
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("chat: decode typing payload: %w", err)
		}
		if p.ChatRoomID == "" || p.UserID == "" {
			return nil, fmt.Errorf("chat: typing payload missing room id or user id")
		}
		return TypingEvent{ChatRoomID: p.ChatRoomID, UserID: p.UserID, IsTyping: p.IsTyping}, nil

	case EventUserOnline, EventUserOffline:
		var p struct {
			UserID string `json:"userId"`
		}
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("chat: decode presence payload: %w", err)
		}
		return PresenceEvent{EventKind: kind, UserID: p.UserID}, nil

	case EventChatCreated, EventChatUpdated:
		var room Room
		if err := json.Unmarshal(env.Data, &room); err != nil {
			return nil, fmt.Errorf("chat: decode %s payload: %w", kind, err)
		}
		if room.ID == "" {
			return nil, fmt.Errorf("chat: %s payload missing room id", kind)
		}
		return RoomEvent{EventKind: kind, Room: room}, nil

	case EventParticipantJoined, EventParticipantLeft:
		var p struct {
			ChatRoomID string `json:"chatRoomId"`
			UserID     string `json:"userId"`
		}
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("chat: decode %s payload: %w", kind, err)
		}
		if p.ChatRoomID == "" || p.UserID == "" {
			return nil, fmt.Errorf("chat: %s payload missing room id or user id", kind)
		}
		return ParticipantEvent{EventKind: kind, ChatRoomID: p.ChatRoomID, UserID: p.UserID}, nil

	default:
		return nil, fmt.Errorf("chat: unknown event kind %q", kind)
	}
}

// EncodeEvent wraps a typed event in a wire envelope.
func EncodeEvent(ev Event) ([]byte, error) {
	var data any
	switch e := ev.(type) {
	case MessageEvent:
		data = e.Message
	case MessageRefEvent:
		data = map[string]string{"messageId": e.MessageID, "chatRoomId": e.ChatRoomID}
	case TypingEvent:
		data = map[string]any{"chatRoomId": e.ChatRoomID, "userId": e.UserID, "isTyping": e.IsTyping}
	case PresenceEvent:
		data = map[string]string{"userId": e.UserID}
	case RoomEvent:
		data = e.Room
	case ParticipantEvent:
		data = map[string]string{"chatRoomId": e.ChatRoomID, "userId": e.UserID}
	default:
		return nil, fmt.Errorf("chat: unsupported event type %T", ev)
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("chat: encode %s payload: %w", ev.Kind(), err)
	}
	return json.Marshal(Envelope{Event: ev.Kind(), Data: payload, Timestamp: time.Now().UTC()})
}
