// Package chat defines conversation entities and the realtime event
// envelope exchanged over the duplex channel.
package chat

import "time"

// RoomType distinguishes conversation kinds.
type RoomType string

const (
	RoomDirect  RoomType = "direct"
	RoomGroup   RoomType = "group"
	RoomSupport RoomType = "support"
)

// Room is a conversation between participants.
type Room struct {
	ID           string        `json:"id"`
	Type         RoomType      `json:"type"`
	Name         string        `json:"name,omitempty"`
	Description  string        `json:"description,omitempty"`
	Participants []Participant `json:"participants"`
	LastMessage  *Message      `json:"lastMessage,omitempty"`
	UnreadCount  int           `json:"unreadCount"`
	IsArchived   bool          `json:"isArchived"`
	IsMuted      bool          `json:"isMuted"`
	BookingID    string        `json:"bookingId,omitempty"`
	BusinessID   string        `json:"businessId,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// Participant is a member of a room.
type Participant struct {
	UserID    string     `json:"userId"`
	FirstName string     `json:"firstName"`
	LastName  string     `json:"lastName"`
	Avatar    string     `json:"avatar,omitempty"`
	Role      string     `json:"role"` // customer, business, support
	IsOnline  bool       `json:"isOnline"`
	LastSeen  *time.Time `json:"lastSeen,omitempty"`
	JoinedAt  time.Time  `json:"joinedAt"`
}

// MessageType tags the message payload kind.
type MessageType string

const (
	MessageText          MessageType = "text"
	MessageImage         MessageType = "image"
	MessageFile          MessageType = "file"
	MessageAudio         MessageType = "audio"
	MessageVideo         MessageType = "video"
	MessageLocation      MessageType = "location"
	MessageSystem        MessageType = "system"
	MessageBookingUpdate MessageType = "booking_update"
	MessagePaymentUpdate MessageType = "payment_update"
)

// Message is one entry in a room's log. The log is append-only per room
// except for edit/delete/read reconciliation driven by realtime events.
type Message struct {
	ID              string       `json:"id"`
	ClientMessageID string       `json:"clientMessageId,omitempty"`
	ChatRoomID      string       `json:"chatRoomId"`
	SenderID        string       `json:"senderId"`
	Type            MessageType  `json:"type"`
	Content         string       `json:"content"`
	Attachments     []Attachment `json:"attachments,omitempty"`
	ReplyTo         *ReplyRef    `json:"replyTo,omitempty"`
	IsEdited        bool         `json:"isEdited"`
	EditedAt        *time.Time   `json:"editedAt,omitempty"`
	IsDelivered     bool         `json:"isDelivered"`
	IsRead          bool         `json:"isRead"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}

// ReplyRef points at the message being replied to.
type ReplyRef struct {
	MessageID  string `json:"messageId"`
	Content    string `json:"content"`
	SenderName string `json:"senderName"`
}

// Attachment is a file carried by a message.
type Attachment struct {
	ID           string `json:"id"`
	Type         string `json:"type"` // image, file, audio, video
	Name         string `json:"name"`
	URL          string `json:"url"`
	Size         int64  `json:"size"`
	MimeType     string `json:"mimeType"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
	Duration     int    `json:"duration,omitempty"`
}

// SendRequest is the payload for posting a new message.
type SendRequest struct {
	ChatRoomID      string      `json:"chatRoomId"`
	ClientMessageID string      `json:"clientMessageId,omitempty"`
	Type            MessageType `json:"type"`
	Content         string      `json:"content"`
	ReplyToID       string      `json:"replyToMessageId,omitempty"`
}

// CreateRoomRequest is the payload for creating a conversation.
type CreateRoomRequest struct {
	Type           RoomType `json:"type"`
	ParticipantIDs []string `json:"participantIds"`
	Name           string   `json:"name,omitempty"`
	Description    string   `json:"description,omitempty"`
	BookingID      string   `json:"bookingId,omitempty"`
}

// RoomFilters narrow a room listing.
type RoomFilters struct {
	Type       RoomType
	IsArchived *bool
	HasUnread  *bool
	BookingID  string
}

// MessageFilters narrow a message page or search.
type MessageFilters struct {
	Type     MessageType
	SenderID string
	DateFrom string
	DateTo   string
	Search   string
}
