package chat

import (
	"time"

	"github.com/afrobizconnect/client-go/internal/app/domain/chat"
)

// fallbackRooms is the sample conversation served when the API is
// unreachable, mirroring the offline catalog behaviour.
func fallbackRooms() []chat.Room {
	now := time.Now()
	lastSeen := now.Add(-30 * time.Minute)
	lastMsgAt := now.Add(-10 * time.Minute)

	return []chat.Room{
		{
			ID:   "1",
			Type: chat.RoomDirect,
			Name: "Hair Stylist Chat",
			Participants: []chat.Participant{
				{
					UserID:    "user-1",
					FirstName: "John",
					LastName:  "Doe",
					Role:      "customer",
					IsOnline:  true,
					JoinedAt:  now,
				},
				{
					UserID:    "business-1",
					FirstName: "Sarah",
					LastName:  "Beauty",
					Role:      "business",
					IsOnline:  false,
					LastSeen:  &lastSeen,
					JoinedAt:  now,
				},
			},
			LastMessage: &chat.Message{
				ID:          "msg-1",
				ChatRoomID:  "1",
				SenderID:    "business-1",
				Type:        chat.MessageText,
				Content:     "Thank you for booking! I'll see you tomorrow at 2 PM.",
				IsDelivered: true,
				CreatedAt:   lastMsgAt,
				UpdatedAt:   lastMsgAt,
			},
			UnreadCount: 1,
			BookingID:   "booking-1",
			BusinessID:  "business-1",
			CreatedAt:   now,
			UpdatedAt:   now,
		},
	}
}
