package chat

import (
	"sort"

	"github.com/afrobizconnect/client-go/internal/app/domain/chat"
	"github.com/afrobizconnect/client-go/internal/realtime"
)

// registerHandlers attaches the service to the realtime channel. Handlers
// run on the channel's read goroutine and only take the service lock.
func (s *Service) registerHandlers() {
	add := func(kind chat.Kind, h realtime.Handler) {
		s.removeHandlers = append(s.removeHandlers, s.rt.AddHandler(kind, h))
	}

	add(chat.EventMessageSent, func(ev chat.Event) {
		if e, ok := ev.(chat.MessageEvent); ok {
			s.applyMessage(e.Message)
		}
	})
	add(chat.EventMessageEdited, func(ev chat.Event) {
		if e, ok := ev.(chat.MessageEvent); ok {
			s.mu.Lock()
			s.replaceMessageLocked(e.Message)
			s.mu.Unlock()
		}
	})
	add(chat.EventMessageDelivered, func(ev chat.Event) {
		if e, ok := ev.(chat.MessageRefEvent); ok {
			s.markMessage(e.MessageID, func(m *chat.Message) { m.IsDelivered = true })
		}
	})
	add(chat.EventMessageRead, func(ev chat.Event) {
		if e, ok := ev.(chat.MessageRefEvent); ok {
			s.markMessage(e.MessageID, func(m *chat.Message) { m.IsRead = true })
		}
	})
	add(chat.EventMessageDeleted, func(ev chat.Event) {
		if e, ok := ev.(chat.MessageRefEvent); ok {
			s.mu.Lock()
			s.removeMessageLocked(e.MessageID)
			s.mu.Unlock()
		}
	})
	add(chat.EventUserTyping, func(ev chat.Event) {
		if e, ok := ev.(chat.TypingEvent); ok {
			s.applyTyping(e)
		}
	})
	add(chat.EventUserOnline, func(ev chat.Event) {
		if e, ok := ev.(chat.PresenceEvent); ok {
			s.applyPresence(e.UserID, true)
		}
	})
	add(chat.EventUserOffline, func(ev chat.Event) {
		if e, ok := ev.(chat.PresenceEvent); ok {
			s.applyPresence(e.UserID, false)
		}
	})
	add(chat.EventChatCreated, func(ev chat.Event) {
		if e, ok := ev.(chat.RoomEvent); ok {
			s.mu.Lock()
			s.upsertRoomLocked(e.Room)
			s.mu.Unlock()
		}
	})
	add(chat.EventChatUpdated, func(ev chat.Event) {
		if e, ok := ev.(chat.RoomEvent); ok {
			s.mu.Lock()
			s.upsertRoomLocked(e.Room)
			s.mu.Unlock()
		}
	})
	add(chat.EventParticipantJoined, func(ev chat.Event) {
		if e, ok := ev.(chat.ParticipantEvent); ok {
			s.applyParticipant(e, true)
		}
	})
	add(chat.EventParticipantLeft, func(ev chat.Event) {
		if e, ok := ev.(chat.ParticipantEvent); ok {
			s.applyParticipant(e, false)
		}
	})

	s.removeHandlers = append(s.removeHandlers, s.rt.OnStateChange(func(st realtime.State) {
		s.mu.Lock()
		s.isConnected = st == realtime.StateConnected
		s.mu.Unlock()
	}))
}

// applyMessage merges one message into the caches: the active room's log when
// it belongs there, and the owning room's summary always. The log stays
// ascending by creation time and free of duplicate ids, so the REST response
// to a send and its realtime echo collapse into one entry.
func (s *Service) applyMessage(msg chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	activeID := ""
	if s.currentRoom != nil {
		activeID = s.currentRoom.ID
	}

	if msg.ChatRoomID == activeID && activeID != "" {
		duplicate := false
		for i := range s.messages {
			if s.messages[i].ID == msg.ID {
				s.messages[i] = msg
				duplicate = true
				break
			}
		}
		if !duplicate {
			s.messages = append(s.messages, msg)
			if len(s.messages) > 1 && msg.CreatedAt.Before(s.messages[len(s.messages)-2].CreatedAt) {
				sort.SliceStable(s.messages, func(i, j int) bool {
					return s.messages[i].CreatedAt.Before(s.messages[j].CreatedAt)
				})
			}
		}
	}

	for i := range s.rooms {
		if s.rooms[i].ID != msg.ChatRoomID {
			continue
		}
		m := msg
		s.rooms[i].LastMessage = &m
		s.rooms[i].UpdatedAt = msg.CreatedAt
		if msg.ChatRoomID != activeID && msg.SenderID != s.userID {
			s.rooms[i].UnreadCount++
		}
		break
	}
	if s.currentRoom != nil && s.currentRoom.ID == msg.ChatRoomID {
		m := msg
		s.currentRoom.LastMessage = &m
	}
}

func (s *Service) markMessage(messageID string, mutate func(*chat.Message)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == messageID {
			mutate(&s.messages[i])
			break
		}
	}
	for i := range s.rooms {
		if s.rooms[i].LastMessage != nil && s.rooms[i].LastMessage.ID == messageID {
			mutate(s.rooms[i].LastMessage)
		}
	}
}

// applyTyping maintains the active room's typing set. Indicators for other
// rooms are ignored; the set is rebuilt on room switch anyway.
func (s *Service) applyTyping(e chat.TypingEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentRoom == nil || s.currentRoom.ID != e.ChatRoomID || e.UserID == s.userID {
		return
	}
	if e.IsTyping {
		s.typing[e.UserID] = true
	} else {
		delete(s.typing, e.UserID)
	}
}

func (s *Service) applyPresence(userID string, online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rooms {
		for j := range s.rooms[i].Participants {
			if s.rooms[i].Participants[j].UserID == userID {
				s.rooms[i].Participants[j].IsOnline = online
			}
		}
	}
	if s.currentRoom != nil {
		for j := range s.currentRoom.Participants {
			if s.currentRoom.Participants[j].UserID == userID {
				s.currentRoom.Participants[j].IsOnline = online
			}
		}
	}
}

func (s *Service) applyParticipant(e chat.ParticipantEvent, joined bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rooms {
		if s.rooms[i].ID != e.ChatRoomID {
			continue
		}
		if joined {
			present := false
			for _, p := range s.rooms[i].Participants {
				if p.UserID == e.UserID {
					present = true
					break
				}
			}
			if !present {
				s.rooms[i].Participants = append(s.rooms[i].Participants, chat.Participant{UserID: e.UserID})
			}
		} else {
			kept := s.rooms[i].Participants[:0]
			for _, p := range s.rooms[i].Participants {
				if p.UserID != e.UserID {
					kept = append(kept, p)
				}
			}
			s.rooms[i].Participants = kept
		}
		break
	}
}
