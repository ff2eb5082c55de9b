// Package chat keeps the client's conversation state synchronized: room and
// message caches fed by REST loads and reconciled against realtime events.
// The active room's log is ordered ascending by creation time and never
// holds two messages with the same id.
package chat

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/afrobizconnect/client-go/internal/api"
	"github.com/afrobizconnect/client-go/internal/app/domain/chat"
	"github.com/afrobizconnect/client-go/internal/realtime"
	"github.com/afrobizconnect/client-go/pkg/logger"
)

// Service is the chat synchronization state.
type Service struct {
	api *api.Client
	rt  *realtime.Manager
	log *logger.Logger

	// typingLimiter spaces outbound typing indicators; the UI calls SendTyping
	// on every keystroke.
	typingLimiter *rate.Limiter

	mu          sync.RWMutex
	userID      string
	rooms       []chat.Room
	currentRoom *chat.Room
	messages    []chat.Message
	typing      map[string]bool
	isConnected bool

	roomsSeq    uint64
	messagesSeq uint64

	loadingRooms    bool
	loadingMessages bool
	lastErr         error

	removeHandlers []func()
}

// New constructs the chat service and registers its realtime handlers.
func New(client *api.Client, rt *realtime.Manager, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("chat")
	}
	s := &Service{
		api:           client,
		rt:            rt,
		log:           log,
		typingLimiter: rate.NewLimiter(rate.Every(2*time.Second), 1),
		typing:        make(map[string]bool),
	}
	if rt != nil {
		s.registerHandlers()
	}
	return s
}

// SetUserID tells the service which participant the client is, so the user's
// own realtime echoes never inflate unread counters.
func (s *Service) SetUserID(id string) {
	s.mu.Lock()
	s.userID = id
	s.mu.Unlock()
}

// Close detaches the realtime handlers.
func (s *Service) Close() {
	s.mu.Lock()
	removers := s.removeHandlers
	s.removeHandlers = nil
	s.mu.Unlock()
	for _, remove := range removers {
		remove()
	}
}

// LoadRooms fetches the user's conversations. Like the catalog, the listing
// degrades to a built-in sample when the network is unavailable so the chat
// tab renders offline.
func (s *Service) LoadRooms(ctx context.Context, filters chat.RoomFilters) ([]chat.Room, error) {
	s.mu.Lock()
	s.roomsSeq++
	seq := s.roomsSeq
	s.loadingRooms = true
	s.mu.Unlock()

	env, err := s.api.Get(ctx, "/chat/rooms"+roomQuery(filters), true)
	if err != nil {
		if api.IsUnavailable(err) {
			s.log.WithError(err).Warn("room listing unavailable, serving built-in sample")
			rooms := fallbackRooms()
			s.commitRooms(seq, rooms)
			return rooms, nil
		}
		s.mu.Lock()
		if seq == s.roomsSeq {
			s.loadingRooms = false
			s.lastErr = err
		}
		s.mu.Unlock()
		return nil, err
	}

	var payload struct {
		ChatRooms []chat.Room `json:"chatRooms"`
		Total     int         `json:"total"`
	}
	if err := api.DecodeData(env, &payload); err != nil {
		s.fail(err)
		return nil, err
	}
	s.commitRooms(seq, payload.ChatRooms)
	return payload.ChatRooms, nil
}

// GetRoom fetches one conversation.
func (s *Service) GetRoom(ctx context.Context, roomID string) (*chat.Room, error) {
	if roomID == "" {
		return nil, fmt.Errorf("chat: room id is required")
	}
	env, err := s.api.Get(ctx, "/chat/rooms/"+url.PathEscape(roomID), true)
	if err != nil {
		return nil, err
	}
	var room chat.Room
	if err := api.DecodeData(env, &room); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.upsertRoomLocked(room)
	s.mu.Unlock()
	return &room, nil
}

// CreateRoom opens a new conversation.
func (s *Service) CreateRoom(ctx context.Context, req chat.CreateRoomRequest) (*chat.Room, error) {
	if len(req.ParticipantIDs) == 0 {
		return nil, fmt.Errorf("chat: at least one participant is required")
	}
	if req.Type == "" {
		req.Type = chat.RoomDirect
	}
	env, err := s.api.Post(ctx, "/chat/rooms", req, true)
	if err != nil {
		s.fail(err)
		return nil, err
	}
	var room chat.Room
	if err := api.DecodeData(env, &room); err != nil {
		s.fail(err)
		return nil, err
	}
	s.mu.Lock()
	s.upsertRoomLocked(room)
	s.lastErr = nil
	s.mu.Unlock()
	return &room, nil
}

// SelectRoom makes a room active: the previous log and typing set are
// discarded, the newest message page is loaded, and the room is marked read.
func (s *Service) SelectRoom(ctx context.Context, room chat.Room) error {
	s.mu.Lock()
	s.currentRoom = &room
	s.messages = nil
	s.typing = make(map[string]bool)
	s.mu.Unlock()

	if _, err := s.LoadMessages(ctx, room.ID, 1, 0); err != nil {
		return err
	}
	if err := s.MarkRoomRead(ctx, room.ID); err != nil {
		s.log.WithError(err).WithField("room", room.ID).Warn("mark room read")
	}
	return nil
}

// DeselectRoom clears the active room.
func (s *Service) DeselectRoom() {
	s.mu.Lock()
	s.currentRoom = nil
	s.messages = nil
	s.typing = make(map[string]bool)
	s.mu.Unlock()
}

// LoadMessages fetches one page of a room's log. The server returns newest
// first; the page is reversed to ascending order before it is merged. Page 1
// replaces the log, later pages prepend. Messages already present by id are
// dropped from the incoming page.
func (s *Service) LoadMessages(ctx context.Context, roomID string, page, limit int) ([]chat.Message, error) {
	if roomID == "" {
		return nil, fmt.Errorf("chat: room id is required")
	}
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 50
	}

	s.mu.Lock()
	s.messagesSeq++
	seq := s.messagesSeq
	s.loadingMessages = true
	s.mu.Unlock()

	endpoint := "/chat/rooms/" + url.PathEscape(roomID) + "/messages" +
		"?page=" + strconv.Itoa(page) + "&limit=" + strconv.Itoa(limit)
	env, err := s.api.Get(ctx, endpoint, true)
	if err != nil {
		s.mu.Lock()
		if seq == s.messagesSeq {
			s.loadingMessages = false
			s.lastErr = err
		}
		s.mu.Unlock()
		return nil, err
	}

	var payload struct {
		Messages []chat.Message `json:"messages"`
		Total    int            `json:"total"`
	}
	if err := api.DecodeData(env, &payload); err != nil {
		s.fail(err)
		return nil, err
	}

	ascending := make([]chat.Message, len(payload.Messages))
	for i, m := range payload.Messages {
		ascending[len(payload.Messages)-1-i] = m
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.messagesSeq {
		return ascending, nil
	}
	s.loadingMessages = false
	s.lastErr = nil
	if s.currentRoom == nil || s.currentRoom.ID != roomID {
		return ascending, nil
	}
	if page == 1 {
		s.messages = dedupeByID(ascending)
	} else {
		seen := make(map[string]bool, len(s.messages))
		for _, m := range s.messages {
			seen[m.ID] = true
		}
		fresh := make([]chat.Message, 0, len(ascending))
		for _, m := range ascending {
			if !seen[m.ID] {
				fresh = append(fresh, m)
			}
		}
		s.messages = append(fresh, s.messages...)
	}
	return ascending, nil
}

// SendMessage posts a message. A client message id is attached so the
// realtime echo of the same message can be recognized and deduplicated.
func (s *Service) SendMessage(ctx context.Context, req chat.SendRequest) (*chat.Message, error) {
	if req.ChatRoomID == "" {
		return nil, fmt.Errorf("chat: room id is required")
	}
	if req.Content == "" {
		return nil, fmt.Errorf("chat: message content is required")
	}
	if req.Type == "" {
		req.Type = chat.MessageText
	}
	if req.ClientMessageID == "" {
		req.ClientMessageID = uuid.NewString()
	}

	env, err := s.api.Post(ctx, "/chat/messages", req, true)
	if err != nil {
		s.fail(err)
		return nil, err
	}
	var msg chat.Message
	if err := api.DecodeData(env, &msg); err != nil {
		s.fail(err)
		return nil, err
	}

	s.applyMessage(msg)
	if s.rt != nil {
		if err := s.rt.Send(chat.MessageEvent{EventKind: chat.EventMessageSent, Message: msg}); err != nil {
			s.log.WithError(err).Debug("realtime echo")
		}
	}
	return &msg, nil
}

// SendMessageWithAttachments uploads files alongside the message body.
func (s *Service) SendMessageWithAttachments(ctx context.Context, req chat.SendRequest, files []api.File, onProgress func(float64)) (*chat.Message, error) {
	if req.ChatRoomID == "" {
		return nil, fmt.Errorf("chat: room id is required")
	}
	if len(files) == 0 {
		return s.SendMessage(ctx, req)
	}
	if req.Type == "" {
		req.Type = chat.MessageFile
	}
	if req.ClientMessageID == "" {
		req.ClientMessageID = uuid.NewString()
	}

	fields := map[string]string{
		"chatRoomId":      req.ChatRoomID,
		"clientMessageId": req.ClientMessageID,
		"type":            string(req.Type),
		"content":         req.Content,
	}
	if req.ReplyToID != "" {
		fields["replyToMessageId"] = req.ReplyToID
	}

	env, err := s.api.Upload(ctx, "/chat/messages/with-attachments", files, fields, onProgress)
	if err != nil {
		s.fail(err)
		return nil, err
	}
	var msg chat.Message
	if err := api.DecodeData(env, &msg); err != nil {
		s.fail(err)
		return nil, err
	}
	s.applyMessage(msg)
	return &msg, nil
}

// EditMessage replaces a message's content.
func (s *Service) EditMessage(ctx context.Context, messageID, content string) (*chat.Message, error) {
	if messageID == "" {
		return nil, fmt.Errorf("chat: message id is required")
	}
	if content == "" {
		return nil, fmt.Errorf("chat: message content is required")
	}
	env, err := s.api.Patch(ctx, "/chat/messages/"+url.PathEscape(messageID), map[string]string{"content": content}, true)
	if err != nil {
		return nil, err
	}
	var msg chat.Message
	if err := api.DecodeData(env, &msg); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.replaceMessageLocked(msg)
	s.mu.Unlock()
	return &msg, nil
}

// DeleteMessage removes a message.
func (s *Service) DeleteMessage(ctx context.Context, messageID string) error {
	if messageID == "" {
		return fmt.Errorf("chat: message id is required")
	}
	if _, err := s.api.Delete(ctx, "/chat/messages/"+url.PathEscape(messageID), true); err != nil {
		return err
	}
	s.mu.Lock()
	s.removeMessageLocked(messageID)
	s.mu.Unlock()
	return nil
}

// MarkMessageRead acknowledges a single message.
func (s *Service) MarkMessageRead(ctx context.Context, messageID string) error {
	if messageID == "" {
		return fmt.Errorf("chat: message id is required")
	}
	_, err := s.api.Post(ctx, "/chat/messages/"+url.PathEscape(messageID)+"/read", nil, true)
	return err
}

// MarkRoomRead acknowledges every message in a room and zeroes its unread
// counter locally.
func (s *Service) MarkRoomRead(ctx context.Context, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("chat: room id is required")
	}
	if _, err := s.api.Post(ctx, "/chat/rooms/"+url.PathEscape(roomID)+"/read", nil, true); err != nil {
		return err
	}
	s.mu.Lock()
	for i := range s.rooms {
		if s.rooms[i].ID == roomID {
			s.rooms[i].UnreadCount = 0
		}
	}
	if s.currentRoom != nil && s.currentRoom.ID == roomID {
		s.currentRoom.UnreadCount = 0
	}
	s.mu.Unlock()
	return nil
}

// SendTyping emits a typing indicator for the active room, throttled so
// keystroke-driven callers do not flood the channel. Stop indicators
// (isTyping false) always go out.
func (s *Service) SendTyping(roomID string, isTyping bool) error {
	if s.rt == nil {
		return nil
	}
	s.mu.RLock()
	userID := s.userID
	s.mu.RUnlock()
	if isTyping && !s.typingLimiter.Allow() {
		return nil
	}
	return s.rt.Send(chat.TypingEvent{ChatRoomID: roomID, UserID: userID, IsTyping: isTyping})
}

// ArchiveRoom hides a room from the default listing.
func (s *Service) ArchiveRoom(ctx context.Context, roomID string) error {
	return s.patchRoomFlag(ctx, roomID, "archive")
}

// UnarchiveRoom restores an archived room.
func (s *Service) UnarchiveRoom(ctx context.Context, roomID string) error {
	return s.patchRoomFlag(ctx, roomID, "unarchive")
}

// MuteRoom silences a room's notifications.
func (s *Service) MuteRoom(ctx context.Context, roomID string) error {
	return s.patchRoomFlag(ctx, roomID, "mute")
}

// UnmuteRoom restores a room's notifications.
func (s *Service) UnmuteRoom(ctx context.Context, roomID string) error {
	return s.patchRoomFlag(ctx, roomID, "unmute")
}

func (s *Service) patchRoomFlag(ctx context.Context, roomID, action string) error {
	if roomID == "" {
		return fmt.Errorf("chat: room id is required")
	}
	if _, err := s.api.Patch(ctx, "/chat/rooms/"+url.PathEscape(roomID)+"/"+action, nil, true); err != nil {
		return err
	}
	s.mu.Lock()
	for i := range s.rooms {
		if s.rooms[i].ID != roomID {
			continue
		}
		switch action {
		case "archive":
			s.rooms[i].IsArchived = true
		case "unarchive":
			s.rooms[i].IsArchived = false
		case "mute":
			s.rooms[i].IsMuted = true
		case "unmute":
			s.rooms[i].IsMuted = false
		}
	}
	s.mu.Unlock()
	return nil
}

// SearchMessages runs a server-side full-text search.
func (s *Service) SearchMessages(ctx context.Context, query string, filters chat.MessageFilters) ([]chat.Message, error) {
	if query == "" {
		return nil, fmt.Errorf("chat: search query is required")
	}
	q := url.Values{}
	q.Set("query", query)
	if filters.Type != "" {
		q.Set("type", string(filters.Type))
	}
	if filters.SenderID != "" {
		q.Set("senderId", filters.SenderID)
	}
	if filters.DateFrom != "" {
		q.Set("dateFrom", filters.DateFrom)
	}
	if filters.DateTo != "" {
		q.Set("dateTo", filters.DateTo)
	}

	env, err := s.api.Get(ctx, "/chat/messages/search?"+q.Encode(), true)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Messages []chat.Message `json:"messages"`
		Total    int            `json:"total"`
	}
	if err := api.DecodeData(env, &payload); err != nil {
		return nil, err
	}
	return payload.Messages, nil
}

// Rooms returns the cached room list.
func (s *Service) Rooms() []chat.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]chat.Room(nil), s.rooms...)
}

// CurrentRoom returns the active room, or nil.
func (s *Service) CurrentRoom() *chat.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentRoom
}

// Messages returns the active room's log in ascending order.
func (s *Service) Messages() []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]chat.Message(nil), s.messages...)
}

// TypingUsers returns the ids of participants currently typing in the active
// room.
func (s *Service) TypingUsers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.typing))
	for id := range s.typing {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IsConnected reports whether the realtime channel is up.
func (s *Service) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isConnected
}

// IsLoadingRooms reports whether a room load is in flight.
func (s *Service) IsLoadingRooms() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadingRooms
}

// IsLoadingMessages reports whether a message load is in flight.
func (s *Service) IsLoadingMessages() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadingMessages
}

// LastError returns the most recent operation failure.
func (s *Service) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// ClearError discards the stored failure.
func (s *Service) ClearError() {
	s.mu.Lock()
	s.lastErr = nil
	s.mu.Unlock()
}

func (s *Service) commitRooms(seq uint64, rooms []chat.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.roomsSeq {
		return
	}
	s.rooms = rooms
	s.loadingRooms = false
	s.lastErr = nil
}

func (s *Service) fail(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

func (s *Service) upsertRoomLocked(room chat.Room) {
	for i := range s.rooms {
		if s.rooms[i].ID == room.ID {
			s.rooms[i] = room
			return
		}
	}
	s.rooms = append([]chat.Room{room}, s.rooms...)
}

func (s *Service) replaceMessageLocked(msg chat.Message) {
	for i := range s.messages {
		if s.messages[i].ID == msg.ID {
			s.messages[i] = msg
			break
		}
	}
	for i := range s.rooms {
		if s.rooms[i].LastMessage != nil && s.rooms[i].LastMessage.ID == msg.ID {
			m := msg
			s.rooms[i].LastMessage = &m
		}
	}
}

func (s *Service) removeMessageLocked(messageID string) {
	kept := s.messages[:0]
	for _, m := range s.messages {
		if m.ID != messageID {
			kept = append(kept, m)
		}
	}
	s.messages = kept
}

func dedupeByID(msgs []chat.Message) []chat.Message {
	seen := make(map[string]bool, len(msgs))
	out := msgs[:0]
	for _, m := range msgs {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		out = append(out, m)
	}
	return out
}

func roomQuery(f chat.RoomFilters) string {
	q := url.Values{}
	if f.Type != "" {
		q.Set("type", string(f.Type))
	}
	if f.IsArchived != nil {
		q.Set("isArchived", strconv.FormatBool(*f.IsArchived))
	}
	if f.HasUnread != nil {
		q.Set("hasUnread", strconv.FormatBool(*f.HasUnread))
	}
	if f.BookingID != "" {
		q.Set("bookingId", f.BookingID)
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}
