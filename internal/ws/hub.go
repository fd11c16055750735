package ws

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"rtc-service/internal/models"
)

// Hub is the session registry and room membership tracker. It owns the only
// mutable shared maps of the realtime core; every mutation goes through its
// narrow API. Recipient sets are always copied under lock before any network
// write so fan-out never blocks the registry.
type Hub struct {
	mu           sync.RWMutex
	sessions     map[uuid.UUID]map[*Session]struct{}
	rooms        map[uuid.UUID]map[*Session]struct{}
	sessionRooms map[*Session]map[uuid.UUID]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		sessions:     make(map[uuid.UUID]map[*Session]struct{}),
		rooms:        make(map[uuid.UUID]map[*Session]struct{}),
		sessionRooms: make(map[*Session]map[uuid.UUID]struct{}),
	}
}

// Register records an authenticated session. Returns true when this is the
// user's first live session, i.e. an offline→online transition.
func (h *Hub) Register(s *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.sessions[s.UserID]
	if !ok {
		set = make(map[*Session]struct{})
		h.sessions[s.UserID] = set
	}
	first := len(set) == 0
	set[s] = struct{}{}
	return first
}

// Unregister removes one session and its room memberships. Other sessions of
// the same user remain. Returns true when this was the user's last session.
func (h *Hub) Unregister(s *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if set, ok := h.sessions[s.UserID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.sessions, s.UserID)
		}
	}
	for chatID := range h.sessionRooms[s] {
		if members, ok := h.rooms[chatID]; ok {
			delete(members, s)
			if len(members) == 0 {
				delete(h.rooms, chatID)
			}
		}
	}
	delete(h.sessionRooms, s)

	_, stillOnline := h.sessions[s.UserID]
	return !stillOnline
}

// SessionsFor returns a copy of the user's live sessions; empty means the
// user is unreachable in real time.
func (h *Hub) SessionsFor(userID uuid.UUID) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.sessions[userID]
	out := make([]*Session, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	return out
}

// IsOnline reports whether the user has at least one live session.
func (h *Hub) IsOnline(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[userID]) > 0
}

// JoinRoom subscribes a session to a chat's broadcast group. Idempotent.
func (h *Hub) JoinRoom(s *Session, chatID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[chatID]
	if !ok {
		members = make(map[*Session]struct{})
		h.rooms[chatID] = members
	}
	members[s] = struct{}{}

	joined, ok := h.sessionRooms[s]
	if !ok {
		joined = make(map[uuid.UUID]struct{})
		h.sessionRooms[s] = joined
	}
	joined[chatID] = struct{}{}
}

// LeaveRoom unsubscribes a session from a chat. Leaving a room the session
// never joined is a no-op.
func (h *Hub) LeaveRoom(s *Session, chatID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[chatID]; ok {
		delete(members, s)
		if len(members) == 0 {
			delete(h.rooms, chatID)
		}
	}
	delete(h.sessionRooms[s], chatID)
}

// JoinRooms subscribes a session to all its chats at once, used to rebuild a
// consistent room view after (re)authentication.
func (h *Hub) JoinRooms(s *Session, chatIDs []uuid.UUID) {
	for _, chatID := range chatIDs {
		h.JoinRoom(s, chatID)
	}
}

// InRoom reports whether the session is subscribed to the chat.
func (h *Hub) InRoom(s *Session, chatID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.sessionRooms[s][chatID]
	return ok
}

// BroadcastToRoom fans an event out to every session in a chat room except
// the one identified by exceptSessionID.
func (h *Hub) BroadcastToRoom(chatID uuid.UUID, event models.ServerEvent, exceptSessionID string) {
	h.mu.RLock()
	recipients := make([]*Session, 0, len(h.rooms[chatID]))
	for s := range h.rooms[chatID] {
		if s.ID != exceptSessionID {
			recipients = append(recipients, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range recipients {
		if err := s.Send(event); err != nil {
			log.Printf("websocket write error user=%s: %v", s.UserID, err)
			s.Close()
		}
	}
}

// SendToUser delivers an event to every live session of a user and returns
// how many sessions were reached.
func (h *Hub) SendToUser(userID uuid.UUID, event models.ServerEvent) int {
	sessions := h.SessionsFor(userID)
	sent := 0
	for _, s := range sessions {
		if err := s.Send(event); err != nil {
			log.Printf("websocket write error user=%s: %v", s.UserID, err)
			s.Close()
			continue
		}
		sent++
	}
	return sent
}

// BroadcastPresence announces an online/offline transition to every connected
// session except the transitioning user's own. Presence is global, not scoped
// to shared chats.
func (h *Hub) BroadcastPresence(userID uuid.UUID, online bool, lastSeen time.Time) {
	eventType := models.EventUserOffline
	if online {
		eventType = models.EventUserOnline
	}
	event := models.ServerEvent{Type: eventType, Data: models.PresenceData{UserID: userID, LastSeen: lastSeen}}

	h.mu.RLock()
	recipients := make([]*Session, 0, len(h.sessions))
	for owner, set := range h.sessions {
		if owner == userID {
			continue
		}
		for s := range set {
			recipients = append(recipients, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range recipients {
		if err := s.Send(event); err != nil {
			log.Printf("websocket write error user=%s: %v", s.UserID, err)
			s.Close()
		}
	}
}
