package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"rtc-service/internal/auth"
	"rtc-service/internal/calls"
	"rtc-service/internal/delivery"
	"rtc-service/internal/models"
	"rtc-service/internal/observability"
	"rtc-service/internal/repositories"
)

const authDeadline = 30 * time.Second

// Handler owns the socket endpoint: it authenticates connections, registers
// sessions, rebuilds room membership and dispatches client events into the
// delivery pipeline and the call engine.
type Handler struct {
	hub      *Hub
	verifier *auth.Verifier
	users    repositories.UserRepository
	chats    repositories.ChatRepository
	pipeline *delivery.Pipeline
	calls    *calls.Engine
}

// NewHandler constructs a Handler.
func NewHandler(hub *Hub, verifier *auth.Verifier, users repositories.UserRepository, chats repositories.ChatRepository, pipeline *delivery.Pipeline, engine *calls.Engine) *Handler {
	return &Handler{hub: hub, verifier: verifier, users: users, chats: chats, pipeline: pipeline, calls: engine}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection, runs the authentication handshake and then
// serves the per-connection event loop until disconnect.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("rtc-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	session, err := h.authenticate(c.Request.Context(), conn)
	if err != nil {
		_ = conn.WriteJSON(models.ServerEvent{
			Type: models.EventAuthError,
			Data: models.ErrorData{Code: errorCode(err), Message: err.Error()},
		})
		conn.Close()
		return
	}
	session.DeviceID = observability.DeviceIDFromRequest(c.Request)
	session.IP = observability.IPFromRequest(c.Request)
	session.RequestID = observability.RequestIDFromRequest(c.Request)
	session.TraceID = span.SpanContext().TraceID().String()

	h.register(context.Background(), session)

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	h.publishLifecycleEvent(ctx, session, "ws_connect", "")

	go h.serve(session, conn)
}

// authenticate reads the first client event, which must be an authenticate
// intent carrying the bearer token and the claimed identity. Failure is
// terminal for the attempt; the client must reconnect with a valid credential.
func (h *Handler) authenticate(ctx context.Context, conn *websocket.Conn) (*Session, error) {
	_ = conn.SetReadDeadline(time.Now().Add(authDeadline))
	defer conn.SetReadDeadline(time.Time{})

	var event models.ClientEvent
	if err := conn.ReadJSON(&event); err != nil {
		return nil, auth.ErrInvalidCredential
	}
	if event.Type != models.ClientAuthenticate {
		return nil, auth.ErrInvalidCredential
	}
	var payload models.AuthenticatePayload
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		return nil, auth.ErrInvalidCredential
	}
	claimed, err := uuid.Parse(payload.UserID)
	if err != nil {
		return nil, auth.ErrInvalidCredential
	}

	userID, err := h.verifier.VerifyFor(payload.Token, claimed)
	if err != nil {
		return nil, err
	}

	user, err := h.users.GetUser(ctx, userID)
	if err != nil || !user.Active {
		return nil, auth.ErrInvalidCredential
	}

	return NewSession(userID, conn), nil
}

// register records the session, rebuilds its room membership from the
// persisted participant lists and publishes the online transition.
func (h *Handler) register(ctx context.Context, session *Session) {
	first := h.hub.Register(session)

	chatIDs, err := h.chats.ChatIDsForUser(ctx, session.UserID)
	if err != nil {
		log.Printf("join rooms failed user=%s: %v", session.UserID, err)
	} else {
		h.hub.JoinRooms(session, chatIDs)
	}

	if first {
		if err := h.users.SetOnline(ctx, session.UserID, true); err != nil {
			log.Printf("mark online failed user=%s: %v", session.UserID, err)
		}
		h.hub.BroadcastPresence(session.UserID, true, time.Now())
	}

	_ = session.Send(models.ServerEvent{Type: models.EventAuthOK, Data: gin.H{"user_id": session.UserID, "session_id": session.ID}})
}

// serve is the per-connection event loop. It exits on read error and runs
// disconnect cleanup: session removal, presence transition and call teardown.
func (h *Handler) serve(session *Session, conn *websocket.Conn) {
	var closeReason string
	defer func() {
		last := h.hub.Unregister(session)
		if last {
			if err := h.users.SetOnline(context.Background(), session.UserID, false); err != nil {
				log.Printf("mark offline failed user=%s: %v", session.UserID, err)
			}
			h.hub.BroadcastPresence(session.UserID, false, time.Now())
			h.calls.HandleDisconnect(session.UserID)
		}
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		h.publishLifecycleEvent(context.Background(), session, "ws_disconnect", closeReason)
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
			}
			return
		}

		var event models.ClientEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			h.sendError(session, delivery.ErrInvalidContent)
			continue
		}
		h.dispatch(session, event)
	}
}

// dispatch routes one client event. Synchronous intents get an explicit ack
// or error; notifications fan out with no acknowledgment contract.
func (h *Handler) dispatch(session *Session, event models.ClientEvent) {
	ctx := context.Background()
	observability.IncWSEvent(event.Type)

	switch event.Type {
	case models.ClientSendMessage:
		var payload models.SendMessagePayload
		chatID, ok := h.decodeWithID(session, event.Data, &payload, func() string { return payload.ChatID })
		if !ok {
			return
		}
		var replyTo *uuid.UUID
		if payload.ReplyTo != "" {
			id, err := uuid.Parse(payload.ReplyTo)
			if err != nil {
				h.sendError(session, delivery.ErrInvalidContent)
				return
			}
			replyTo = &id
		}
		msg, err := h.pipeline.SendMessage(ctx, session.UserID, session.ID, chatID, payload.Type, payload.Content, replyTo)
		if err != nil {
			h.sendError(session, err)
			return
		}
		_ = session.Send(models.ServerEvent{Type: models.EventMessageAck, Data: msg})

	case models.ClientMessageDelivered:
		var payload models.ReceiptPayload
		messageID, ok := h.decodeWithID(session, event.Data, &payload, func() string { return payload.MessageID })
		if !ok {
			return
		}
		if err := h.pipeline.MarkDelivered(ctx, session.UserID, messageID); err != nil {
			h.sendError(session, err)
		}

	case models.ClientMessageRead:
		var payload models.ReceiptPayload
		messageID, ok := h.decodeWithID(session, event.Data, &payload, func() string { return payload.MessageID })
		if !ok {
			return
		}
		if err := h.pipeline.MarkRead(ctx, session.UserID, messageID); err != nil {
			h.sendError(session, err)
		}

	case models.ClientEditMessage:
		var payload models.EditMessagePayload
		messageID, ok := h.decodeWithID(session, event.Data, &payload, func() string { return payload.MessageID })
		if !ok {
			return
		}
		msg, err := h.pipeline.EditMessage(ctx, session.UserID, messageID, payload.Text)
		if err != nil {
			h.sendError(session, err)
			return
		}
		_ = session.Send(models.ServerEvent{Type: models.EventMessageAck, Data: msg})

	case models.ClientDeleteMessage:
		var payload models.DeleteMessagePayload
		messageID, ok := h.decodeWithID(session, event.Data, &payload, func() string { return payload.MessageID })
		if !ok {
			return
		}
		if err := h.pipeline.SoftDeleteMessage(ctx, session.UserID, messageID); err != nil {
			h.sendError(session, err)
		}

	case models.ClientTypingStart, models.ClientTypingStop:
		var payload models.RoomPayload
		chatID, ok := h.decodeWithID(session, event.Data, &payload, func() string { return payload.ChatID })
		if !ok {
			return
		}
		if !h.hub.InRoom(session, chatID) {
			return
		}
		h.hub.BroadcastToRoom(chatID, models.ServerEvent{
			Type: models.EventTyping,
			Data: models.TypingData{ChatID: chatID, UserID: session.UserID, Typing: event.Type == models.ClientTypingStart},
		}, session.ID)

	case models.ClientJoinRoom:
		var payload models.RoomPayload
		chatID, ok := h.decodeWithID(session, event.Data, &payload, func() string { return payload.ChatID })
		if !ok {
			return
		}
		// Room membership is a cache; storage stays authoritative for authz.
		member, err := h.chats.IsActiveParticipant(ctx, chatID, session.UserID)
		if err != nil || !member {
			h.sendError(session, delivery.ErrNotAParticipant)
			return
		}
		h.hub.JoinRoom(session, chatID)

	case models.ClientLeaveRoom:
		var payload models.RoomPayload
		chatID, ok := h.decodeWithID(session, event.Data, &payload, func() string { return payload.ChatID })
		if !ok {
			return
		}
		h.hub.LeaveRoom(session, chatID)

	case models.ClientCallInitiate:
		var payload models.CallInitiatePayload
		receiverID, ok := h.decodeWithID(session, event.Data, &payload, func() string { return payload.ReceiverID })
		if !ok {
			return
		}
		call, err := h.calls.Initiate(ctx, session.UserID, receiverID, payload.CallType)
		if err != nil {
			h.sendError(session, err)
			return
		}
		_ = session.Send(models.ServerEvent{Type: models.EventCallAck, Data: call})

	case models.ClientCallAnswer:
		h.callTransition(ctx, session, event.Data, h.calls.Answer)

	case models.ClientCallReject:
		h.callTransition(ctx, session, event.Data, h.calls.Reject)

	case models.ClientCallEnd:
		h.callTransition(ctx, session, event.Data, h.calls.End)

	case models.ClientCallSettings:
		var payload models.CallSettingsPayload
		callID, ok := h.decodeWithID(session, event.Data, &payload, func() string { return payload.CallID })
		if !ok {
			return
		}
		call, err := h.calls.UpdateSettings(ctx, callID, session.UserID, payload.AudioMuted, payload.VideoMuted, payload.Recording)
		if err != nil {
			h.sendError(session, err)
			return
		}
		_ = session.Send(models.ServerEvent{Type: models.EventCallSettings, Data: call})

	case models.ClientSignal:
		var payload models.SignalPayload
		callID, ok := h.decodeWithID(session, event.Data, &payload, func() string { return payload.CallID })
		if !ok {
			return
		}
		if err := h.calls.RelaySignal(callID, session.UserID, payload.Signal); err != nil {
			h.sendError(session, err)
		}

	default:
		h.sendError(session, delivery.ErrInvalidContent)
	}
}

func (h *Handler) callTransition(ctx context.Context, session *Session, data json.RawMessage, transition func(context.Context, uuid.UUID, uuid.UUID) (models.Call, error)) {
	var payload models.CallRefPayload
	callID, ok := h.decodeWithID(session, data, &payload, func() string { return payload.CallID })
	if !ok {
		return
	}
	call, err := transition(ctx, callID, session.UserID)
	if err != nil {
		h.sendError(session, err)
		return
	}
	_ = session.Send(models.ServerEvent{Type: models.EventCallAck, Data: call})
}

// decodeWithID unmarshals a payload and parses its primary id field.
func (h *Handler) decodeWithID(session *Session, data json.RawMessage, payload any, id func() string) (uuid.UUID, bool) {
	if err := json.Unmarshal(data, payload); err != nil {
		h.sendError(session, delivery.ErrInvalidContent)
		return uuid.Nil, false
	}
	parsed, err := uuid.Parse(id())
	if err != nil {
		h.sendError(session, delivery.ErrInvalidContent)
		return uuid.Nil, false
	}
	return parsed, true
}

func (h *Handler) sendError(session *Session, err error) {
	_ = session.Send(models.ServerEvent{
		Type: models.EventError,
		Data: models.ErrorData{Code: errorCode(err), Message: err.Error()},
	})
}

func (h *Handler) publishLifecycleEvent(ctx context.Context, session *Session, name, reason string) {
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       name,
			"session_id":  session.ID,
			"duration_ms": time.Since(session.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   session.UserID,
			"device_id": session.DeviceID,
			"ip":        session.IP,
		},
	}
	headers := observability.BuildHeaders(session.RequestID, session.TraceID)
	_ = observability.PublishEvent(ctx, "ws_events.sessions", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: name,
		Payload:   payload,
	}, headers)
}

// errorCode maps core errors onto the wire taxonomy.
func errorCode(err error) string {
	switch {
	case errors.Is(err, auth.ErrInvalidCredential), errors.Is(err, auth.ErrCredentialExpired):
		return "invalid_credential"
	case errors.Is(err, auth.ErrIdentityMismatch):
		return "identity_mismatch"
	case errors.Is(err, delivery.ErrNotAParticipant):
		return "not_a_participant"
	case errors.Is(err, delivery.ErrNotYourMessage):
		return "not_your_message"
	case errors.Is(err, delivery.ErrInvalidContent):
		return "invalid_content"
	case errors.Is(err, delivery.ErrEditWindowExpired):
		return "edit_window_expired"
	case errors.Is(err, delivery.ErrDeleteWindowExpired):
		return "delete_window_expired"
	case errors.Is(err, calls.ErrSelfCall):
		return "self_call"
	case errors.Is(err, calls.ErrCallerBusy):
		return "caller_busy"
	case errors.Is(err, calls.ErrReceiverBusy):
		return "receiver_busy"
	case errors.Is(err, calls.ErrReceiverUnavailable):
		return "receiver_unavailable"
	case errors.Is(err, calls.ErrNotYourCall):
		return "not_your_call"
	case errors.Is(err, calls.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, calls.ErrInvalidCallType):
		return "invalid_call_type"
	case errors.Is(err, calls.ErrCallNotFound):
		return "call_not_found"
	case errors.Is(err, repositories.ErrChatNotFound):
		return "chat_not_found"
	case errors.Is(err, repositories.ErrMessageNotFound):
		return "message_not_found"
	case errors.Is(err, repositories.ErrUserNotFound):
		return "user_not_found"
	default:
		return "internal_error"
	}
}
