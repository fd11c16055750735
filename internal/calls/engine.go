package calls

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"rtc-service/internal/models"
	"rtc-service/internal/repositories"
)

var (
	ErrSelfCall            = errors.New("cannot call yourself")
	ErrReceiverUnavailable = errors.New("receiver unavailable")
	ErrNotYourCall         = errors.New("not your call")
	ErrInvalidState        = errors.New("invalid call state")
	ErrInvalidCallType     = errors.New("invalid call type")
)

// DefaultRingTimeout bounds how long a call may stay ringing before it is
// force-transitioned to missed.
const DefaultRingTimeout = 60 * time.Second

// Notifier is the slice of the hub the engine needs to reach participants.
type Notifier interface {
	SendToUser(userID uuid.UUID, event models.ServerEvent) int
	IsOnline(userID uuid.UUID) bool
}

// Engine drives the call lifecycle: initiating→ringing→answered→ended, with
// rejected and missed as terminal exits from ringing. It owns the Registry
// and keeps every registry mutation paired with a status transition.
type Engine struct {
	registry    *Registry
	calls       repositories.CallRepository
	users       repositories.UserRepository
	notifier    Notifier
	ringTimeout time.Duration
}

// NewEngine builds an Engine. ringTimeout <= 0 selects the default.
func NewEngine(callRepo repositories.CallRepository, userRepo repositories.UserRepository, notifier Notifier, ringTimeout time.Duration) *Engine {
	if ringTimeout <= 0 {
		ringTimeout = DefaultRingTimeout
	}
	return &Engine{
		registry:    NewRegistry(),
		calls:       callRepo,
		users:       userRepo,
		notifier:    notifier,
		ringTimeout: ringTimeout,
	}
}

// Registry exposes the engine's call registry for read-side queries.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Initiate starts a call. Offline receivers leave the call in `initiating`
// and are never rung later: signaling is not queued, the shareable link is
// the only way to discover such a call.
func (e *Engine) Initiate(ctx context.Context, callerID, receiverID uuid.UUID, callType string) (models.Call, error) {
	if callType != models.CallTypeVoice && callType != models.CallTypeVideo {
		return models.Call{}, ErrInvalidCallType
	}
	if callerID == receiverID {
		return models.Call{}, ErrSelfCall
	}

	receiver, err := e.users.GetUser(ctx, receiverID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return models.Call{}, ErrReceiverUnavailable
		}
		return models.Call{}, fmt.Errorf("load receiver: %w", err)
	}
	if !receiver.Active {
		return models.Call{}, ErrReceiverUnavailable
	}

	c := &call{rec: models.Call{
		ID:         uuid.New(),
		CallerID:   callerID,
		ReceiverID: receiverID,
		Type:       callType,
		Status:     models.CallStatusInitiating,
		StartedAt:  time.Now(),
		LinkToken:  newLinkToken(),
		Active:     true,
	}}

	reachable := e.notifier.IsOnline(receiverID)
	if reachable {
		c.rec.Status = models.CallStatusRinging
	}
	// The call becomes discoverable at reserve; from there on every access to
	// the record and timer goes through c.mu.
	rec := c.rec

	if err := e.registry.reserve(c); err != nil {
		return models.Call{}, err
	}
	if reachable {
		callID := rec.ID
		c.mu.Lock()
		// A concurrent disconnect may already have ended the call.
		if c.rec.Status == models.CallStatusRinging {
			c.ringTimer = time.AfterFunc(e.ringTimeout, func() { e.expireRing(callID) })
		}
		c.mu.Unlock()
	}

	if err := e.calls.CreateCall(ctx, rec); err != nil {
		c.mu.Lock()
		c.stopRingTimer()
		c.mu.Unlock()
		e.registry.release(rec.ID)
		return models.Call{}, fmt.Errorf("store call: %w", err)
	}

	snap := c.snapshot()
	if reachable {
		e.notifier.SendToUser(receiverID, models.ServerEvent{Type: models.EventIncomingCall, Data: callEventData(snap, callerID, "")})
		e.notifier.SendToUser(callerID, models.ServerEvent{Type: models.EventCallRinging, Data: callEventData(snap, callerID, "")})
	}
	return snap, nil
}

// Answer transitions ringing→answered. Receiver only.
func (e *Engine) Answer(ctx context.Context, callID, byUserID uuid.UUID) (models.Call, error) {
	c, ok := e.registry.get(callID)
	if !ok {
		return models.Call{}, ErrCallNotFound
	}

	c.mu.Lock()
	if byUserID != c.rec.ReceiverID {
		c.mu.Unlock()
		return models.Call{}, ErrNotYourCall
	}
	if c.rec.Status != models.CallStatusRinging {
		c.mu.Unlock()
		return models.Call{}, ErrInvalidState
	}
	c.stopRingTimer()
	now := time.Now()
	c.rec.Status = models.CallStatusAnswered
	c.rec.AnsweredAt = &now
	rec := c.rec
	e.persist(ctx, rec)
	c.mu.Unlock()

	e.notifier.SendToUser(rec.CallerID, models.ServerEvent{Type: models.EventCallAnswered, Data: callEventData(rec, byUserID, "")})
	return rec, nil
}

// Reject transitions ringing→rejected. Receiver only.
func (e *Engine) Reject(ctx context.Context, callID, byUserID uuid.UUID) (models.Call, error) {
	c, ok := e.registry.get(callID)
	if !ok {
		return models.Call{}, ErrCallNotFound
	}

	c.mu.Lock()
	if byUserID != c.rec.ReceiverID {
		c.mu.Unlock()
		return models.Call{}, ErrNotYourCall
	}
	if c.rec.Status != models.CallStatusRinging {
		c.mu.Unlock()
		return models.Call{}, ErrInvalidState
	}
	c.stopRingTimer()
	now := time.Now()
	c.rec.Status = models.CallStatusRejected
	c.rec.EndedAt = &now
	rec := c.rec
	e.persist(ctx, rec)
	c.mu.Unlock()

	e.registry.release(callID)
	e.notifier.SendToUser(rec.CallerID, models.ServerEvent{Type: models.EventCallRejected, Data: callEventData(rec, byUserID, "")})
	return rec, nil
}

// End transitions any non-terminal state to ended. Either participant may
// hang up. A call ended before answer has zero duration, distinct from
// missed.
func (e *Engine) End(ctx context.Context, callID, byUserID uuid.UUID) (models.Call, error) {
	c, ok := e.registry.get(callID)
	if !ok {
		return models.Call{}, ErrCallNotFound
	}

	c.mu.Lock()
	if _, participant := c.rec.Other(byUserID); !participant {
		c.mu.Unlock()
		return models.Call{}, ErrNotYourCall
	}
	if models.TerminalCallStatus(c.rec.Status) {
		c.mu.Unlock()
		return models.Call{}, ErrInvalidState
	}
	rec := e.endLocked(c)
	e.persist(ctx, rec)
	c.mu.Unlock()

	e.registry.release(callID)
	event := models.ServerEvent{Type: models.EventCallEnded, Data: callEventData(rec, byUserID, "")}
	e.notifier.SendToUser(rec.CallerID, event)
	e.notifier.SendToUser(rec.ReceiverID, event)
	return rec, nil
}

// RelaySignal forwards an opaque WebRTC payload to the counterparty without
// interpreting it. Valid only while the call is non-terminal; a counterparty
// with no live session is logged and dropped, never queued.
func (e *Engine) RelaySignal(callID, fromUserID uuid.UUID, signal json.RawMessage) error {
	c, ok := e.registry.get(callID)
	if !ok {
		return ErrCallNotFound
	}
	rec := c.snapshot()
	if models.TerminalCallStatus(rec.Status) {
		return ErrInvalidState
	}
	other, participant := rec.Other(fromUserID)
	if !participant {
		return ErrNotYourCall
	}

	sent := e.notifier.SendToUser(other, models.ServerEvent{
		Type: models.EventSignal,
		Data: models.SignalData{CallID: callID, FromID: fromUserID, Signal: signal},
	})
	if sent == 0 {
		log.Printf("signal dropped, no live session call=%s to=%s", callID, other)
	}
	return nil
}

// UpdateSettings applies mute/record changes while the call is answered and
// relays the applied state to the counterparty.
func (e *Engine) UpdateSettings(ctx context.Context, callID, byUserID uuid.UUID, audioMuted, videoMuted, recording *bool) (models.Call, error) {
	c, ok := e.registry.get(callID)
	if !ok {
		return models.Call{}, ErrCallNotFound
	}

	c.mu.Lock()
	other, participant := c.rec.Other(byUserID)
	if !participant {
		c.mu.Unlock()
		return models.Call{}, ErrNotYourCall
	}
	if c.rec.Status != models.CallStatusAnswered {
		c.mu.Unlock()
		return models.Call{}, ErrInvalidState
	}
	if audioMuted != nil {
		c.rec.AudioMuted = *audioMuted
	}
	if videoMuted != nil {
		c.rec.VideoMuted = *videoMuted
	}
	if recording != nil {
		c.rec.Recording = *recording
	}
	rec := c.rec
	e.persist(ctx, rec)
	c.mu.Unlock()

	e.notifier.SendToUser(other, models.ServerEvent{Type: models.EventCallSettings, Data: models.CallSettingsData{
		CallID:     callID,
		AudioMuted: rec.AudioMuted,
		VideoMuted: rec.VideoMuted,
		Recording:  rec.Recording,
		ByUserID:   byUserID,
	}})
	return rec, nil
}

// HandleDisconnect force-ends any non-terminal call the departing user is
// party to. The registry slot is released even when persistence fails so the
// busy invariant cannot lock the user out of future calls.
func (e *Engine) HandleDisconnect(userID uuid.UUID) {
	c, ok := e.registry.activeCallFor(userID)
	if !ok {
		return
	}

	c.mu.Lock()
	if models.TerminalCallStatus(c.rec.Status) {
		c.mu.Unlock()
		return
	}
	rec := e.endLocked(c)
	e.persist(context.Background(), rec)
	c.mu.Unlock()

	e.registry.release(rec.ID)

	other, _ := rec.Other(userID)
	e.notifier.SendToUser(other, models.ServerEvent{Type: models.EventCallEnded, Data: callEventData(rec, userID, "peer_disconnected")})
}

// expireRing is the ring-timeout path: a call still ringing after the timeout
// becomes missed and both sides are told.
func (e *Engine) expireRing(callID uuid.UUID) {
	c, ok := e.registry.get(callID)
	if !ok {
		return
	}

	c.mu.Lock()
	if c.rec.Status != models.CallStatusRinging {
		c.mu.Unlock()
		return
	}
	c.ringTimer = nil
	now := time.Now()
	c.rec.Status = models.CallStatusMissed
	c.rec.EndedAt = &now
	rec := c.rec
	e.persist(context.Background(), rec)
	c.mu.Unlock()

	e.registry.release(callID)
	event := models.ServerEvent{Type: models.EventCallMissed, Data: callEventData(rec, rec.ReceiverID, "ring_timeout")}
	e.notifier.SendToUser(rec.CallerID, event)
	e.notifier.SendToUser(rec.ReceiverID, event)
}

// endLocked stamps the terminal ended state. Caller holds c.mu.
func (e *Engine) endLocked(c *call) models.Call {
	c.stopRingTimer()
	now := time.Now()
	c.rec.Status = models.CallStatusEnded
	c.rec.EndedAt = &now
	if c.rec.AnsweredAt != nil {
		c.rec.DurationSeconds = int(now.Sub(*c.rec.AnsweredAt).Seconds())
		if c.rec.DurationSeconds < 0 {
			c.rec.DurationSeconds = 0
		}
	}
	return c.rec
}

// persist writes the transition. Called with the call's lock held so storage
// sees transitions of one call in order; unrelated calls never wait on each
// other. The in-memory machine stays authoritative for liveness, so failures
// are logged and the record allowed to lag.
func (e *Engine) persist(ctx context.Context, rec models.Call) {
	if err := e.calls.SaveCall(ctx, rec); err != nil {
		log.Printf("persist call transition failed call=%s status=%s: %v", rec.ID, rec.Status, err)
	}
}

func callEventData(rec models.Call, byUserID uuid.UUID, reason string) models.CallEventData {
	return models.CallEventData{
		CallID:     rec.ID,
		CallerID:   rec.CallerID,
		ReceiverID: rec.ReceiverID,
		Type:       rec.Type,
		Status:     rec.Status,
		LinkToken:  rec.LinkToken,
		Duration:   rec.DurationSeconds,
		Reason:     reason,
		ByUserID:   byUserID,
	}
}

func newLinkToken() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}
