package calls

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"rtc-service/internal/models"
	"rtc-service/internal/observability"
)

var (
	ErrCallNotFound = errors.New("call not found")
	ErrCallerBusy   = errors.New("caller busy")
	ErrReceiverBusy = errors.New("receiver busy")
)

// call is the registry's live view of one in-flight call. Transitions for a
// single call are serialized on its own mutex; unrelated calls never contend.
type call struct {
	mu        sync.Mutex
	rec       models.Call
	ringTimer *time.Timer
}

func (c *call) snapshot() models.Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rec
}

func (c *call) stopRingTimer() {
	if c.ringTimer != nil {
		c.ringTimer.Stop()
		c.ringTimer = nil
	}
}

// Registry indexes in-flight calls by id and by participant, enforcing the
// at-most-one-active-call-per-user invariant. Every mutation is paired with
// the corresponding status transition by the Engine.
type Registry struct {
	mu     sync.Mutex
	byID   map[uuid.UUID]*call
	byUser map[uuid.UUID]uuid.UUID
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[uuid.UUID]*call),
		byUser: make(map[uuid.UUID]uuid.UUID),
	}
}

// reserve registers a new call under both participants, failing when either
// is already party to a non-terminal call.
func (r *Registry) reserve(c *call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := c.rec
	if _, busy := r.byUser[rec.CallerID]; busy {
		return ErrCallerBusy
	}
	if _, busy := r.byUser[rec.ReceiverID]; busy {
		return ErrReceiverBusy
	}
	r.byID[rec.ID] = c
	r.byUser[rec.CallerID] = rec.ID
	r.byUser[rec.ReceiverID] = rec.ID
	observability.IncActiveCalls()
	return nil
}

// release drops a call from both indexes, freeing the busy slots even when
// the persisted record lags behind.
func (r *Registry) release(callID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[callID]
	if !ok {
		return
	}
	delete(r.byID, callID)
	rec := c.rec
	if r.byUser[rec.CallerID] == callID {
		delete(r.byUser, rec.CallerID)
	}
	if r.byUser[rec.ReceiverID] == callID {
		delete(r.byUser, rec.ReceiverID)
	}
	observability.DecActiveCalls()
}

func (r *Registry) get(callID uuid.UUID) (*call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[callID]
	return c, ok
}

func (r *Registry) activeCallFor(userID uuid.UUID) (*call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	callID, ok := r.byUser[userID]
	if !ok {
		return nil, false
	}
	c, ok := r.byID[callID]
	return c, ok
}

// ActiveCallFor returns the user's non-terminal call, if any.
func (r *Registry) ActiveCallFor(userID uuid.UUID) (models.Call, bool) {
	c, ok := r.activeCallFor(userID)
	if !ok {
		return models.Call{}, false
	}
	return c.snapshot(), true
}

// Get returns the in-flight call with the given id, if any.
func (r *Registry) Get(callID uuid.UUID) (models.Call, bool) {
	c, ok := r.get(callID)
	if !ok {
		return models.Call{}, false
	}
	return c.snapshot(), true
}
