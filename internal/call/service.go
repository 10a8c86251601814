// Package call drives the authoritative call-signaling lifecycle between
// two users: at most one non-terminal session per conversation, with all
// notifications delivered to personal rooms, since the callee may not be
// viewing the conversation when the call arrives.
package call

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mbenevides/hermes/internal/bus"
	"github.com/mbenevides/hermes/internal/registry"
	"github.com/mbenevides/hermes/internal/store"
	"go.uber.org/zap"
)

var (
	// ErrNotParticipant rejects call actions by users outside the conversation.
	ErrNotParticipant = errors.New("call: user is not a conversation participant")
	// ErrNotCallee rejects accept/reject/missed by anyone but the callee.
	ErrNotCallee = errors.New("call: actor is not the callee")
	// ErrActiveCall rejects a second call while one is already in flight.
	ErrActiveCall = errors.New("call: conversation already has an active call")
	// ErrInvalidTransition rejects lifecycle moves the state machine forbids.
	ErrInvalidTransition = errors.New("call: invalid status transition")
)

// Store is the slice of the persistence layer the signaling machine uses.
type Store interface {
	CreateCallIfNoActive(c *store.Call) error
	GetCall(callID string) (*store.Call, error)
	TransitionCall(callID, to string, from ...string) (*store.Call, bool, error)
	IsParticipant(conversationID, userID int64) (bool, error)
}

// Service is the call signaling state machine.
type Service struct {
	store  Store
	bus    *bus.Bus
	logger *zap.Logger
}

// New creates the signaling service.
func New(s Store, b *bus.Bus, logger *zap.Logger) *Service {
	return &Service{store: s, bus: b, logger: logger}
}

type incomingCallEvent struct {
	Type           string `json:"type"`
	CallID         string `json:"call_id"`
	CallType       string `json:"call_type"`
	CallerID       int64  `json:"caller_id"`
	CallerName     string `json:"caller_name"`
	ConversationID int64  `json:"conversation_id"`
}

type callStatusEvent struct {
	Type       string `json:"type"`
	CallID     string `json:"call_id"`
	Status     string `json:"status"`
	AcceptedAt string `json:"accepted_at,omitempty"`
	Duration   int64  `json:"duration,omitempty"`
	EndedBy    int64  `json:"ended_by,omitempty"`
}

// Initiate creates a new call session. Both parties must be conversation
// participants, and the conversation must have no call in a non-terminal
// state; the check-and-create is atomic in the store, so two simultaneous
// initiations cannot both succeed. The callee's personal room is notified.
func (s *Service) Initiate(conversationID int64, caller registry.Identity, calleeID int64, callType string) (*store.Call, error) {
	for _, uid := range []int64{caller.UserID, calleeID} {
		ok, err := s.store.IsParticipant(conversationID, uid)
		if err != nil {
			return nil, fmt.Errorf("participant check: %w", err)
		}
		if !ok {
			return nil, ErrNotParticipant
		}
	}

	c := &store.Call{
		CallID:         uuid.New().String(),
		ConversationID: conversationID,
		CallerID:       caller.UserID,
		CalleeID:       calleeID,
		Type:           callType,
	}
	if err := s.store.CreateCallIfNoActive(c); err != nil {
		if errors.Is(err, store.ErrActiveCall) {
			return nil, ErrActiveCall
		}
		return nil, fmt.Errorf("create call: %w", err)
	}

	s.logger.Info("call initiated",
		zap.String("call_id", c.CallID),
		zap.Int64("conversation_id", conversationID),
		zap.Int64("caller_id", caller.UserID),
		zap.Int64("callee_id", calleeID),
		zap.String("call_type", callType))

	s.publish(bus.UserRoom(calleeID), incomingCallEvent{
		Type:           "incoming_call",
		CallID:         c.CallID,
		CallType:       callType,
		CallerID:       caller.UserID,
		CallerName:     caller.Username,
		ConversationID: conversationID,
	})
	return c, nil
}

// Accept moves the call to accepted. Callee only, from initiated or
// ringing. The caller's personal room is notified.
func (s *Service) Accept(callID string, actor registry.Identity) (*store.Call, error) {
	c, err := s.transitionAsCallee(callID, actor, Accepted)
	if err != nil {
		return nil, err
	}
	s.publish(bus.UserRoom(c.CallerID), callStatusEvent{
		Type:       "call_accepted",
		CallID:     c.CallID,
		Status:     c.Status,
		AcceptedAt: time.UnixMilli(c.AcceptedAt).UTC().Format(time.RFC3339),
	})
	return c, nil
}

// Reject declines the call. Callee only, from initiated or ringing.
func (s *Service) Reject(callID string, actor registry.Identity) (*store.Call, error) {
	c, err := s.transitionAsCallee(callID, actor, Rejected)
	if err != nil {
		return nil, err
	}
	s.publish(bus.UserRoom(c.CallerID), callStatusEvent{
		Type:   "call_rejected",
		CallID: c.CallID,
		Status: c.Status,
	})
	return c, nil
}

// MarkMissed records an unanswered call. Callee only, from initiated or
// ringing. Deciding when to call this (a ring timeout) is an external
// scheduler's responsibility; no notification is emitted.
func (s *Service) MarkMissed(callID string, actor registry.Identity) (*store.Call, error) {
	return s.transitionAsCallee(callID, actor, Missed)
}

// End terminates the call from any non-terminal state. Either participant
// may end; duration is endedAt-acceptedAt, or 0 if never accepted. The
// other participant's personal room is notified.
func (s *Service) End(callID string, actor registry.Identity) (*store.Call, error) {
	c, err := s.store.GetCall(callID)
	if err != nil {
		return nil, err
	}
	if actor.UserID != c.CallerID && actor.UserID != c.CalleeID {
		return nil, ErrNotParticipant
	}

	updated, ok, err := s.store.TransitionCall(callID, string(Ended),
		string(Initiated), string(Ringing), string(Accepted))
	if err != nil {
		return nil, fmt.Errorf("end call: %w", err)
	}
	if !ok {
		return nil, ErrInvalidTransition
	}

	counterpart := updated.CalleeID
	if actor.UserID == updated.CalleeID {
		counterpart = updated.CallerID
	}
	s.publish(bus.UserRoom(counterpart), callStatusEvent{
		Type:     "call_ended",
		CallID:   updated.CallID,
		Status:   updated.Status,
		Duration: updated.DurationMs,
		EndedBy:  actor.UserID,
	})
	return updated, nil
}

// transitionAsCallee applies the shared guards of Accept, Reject, and
// MarkMissed: actor must be the callee and the call must still be in
// initiated or ringing. The status guard itself is re-checked atomically
// by the store, so racing transitions cannot both win.
func (s *Service) transitionAsCallee(callID string, actor registry.Identity, to Status) (*store.Call, error) {
	c, err := s.store.GetCall(callID)
	if err != nil {
		return nil, err
	}
	if actor.UserID != c.CalleeID {
		return nil, ErrNotCallee
	}
	if !CanTransition(Status(c.Status), to) {
		return nil, ErrInvalidTransition
	}

	updated, ok, err := s.store.TransitionCall(callID, string(to), string(Initiated), string(Ringing))
	if err != nil {
		return nil, fmt.Errorf("transition call: %w", err)
	}
	if !ok {
		return nil, ErrInvalidTransition
	}
	return updated, nil
}

func (s *Service) publish(roomKey string, evt any) {
	payload, err := json.Marshal(evt)
	if err != nil {
		s.logger.Error("marshal call event", zap.Error(err))
		return
	}
	s.bus.Publish(roomKey, payload, 0)
}
