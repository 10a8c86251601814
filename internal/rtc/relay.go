// Package rtc forwards WebRTC signaling payloads (offer, answer, ICE
// candidates) between the two participants of a call. Payloads are opaque:
// no semantic validation, only counterpart resolution and retagging.
package rtc

import (
	"encoding/json"
	"errors"

	"github.com/mbenevides/hermes/internal/bus"
	"github.com/mbenevides/hermes/internal/registry"
	"github.com/mbenevides/hermes/internal/store"
	"go.uber.org/zap"
)

// ErrNotParticipant rejects relaying by users outside the call.
var ErrNotParticipant = errors.New("rtc: sender is not a call participant")

// PayloadKind names the three signaling payload types.
type PayloadKind string

const (
	Offer        PayloadKind = "offer"
	Answer       PayloadKind = "answer"
	ICECandidate PayloadKind = "ice_candidate"
)

// frameType maps a payload kind to its outbound frame type.
var frameType = map[PayloadKind]string{
	Offer:        "webrtc_offer",
	Answer:       "webrtc_answer",
	ICECandidate: "webrtc_ice_candidate",
}

// payloadField maps a payload kind to the field name carrying the blob.
var payloadField = map[PayloadKind]string{
	Offer:        "offer",
	Answer:       "answer",
	ICECandidate: "candidate",
}

// CallGetter resolves call ids to sessions.
type CallGetter interface {
	GetCall(callID string) (*store.Call, error)
}

// Relay republishes signaling payloads to the counterpart's personal room.
type Relay struct {
	calls  CallGetter
	bus    *bus.Bus
	logger *zap.Logger
}

// New creates a relay.
func New(calls CallGetter, b *bus.Bus, logger *zap.Logger) *Relay {
	return &Relay{calls: calls, bus: b, logger: logger}
}

// Forward looks up the call, resolves the sender's counterpart, and
// republishes the payload verbatim, tagged with the sender's id, to the
// counterpart's personal room. store.ErrNotFound for unknown call ids.
func (r *Relay) Forward(callID string, kind PayloadKind, sender registry.Identity, payload json.RawMessage) error {
	c, err := r.calls.GetCall(callID)
	if err != nil {
		return err
	}

	var counterpart int64
	switch sender.UserID {
	case c.CallerID:
		counterpart = c.CalleeID
	case c.CalleeID:
		counterpart = c.CallerID
	default:
		return ErrNotParticipant
	}

	out, err := json.Marshal(map[string]any{
		"type":             frameType[kind],
		"call_id":          callID,
		"sender_id":        sender.UserID,
		payloadField[kind]: payload,
	})
	if err != nil {
		r.logger.Error("marshal signaling frame", zap.Error(err))
		return err
	}

	r.bus.Publish(bus.UserRoom(counterpart), out, 0)
	return nil
}
