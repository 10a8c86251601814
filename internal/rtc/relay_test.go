package rtc

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mbenevides/hermes/internal/bus"
	"github.com/mbenevides/hermes/internal/registry"
	"github.com/mbenevides/hermes/internal/store"
	"go.uber.org/zap"
)

type fakeCalls struct {
	calls map[string]*store.Call
}

func (f *fakeCalls) GetCall(callID string) (*store.Call, error) {
	c, ok := f.calls[callID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return c, nil
}

type sink struct {
	id     string
	userID int64
	ch     chan []byte
}

func (s *sink) ID() string    { return s.id }
func (s *sink) UserID() int64 { return s.userID }
func (s *sink) Send(p []byte) error {
	s.ch <- p
	return nil
}

func recv(t *testing.T, s *sink) map[string]any {
	t.Helper()
	select {
	case payload := <-s.ch:
		var evt map[string]any
		if err := json.Unmarshal(payload, &evt); err != nil {
			t.Fatalf("decoding frame: %v", err)
		}
		return evt
	case <-time.After(time.Second):
		t.Fatal("no frame delivered")
		return nil
	}
}

func newRelay(t *testing.T) (*Relay, *sink, *sink) {
	t.Helper()
	calls := &fakeCalls{calls: map[string]*store.Call{
		"c1": {CallID: "c1", CallerID: 1, CalleeID: 2, Status: "accepted"},
	}}
	b := bus.New(nil)
	caller := &sink{id: "caller", userID: 1, ch: make(chan []byte, 4)}
	callee := &sink{id: "callee", userID: 2, ch: make(chan []byte, 4)}
	b.Join(bus.UserRoom(1), caller)
	b.Join(bus.UserRoom(2), callee)
	return New(calls, b, zap.NewNop()), caller, callee
}

func TestForwardOfferToCallee(t *testing.T) {
	relay, caller, callee := newRelay(t)

	sdp := json.RawMessage(`{"type":"offer","sdp":"v=0\r\n..."}`)
	err := relay.Forward("c1", Offer, registry.Identity{UserID: 1, Username: "alice"}, sdp)
	if err != nil {
		t.Fatal(err)
	}

	frame := recv(t, callee)
	if frame["type"] != "webrtc_offer" || frame["call_id"] != "c1" {
		t.Errorf("frame = %v", frame)
	}
	if int64(frame["sender_id"].(float64)) != 1 {
		t.Errorf("sender_id = %v", frame["sender_id"])
	}
	// The payload passes through untouched.
	offer := frame["offer"].(map[string]any)
	if offer["sdp"] != "v=0\r\n..." {
		t.Errorf("offer = %v", offer)
	}

	select {
	case p := <-caller.ch:
		t.Fatalf("sender received own frame: %s", p)
	default:
	}
}

func TestForwardAnswerToCaller(t *testing.T) {
	relay, caller, _ := newRelay(t)

	err := relay.Forward("c1", Answer, registry.Identity{UserID: 2, Username: "bob"}, json.RawMessage(`{"sdp":"answer"}`))
	if err != nil {
		t.Fatal(err)
	}
	frame := recv(t, caller)
	if frame["type"] != "webrtc_answer" {
		t.Errorf("frame = %v", frame)
	}
	if frame["answer"] == nil {
		t.Error("answer payload missing")
	}
}

func TestForwardICECandidate(t *testing.T) {
	relay, _, callee := newRelay(t)

	err := relay.Forward("c1", ICECandidate, registry.Identity{UserID: 1, Username: "alice"}, json.RawMessage(`{"candidate":"candidate:0 1 UDP ..."}`))
	if err != nil {
		t.Fatal(err)
	}
	frame := recv(t, callee)
	if frame["type"] != "webrtc_ice_candidate" {
		t.Errorf("frame = %v", frame)
	}
	if frame["candidate"] == nil {
		t.Error("candidate payload missing")
	}
}

func TestForwardUnknownCall(t *testing.T) {
	relay, _, _ := newRelay(t)

	err := relay.Forward("nope", Offer, registry.Identity{UserID: 1}, json.RawMessage(`{}`))
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Forward = %v, want ErrNotFound", err)
	}
}

func TestForwardByOutsider(t *testing.T) {
	relay, caller, callee := newRelay(t)

	err := relay.Forward("c1", Offer, registry.Identity{UserID: 99}, json.RawMessage(`{}`))
	if !errors.Is(err, ErrNotParticipant) {
		t.Errorf("Forward = %v, want ErrNotParticipant", err)
	}
	for _, s := range []*sink{caller, callee} {
		select {
		case p := <-s.ch:
			t.Fatalf("frame leaked to %s: %s", s.id, p)
		default:
		}
	}
}
