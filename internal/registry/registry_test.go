package registry

import (
	"fmt"
	"testing"

	"github.com/mbenevides/hermes/internal/bus"
)

type fakeConn struct {
	id     string
	userID int64
	ch     chan []byte
}

func newFakeConn(id string, userID int64) *fakeConn {
	return &fakeConn{id: id, userID: userID, ch: make(chan []byte, 16)}
}

func (c *fakeConn) ID() string    { return c.id }
func (c *fakeConn) UserID() int64 { return c.userID }
func (c *fakeConn) Send(p []byte) error {
	select {
	case c.ch <- p:
		return nil
	default:
		return fmt.Errorf("full")
	}
}

func TestRegisterRefusesAnonymous(t *testing.T) {
	r := New(bus.New(nil))
	if err := r.Register(newFakeConn("c1", 0)); err != ErrUnauthenticated {
		t.Errorf("err = %v, want ErrUnauthenticated", err)
	}
	if r.Connections() != 0 {
		t.Errorf("anonymous connection was registered")
	}
}

func TestRegisterJoinsRooms(t *testing.T) {
	b := bus.New(nil)
	r := New(b)
	c := newFakeConn("c1", 1)

	if err := r.Register(c, bus.ConversationRoom(5), bus.UserRoom(1)); err != nil {
		t.Fatal(err)
	}

	b.Publish(bus.ConversationRoom(5), []byte("a"), 0)
	b.Publish(bus.UserRoom(1), []byte("b"), 0)
	if len(c.ch) != 2 {
		t.Errorf("delivered %d events, want 2", len(c.ch))
	}
}

func TestUnregisterLeavesAllRooms(t *testing.T) {
	b := bus.New(nil)
	r := New(b)
	c := newFakeConn("c1", 1)
	if err := r.Register(c, bus.ConversationRoom(5), bus.UserRoom(1)); err != nil {
		t.Fatal(err)
	}

	r.Unregister("c1")

	b.Publish(bus.ConversationRoom(5), []byte("a"), 0)
	b.Publish(bus.UserRoom(1), []byte("b"), 0)
	if len(c.ch) != 0 {
		t.Errorf("received %d events after unregister", len(c.ch))
	}
	if r.Connections() != 0 {
		t.Errorf("connections = %d, want 0", r.Connections())
	}
}

func TestJoinAndLeaveRoom(t *testing.T) {
	b := bus.New(nil)
	r := New(b)
	c := newFakeConn("c1", 1)
	if err := r.Register(c); err != nil {
		t.Fatal(err)
	}

	r.JoinRoom("c1", bus.ConversationRoom(9))
	b.Publish(bus.ConversationRoom(9), []byte("x"), 0)
	if len(c.ch) != 1 {
		t.Fatalf("delivered %d, want 1", len(c.ch))
	}

	r.LeaveRoom("c1", bus.ConversationRoom(9))
	b.Publish(bus.ConversationRoom(9), []byte("y"), 0)
	if len(c.ch) != 1 {
		t.Errorf("received event after leaving room")
	}
}

func TestMultiDevice(t *testing.T) {
	b := bus.New(nil)
	r := New(b)
	phone := newFakeConn("phone", 1)
	laptop := newFakeConn("laptop", 1)
	if err := r.Register(phone, bus.UserRoom(1)); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(laptop, bus.UserRoom(1)); err != nil {
		t.Fatal(err)
	}

	if n := r.ConnectionsForUser(1); n != 2 {
		t.Errorf("connections for user = %d, want 2", n)
	}

	b.Publish(bus.UserRoom(1), []byte("ring"), 0)
	if len(phone.ch) != 1 || len(laptop.ch) != 1 {
		t.Errorf("personal room event not delivered to both devices")
	}

	r.Unregister("phone")
	if n := r.ConnectionsForUser(1); n != 1 {
		t.Errorf("connections for user = %d after one disconnect, want 1", n)
	}
}
