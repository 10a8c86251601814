package bus

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

type testSink struct {
	id     string
	userID int64
	ch     chan []byte
}

func newTestSink(id string, userID int64) *testSink {
	return &testSink{id: id, userID: userID, ch: make(chan []byte, 64)}
}

func (s *testSink) ID() string    { return s.id }
func (s *testSink) UserID() int64 { return s.userID }
func (s *testSink) Send(p []byte) error {
	select {
	case s.ch <- p:
		return nil
	default:
		return fmt.Errorf("sink %s full", s.id)
	}
}

func recv(t *testing.T, s *testSink) []byte {
	t.Helper()
	select {
	case p := <-s.ch:
		return p
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
		return nil
	}
}

func TestPublishReachesAllRoomMembers(t *testing.T) {
	b := New(nil)
	a := newTestSink("a", 1)
	c := newTestSink("c", 2)
	b.Join(ConversationRoom(7), a)
	b.Join(ConversationRoom(7), c)

	b.Publish(ConversationRoom(7), []byte("hi"), 0)

	if got := string(recv(t, a)); got != "hi" {
		t.Errorf("a got %q, want hi", got)
	}
	if got := string(recv(t, c)); got != "hi" {
		t.Errorf("c got %q, want hi", got)
	}
}

func TestPublishExcludesUser(t *testing.T) {
	b := New(nil)
	typer := newTestSink("a", 1)
	other := newTestSink("c", 2)
	b.Join(ConversationRoom(1), typer)
	b.Join(ConversationRoom(1), other)

	b.Publish(ConversationRoom(1), []byte("typing"), 1)

	recv(t, other)
	select {
	case p := <-typer.ch:
		t.Errorf("excluded user received event: %q", p)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishIsRoomScoped(t *testing.T) {
	b := New(nil)
	in := newTestSink("in", 1)
	out := newTestSink("out", 2)
	b.Join(ConversationRoom(1), in)
	b.Join(ConversationRoom(2), out)

	b.Publish(ConversationRoom(1), []byte("x"), 0)

	recv(t, in)
	select {
	case p := <-out.ch:
		t.Errorf("other room received event: %q", p)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLeaveStopsDelivery(t *testing.T) {
	b := New(nil)
	s := newTestSink("a", 1)
	b.Join(UserRoom(1), s)
	b.Leave(UserRoom(1), "a")

	b.Publish(UserRoom(1), []byte("x"), 0)

	select {
	case p := <-s.ch:
		t.Errorf("received event after leave: %q", p)
	case <-time.After(50 * time.Millisecond):
	}

	if rooms, _ := b.Counts(); rooms != 0 {
		t.Errorf("rooms = %d after last leave, want 0", rooms)
	}
}

func TestRoomLocalFIFO(t *testing.T) {
	b := New(nil)
	s := newTestSink("a", 1)
	b.Join(ConversationRoom(1), s)

	for i := 0; i < 10; i++ {
		b.Publish(ConversationRoom(1), []byte{byte(i)}, 0)
	}
	for i := 0; i < 10; i++ {
		p := recv(t, s)
		if p[0] != byte(i) {
			t.Fatalf("event %d arrived out of order: got %d", i, p[0])
		}
	}
}

func TestDropOnFullSubscriber(t *testing.T) {
	drops := 0
	b := New(func(string) { drops++ })
	s := &testSink{id: "a", userID: 1, ch: make(chan []byte, 1)}
	b.Join(ConversationRoom(1), s)

	b.Publish(ConversationRoom(1), []byte("one"), 0)
	b.Publish(ConversationRoom(1), []byte("two"), 0)

	if got := string(recv(t, s)); got != "one" {
		t.Errorf("got %q, want one", got)
	}
	if drops != 1 {
		t.Errorf("drops = %d, want 1", drops)
	}
}

func TestConcurrentJoinLeavePublish(t *testing.T) {
	b := New(nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := newTestSink(fmt.Sprintf("c%d", i), int64(i+1))
			for j := 0; j < 100; j++ {
				b.Join(ConversationRoom(1), s)
				b.Publish(ConversationRoom(1), []byte("x"), 0)
				b.Leave(ConversationRoom(1), s.id)
				// Drain so the buffered channel never blocks delivery.
				for {
					select {
					case <-s.ch:
						continue
					default:
					}
					break
				}
			}
		}(i)
	}
	wg.Wait()
}

func TestRoomKeys(t *testing.T) {
	if got := ConversationRoom(42); got != "conversation:42" {
		t.Errorf("ConversationRoom = %q", got)
	}
	if got := UserRoom(7); got != "user:7" {
		t.Errorf("UserRoom = %q", got)
	}
}
