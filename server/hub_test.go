package server

import (
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/phroun/faderbank/internal/models"
	"github.com/phroun/faderbank/internal/protocol"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(zap.NewNop())
	go h.Run()
	return h
}

func testClient(h *Hub, id string) *Client {
	return h.NewClient(nil, &models.User{ID: id, LoginName: id, DisplayName: id})
}

func recvEnvelope(t *testing.T, c *Client) *protocol.Envelope {
	t.Helper()
	select {
	case raw := <-c.SendChan():
		env, err := protocol.ParseEnvelope(raw)
		if err != nil {
			t.Fatalf("bad envelope: %v", err)
		}
		return env
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
		return nil
	}
}

func TestHubFanOutIsScopedToRoom(t *testing.T) {
	h := newTestHub(t)

	alice := testClient(h, "alice")
	bob := testClient(h, "bob")
	h.Register(alice)
	h.Register(bob)
	h.Subscribe(alice, "p1")
	h.Subscribe(bob, "p2")

	h.Broadcast("p1", protocol.TypeLevel, protocol.LevelUpdate{
		ChannelID: "strip-a",
		Level:     90,
		Version:   4,
	})

	env := recvEnvelope(t, alice)
	if env.Type != protocol.TypeLevel {
		t.Fatalf("type = %q, want %q", env.Type, protocol.TypeLevel)
	}
	var up protocol.LevelUpdate
	if err := json.Unmarshal(env.Data, &up); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if up.ChannelID != "strip-a" || up.Level != 90 || up.Version != 4 {
		t.Fatalf("unexpected payload: %+v", up)
	}

	select {
	case raw := <-bob.SendChan():
		t.Fatalf("message leaked into another room: %s", raw)
	default:
	}
}

func TestHubDeliversToEverySubscriber(t *testing.T) {
	h := newTestHub(t)

	clients := make([]*Client, 3)
	for i := range clients {
		clients[i] = testClient(h, "user")
		h.Register(clients[i])
		h.Subscribe(clients[i], "p1")
	}

	h.Broadcast("p1", protocol.TypeResponsibility, protocol.ResponsibilityUpdate{
		ProfileID: "p1",
		UserID:    "alice",
	})

	for _, c := range clients {
		if env := recvEnvelope(t, c); env.Type != protocol.TypeResponsibility {
			t.Fatalf("type = %q, want %q", env.Type, protocol.TypeResponsibility)
		}
	}
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	h := newTestHub(t)

	c := testClient(h, "alice")
	h.Register(c)
	h.Subscribe(c, "p1")
	h.Unsubscribe(c, "p1")

	h.Broadcast("p1", protocol.TypeVU, protocol.VUUpdate{ProfileID: "p1"})

	// Drain any stragglers; nothing should arrive.
	select {
	case raw := <-c.SendChan():
		t.Fatalf("message after unsubscribe: %s", raw)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	h := newTestHub(t)

	slow := testClient(h, "slow")
	fast := testClient(h, "fast")
	h.Register(slow)
	h.Register(fast)
	h.Subscribe(slow, "p1")
	h.Subscribe(fast, "p1")

	// Fill the slow client's buffer so the next fan-out cannot enqueue.
	filler := []byte(`{"type":"vu"}`)
	for i := 0; i < cap(slow.send); i++ {
		slow.send <- filler
	}

	h.Broadcast("p1", protocol.TypeVU, protocol.VUUpdate{ProfileID: "p1"})

	// The healthy subscriber still gets the message.
	if env := recvEnvelope(t, fast); env.Type != protocol.TypeVU {
		t.Fatalf("type = %q, want %q", env.Type, protocol.TypeVU)
	}

	// The slow one is evicted: its send channel closes once drained.
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-slow.SendChan():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("slow client was not dropped")
		}
	}
}
