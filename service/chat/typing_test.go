package chat

import "testing"

func TestTypingRelay(t *testing.T) {
	p := NewPresenceRegistry()
	c := NewTypingIndicatorCoordinator(p)
	a, b := newFake("ca"), newFake("cb")
	p.Register("A", "", a)
	p.Register("B", "", b)
	b.reset()

	if !c.StartTyping("A", "B") {
		t.Fatal("start not relayed")
	}
	if !c.StopTyping("A", "B") {
		t.Fatal("stop not relayed")
	}
	want := []ServerEvent{
		typingEvent(EventTypingStart, "A"),
		typingEvent(EventTypingStop, "A"),
	}
	if len(b.events) != len(want) {
		t.Fatalf("events = %+v", b.events)
	}
	for i := range want {
		if b.events[i] != want[i] {
			t.Fatalf("event[%d] = %+v, want %+v", i, b.events[i], want[i])
		}
	}
}

func TestTypingNoOps(t *testing.T) {
	p := NewPresenceRegistry()
	c := NewTypingIndicatorCoordinator(p)
	a := newFake("ca")
	p.Register("A", "", a)
	a.reset()

	if !c.StopTyping("B", "A") {
		t.Fatal("stop without start should still be relayed")
	}

	cases := []struct {
		name string
		fn   func() bool
	}{
		{"offline target", func() bool { return c.StartTyping("A", "Z") }},
		{"empty target", func() bool { return c.StopTyping("A", "") }},
		{"empty sender", func() bool { return c.StartTyping("", "A") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.fn() {
				t.Fatal("unexpected relay")
			}
		})
	}
	if got := a.named(EventTypingStop); len(got) != 1 {
		t.Fatalf("stop events = %d", len(got))
	}
	if got := a.named(EventTypingStart); len(got) != 0 {
		t.Fatalf("start events = %d", len(got))
	}
}

// No server-side expiry: when the typing party drops without a stop signal
// the peer never gets typing_stop and its indicator stays on.
func TestTypingPartyDisconnectLeavesIndicator(t *testing.T) {
	h := newTestHub(t, HubOptions{})
	a := h.join("A", "Alice")
	b := h.join("B", "Bob")

	h.frame(a, EventTypingStart, TypingPayload{To: "B"})
	h.disconnect(a)

	if got := len(b.named(EventTypingStart)); got != 1 {
		t.Fatalf("typing_start = %d", got)
	}
	if got := len(b.named(EventTypingStop)); got != 0 {
		t.Fatalf("typing_stop = %d, want none", got)
	}
	if ids := rosterIDs(b.lastRoster(t)); !equalIDs(ids, []string{"B"}) {
		t.Fatalf("roster = %v", ids)
	}
}
