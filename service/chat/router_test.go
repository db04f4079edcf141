package chat

import (
	"strings"
	"testing"

	"github.com/Virstriker/ChatApp/tools/ids"
)

type routerFixture struct {
	presence *PresenceRegistry
	status   *StatusTracker
	router   *MessageRouter
}

func newRouterFixture(maxBody int) *routerFixture {
	p := NewPresenceRegistry()
	s := NewStatusTracker(p, 16)
	return &routerFixture{presence: p, status: s, router: NewMessageRouter(p, s, ids.NewGenerator(3), maxBody)}
}

func TestSendToOnlineRecipient(t *testing.T) {
	f := newRouterFixture(0)
	a, b := newFake("ca"), newFake("cb")
	f.presence.Register("A", "Alice", a)
	f.presence.Register("B", "Bob", b)
	a.reset()
	b.reset()

	res := f.router.Send(a, "A", "B", "hi")
	if !res.Delivered || res.MessageID == "" {
		t.Fatalf("result = %+v", res)
	}

	msgs := b.messages()
	if len(msgs) != 1 {
		t.Fatalf("recipient got %d messages", len(msgs))
	}
	if msgs[0] != (MessagePayload{From: "A", Message: "hi", MessageID: res.MessageID}) {
		t.Fatalf("message = %+v", msgs[0])
	}
	sts := a.statuses()
	if len(sts) != 1 || sts[0] != (StatusPayload{MessageID: res.MessageID, Status: StatusDelivered}) {
		t.Fatalf("sender statuses = %+v", sts)
	}
	if len(b.statuses()) != 0 || len(a.messages()) != 0 {
		t.Fatal("events leaked to the wrong side")
	}
}

func TestSendDrops(t *testing.T) {
	tests := []struct {
		name      string
		to        string
		body      string
		full      bool
		wantDrop  DropReason
		wantMsgID bool
	}{
		{"unknown recipient", "C", "hi", false, DropOffline, false},
		{"empty recipient", "", "hi", false, DropMalformed, false},
		{"body over limit", "B", strings.Repeat("x", 33), false, DropMalformed, false},
		{"recipient queue full", "B", "hi", true, DropRefused, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRouterFixture(32)
			a, b := newFake("ca"), newFake("cb")
			f.presence.Register("A", "Alice", a)
			f.presence.Register("B", "Bob", b)
			a.reset()
			b.reset()
			b.full = tt.full

			res := f.router.Send(a, "A", tt.to, tt.body)
			if res.Delivered || res.Reason != tt.wantDrop {
				t.Fatalf("result = %+v, want drop %s", res, tt.wantDrop)
			}
			if (res.MessageID != "") != tt.wantMsgID {
				t.Fatalf("message id = %q", res.MessageID)
			}
			if len(a.events) != 0 || len(b.events) != 0 {
				t.Fatalf("drop emitted events: sender=%v recipient=%v", a.events, b.events)
			}
			if f.status.Len() != 0 {
				t.Fatal("dropped message recorded in ledger")
			}
		})
	}
}

func TestBodyAtLimitIsDelivered(t *testing.T) {
	f := newRouterFixture(32)
	a, b := newFake("ca"), newFake("cb")
	f.presence.Register("A", "", a)
	f.presence.Register("B", "", b)
	if res := f.router.Send(a, "A", "B", strings.Repeat("x", 32)); !res.Delivered {
		t.Fatalf("result = %+v", res)
	}
}

func TestSendToSelf(t *testing.T) {
	f := newRouterFixture(0)
	a := newFake("ca")
	f.presence.Register("A", "Alice", a)
	a.reset()

	res := f.router.Send(a, "A", "A", "note to self")
	if !res.Delivered {
		t.Fatalf("result = %+v", res)
	}
	if len(a.messages()) != 1 || len(a.statuses()) != 1 {
		t.Fatalf("events = %+v", a.events)
	}
}

func TestMessageIDsUniqueInTightLoop(t *testing.T) {
	f := newRouterFixture(0)
	a, b := newFake("ca"), newFake("cb")
	f.presence.Register("A", "", a)
	f.presence.Register("B", "", b)

	seen := make(map[string]bool)
	for i := 0; i < 2000; i++ {
		res := f.router.Send(a, "A", "B", "x")
		if seen[res.MessageID] {
			t.Fatalf("duplicate id %s at %d", res.MessageID, i)
		}
		seen[res.MessageID] = true
	}
}
