package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Virstriker/ChatApp/tools/ids"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type wsFixture struct {
	srv    *httptest.Server
	hub    *Hub
	cancel context.CancelFunc
}

func newWSFixture(t *testing.T, opts ServerOptions) *wsFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub(HubOptions{IDs: ids.NewGenerator(9)})
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	r := gin.New()
	r.GET("/ws", NewServer(hub, opts).HandleWS)
	srv := httptest.NewServer(r)

	f := &wsFixture{srv: srv, hub: hub, cancel: cancel}
	t.Cleanup(func() {
		cancel()
		<-hub.Done()
		srv.Close()
	})
	return f
}

func (f *wsFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"event": event, "data": data}); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

// next reads frames until one named event arrives.
func next(t *testing.T, conn *websocket.Conn, event string) inbound {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var in inbound
		if err := conn.ReadJSON(&in); err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if in.Event == event {
			return in
		}
	}
}

// waitRoster reads rosters until one lists exactly want.
func waitRoster(t *testing.T, conn *websocket.Conn, want ...string) {
	t.Helper()
	for {
		var roster []RosterEntry
		in := next(t, conn, EventRoster)
		if err := json.Unmarshal(in.Data, &roster); err != nil {
			t.Fatal(err)
		}
		if equalIDs(rosterIDs(roster), want) {
			return
		}
	}
}

// expectSilence fails if any frame other than a roster arrives within d.
func expectSilence(t *testing.T, conn *websocket.Conn, d time.Duration) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(d))
	for {
		var in inbound
		if err := conn.ReadJSON(&in); err != nil {
			return
		}
		if in.Event != EventRoster {
			t.Fatalf("unexpected %s frame: %s", in.Event, in.Data)
		}
	}
}

func TestWSMessageDeliveredAndRead(t *testing.T) {
	f := newWSFixture(t, ServerOptions{})
	a, b := f.dial(t), f.dial(t)

	send(t, a, EventIdentify, IdentifyPayload{ID: "A", DisplayName: "Alice"})
	waitRoster(t, a, "A")
	send(t, b, EventIdentify, IdentifyPayload{ID: "B", DisplayName: "Bob"})
	waitRoster(t, b, "A", "B")
	waitRoster(t, a, "A", "B")

	send(t, a, EventSendMessage, SendMessagePayload{To: "B", Message: "hi"})

	var msg MessagePayload
	if err := json.Unmarshal(next(t, b, EventMessage).Data, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.From != "A" || msg.Message != "hi" || msg.MessageID == "" {
		t.Fatalf("message = %+v", msg)
	}

	var st StatusPayload
	if err := json.Unmarshal(next(t, a, EventStatus).Data, &st); err != nil {
		t.Fatal(err)
	}
	if st != (StatusPayload{MessageID: msg.MessageID, Status: StatusDelivered}) {
		t.Fatalf("status = %+v", st)
	}

	send(t, b, EventReadReceipt, ReadReceiptPayload{From: "A", MessageID: msg.MessageID})
	if err := json.Unmarshal(next(t, a, EventStatus).Data, &st); err != nil {
		t.Fatal(err)
	}
	if st != (StatusPayload{MessageID: msg.MessageID, Status: StatusRead}) {
		t.Fatalf("status = %+v", st)
	}

	// a duplicate receipt is dropped
	send(t, b, EventReadReceipt, ReadReceiptPayload{From: "A", MessageID: msg.MessageID})
	expectSilence(t, a, 200*time.Millisecond)
}

func TestWSSendToNeverConnected(t *testing.T) {
	f := newWSFixture(t, ServerOptions{})
	a := f.dial(t)
	send(t, a, EventIdentify, IdentifyPayload{ID: "A", DisplayName: "Alice"})
	waitRoster(t, a, "A")

	send(t, a, EventSendMessage, SendMessagePayload{To: "C", Message: "hello?"})
	expectSilence(t, a, 200*time.Millisecond)
}

func TestWSTypingRelay(t *testing.T) {
	f := newWSFixture(t, ServerOptions{})
	a, b := f.dial(t), f.dial(t)
	send(t, a, EventIdentify, IdentifyPayload{ID: "A"})
	waitRoster(t, a, "A")
	send(t, b, EventIdentify, IdentifyPayload{ID: "B"})
	waitRoster(t, a, "A", "B")

	send(t, a, EventTypingStart, TypingPayload{To: "B"})
	var tn TypingNotice
	if err := json.Unmarshal(next(t, b, EventTypingStart).Data, &tn); err != nil {
		t.Fatal(err)
	}
	if tn.From != "A" {
		t.Fatalf("typing_start from %q", tn.From)
	}
	send(t, a, EventTypingStop, TypingPayload{To: "B"})
	if err := json.Unmarshal(next(t, b, EventTypingStop).Data, &tn); err != nil {
		t.Fatal(err)
	}
	if tn.From != "A" {
		t.Fatalf("typing_stop from %q", tn.From)
	}
}

func TestWSDisconnectUpdatesRoster(t *testing.T) {
	f := newWSFixture(t, ServerOptions{})
	a, b := f.dial(t), f.dial(t)
	send(t, a, EventIdentify, IdentifyPayload{ID: "A"})
	waitRoster(t, a, "A")
	send(t, b, EventIdentify, IdentifyPayload{ID: "B"})
	waitRoster(t, b, "A", "B")

	_ = a.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = a.Close()
	waitRoster(t, b, "B")
}

func TestWSGarbageFramesAreIgnored(t *testing.T) {
	f := newWSFixture(t, ServerOptions{})
	a := f.dial(t)

	for _, raw := range []string{`not json`, `{"event":""}`, `{"event":"identify","data":"x"}`, `[]`} {
		if err := a.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
			t.Fatal(err)
		}
	}
	// the connection survives and still works
	send(t, a, EventIdentify, IdentifyPayload{ID: "A"})
	waitRoster(t, a, "A")
}

func TestWSOversizedFrameClosesConnection(t *testing.T) {
	f := newWSFixture(t, ServerOptions{Session: SessionOptions{MaxFrameBytes: 512}})
	a := f.dial(t)
	send(t, a, EventIdentify, IdentifyPayload{ID: "A"})
	waitRoster(t, a, "A")

	send(t, a, EventSendMessage, SendMessagePayload{To: "A", Message: strings.Repeat("x", 1024)})
	_ = a.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		if _, _, err := a.ReadMessage(); err != nil {
			break
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	deadline := time.Now().Add(2 * time.Second)
	for {
		s, err := f.hub.Stats(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if s.Participants == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("participant still online: %+v", s)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWSOriginRejected(t *testing.T) {
	f := newWSFixture(t, ServerOptions{CheckOrigin: func(o string) bool { return o == "http://ok.test" }})
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"

	hdr := http.Header{"Origin": []string{"http://evil.test"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, hdr)
	if err == nil {
		t.Fatal("dial with bad origin succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("resp = %+v", resp)
	}

	hdr.Set("Origin", "http://ok.test")
	conn, _, err := websocket.DefaultDialer.Dial(url, hdr)
	if err != nil {
		t.Fatalf("dial with allowed origin: %v", err)
	}
	_ = conn.Close()
}

func TestWSHubStopClosesClients(t *testing.T) {
	f := newWSFixture(t, ServerOptions{})
	a := f.dial(t)
	send(t, a, EventIdentify, IdentifyPayload{ID: "A"})
	waitRoster(t, a, "A")

	f.cancel()
	<-f.hub.Done()

	_ = a.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, _, err := a.ReadMessage()
		if err == nil {
			continue
		}
		if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			t.Fatalf("err = %v, want normal close", err)
		}
		return
	}
}
