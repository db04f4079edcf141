package chat

import (
	"context"
	"encoding/json"

	"github.com/Virstriker/ChatApp/logger"
	"github.com/Virstriker/ChatApp/tools/ids"
	"github.com/Virstriker/ChatApp/tools/safe"

	"go.uber.org/zap"
)

type EventKind int

const (
	KindConnect EventKind = iota + 1
	KindFrame
	KindDisconnect
)

func (k EventKind) String() string {
	switch k {
	case KindConnect:
		return "connect"
	case KindFrame:
		return "frame"
	case KindDisconnect:
		return "disconnect"
	}
	return "unknown"
}

// Event is one thing that happened on a connection.
type Event struct {
	Kind EventKind
	Conn Endpoint
	Name string          // protocol event, KindFrame only
	Data json.RawMessage // KindFrame only
}

type connState struct {
	ep            Endpoint
	participantID string
}

type HubOptions struct {
	EventQueueSize   int
	MaxBodyBytes     int
	StatusLedgerSize int
	IDs              *ids.Generator
	Notifier         *Notifier
	Metrics          *Metrics
}

type Stats struct {
	Participants int `json:"participants"`
	Connections  int `json:"connections"`
}

// Hub owns the core components and applies events to them one at a time on
// the goroutine running Run. Nothing else touches the registry, the ledger or
// the per-connection identity, so none of them carry a lock.
type Hub struct {
	presence *PresenceRegistry
	status   *StatusTracker
	router   *MessageRouter
	typing   *TypingIndicatorCoordinator
	disp     *Dispatcher

	conns    map[string]*connState
	events   chan Event
	statsReq chan chan Stats
	done     chan struct{}

	notifier *Notifier
	metrics  *Metrics
}

func NewHub(opts HubOptions) *Hub {
	if opts.EventQueueSize <= 0 {
		opts.EventQueueSize = 1024
	}
	presence := NewPresenceRegistry()
	status := NewStatusTracker(presence, opts.StatusLedgerSize)
	return &Hub{
		presence: presence,
		status:   status,
		router:   NewMessageRouter(presence, status, opts.IDs, opts.MaxBodyBytes),
		typing:   NewTypingIndicatorCoordinator(presence),
		disp:     defaultDispatcher(),
		conns:    make(map[string]*connState),
		events:   make(chan Event, opts.EventQueueSize),
		statsReq: make(chan chan Stats),
		done:     make(chan struct{}),
		notifier: opts.Notifier,
		metrics:  opts.Metrics,
	}
}

// Run applies events until ctx is cancelled, then closes every attached
// connection and closes Done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case ev := <-h.events:
			h.apply(ev)
		case reply := <-h.statsReq:
			reply <- h.stats()
		}
	}
}

// Submit hands an event to the loop. It blocks while the queue is full, which
// only stalls the submitting connection. False once the hub has stopped.
func (h *Hub) Submit(ev Event) bool {
	if ev.Conn == nil {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.events <- ev:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	select {
	case h.statsReq <- reply:
	case <-h.done:
		return Stats{}, context.Canceled
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}

func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) stats() Stats {
	return Stats{Participants: h.presence.Online(), Connections: h.presence.Connections()}
}

func (h *Hub) apply(ev Event) {
	defer safe.Recover("hub.apply")

	id := ev.Conn.ID()
	switch ev.Kind {
	case KindConnect:
		h.conns[id] = &connState{ep: ev.Conn}
		h.presence.Attach(ev.Conn)
		h.metrics.setCounts(h.presence.Online(), h.presence.Connections())

	case KindDisconnect:
		delete(h.conns, id)
		if pid, removed := h.presence.Deregister(ev.Conn); removed {
			h.notifier.Presence(PresenceChange{Kind: PresenceOffline, ParticipantID: pid})
			logger.Debugf("[hub] participant %s left conn=%s", pid, id)
		}
		h.metrics.setCounts(h.presence.Online(), h.presence.Connections())

	case KindFrame:
		st, ok := h.conns[id]
		if !ok {
			logger.Debugf("[hub] frame from unknown conn=%s event=%s", id, ev.Name)
			return
		}
		if err := h.disp.Dispatch(&Context{hub: h, conn: st}, ev.Name, ev.Data); err != nil {
			logger.Debug("[hub] event ignored",
				zap.String("conn", id),
				zap.String("event", ev.Name),
				zap.Error(err))
		}
	}
}

// shutdown closes every attached connection plus any whose connect event
// is still queued; those would otherwise linger until their read deadline.
func (h *Hub) shutdown() {
	eps := h.presence.Endpoints()
	for _, ep := range eps {
		ep.Close()
	}
	pending := 0
	for {
		select {
		case ev := <-h.events:
			if ev.Kind == KindConnect {
				ev.Conn.Close()
				pending++
			}
		default:
			logger.Infof("[hub] stopped, closed %d connections (%d pending)", len(eps)+pending, pending)
			return
		}
	}
}
