package chat

import (
	"encoding/json"
	"fmt"

	"github.com/Virstriker/ChatApp/logger"
)

// Handler applies one client event. It runs on the hub goroutine.
type Handler interface {
	Event() string
	// NeedsIdentity reports whether the connection must have identified first.
	NeedsIdentity() bool
	Handle(ctx *Context, data json.RawMessage) error
}

// Context is what a handler sees of the hub for a single event.
type Context struct {
	hub  *Hub
	conn *connState
}

func (c *Context) Endpoint() Endpoint { return c.conn.ep }

// ParticipantID is the identity bound to the connection, "" before identify.
func (c *Context) ParticipantID() string { return c.conn.participantID }

func (c *Context) Presence() *PresenceRegistry         { return c.hub.presence }
func (c *Context) Router() *MessageRouter              { return c.hub.router }
func (c *Context) Status() *StatusTracker              { return c.hub.status }
func (c *Context) Typing() *TypingIndicatorCoordinator { return c.hub.typing }
func (c *Context) bind(participantID string)           { c.conn.participantID = participantID }

type Dispatcher struct {
	handlers map[string]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

func (d *Dispatcher) Register(h Handler) { d.handlers[h.Event()] = h }

func (d *Dispatcher) GetHandler(event string) Handler {
	h, ok := d.handlers[event]
	if !ok {
		logger.Debugf("no handler for event=%s", event)
		return nil
	}
	return h
}

func (d *Dispatcher) Dispatch(ctx *Context, event string, data json.RawMessage) error {
	h := d.GetHandler(event)
	if h == nil {
		return fmt.Errorf("no handler for event=%s", event)
	}
	if h.NeedsIdentity() && ctx.ParticipantID() == "" {
		return fmt.Errorf("event=%s before identify", event)
	}
	return h.Handle(ctx, data)
}
