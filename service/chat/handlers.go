package chat

import (
	"encoding/json"
	"fmt"
	"strings"
)

func defaultDispatcher() *Dispatcher {
	d := NewDispatcher()
	d.Register(identifyHandler{})
	d.Register(sendMessageHandler{})
	d.Register(readReceiptHandler{})
	d.Register(typingHandler{event: EventTypingStart})
	d.Register(typingHandler{event: EventTypingStop})
	return d
}

type identifyHandler struct{}

func (identifyHandler) Event() string       { return EventIdentify }
func (identifyHandler) NeedsIdentity() bool { return false }

func (identifyHandler) Handle(c *Context, data json.RawMessage) error {
	p, err := DecodePayload[IdentifyPayload](data)
	if err != nil {
		return err
	}
	id := strings.TrimSpace(p.ID)
	if id == "" {
		return fmt.Errorf("identify without id")
	}
	res := c.Presence().Register(id, p.DisplayName, c.Endpoint())
	if !res.Registered {
		return nil
	}
	c.bind(id)

	h := c.hub
	if res.Evicted != "" {
		h.notifier.Presence(PresenceChange{Kind: PresenceOffline, ParticipantID: res.Evicted})
	}
	h.notifier.Presence(PresenceChange{
		Kind:          PresenceOnline,
		ParticipantID: id,
		DisplayName:   c.Presence().DisplayName(id),
	})
	h.metrics.setCounts(h.presence.Online(), h.presence.Connections())
	return nil
}

type sendMessageHandler struct{}

func (sendMessageHandler) Event() string       { return EventSendMessage }
func (sendMessageHandler) NeedsIdentity() bool { return true }

// sendMessageArgs tells a missing message apart from an empty one.
type sendMessageArgs struct {
	To      string  `json:"to"`
	Message *string `json:"message"`
}

func (sendMessageHandler) Handle(c *Context, data json.RawMessage) error {
	p, err := DecodePayload[sendMessageArgs](data)
	if err != nil {
		return err
	}
	if p.Message == nil {
		return fmt.Errorf("send_message without message field to=%q", p.To)
	}
	from := c.ParticipantID()
	res := c.Router().Send(c.Endpoint(), from, p.To, *p.Message)

	h := c.hub
	if res.Delivered {
		h.metrics.message(string(DeliveryDelivered))
		h.metrics.status(StatusDelivered)
		h.notifier.Delivery(DeliveryOutcome{Kind: DeliveryDelivered, MessageID: res.MessageID, From: from, To: p.To})
		return nil
	}
	if res.Reason == DropMalformed {
		return fmt.Errorf("malformed message from=%s to=%q len=%d", from, p.To, len(*p.Message))
	}
	h.metrics.message(string(DeliveryDropped))
	h.notifier.Delivery(DeliveryOutcome{Kind: DeliveryDropped, MessageID: res.MessageID, From: from, To: p.To, Reason: res.Reason})
	return nil
}

type readReceiptHandler struct{}

func (readReceiptHandler) Event() string       { return EventReadReceipt }
func (readReceiptHandler) NeedsIdentity() bool { return true }

func (readReceiptHandler) Handle(c *Context, data json.RawMessage) error {
	p, err := DecodePayload[ReadReceiptPayload](data)
	if err != nil {
		return err
	}
	if p.From == "" || p.MessageID == "" {
		return fmt.Errorf("malformed read receipt")
	}
	reader := c.ParticipantID()
	if !c.Status().MarkRead(p.MessageID, p.From, reader) {
		return nil
	}
	c.hub.metrics.status(StatusRead)
	c.hub.notifier.Delivery(DeliveryOutcome{Kind: DeliveryRead, MessageID: p.MessageID, From: p.From, To: reader})
	return nil
}

type typingHandler struct {
	event string
}

func (h typingHandler) Event() string     { return h.event }
func (typingHandler) NeedsIdentity() bool { return true }

func (h typingHandler) Handle(c *Context, data json.RawMessage) error {
	p, err := DecodePayload[TypingPayload](data)
	if err != nil {
		return err
	}
	var sent bool
	if h.event == EventTypingStart {
		sent = c.Typing().StartTyping(c.ParticipantID(), p.To)
	} else {
		sent = c.Typing().StopTyping(c.ParticipantID(), p.To)
	}
	if sent {
		c.hub.metrics.typing(h.event)
	}
	return nil
}
