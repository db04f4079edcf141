package chat

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Virstriker/ChatApp/tools/decode"
)

// client -> server
const (
	EventIdentify    = "identify"
	EventSendMessage = "send_message"
	EventReadReceipt = "read_receipt"
	EventTypingStart = "typing_start"
	EventTypingStop  = "typing_stop"
)

// server -> client (typing_start/typing_stop reuse the names above)
const (
	EventRoster  = "roster"
	EventMessage = "message"
	EventStatus  = "status"
)

type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

func (s Status) rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	}
	return 0
}

// Frame is the wire envelope: {"event": "...", "data": {...}}.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type IdentifyPayload struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

type SendMessagePayload struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

type ReadReceiptPayload struct {
	From      string `json:"from"`
	MessageID string `json:"messageId"`
}

type TypingPayload struct {
	To string `json:"to"`
}

type RosterEntry struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

type MessagePayload struct {
	From      string `json:"from"`
	Message   string `json:"message"`
	MessageID string `json:"messageId"`
}

type StatusPayload struct {
	MessageID string `json:"messageId"`
	Status    Status `json:"status"`
}

type TypingNotice struct {
	From string `json:"from"`
}

// ServerEvent is queued on a connection and encoded by its writer.
type ServerEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func rosterEvent(entries []RosterEntry) ServerEvent {
	if entries == nil {
		entries = []RosterEntry{}
	}
	return ServerEvent{Event: EventRoster, Data: entries}
}

func messageEvent(from, body, id string) ServerEvent {
	return ServerEvent{Event: EventMessage, Data: MessagePayload{From: from, Message: body, MessageID: id}}
}

func statusEvent(id string, s Status) ServerEvent {
	return ServerEvent{Event: EventStatus, Data: StatusPayload{MessageID: id, Status: s}}
}

func typingEvent(name, from string) ServerEvent {
	return ServerEvent{Event: name, Data: TypingNotice{From: from}}
}

// ParseFrame decodes one text frame. The payload stays raw until a handler
// decodes it into its own shape.
func ParseFrame(raw []byte) (*Frame, error) {
	f := &Frame{}
	if err := json.Unmarshal(raw, f); err != nil {
		return nil, fmt.Errorf("unmarshal frame failed: %w", err)
	}
	f.Event = strings.TrimSpace(f.Event)
	if f.Event == "" {
		return nil, fmt.Errorf("frame has no event name")
	}
	return f, nil
}

func EncodeEvent(ev ServerEvent) ([]byte, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", ev.Event, err)
	}
	return b, nil
}

// DecodePayload decodes a frame's data object into T.
func DecodePayload[T any](data json.RawMessage) (*T, error) {
	return decode.DecodeRaw[T](data)
}
