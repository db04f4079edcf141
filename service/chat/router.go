package chat

import (
	"strings"

	"github.com/Virstriker/ChatApp/tools/ids"
)

// DropReason says why a message was not delivered.
type DropReason string

const (
	DropNone      DropReason = ""
	DropMalformed DropReason = "malformed"
	DropOffline   DropReason = "offline"
	DropRefused   DropReason = "refused" // recipient queue full or closed
)

type SendResult struct {
	MessageID string
	Delivered bool
	Reason    DropReason
}

// MessageRouter forwards a private message to its recipient's connection and
// acknowledges delivery to the sender. Offline recipients are a silent drop:
// there is no queue and no error frame.
type MessageRouter struct {
	presence *PresenceRegistry
	status   *StatusTracker
	ids      *ids.Generator
	maxBody  int
}

func NewMessageRouter(presence *PresenceRegistry, status *StatusTracker, gen *ids.Generator, maxBody int) *MessageRouter {
	if gen == nil {
		gen = ids.Default()
	}
	if maxBody <= 0 {
		maxBody = 4096
	}
	return &MessageRouter{presence: presence, status: status, ids: gen, maxBody: maxBody}
}

// Send routes body from senderID to recipientID. sender is the connection the
// message arrived on; the delivered ack goes back to it.
func (r *MessageRouter) Send(sender Endpoint, senderID, recipientID, body string) SendResult {
	senderID = strings.TrimSpace(senderID)
	recipientID = strings.TrimSpace(recipientID)
	if senderID == "" || recipientID == "" || len(body) > r.maxBody {
		return SendResult{Reason: DropMalformed}
	}

	to, ok := r.presence.Lookup(recipientID)
	if !ok {
		return SendResult{Reason: DropOffline}
	}

	id := r.ids.NextString()
	if !to.Send(messageEvent(senderID, body, id)) {
		return SendResult{MessageID: id, Reason: DropRefused}
	}
	r.status.MarkDelivered(id, senderID, recipientID, sender)
	return SendResult{MessageID: id, Delivered: true}
}
