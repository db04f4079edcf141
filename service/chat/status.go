package chat

type ledgerEntry struct {
	sender    string
	recipient string
	status    Status
}

// StatusTracker reports delivered/read transitions back to the sender.
//
// Delivered messages are remembered in a fixed-size ledger so a read receipt
// can be checked against who actually sent and received the message. The
// oldest entry is evicted once the ledger is full; a receipt for an evicted
// or unknown message is dropped. Nothing survives a restart.
type StatusTracker struct {
	presence *PresenceRegistry
	entries  map[string]*ledgerEntry
	ring     []string
	next     int
}

func NewStatusTracker(presence *PresenceRegistry, capacity int) *StatusTracker {
	if capacity <= 0 {
		capacity = 10000
	}
	return &StatusTracker{
		presence: presence,
		entries:  make(map[string]*ledgerEntry, capacity),
		ring:     make([]string, capacity),
	}
}

// MarkDelivered tells the sender that messageID reached the recipient's
// connection and records it for a later read receipt.
func (t *StatusTracker) MarkDelivered(messageID, senderID, recipientID string, sender Endpoint) {
	if messageID == "" {
		return
	}
	if _, dup := t.entries[messageID]; !dup {
		t.remember(messageID, &ledgerEntry{sender: senderID, recipient: recipientID, status: StatusDelivered})
	}
	if sender != nil {
		sender.Send(statusEvent(messageID, StatusDelivered))
	}
}

// MarkRead forwards a read receipt to the original sender. It is accepted
// once per message, only from the recorded recipient, and only after the
// message was delivered. Returns true when a read status was emitted.
func (t *StatusTracker) MarkRead(messageID, originalSenderID, readerID string) bool {
	e, ok := t.entries[messageID]
	if !ok {
		return false
	}
	if e.sender != originalSenderID || e.recipient != readerID {
		return false
	}
	if StatusRead.rank() <= e.status.rank() {
		return false
	}
	e.status = StatusRead

	ep, online := t.presence.Lookup(originalSenderID)
	if !online {
		return false
	}
	return ep.Send(statusEvent(messageID, StatusRead))
}

// StatusOf returns the ledger status of messageID, if still remembered.
func (t *StatusTracker) StatusOf(messageID string) (Status, bool) {
	e, ok := t.entries[messageID]
	if !ok {
		return "", false
	}
	return e.status, true
}

func (t *StatusTracker) Len() int { return len(t.entries) }

func (t *StatusTracker) remember(id string, e *ledgerEntry) {
	if old := t.ring[t.next]; old != "" {
		delete(t.entries, old)
	}
	t.ring[t.next] = id
	t.entries[id] = e
	t.next = (t.next + 1) % len(t.ring)
}
