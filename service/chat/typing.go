package chat

import "strings"

// TypingIndicatorCoordinator relays typing signals between two participants.
// It keeps no state: if the typing party drops without a stop signal the
// peer's indicator stays on until the client clears it.
type TypingIndicatorCoordinator struct {
	presence *PresenceRegistry
}

func NewTypingIndicatorCoordinator(presence *PresenceRegistry) *TypingIndicatorCoordinator {
	return &TypingIndicatorCoordinator{presence: presence}
}

func (c *TypingIndicatorCoordinator) StartTyping(fromID, toID string) bool {
	return c.relay(EventTypingStart, fromID, toID)
}

// StopTyping is safe without a prior StartTyping.
func (c *TypingIndicatorCoordinator) StopTyping(fromID, toID string) bool {
	return c.relay(EventTypingStop, fromID, toID)
}

func (c *TypingIndicatorCoordinator) relay(event, fromID, toID string) bool {
	fromID = strings.TrimSpace(fromID)
	toID = strings.TrimSpace(toID)
	if fromID == "" || toID == "" {
		return false
	}
	ep, ok := c.presence.Lookup(toID)
	if !ok {
		return false
	}
	return ep.Send(typingEvent(event, fromID))
}
