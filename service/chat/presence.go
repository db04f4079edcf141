package chat

import (
	"strings"

	"github.com/Virstriker/ChatApp/tools/safe"
)

// Endpoint is one live connection as the core sees it.
// ID is the connection id and doubles as the ownership token for a
// registry entry. Send must not block; false means the frame was dropped.
type Endpoint interface {
	ID() string
	Send(ev ServerEvent) bool
	Close()
}

type participant struct {
	id          string
	displayName string
	ep          Endpoint
}

// RegisterResult describes what a registration changed.
type RegisterResult struct {
	Registered bool
	// Evicted is the id this endpoint held before re-identifying as someone else.
	Evicted string
}

// PresenceRegistry maps participant ids to their live endpoint.
// Not safe for concurrent use: only the hub goroutine touches it.
type PresenceRegistry struct {
	attached map[string]Endpoint // connID -> endpoint, identified or not
	entries  map[string]*participant
	byConn   map[string]string // connID -> participant id it owns
	order    []string          // first-registration order
}

func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{
		attached: make(map[string]Endpoint),
		entries:  make(map[string]*participant),
		byConn:   make(map[string]string),
	}
}

// Attach records a connection so it receives roster broadcasts.
func (r *PresenceRegistry) Attach(ep Endpoint) {
	r.attached[ep.ID()] = ep
}

// Register binds participantID to ep, replacing whatever endpoint held it.
// An empty id is ignored. The full roster goes to every attached connection.
func (r *PresenceRegistry) Register(participantID, displayName string, ep Endpoint) RegisterResult {
	id := strings.TrimSpace(participantID)
	if id == "" || ep == nil {
		return RegisterResult{}
	}
	name := safe.DefaultString(strings.TrimSpace(displayName), id)
	var res RegisterResult
	r.attached[ep.ID()] = ep

	// one identity per connection
	if prev, ok := r.byConn[ep.ID()]; ok && prev != id {
		if p := r.entries[prev]; p != nil && p.ep.ID() == ep.ID() {
			r.remove(prev)
			res.Evicted = prev
		}
	}

	if p, ok := r.entries[id]; ok {
		if p.ep.ID() != ep.ID() {
			delete(r.byConn, p.ep.ID())
		}
		p.displayName = name
		p.ep = ep
	} else {
		r.entries[id] = &participant{id: id, displayName: name, ep: ep}
		r.order = append(r.order, id)
	}
	r.byConn[ep.ID()] = id
	res.Registered = true

	r.broadcast()
	return res
}

// Deregister detaches ep. Its registry entry is removed only when ep still
// owns it; a stale connection closing after a newer one registered the same
// id leaves the newer entry alone. The removed id is returned.
func (r *PresenceRegistry) Deregister(ep Endpoint) (string, bool) {
	if ep == nil {
		return "", false
	}
	connID := ep.ID()
	delete(r.attached, connID)

	id, ok := r.byConn[connID]
	if !ok {
		return "", false
	}
	delete(r.byConn, connID)
	p := r.entries[id]
	if p == nil || p.ep.ID() != connID {
		return "", false
	}
	r.remove(id)
	r.broadcast()
	return id, true
}

func (r *PresenceRegistry) Lookup(participantID string) (Endpoint, bool) {
	p, ok := r.entries[participantID]
	if !ok {
		return nil, false
	}
	return p.ep, true
}

// DisplayName returns the registered name, or "" when offline.
func (r *PresenceRegistry) DisplayName(participantID string) string {
	if p, ok := r.entries[participantID]; ok {
		return p.displayName
	}
	return ""
}

func (r *PresenceRegistry) Snapshot() []RosterEntry {
	out := make([]RosterEntry, 0, len(r.order))
	for _, id := range r.order {
		p := r.entries[id]
		out = append(out, RosterEntry{ID: p.id, DisplayName: p.displayName})
	}
	return out
}

func (r *PresenceRegistry) Online() int { return len(r.entries) }

func (r *PresenceRegistry) Connections() int { return len(r.attached) }

// Endpoints lists every attached connection.
func (r *PresenceRegistry) Endpoints() []Endpoint {
	out := make([]Endpoint, 0, len(r.attached))
	for _, ep := range r.attached {
		out = append(out, ep)
	}
	return out
}

func (r *PresenceRegistry) remove(id string) {
	delete(r.entries, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *PresenceRegistry) broadcast() {
	ev := rosterEvent(r.Snapshot())
	for _, ep := range r.attached {
		ep.Send(ev)
	}
}
