package peer

import (
	"sync"

	"bhid/application"
	"bhid/domain/tunnel"
)

// connection is the Peer Engine's live state for one Registry entry: every
// session currently open against it, and enough of the last tracker push
// to restart discovery.
type connection struct {
	key tunnel.Key
	def *tunnel.Definition

	front application.FrontPlane

	mu       sync.Mutex
	sessions map[*session]struct{}
	trying   bool // an outbound attempt sequence is already in flight

	lastPeerAvailable    application.PeerAvailable
	hasLastPeerAvailable bool
}

func newConnection(key tunnel.Key, def *tunnel.Definition, front application.FrontPlane) *connection {
	return &connection{key: key, def: def, front: front, sessions: make(map[*session]struct{})}
}

// addEstablished records s as established, applying the loser-closes rule:
// if another session for this connection is already established, s closes
// itself instead.
func (c *connection) addEstablished(s *session) bool {
	c.mu.Lock()
	for existing := range c.sessions {
		if existing != s && existing.sm.Established() {
			c.mu.Unlock()
			return false
		}
	}
	c.sessions[s] = struct{}{}
	c.mu.Unlock()
	return true
}

func (c *connection) remove(s *session) {
	c.mu.Lock()
	delete(c.sessions, s)
	c.mu.Unlock()
}

func (c *connection) all() []*session {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*session, 0, len(c.sessions))
	for s := range c.sessions {
		out = append(out, s)
	}
	return out
}

func (c *connection) rememberPeerAvailable(ev application.PeerAvailable) {
	c.mu.Lock()
	c.lastPeerAvailable = ev
	c.hasLastPeerAvailable = true
	c.mu.Unlock()
}

func (c *connection) getLastPeerAvailable() (application.PeerAvailable, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPeerAvailable, c.hasLastPeerAvailable
}

func (c *connection) setTrying(v bool) {
	c.mu.Lock()
	c.trying = v
	c.mu.Unlock()
}

func (c *connection) isTrying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trying
}

func (c *connection) closeAll() {
	for _, s := range c.all() {
		s.bye()
		_ = s.close()
		c.remove(s)
	}
}
