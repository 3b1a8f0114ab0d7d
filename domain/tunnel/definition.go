package tunnel

import (
	"errors"
	"sync/atomic"
)

// ErrBothRoles is returned by Validate when an entry's role is neither
// server nor client.
var ErrBothRoles = errors.New("tunnel: a tunnel is either server or client, never both")

// Key identifies a tunnel definition within the Connections Registry:
// (tracker-name, tunnel-name).
type Key struct {
	Tracker string
	Name    string
}

func (k Key) String() string {
	return k.Tracker + "#" + k.Name
}

// Definition is a persistent tunnel definition held by the Connections
// Registry.
type Definition struct {
	Key  Key
	Role Role

	// Server-role fields.
	ConnectAddress string
	ConnectPort    int

	// Client-role fields.
	ListenAddress string
	ListenPort    string // "", "*", "/path" (unix), or a decimal port string

	// Shared.
	Fixed     bool
	Clients   []string // server-role allow-list when Fixed
	Server    string   // client-role: the single expected peer name when Fixed
	Encrypted bool

	connected atomic.Int32 // live count of established peer sessions
}

// Connected returns the number of currently established peer sessions.
func (d *Definition) Connected() int32 { return d.connected.Load() }

// IncConnected/DecConnected maintain the live counter as sessions come and go.
func (d *Definition) IncConnected() int32 { return d.connected.Add(1) }
func (d *Definition) DecConnected() int32 { return d.connected.Add(-1) }

// ResetConnected zeroes the counter (done on Registry.Set).
func (d *Definition) ResetConnected() { d.connected.Store(0) }

// AllowsPeer reports whether name may use this tunnel under its current
// fixed/allow-list policy.
func (d *Definition) AllowsPeer(name string) bool {
	switch d.Role {
	case Server:
		if !d.Fixed {
			return true
		}
		for _, c := range d.Clients {
			if c == name {
				return true
			}
		}
		return false
	case Client:
		// A client-role tunnel is effectively always fixed: Server names the
		// single allowed peer.
		return name == d.Server
	default:
		return false
	}
}

// Validate checks the structural invariants a tunnel definition must hold.
func (d *Definition) Validate() error {
	if d.Role != Server && d.Role != Client {
		return ErrBothRoles
	}
	return nil
}

// Clone returns a deep copy safe to hand to callers outside the Registry's
// lock, preserving the live counter's current value. Fields are copied
// individually rather than via a struct value copy, since Definition
// embeds an atomic.Int32 that must never be copied.
func (d *Definition) Clone() *Definition {
	clients := make([]string, len(d.Clients))
	copy(clients, d.Clients)

	clone := &Definition{
		Key:            d.Key,
		Role:           d.Role,
		ConnectAddress: d.ConnectAddress,
		ConnectPort:    d.ConnectPort,
		ListenAddress:  d.ListenAddress,
		ListenPort:     d.ListenPort,
		Fixed:          d.Fixed,
		Clients:        clients,
		Server:         d.Server,
		Encrypted:      d.Encrypted,
	}
	clone.connected.Store(d.connected.Load())
	return clone
}
