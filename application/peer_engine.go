package application

import "bhid/domain/tunnel"

// PeerEngine establishes, authenticates, secures, and multiplexes UTP
// tunnels to other daemons. The Connections Registry and
// Tracker Client call into it through this narrow interface.
type PeerEngine interface {
	// OpenServer starts hosting def as a server-role tunnel.
	OpenServer(tracker string, def *tunnel.Definition) error
	// OpenClient starts hosting def as a client-role tunnel.
	OpenClient(tracker string, def *tunnel.Definition) error
	// Close ends every session of, and stops hosting, the named tunnel.
	Close(tracker, name string) error

	// HandlePeerAvailable reacts to a tracker PEER_AVAILABLE push by
	// beginning the outbound dial/punch sequence.
	HandlePeerAvailable(ev PeerAvailable)
	// HandleServerAvailable reacts to a tracker SERVER_AVAILABLE push.
	HandleServerAvailable(ev ServerAvailable)

	// Shutdown closes every session and the UDP endpoint.
	Shutdown() error
}
