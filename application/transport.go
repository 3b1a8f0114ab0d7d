package application

import (
	"net"
	"time"
)

// PeerConn is the seam the Peer Engine's session state machine runs over.
// The production adapter (infrastructure/peer/transport) frames a UDP flow;
// a real deployment may swap in a full uTP implementation behind this same
// port without touching the state machine, handshake, or multiplex above it
// (see DESIGN.md "Open Question decisions" #4).
type PeerConn interface {
	// ReadMessage returns one length-delimited OuterMessage payload.
	ReadMessage() ([]byte, error)
	// WriteMessage writes one length-delimited OuterMessage payload.
	WriteMessage([]byte) error
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
	RemoteAddr() net.Addr
	Close() error
}

// PeerListener accepts inbound PeerConns on the daemon's one UDP endpoint.
type PeerListener interface {
	Accept() (PeerConn, error)
	Close() error
	Addr() net.Addr
}

// PeerDialer opens outbound PeerConns, used both for direct dials and for
// the NAT-punch attempt sequence.
type PeerDialer interface {
	Dial(addr string) (PeerConn, error)
	// Punch sends n best-effort UDP datagrams to addr ahead of a Dial, used
	// to open a hole in a symmetric NAT before the uTP handshake.
	Punch(addr string, n int) error
}
