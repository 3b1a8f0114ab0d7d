package application

import (
	"context"
	"net/netip"
)

// StatusReport is one tunnel's periodic STATUS payload.
type StatusReport struct {
	Tracker   string
	Tunnel    string
	Connected int
	Active    bool
	Addresses []netip.AddrPort
}

// PeerIdentity is the result of a LOOKUP_IDENTITY_REQUEST/RESPONSE.
type PeerIdentity struct {
	Name         string
	PublicKeyPEM string
}

// PeerAvailable is a tracker-pushed PEER_AVAILABLE notification.
type PeerAvailable struct {
	Tracker  string
	Tunnel   string
	PeerName string
	Internal []netip.AddrPort
	External netip.AddrPort
}

// ServerAvailable is a tracker-pushed SERVER_AVAILABLE notification.
type ServerAvailable struct {
	Tracker string
	Tunnel  string
}

// TrackerEvents is what the Tracker Client hands the Peer Engine: callbacks
// for the asynchronous, server-initiated events it must react to. Kept as
// a narrow interface rather than a direct reference, so either side can be
// faked independently in tests.
type TrackerEvents interface {
	OnRegistered(tracker string)
	OnPeerAvailable(PeerAvailable)
	OnServerAvailable(ServerAvailable)
}

// TrackerRequester is what the Peer Engine needs from the Tracker Client:
// outbound requests only, never the client's own lifecycle.
type TrackerRequester interface {
	Status(ctx context.Context, r StatusReport) error
	PunchRequest(ctx context.Context, tracker, tunnel string) error
	LookupIdentity(ctx context.Context, tracker, peerName string) (PeerIdentity, error)
}

// TrackerClient maintains one keep-alive TLS control session per configured
// tracker.
type TrackerClient interface {
	TrackerRequester

	// Run drives the connection lifecycle until ctx is cancelled.
	Run(ctx context.Context, tracker string) error
	// Registered reports whether the named tracker session is currently in
	// the `registered` state.
	Registered(tracker string) bool
	// Shutdown sends active=false STATUS for every server-role tunnel
	// before closing.
	Shutdown(ctx context.Context) error
}
