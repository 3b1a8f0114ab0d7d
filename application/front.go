package application

import (
	"github.com/google/uuid"

	"bhid/domain/tunnel"
	"bhid/domain/wire"
)

// SessionSink is the narrow handle the Peer Engine hands the Front Plane
// for one established peer session, so the Front Plane can push inner
// messages back without holding a direct reference to the session or its
// connection.
type SessionSink interface {
	SessionID() uuid.UUID
	Send(msg wire.InnerMessage) error
}

// FrontPlane terminates the local TCP side of every tunnel.
type FrontPlane interface {
	// OnSessionEstablished starts relaying for a newly established session.
	OnSessionEstablished(key tunnel.Key, def *tunnel.Definition, sink SessionSink)
	// OnSessionClosed tears down any local state tied to a session that has
	// gone away (peer disconnect, policy rejection, transport error).
	OnSessionClosed(key tunnel.Key, sessionID uuid.UUID)
	// OnInner delivers one inbound inner message for a session.
	OnInner(key tunnel.Key, sessionID uuid.UUID, msg wire.InnerMessage)
	// Shutdown ends all sockets, then closes every listener; it does not
	// pause between the two.
	Shutdown()
}
