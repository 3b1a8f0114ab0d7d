// Package wire holds the pure shapes of the peer-to-peer inner message
// multiplex, independent of how they are framed or
// encrypted on the wire.
package wire

import "github.com/google/uuid"

// InnerKind is the type tag of an InnerMessage.
type InnerKind int

const (
	Open InnerKind = iota
	Data
	Close
)

func (k InnerKind) String() string {
	switch k {
	case Open:
		return "OPEN"
	case Data:
		return "DATA"
	case Close:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// InnerMessage is OPEN, DATA, or CLOSE, carrying the tunnel-session id the
// message belongs to.
type InnerMessage struct {
	Kind    InnerKind
	ID      uuid.UUID
	Payload []byte // only meaningful for Data
}

func NewOpen(id uuid.UUID) InnerMessage {
	return InnerMessage{Kind: Open, ID: id}
}

func NewData(id uuid.UUID, payload []byte) InnerMessage {
	return InnerMessage{Kind: Data, ID: id, Payload: payload}
}

func NewClose(id uuid.UUID) InnerMessage {
	return InnerMessage{Kind: Close, ID: id}
}
