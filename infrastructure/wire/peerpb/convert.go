package peerpb

import (
	"fmt"

	"github.com/google/uuid"

	"bhid/domain/wire"
)

// ToProto converts a domain wire.InnerMessage to its wire representation.
func ToProto(m wire.InnerMessage) *InnerMessage {
	var kind InnerMessageKind
	switch m.Kind {
	case wire.Open:
		kind = OPEN
	case wire.Close:
		kind = CLOSE
	default:
		kind = INNER_DATA
	}
	id := m.ID
	return &InnerMessage{Kind: kind, ID: id[:], Payload: m.Payload}
}

// FromProto converts a wire representation back to a domain wire.InnerMessage.
func FromProto(m *InnerMessage) (wire.InnerMessage, error) {
	id, err := uuid.FromBytes(m.ID)
	if err != nil {
		return wire.InnerMessage{}, fmt.Errorf("peerpb: invalid inner message id: %w", err)
	}

	switch m.Kind {
	case OPEN:
		return wire.NewOpen(id), nil
	case CLOSE:
		return wire.NewClose(id), nil
	default:
		return wire.NewData(id, m.Payload), nil
	}
}
