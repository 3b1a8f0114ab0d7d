// Package framing is the length-delimited message framer of the tracker
// wire protocol (over TLS): a 4-byte big-endian length prefix followed by
// the message bytes. The peer transport carries one message per UDP
// datagram and does not use it. Generalized from
// a fixed-size buffer encoder to a stream reader/writer since both callers
// here read from and write to arbitrary io.Reader/io.Writer, not a single
// pre-sized buffer.
package framing

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxMessageSize bounds a single frame's payload to guard against a
// corrupt or hostile length prefix causing an unbounded allocation.
const MaxMessageSize = 16 << 20 // 16 MiB

// WriteMessage writes one length-prefixed frame to w.
func WriteMessage(w io.Writer, payload []byte) error {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("framing: write length prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("framing: write payload: %w", err)
	}
	return nil
}

// ReadMessage reads one length-prefixed frame from r.
func ReadMessage(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > MaxMessageSize {
		return nil, fmt.Errorf("framing: frame of %d bytes exceeds max %d", length, MaxMessageSize)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("framing: read payload: %w", err)
	}
	return payload, nil
}
