// Package peerpb defines the peer wire protocol's outer envelope, using
// the same hand-maintained protobuf-struct-tag style as trackerpb (see
// that package's doc comment and DESIGN.md for the grounding).
package peerpb

import "github.com/golang/protobuf/proto"

type OuterType int32

const (
	UNKNOWN OuterType = iota
	ALIVE
	BYE
	CONNECT_REQUEST
	CONNECT_RESPONSE
	DATA
)

// OuterMessage is length-delimited over the peer transport.
type OuterMessage struct {
	Type OuterType `protobuf:"varint,1,opt,name=type,enum=peerpb.OuterType" json:"type,omitempty"`

	Connect *ConnectMessage `protobuf:"bytes,2,opt,name=connect" json:"connect,omitempty"`
	Data    *DataMessage    `protobuf:"bytes,3,opt,name=data" json:"data,omitempty"`
}

func (m *OuterMessage) Reset()         { *m = OuterMessage{} }
func (m *OuterMessage) String() string { return proto.CompactTextString(m) }
func (*OuterMessage) ProtoMessage()    {}

// ConnectMessage carries the handshake fields for both CONNECT_REQUEST
// (outbound role) and CONNECT_RESPONSE (inbound role).
type ConnectMessage struct {
	IdentityFingerprint string `protobuf:"bytes,1,opt,name=identity_fingerprint,json=identityFingerprint" json:"identity_fingerprint,omitempty"`
	EphemeralPublicKey  []byte `protobuf:"bytes,2,opt,name=ephemeral_public_key,json=ephemeralPublicKey" json:"ephemeral_public_key,omitempty"`
	Signature           []byte `protobuf:"bytes,3,opt,name=signature" json:"signature,omitempty"`
	Encrypted           bool   `protobuf:"varint,4,opt,name=encrypted" json:"encrypted,omitempty"`
	TunnelName          string `protobuf:"bytes,5,opt,name=tunnel_name,json=tunnelName" json:"tunnel_name,omitempty"`
}

func (m *ConnectMessage) Reset()         { *m = ConnectMessage{} }
func (m *ConnectMessage) String() string { return proto.CompactTextString(m) }
func (*ConnectMessage) ProtoMessage()    {}

// DataMessage carries either a raw InnerMessage payload (Encrypted==false)
// or an EncryptedData{nonce,ciphertext} whose plaintext is an InnerMessage.
type DataMessage struct {
	Encrypted  bool   `protobuf:"varint,1,opt,name=encrypted" json:"encrypted,omitempty"`
	Nonce      []byte `protobuf:"bytes,2,opt,name=nonce" json:"nonce,omitempty"`
	Payload    []byte `protobuf:"bytes,3,opt,name=payload" json:"payload,omitempty"`
}

func (m *DataMessage) Reset()         { *m = DataMessage{} }
func (m *DataMessage) String() string { return proto.CompactTextString(m) }
func (*DataMessage) ProtoMessage()    {}

// InnerMessage is the plaintext carried inside a DataMessage: OPEN, DATA,
// or CLOSE, each tagged with the tunnel-session id.
type InnerMessageKind int32

const (
	OPEN InnerMessageKind = iota
	INNER_DATA
	CLOSE
)

type InnerMessage struct {
	Kind    InnerMessageKind `protobuf:"varint,1,opt,name=kind,enum=peerpb.InnerMessageKind" json:"kind,omitempty"`
	ID      []byte           `protobuf:"bytes,2,opt,name=id" json:"id,omitempty"`
	Payload []byte           `protobuf:"bytes,3,opt,name=payload" json:"payload,omitempty"`
}

func (m *InnerMessage) Reset()         { *m = InnerMessage{} }
func (m *InnerMessage) String() string { return proto.CompactTextString(m) }
func (*InnerMessage) ProtoMessage()    {}

func Marshal(m proto.Message) ([]byte, error)        { return proto.Marshal(m) }
func Unmarshal(data []byte, m proto.Message) error   { return proto.Unmarshal(data, m) }
