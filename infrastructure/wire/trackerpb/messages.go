// Package trackerpb defines the tracker wire protocol's outer envelopes.
// Messages are hand-maintained structs using the github.com/golang/protobuf
// reflection-based encoding (struct tags + the Reset/String/ProtoMessage
// trio), the same generation of the protobuf-go library other tunneling
// controllers in the ecosystem use (see DESIGN.md). Only the message types
// the daemon's core operationally needs (registration, identity lookup,
// STATUS, NAT punch coordination, and the async push notifications) get
// concrete payload fields; every other recognized type still has an enum
// value and travels with an opaque RawPayload, so CLI-originated request
// types the daemon doesn't interpret still pass through unchanged.
package trackerpb

import "github.com/golang/protobuf/proto"

// MessageType enumerates every recognized tracker message type.
type MessageType int32

const (
	UNKNOWN MessageType = iota
	ALIVE
	INIT_REQUEST
	INIT_RESPONSE
	CONFIRM_REQUEST
	CONFIRM_RESPONSE
	CREATE_DAEMON_REQUEST
	CREATE_DAEMON_RESPONSE
	DELETE_DAEMON_REQUEST
	DELETE_DAEMON_RESPONSE
	REGISTER_DAEMON_REQUEST
	REGISTER_DAEMON_RESPONSE
	CREATE_REQUEST
	CREATE_RESPONSE
	DELETE_REQUEST
	DELETE_RESPONSE
	IMPORT_REQUEST
	IMPORT_RESPONSE
	ATTACH_REQUEST
	ATTACH_RESPONSE
	REMOTE_ATTACH_REQUEST
	REMOTE_ATTACH_RESPONSE
	DETACH_REQUEST
	DETACH_RESPONSE
	REMOTE_DETACH_REQUEST
	REMOTE_DETACH_RESPONSE
	TREE_REQUEST
	TREE_RESPONSE
	CONNECTIONS_LIST_REQUEST
	CONNECTIONS_LIST_RESPONSE
	DAEMONS_LIST_REQUEST
	DAEMONS_LIST_RESPONSE
	STATUS
	SERVER_AVAILABLE
	LOOKUP_IDENTITY_REQUEST
	LOOKUP_IDENTITY_RESPONSE
	PUNCH_REQUEST
	ADDRESS_REQUEST
	ADDRESS_RESPONSE
	PEER_AVAILABLE
	REDEEM_MASTER_REQUEST
	REDEEM_MASTER_RESPONSE
	REDEEM_DAEMON_REQUEST
	REDEEM_DAEMON_RESPONSE
	REDEEM_PATH_REQUEST
	REDEEM_PATH_RESPONSE
	CONNECTIONS_LIST
)

// ResponseCode is the remote-logical result carried on *_RESPONSE messages.
type ResponseCode int32

const (
	ACCEPTED ResponseCode = iota
	REJECTED
	NOT_REGISTERED
	NO_TRACKER
)

// ClientMessage is the outer envelope sent from daemon to tracker.
type ClientMessage struct {
	Type      MessageType `protobuf:"varint,1,opt,name=type,enum=trackerpb.MessageType" json:"type,omitempty"`
	MessageID string      `protobuf:"bytes,2,opt,name=message_id,json=messageId" json:"message_id,omitempty"`

	Register *RegisterDaemonRequest `protobuf:"bytes,3,opt,name=register" json:"register,omitempty"`
	Status_  *StatusMessage         `protobuf:"bytes,4,opt,name=status" json:"status,omitempty"`
	Lookup   *LookupIdentityRequest `protobuf:"bytes,5,opt,name=lookup" json:"lookup,omitempty"`
	Punch    *PunchRequest          `protobuf:"bytes,6,opt,name=punch" json:"punch,omitempty"`
	Address  *AddressRequest        `protobuf:"bytes,7,opt,name=address" json:"address,omitempty"`

	// RawPayload carries every other (CLI-originated) request type
	// unchanged, without this daemon needing to understand its shape.
	RawPayload []byte `protobuf:"bytes,15,opt,name=raw_payload,json=rawPayload" json:"raw_payload,omitempty"`
}

func (m *ClientMessage) Reset()         { *m = ClientMessage{} }
func (m *ClientMessage) String() string { return proto.CompactTextString(m) }
func (*ClientMessage) ProtoMessage()    {}

// ServerMessage is the outer envelope sent from tracker to daemon.
type ServerMessage struct {
	Type      MessageType  `protobuf:"varint,1,opt,name=type,enum=trackerpb.MessageType" json:"type,omitempty"`
	MessageID string       `protobuf:"bytes,2,opt,name=message_id,json=messageId" json:"message_id,omitempty"`
	Code      ResponseCode `protobuf:"varint,3,opt,name=code,enum=trackerpb.ResponseCode" json:"code,omitempty"`

	RegisterResponse *RegisterDaemonResponse `protobuf:"bytes,4,opt,name=register_response,json=registerResponse" json:"register_response,omitempty"`
	LookupResponse   *LookupIdentityResponse `protobuf:"bytes,5,opt,name=lookup_response,json=lookupResponse" json:"lookup_response,omitempty"`
	AddressResponse  *AddressResponse        `protobuf:"bytes,6,opt,name=address_response,json=addressResponse" json:"address_response,omitempty"`
	PeerAvailable    *PeerAvailable          `protobuf:"bytes,7,opt,name=peer_available,json=peerAvailable" json:"peer_available,omitempty"`
	ServerAvailable  *ServerAvailable        `protobuf:"bytes,8,opt,name=server_available,json=serverAvailable" json:"server_available,omitempty"`

	RawPayload []byte `protobuf:"bytes,15,opt,name=raw_payload,json=rawPayload" json:"raw_payload,omitempty"`
}

func (m *ServerMessage) Reset()         { *m = ServerMessage{} }
func (m *ServerMessage) String() string { return proto.CompactTextString(m) }
func (*ServerMessage) ProtoMessage()    {}

// RegisterDaemonRequest carries the saved daemon token, if any.
type RegisterDaemonRequest struct {
	Token string `protobuf:"bytes,1,opt,name=token" json:"token,omitempty"`
}

func (m *RegisterDaemonRequest) Reset()         { *m = RegisterDaemonRequest{} }
func (m *RegisterDaemonRequest) String() string { return proto.CompactTextString(m) }
func (*RegisterDaemonRequest) ProtoMessage()    {}

type RegisterDaemonResponse struct {
	Token string `protobuf:"bytes,1,opt,name=token" json:"token,omitempty"`
}

func (m *RegisterDaemonResponse) Reset()         { *m = RegisterDaemonResponse{} }
func (m *RegisterDaemonResponse) String() string { return proto.CompactTextString(m) }
func (*RegisterDaemonResponse) ProtoMessage()    {}

// StatusMessage is the periodic per-tunnel STATUS payload.
type StatusMessage struct {
	Tunnel    string   `protobuf:"bytes,1,opt,name=tunnel" json:"tunnel,omitempty"`
	Connected int32    `protobuf:"varint,2,opt,name=connected" json:"connected,omitempty"`
	Active    bool     `protobuf:"varint,3,opt,name=active" json:"active,omitempty"`
	Addresses []string `protobuf:"bytes,4,rep,name=addresses" json:"addresses,omitempty"`
	UTPPort   int32    `protobuf:"varint,5,opt,name=utp_port,json=utpPort" json:"utp_port,omitempty"`
}

func (m *StatusMessage) Reset()         { *m = StatusMessage{} }
func (m *StatusMessage) String() string { return proto.CompactTextString(m) }
func (*StatusMessage) ProtoMessage()    {}

// LookupIdentityRequest carries a caller-generated correlation id.
type LookupIdentityRequest struct {
	CorrelationID string `protobuf:"bytes,1,opt,name=correlation_id,json=correlationId" json:"correlation_id,omitempty"`
	PeerName      string `protobuf:"bytes,2,opt,name=peer_name,json=peerName" json:"peer_name,omitempty"`
}

func (m *LookupIdentityRequest) Reset()         { *m = LookupIdentityRequest{} }
func (m *LookupIdentityRequest) String() string { return proto.CompactTextString(m) }
func (*LookupIdentityRequest) ProtoMessage()    {}

type LookupIdentityResponse struct {
	CorrelationID string `protobuf:"bytes,1,opt,name=correlation_id,json=correlationId" json:"correlation_id,omitempty"`
	PeerName      string `protobuf:"bytes,2,opt,name=peer_name,json=peerName" json:"peer_name,omitempty"`
	PublicKeyPEM  string `protobuf:"bytes,3,opt,name=public_key_pem,json=publicKeyPem" json:"public_key_pem,omitempty"`
}

func (m *LookupIdentityResponse) Reset()         { *m = LookupIdentityResponse{} }
func (m *LookupIdentityResponse) String() string { return proto.CompactTextString(m) }
func (*LookupIdentityResponse) ProtoMessage()    {}

// PunchRequest asks the tracker to coordinate NAT hole-punching.
type PunchRequest struct {
	Tunnel string `protobuf:"bytes,1,opt,name=tunnel" json:"tunnel,omitempty"`
}

func (m *PunchRequest) Reset()         { *m = PunchRequest{} }
func (m *PunchRequest) String() string { return proto.CompactTextString(m) }
func (*PunchRequest) ProtoMessage()    {}

type AddressRequest struct {
	Tunnel string `protobuf:"bytes,1,opt,name=tunnel" json:"tunnel,omitempty"`
}

func (m *AddressRequest) Reset()         { *m = AddressRequest{} }
func (m *AddressRequest) String() string { return proto.CompactTextString(m) }
func (*AddressRequest) ProtoMessage()    {}

type AddressResponse struct {
	Tunnel          string `protobuf:"bytes,1,opt,name=tunnel" json:"tunnel,omitempty"`
	ExternalAddress string `protobuf:"bytes,2,opt,name=external_address,json=externalAddress" json:"external_address,omitempty"`
}

func (m *AddressResponse) Reset()         { *m = AddressResponse{} }
func (m *AddressResponse) String() string { return proto.CompactTextString(m) }
func (*AddressResponse) ProtoMessage()    {}

// PeerAvailable is the tracker-pushed notification naming a peer the
// requesting daemon should attempt to dial or punch to.
type PeerAvailable struct {
	Tunnel            string   `protobuf:"bytes,1,opt,name=tunnel" json:"tunnel,omitempty"`
	PeerName          string   `protobuf:"bytes,2,opt,name=peer_name,json=peerName" json:"peer_name,omitempty"`
	InternalAddresses []string `protobuf:"bytes,3,rep,name=internal_addresses,json=internalAddresses" json:"internal_addresses,omitempty"`
	ExternalAddress   string   `protobuf:"bytes,4,opt,name=external_address,json=externalAddress" json:"external_address,omitempty"`
}

func (m *PeerAvailable) Reset()         { *m = PeerAvailable{} }
func (m *PeerAvailable) String() string { return proto.CompactTextString(m) }
func (*PeerAvailable) ProtoMessage()    {}

type ServerAvailable struct {
	Tunnel string `protobuf:"bytes,1,opt,name=tunnel" json:"tunnel,omitempty"`
}

func (m *ServerAvailable) Reset()         { *m = ServerAvailable{} }
func (m *ServerAvailable) String() string { return proto.CompactTextString(m) }
func (*ServerAvailable) ProtoMessage()    {}
