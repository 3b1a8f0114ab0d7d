package peer

import (
	"crypto/rsa"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"bhid/application"
	"bhid/domain/identity"
	domainpeer "bhid/domain/peer"
	"bhid/domain/timer"
	"bhid/domain/wire"
	"bhid/infrastructure/wire/peerpb"
)

// attemptKind records which of the two NAT-traversal attempt types
// produced a session, so the reconnect policy can prefer the same kind
// again.
type attemptKind int

const (
	attemptUnknown attemptKind = iota
	attemptInternal
	attemptExternal
)

// session is one peer connection: a UTP-framed conn plus the state
// machine, handshake material, and inner-message sinks layered on it.
type session struct {
	id   uuid.UUID // session id, distinct from the per-stream tunnel-session id
	conn application.PeerConn
	sm   *domainpeer.Machine

	outbound bool // true if we dialed, false if we accepted
	attempt  attemptKind
	successful bool

	ephemeral application.EphemeralKeyPair
	crypter   application.Crypter

	peerName        string
	peerFingerprint identity.Fingerprint
	encrypted       bool

	// pendingRemote holds a CONNECT message already consumed by the
	// engine's inbound tunnel-name lookup (peekTunnelName), so handshake
	// does not read it a second time.
	pendingRemote *peerpb.ConnectMessage

	mu        sync.Mutex
	closed    bool
	lastRead  time.Time
	lastWrite time.Time
}

func newSession(conn application.PeerConn, outbound bool, attempt attemptKind) *session {
	now := time.Now()
	return &session{
		id:        uuid.New(),
		conn:      conn,
		sm:        domainpeer.NewMachine(),
		outbound:  outbound,
		attempt:   attempt,
		lastRead:  now,
		lastWrite: now,
	}
}

// recordRead stamps the time of the most recently received message, for
// the keep-alive loop's pong-receive deadline.
func (s *session) recordRead() {
	s.mu.Lock()
	s.lastRead = time.Now()
	s.mu.Unlock()
}

// readWriteAges reports how long it has been since the last successful
// read and write, for the keep-alive loop to compare against
// timer.PeerPongRecv/timer.PeerPingSend.
func (s *session) readWriteAges() (sinceRead, sinceWrite time.Duration) {
	s.mu.Lock()
	sinceRead = time.Since(s.lastRead)
	sinceWrite = time.Since(s.lastWrite)
	s.mu.Unlock()
	return sinceRead, sinceWrite
}

// SessionID identifies this established peer session to the Front Plane
// (application.SessionSink).
func (s *session) SessionID() uuid.UUID { return s.id }

// Send implements application.SessionSink, pushing one inner message out
// over this peer session.
func (s *session) Send(msg wire.InnerMessage) error { return s.sendInner(msg) }

// handshake performs the CONNECT_REQUEST/RESPONSE exchange and advances the
// state machine through connected -> verified. resolvePeer
// looks up a peer's long-lived RSA public key, asking the tracker if the
// local peers directory does not already have it.
func (s *session) handshake(
	self application.Identity,
	tunnelName string,
	encrypted bool,
	resolvePeer func(fingerprint identity.Fingerprint) (name string, pub *rsa.PublicKey, err error),
) error {
	if err := s.sm.To(domainpeer.Connected); err != nil {
		return err
	}

	ephemeral, err := NewEphemeralKeyPair()
	if err != nil {
		return err
	}
	s.ephemeral = ephemeral

	sig, err := SignEphemeralKey(self.PrivateKey(), ephemeral.Public)
	if err != nil {
		return err
	}

	local := &peerpb.ConnectMessage{
		IdentityFingerprint: string(self.Fingerprint()),
		EphemeralPublicKey:  ephemeral.Public[:],
		Signature:           sig,
		Encrypted:           encrypted,
		TunnelName:          tunnelName,
	}

	if s.outbound {
		if err := s.sendOuter(&peerpb.OuterMessage{Type: peerpb.CONNECT_REQUEST, Connect: local}); err != nil {
			return err
		}
	} else {
		if err := s.sendOuter(&peerpb.OuterMessage{Type: peerpb.CONNECT_RESPONSE, Connect: local}); err != nil {
			return err
		}
	}

	remote := s.pendingRemote
	if remote == nil {
		var err error
		remote, err = s.recvConnect()
		if err != nil {
			return err
		}
	}

	peerFP := identity.Fingerprint(remote.IdentityFingerprint)
	name, pub, err := resolvePeer(peerFP)
	if err != nil {
		return fmt.Errorf("peer: resolve identity %s: %w", peerFP, err)
	}

	var peerPub [32]byte
	copy(peerPub[:], remote.EphemeralPublicKey)
	if err := VerifyEphemeralKey(pub, peerPub, remote.Signature); err != nil {
		return err
	}

	s.peerName = name
	s.peerFingerprint = peerFP
	s.encrypted = remote.Encrypted && encrypted
	s.crypter = NewCrypter(s.ephemeral.Private, peerPub)

	return s.sm.To(domainpeer.Verified)
}

// recvConnect waits for the peer's CONNECT_REQUEST/RESPONSE, bounded by the
// establish deadline.
func (s *session) recvConnect() (*peerpb.ConnectMessage, error) {
	_ = s.conn.SetReadDeadline(timer.After(timer.PeerEstablish).ExpiresAt())
	defer s.conn.SetReadDeadline(time.Time{})

	raw, err := s.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("peer: read handshake message: %w", err)
	}
	outer := &peerpb.OuterMessage{}
	if err := peerpb.Unmarshal(raw, outer); err != nil {
		return nil, fmt.Errorf("peer: decode handshake message: %w", err)
	}
	if outer.Connect == nil {
		return nil, fmt.Errorf("peer: expected connect message, got type %d", outer.Type)
	}
	return outer.Connect, nil
}

func (s *session) sendOuter(m *peerpb.OuterMessage) error {
	data, err := peerpb.Marshal(m)
	if err != nil {
		return fmt.Errorf("peer: encode outer message: %w", err)
	}
	if err := s.conn.WriteMessage(data); err != nil {
		return fmt.Errorf("peer: write outer message: %w", err)
	}
	s.mu.Lock()
	s.lastWrite = time.Now()
	s.mu.Unlock()
	return nil
}

// establish finalizes verified -> established once local policy accepts
// the peer for this tunnel.
func (s *session) establish() error {
	return s.sm.To(domainpeer.Established)
}

// sendInner encrypts (if configured) and transmits one inner message.
func (s *session) sendInner(msg wire.InnerMessage) error {
	payload, err := peerpb.Marshal(peerpb.ToProto(msg))
	if err != nil {
		return fmt.Errorf("peer: encode inner message: %w", err)
	}

	data := &peerpb.DataMessage{Encrypted: s.encrypted}
	if s.encrypted {
		nonce, ciphertext, err := s.crypter.Encrypt(payload)
		if err != nil {
			return err
		}
		data.Nonce = nonce
		data.Payload = ciphertext
	} else {
		data.Payload = payload
	}

	return s.sendOuter(&peerpb.OuterMessage{Type: peerpb.DATA, Data: data})
}

// recvInner decodes one outer DATA message back into an inner message.
func (s *session) recvInner(data *peerpb.DataMessage) (wire.InnerMessage, error) {
	payload := data.Payload
	if data.Encrypted {
		plain, err := s.crypter.Decrypt(data.Nonce, data.Payload)
		if err != nil {
			return wire.InnerMessage{}, err
		}
		payload = plain
	}
	proto := &peerpb.InnerMessage{}
	if err := peerpb.Unmarshal(payload, proto); err != nil {
		return wire.InnerMessage{}, fmt.Errorf("peer: decode inner message: %w", err)
	}
	return peerpb.FromProto(proto)
}

// close transitions to closed and releases the underlying transport. Safe
// to call more than once.
func (s *session) close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	_ = s.sm.To(domainpeer.Closed)
	return s.conn.Close()
}

func (s *session) bye() {
	_ = s.sendOuter(&peerpb.OuterMessage{Type: peerpb.BYE})
}

var _ application.SessionSink = (*session)(nil)
