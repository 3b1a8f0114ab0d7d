package peer

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"bhid/application"
	"bhid/domain/identity"
	"bhid/domain/timer"
	"bhid/domain/tunnel"
	"bhid/infrastructure/wire/peerpb"
)

// Engine implements application.PeerEngine and application.TrackerEvents:
// it owns every connection's sessions, drives the handshake and NAT
// traversal sequences, and bridges established sessions to the Front
// Plane.
type Engine struct {
	listener application.PeerListener
	dialer   application.PeerDialer
	self     application.Identity
	tracker  application.TrackerRequester
	front    application.FrontPlane
	logger   application.Logger

	metrics application.Metrics

	mu     sync.Mutex
	conns  map[tunnel.Key]*connection
	closed bool
}

func NewEngine(
	listener application.PeerListener,
	dialer application.PeerDialer,
	self application.Identity,
	tracker application.TrackerRequester,
	front application.FrontPlane,
	logger application.Logger,
) *Engine {
	return &Engine{
		listener: listener,
		dialer:   dialer,
		self:     self,
		tracker:  tracker,
		front:    front,
		logger:   logger,
		metrics:  noopMetrics{},
		conns:    make(map[tunnel.Key]*connection),
	}
}

// SetMetrics wires the top-level coordinator's counters in. Calling it is
// optional; without it, every count is silently discarded.
func (e *Engine) SetMetrics(m application.Metrics) {
	if m == nil {
		m = noopMetrics{}
	}
	e.metrics = m
}

// SetTracker wires the Tracker Client in after construction, for callers
// that must break the Peer Engine/Tracker Client/Registry construction
// cycle by constructing the Peer Engine before its Tracker Client exists.
func (e *Engine) SetTracker(tracker application.TrackerRequester) {
	e.tracker = tracker
}

type noopMetrics struct{}

func (noopMetrics) SessionEstablished(string)  {}
func (noopMetrics) SessionClosed(string)       {}
func (noopMetrics) ReconnectAttempt(string)    {}
func (noopMetrics) BytesRelayed(string, int64) {}

// Run accepts inbound sessions on the shared UDP endpoint until ctx is
// cancelled or the listener closes.
func (e *Engine) Run(ctx context.Context) error {
	for {
		conn, err := e.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("peer: accept: %w", err)
		}
		go e.acceptInbound(conn)
	}
}

func (e *Engine) OpenServer(tracker string, def *tunnel.Definition) error {
	e.register(tunnel.Key{Tracker: tracker, Name: def.Key.Name}, def)
	return nil
}

func (e *Engine) OpenClient(tracker string, def *tunnel.Definition) error {
	e.register(tunnel.Key{Tracker: tracker, Name: def.Key.Name}, def)
	return nil
}

func (e *Engine) register(key tunnel.Key, def *tunnel.Definition) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.conns[key]; ok {
		existing.closeAll()
	}
	e.conns[key] = newConnection(key, def, e.front)
}

func (e *Engine) Close(tracker, name string) error {
	key := tunnel.Key{Tracker: tracker, Name: name}
	e.mu.Lock()
	c, ok := e.conns[key]
	if ok {
		delete(e.conns, key)
	}
	e.mu.Unlock()
	if ok {
		c.closeAll()
	}
	return nil
}

func (e *Engine) connFor(key tunnel.Key) (*connection, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.conns[key]
	return c, ok
}

// HandlePeerAvailable begins the client-role outbound attempt sequence
// for the tunnel named in ev.
func (e *Engine) HandlePeerAvailable(ev application.PeerAvailable) {
	key := tunnel.Key{Tracker: ev.Tracker, Name: ev.Tunnel}
	c, ok := e.connFor(key)
	if !ok || c.def.Role != tunnel.Client {
		return
	}
	c.rememberPeerAvailable(ev)
	if c.isTrying() {
		return
	}
	c.setTrying(true)
	go e.tryConnect(key, c, ev)
}

// HandleServerAvailable asks the tracker to re-STATUS so it resumes
// pushing PEER_AVAILABLE with fresh addresses; the
// server becoming available carries no address of its own to dial.
func (e *Engine) HandleServerAvailable(ev application.ServerAvailable) {
	key := tunnel.Key{Tracker: ev.Tracker, Name: ev.Tunnel}
	c, ok := e.connFor(key)
	if !ok || c.def.Role != tunnel.Client {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timer.PeerConnect)
	defer cancel()
	if err := e.tracker.Status(ctx, application.StatusReport{
		Tracker:   ev.Tracker,
		Tunnel:    ev.Tunnel,
		Connected: int(c.def.Connected()),
		Active:    true,
		Addresses: e.localAddresses(),
	}); err != nil {
		e.logger.Printf("peer: re-status %s after server-available: %v", key, err)
	}
}

// tryConnect implements the internal-then-external-then-wait attempt
// ordering.
func (e *Engine) tryConnect(key tunnel.Key, c *connection, ev application.PeerAvailable) {
	defer c.setTrying(false)

	for _, addr := range ev.Internal {
		if e.dialAttempt(key, c, addr.String(), attemptInternal, ev.PeerName) {
			return
		}
	}

	if ev.External.IsValid() {
		addr := ev.External.String()
		if err := e.dialer.Punch(addr, timer.NATPunchPackets); err != nil {
			e.logger.Printf("peer: punch %s: %v", addr, err)
		}
		if e.dialAttempt(key, c, addr, attemptExternal, ev.PeerName) {
			return
		}
	}

	time.Sleep(timer.NATRestatusWait)
	ctx, cancel := context.WithTimeout(context.Background(), timer.PeerConnect)
	defer cancel()
	if err := e.tracker.Status(ctx, application.StatusReport{
		Tracker:   key.Tracker,
		Tunnel:    key.Name,
		Connected: int(c.def.Connected()),
		Active:    true,
		Addresses: e.localAddresses(),
	}); err != nil {
		e.logger.Printf("peer: re-status %s after failed attempts: %v", key, err)
	}
}

func (e *Engine) dialAttempt(key tunnel.Key, c *connection, addr string, kind attemptKind, peerName string) bool {
	conn, err := e.dialer.Dial(addr)
	if err != nil {
		e.logger.Printf("peer: dial %s: %v", addr, err)
		return false
	}
	s := newSession(conn, true, kind)
	if err := e.runSession(key, c, s, peerName); err != nil {
		e.logger.Printf("peer: session to %s failed: %v", addr, err)
		return false
	}
	return true
}

func (e *Engine) acceptInbound(conn application.PeerConn) {
	s := newSession(conn, false, attemptUnknown)
	// The inbound side doesn't know which tunnel/connection this session
	// belongs to until the handshake's TunnelName arrives, so acceptSession
	// first reads the peer's CONNECT message and looks the connection up by
	// the tunnel name on the wire before running the session.
	if err := e.acceptSession(s); err != nil {
		e.logger.Printf("peer: inbound session failed: %v", err)
		_ = s.close()
	}
}

func (e *Engine) acceptSession(s *session) error {
	tunnelName, err := e.peekTunnelName(s)
	if err != nil {
		return err
	}

	e.mu.Lock()
	var c *connection
	var key tunnel.Key
	for k, candidate := range e.conns {
		if k.Name == tunnelName {
			c, key = candidate, k
			break
		}
	}
	e.mu.Unlock()
	if c == nil {
		return fmt.Errorf("peer: no registered tunnel named %q", tunnelName)
	}

	return e.runSession(key, c, s, "")
}

// peekTunnelName runs the first half of the handshake to learn which
// local tunnel an inbound session is for, stashing the decoded message so
// handshake doesn't re-read it.
func (e *Engine) peekTunnelName(s *session) (string, error) {
	remote, err := s.recvConnect()
	if err != nil {
		return "", err
	}
	s.pendingRemote = remote
	return remote.TunnelName, nil
}

// runSession completes the handshake, applies local policy, and on
// success hands the session to the Front Plane; on failure or loss it
// runs the reconnect policy.
func (e *Engine) runSession(key tunnel.Key, c *connection, s *session, expectedPeer string) error {
	err := s.handshake(e.self, key.Name, c.def.Encrypted, e.resolvePeer(c.def, expectedPeer))
	if err != nil {
		_ = s.close()
		return err
	}

	if !c.def.AllowsPeer(s.peerName) {
		s.bye()
		_ = s.close()
		return fmt.Errorf("peer: %s not allowed on tunnel %s", s.peerName, key)
	}

	if err := s.establish(); err != nil {
		_ = s.close()
		return err
	}

	if !c.addEstablished(s) {
		// loser-closes: another session for this connection is already
		// established.
		s.successful = true
		_ = s.close()
		return nil
	}
	s.successful = true
	c.def.IncConnected()
	e.metrics.SessionEstablished(key.Name)

	e.front.OnSessionEstablished(key, c.def, s)
	go e.pump(key, c, s)
	return nil
}

// pump relays inbound DATA/inner messages to the Front Plane until the
// session closes, then runs reconnect.
func (e *Engine) pump(key tunnel.Key, c *connection, s *session) {
	stop := make(chan struct{})
	go e.keepAlive(s, stop)
	defer close(stop)

	for {
		raw, err := s.conn.ReadMessage()
		if err != nil {
			break
		}
		s.recordRead()
		outer := &peerpb.OuterMessage{}
		if err := peerpb.Unmarshal(raw, outer); err != nil {
			e.logger.Printf("peer: decode outer message from %s: %v", s.peerName, err)
			continue
		}
		switch outer.Type {
		case peerpb.BYE:
			goto closed
		case peerpb.DATA:
			if outer.Data == nil {
				continue
			}
			inner, err := s.recvInner(outer.Data)
			if err != nil {
				e.logger.Printf("peer: decode inner message from %s: %v", s.peerName, err)
				continue
			}
			e.front.OnInner(key, s.id, inner)
		}
	}
closed:
	c.def.DecConnected()
	c.remove(s)
	_ = s.close()
	e.metrics.SessionClosed(key.Name)
	e.front.OnSessionClosed(key, s.id)

	if c.def.Role == tunnel.Client {
		e.reconnect(key, c, s)
	}
}

// keepAlive enforces an established session's ping-send/pong-receive
// timers: it sends ALIVE when nothing has been written for
// timer.PeerPingSend, and closes the session when nothing has been read
// for timer.PeerPongRecv, which unblocks pump's ReadMessage. Runs until
// stop closes.
func (e *Engine) keepAlive(s *session, stop <-chan struct{}) {
	ticker := time.NewTicker(timer.PeerKeepAliveTick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			sinceRead, sinceWrite := s.readWriteAges()
			if sinceRead > timer.PeerPongRecv {
				e.logger.Printf("peer: keep-alive %s: no bytes read for %s", s.peerName, sinceRead)
				_ = s.close()
				return
			}
			if sinceWrite > timer.PeerPingSend {
				if err := s.sendOuter(&peerpb.OuterMessage{Type: peerpb.ALIVE}); err != nil {
					e.logger.Printf("peer: keep-alive send %s: %v", s.peerName, err)
					_ = s.close()
					return
				}
			}
		}
	}
}

// reconnect: a session that succeeded (internal or external) retries the
// external address immediately; anything else waits and re-STATUSes to
// let the tracker drive a fresh attempt.
func (e *Engine) reconnect(key tunnel.Key, c *connection, s *session) {
	e.metrics.ReconnectAttempt(key.Name)
	if s.successful && (s.attempt == attemptInternal || s.attempt == attemptExternal) {
		if ev, ok := c.getLastPeerAvailable(); ok && ev.External.IsValid() {
			if c.isTrying() {
				return
			}
			c.setTrying(true)
			go func() {
				defer c.setTrying(false)
				e.dialAttempt(key, c, ev.External.String(), attemptExternal, ev.PeerName)
			}()
			return
		}
	}

	time.Sleep(timer.ReconnectIdleWait)
	ctx, cancel := context.WithTimeout(context.Background(), timer.PeerConnect)
	defer cancel()
	if err := e.tracker.Status(ctx, application.StatusReport{
		Tracker:   key.Tracker,
		Tunnel:    key.Name,
		Connected: int(c.def.Connected()),
		Active:    true,
		Addresses: e.localAddresses(),
	}); err != nil {
		e.logger.Printf("peer: re-status %s on reconnect: %v", key, err)
	}
}

// localAddresses enumerates this host's non-loopback addresses for a
// STATUS report, when the underlying listener supports it. A listener
// fake that doesn't implement LocalAddresses (e.g. in tests) simply
// yields an empty list rather than an error.
func (e *Engine) localAddresses() []netip.AddrPort {
	la, ok := e.listener.(interface{ LocalAddresses() ([]netip.AddrPort, error) })
	if !ok {
		return nil
	}
	addrs, err := la.LocalAddresses()
	if err != nil {
		e.logger.Printf("peer: enumerate local addresses: %v", err)
		return nil
	}
	return addrs
}

// resolvePeer returns the handshake's identity-resolution callback:
// local peers directory first, tracker LOOKUP_IDENTITY_REQUEST second.
// expectedName, when non-empty (outbound/client role), is tried first;
// otherwise every locally known peer name is tried.
func (e *Engine) resolvePeer(def *tunnel.Definition, expectedName string) func(identity.Fingerprint) (string, *rsa.PublicKey, error) {
	return func(fp identity.Fingerprint) (string, *rsa.PublicKey, error) {
		candidates := []string{}
		if expectedName != "" {
			candidates = append(candidates, expectedName)
		} else if def.Fixed {
			candidates = append(candidates, def.Clients...)
		} else if known, err := e.self.KnownPeerNames(); err == nil {
			candidates = append(candidates, known...)
		}

		for _, name := range candidates {
			if pub, ok := e.self.PeerPublicKey(name); ok {
				if identity.FingerprintFromPEM(publicKeyPEM(pub)) == fp {
					return name, pub, nil
				}
			}
		}

		for _, name := range candidates {
			ctx, cancel := context.WithTimeout(context.Background(), timer.IdentityLookup)
			id, err := e.tracker.LookupIdentity(ctx, def.Key.Tracker, name)
			cancel()
			if err != nil {
				continue
			}
			if identity.FingerprintFromPEM(id.PublicKeyPEM) != fp {
				continue
			}
			pub, err := parsePublicKeyPEM(id.PublicKeyPEM)
			if err != nil {
				continue
			}
			if err := e.self.RememberPeer(name, pub); err != nil {
				e.logger.Printf("peer: remember %s: %v", name, err)
			}
			return name, pub, nil
		}

		return "", nil, fmt.Errorf("peer: could not resolve identity %s", fp)
	}
}

// OnRegistered satisfies application.TrackerEvents: once tracker has
// registered this daemon, announce STATUS for every tunnel configured
// against it, so the tracker learns this daemon's addresses and UTP port
// and can start pushing PEER_AVAILABLE/SERVER_AVAILABLE.
func (e *Engine) OnRegistered(tracker string) {
	e.mu.Lock()
	conns := make([]*connection, 0, len(e.conns))
	for key, c := range e.conns {
		if key.Tracker == tracker {
			conns = append(conns, c)
		}
	}
	e.mu.Unlock()

	addrs := e.localAddresses()
	for _, c := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), timer.PeerConnect)
		err := e.tracker.Status(ctx, application.StatusReport{
			Tracker:   tracker,
			Tunnel:    c.key.Name,
			Connected: int(c.def.Connected()),
			Active:    true,
			Addresses: addrs,
		})
		cancel()
		if err != nil {
			e.logger.Printf("peer: status %s on registration: %v", c.key, err)
		}
	}
}

// OnPeerAvailable satisfies application.TrackerEvents by delegating to
// HandlePeerAvailable.
func (e *Engine) OnPeerAvailable(ev application.PeerAvailable) { e.HandlePeerAvailable(ev) }

// OnServerAvailable satisfies application.TrackerEvents by delegating to
// HandleServerAvailable.
func (e *Engine) OnServerAvailable(ev application.ServerAvailable) { e.HandleServerAvailable(ev) }

// Shutdown closes every session and the shared UDP endpoint.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	conns := make([]*connection, 0, len(e.conns))
	for _, c := range e.conns {
		conns = append(conns, c)
	}
	e.mu.Unlock()

	for _, c := range conns {
		c.closeAll()
	}
	return e.listener.Close()
}

var _ application.PeerEngine = (*Engine)(nil)
var _ application.TrackerEvents = (*Engine)(nil)

// publicKeyPEM re-encodes a parsed RSA public key as the exact PEM text
// identity.RememberPeer would have written, so its fingerprint can be
// recomputed for comparison.
func publicKeyPEM(pub *rsa.PublicKey) string {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return ""
	}
	block := &pem.Block{Type: "PUBLIC KEY", Bytes: der}
	return string(pem.EncodeToMemory(block))
}

func parsePublicKeyPEM(data string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(data))
	if block == nil {
		return nil, fmt.Errorf("peer: invalid public key PEM")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("peer: not an RSA public key")
	}
	return rsaKey, nil
}
