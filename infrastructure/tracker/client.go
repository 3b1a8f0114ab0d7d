// Package tracker implements the Tracker Client: one
// authenticated, keep-alive TLS session per configured tracker,
// multiplexing typed request/response messages and surfacing
// asynchronous server-initiated events to the Peer Engine. Uses a
// length-delimited codec for framing and a listener/reconnect-loop style
// for session lifecycle.
package tracker

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/netip"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"bhid/application"
	"bhid/domain/timer"
	"bhid/domain/tunnel"
	"bhid/infrastructure/wire/framing"
	"bhid/infrastructure/wire/trackerpb"
)

// Record is the subset of a tracker's config file entry the client needs
// to dial and authenticate.
type Record struct {
	Host   string
	Port   int
	CAFile string
	Token  string
}

type connState int32

const (
	disconnected connState = iota
	connecting
	connected
	registered
)

// Client maintains one session per tracker named in the config file.
type Client struct {
	logger   application.Logger
	registry application.Registry
	events   application.TrackerEvents

	mu       sync.Mutex
	sessions map[string]*session
}

func New(logger application.Logger, registry application.Registry, events application.TrackerEvents) *Client {
	return &Client{logger: logger, registry: registry, events: events, sessions: make(map[string]*session)}
}

// SetRegistry wires the Connections Registry in after construction, for
// callers that must break the Registry/Tracker Client/Peer Engine
// construction cycle by constructing the Tracker Client before its
// Registry exists.
func (c *Client) SetRegistry(registry application.Registry) {
	c.mu.Lock()
	c.registry = registry
	c.mu.Unlock()
}

// session is one tracker's live connection state.
type session struct {
	host   string
	record Record
	token  string

	mu         sync.Mutex
	conn       net.Conn
	state      connState
	lastRead   time.Time
	lastWrite  time.Time
	pending    map[string]chan *trackerpb.LookupIdentityResponse
}

// Run dials tracker, registers, pumps inbound messages and keep-alives,
// and reconnects with a 3s pause on any failure, until ctx is cancelled.
func (c *Client) Run(ctx context.Context, tracker string) error {
	s := c.sessionFor(tracker)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := c.runOnce(ctx, s); err != nil {
			c.logger.Printf("tracker: %s: %v", tracker, err)
		}
		s.setState(disconnected)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(timer.TrackerReconnectPause):
		}
	}
}

// Connect registers a tracker's Record so Run can dial it. Callers (the
// daemon coordinator) call this once per configured tracker before Run.
func (c *Client) Connect(tracker string, record Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.sessions[tracker]; ok {
		return
	}
	c.sessions[tracker] = &session{host: tracker, record: record, token: record.Token, pending: make(map[string]chan *trackerpb.LookupIdentityResponse)}
}

func (c *Client) sessionFor(tracker string) *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[tracker]
	if !ok {
		s = &session{host: tracker, pending: make(map[string]chan *trackerpb.LookupIdentityResponse)}
		c.sessions[tracker] = s
	}
	return s
}

func (s *session) setState(v connState) {
	s.mu.Lock()
	s.state = v
	s.mu.Unlock()
}

func (s *session) getState() connState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (c *Client) runOnce(ctx context.Context, s *session) error {
	s.setState(connecting)

	conn, err := dial(s.record)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	now := time.Now()
	s.mu.Lock()
	s.conn = conn
	s.lastRead = now
	s.lastWrite = now
	s.mu.Unlock()
	s.setState(connected)

	if err := c.register(s); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	s.setState(registered)
	c.events.OnRegistered(s.host)

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- c.readLoop(s) }()
	go func() { errCh <- c.keepAliveLoop(sessCtx, s) }()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func dial(r Record) (net.Conn, error) {
	cfg := &tls.Config{}
	if r.CAFile != "" {
		pem, err := os.ReadFile(r.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("parse ca file %s", r.CAFile)
		}
		cfg.RootCAs = pool
	}
	addr := net.JoinHostPort(r.Host, fmt.Sprintf("%d", r.Port))
	d := &net.Dialer{Timeout: timer.TrackerConnect}
	return tls.DialWithDialer(d, "tcp", addr, cfg)
}

func (c *Client) register(s *session) error {
	msg := &trackerpb.ClientMessage{
		Type:     trackerpb.REGISTER_DAEMON_REQUEST,
		Register: &trackerpb.RegisterDaemonRequest{Token: s.token},
	}
	if err := c.send(s, msg); err != nil {
		return err
	}

	_ = s.conn.SetReadDeadline(time.Now().Add(timer.TrackerConnect))
	defer s.conn.SetReadDeadline(time.Time{})

	raw, err := framing.ReadMessage(s.conn)
	if err != nil {
		return err
	}
	reply := &trackerpb.ServerMessage{}
	if err := trackerpb.Unmarshal(raw, reply); err != nil {
		return fmt.Errorf("decode register response: %w", err)
	}
	if reply.Code != trackerpb.ACCEPTED {
		return fmt.Errorf("registration refused: code %d", reply.Code)
	}
	if reply.RegisterResponse != nil && reply.RegisterResponse.Token != "" {
		s.mu.Lock()
		s.token = reply.RegisterResponse.Token
		s.mu.Unlock()
	}
	return nil
}

func (c *Client) send(s *session, msg *trackerpb.ClientMessage) error {
	data, err := trackerpb.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}
	if err := framing.WriteMessage(conn, data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	s.mu.Lock()
	s.lastWrite = time.Now()
	s.mu.Unlock()
	return nil
}

// readLoop decodes inbound ServerMessages and dispatches by type until the
// connection errors.
func (c *Client) readLoop(s *session) error {
	for {
		raw, err := framing.ReadMessage(s.conn)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		s.mu.Lock()
		s.lastRead = time.Now()
		s.mu.Unlock()

		msg := &trackerpb.ServerMessage{}
		if err := trackerpb.Unmarshal(raw, msg); err != nil {
			return fmt.Errorf("decode: %w", err)
		}
		c.dispatch(s, msg)
	}
}

func (c *Client) dispatch(s *session, msg *trackerpb.ServerMessage) {
	switch msg.Type {
	case trackerpb.ALIVE:
		// consumed silently
	case trackerpb.PEER_AVAILABLE:
		if msg.PeerAvailable == nil {
			return
		}
		c.events.OnPeerAvailable(toPeerAvailable(s.host, msg.PeerAvailable))
	case trackerpb.SERVER_AVAILABLE:
		if msg.ServerAvailable == nil {
			return
		}
		c.events.OnServerAvailable(application.ServerAvailable{Tracker: s.host, Tunnel: msg.ServerAvailable.Tunnel})
	case trackerpb.LOOKUP_IDENTITY_RESPONSE:
		if msg.LookupResponse == nil {
			return
		}
		s.mu.Lock()
		ch, ok := s.pending[msg.LookupResponse.CorrelationID]
		if ok {
			delete(s.pending, msg.LookupResponse.CorrelationID)
		}
		s.mu.Unlock()
		if ok {
			ch <- msg.LookupResponse
		}
	default:
		c.logger.Printf("tracker: %s: unhandled message type %d", s.host, msg.Type)
	}
}

func toPeerAvailable(tracker string, m *trackerpb.PeerAvailable) application.PeerAvailable {
	ev := application.PeerAvailable{Tracker: tracker, Tunnel: m.Tunnel, PeerName: m.PeerName}
	for _, a := range m.InternalAddresses {
		if ap, err := netip.ParseAddrPort(a); err == nil {
			ev.Internal = append(ev.Internal, ap)
		}
	}
	if m.ExternalAddress != "" {
		if ap, err := netip.ParseAddrPort(m.ExternalAddress); err == nil {
			ev.External = ap
		}
	}
	return ev
}

// keepAliveLoop enforces the 500ms-ticked read/write keep-alive timeouts.
func (c *Client) keepAliveLoop(ctx context.Context, s *session) error {
	ticker := time.NewTicker(timer.TrackerKeepAliveTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.mu.Lock()
			sinceRead := time.Since(s.lastRead)
			sinceWrite := time.Since(s.lastWrite)
			s.mu.Unlock()

			if sinceRead > timer.TrackerPongRecv {
				return fmt.Errorf("keep-alive: no bytes read for %s", sinceRead)
			}
			if sinceWrite > timer.TrackerPingSend {
				if err := c.send(s, &trackerpb.ClientMessage{Type: trackerpb.ALIVE}); err != nil {
					return fmt.Errorf("keep-alive send: %w", err)
				}
			}
		}
	}
}

// Registered reports whether tracker's session has completed registration.
func (c *Client) Registered(tracker string) bool {
	return c.sessionFor(tracker).getState() == registered
}

// Status sends a periodic per-tunnel STATUS message.
func (c *Client) Status(ctx context.Context, r application.StatusReport) error {
	s := c.sessionFor(r.Tracker)
	addrs := make([]string, 0, len(r.Addresses))
	for _, a := range r.Addresses {
		addrs = append(addrs, a.String())
	}
	var utpPort int32
	if len(r.Addresses) > 0 {
		utpPort = int32(r.Addresses[0].Port())
	}
	return c.send(s, &trackerpb.ClientMessage{
		Type: trackerpb.STATUS,
		Status_: &trackerpb.StatusMessage{
			Tunnel:    r.Tunnel,
			Connected: int32(r.Connected),
			Active:    r.Active,
			Addresses: addrs,
			UTPPort:   utpPort,
		},
	})
}

// PunchRequest asks tracker to coordinate NAT hole-punching for tunnel.
func (c *Client) PunchRequest(ctx context.Context, tracker, tunnel string) error {
	s := c.sessionFor(tracker)
	return c.send(s, &trackerpb.ClientMessage{
		Type:  trackerpb.PUNCH_REQUEST,
		Punch: &trackerpb.PunchRequest{Tunnel: tunnel},
	})
}

// LookupIdentity asks tracker for peerName's current public key PEM,
// correlated by a caller-generated UUID.
func (c *Client) LookupIdentity(ctx context.Context, tracker, peerName string) (application.PeerIdentity, error) {
	s := c.sessionFor(tracker)
	correlationID := uuid.New().String()

	ch := make(chan *trackerpb.LookupIdentityResponse, 1)
	s.mu.Lock()
	s.pending[correlationID] = ch
	s.mu.Unlock()

	if err := c.send(s, &trackerpb.ClientMessage{
		Type:   trackerpb.LOOKUP_IDENTITY_REQUEST,
		Lookup: &trackerpb.LookupIdentityRequest{CorrelationID: correlationID, PeerName: peerName},
	}); err != nil {
		s.mu.Lock()
		delete(s.pending, correlationID)
		s.mu.Unlock()
		return application.PeerIdentity{}, err
	}

	lookupCtx, cancel := context.WithTimeout(ctx, timer.IdentityLookup)
	defer cancel()

	select {
	case reply := <-ch:
		return application.PeerIdentity{Name: reply.PeerName, PublicKeyPEM: reply.PublicKeyPEM}, nil
	case <-lookupCtx.Done():
		s.mu.Lock()
		delete(s.pending, correlationID)
		s.mu.Unlock()
		return application.PeerIdentity{}, fmt.Errorf("tracker: lookup identity %s timed out", peerName)
	}
}

// Shutdown sends active=false STATUS for every server-role tunnel on
// every tracker, then closes all sessions.
func (c *Client) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	sessions := make([]*session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.mu.Unlock()

	for _, s := range sessions {
		for _, def := range c.registry.Get(s.host) {
			if def.Role != tunnel.Server {
				continue
			}
			_ = c.Status(ctx, application.StatusReport{Tracker: s.host, Tunnel: def.Key.Name, Active: false})
		}
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
	}
	return nil
}

var _ application.TrackerClient = (*Client)(nil)
