// Package front implements the Front Plane: the local TCP
// side of every tunnel, bridging accepted/dialed sockets to inner
// OPEN/DATA/CLOSE messages on established peer sessions. Grounded on the
// teacher's infrastructure/listeners/tcp_listener contract (Accept/Close)
// and infrastructure/network/framing's stream-oriented read/write split.
package front

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"bhid/application"
	"bhid/domain/timer"
	"bhid/domain/tunnel"
	"bhid/domain/wire"
)

const readBufferSize = 32 * 1024

// Plane implements application.FrontPlane.
type Plane struct {
	logger  application.Logger
	metrics application.Metrics

	mu    sync.Mutex
	conns map[tunnel.Key]*planeConn
}

func New(logger application.Logger) *Plane {
	return &Plane{logger: logger, metrics: noopMetrics{}, conns: make(map[tunnel.Key]*planeConn)}
}

// SetMetrics wires the top-level coordinator's counters in. Calling it is
// optional; without it, every count is silently discarded.
func (p *Plane) SetMetrics(m application.Metrics) {
	if m == nil {
		m = noopMetrics{}
	}
	p.metrics = m
}

type noopMetrics struct{}

func (noopMetrics) SessionEstablished(string)  {}
func (noopMetrics) SessionClosed(string)       {}
func (noopMetrics) ReconnectAttempt(string)    {}
func (noopMetrics) BytesRelayed(string, int64) {}

// planeConn is one established session's local side: either the
// server-role dial-on-OPEN behavior or the client-role listen-and-accept
// behavior, never both.
type planeConn struct {
	key  tunnel.Key
	def  *tunnel.Definition
	sink application.SessionSink

	logger  application.Logger
	metrics application.Metrics

	mu       sync.Mutex
	streams  map[uuid.UUID]*stream
	listener net.Listener
	closed   bool
}

// stream is one local TCP socket multiplexed over the tunnel under one
// tunnel-session id.
type stream struct {
	id   uuid.UUID
	conn net.Conn

	mu      sync.Mutex
	pending [][]byte
	dialed  bool
}

func (p *Plane) OnSessionEstablished(key tunnel.Key, def *tunnel.Definition, sink application.SessionSink) {
	pc := &planeConn{key: key, def: def, sink: sink, logger: p.logger, metrics: p.metrics, streams: make(map[uuid.UUID]*stream)}

	p.mu.Lock()
	p.conns[key] = pc
	p.mu.Unlock()

	if def.Role == tunnel.Client {
		go pc.listenLocal()
	}
}

func (p *Plane) OnSessionClosed(key tunnel.Key, sessionID uuid.UUID) {
	p.mu.Lock()
	pc, ok := p.conns[key]
	if ok {
		delete(p.conns, key)
	}
	p.mu.Unlock()
	if ok {
		pc.shutdown()
	}
}

func (p *Plane) OnInner(key tunnel.Key, sessionID uuid.UUID, msg wire.InnerMessage) {
	p.mu.Lock()
	pc, ok := p.conns[key]
	p.mu.Unlock()
	if !ok {
		return
	}
	pc.onInner(msg)
}

func (p *Plane) Shutdown() {
	p.mu.Lock()
	conns := make([]*planeConn, 0, len(p.conns))
	for _, pc := range p.conns {
		conns = append(conns, pc)
	}
	p.conns = make(map[tunnel.Key]*planeConn)
	p.mu.Unlock()

	for _, pc := range conns {
		pc.shutdown()
	}
}

// onInner dispatches an inbound inner message to the matching local
// stream, creating one for OPEN on the server-role dial side.
func (pc *planeConn) onInner(msg wire.InnerMessage) {
	switch msg.Kind {
	case wire.Open:
		if pc.def.Role == tunnel.Server {
			pc.dialServer(msg.ID)
		}
	case wire.Data:
		pc.write(msg.ID, msg.Payload)
	case wire.Close:
		pc.endStream(msg.ID)
	}
}

// dialServer implements the server-role half of the tunnel: on inner
// OPEN, dial the configured local service, buffering until it completes.
func (pc *planeConn) dialServer(id uuid.UUID) {
	s := &stream{id: id}
	pc.mu.Lock()
	if pc.closed {
		pc.mu.Unlock()
		return
	}
	pc.streams[id] = s
	pc.mu.Unlock()

	addr := net.JoinHostPort(pc.def.ConnectAddress, strconv.Itoa(pc.def.ConnectPort))
	conn, err := net.DialTimeout("tcp", addr, timer.FrontDial)
	if err != nil {
		pc.logger.Printf("front: dial %s for %s: %v", addr, pc.key, err)
		pc.endStream(id)
		_ = pc.sink.Send(wire.NewClose(id))
		return
	}

	s.mu.Lock()
	s.conn = conn
	s.dialed = true
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, b := range pending {
		if _, err := conn.Write(b); err != nil {
			pc.logger.Printf("front: flush to %s: %v", addr, err)
			break
		}
	}

	go pc.relayFromLocal(s)
}

// listenLocal implements the client-role half of the tunnel: bind the
// configured local listener and relay each accepted connection.
func (pc *planeConn) listenLocal() {
	for {
		ln, err := bindLocal(pc.def.ListenAddress, pc.def.ListenPort)
		if err != nil {
			if isBusyOrDenied(err) {
				pc.logger.Printf("front: bind %s:%s busy: %v", pc.def.ListenAddress, pc.def.ListenPort, err)
				time.Sleep(timer.FrontBindRetry)
				continue
			}
			pc.logger.Printf("front: bind %s:%s: %v", pc.def.ListenAddress, pc.def.ListenPort, err)
			return
		}

		pc.mu.Lock()
		if pc.closed {
			pc.mu.Unlock()
			_ = ln.Close()
			return
		}
		pc.listener = ln
		pc.mu.Unlock()
		pc.acceptLoop(ln)
		return
	}
}

func (pc *planeConn) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		id := uuid.New()
		s := &stream{id: id, conn: conn, dialed: true}

		pc.mu.Lock()
		if pc.closed {
			pc.mu.Unlock()
			_ = conn.Close()
			return
		}
		pc.streams[id] = s
		pc.mu.Unlock()

		if err := pc.sink.Send(wire.NewOpen(id)); err != nil {
			pc.logger.Printf("front: send open for %s: %v", pc.key, err)
			pc.endStream(id)
			continue
		}
		go pc.relayFromLocal(s)
	}
}

// relayFromLocal reads local socket bytes and forwards them as inner DATA
// messages until the socket closes.
func (pc *planeConn) relayFromLocal(s *stream) {
	buf := make([]byte, readBufferSize)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			payload := make([]byte, n)
			copy(payload, buf[:n])
			if sendErr := pc.sink.Send(wire.NewData(s.id, payload)); sendErr != nil {
				pc.logger.Printf("front: send data for %s: %v", pc.key, sendErr)
				break
			}
			pc.metrics.BytesRelayed(pc.key.Name, int64(n))
		}
		if err != nil {
			break
		}
	}
	_ = pc.sink.Send(wire.NewClose(s.id))
	pc.endStream(s.id)
}

// write appends an inner DATA payload to s's buffer, dialing has already
// completed for server-role streams by the time DATA can arrive; for
// client-role accepted streams the conn is set immediately at accept time.
func (pc *planeConn) write(id uuid.UUID, payload []byte) {
	pc.mu.Lock()
	s, ok := pc.streams[id]
	pc.mu.Unlock()
	if !ok {
		return
	}

	s.mu.Lock()
	if !s.dialed {
		s.pending = append(s.pending, payload)
		s.mu.Unlock()
		return
	}
	conn := s.conn
	s.mu.Unlock()

	if _, err := conn.Write(payload); err != nil {
		if !isConnReset(err) {
			pc.logger.Printf("front: write for %s: %v", pc.key, err)
		}
		pc.endStream(id)
		return
	}
	pc.metrics.BytesRelayed(pc.key.Name, int64(len(payload)))
}

func (pc *planeConn) endStream(id uuid.UUID) {
	pc.mu.Lock()
	s, ok := pc.streams[id]
	if ok {
		delete(pc.streams, id)
	}
	pc.mu.Unlock()
	if ok && s.conn != nil {
		_ = s.conn.Close()
	}
}

func (pc *planeConn) shutdown() {
	pc.mu.Lock()
	if pc.closed {
		pc.mu.Unlock()
		return
	}
	pc.closed = true
	streams := make([]*stream, 0, len(pc.streams))
	for _, s := range pc.streams {
		streams = append(streams, s)
	}
	pc.streams = nil
	ln := pc.listener
	pc.mu.Unlock()

	for _, s := range streams {
		if s.conn != nil {
			_ = s.conn.Close()
		}
	}
	if ln != nil {
		_ = ln.Close()
	}
}

func bindLocal(address, port string) (net.Listener, error) {
	if strings.HasPrefix(port, "/") {
		return net.Listen("unix", port)
	}
	if port == "" || port == "*" {
		return net.Listen("tcp", net.JoinHostPort(address, "0"))
	}
	return net.Listen("tcp", net.JoinHostPort(address, port))
}

func isBusyOrDenied(err error) bool {
	return errors.Is(err, syscall.EADDRINUSE) || errors.Is(err, syscall.EACCES)
}

func isConnReset(err error) bool {
	return errors.Is(err, syscall.ECONNRESET)
}

var _ application.FrontPlane = (*Plane)(nil)
