// Package peer implements the Peer Engine: the UTP-based
// connection fabric that opens, authenticates, encrypts, and multiplexes
// tunnels to other daemons.
//
// Endpoint is the production transport adapter satisfying
// application.PeerListener/PeerConn/PeerDialer. It binds one UDP socket
// and multiplexes it by remote address into per-peer
// framed message streams. It intentionally does not reimplement uTP's full
// congestion control and retransmission — see DESIGN.md "Open Question
// decisions" #4 for why no pack example grounds a real uTP dependency and
// what swapping one in later would touch.
package peer

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"bhid/application"
)

// mtuIPv4Overhead is the IPv4 header size subtracted from a configured MTU
// override.
const mtuIPv4Overhead = 20

// ValidateMTU enforces a minimum of 21 after the 20-byte IP header
// subtraction on an optional MTU override. mtu == 0 means no override was
// configured.
func ValidateMTU(mtu int) error {
	if mtu == 0 {
		return nil
	}
	if mtu-mtuIPv4Overhead < 21 {
		return fmt.Errorf("peer: mtu %d leaves less than 21 bytes after the IPv4 header", mtu)
	}
	return nil
}

var ErrListenerClosed = errors.New("peer: listener closed")

type Endpoint struct {
	conn *net.UDPConn

	mu       sync.Mutex
	streams  map[string]*udpStream
	accepted chan *udpStream
	closed   bool
}

// Listen binds the daemon's one UDP endpoint. A bind failure here is
// fatal to the process.
func Listen(port int) (*Endpoint, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, fmt.Errorf("peer: bind udp endpoint: %w", err)
	}
	e := &Endpoint{
		conn:     conn,
		streams:  make(map[string]*udpStream),
		accepted: make(chan *udpStream, 64),
	}
	go e.readLoop()
	return e, nil
}

func (e *Endpoint) readLoop() {
	buf := make([]byte, 64*1024)
	for {
		n, addr, err := e.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		datagram := make([]byte, n)
		copy(datagram, buf[:n])

		e.mu.Lock()
		if e.closed {
			e.mu.Unlock()
			return
		}
		s, ok := e.streams[addr.String()]
		if !ok {
			s = newUDPStream(e.conn, addr)
			e.streams[addr.String()] = s
			e.mu.Unlock()
			select {
			case e.accepted <- s:
			default:
			}
		} else {
			e.mu.Unlock()
		}
		s.deliver(datagram)
	}
}

func (e *Endpoint) Accept() (application.PeerConn, error) {
	s, ok := <-e.accepted
	if !ok {
		return nil, ErrListenerClosed
	}
	return s, nil
}

func (e *Endpoint) Addr() net.Addr { return e.conn.LocalAddr() }

// LocalAddresses enumerates this host's non-loopback unicast addresses
// paired with the endpoint's bound UDP port, for the Tracker Client's
// periodic STATUS report. The Engine discovers this
// method on its application.PeerListener via an optional-interface type
// assertion, so the port itself stays narrow.
func (e *Endpoint) LocalAddresses() ([]netip.AddrPort, error) {
	port := uint16(e.conn.LocalAddr().(*net.UDPAddr).Port)

	ifaceAddrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, fmt.Errorf("peer: enumerate local addresses: %w", err)
	}

	out := make([]netip.AddrPort, 0, len(ifaceAddrs))
	for _, a := range ifaceAddrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		addr, ok := netip.AddrFromSlice(ipNet.IP)
		if !ok || addr.IsLoopback() || addr.IsLinkLocalUnicast() {
			continue
		}
		out = append(out, netip.AddrPortFrom(addr.Unmap(), port))
	}
	return out, nil
}

func (e *Endpoint) Close() error {
	e.mu.Lock()
	e.closed = true
	close(e.accepted)
	e.mu.Unlock()
	return e.conn.Close()
}

// Dial opens an outbound stream to addr, registering it in the same
// demultiplex table Accept uses for inbound traffic.
func (e *Endpoint) Dial(addr string) (application.PeerConn, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("peer: resolve %s: %w", addr, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.streams[udpAddr.String()]; ok {
		return s, nil
	}
	s := newUDPStream(e.conn, udpAddr)
	e.streams[udpAddr.String()] = s
	return s, nil
}

// Punch sends n best-effort UDP datagrams to addr ahead of a Dial, to open
// a hole in a symmetric NAT.
func (e *Endpoint) Punch(addr string, n int) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("peer: resolve %s: %w", addr, err)
	}
	for i := 0; i < n; i++ {
		_, _ = e.conn.WriteToUDP([]byte{0}, udpAddr)
	}
	return nil
}

var _ application.PeerListener = (*Endpoint)(nil)
var _ application.PeerDialer = (*Endpoint)(nil)

// udpStream is one peer's demultiplexed message stream over the shared
// UDP socket; it implements application.PeerConn.
type udpStream struct {
	conn *net.UDPConn
	addr *net.UDPAddr

	inbound chan []byte

	mu             sync.Mutex
	readDeadline   time.Time
	closed         bool
}

func newUDPStream(conn *net.UDPConn, addr *net.UDPAddr) *udpStream {
	return &udpStream{conn: conn, addr: addr, inbound: make(chan []byte, 256)}
}

func (s *udpStream) deliver(datagram []byte) {
	select {
	case s.inbound <- datagram:
	default:
		// Drop on a full queue; no reliability guarantee is made beyond
		// what the transport layer itself provides.
	}
}

// ReadMessage returns the next datagram as a whole message; UDP already
// preserves datagram boundaries so no length framing is needed here (unlike
// the tracker's TLS stream, which has none).
func (s *udpStream) ReadMessage() ([]byte, error) {
	s.mu.Lock()
	deadline := s.readDeadline
	s.mu.Unlock()

	if deadline.IsZero() {
		datagram, ok := <-s.inbound
		if !ok {
			return nil, ErrListenerClosed
		}
		return datagram, nil
	}

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case datagram, ok := <-s.inbound:
		if !ok {
			return nil, ErrListenerClosed
		}
		return datagram, nil
	case <-timer.C:
		return nil, fmt.Errorf("peer: read deadline exceeded")
	}
}

func (s *udpStream) WriteMessage(payload []byte) error {
	_, err := s.conn.WriteToUDP(payload, s.addr)
	return err
}

func (s *udpStream) SetReadDeadline(t time.Time) error {
	s.mu.Lock()
	s.readDeadline = t
	s.mu.Unlock()
	return nil
}

func (s *udpStream) SetWriteDeadline(time.Time) error { return nil }

func (s *udpStream) RemoteAddr() net.Addr { return s.addr }

func (s *udpStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return nil
}

var _ application.PeerConn = (*udpStream)(nil)
