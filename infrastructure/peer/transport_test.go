package peer

import (
	"net"
	"strconv"
	"testing"
	"time"
)

// loopbackAddr is a dialable address for e. e.Addr() is the wildcard listen
// address; replies to a datagram sent there come from a concrete address,
// and the endpoint keys streams by the exact remote address.
func loopbackAddr(e *Endpoint) string {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(e.Addr().(*net.UDPAddr).Port))
}

func TestValidateMTU(t *testing.T) {
	cases := []struct {
		mtu     int
		wantErr bool
	}{
		{0, false},
		{41, false},
		{40, true},
		{1500, false},
	}
	for _, c := range cases {
		err := ValidateMTU(c.mtu)
		if (err != nil) != c.wantErr {
			t.Errorf("ValidateMTU(%d): got err=%v, want err=%v", c.mtu, err, c.wantErr)
		}
	}
}

func TestEndpoint_DialAndAcceptExchangeMessages(t *testing.T) {
	server, err := Listen(0)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer server.Close()

	client, err := Listen(0)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer client.Close()

	toServer, err := client.Dial(loopbackAddr(server))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if err := toServer.WriteMessage([]byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}

	accepted, err := server.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	msg, err := accepted.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(msg) != "hello" {
		t.Fatalf("expected hello, got %q", msg)
	}

	if err := accepted.WriteMessage([]byte("world")); err != nil {
		t.Fatalf("write reply: %v", err)
	}
	reply, err := toServer.ReadMessage()
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if string(reply) != "world" {
		t.Fatalf("expected world, got %q", reply)
	}
}

func TestUDPStream_ReadMessage_RespectsDeadline(t *testing.T) {
	server, err := Listen(0)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer server.Close()

	client, err := Listen(0)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer client.Close()

	toServer, err := client.Dial(server.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	_ = toServer.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	if _, err := toServer.ReadMessage(); err == nil {
		t.Fatal("expected a deadline error with nothing written")
	}
}

func TestEndpoint_LocalAddresses_ExcludesLoopback(t *testing.T) {
	ep, err := Listen(0)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ep.Close()

	addrs, err := ep.LocalAddresses()
	if err != nil {
		t.Fatalf("local addresses: %v", err)
	}
	for _, a := range addrs {
		if a.Addr().IsLoopback() {
			t.Fatalf("expected no loopback address, got %s", a)
		}
		if int(a.Port()) != ep.Addr().(*net.UDPAddr).Port {
			t.Fatalf("expected port %d, got %s", ep.Addr().(*net.UDPAddr).Port, a)
		}
	}
}

func TestEndpoint_Punch_DoesNotError(t *testing.T) {
	server, err := Listen(0)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer server.Close()

	if err := server.Punch("127.0.0.1:1", 3); err != nil {
		t.Fatalf("punch: %v", err)
	}
}
