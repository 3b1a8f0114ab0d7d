package peer

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"bhid/domain/identity"
	domainpeer "bhid/domain/peer"
	"bhid/domain/wire"
	"bhid/infrastructure/wire/peerpb"
)

func decodeOuterForTest(raw []byte) (*peerpb.DataMessage, error) {
	outer := &peerpb.OuterMessage{}
	if err := peerpb.Unmarshal(raw, outer); err != nil {
		return nil, err
	}
	return outer.Data, nil
}

type fakeIdentity struct {
	priv  *rsa.PrivateKey
	fp    identity.Fingerprint
	peers map[string]*rsa.PublicKey
}

func newFakeIdentity(t *testing.T, name string) *fakeIdentity {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	return &fakeIdentity{priv: priv, fp: identity.Fingerprint(name)}
}

func (f *fakeIdentity) Fingerprint() identity.Fingerprint { return f.fp }
func (f *fakeIdentity) PrivateKey() *rsa.PrivateKey       { return f.priv }
func (f *fakeIdentity) PublicKeyPEM() string              { return "" }
func (f *fakeIdentity) PeerPublicKey(name string) (*rsa.PublicKey, bool) {
	pub, ok := f.peers[name]
	return pub, ok
}
func (f *fakeIdentity) KnownPeerNames() ([]string, error) { return nil, nil }
func (f *fakeIdentity) RememberPeer(string, *rsa.PublicKey) error { return nil }

func TestSession_Handshake_CompletesBothSides(t *testing.T) {
	serverEP, err := Listen(0)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer serverEP.Close()

	clientEP, err := Listen(0)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer clientEP.Close()

	clientConn, err := clientEP.Dial(loopbackAddr(serverEP))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	clientIdentity := newFakeIdentity(t, "client-fp")
	serverIdentity := newFakeIdentity(t, "server-fp")

	clientSession := newSession(clientConn, true, attemptInternal)

	type result struct {
		err error
	}
	clientDone := make(chan result, 1)
	go func() {
		err := clientSession.handshake(clientIdentity, "tunnel-a", false, func(identity.Fingerprint) (string, *rsa.PublicKey, error) {
			return "server", &serverIdentity.priv.PublicKey, nil
		})
		clientDone <- result{err}
	}()

	serverConn, err := serverEP.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	serverSession := newSession(serverConn, false, attemptUnknown)
	serverErr := serverSession.handshake(serverIdentity, "tunnel-a", false, func(identity.Fingerprint) (string, *rsa.PublicKey, error) {
		return "client", &clientIdentity.priv.PublicKey, nil
	})
	if serverErr != nil {
		t.Fatalf("server handshake: %v", serverErr)
	}

	res := <-clientDone
	if res.err != nil {
		t.Fatalf("client handshake: %v", res.err)
	}

	if clientSession.sm.Current() != domainpeer.Verified {
		t.Fatalf("expected client session verified, got %s", clientSession.sm.Current())
	}
	if serverSession.sm.Current() != domainpeer.Verified {
		t.Fatalf("expected server session verified, got %s", serverSession.sm.Current())
	}
	if clientSession.peerName != "server" || serverSession.peerName != "client" {
		t.Fatalf("unexpected resolved peer names: client=%s server=%s", clientSession.peerName, serverSession.peerName)
	}
}

func TestSession_SendRecvInner_RoundTripsEncrypted(t *testing.T) {
	serverEP, err := Listen(0)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer serverEP.Close()
	clientEP, err := Listen(0)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer clientEP.Close()

	clientConn, err := clientEP.Dial(loopbackAddr(serverEP))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	clientIdentity := newFakeIdentity(t, "client-fp")
	serverIdentity := newFakeIdentity(t, "server-fp")

	clientSession := newSession(clientConn, true, attemptInternal)
	clientDone := make(chan error, 1)
	go func() {
		clientDone <- clientSession.handshake(clientIdentity, "tunnel-a", true, func(identity.Fingerprint) (string, *rsa.PublicKey, error) {
			return "server", &serverIdentity.priv.PublicKey, nil
		})
	}()

	serverConn, err := serverEP.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	serverSession := newSession(serverConn, false, attemptUnknown)
	if err := serverSession.handshake(serverIdentity, "tunnel-a", true, func(identity.Fingerprint) (string, *rsa.PublicKey, error) {
		return "client", &clientIdentity.priv.PublicKey, nil
	}); err != nil {
		t.Fatalf("server handshake: %v", err)
	}
	if err := <-clientDone; err != nil {
		t.Fatalf("client handshake: %v", err)
	}

	if !clientSession.encrypted || !serverSession.encrypted {
		t.Fatal("expected both sides to negotiate encryption")
	}

	msg := wire.NewData(clientSession.id, []byte("payload"))
	if err := clientSession.sendInner(msg); err != nil {
		t.Fatalf("send inner: %v", err)
	}

	raw, err := serverSession.conn.ReadMessage()
	if err != nil {
		t.Fatalf("read raw: %v", err)
	}
	outer, err := decodeOuterForTest(raw)
	if err != nil {
		t.Fatalf("decode outer: %v", err)
	}
	got, err := serverSession.recvInner(outer)
	if err != nil {
		t.Fatalf("recv inner: %v", err)
	}
	if string(got.Payload) != "payload" {
		t.Fatalf("expected payload, got %q", got.Payload)
	}
}
