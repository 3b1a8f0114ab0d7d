package peer

import (
	"context"
	"crypto/rsa"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"bhid/application"
	"bhid/domain/identity"
	"bhid/domain/tunnel"
	"bhid/domain/wire"
)

type testLogger struct{}

func (testLogger) Printf(string, ...any) {}

type noopTracker struct{}

func (noopTracker) Status(context.Context, application.StatusReport) error        { return nil }
func (noopTracker) PunchRequest(context.Context, string, string) error            { return nil }
func (noopTracker) LookupIdentity(context.Context, string, string) (application.PeerIdentity, error) {
	return application.PeerIdentity{}, nil
}

type recordingTracker struct {
	mu      sync.Mutex
	reports []application.StatusReport
}

func (rt *recordingTracker) Status(_ context.Context, report application.StatusReport) error {
	rt.mu.Lock()
	rt.reports = append(rt.reports, report)
	rt.mu.Unlock()
	return nil
}
func (rt *recordingTracker) PunchRequest(context.Context, string, string) error { return nil }
func (rt *recordingTracker) LookupIdentity(context.Context, string, string) (application.PeerIdentity, error) {
	return application.PeerIdentity{}, nil
}

func (rt *recordingTracker) statusesFor(tracker string) []application.StatusReport {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	var out []application.StatusReport
	for _, r := range rt.reports {
		if r.Tracker == tracker {
			out = append(out, r)
		}
	}
	return out
}

type recordingFront struct {
	mu          sync.Mutex
	established []tunnel.Key
}

func (f *recordingFront) OnSessionEstablished(key tunnel.Key, def *tunnel.Definition, sink application.SessionSink) {
	f.mu.Lock()
	f.established = append(f.established, key)
	f.mu.Unlock()
}
func (f *recordingFront) OnSessionClosed(tunnel.Key, uuid.UUID)              {}
func (f *recordingFront) OnInner(tunnel.Key, uuid.UUID, wire.InnerMessage) {}
func (f *recordingFront) Shutdown()                                         {}

func (f *recordingFront) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.established)
}

// newEngineIdentity derives the fingerprint from the generated key, since
// the engine resolves peers by comparing fingerprints of their public keys.
func newEngineIdentity(t *testing.T, name string) *fakeIdentity {
	id := newFakeIdentity(t, name)
	id.fp = identity.FingerprintFromPEM(publicKeyPEM(&id.priv.PublicKey))
	return id
}

func TestEngine_DialAndAccept_EstablishesSession(t *testing.T) {
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

	clientIdentity := newEngineIdentity(t, "client-fp")
	serverIdentity := newEngineIdentity(t, "server-fp")

	clientIdentity.peers = map[string]*rsa.PublicKey{"server": &serverIdentity.priv.PublicKey}
	serverIdentity.peers = map[string]*rsa.PublicKey{"client": &clientIdentity.priv.PublicKey}

	clientFront := &recordingFront{}
	serverFront := &recordingFront{}

	clientEngine := NewEngine(clientEP, clientEP, clientIdentity, noopTracker{}, clientFront, testLogger{})
	serverEngine := NewEngine(serverEP, serverEP, serverIdentity, noopTracker{}, serverFront, testLogger{})

	key := tunnel.Key{Tracker: "t", Name: "svc"}
	def := &tunnel.Definition{Key: key, Role: tunnel.Client, Fixed: true, Server: "server"}
	serverDef := &tunnel.Definition{Key: key, Role: tunnel.Server, Fixed: true, Clients: []string{"client"}}

	if err := clientEngine.OpenClient("t", def); err != nil {
		t.Fatalf("open client: %v", err)
	}
	if err := serverEngine.OpenServer("t", serverDef); err != nil {
		t.Fatalf("open server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go serverEngine.Run(ctx)

	c, ok := clientEngine.connFor(key)
	if !ok {
		t.Fatal("expected client connection to be registered")
	}
	if !clientEngine.dialAttempt(key, c, loopbackAddr(serverEP), attemptInternal, "server") {
		t.Fatal("expected dial attempt to establish a session")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if clientFront.count() > 0 && serverFront.count() > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if clientFront.count() == 0 {
		t.Fatal("expected client-side front plane to see the established session")
	}
	if serverFront.count() == 0 {
		t.Fatal("expected server-side front plane to see the established session")
	}
}

func TestEngine_OnRegistered_AnnouncesStatusForEachTunnelOnThatTracker(t *testing.T) {
	id := newEngineIdentity(t, "self-fp")
	tracker := &recordingTracker{}
	e := NewEngine(nil, nil, id, tracker, &recordingFront{}, testLogger{})

	svc := tunnel.Key{Tracker: "alpha", Name: "svc"}
	web := tunnel.Key{Tracker: "alpha", Name: "web"}
	other := tunnel.Key{Tracker: "beta", Name: "svc"}
	if err := e.OpenClient("alpha", &tunnel.Definition{Key: svc, Role: tunnel.Client, Fixed: true, Server: "peer"}); err != nil {
		t.Fatalf("open client svc: %v", err)
	}
	if err := e.OpenServer("alpha", &tunnel.Definition{Key: web, Role: tunnel.Server}); err != nil {
		t.Fatalf("open server web: %v", err)
	}
	if err := e.OpenClient("beta", &tunnel.Definition{Key: other, Role: tunnel.Client, Fixed: true, Server: "peer"}); err != nil {
		t.Fatalf("open client other: %v", err)
	}

	e.OnRegistered("alpha")

	reports := tracker.statusesFor("alpha")
	if len(reports) != 2 {
		t.Fatalf("expected 2 status reports for tracker alpha, got %d: %+v", len(reports), reports)
	}
	seen := map[string]bool{}
	for _, r := range reports {
		seen[r.Tunnel] = true
		if !r.Active {
			t.Fatalf("expected Active status report, got %+v", r)
		}
	}
	if !seen["svc"] || !seen["web"] {
		t.Fatalf("expected status reports for svc and web, got %+v", reports)
	}

	if got := tracker.statusesFor("beta"); len(got) != 0 {
		t.Fatalf("expected no status reports for tracker beta, got %+v", got)
	}
}

func TestEngine_ResolvePeer_PrefersLocalCacheOverTracker(t *testing.T) {
	id := newEngineIdentity(t, "self-fp")
	other := newEngineIdentity(t, "other-fp")
	id.peers = map[string]*rsa.PublicKey{"alice": &other.priv.PublicKey}

	e := NewEngine(nil, nil, id, noopTracker{}, &recordingFront{}, testLogger{})
	def := &tunnel.Definition{Key: tunnel.Key{Tracker: "t", Name: "svc"}}

	resolve := e.resolvePeer(def, "alice")
	fp := identity.FingerprintFromPEM(publicKeyPEM(&other.priv.PublicKey))
	name, pub, err := resolve(fp)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if name != "alice" || pub != &other.priv.PublicKey {
		t.Fatalf("expected local cache hit for alice, got name=%s", name)
	}
}
