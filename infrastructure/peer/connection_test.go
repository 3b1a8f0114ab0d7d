package peer

import (
	"testing"

	"bhid/application"
	domainpeer "bhid/domain/peer"
	"bhid/domain/tunnel"
)

func establishedSession(t *testing.T) *session {
	t.Helper()
	s := newSession(nil, true, attemptInternal)
	if err := s.sm.To(domainpeer.Connected); err != nil {
		t.Fatalf("to connected: %v", err)
	}
	if err := s.sm.To(domainpeer.Verified); err != nil {
		t.Fatalf("to verified: %v", err)
	}
	if err := s.establish(); err != nil {
		t.Fatalf("establish: %v", err)
	}
	return s
}

func peerAvailableFixture() application.PeerAvailable {
	return application.PeerAvailable{Tracker: "t", Tunnel: "svc", PeerName: "alice"}
}

func TestConnection_AddEstablished_LoserCloses(t *testing.T) {
	key := tunnel.Key{Tracker: "t", Name: "svc"}
	c := newConnection(key, &tunnel.Definition{Key: key}, nil)

	first := establishedSession(t)
	if ok := c.addEstablished(first); !ok {
		t.Fatal("expected first session to win")
	}

	second := establishedSession(t)
	if ok := c.addEstablished(second); ok {
		t.Fatal("expected second session to lose once one is already established")
	}

	if len(c.all()) != 1 {
		t.Fatalf("expected exactly one tracked session, got %d", len(c.all()))
	}
}

func TestConnection_RememberAndGetLastPeerAvailable(t *testing.T) {
	key := tunnel.Key{Tracker: "t", Name: "svc"}
	c := newConnection(key, &tunnel.Definition{Key: key}, nil)

	if _, ok := c.getLastPeerAvailable(); ok {
		t.Fatal("expected no remembered event before any is recorded")
	}

	c.rememberPeerAvailable(peerAvailableFixture())
	ev, ok := c.getLastPeerAvailable()
	if !ok {
		t.Fatal("expected a remembered event")
	}
	if ev.PeerName != "alice" {
		t.Fatalf("unexpected remembered event: %+v", ev)
	}
}

func TestConnection_TryingFlag(t *testing.T) {
	key := tunnel.Key{Tracker: "t", Name: "svc"}
	c := newConnection(key, &tunnel.Definition{Key: key}, nil)

	if c.isTrying() {
		t.Fatal("expected trying to start false")
	}
	c.setTrying(true)
	if !c.isTrying() {
		t.Fatal("expected trying to be true after setTrying(true)")
	}
}
