package config

import (
	"os"
	"path/filepath"
	"testing"

	"bhid/domain/tunnel"
)

const sample = `[daemon]
port = 42049
mtu = 1400

[tracker.example:tracker]
port = 42042
token = T
default = true

[tracker.example#svc:server]
connect_address = 127.0.0.1
connect_port = 8080
encrypted = false
fixed = true
clients = alice,bob

[tracker.example#web:client]
listen_address = 127.0.0.1
listen_port = 9090
encrypted = true
fixed = true
server = alice
`

func TestLoad_ParsesAllSections(t *testing.T) {
	f, err := LoadBytes([]byte(sample))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.Daemon.Port != 42049 || f.Daemon.MTU != 1400 {
		t.Fatalf("unexpected daemon settings: %+v", f.Daemon)
	}

	tr, ok := f.Trackers["tracker.example"]
	if !ok {
		t.Fatal("expected tracker.example to be parsed")
	}
	if tr.Token != "T" || !tr.Default {
		t.Fatalf("unexpected tracker record: %+v", tr)
	}

	svcKey := tunnel.Key{Tracker: "tracker.example", Name: "svc"}
	svc, ok := f.Tunnels[svcKey]
	if !ok || svc.Role != tunnel.Server {
		t.Fatalf("expected server tunnel svc, got %+v", svc)
	}
	if svc.ConnectAddress != "127.0.0.1" || svc.ConnectPort != 8080 {
		t.Fatalf("unexpected server tunnel fields: %+v", svc)
	}
	if len(svc.Clients) != 2 || svc.Clients[0] != "alice" {
		t.Fatalf("unexpected clients list: %v", svc.Clients)
	}

	webKey := tunnel.Key{Tracker: "tracker.example", Name: "web"}
	web, ok := f.Tunnels[webKey]
	if !ok || web.Role != tunnel.Client {
		t.Fatalf("expected client tunnel web, got %+v", web)
	}
	if web.Server != "alice" || !web.Encrypted {
		t.Fatalf("unexpected client tunnel fields: %+v", web)
	}
}

func TestLoad_RejectsMTUBelowMinimum(t *testing.T) {
	_, err := LoadBytes([]byte("[daemon]\nmtu = 10\n"))
	if err == nil {
		t.Fatal("expected error for mtu below minimum")
	}
}

func TestLoadSaveLoad_RoundTrips(t *testing.T) {
	f, err := LoadBytes([]byte(sample))
	if err != nil {
		t.Fatalf("unexpected error loading: %v", err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "bhid.conf")
	if err := Save(path, f); err != nil {
		t.Fatalf("unexpected error saving: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error reloading: %v", err)
	}

	if len(reloaded.Tunnels) != len(f.Tunnels) {
		t.Fatalf("expected %d tunnels after round-trip, got %d", len(f.Tunnels), len(reloaded.Tunnels))
	}
	for key, def := range f.Tunnels {
		got, ok := reloaded.Tunnels[key]
		if !ok {
			t.Fatalf("expected tunnel %s to survive round-trip", key)
		}
		if got.Role != def.Role || got.Encrypted != def.Encrypted || got.Fixed != def.Fixed {
			t.Fatalf("tunnel %s mismatch after round-trip: got %+v want %+v", key, got, def)
		}
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected saved file to exist: %v", err)
	}
}
