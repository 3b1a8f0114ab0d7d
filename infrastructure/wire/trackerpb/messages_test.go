package trackerpb

import "testing"

func TestClientMessage_MarshalUnmarshalRoundTrips(t *testing.T) {
	in := &ClientMessage{
		Type:      STATUS,
		MessageID: "corr-1",
		Status_: &StatusMessage{
			Tunnel:    "svc",
			Connected: 2,
			Active:    true,
			Addresses: []string{"10.0.0.1", "fe80::1"},
			UTPPort:   42049,
		},
	}

	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("unexpected error marshaling: %v", err)
	}

	var out ClientMessage
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("unexpected error unmarshaling: %v", err)
	}

	if out.Type != STATUS {
		t.Fatalf("expected type STATUS, got %v", out.Type)
	}
	if out.MessageID != "corr-1" {
		t.Fatalf("expected message id to round-trip, got %q", out.MessageID)
	}
	if out.Status_ == nil || out.Status_.Tunnel != "svc" || out.Status_.Connected != 2 || !out.Status_.Active {
		t.Fatalf("expected status payload to round-trip, got %+v", out.Status_)
	}
	if len(out.Status_.Addresses) != 2 || out.Status_.Addresses[0] != "10.0.0.1" {
		t.Fatalf("expected addresses to round-trip, got %v", out.Status_.Addresses)
	}
}

func TestServerMessage_PeerAvailableRoundTrips(t *testing.T) {
	in := &ServerMessage{
		Type: PEER_AVAILABLE,
		PeerAvailable: &PeerAvailable{
			Tunnel:            "svc",
			PeerName:          "bob",
			InternalAddresses: []string{"192.168.1.5:42049"},
			ExternalAddress:   "203.0.113.9:42049",
		},
	}

	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("unexpected error marshaling: %v", err)
	}

	var out ServerMessage
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("unexpected error unmarshaling: %v", err)
	}

	if out.PeerAvailable == nil || out.PeerAvailable.PeerName != "bob" {
		t.Fatalf("expected peer_available to round-trip, got %+v", out.PeerAvailable)
	}
}
