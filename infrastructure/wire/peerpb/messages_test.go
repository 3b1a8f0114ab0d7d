package peerpb

import (
	"testing"

	"github.com/google/uuid"

	"bhid/domain/wire"
)

func TestOuterMessage_ConnectRoundTrips(t *testing.T) {
	in := &OuterMessage{
		Type: CONNECT_REQUEST,
		Connect: &ConnectMessage{
			IdentityFingerprint: "abc123",
			EphemeralPublicKey:  []byte{1, 2, 3},
			Signature:           []byte{4, 5, 6},
			Encrypted:           true,
			TunnelName:          "svc",
		},
	}

	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var out OuterMessage
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out.Type != CONNECT_REQUEST || out.Connect == nil {
		t.Fatalf("expected connect request to round-trip, got %+v", out)
	}
	if out.Connect.IdentityFingerprint != "abc123" || !out.Connect.Encrypted {
		t.Fatalf("expected connect fields to round-trip, got %+v", out.Connect)
	}
}

func TestToFromProto_InnerMessageRoundTrips(t *testing.T) {
	id := uuid.New()
	original := wire.NewData(id, []byte("payload"))

	proto := ToProto(original)
	back, err := FromProto(proto)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if back.Kind != wire.Data || back.ID != id || string(back.Payload) != "payload" {
		t.Fatalf("expected round-trip to preserve message, got %+v", back)
	}
}

func TestFromProto_RejectsMalformedID(t *testing.T) {
	_, err := FromProto(&InnerMessage{Kind: OPEN, ID: []byte{1, 2, 3}})
	if err == nil {
		t.Fatal("expected error for malformed id")
	}
}
