package peer

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
)

func TestSignAndVerifyEphemeralKey(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}

	kp, err := NewEphemeralKeyPair()
	if err != nil {
		t.Fatalf("generate ephemeral key pair: %v", err)
	}

	sig, err := SignEphemeralKey(priv, kp.Public)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if err := VerifyEphemeralKey(&priv.PublicKey, kp.Public, sig); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerifyEphemeralKey_RejectsTamperedKey(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}

	kp, err := NewEphemeralKeyPair()
	if err != nil {
		t.Fatalf("generate ephemeral key pair: %v", err)
	}
	sig, err := SignEphemeralKey(priv, kp.Public)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	tampered := kp.Public
	tampered[0] ^= 0xFF
	if err := VerifyEphemeralKey(&priv.PublicKey, tampered, sig); err == nil {
		t.Fatal("expected verification of a tampered public key to fail")
	}
}

func TestVerifyEphemeralKey_RejectsWrongSigner(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}

	kp, err := NewEphemeralKeyPair()
	if err != nil {
		t.Fatalf("generate ephemeral key pair: %v", err)
	}
	sig, err := SignEphemeralKey(priv, kp.Public)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if err := VerifyEphemeralKey(&other.PublicKey, kp.Public, sig); err == nil {
		t.Fatal("expected verification against the wrong signer's key to fail")
	}
}
