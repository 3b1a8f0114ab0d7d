package peer

import (
	"bytes"
	"testing"
)

func TestSessionCrypter_RoundTrip(t *testing.T) {
	a, err := NewEphemeralKeyPair()
	if err != nil {
		t.Fatalf("generate key pair a: %v", err)
	}
	b, err := NewEphemeralKeyPair()
	if err != nil {
		t.Fatalf("generate key pair b: %v", err)
	}

	aToB := NewCrypter(a.Private, b.Public)
	bToA := NewCrypter(b.Private, a.Public)

	plaintext := []byte("established tunnel payload")
	nonce, ciphertext, err := aToB.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	got, err := bToA.Decrypt(nonce, ciphertext)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("expected %q, got %q", plaintext, got)
	}
}

func TestSessionCrypter_DecryptFailsOnWrongKey(t *testing.T) {
	a, _ := NewEphemeralKeyPair()
	b, _ := NewEphemeralKeyPair()
	stranger, _ := NewEphemeralKeyPair()

	aToB := NewCrypter(a.Private, b.Public)
	nonce, ciphertext, err := aToB.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	wrongKey := NewCrypter(stranger.Private, a.Public)
	if _, err := wrongKey.Decrypt(nonce, ciphertext); err == nil {
		t.Fatal("expected decryption under the wrong shared key to fail")
	}
}
