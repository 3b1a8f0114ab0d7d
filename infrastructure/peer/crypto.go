package peer

import (
	"crypto/rand"
	"fmt"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"

	"bhid/application"
)

// NewEphemeralKeyPair generates one session's X25519 ephemeral key pair.
func NewEphemeralKeyPair() (application.EphemeralKeyPair, error) {
	var pair application.EphemeralKeyPair
	if _, err := rand.Read(pair.Private[:]); err != nil {
		return pair, fmt.Errorf("peer: generate ephemeral key: %w", err)
	}
	pub, err := curve25519.X25519(pair.Private[:], curve25519.Basepoint)
	if err != nil {
		return pair, fmt.Errorf("peer: derive ephemeral public key: %w", err)
	}
	copy(pair.Public[:], pub)
	return pair, nil
}

// sessionCrypter is a Crypter over the shared key derived once from a
// session's local private and peer public ephemeral keys, memoized on
// first use.
type sessionCrypter struct {
	localPriv [32]byte
	peerPub   [32]byte

	once  sync.Once
	aead  interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
		NonceSize() int
	}
	initErr error
}

// NewCrypter builds the per-session Crypter for an established key exchange.
func NewCrypter(localPriv, peerPub [32]byte) application.Crypter {
	return &sessionCrypter{localPriv: localPriv, peerPub: peerPub}
}

func (c *sessionCrypter) init() {
	shared, err := curve25519.X25519(c.localPriv[:], c.peerPub[:])
	if err != nil {
		c.initErr = fmt.Errorf("peer: derive shared secret: %w", err)
		return
	}
	var key [32]byte
	copy(key[:], shared)
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		c.initErr = fmt.Errorf("peer: init aead: %w", err)
		return
	}
	c.aead = aead
}

func (c *sessionCrypter) Encrypt(plaintext []byte) (nonce, ciphertext []byte, err error) {
	c.once.Do(c.init)
	if c.initErr != nil {
		return nil, nil, c.initErr
	}
	nonce = make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("peer: generate nonce: %w", err)
	}
	ciphertext = c.aead.Seal(nil, nonce, plaintext, nil)
	return nonce, ciphertext, nil
}

func (c *sessionCrypter) Decrypt(nonce, ciphertext []byte) ([]byte, error) {
	c.once.Do(c.init)
	if c.initErr != nil {
		return nil, c.initErr
	}
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("peer: decrypt: %w", err)
	}
	return plaintext, nil
}

var _ application.Crypter = (*sessionCrypter)(nil)
