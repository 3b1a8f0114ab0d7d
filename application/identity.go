package application

import (
	"crypto/rsa"

	"bhid/domain/identity"
)

// Identity is this daemon's long-lived RSA identity plus its view of known
// peers.
type Identity interface {
	// Fingerprint is this daemon's own identity fingerprint.
	Fingerprint() identity.Fingerprint
	// PrivateKey is the daemon's long-lived RSA private key.
	PrivateKey() *rsa.PrivateKey
	// PublicKeyPEM is the exact PEM string the fingerprint was derived from.
	PublicKeyPEM() string

	// PeerPublicKey returns the RSA public key of a known peer by name, or
	// false if no local peers/<name>.rsa file exists.
	PeerPublicKey(name string) (*rsa.PublicKey, bool)
	// KnownPeerNames lists every name with a local peers/<name>.rsa file,
	// so an inbound handshake can match an asserted fingerprint against the
	// local peers directory before falling back to the tracker.
	KnownPeerNames() ([]string, error)
	// RememberPeer persists a newly learned peer public key (e.g. after a
	// tracker LOOKUP_IDENTITY_RESPONSE) so future sessions can verify it
	// without asking the tracker again.
	RememberPeer(name string, pub *rsa.PublicKey) error
}
