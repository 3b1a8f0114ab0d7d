package peer

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// SignEphemeralKey signs the SHA-256 digest of pub's bytes with priv,
// feeding the digest to the signer as hex text.
func SignEphemeralKey(priv *rsa.PrivateKey, pub [32]byte) ([]byte, error) {
	digest := sha256.Sum256(pub[:])
	hexDigest := sha256.Sum256([]byte(hex.EncodeToString(digest[:])))
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, hexDigest[:])
	if err != nil {
		return nil, fmt.Errorf("peer: sign ephemeral key: %w", err)
	}
	return sig, nil
}

// VerifyEphemeralKey checks sig against pub using the peer's long-lived
// RSA public key.
func VerifyEphemeralKey(peerPub *rsa.PublicKey, pub [32]byte, sig []byte) error {
	digest := sha256.Sum256(pub[:])
	hexDigest := sha256.Sum256([]byte(hex.EncodeToString(digest[:])))
	if err := rsa.VerifyPKCS1v15(peerPub, crypto.SHA256, hexDigest[:], sig); err != nil {
		return fmt.Errorf("peer: verify ephemeral key signature: %w", err)
	}
	return nil
}
