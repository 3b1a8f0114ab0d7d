// Package identity implements application.Identity: on-disk RSA key pair,
// fingerprint, and the known-peers directory.
package identity

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"bhid/application"
	"bhid/domain/identity"
)

type Daemon struct {
	configDir string
	cmd       Commander

	mu          sync.RWMutex
	private     *rsa.PrivateKey
	publicPEM   string
	fingerprint identity.Fingerprint
}

// Load reads (or, if absent, generates) the daemon's identity under
// configDir/id/{private,public}.rsa.
func Load(configDir string, cmd Commander) (*Daemon, error) {
	d := &Daemon{configDir: configDir, cmd: cmd}

	privatePath := d.privateKeyPath()
	publicPath := d.publicKeyPath()

	if _, err := os.Stat(privatePath); os.IsNotExist(err) {
		if err := generateKeyPair(cmd, privatePath, publicPath); err != nil {
			return nil, err
		}
	}

	privateBytes, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, fmt.Errorf("identity: read private key: %w", err)
	}
	private, err := parsePrivateKeyPEM(privateBytes)
	if err != nil {
		return nil, fmt.Errorf("identity: parse private key: %w", err)
	}

	publicBytes, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, fmt.Errorf("identity: read public key: %w", err)
	}

	d.private = private
	d.publicPEM = string(publicBytes)
	d.fingerprint = identity.FingerprintFromPEM(d.publicPEM)

	return d, nil
}

func (d *Daemon) privateKeyPath() string { return filepath.Join(d.configDir, "id", "private.rsa") }
func (d *Daemon) publicKeyPath() string  { return filepath.Join(d.configDir, "id", "public.rsa") }
func (d *Daemon) peersDir() string       { return filepath.Join(d.configDir, "peers") }

func (d *Daemon) Fingerprint() identity.Fingerprint { return d.fingerprint }
func (d *Daemon) PrivateKey() *rsa.PrivateKey       { return d.private }
func (d *Daemon) PublicKeyPEM() string              { return d.publicPEM }

func (d *Daemon) PeerPublicKey(name string) (*rsa.PublicKey, bool) {
	path := filepath.Join(d.peersDir(), name+".rsa")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	pub, err := parsePublicKeyPEM(data)
	if err != nil {
		return nil, false
	}
	return pub, true
}

func (d *Daemon) KnownPeerNames() ([]string, error) {
	entries, err := os.ReadDir(d.peersDir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("identity: list peers directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		const suffix = ".rsa"
		if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
			names = append(names, name[:len(name)-len(suffix)])
		}
	}
	return names, nil
}

func (d *Daemon) RememberPeer(name string, pub *rsa.PublicKey) error {
	if err := os.MkdirAll(d.peersDir(), 0755); err != nil {
		return fmt.Errorf("identity: create peers directory: %w", err)
	}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return fmt.Errorf("identity: marshal peer public key: %w", err)
	}
	block := &pem.Block{Type: "PUBLIC KEY", Bytes: der}
	path := filepath.Join(d.peersDir(), name+".rsa")
	return os.WriteFile(path, pem.EncodeToMemory(block), 0644)
}

var _ application.Identity = (*Daemon)(nil)

func parsePrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("invalid PEM")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA private key")
	}
	return rsaKey, nil
}

func parsePublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("invalid PEM")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA public key")
	}
	return rsaKey, nil
}
