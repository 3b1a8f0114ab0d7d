package identity

import (
	"fmt"
	"os"
	"path/filepath"
)

const rsaKeyBits = 2048

// generateKeyPair shells out to openssl to create a fresh RSA-2048 key pair
// at privatePath/publicPath when identity files are absent.
func generateKeyPair(cmd Commander, privatePath, publicPath string) error {
	if err := os.MkdirAll(filepath.Dir(privatePath), 0700); err != nil {
		return fmt.Errorf("identity: create key directory: %w", err)
	}

	if out, err := cmd.CombinedOutput("openssl", "genrsa", "-out", privatePath, fmt.Sprintf("%d", rsaKeyBits)); err != nil {
		return fmt.Errorf("identity: openssl genrsa: %w: %s", err, out)
	}
	if err := os.Chmod(privatePath, 0600); err != nil {
		return fmt.Errorf("identity: chmod private key: %w", err)
	}

	if out, err := cmd.CombinedOutput("openssl", "rsa", "-in", privatePath, "-pubout", "-out", publicPath); err != nil {
		return fmt.Errorf("identity: openssl rsa -pubout: %w: %s", err, out)
	}
	if err := os.Chmod(publicPath, 0644); err != nil {
		return fmt.Errorf("identity: chmod public key: %w", err)
	}

	return nil
}
