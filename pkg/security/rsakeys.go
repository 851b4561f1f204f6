package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultKeyBits matches the wrapped-key size pkg/storage/encrypt.go
// assumes for its PSEN header (512-byte PKCS#1 v1.5 output).
const DefaultKeyBits = 4096

// GenerateRSAKeyPair creates a new RSA key pair suitable for
// pkg/config.EncryptionConfig: a PKIX-encoded public key PEM block and
// a PKCS#1-encoded private key PEM block.
func GenerateRSAKeyPair(bits int) (pubPEM, privPEM []byte, err error) {
	if bits <= 0 {
		bits = DefaultKeyBits
	}
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, nil, fmt.Errorf("security: generate RSA key: %w", err)
	}

	pubBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("security: marshal public key: %w", err)
	}
	pubPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	privPEM = pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	return pubPEM, privPEM, nil
}

// WriteKeyPair writes the public and private PEM files, creating
// parent directories as needed. The private key is written 0600; the
// public key 0644, matching the teacher's cert/key file-permission
// convention (private material owner-only, public material world-readable).
func WriteKeyPair(pubPath, privPath string, pubPEM, privPEM []byte) error {
	for _, p := range []string{pubPath, privPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0700); err != nil {
			return fmt.Errorf("security: create directory for %s: %w", p, err)
		}
	}
	if err := os.WriteFile(pubPath, pubPEM, 0644); err != nil {
		return fmt.Errorf("security: write public key %s: %w", pubPath, err)
	}
	if err := os.WriteFile(privPath, privPEM, 0600); err != nil {
		return fmt.Errorf("security: write private key %s: %w", privPath, err)
	}
	return nil
}
