// key.go sealing key management
package sealing

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shroudml/shroud-go/internal/errors"
)

const keySize = 32 // 256 bits

// loadOrCreateKey reads the hex-encoded sealing key from keyPath,
// generating and persisting a fresh key when the file does not exist.
func loadOrCreateKey(keyPath string) ([]byte, error) {
	keyBytes, err := os.ReadFile(keyPath) //nolint:gosec // G304: keyPath is from application settings
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, errors.New(fmt.Errorf("reading sealing key file: %w", err)).
				Component("sealing").
				Category(errors.CategoryFileIO).
				Context("path", keyPath).
				Build()
		}
		return GenerateKey(keyPath)
	}

	key, err := hex.DecodeString(strings.TrimSpace(string(keyBytes)))
	if err != nil {
		return nil, errors.New(fmt.Errorf("decoding sealing key: %w", err)).
			Component("sealing").
			Category(errors.CategorySealing).
			Context("path", keyPath).
			Build()
	}
	if len(key) != keySize {
		return nil, errors.Newf("invalid sealing key length %d, want %d", len(key), keySize).
			Component("sealing").
			Category(errors.CategorySealing).
			Context("path", keyPath).
			Build()
	}
	return key, nil
}

// GenerateKey creates a new random 256-bit sealing key and writes it
// hex-encoded to keyPath with secure permissions.
func GenerateKey(keyPath string) ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, errors.New(fmt.Errorf("generating sealing key: %w", err)).
			Component("sealing").
			Category(errors.CategorySealing).
			Build()
	}

	if dir := filepath.Dir(keyPath); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, errors.New(fmt.Errorf("creating key directory: %w", err)).
				Component("sealing").
				Category(errors.CategoryFileIO).
				Context("path", keyPath).
				Build()
		}
	}

	keyHex := hex.EncodeToString(key)
	if err := os.WriteFile(keyPath, []byte(keyHex), 0o600); err != nil {
		return nil, errors.New(fmt.Errorf("writing sealing key file: %w", err)).
			Component("sealing").
			Category(errors.CategoryFileIO).
			Context("path", keyPath).
			Build()
	}
	return key, nil
}
