// Package sealing persists model bytes and metadata as encrypted containers
// so they survive restarts without being readable outside the trust boundary.
package sealing

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shroudml/shroud-go/internal/errors"
	"github.com/shroudml/shroud-go/internal/model"
)

// Envelope is the sealed content: the raw model bytes plus everything
// needed to re-insert the model after a restart.
type Envelope struct {
	ID          string             `json:"id"`
	Name        string             `json:"name,omitempty"`
	Bytes       []byte             `json:"bytes"`
	InputFacts  []model.TensorFact `json:"input_facts,omitempty"`
	OutputFacts []model.TensorFact `json:"output_facts,omitempty"`
	Optimize    bool               `json:"optimize"`
	OwnerID     *int               `json:"owner_id,omitempty"`
}

// Sealer seals and unseals model envelopes. The production implementation
// is FileSealer; tests substitute their own.
type Sealer interface {
	Seal(path string, env *Envelope) error
	Unseal(path string) (*Envelope, error)
}

// FileSealer seals envelopes to individual files with AES-256-GCM.
type FileSealer struct {
	key []byte
}

// NewFileSealer loads the sealing key from keyPath, generating a new
// 256-bit key with secure permissions if the file does not exist.
func NewFileSealer(keyPath string) (*FileSealer, error) {
	key, err := loadOrCreateKey(keyPath)
	if err != nil {
		return nil, err
	}
	return &FileSealer{key: key}, nil
}

// Seal encrypts the envelope and writes it to path.
func (s *FileSealer) Seal(path string, env *Envelope) error {
	plaintext, err := json.Marshal(env)
	if err != nil {
		return errors.New(fmt.Errorf("encoding sealed envelope: %w", err)).
			Component("sealing").
			Category(errors.CategorySealing).
			ModelContext(env.ID, env.OwnerID).
			Build()
	}

	ciphertext, err := encryptData(plaintext, s.key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.New(fmt.Errorf("creating storage root: %w", err)).
			Component("sealing").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	if err := os.WriteFile(path, ciphertext, 0o600); err != nil {
		return errors.New(fmt.Errorf("writing sealed file: %w", err)).
			Component("sealing").
			Category(errors.CategorySealing).
			Context("path", path).
			Build()
	}
	return nil
}

// Unseal reads and decrypts a sealed file. It fails on corruption or
// decryption failure.
func (s *FileSealer) Unseal(path string) (*Envelope, error) {
	ciphertext, err := os.ReadFile(path) //nolint:gosec // G304: path is under the configured storage root
	if err != nil {
		return nil, errors.New(fmt.Errorf("reading sealed file: %w", err)).
			Component("sealing").
			Category(errors.CategorySealing).
			Context("path", path).
			Build()
	}

	plaintext, err := decryptData(ciphertext, s.key)
	if err != nil {
		return nil, err
	}

	var env Envelope
	if err := json.Unmarshal(plaintext, &env); err != nil {
		return nil, errors.New(fmt.Errorf("decoding sealed envelope: %w", err)).
			Component("sealing").
			Category(errors.CategorySealing).
			Context("path", path).
			Build()
	}
	return &env, nil
}

// encryptData encrypts data using AES-256-GCM, prefixing the random nonce
// to the ciphertext.
func encryptData(data, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, sealingError("failed to create cipher", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, sealingError("failed to create GCM", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, sealingError("failed to generate nonce", err)
	}

	return gcm.Seal(nonce, nonce, data, nil), nil
}

// decryptData decrypts data produced by encryptData.
func decryptData(encryptedData, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, sealingError("failed to create cipher", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, sealingError("failed to create GCM", err)
	}

	if len(encryptedData) < gcm.NonceSize() {
		return nil, sealingError("sealed data too short", nil)
	}

	nonce := encryptedData[:gcm.NonceSize()]
	ciphertext := encryptedData[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, sealingError("failed to decrypt sealed data", err)
	}

	return plaintext, nil
}

func sealingError(msg string, err error) error {
	if err != nil {
		return errors.New(fmt.Errorf("%s: %w", msg, err)).
			Component("sealing").
			Category(errors.CategorySealing).
			Build()
	}
	return errors.Newf("%s", msg).
		Component("sealing").
		Category(errors.CategorySealing).
		Build()
}
