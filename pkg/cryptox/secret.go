package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// MasterKeyEnv is read when no master key file has been configured.
const MasterKeyEnv = "SSO_MASTER_KEY"

// ErrCiphertextTooShort is returned when the input cannot hold a nonce.
var ErrCiphertextTooShort = errors.New("cryptox: ciphertext too short")

var (
	masterKeyMu   sync.Mutex
	masterKey     []byte
	masterKeyPath string
)

// SetMasterKeyPath configures the file the master key is loaded from. It must
// be called before the first encryption.
func SetMasterKeyPath(path string) {
	masterKeyMu.Lock()
	defer masterKeyMu.Unlock()

	masterKeyPath = path
	masterKey = nil
}

// LoadMasterKey eagerly loads the master key, creating the configured file
// when it does not exist yet.
func LoadMasterKey() error {
	_, err := getMasterKey()
	return err
}

// getMasterKey derives the AES-256 key from the configured file, the
// SSO_MASTER_KEY environment variable, or an ephemeral random value.
func getMasterKey() ([]byte, error) {
	masterKeyMu.Lock()
	defer masterKeyMu.Unlock()

	if masterKey != nil {
		return masterKey, nil
	}

	var material []byte
	switch {
	case masterKeyPath != "":
		data, err := loadOrGenerateMasterKey(masterKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load master key file: %w", err)
		}
		material = data
	case os.Getenv(MasterKeyEnv) != "":
		material = []byte(os.Getenv(MasterKeyEnv))
	default:
		// Secrets encrypted with an ephemeral key do not survive a restart.
		slog.Warn("no master key configured, using an ephemeral key")
		material = make([]byte, 32)
		if _, err := rand.Read(material); err != nil {
			return nil, fmt.Errorf("failed to generate ephemeral master key: %w", err)
		}
	}

	sum := sha256.Sum256(material)
	masterKey = sum[:]
	return masterKey, nil
}

func loadOrGenerateMasterKey(file string) ([]byte, error) {
	file = filepath.Clean(file)
	data, err := os.ReadFile(file)
	if err == nil {
		return data, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(file), 0o750); err != nil {
		return nil, err
	}
	buf := make([]byte, keyLength)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	data = []byte(base64.RawURLEncoding.EncodeToString(buf))
	if err := os.WriteFile(file, data, 0o600); err != nil {
		return nil, err
	}
	slog.Info("generated master key", "path", file)
	return data, nil
}

func newGCM() (cipher.AEAD, error) {
	key, err := getMasterKey()
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// EncryptSecret seals a key secret with AES-256-GCM. The output is
// [nonce][ciphertext][tag] so every call yields a different value.
func EncryptSecret(plaintext []byte) ([]byte, error) {
	gcm, err := newGCM()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// DecryptSecret opens data produced by EncryptSecret.
func DecryptSecret(data []byte) ([]byte, error) {
	gcm, err := newGCM()
	if err != nil {
		return nil, err
	}

	n := gcm.NonceSize()
	if len(data) < n {
		return nil, ErrCiphertextTooShort
	}

	plaintext, err := gcm.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}
