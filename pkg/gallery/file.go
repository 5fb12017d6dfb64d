package gallery

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MrCodeEU/faceroll/pkg/logging"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

const (
	// FormatVersion is written to every gallery document.
	FormatVersion = 1
	// NonceSize is the size of the secretbox nonce
	NonceSize = 24
	// KeySize is the size of the encryption key
	KeySize = 32
	// SaltSize is the size of the per-file key derivation salt
	SaltSize = 16
)

// encryptedMagic prefixes encrypted gallery files so Load can tell them apart
// from plain JSON.
var encryptedMagic = []byte("FRG1")

// ErrEncryption is returned when encryption or decryption fails.
var ErrEncryption = errors.New("encryption error")

// document is the on-disk gallery layout.
type document struct {
	Version    int                  `json:"version"`
	Dimension  int                  `json:"dimension"`
	CreatedAt  time.Time            `json:"created_at"`
	Identities map[string][]float32 `json:"identities"`
}

// FileStore keeps the gallery in a single JSON document, optionally sealed
// with NaCl secretbox.
type FileStore struct {
	path              string
	encryptionEnabled bool
	passphrase        string
}

// NewFileStore creates a FileStore for path. When encryption is enabled the key
// is derived from passphrase, or from the machine identity if it is empty.
func NewFileStore(path string, encryptionEnabled bool, passphrase string) *FileStore {
	return &FileStore{
		path:              path,
		encryptionEnabled: encryptionEnabled,
		passphrase:        passphrase,
	}
}

// Path returns the gallery file location.
func (fs *FileStore) Path() string {
	return fs.path
}

// Save writes the gallery, replacing the previous file atomically.
func (fs *FileStore) Save(_ context.Context, g *Gallery) error {
	doc := document{
		Version:    FormatVersion,
		Dimension:  g.Dimension(),
		CreatedAt:  time.Now().UTC(),
		Identities: g.ToMap(),
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal gallery: %w", err)
	}

	if fs.encryptionEnabled {
		data, err = fs.encrypt(data)
		if err != nil {
			return fmt.Errorf("failed to encrypt gallery: %w", err)
		}
	}

	if dir := filepath.Dir(fs.path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create gallery directory: %w", err)
		}
	}

	tmp := fs.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write gallery: %w", err)
	}
	if err := os.Rename(tmp, fs.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write gallery: %w", err)
	}

	logging.Debugf("Saved %d identities to %s", g.Len(), fs.path)
	return nil
}

// Load reads the gallery. Encrypted files are detected by their header and
// opened regardless of the encryption setting.
func (fs *FileStore) Load(_ context.Context) (*Gallery, error) {
	data, err := os.ReadFile(fs.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoGallery
		}
		return nil, fmt.Errorf("failed to read gallery: %w", err)
	}

	if bytes.HasPrefix(data, encryptedMagic) {
		data, err = fs.decrypt(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt gallery: %w", err)
		}
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal gallery: %w", err)
	}
	if doc.Version > FormatVersion {
		return nil, fmt.Errorf("unsupported gallery version %d", doc.Version)
	}

	g, err := FromMap(doc.Identities)
	if err != nil {
		return nil, fmt.Errorf("invalid gallery %s: %w", fs.path, err)
	}

	logging.Debugf("Loaded %d identities from %s", g.Len(), fs.path)
	return g, nil
}

// Close is a no-op for file stores.
func (fs *FileStore) Close() error {
	return nil
}

// keyMaterial returns the secret the encryption key is derived from.
func (fs *FileStore) keyMaterial() []byte {
	if fs.passphrase != "" {
		return []byte(fs.passphrase)
	}
	return machineIdentity()
}

// machineIdentity combines machine specific values, tying the key to this
// host and user.
func machineIdentity() []byte {
	var identity strings.Builder

	if machineID, err := os.ReadFile("/etc/machine-id"); err == nil {
		identity.Write(bytes.TrimSpace(machineID))
	}
	if hostname, err := os.Hostname(); err == nil {
		identity.WriteString(hostname)
	}
	identity.WriteString(fmt.Sprintf("%d", os.Getuid()))
	identity.WriteString("faceroll-gallery-v1")

	return []byte(identity.String())
}

func deriveKey(material, salt []byte) (*[KeySize]byte, error) {
	raw, err := scrypt.Key(material, salt, 1<<15, 8, 1, KeySize)
	if err != nil {
		return nil, err
	}
	var key [KeySize]byte
	copy(key[:], raw)
	return &key, nil
}

// encrypt seals plaintext as magic | salt | nonce | box.
func (fs *FileStore) encrypt(plaintext []byte) ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	var nonce [NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}

	key, err := deriveKey(fs.keyMaterial(), salt)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(encryptedMagic)+SaltSize+NonceSize+len(plaintext)+secretbox.Overhead)
	out = append(out, encryptedMagic...)
	out = append(out, salt...)
	out = append(out, nonce[:]...)
	return secretbox.Seal(out, plaintext, &nonce, key), nil
}

func (fs *FileStore) decrypt(ciphertext []byte) ([]byte, error) {
	header := len(encryptedMagic) + SaltSize + NonceSize
	if len(ciphertext) < header+secretbox.Overhead {
		return nil, ErrEncryption
	}

	salt := ciphertext[len(encryptedMagic) : len(encryptedMagic)+SaltSize]
	var nonce [NonceSize]byte
	copy(nonce[:], ciphertext[len(encryptedMagic)+SaltSize:header])

	key, err := deriveKey(fs.keyMaterial(), salt)
	if err != nil {
		return nil, err
	}

	plaintext, ok := secretbox.Open(nil, ciphertext[header:], &nonce, key)
	if !ok {
		return nil, ErrEncryption
	}
	return plaintext, nil
}
