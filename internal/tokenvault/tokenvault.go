// Package tokenvault encrypts the bearer token at rest under a key derived from
// the local secret.
//
// The stored blob is URL-safe base64 text over the following layout:
//
//	[Salt: 0 or 16 bytes] [Version: 1 byte] [Nonce: 24 bytes] [Ciphertext+Tag: N+16 bytes]
//
// The salt is present for salted key derivation profiles only. The version byte
// identifies the derivation profile and is authenticated as additional data, so
// a blob written under one profile never decrypts under another.
package tokenvault

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/florianilch/devbadge/internal/keyderive"
)

// ErrInvalidToken is returned by Decrypt whenever the blob cannot be authenticated:
// wrong password, tampered or truncated data, or malformed encoding.
var ErrInvalidToken = errors.New("invalid token or password")

// ErrEmptyPassword is returned when encrypting or decrypting with an empty password.
var ErrEmptyPassword = errors.New("password cannot be empty")

// blob versions, one per key derivation profile
var versions = map[keyderive.Profile]byte{
	keyderive.ProfileLegacy: 0x01,
	keyderive.ProfilePBKDF2: 0x02,
	keyderive.ProfileScrypt: 0x03,
}

// sealedOverhead is the per-blob overhead excluding the salt.
const sealedOverhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

var encoding = base64.URLEncoding

// Vault encrypts and decrypts tokens with XChaCha20-Poly1305.
type Vault struct {
	deriver keyderive.Deriver
	version byte
	random  io.Reader
}

// New creates a Vault deriving keys with d.
func New(d keyderive.Deriver) (*Vault, error) {
	if d == nil {
		return nil, fmt.Errorf("missing key deriver")
	}
	version, ok := versions[d.Profile()]
	if !ok {
		return nil, fmt.Errorf("unsupported key derivation profile: %s", d.Profile())
	}
	return &Vault{
		deriver: d,
		version: version,
		random:  rand.Reader,
	}, nil
}

// Encrypt derives a key from password (with a fresh salt for salted profiles)
// and returns the printable encrypted blob.
func (v *Vault) Encrypt(plaintext, password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, v.deriver.SaltSize())
	if _, err := io.ReadFull(v.random, salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key, err := v.deriver.DeriveKey(password, salt)
	if err != nil {
		return "", fmt.Errorf("deriving key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(v.random, nonce[:]); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	headerLen := len(salt) + 1 + len(nonce)
	out := make([]byte, headerLen, headerLen+len(plaintext)+aead.Overhead())
	copy(out, salt)
	out[len(salt)] = v.version
	copy(out[len(salt)+1:], nonce[:])

	out = aead.Seal(out, nonce[:], []byte(plaintext), []byte{v.version})
	return encoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. Every failure is reported as ErrInvalidToken and no
// plaintext is returned alongside an error.
func (v *Vault) Decrypt(blob, password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	raw, err := encoding.Strict().DecodeString(blob)
	if err != nil {
		return "", fmt.Errorf("%w: malformed encoding", ErrInvalidToken)
	}

	saltSize := v.deriver.SaltSize()
	if len(raw) < saltSize+sealedOverhead {
		return "", fmt.Errorf("%w: blob is %d bytes, minimum is %d", ErrInvalidToken, len(raw), saltSize+sealedOverhead)
	}

	salt := raw[:saltSize]
	sealed := raw[saltSize:]

	version := sealed[0]
	if version != v.version {
		return "", fmt.Errorf("%w: blob version %d does not match profile %s", ErrInvalidToken, version, v.deriver.Profile())
	}

	key, err := v.deriver.DeriveKey(password, salt)
	if err != nil {
		return "", fmt.Errorf("%w: deriving key", ErrInvalidToken)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", fmt.Errorf("%w: creating cipher", ErrInvalidToken)
	}

	nonce := sealed[1 : 1+chacha20poly1305.NonceSizeX]
	ciphertext := sealed[1+chacha20poly1305.NonceSizeX:]

	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte{version})
	if err != nil {
		return "", ErrInvalidToken
	}

	return string(plaintext), nil
}
