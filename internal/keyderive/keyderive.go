// Package keyderive turns an operator password or generated passphrase into a
// fixed-length symmetric key.
//
// Three profiles are supported:
//   - legacy: password bytes truncated or zero-padded to KeySize; no salt, no iterations.
//     Deterministic and fast, offers little resistance to brute force. Kept for
//     compatibility with installations that predate salted derivation.
//   - pbkdf2: PBKDF2-HMAC-SHA256 over a random per-token salt (default).
//   - scrypt: memory-hard scrypt over a random per-token salt.
package keyderive

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/scrypt"
)

// KeySize is the length in bytes of every derived key.
const KeySize = 32

// SaltSize is the length in bytes of the random salt used by salted profiles.
const SaltSize = 16

// MinPBKDF2Iterations is the lowest iteration count accepted for the pbkdf2 profile.
const MinPBKDF2Iterations = 100_000

// scrypt cost parameters (N=2^15, r=8, p=1).
const (
	scryptN = 32768
	scryptR = 8
	scryptP = 1
)

// Profile names a key derivation policy.
type Profile string

const (
	ProfileLegacy Profile = "legacy"
	ProfilePBKDF2 Profile = "pbkdf2"
	ProfileScrypt Profile = "scrypt"
)

// Deriver derives KeySize-byte keys from a password.
type Deriver interface {
	// Profile reports which policy the deriver implements.
	Profile() Profile

	// SaltSize is the number of salt bytes DeriveKey expects. Zero means unsalted.
	SaltSize() int

	// DeriveKey returns a KeySize-byte key. salt must be SaltSize bytes long.
	DeriveKey(password string, salt []byte) ([]byte, error)
}

// New returns the Deriver for profile. iterations is only used by the pbkdf2
// profile; zero selects MinPBKDF2Iterations.
func New(profile Profile, iterations int) (Deriver, error) {
	switch profile {
	case ProfileLegacy:
		return Legacy{}, nil
	case ProfilePBKDF2:
		if iterations == 0 {
			iterations = MinPBKDF2Iterations
		}
		if iterations < MinPBKDF2Iterations {
			return nil, fmt.Errorf("pbkdf2 iterations %d below minimum %d", iterations, MinPBKDF2Iterations)
		}
		return PBKDF2{Iterations: iterations}, nil
	case ProfileScrypt:
		return Scrypt{}, nil
	default:
		return nil, fmt.Errorf("unsupported key derivation profile: %s", profile)
	}
}

// Legacy pads or truncates the password to KeySize bytes.
type Legacy struct{}

var _ Deriver = Legacy{}

func (Legacy) Profile() Profile { return ProfileLegacy }

func (Legacy) SaltSize() int { return 0 }

func (Legacy) DeriveKey(password string, salt []byte) ([]byte, error) {
	if len(salt) != 0 {
		return nil, fmt.Errorf("legacy profile takes no salt, got %d bytes", len(salt))
	}
	key := make([]byte, KeySize)
	copy(key, password)
	return key, nil
}

// PBKDF2 derives keys with PBKDF2-HMAC-SHA256.
type PBKDF2 struct {
	Iterations int
}

var _ Deriver = PBKDF2{}

func (PBKDF2) Profile() Profile { return ProfilePBKDF2 }

func (PBKDF2) SaltSize() int { return SaltSize }

func (p PBKDF2) DeriveKey(password string, salt []byte) ([]byte, error) {
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("pbkdf2 salt is %d bytes, expected %d", len(salt), SaltSize)
	}
	return pbkdf2.Key([]byte(password), salt, p.Iterations, KeySize, sha256.New), nil
}

// Scrypt derives keys with scrypt.
type Scrypt struct{}

var _ Deriver = Scrypt{}

func (Scrypt) Profile() Profile { return ProfileScrypt }

func (Scrypt) SaltSize() int { return SaltSize }

func (Scrypt) DeriveKey(password string, salt []byte) ([]byte, error) {
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("scrypt salt is %d bytes, expected %d", len(salt), SaltSize)
	}
	return scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, KeySize)
}
