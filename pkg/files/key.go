package files

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

// scrypt cost parameters for passphrase-derived master keys.
const (
	ScryptN = 1 << 15
	ScryptR = 8
	ScryptP = 1

	// MinSaltSize is the shortest salt accepted by DeriveKey.
	MinSaltSize = 16
)

// ParseKey decodes a hex-encoded master key.
func ParseKey(s string) (Key, error) {
	var k Key
	raw, err := hex.DecodeString(s)
	if err != nil {
		return k, fmt.Errorf("invalid master key: %w", err)
	}
	defer clear(raw)
	if len(raw) != KeySize {
		return k, fmt.Errorf("invalid master key: want %d bytes, got %d", KeySize, len(raw))
	}
	copy(k[:], raw)
	return k, nil
}

// DeriveKey derives a master key from a passphrase with scrypt.
func DeriveKey(passphrase, salt []byte) (Key, error) {
	var k Key
	if len(passphrase) == 0 {
		return k, fmt.Errorf("passphrase is empty")
	}
	if len(salt) < MinSaltSize {
		return k, fmt.Errorf("salt must be at least %d bytes, got %d", MinSaltSize, len(salt))
	}
	raw, err := scrypt.Key(passphrase, salt, ScryptN, ScryptR, ScryptP, KeySize)
	if err != nil {
		return k, fmt.Errorf("scrypt key derivation failed: %w", err)
	}
	copy(k[:], raw)
	clear(raw)
	return k, nil
}
