package files

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/hkdf"
)

// MACSize is the length of the keyed BLAKE3 tag appended to every header.
const MACSize = 32

// HKDF info labels. Changing them changes every derived key.
const (
	dataKeyInfo = "cipherfs v1 data key"
	macKeyInfo  = "cipherfs v1 header mac key"
)

// fileKeys is the per-file key material derived from the master key.
type fileKeys struct {
	data [32]byte
	mac  [32]byte
}

// deriveFileKeys expands the master key into per-file data and MAC keys.
// The identifier is part of the HKDF info so every file gets distinct keys.
func deriveFileKeys(master *Key, id ID) (*fileKeys, error) {
	keys := &fileKeys{}
	if err := expand(master, id, dataKeyInfo, keys.data[:]); err != nil {
		return nil, err
	}
	if err := expand(master, id, macKeyInfo, keys.mac[:]); err != nil {
		keys.wipe()
		return nil, err
	}
	return keys, nil
}

func expand(master *Key, id ID, label string, out []byte) error {
	info := make([]byte, 0, len(label)+IDSize)
	info = append(info, label...)
	info = append(info, id[:]...)

	reader := hkdf.New(sha256.New, master[:], nil, info)
	if _, err := io.ReadFull(reader, out); err != nil {
		return fmt.Errorf("HKDF key derivation failed: %w", err)
	}
	return nil
}

func (k *fileKeys) wipe() {
	clear(k.data[:])
	clear(k.mac[:])
}

// headerMAC computes the keyed BLAKE3 tag over the identifier and the
// encoded header. Binding the identifier prevents swapping headers
// between files.
func headerMAC(key *[32]byte, id ID, encoded []byte) ([]byte, error) {
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		return nil, fmt.Errorf("BLAKE3 keyed hash initialization failed: %w", err)
	}
	_, _ = hasher.Write(id[:])
	_, _ = hasher.Write(encoded)
	return hasher.Sum(nil)[:MACSize], nil
}

func verifyMAC(expected, actual []byte) bool {
	return subtle.ConstantTimeCompare(expected, actual) == 1
}

// blockCipher seals and opens the content blocks of one file.
//
// Each block is stored as nonce || ciphertext || tag. The additional data
// binds the ciphertext to its file and block position.
type blockCipher struct {
	aead cipher.AEAD
	id   ID
}

func newBlockCipher(key *[32]byte, id ID, ivSize int) (*blockCipher, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM with %d byte nonce: %w", ivSize, err)
	}
	return &blockCipher{aead: aead, id: id}, nil
}

func (c *blockCipher) aad(n uint64) []byte {
	aad := make([]byte, IDSize+8)
	copy(aad, c.id[:])
	binary.BigEndian.PutUint64(aad[IDSize:], n)
	return aad
}

func (c *blockCipher) seal(n uint64, plaintext []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	out := make([]byte, nonceSize, nonceSize+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(out); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return c.aead.Seal(out, out[:nonceSize], plaintext, c.aad(n)), nil
}

func (c *blockCipher) open(n uint64, stored []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(stored) < nonceSize+c.aead.Overhead() {
		return nil, fmt.Errorf("block %d: short ciphertext (%d bytes): %w", n, len(stored), ErrCorrupted)
	}
	plaintext, err := c.aead.Open(nil, stored[:nonceSize], stored[nonceSize:], c.aad(n))
	if err != nil {
		return nil, fmt.Errorf("block %d: %w", n, ErrCorrupted)
	}
	return plaintext, nil
}
