// Package crypto implements the optional per-chunk authenticated
// encryption layer: Argon2id password derivation and XChaCha20-Poly1305
// sealing keyed to the transfer's file ID.
package crypto

import (
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// ErrAuth is returned when a chunk fails authentication on open. It aborts
// the decode; a wrong password and a tampered stream are indistinguishable
// here.
var ErrAuth = errors.New("authentication failed")

// Overhead is the growth of a sealed chunk: the 16-byte Poly1305 tag.
const Overhead = chacha20poly1305.Overhead

// saltContext is mixed with the file ID to derive the Argon2id salt. It is
// part of format version 2; changing it is a breaking revision.
const saltContext = "vtape/argon2id/v2"

// Argon2id parameters. 64 MiB / 1 pass / 4 lanes.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	keyLen       = 32
)

// SaltFor derives the Argon2id salt from the file ID, so the salt is
// recoverable from any packet of the stream.
func SaltFor(fileID []byte) []byte {
	h := sha256.New()
	h.Write([]byte(saltContext))
	h.Write(fileID)
	return h.Sum(nil)[:16]
}

// DeriveKey stretches a password into a 32-byte key bound to the file ID.
// The same password and file ID always produce the same key.
func DeriveKey(password string, fileID []byte) []byte {
	return argon2.IDKey([]byte(password), SaltFor(fileID), argonTime, argonMemory, argonThreads, keyLen)
}

// Sealer encrypts and decrypts chunks. Nonces are derived from the chunk
// index so sealing is deterministic per (password, file ID, chunk); the
// file ID doubles as associated data, binding every chunk to its transfer.
type Sealer struct {
	aead   cipher.AEAD
	fileID []byte
}

// NewSealer derives the key and prepares the AEAD.
func NewSealer(password string, fileID []byte) (*Sealer, error) {
	aead, err := chacha20poly1305.NewX(DeriveKey(password, fileID))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize AEAD: %w", err)
	}
	id := make([]byte, len(fileID))
	copy(id, fileID)
	return &Sealer{aead: aead, fileID: id}, nil
}

// nonceFor builds the 24-byte XChaCha20 nonce: file ID followed by the
// big-endian chunk index, zero padded.
func (s *Sealer) nonceFor(chunkIndex uint32) []byte {
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	copy(nonce, s.fileID)
	binary.BigEndian.PutUint32(nonce[len(s.fileID):], chunkIndex)
	return nonce
}

// SealChunk encrypts plaintext for the given chunk index. The returned
// slice is plaintext plus the authentication tag.
func (s *Sealer) SealChunk(chunkIndex uint32, plaintext []byte) []byte {
	return s.aead.Seal(nil, s.nonceFor(chunkIndex), plaintext, s.fileID)
}

// OpenChunk decrypts and authenticates a sealed chunk. Any tag mismatch is
// reported as ErrAuth.
func (s *Sealer) OpenChunk(chunkIndex uint32, ciphertext []byte) ([]byte, error) {
	plaintext, err := s.aead.Open(nil, s.nonceFor(chunkIndex), ciphertext, s.fileID)
	if err != nil {
		return nil, fmt.Errorf("chunk %d: %w", chunkIndex, ErrAuth)
	}
	return plaintext, nil
}
