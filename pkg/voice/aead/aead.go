// Package aead wraps the authenticated-encryption primitive consumed by the
// RTP packetizer behind a narrow interface, so the packetizer never depends
// on a concrete crypto library directly.
package aead

import (
	"errors"

	"golang.org/x/crypto/nacl/secretbox"
)

// KeySize is the required symmetric key length in bytes.
const KeySize = 32

// NonceSize is the required nonce length in bytes.
const NonceSize = 24

// TagSize is the authentication tag length appended to every sealed
// message.
const TagSize = secretbox.Overhead

// ErrKeySize is returned when a key of the wrong length is supplied.
var ErrKeySize = errors.New("aead: key must be 32 bytes")

// ErrNonceSize is returned when a nonce of the wrong length is supplied.
var ErrNonceSize = errors.New("aead: nonce must be 24 bytes")

// ErrAuth is returned by Open when the ciphertext fails authentication.
var ErrAuth = errors.New("aead: authentication failed")

// Cipher seals and opens messages under a fixed negotiated suite. The
// engine negotiates exactly one suite (xsalsa20_poly1305) so Cipher has
// no mode parameter.
type Cipher interface {
	// Seal appends the ciphertext and authentication tag for plaintext,
	// under nonce and key, to dst and returns the extended slice.
	Seal(dst, plaintext, nonce, key []byte) ([]byte, error)
	// Open authenticates and decrypts ciphertext (which includes the
	// trailing tag) under nonce and key, appending the plaintext to dst.
	Open(dst, ciphertext, nonce, key []byte) ([]byte, error)
}

// SecretboxCipher implements Cipher using xsalsa20-poly1305
// (golang.org/x/crypto/nacl/secretbox), the suite named in the wire
// protocol as "xsalsa20_poly1305".
type SecretboxCipher struct{}

// New returns the negotiated Cipher implementation.
func New() Cipher { return SecretboxCipher{} }

func (SecretboxCipher) Seal(dst, plaintext, nonce, key []byte) ([]byte, error) {
	var n [NonceSize]byte
	var k [KeySize]byte
	if len(nonce) != NonceSize {
		return nil, ErrNonceSize
	}
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	copy(n[:], nonce)
	copy(k[:], key)
	return secretbox.Seal(dst, plaintext, &n, &k), nil
}

func (SecretboxCipher) Open(dst, ciphertext, nonce, key []byte) ([]byte, error) {
	var n [NonceSize]byte
	var k [KeySize]byte
	if len(nonce) != NonceSize {
		return nil, ErrNonceSize
	}
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	copy(n[:], nonce)
	copy(k[:], key)
	out, ok := secretbox.Open(dst, ciphertext, &n, &k)
	if !ok {
		return nil, ErrAuth
	}
	return out, nil
}
