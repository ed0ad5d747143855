// Package statecrypto seals the durable session mirror at rest so a bearer
// token never sits on disk in plaintext.
package statecrypto

import (
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeyLen is the size of the local sealing key.
const KeyLen = chacha20poly1305.KeySize

// Rand returns n cryptographically secure random bytes.
func Rand(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// NewKey generates a fresh sealing key. The key lives beside the state file;
// losing it only forces a new login.
func NewKey() ([]byte, error) { return Rand(KeyLen) }

// Seal encrypts plaintext with XChaCha20-Poly1305 under key, binding the
// ciphertext to the state profile name via AAD. Output is nonce||ciphertext.
func Seal(key []byte, profile string, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce, err := Rand(chacha20poly1305.NonceSizeX)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	out = append(out, aead.Seal(nil, nonce, plaintext, []byte(profile))...)
	return out, nil
}

// Open decrypts a sealed state blob produced by Seal with the same key and
// profile name.
func Open(key []byte, profile string, sealed []byte) ([]byte, error) {
	if len(sealed) < chacha20poly1305.NonceSizeX {
		return nil, errors.New("sealed state too short")
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := sealed[:chacha20poly1305.NonceSizeX]
	ct := sealed[chacha20poly1305.NonceSizeX:]
	return aead.Open(nil, nonce, ct, []byte(profile))
}
