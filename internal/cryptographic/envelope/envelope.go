// Package envelope seals message content for the wire. Each blob carries its
// own one-time key: base64(iv || key || ciphertext || tag), AES-256-GCM.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

const (
	KeySize   = 32
	NonceSize = 12
	TagSize   = 16
)

var ErrUndecryptable = errors.New("envelope: content cannot be decrypted")

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return aead, nil
}

// Seal encrypts plaintext under a fresh key and nonce.
func Seal(plaintext []byte) (string, error) {
	return seal(rand.Reader, plaintext)
}

func seal(random io.Reader, plaintext []byte) (string, error) {
	buf := make([]byte, NonceSize+KeySize, NonceSize+KeySize+len(plaintext)+TagSize)
	if _, err := io.ReadFull(random, buf); err != nil {
		return "", fmt.Errorf("rand.Read key material: %w", err)
	}
	nonce, key := buf[:NonceSize], buf[NonceSize:]

	aead, err := newGCM(key)
	if err != nil {
		return "", err
	}

	out := aead.Seal(buf, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal. Every failure, including malformed input, is ErrUndecryptable.
func Open(blob string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecryptable, err)
	}
	if len(raw) < NonceSize+KeySize+TagSize {
		return nil, fmt.Errorf("%w: blob too short", ErrUndecryptable)
	}

	nonce := raw[:NonceSize]
	key := raw[NonceSize : NonceSize+KeySize]
	ct := raw[NonceSize+KeySize:]

	aead, err := newGCM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecryptable, err)
	}
	plain, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecryptable, err)
	}
	return plain, nil
}
