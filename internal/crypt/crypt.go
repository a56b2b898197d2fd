// Package crypt provides the symmetric cipher used by the password vault.
// Keys are arbitrary strings expanded with HKDF-SHA256; payloads are sealed
// with AES-256-GCM and exchanged as base64 text.
package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	saltSize = 16
	keySize  = 32

	sealInfo     = "gnoixus/seal"
	verifierInfo = "gnoixus/verifier"
)

// newAEAD expands secret with salt into an AES-256-GCM instance.
func newAEAD(secret, salt []byte, info string) (cipher.AEAD, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create AEAD: %w", err)
	}
	return aead, nil
}

// Encrypt seals plaintext under key. Every call uses a fresh salt and nonce,
// so equal inputs produce different ciphertexts.
func Encrypt(plaintext, key string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	aead, err := newAEAD([]byte(key), salt, sealInfo)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	// result = salt || nonce || ciphertext
	out := make([]byte, 0, saltSize+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens a value produced by Encrypt. Malformed input or a wrong key
// yields an empty string instead of an error; callers treat "" as a failed
// decryption.
func Decrypt(ciphertext, key string) string {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil || len(raw) < saltSize {
		return ""
	}
	aead, err := newAEAD([]byte(key), raw[:saltSize], sealInfo)
	if err != nil {
		return ""
	}
	rest := raw[saltSize:]
	if len(rest) < aead.NonceSize() {
		return ""
	}
	plain, err := aead.Open(nil, rest[:aead.NonceSize()], rest[aead.NonceSize():], nil)
	if err != nil {
		return ""
	}
	return string(plain)
}

// Verifier returns the value stored to check a master key. It is
// deterministic in (key, salt): the salt is sealed under a key expanded from
// the candidate with a nonce derived from both, so the same candidate always
// reproduces the same string and the stored value never contains the key.
func Verifier(key, salt string) string {
	aead, err := newAEAD([]byte(key), []byte(salt), verifierInfo)
	if err != nil {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(salt))
	mac.Write([]byte(key))
	nonce := mac.Sum(nil)[:aead.NonceSize()]

	sealed := aead.Seal(nil, nonce, []byte(salt), nil)
	return base64.StdEncoding.EncodeToString(sealed)
}
