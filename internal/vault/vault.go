// Package vault seals website credentials so the store never holds
// plaintext passwords.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// saltContext namespaces key derivation so a passphrase reused elsewhere
// derives a different key here.
const saltContext = "skopos.vault.v1"

// Vault encrypts and decrypts credential values with AES-256-GCM using a
// passphrase-derived key. Ciphertexts are bound to the host they belong to,
// so a value copied between rows fails authentication on decrypt.
type Vault struct {
	key [32]byte
}

// New derives the AES-256 key from the passphrase via Argon2id. The salt is
// deterministic, so the same passphrase opens the same vault across restarts.
func New(passphrase string) *Vault {
	salt := sha256.Sum256([]byte(saltContext + passphrase))
	key := argon2.IDKey([]byte(passphrase), salt[:16], 1, 64*1024, 4, 32)

	v := &Vault{}
	copy(v.key[:], key)
	return v
}

func (v *Vault) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(v.key[:])
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// Encrypt seals plaintext for host with a random nonce.
func (v *Vault) Encrypt(plaintext []byte, host string) (ciphertext, nonce []byte, err error) {
	gcm, err := v.aead()
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext = gcm.Seal(nil, nonce, plaintext, []byte(host))
	return ciphertext, nonce, nil
}

// Decrypt opens a value sealed by Encrypt. The host must match the one the
// value was sealed for.
func (v *Vault) Decrypt(ciphertext, nonce []byte, host string) ([]byte, error) {
	gcm, err := v.aead()
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, []byte(host))
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}

	return plaintext, nil
}
