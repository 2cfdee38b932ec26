package settings

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/scrypt"
	"golang.org/x/text/unicode/norm"

	syncerrors "github.com/alexjbarnes/notesync/internal/errors"
)

const (
	// scryptN is the CPU/memory cost parameter for scrypt key derivation.
	scryptN = 32768

	// scryptR is the block size parameter for scrypt key derivation.
	scryptR = 8

	// scryptP is the parallelization parameter for scrypt key derivation.
	scryptP = 1

	// scryptKeyLen is the derived key length in bytes.
	scryptKeyLen = 32

	// saltLen is the random salt length prepended to each sealed blob.
	saltLen = 16
)

// SealToken encrypts a token under a passphrase-derived key. The
// passphrase is normalized to NFKC before derivation so the same
// passphrase typed on different systems derives the same key. The blob
// layout is [16-byte salt][12-byte nonce][ciphertext+GCM tag].
func SealToken(token, passphrase string) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}

	gcm, key, err := passphraseGCM(passphrase, salt)
	if err != nil {
		return nil, err
	}
	defer zeroKey(key)

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, []byte(token), nil)

	blob := make([]byte, 0, len(salt)+len(nonce)+len(ciphertext))
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = append(blob, ciphertext...)

	return blob, nil
}

// UnsealToken recovers a token sealed by SealToken. A failed GCM open
// means the passphrase is wrong or the blob was tampered with; both
// report ErrWrongPassphrase.
func UnsealToken(blob []byte, passphrase string) (string, error) {
	if len(blob) < saltLen {
		return "", fmt.Errorf("sealed token too short: %d bytes", len(blob))
	}

	salt := blob[:saltLen]

	gcm, key, err := passphraseGCM(passphrase, salt)
	if err != nil {
		return "", err
	}
	defer zeroKey(key)

	rest := blob[saltLen:]
	if len(rest) < gcm.NonceSize() {
		return "", fmt.Errorf("sealed token too short: %d bytes", len(blob))
	}

	nonce := rest[:gcm.NonceSize()]
	ciphertext := rest[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", syncerrors.ErrWrongPassphrase
	}

	return string(plaintext), nil
}

// passphraseGCM derives an AES-GCM cipher from a passphrase and salt.
// The caller zeroes the returned key after use.
func passphraseGCM(passphrase string, salt []byte) (cipher.AEAD, []byte, error) {
	passphrase = norm.NFKC.String(passphrase)

	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, nil, fmt.Errorf("deriving key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		zeroKey(key)
		return nil, nil, fmt.Errorf("creating AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		zeroKey(key)
		return nil, nil, fmt.Errorf("creating GCM: %w", err)
	}

	return gcm, key, nil
}

// zeroKey overwrites key material once the cipher is built, limiting
// the window during which raw key bytes sit in memory.
func zeroKey(key []byte) {
	for i := range key {
		key[i] = 0
	}
}
