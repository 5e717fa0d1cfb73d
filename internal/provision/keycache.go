/*
 * This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0.
 * If a copy of the MPL was not distributed with this file, You can obtain one at
 * https://mozilla.org/MPL/2.0/.
 */

package provision

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"

	"github.com/skylable/aes256filter/internal/core"
	xcrypto "github.com/skylable/aes256filter/internal/crypto"
)

// cacheWrapKDF selects which KDF wraps the on-disk key cache file when
// WithKeyCacheEncryption is set. This governs cache-file sealing only;
// it has no bearing on the wire key derivation in internal/kdf.
type cacheWrapKDF int

const (
	cacheWrapNone cacheWrapKDF = iota
	cacheWrapArgon2
	cacheWrapPBKDF2
)

const (
	wrapSaltSize  = 16
	wrapNonceSize = 12

	pbkdf2Iterations = 600000 // OWASP 2023 minimum for PBKDF2-HMAC-SHA256

	argon2Time    = 3
	argon2Memory  = 64 * 1024 // KiB
	argon2Threads = 4
)

func keyFilePath(cfgdir string) string    { return filepath.Join(cfgdir, "key") }
func custFPFilePath(cfgdir string) string { return filepath.Join(cfgdir, "custfp") }

// readKeyCache reads the master key cached at path, unsealing it first if
// c requests key-cache encryption.
func readKeyCache(c *config, path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if c.cacheWrap == cacheWrapNone {
		if len(raw) != core.KeySize {
			return nil, fmt.Errorf("provision: corrupt key cache %s (%d bytes)", path, len(raw))
		}
		return raw, nil
	}
	return unsealKeyCache(c, raw)
}

// writeKeyCache persists key to path (mode 0600), sealing it first if c
// requests key-cache encryption.
func writeKeyCache(c *config, path string, key []byte) error {
	out := key
	if c.cacheWrap != cacheWrapNone {
		sealed, err := sealKeyCache(c, key)
		if err != nil {
			return err
		}
		out = sealed
	}
	return os.WriteFile(path, out, 0o600)
}

// wrapSubkeys derives the AEAD key from the configured cache passphrase and
// salt: the selected KDF produces a wrapping secret, which HKDF expands
// (salted with the same salt, under a fixed context label) into the AES-256
// key. Each seal uses a fresh random salt, so the same passphrase never
// produces the same AES key across two different cache files.
func wrapSubkeys(c *config, salt []byte) ([]byte, error) {
	var wrapSecret []byte
	switch c.cacheWrap {
	case cacheWrapArgon2:
		wrapSecret = argon2.IDKey(c.cachePassphrase, salt, argon2Time, argon2Memory, argon2Threads, 32)
	case cacheWrapPBKDF2:
		wrapSecret = pbkdf2.Key(c.cachePassphrase, salt, pbkdf2Iterations, 32, sha256.New)
	default:
		return nil, fmt.Errorf("provision: no key-cache wrap KDF configured")
	}

	aesKey := make([]byte, 32)
	kdf := hkdf.New(sha256.New, wrapSecret, salt, []byte("aes256filter key-cache wrap"))
	if _, err := io.ReadFull(kdf, aesKey); err != nil {
		return nil, xcrypto.WrapError("expand key-cache wrap secret", err)
	}
	return aesKey, nil
}

// sealKeyCache encrypts key under a passphrase-derived AES-256-GCM key,
// prefixing the salt and nonce the reader needs to reverse the wrap.
func sealKeyCache(c *config, key []byte) ([]byte, error) {
	salt := make([]byte, wrapSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, xcrypto.WrapError("generate key-cache wrap salt", err)
	}

	aesKey, err := wrapSubkeys(c, salt)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, xcrypto.WrapError("init key-cache wrap cipher", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, wrapNonceSize)
	if err != nil {
		return nil, xcrypto.WrapError("init key-cache wrap AEAD", err)
	}

	nonce := make([]byte, wrapNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, xcrypto.WrapError("generate key-cache wrap nonce", err)
	}

	sealed := gcm.Seal(nil, nonce, key, salt)

	out := make([]byte, 0, len(salt)+len(nonce)+len(sealed))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

// unsealKeyCache reverses sealKeyCache. A failure here (wrong passphrase,
// corrupt file, or a plain unsealed cache read with wrapping configured)
// is treated the same as any other unreadable cache: the caller falls
// back to re-deriving the key from a password prompt.
func unsealKeyCache(c *config, raw []byte) ([]byte, error) {
	if len(raw) < wrapSaltSize+wrapNonceSize {
		return nil, fmt.Errorf("provision: key cache too short to be sealed (%d bytes)", len(raw))
	}
	salt := raw[:wrapSaltSize]
	nonce := raw[wrapSaltSize : wrapSaltSize+wrapNonceSize]
	sealed := raw[wrapSaltSize+wrapNonceSize:]

	aesKey, err := wrapSubkeys(c, salt)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, xcrypto.WrapError("init key-cache wrap cipher", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, wrapNonceSize)
	if err != nil {
		return nil, xcrypto.WrapError("init key-cache wrap AEAD", err)
	}

	key, err := gcm.Open(nil, nonce, sealed, salt)
	if err != nil {
		return nil, xcrypto.WrapError("unseal key cache", err)
	}
	if len(key) != core.KeySize {
		return nil, fmt.Errorf("provision: unsealed key has wrong length %d", len(key))
	}
	return key, nil
}
