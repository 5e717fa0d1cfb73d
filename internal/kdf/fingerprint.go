/*
 * This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0.
 * If a copy of the MPL was not distributed with this file, You can obtain one at
 * https://mozilla.org/MPL/2.0/.
 */

package kdf

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/skylable/aes256filter/internal/core"
	xcrypto "github.com/skylable/aes256filter/internal/crypto"
	"github.com/skylable/aes256filter/secure"
)

// CreateFingerprint computes a new fingerprint binding masterKey to a
// volume, per spec.md §4.3: a fresh 16-byte fp_salt (distinct from the
// volume salt), hex(sha256(masterKey)) re-derived through the KDF with
// that salt, and fp_salt || digest as the 80-byte result.
func CreateFingerprint(masterKey []byte) ([]byte, error) {
	if len(masterKey) != core.KeySize {
		return nil, fmt.Errorf("kdf: invalid master key length %d", len(masterKey))
	}

	fpSalt := make([]byte, core.SaltSize)
	if _, err := rand.Read(fpSalt); err != nil {
		return nil, xcrypto.WrapError("generate fingerprint salt", err)
	}

	digest, err := deriveFingerprintDigest(masterKey, fpSalt)
	if err != nil {
		return nil, err
	}

	fp := make([]byte, core.FingerprintSize)
	copy(fp, fpSalt)
	copy(fp[core.SaltSize:], digest)
	return fp, nil
}

// VerifyFingerprint recomputes the fingerprint digest for masterKey using
// the salt embedded in fp and compares it against fp's stored digest in
// constant time, per spec.md §4.3. It fails with ErrInvalidPassword on a
// digest mismatch, and with ErrConfiguration when fp is not
// core.FingerprintSize bytes long.
func VerifyFingerprint(fp, masterKey []byte) error {
	if len(fp) != core.FingerprintSize {
		return xcrypto.WrapError("verify fingerprint", xcrypto.ErrConfiguration)
	}
	if len(masterKey) != core.KeySize {
		return fmt.Errorf("kdf: invalid master key length %d", len(masterKey))
	}

	fpSalt := fp[:core.SaltSize]
	expected := fp[core.SaltSize:]

	digest, err := deriveFingerprintDigest(masterKey, fpSalt)
	if err != nil {
		return err
	}

	if !secure.SecureCompare(digest, expected) {
		return xcrypto.WrapError("verify fingerprint", xcrypto.ErrInvalidPassword)
	}
	return nil
}

// deriveFingerprintDigest is the operation shared by Create and Verify:
// sha256(masterKey) converted to ASCII hex, then re-derived through the
// same KDF used for the master key itself. Routing the fingerprint check
// through a full KDF invocation is intentional — it makes verifying a
// leaked fingerprint cost as much as deriving the key from scratch.
func deriveFingerprintDigest(masterKey, fpSalt []byte) ([]byte, error) {
	sum := sha256.Sum256(masterKey)
	hexSum := []byte(hex.EncodeToString(sum[:]))
	return Derive(hexSum, fpSalt)
}
