/*
 * This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0.
 * If a copy of the MPL was not distributed with this file, You can obtain one at
 * https://mozilla.org/MPL/2.0/.
 */

// Package kdf derives the filter's 64-byte master secret from a password
// and salt, and computes/verifies the key fingerprint that binds a derived
// key to a volume without ever transmitting the key.
//
// Grounded on gocryptfs's ScryptObject config-file key wrapping
// (original_source and the retrieved HorizonLiu-gocryptfs config file
// reference both wrap a master key with a scrypt-derived secret): scrypt
// is the ecosystem's deterministic, explicit-salt, memory-hard KDF, which
// is what spec.md §4.2's derive(password, salt) contract actually needs —
// the classic crypt()-style "cost/salt/hash all folded into one opaque
// string" shape is reproduced here by hand, since Go's scrypt returns raw
// key bytes rather than an encoded string the way libc's crypt() does.
package kdf

import (
	"crypto/sha512"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/scrypt"

	xcrypto "github.com/skylable/aes256filter/internal/crypto"
)

const (
	// costN is the scrypt CPU/memory cost parameter, chosen to match
	// spec.md's KDF_COST ≈ 2^14 exactly.
	costN = 1 << 14
	// costR and costP are scrypt's block-size and parallelization
	// parameters; 8 and 1 are the values scrypt's own author recommends
	// for interactive use and are what the wider Go ecosystem (gocryptfs
	// included) defaults to.
	costR = 8
	costP = 1

	rawKeyLen = 32
)

// DigestSize is the length of a derived key: the full SHA-512 digest of
// the KDF's printable output string.
const DigestSize = sha512.Size // 64

// Derive computes the expensive-KDF-plus-post-hash construction of
// spec.md §4.2: an scrypt invocation over (password, salt) encoded into a
// printable crypt()-style string carrying its cost parameters, then
// SHA-512 over the *entire* string — not just the raw scrypt output — so
// a caller can never accidentally use the embedded salt as key material.
//
// Derive is deterministic: the same (password, salt) always yields the
// same 64-byte digest, which is required for fingerprint verification
// (spec.md §4.3) to work at all.
func Derive(password, salt []byte) ([]byte, error) {
	if len(salt) == 0 {
		return nil, fmt.Errorf("kdf: empty salt")
	}

	raw, err := scrypt.Key(password, salt, costN, costR, costP, rawKeyLen)
	if err != nil {
		return nil, xcrypto.WrapError("scrypt derive", err)
	}

	encoded := fmt.Sprintf("$aes256$%d$%d$%d$%s$%s",
		costN, costR, costP,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(raw))

	digest := sha512.Sum512([]byte(encoded))
	if len(digest) != DigestSize {
		return nil, fmt.Errorf("kdf: unexpected digest size %d", len(digest))
	}
	out := make([]byte, DigestSize)
	copy(out, digest[:])
	return out, nil
}
