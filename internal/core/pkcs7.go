/*
 * This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0.
 * If a copy of the MPL was not distributed with this file, You can obtain one at
 * https://mozilla.org/MPL/2.0/.
 */

package core

import xcrypto "github.com/skylable/aes256filter/internal/crypto"

// pkcs7Pad appends PKCS#7 padding to a plaintext block so its length is a
// multiple of cipherBlock. A plaintext already aligned to the cipher block
// size still receives a full padding block, matching the finalization
// behavior of a standard CBC cipher's own padding (spec.md §4.5.3).
func pkcs7Pad(dst []byte, plaintext []byte) int {
	padLen := cipherBlock - len(plaintext)%cipherBlock
	n := copy(dst, plaintext)
	for i := 0; i < padLen; i++ {
		dst[n+i] = byte(padLen)
	}
	return n + padLen
}

// pkcs7Unpad validates and strips PKCS#7 padding in place, returning the
// plaintext length. It reports an error on any malformed padding; the
// caller must treat that as AuthenticationFailure and emit no plaintext.
func pkcs7Unpad(data []byte) (int, error) {
	n := len(data)
	if n == 0 || n%cipherBlock != 0 {
		return 0, errBadPadding
	}
	padLen := int(data[n-1])
	if padLen == 0 || padLen > cipherBlock || padLen > n {
		return 0, errBadPadding
	}
	// Validate every padding byte in constant time: real corruption or a
	// tamper attempt should not be distinguishable by how far the check
	// got before failing.
	mismatch := byte(0)
	for i := n - padLen; i < n; i++ {
		mismatch |= data[i] ^ byte(padLen)
	}
	if mismatch != 0 {
		return 0, errBadPadding
	}
	return n - padLen, nil
}

var errBadPadding = xcrypto.ErrAuthenticationFailure

// constantTimeEqual reports whether a and b are equal, examining every
// byte regardless of where a mismatch first occurs (spec.md §4.5.4,
// testable property 6).
func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}
