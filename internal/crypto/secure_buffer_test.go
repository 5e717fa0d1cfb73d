/*
 * This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0.
 * If a copy of the MPL was not distributed with this file, You can obtain one at
 * https://mozilla.org/MPL/2.0/.
 */

package crypto_test

import (
	"bytes"
	"crypto/rand"
	"testing"

	xcrypto "github.com/skylable/aes256filter/internal/crypto"
)

func TestSecureBufferFromBytesCopiesData(t *testing.T) {
	key := make([]byte, 64)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generate key: %v", err)
	}

	buf, err := xcrypto.NewSecureBufferFromBytes(key)
	if err != nil {
		t.Fatalf("NewSecureBufferFromBytes: %v", err)
	}
	defer buf.Destroy()

	if !bytes.Equal(buf.Data(), key) {
		t.Fatal("SecureBuffer data does not match source")
	}

	// The buffer must hold its own copy, not alias the caller's slice.
	key[0] ^= 0xff
	if bytes.Equal(buf.Data(), key) {
		t.Fatal("SecureBuffer aliases the caller's slice instead of copying it")
	}
}

func TestSecureBufferDestroyZeroes(t *testing.T) {
	buf := xcrypto.NewSecureBuffer(32)
	copy(buf.Data(), bytes.Repeat([]byte{0x7}, 32))

	buf.Destroy()

	for i, b := range buf.Data() {
		if b != 0 {
			t.Fatalf("byte %d not zeroed after Destroy: got %d", i, b)
		}
	}
}

func TestSecureBufferDestroyIdempotent(t *testing.T) {
	buf := xcrypto.NewSecureBuffer(16)
	buf.Destroy()
	buf.Destroy()
}

func TestSecureBufferCopyFrom(t *testing.T) {
	buf := xcrypto.NewSecureBuffer(8)
	defer buf.Destroy()

	src := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	buf.CopyFrom(src)
	if !bytes.Equal(buf.Data(), src) {
		t.Fatal("CopyFrom did not copy all bytes")
	}
}
