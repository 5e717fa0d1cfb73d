/*
 * This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0.
 * If a copy of the MPL was not distributed with this file, You can obtain one at
 * https://mozilla.org/MPL/2.0/.
 */

package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"

	"github.com/skylable/aes256filter/secure"
)

// ChecksumWriter accumulates a SHA-256 digest over every byte written to it.
// A caller tees it alongside the real output writer so the plaintext
// recovered block-by-block by Session.Process is checksummed as it streams
// out, rather than reopening the finished file for a second whole-file pass.
type ChecksumWriter struct {
	h hash.Hash
}

// NewChecksumWriter returns a ChecksumWriter ready to accept Write calls.
func NewChecksumWriter() *ChecksumWriter {
	return &ChecksumWriter{h: sha256.New()}
}

// Write implements io.Writer. It never fails.
func (c *ChecksumWriter) Write(p []byte) (int, error) {
	return c.h.Write(p)
}

// Sum returns the SHA-256 digest of everything written so far.
func (c *ChecksumWriter) Sum() []byte {
	return c.h.Sum(nil)
}

// SumHex is Sum hex-encoded, for display or comparison against an
// operator-supplied expected checksum.
func (c *ChecksumWriter) SumHex() string {
	return hex.EncodeToString(c.Sum())
}

// Verify reports whether the accumulated digest matches a hex-encoded
// checksum, comparing in constant time the same way decryptBlock checks its
// MAC tag.
func (c *ChecksumWriter) Verify(hexSum string) (bool, error) {
	want, err := hex.DecodeString(hexSum)
	if err != nil {
		return false, fmt.Errorf("core: invalid hex checksum: %w", err)
	}
	return secure.SecureCompare(c.Sum(), want), nil
}
