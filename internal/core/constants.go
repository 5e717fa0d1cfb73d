/*
 * This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0.
 * If a copy of the MPL was not distributed with this file, You can obtain one at
 * https://mozilla.org/MPL/2.0/.
 */

// Package core implements the block-streaming AES-256-CBC/HMAC-SHA-512
// cipher engine: the per-session state machine that performs the filter's
// block-aligned encrypt or decrypt work.
package core

import "crypto/aes"

const (
	// BlockSize is the logical plaintext block size the filter operates on.
	BlockSize = 16384
	// IVSize is the length of the per-block initialization vector.
	IVSize = 16
	// MACSize is the truncated HMAC-SHA-512 tag length appended to every
	// wire block.
	MACSize = 32
	// SaltSize is the length of a volume salt.
	SaltSize = 16
	// KeySize is the length of the derived master key (64 bytes, split into
	// two 32-byte halves: KMac and KEnc).
	KeySize = 64
	// HalfKeySize is the length of each master key half.
	HalfKeySize = KeySize / 2
	// FingerprintSize is the length of a key fingerprint: a 16-byte salt
	// followed by a 64-byte digest.
	FingerprintSize = SaltSize + KeySize

	// cipherBlock is the AES block size used for CBC padding arithmetic.
	cipherBlock = aes.BlockSize

	// maxCiphertextSize is the largest possible ciphertext for one logical
	// block: BlockSize padded up to the next cipher block boundary, plus
	// one full padding block in the worst case (PKCS#7 always adds at
	// least one byte of padding, so a plaintext that is already a multiple
	// of the cipher block size gets a whole extra padding block).
	maxCiphertextSize = (BlockSize/cipherBlock + 1) * cipherBlock

	// wireBlockCapacity is the largest possible on-wire block: IV,
	// ciphertext, and MAC. Both the input and output staging buffers are
	// always allocated to this capacity regardless of mode; only the
	// ingestion threshold ("block_capacity" in the data model) differs
	// between upload and download.
	wireBlockCapacity = IVSize + maxCiphertextSize + MACSize
)

// Mode selects which direction a Session runs: Upload encrypts plaintext
// into wire blocks, Download authenticates and decrypts wire blocks back
// into plaintext.
type Mode int

const (
	Upload Mode = iota
	Download
)

// Action is the host's stream-framing signal, both incoming (what the host
// asks Process to do) and outgoing (what Process asks the host to do next).
type Action int

const (
	// ActionNormal: ready for the next input (outgoing), or there is no
	// special framing request (incoming).
	ActionNormal Action = iota
	// ActionRepeat: call Process again with the same input buffer position
	// (outgoing), or the host is re-offering that same position because a
	// prior call signaled more output pending (incoming).
	ActionRepeat
	// ActionDataEnd: the stream is complete (outgoing), or the host has no
	// more input to offer (incoming).
	ActionDataEnd
)
